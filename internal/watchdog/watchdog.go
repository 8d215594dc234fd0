// Package watchdog implements the recent-failure alerting check used both
// as a scheduled job body and as an on-demand control-plane endpoint.
package watchdog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/store"
)

// NotificationStatus explains why (or why not) an alert was sent.
type NotificationStatus string

const (
	NotificationEnqueued     NotificationStatus = "enqueued"
	NotificationDuplicate    NotificationStatus = "duplicate"
	NotificationNotRequested NotificationStatus = "not_requested"
	NotificationNoChatID     NotificationStatus = "no_chat_id"
)

// Params configures one failure check.
type Params struct {
	LookbackMinutes  int
	Threshold        int
	MaxFailures      int
	Notify           bool
	ExcludeTaskTypes []string
}

// Result is the outcome of CheckTaskFailures.
type Result struct {
	FailedCount        int
	ShouldAlert        bool
	NotificationStatus NotificationStatus
}

// CheckTaskFailures inspects recent failed runs and, if warranted and
// requested, enqueues a high-priority alert deduped per lookback bucket.
func CheckTaskFailures(jobs *store.JobRepository, outbound *store.OutboundRepository, defaultChatID *int64, p Params, now int64) Result {
	since := now - int64(p.LookbackMinutes)*60_000
	rows := filterExcluded(jobs, jobs.ListRecentFailedRuns(since, p.MaxFailures), p.ExcludeTaskTypes)

	shouldAlert := len(rows) >= p.Threshold
	result := Result{FailedCount: len(rows), ShouldAlert: shouldAlert}

	if !p.Notify || !shouldAlert {
		result.NotificationStatus = NotificationNotRequested
		return result
	}

	if defaultChatID == nil {
		result.NotificationStatus = NotificationNoChatID
		return result
	}

	summary := buildSummary(jobs, rows)
	dedupeKey := "watchdog:" + sha256Short(fmt.Sprintf("%d:%s", since/60_000, signature(rows)))
	outcome, err := outbound.EnqueueOrIgnoreDedupe(store.OutboundMessage{
		ID:            uuid.NewString(),
		ChatID:        *defaultChatID,
		Kind:          store.OutboundText,
		Content:       summary,
		Priority:      store.PriorityHigh,
		DedupeKey:     &dedupeKey,
		Status:        store.OutboundQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		result.NotificationStatus = NotificationNotRequested
		return result
	}

	if outcome == store.EnqueueDuplicate {
		result.NotificationStatus = NotificationDuplicate
	} else {
		result.NotificationStatus = NotificationEnqueued
	}
	return result
}

func filterExcluded(jobs *store.JobRepository, rows []store.JobRun, excludeTypes []string) []store.JobRun {
	if len(excludeTypes) == 0 {
		return rows
	}
	excluded := make(map[string]struct{}, len(excludeTypes))
	for _, t := range excludeTypes {
		excluded[t] = struct{}{}
	}

	out := make([]store.JobRun, 0, len(rows))
	for _, r := range rows {
		if jobType, ok := jobs.JobTypeOf(r.JobID); ok {
			if _, skip := excluded[jobType]; skip {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// buildSummary composes a text alert: total count, top task types, first
// two error messages.
func buildSummary(jobs *store.JobRepository, rows []store.JobRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Watchdog: %d task failure(s) detected.\n\n", len(rows))

	counts := make(map[string]int)
	for _, r := range rows {
		jobType, ok := jobs.JobTypeOf(r.JobID)
		if !ok {
			jobType = "unknown"
		}
		counts[jobType]++
	}
	type kv struct {
		Type  string
		Count int
	}
	top := make([]kv, 0, len(counts))
	for t, c := range counts {
		top = append(top, kv{t, c})
	}
	sort.Slice(top, func(i, k int) bool { return top[i].Count > top[k].Count })
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) > 0 {
		b.WriteString("Top task types:\n")
		for _, t := range top {
			fmt.Fprintf(&b, "- %s: %d\n", t.Type, t.Count)
		}
		b.WriteString("\n")
	}

	shown := 0
	for _, r := range rows {
		if shown >= 2 || r.ErrorMessage == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", *r.ErrorMessage)
		shown++
	}

	return b.String()
}

// signature is a stable fingerprint of the rows composing an alert, used to
// keep repeated ticks over the same failure set from double-notifying.
func signature(rows []store.JobRun) string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func sha256Short(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])[:16]
}

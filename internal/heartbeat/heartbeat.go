// Package heartbeat implements the recurring check-in job: a well-known
// scheduled task that decides, at each firing, whether a status digest is
// actually due and enqueues it through the outbound queue.
package heartbeat

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/marcomuellner/otto/internal/policy"
	"github.com/marcomuellner/otto/internal/store"
)

// Window is the part of the day a heartbeat fires for.
type Window string

const (
	WindowMorning Window = "morning"
	WindowMidday  Window = "midday"
	WindowEvening Window = "evening"
)

// Reason explains why a heartbeat tick did or didn't emit anything.
type Reason string

const (
	ReasonSignalEmpty   Reason = "signal_empty"
	ReasonOutsideCadence Reason = "outside_cadence"
	ReasonQuietOrMuted  Reason = "quiet_or_muted"
	ReasonQueued        Reason = "queued"
	ReasonDedupe        Reason = "dedupe"
)

// Result is the outcome of one heartbeat firing; status is always success
// per spec.
type Result struct {
	Status   store.RunStatus
	Emitted  bool
	Reason   Reason
}

// Payload is the heartbeat job's optional JSON payload.
type Payload struct {
	ChatID *int64 `json:"chatId,omitempty"`
}

// windowLengthMinutes is how long a configured heartbeat time stays "due":
// the firing minute plus the following 59 minutes.
const windowLengthMinutes = 60

// EnsureHeartbeatTask idempotently registers the well-known heartbeat job.
// If it already exists, this is a no-op.
func EnsureHeartbeatTask(jobs *store.JobRepository, now int64) error {
	if _, ok := jobs.GetByID(store.HeartbeatJobID); ok {
		return nil
	}
	cadence := 1
	job := store.Job{
		ID:           store.HeartbeatJobID,
		Type:         store.JobTypeHeartbeat,
		ScheduleKind: store.ScheduleRecurring,
		CadenceMinutes: &cadence,
		Status:       store.JobIdle,
		NextRunAt:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return jobs.CreateTask(job)
}

// Execute runs one heartbeat firing per spec.md §4.G, steps 1-7.
func Execute(jobs *store.JobRepository, outbound *store.OutboundRepository, profileRepo *store.ProfileRepository, payload Payload, defaultChatID *int64, now int64) Result {
	chatID := payload.ChatID
	if chatID == nil {
		chatID = defaultChatID
	}
	if chatID == nil {
		return Result{Status: store.RunSuccess, Emitted: false, Reason: ReasonSignalEmpty}
	}

	record := profileRepo.Get()
	profile := policy.ResolveEffectiveProfile(record)

	if !policy.IsProfileOnboardingComplete(record) {
		tzDate := policy.LocalDateKey(now, profile.Timezone)
		dedupeKey := "heartbeat-onboarding:" + sha256Short(fmt.Sprintf("%d:%s:onboarding", *chatID, tzDate))
		enqueue(outbound, *chatID, onboardingPromptText(), store.PriorityNormal, dedupeKey, now)
		return Result{Status: store.RunSuccess, Emitted: true, Reason: ReasonQueued}
	}

	nowMinutes := policy.LocalClockMinutes(now, profile.Timezone)
	window := resolveDueWindow(nowMinutes, profile)
	cadenceActive, cadenceBucketKey := cadenceBoundary(now, profile.HeartbeatCadenceMinutes)
	if window == "" && !cadenceActive {
		return Result{Status: store.RunSuccess, Emitted: false, Reason: ReasonOutsideCadence}
	}

	cadenceMs := int64(profile.HeartbeatCadenceMinutes) * 60_000
	recent := filterOutHeartbeats(jobs, jobs.ListRecentRuns(now-cadenceMs, 100))
	if profile.HeartbeatOnlyIfSignal && len(recent) == 0 {
		return Result{Status: store.RunSuccess, Emitted: false, Reason: ReasonSignalEmpty}
	}

	gate := policy.ResolveGateDecision(profile, policy.UrgencyNormal, now)
	if gate.Action == policy.ActionHold {
		return Result{Status: store.RunSuccess, Emitted: false, Reason: ReasonQuietOrMuted}
	}

	tzDate := policy.LocalDateKey(now, profile.Timezone)
	var fingerprint string
	if window != "" {
		fingerprint = fmt.Sprintf("%s:%s", tzDate, window)
	} else {
		fingerprint = fmt.Sprintf("%s:%s", tzDate, cadenceBucketKey)
	}
	dedupeKey := "heartbeat:" + sha256Short(fmt.Sprintf("%d:%s", *chatID, fingerprint))

	outcome := enqueue(outbound, *chatID, buildSummary(jobs, recent), store.PriorityNormal, dedupeKey, now)
	profileRepo.SetLastDigestAt(now)

	reason := ReasonQueued
	if outcome == store.EnqueueDuplicate {
		reason = ReasonDedupe
	}
	return Result{Status: store.RunSuccess, Emitted: outcome == store.EnqueueInserted, Reason: reason}
}

func enqueue(outbound *store.OutboundRepository, chatID int64, content string, priority store.OutboundPriority, dedupeKey string, now int64) store.EnqueueResult {
	outcome, err := outbound.EnqueueOrIgnoreDedupe(store.OutboundMessage{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		Kind:          store.OutboundText,
		Content:       content,
		Priority:      priority,
		DedupeKey:     &dedupeKey,
		Status:        store.OutboundQueued,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return store.EnqueueDuplicate
	}
	return outcome
}

// resolveDueWindow reports which configured heartbeat time, if any, is
// currently active (its firing minute plus the following 59 minutes).
func resolveDueWindow(nowMinutes int, profile policy.EffectiveProfile) Window {
	if inWindow(nowMinutes, profile.HeartbeatMorning) {
		return WindowMorning
	}
	if inWindow(nowMinutes, profile.HeartbeatMidday) {
		return WindowMidday
	}
	if inWindow(nowMinutes, profile.HeartbeatEvening) {
		return WindowEvening
	}
	return ""
}

func inWindow(nowMinutes int, hhmm *string) bool {
	if hhmm == nil {
		return false
	}
	start, ok := parseHHMM(*hhmm)
	if !ok {
		return false
	}
	delta := nowMinutes - start
	if delta < 0 {
		delta += 1440
	}
	return delta < windowLengthMinutes
}

func parseHHMM(v string) (int, bool) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, false
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// cadenceBoundary reports whether now falls within one minute of a cadence
// boundary, and the bucket key identifying that boundary.
func cadenceBoundary(now int64, cadenceMinutes int) (bool, string) {
	if cadenceMinutes <= 0 {
		return false, ""
	}
	minutesSinceEpoch := now / 60_000
	bucket := minutesSinceEpoch / int64(cadenceMinutes)
	active := minutesSinceEpoch%int64(cadenceMinutes) == 0
	return active, fmt.Sprintf("%d", bucket)
}

func filterOutHeartbeats(jobs *store.JobRepository, runs []store.JobRun) []store.JobRun {
	out := make([]store.JobRun, 0, len(runs))
	for _, r := range runs {
		if jobType, ok := jobs.JobTypeOf(r.JobID); ok && jobType == store.JobTypeHeartbeat {
			continue
		}
		out = append(out, r)
	}
	return out
}

// buildSummary composes the heartbeat digest: totals by outcome, top-3 job
// types by count, up to 2 error highlights.
func buildSummary(jobs *store.JobRepository, runs []store.JobRun) string {
	var b strings.Builder
	counts := map[store.RunStatus]int{}
	byType := map[string]int{}
	for _, r := range runs {
		counts[r.Status]++
		if jobType, ok := jobs.JobTypeOf(r.JobID); ok {
			byType[jobType]++
		}
	}
	fmt.Fprintf(&b, "Heartbeat: %d run(s) since last check-in.\n", len(runs))
	fmt.Fprintf(&b, "success=%d failed=%d skipped=%d\n\n", counts[store.RunSuccess], counts[store.RunFailed], counts[store.RunSkipped])

	type kv struct {
		Type  string
		Count int
	}
	top := make([]kv, 0, len(byType))
	for t, c := range byType {
		top = append(top, kv{t, c})
	}
	sort.Slice(top, func(i, k int) bool { return top[i].Count > top[k].Count })
	if len(top) > 3 {
		top = top[:3]
	}
	for _, t := range top {
		fmt.Fprintf(&b, "- %s: %d\n", t.Type, t.Count)
	}

	shown := 0
	for _, r := range runs {
		if shown >= 2 || r.ErrorMessage == nil {
			continue
		}
		fmt.Fprintf(&b, "- error: %s\n", *r.ErrorMessage)
		shown++
	}

	return b.String()
}

func onboardingPromptText() string {
	return "Welcome to otto. Reply with your timezone and preferred quiet hours to finish setup."
}

func sha256Short(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])[:16]
}

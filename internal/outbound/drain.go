// Package outbound implements the delivery queue drain loop: gating queued
// messages through notification policy, delivering via a transport, and
// retrying with capped exponential backoff.
package outbound

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/marcomuellner/otto/internal/pkg/logs"
	"github.com/marcomuellner/otto/internal/policy"
	"github.com/marcomuellner/otto/internal/store"
)

const suppressedPrefix = "suppressed_by_policy:"

// RetryPolicy is the drainer's capped-exponential backoff configuration.
type RetryPolicy struct {
	MaxAttempts  int
	BaseDelayMs  int64
	MaxDelayMs   int64
}

// delay computes the backoff for the n-th retry: min(base*2^(n-1), max).
func (p RetryPolicy) delay(n int) int64 {
	if n < 1 {
		n = 1
	}
	d := p.BaseDelayMs << uint(n-1)
	if d <= 0 || d > p.MaxDelayMs {
		return p.MaxDelayMs
	}
	return d
}

// Drainer drives one polling-interval pass over the outbound queue.
type Drainer struct {
	Outbound  *store.OutboundRepository
	Jobs      *store.JobRepository // optional; enables digest compilation
	Profile   *store.ProfileRepository
	Transport Transport
	Retry     RetryPolicy

	draining atomic.Bool
}

// DrainDueMessages runs one drain pass, guarded against reentry.
func (d *Drainer) DrainDueMessages(ctx context.Context, now int64) {
	if !d.draining.CompareAndSwap(false, true) {
		logs.CtxWarn(ctx, "[outbound] drain skipped: previous drain still running")
		return
	}
	defer d.draining.Store(false)

	due := d.Outbound.ListDue(now)
	record := d.Profile.Get()
	profile := policy.ResolveEffectiveProfile(record)
	gateNow := policy.ResolveGateDecision(profile, policy.UrgencyNormal, now)

	handled := d.releaseSuppressedAsDigest(ctx, due, profile, gateNow, now)

	for _, msg := range due {
		if _, skip := handled[msg.ID]; skip {
			continue
		}
		d.deliverOne(ctx, msg, profile, now)
	}
}

// releaseSuppressedAsDigest implements spec.md §4.F step 4: messages held
// by a prior policy decision are, once the gate reopens, rolled into one
// digest per chat instead of being delivered individually.
func (d *Drainer) releaseSuppressedAsDigest(ctx context.Context, due []store.OutboundMessage, profile policy.EffectiveProfile, gateNow policy.GateDecision, now int64) map[string]struct{} {
	handled := make(map[string]struct{})
	if d.Jobs == nil || gateNow.Action != policy.ActionDeliverNow {
		return handled
	}

	var released []store.OutboundMessage
	for _, m := range due {
		if m.ErrorMessage != nil && strings.HasPrefix(*m.ErrorMessage, suppressedPrefix) {
			released = append(released, m)
		}
	}
	if len(released) == 0 {
		return handled
	}

	byChat := make(map[int64][]store.OutboundMessage)
	for _, m := range released {
		byChat[m.ChatID] = append(byChat[m.ChatID], m)
	}

	since := now - 24*60*60_000
	if profile.LastDigestAt != nil {
		since = *profile.LastDigestAt
	}
	recent := excludeHeartbeat(d.Jobs, d.Jobs.ListRecentRuns(since, 200))
	digest := buildDigestText(recent)

	chatIDs := make([]int64, 0, len(byChat))
	for chatID := range byChat {
		chatIDs = append(chatIDs, chatID)
	}
	sort.Slice(chatIDs, func(i, k int) bool { return chatIDs[i] < chatIDs[k] })

	for _, chatID := range chatIDs {
		if err := d.Transport.SendMessage(ctx, chatID, digest); err != nil {
			logs.CtxWarn(ctx, "[outbound] digest send to chat %d: %v", chatID, err)
			continue
		}
		for _, m := range byChat[chatID] {
			if err := d.Outbound.MarkSent(m.ID, m.AttemptCount+1, now); err != nil {
				logs.CtxWarn(ctx, "[outbound] mark digest message sent %s: %v", m.ID, err)
			}
			handled[m.ID] = struct{}{}
		}
	}
	_ = d.Profile.SetLastDigestAt(now)
	return handled
}

func excludeHeartbeat(jobs *store.JobRepository, runs []store.JobRun) []store.JobRun {
	out := make([]store.JobRun, 0, len(runs))
	for _, r := range runs {
		if jobType, ok := jobs.JobTypeOf(r.JobID); ok && jobType == store.JobTypeHeartbeat {
			continue
		}
		out = append(out, r)
	}
	return out
}

func buildDigestText(runs []store.JobRun) string {
	var b strings.Builder
	b.WriteString("Digest of held notifications:\n\n")
	counts := map[store.RunStatus]int{}
	for _, r := range runs {
		counts[r.Status]++
	}
	b.WriteString("Runs since last digest: ")
	b.WriteString("success=")
	b.WriteString(itoa(counts[store.RunSuccess]))
	b.WriteString(" failed=")
	b.WriteString(itoa(counts[store.RunFailed]))
	b.WriteString(" skipped=")
	b.WriteString(itoa(counts[store.RunSkipped]))
	b.WriteString("\n")
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// deliverOne evaluates the gate for one message and either holds it,
// delivers it, or retries/fails it per spec.md §4.F steps 5-7.
func (d *Drainer) deliverOne(ctx context.Context, msg store.OutboundMessage, profile policy.EffectiveProfile, now int64) {
	urgency := policy.UrgencyNormal
	if msg.Priority == store.PriorityHigh || msg.Priority == store.PriorityCritical {
		urgency = policy.UrgencyCritical
	}
	gate := policy.ResolveGateDecision(profile, urgency, now)

	if gate.Action == policy.ActionHold {
		nextAttempt := now + d.Retry.BaseDelayMs
		if gate.ReleaseAt != nil {
			nextAttempt = *gate.ReleaseAt
		}
		reason := suppressedPrefix + string(gate.Reason)
		if err := d.Outbound.MarkRetry(msg.ID, msg.AttemptCount+1, nextAttempt, reason, now); err != nil {
			logs.CtxWarn(ctx, "[outbound] mark held %s: %v", msg.ID, err)
		}
		return
	}

	if err := d.send(ctx, msg); err != nil {
		d.handleFailure(ctx, msg, err, now)
		return
	}

	if err := d.Outbound.MarkSent(msg.ID, msg.AttemptCount+1, now); err != nil {
		logs.CtxWarn(ctx, "[outbound] mark sent %s: %v", msg.ID, err)
	}
	d.cleanupMedia(ctx, msg)
}

func (d *Drainer) send(ctx context.Context, msg store.OutboundMessage) error {
	switch msg.Kind {
	case store.OutboundDocument, store.OutboundPhoto:
		if msg.MediaPath == nil {
			return errMissingMediaPath
		}
		att := Attachment{FilePath: *msg.MediaPath, Caption: msg.Content}
		if msg.MediaFilename != nil {
			att.Filename = *msg.MediaFilename
		}
		if msg.Kind == store.OutboundDocument {
			return d.Transport.SendDocument(ctx, msg.ChatID, att)
		}
		return d.Transport.SendPhoto(ctx, msg.ChatID, att)
	default:
		for _, chunk := range ChunkText(msg.Content) {
			if err := d.Transport.SendMessage(ctx, msg.ChatID, chunk); err != nil {
				return err
			}
		}
		return nil
	}
}

func (d *Drainer) handleFailure(ctx context.Context, msg store.OutboundMessage, sendErr error, now int64) {
	errMsg := sendErr.Error()
	if len(errMsg) > 1000 {
		errMsg = errMsg[:1000]
	}

	attempt := msg.AttemptCount + 1
	if attempt >= d.Retry.MaxAttempts {
		if err := d.Outbound.MarkFailed(msg.ID, attempt, errMsg, now); err != nil {
			logs.CtxWarn(ctx, "[outbound] mark failed %s: %v", msg.ID, err)
		}
		d.cleanupMedia(ctx, msg)
		return
	}

	nextAttemptAt := now + d.Retry.delay(attempt)
	if err := d.Outbound.MarkRetry(msg.ID, attempt, nextAttemptAt, errMsg, now); err != nil {
		logs.CtxWarn(ctx, "[outbound] mark retry %s: %v", msg.ID, err)
	}
}

func (d *Drainer) cleanupMedia(ctx context.Context, msg store.OutboundMessage) {
	if msg.MediaPath == nil {
		return
	}
	if err := os.Remove(*msg.MediaPath); err != nil && !os.IsNotExist(err) {
		logs.CtxWarn(ctx, "[outbound] cleanup staged media %s: %v", *msg.MediaPath, err)
	}
}

var errMissingMediaPath = &mediaPathError{}

type mediaPathError struct{}

func (e *mediaPathError) Error() string { return "outbound message missing media path" }

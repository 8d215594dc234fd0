package policy

import (
	"strconv"
	"strings"
	"time"

	"github.com/marcomuellner/otto/internal/store"
)

// Urgency classifies an outbound message for gate evaluation.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyNormal   Urgency = "normal"
)

// GateAction is what the gate decided to do with a message right now.
type GateAction string

const (
	ActionDeliverNow GateAction = "deliver_now"
	ActionHold       GateAction = "hold"
)

// GateReason explains why an action was chosen.
type GateReason string

const (
	ReasonAllowed       GateReason = "allowed"
	ReasonCriticalBypass GateReason = "critical_bypass"
	ReasonQuietHours    GateReason = "quiet_hours"
	ReasonMuted         GateReason = "muted"
)

// GateDecision is the result of evaluating notification policy at a point
// in time.
type GateDecision struct {
	Action    GateAction
	Reason    GateReason
	ReleaseAt *int64 // epoch-ms; nil unless Action = hold
}

const scanForwardLimit = 48 * time.Hour

// ResolveGateDecision evaluates the notification policy rules in order:
// critical bypass, mute, quiet hours, else deliver. Pure: same inputs
// always produce the same decision.
func ResolveGateDecision(profile EffectiveProfile, urgency Urgency, now int64) GateDecision {
	if urgency == UrgencyCritical {
		return GateDecision{Action: ActionDeliverNow, Reason: ReasonCriticalBypass}
	}

	if profile.MuteUntil != nil && *profile.MuteUntil > now {
		releaseAt := *profile.MuteUntil
		return GateDecision{Action: ActionHold, Reason: ReasonMuted, ReleaseAt: &releaseAt}
	}

	if profile.QuietMode == store.QuietCriticalOnly && isQuietHoursActive(profile, now) {
		releaseAt := resolveQuietReleaseAt(profile, now)
		return GateDecision{Action: ActionHold, Reason: ReasonQuietHours, ReleaseAt: &releaseAt}
	}

	return GateDecision{Action: ActionDeliverNow, Reason: ReasonAllowed}
}

// isQuietHoursActive reports whether now falls inside [start, end) local
// wall-clock minutes, wrapping midnight when start >= end.
func isQuietHoursActive(profile EffectiveProfile, now int64) bool {
	start, ok1 := parseHHMM(profile.QuietHoursStart)
	end, ok2 := parseHHMM(profile.QuietHoursEnd)
	if !ok1 || !ok2 {
		return false
	}

	nowMinutes := LocalClockMinutes(now, profile.Timezone)
	if start < end {
		return nowMinutes >= start && nowMinutes < end
	}
	if start == end {
		return false // zero-width window
	}
	// wraps midnight: active if nowMinutes is after start OR before end
	return nowMinutes >= start || nowMinutes < end
}

// resolveQuietReleaseAt scans forward at 1-minute granularity (up to 48h)
// for the next local-time match of quietHoursEnd, tolerating DST shifts.
func resolveQuietReleaseAt(profile EffectiveProfile, now int64) int64 {
	end, ok := parseHHMM(profile.QuietHoursEnd)
	if !ok {
		return now
	}

	cursor := now
	deadline := now + scanForwardLimit.Milliseconds()
	for cursor <= deadline {
		if LocalClockMinutes(cursor, profile.Timezone) == end {
			return cursor
		}
		cursor += 60_000
	}
	return now
}

// parseHHMM parses "HH:MM" into minutes-since-midnight.
func parseHHMM(v *string) (int, bool) {
	if v == nil {
		return 0, false
	}
	parts := strings.SplitN(*v, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

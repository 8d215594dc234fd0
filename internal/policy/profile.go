package policy

import (
	"time"

	"github.com/marcomuellner/otto/internal/store"
)

const (
	defaultTimezone                = "Europe/Vienna"
	defaultHeartbeatCadenceMinutes = 180
	minHeartbeatCadenceMinutes     = 30
)

// EffectiveProfile is UserProfile overlaid on the default profile: every
// field is guaranteed present, so downstream gate/window arithmetic never
// has to special-case a missing value.
type EffectiveProfile struct {
	Timezone                string
	QuietHoursStart         *string
	QuietHoursEnd           *string
	QuietMode               store.QuietMode
	MuteUntil               *int64
	HeartbeatMorning        *string
	HeartbeatMidday         *string
	HeartbeatEvening        *string
	HeartbeatCadenceMinutes int
	HeartbeatOnlyIfSignal   bool
	OnboardingCompletedAt   *int64
	LastDigestAt            *int64
}

// ResolveEffectiveProfile fills defaults and normalizes the timezone,
// falling back to defaultTimezone when the stored value is not a valid
// IANA zone. Deterministic for a given record.
func ResolveEffectiveProfile(record store.UserProfile) EffectiveProfile {
	tz := record.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	if _, err := time.LoadLocation(tz); err != nil {
		tz = defaultTimezone
	}

	quietMode := record.QuietMode
	if quietMode == "" {
		quietMode = store.QuietOff
	}

	cadence := record.HeartbeatCadenceMinutes
	if cadence < minHeartbeatCadenceMinutes {
		cadence = defaultHeartbeatCadenceMinutes
	}

	return EffectiveProfile{
		Timezone:                tz,
		QuietHoursStart:         record.QuietHoursStart,
		QuietHoursEnd:           record.QuietHoursEnd,
		QuietMode:               quietMode,
		MuteUntil:               record.MuteUntil,
		HeartbeatMorning:        record.HeartbeatMorning,
		HeartbeatMidday:         record.HeartbeatMidday,
		HeartbeatEvening:        record.HeartbeatEvening,
		HeartbeatCadenceMinutes: cadence,
		HeartbeatOnlyIfSignal:   record.HeartbeatOnlyIfSignal,
		OnboardingCompletedAt:   record.OnboardingCompletedAt,
		LastDigestAt:            record.LastDigestAt,
	}
}

// IsProfileOnboardingComplete reports true iff onboardingCompletedAt is
// set, else heuristically true when timezone and both quiet-hour bounds
// are all present.
func IsProfileOnboardingComplete(record store.UserProfile) bool {
	if record.OnboardingCompletedAt != nil {
		return true
	}
	return record.Timezone != "" && record.QuietHoursStart != nil && record.QuietHoursEnd != nil
}

func loc(tz string) *time.Location {
	l, err := time.LoadLocation(tz)
	if err != nil {
		l, _ = time.LoadLocation(defaultTimezone)
	}
	if l == nil {
		l = time.UTC
	}
	return l
}

// LocalClockMinutes returns minutes-since-midnight for ts in tz.
func LocalClockMinutes(ts int64, tz string) int {
	t := time.UnixMilli(ts).In(loc(tz))
	return t.Hour()*60 + t.Minute()
}

// LocalDateKey returns a YYYY-MM-DD date key for ts in tz, used to build
// once-per-local-day fingerprints.
func LocalDateKey(ts int64, tz string) string {
	t := time.UnixMilli(ts).In(loc(tz))
	return t.Format("2006-01-02")
}

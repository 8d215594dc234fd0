package api

import (
	"time"

	"github.com/marcomuellner/otto/internal/apierr"
	"github.com/marcomuellner/otto/internal/store"
)

type ProfileResponse struct {
	Profile store.UserProfile `json:"profile"`
}

func (d *Deps) NotificationProfileGet() ProfileResponse {
	return ProfileResponse{Profile: d.Profile.Get()}
}

const maxMuteForMinutes = 7 * 24 * 60

type NotificationProfileSetRequest struct {
	Timezone                *string `json:"timezone,omitempty"`
	QuietHoursStart         *string `json:"quietHoursStart,omitempty"`
	QuietHoursEnd           *string `json:"quietHoursEnd,omitempty"`
	QuietMode               *string `json:"quietMode,omitempty"`
	MuteUntil               *int64  `json:"muteUntil,omitempty"`
	MuteForMinutes          *int    `json:"muteForMinutes,omitempty"`
	HeartbeatMorning        *string `json:"heartbeatMorning,omitempty"`
	HeartbeatMidday         *string `json:"heartbeatMidday,omitempty"`
	HeartbeatEvening        *string `json:"heartbeatEvening,omitempty"`
	HeartbeatCadenceMinutes *int    `json:"heartbeatCadenceMinutes,omitempty"`
	HeartbeatOnlyIfSignal   *bool   `json:"heartbeatOnlyIfSignal,omitempty"`
	MarkOnboardingComplete  *bool   `json:"markOnboardingComplete,omitempty"`
}

// NotificationProfileSet merges the request into the stored UserProfile.
// When muteForMinutes is present it overrides muteUntil.
func (d *Deps) NotificationProfileSet(req NotificationProfileSetRequest) (ProfileResponse, []string, *apierr.Error) {
	now := d.now()
	profile := d.Profile.Get()
	var changed []string

	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			return ProfileResponse{}, nil, apierr.New(apierr.InvalidRequest, "timezone is not a valid IANA zone")
		}
		profile.Timezone = *req.Timezone
		changed = append(changed, "timezone")
	}
	if req.QuietHoursStart != nil {
		profile.QuietHoursStart = req.QuietHoursStart
		changed = append(changed, "quietHoursStart")
	}
	if req.QuietHoursEnd != nil {
		profile.QuietHoursEnd = req.QuietHoursEnd
		changed = append(changed, "quietHoursEnd")
	}
	if req.QuietMode != nil {
		switch store.QuietMode(*req.QuietMode) {
		case store.QuietCriticalOnly, store.QuietOff:
			profile.QuietMode = store.QuietMode(*req.QuietMode)
			changed = append(changed, "quietMode")
		default:
			return ProfileResponse{}, nil, apierr.New(apierr.InvalidRequest, "quietMode must be critical_only or off")
		}
	}
	if req.MuteForMinutes != nil {
		if *req.MuteForMinutes < 1 || *req.MuteForMinutes > maxMuteForMinutes {
			return ProfileResponse{}, nil, apierr.New(apierr.InvalidRequest, "muteForMinutes must be within [1, 10080]")
		}
		until := now + int64(*req.MuteForMinutes)*60_000
		profile.MuteUntil = &until
		changed = append(changed, "muteUntil")
	} else if req.MuteUntil != nil {
		profile.MuteUntil = req.MuteUntil
		changed = append(changed, "muteUntil")
	}
	if req.HeartbeatMorning != nil {
		profile.HeartbeatMorning = req.HeartbeatMorning
		changed = append(changed, "heartbeatMorning")
	}
	if req.HeartbeatMidday != nil {
		profile.HeartbeatMidday = req.HeartbeatMidday
		changed = append(changed, "heartbeatMidday")
	}
	if req.HeartbeatEvening != nil {
		profile.HeartbeatEvening = req.HeartbeatEvening
		changed = append(changed, "heartbeatEvening")
	}
	if req.HeartbeatCadenceMinutes != nil {
		if *req.HeartbeatCadenceMinutes < 30 || *req.HeartbeatCadenceMinutes > 1440 {
			return ProfileResponse{}, nil, apierr.New(apierr.InvalidRequest, "heartbeatCadenceMinutes must be within [30, 1440]")
		}
		profile.HeartbeatCadenceMinutes = *req.HeartbeatCadenceMinutes
		changed = append(changed, "heartbeatCadenceMinutes")
	}
	if req.HeartbeatOnlyIfSignal != nil {
		profile.HeartbeatOnlyIfSignal = *req.HeartbeatOnlyIfSignal
		changed = append(changed, "heartbeatOnlyIfSignal")
	}
	if req.MarkOnboardingComplete != nil && *req.MarkOnboardingComplete {
		profile.OnboardingCompletedAt = &now
		changed = append(changed, "onboardingCompletedAt")
	}

	profile.UpdatedAt = now
	if err := d.Profile.Upsert(profile); err != nil {
		return ProfileResponse{}, nil, apierr.New(apierr.InternalError, err.Error())
	}
	return ProfileResponse{Profile: profile}, changed, nil
}

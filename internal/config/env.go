package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	defaultInternalAPIHost = "127.0.0.1"
	defaultInternalAPIPort = 4180

	defaultSchedulerTickMS      = 60000
	defaultSchedulerBatchSize   = 20
	defaultSchedulerLockLeaseMS = 90000
	minSchedulerTickMS          = 1000
	minSchedulerBatchSize       = 1
)

// RuntimeEnv is the subset of settings read from the environment rather than
// config.yaml: the control-plane bind address and the scheduler kernel's
// timing knobs. These govern process-lifetime behavior, not persisted state,
// so they are never part of InstanceManager's CAS surface.
type RuntimeEnv struct {
	InternalAPIHost string
	InternalAPIPort int

	SchedulerEnabled     bool
	SchedulerTickMS      int
	SchedulerBatchSize   int
	SchedulerLockLeaseMS int

	TelegramAllowedUserID string
}

// LoadRuntimeEnv reads and validates OTTO_* environment variables, applying
// the defaults and boundary checks named in the control-plane design.
func LoadRuntimeEnv() (*RuntimeEnv, error) {
	env := &RuntimeEnv{
		InternalAPIHost:       defaultInternalAPIHost,
		InternalAPIPort:       defaultInternalAPIPort,
		SchedulerEnabled:      true,
		SchedulerTickMS:       defaultSchedulerTickMS,
		SchedulerBatchSize:    defaultSchedulerBatchSize,
		SchedulerLockLeaseMS:  defaultSchedulerLockLeaseMS,
		TelegramAllowedUserID: strings.TrimSpace(os.Getenv("TELEGRAM_ALLOWED_USER_ID")),
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_INTERNAL_API_HOST")); v != "" {
		env.InternalAPIHost = v
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_INTERNAL_API_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OTTO_INTERNAL_API_PORT: invalid integer %q: %w", v, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("OTTO_INTERNAL_API_PORT: %d out of range [1,65535]", port)
		}
		env.InternalAPIPort = port
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_SCHEDULER_ENABLED")); v == "0" {
		env.SchedulerEnabled = false
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_SCHEDULER_TICK_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OTTO_SCHEDULER_TICK_MS: invalid integer %q: %w", v, err)
		}
		env.SchedulerTickMS = n
	}
	if env.SchedulerTickMS < minSchedulerTickMS {
		return nil, fmt.Errorf("OTTO_SCHEDULER_TICK_MS must be >= %d, got %d", minSchedulerTickMS, env.SchedulerTickMS)
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_SCHEDULER_BATCH_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OTTO_SCHEDULER_BATCH_SIZE: invalid integer %q: %w", v, err)
		}
		env.SchedulerBatchSize = n
	}
	if env.SchedulerBatchSize < minSchedulerBatchSize {
		return nil, fmt.Errorf("OTTO_SCHEDULER_BATCH_SIZE must be >= %d, got %d", minSchedulerBatchSize, env.SchedulerBatchSize)
	}

	if v := strings.TrimSpace(os.Getenv("OTTO_SCHEDULER_LOCK_LEASE_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("OTTO_SCHEDULER_LOCK_LEASE_MS: invalid integer %q: %w", v, err)
		}
		env.SchedulerLockLeaseMS = n
	}
	if env.SchedulerLockLeaseMS < env.SchedulerTickMS {
		return nil, fmt.Errorf("OTTO_SCHEDULER_LOCK_LEASE_MS (%d) must be >= OTTO_SCHEDULER_TICK_MS (%d)",
			env.SchedulerLockLeaseMS, env.SchedulerTickMS)
	}

	return env, nil
}

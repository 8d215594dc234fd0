package schedule

import (
	"fmt"

	"github.com/marcomuellner/otto/internal/store"
)

// TransitionMode is what a schedule transition does to the job.
type TransitionMode string

const (
	ModeReschedule TransitionMode = "reschedule"
	ModeFinalize   TransitionMode = "finalize"
)

// Transition is the result of resolving a job's post-run schedule state.
type Transition struct {
	Mode           TransitionMode
	LastRunAt      int64
	NextRunAt      int64 // valid iff Mode = reschedule
	TerminalState  store.TerminalState
	TerminalReason *string
}

// ResolveScheduleTransition maps (schedule kind, cadence, finish time) to
// the job's next state. Pure; does not touch the store.
func ResolveScheduleTransition(job store.Job, finishedAt int64) (Transition, error) {
	if job.ScheduleKind == store.ScheduleRecurring {
		if job.CadenceMinutes == nil || *job.CadenceMinutes <= 0 {
			return Transition{}, fmt.Errorf("invalid_cadence")
		}
		return Transition{
			Mode:      ModeReschedule,
			LastRunAt: finishedAt,
			NextRunAt: finishedAt + int64(*job.CadenceMinutes)*60_000,
		}, nil
	}

	return Transition{
		Mode:          ModeFinalize,
		LastRunAt:     finishedAt,
		TerminalState: store.TerminalCompleted,
	}, nil
}

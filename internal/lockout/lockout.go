// Package lockout derives per-owner access-lock state from the
// accountability score. The machine is explicit state plus a guard on the
// unlock edge: a lock clears only when its timer has elapsed AND the score
// has recovered, otherwise it re-arms for another full duration. Waiting a
// lock out without recovering the score is therefore impossible.
package lockout

import "time"

// Status identifies the lock state.
type Status string

const (
	StatusUnlocked Status = "unlocked"
	StatusLocked   Status = "locked"
)

// Transition identifies the edge taken by one evaluation.
type Transition string

const (
	// TransitionNone means the state did not change.
	TransitionNone Transition = "none"
	// TransitionLocked means the score fell below the threshold.
	TransitionLocked Transition = "locked"
	// TransitionUnlocked means the timer elapsed with a recovered score.
	TransitionUnlocked Transition = "unlocked"
	// TransitionRearmed means the timer elapsed but the score had not
	// recovered, extending the lock by another full duration.
	TransitionRearmed Transition = "rearmed"
)

// State is one owner's lockout state.
type State struct {
	Status        Status
	LockedAt      *time.Time
	UnlockAt      *time.Time
	TriggerReason string
}

// Locked reports whether the state denies protocol-mutating operations.
func (s State) Locked() bool {
	return s.Status == StatusLocked
}

// Config holds the lock trigger threshold and duration.
type Config struct {
	Threshold float64
	Duration  time.Duration
}

// DefaultConfig returns the stock threshold and duration.
func DefaultConfig() Config {
	return Config{Threshold: 3.0, Duration: 24 * time.Hour}
}

// Evaluate advances the machine one step for the given score at now.
// reason describes the causal event and is recorded only when a new lock
// triggers; re-arms preserve the original trigger.
func Evaluate(state State, score float64, now time.Time, reason string, cfg Config) (State, Transition) {
	now = now.UTC()

	if state.Status != StatusLocked {
		if score < cfg.Threshold {
			lockedAt := now
			unlockAt := now.Add(cfg.Duration)
			return State{
				Status:        StatusLocked,
				LockedAt:      &lockedAt,
				UnlockAt:      &unlockAt,
				TriggerReason: reason,
			}, TransitionLocked
		}
		return state, TransitionNone
	}

	if state.UnlockAt == nil || now.Before(*state.UnlockAt) {
		return state, TransitionNone
	}

	if score >= cfg.Threshold {
		unlocked := state
		unlocked.Status = StatusUnlocked
		unlocked.UnlockAt = nil
		return unlocked, TransitionUnlocked
	}

	// Timer elapsed with the score still below threshold: extend from the
	// prior unlock instant, not from now, so the cadence stays auditable.
	rearmed := state
	unlockAt := state.UnlockAt.Add(cfg.Duration)
	rearmed.UnlockAt = &unlockAt
	return rearmed, TransitionRearmed
}

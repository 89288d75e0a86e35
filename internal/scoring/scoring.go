// Package scoring computes accountability score transitions. Every function
// here is pure: replaying the same ordered event sequence always produces
// the identical final value, which keeps score history auditable.
package scoring

import (
	"math"
	"time"

	"github.com/ironwill-app/ironwill/internal/protocol"
)

// Score bounds and deltas.
const (
	MinValue     = 0.0
	MaxValue     = 10.0
	InitialValue = 5.0

	OnTimeDelta = 0.5
	LateDelta   = -1.0
	MissedDelta = -2.5
	DecayDelta  = 0.1
)

// Cause identifies what moved a score.
type Cause string

const (
	CauseOnTime Cause = "on_time"
	CauseLate   Cause = "late"
	CauseMissed Cause = "missed"
	// CauseDecay marks the slow self-heal applied on inactive intervals.
	CauseDecay Cause = "decay"
)

// Event is one applied score change.
type Event struct {
	Delta      float64
	Value      float64
	Cause      Cause
	CycleID    string
	OccurredAt time.Time
}

// DeltaFor maps a finalized cycle outcome to its score delta.
func DeltaFor(outcome protocol.Outcome) (float64, Cause, bool) {
	switch outcome {
	case protocol.OutcomeOnTime:
		return OnTimeDelta, CauseOnTime, true
	case protocol.OutcomeLate:
		return LateDelta, CauseLate, true
	case protocol.OutcomeMissed:
		return MissedDelta, CauseMissed, true
	default:
		return 0, "", false
	}
}

// Apply returns the score after one delta, clamped to [MinValue, MaxValue].
// Values are rounded to two decimals so independent replays stay byte-stable.
func Apply(value, delta float64) float64 {
	next := round2(value + delta)
	if next < MinValue {
		return MinValue
	}
	if next > MaxValue {
		return MaxValue
	}
	return next
}

// Replay folds an ordered delta sequence over a starting value.
func Replay(start float64, deltas []float64) float64 {
	value := start
	for _, delta := range deltas {
		value = Apply(value, delta)
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

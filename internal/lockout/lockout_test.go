package lockout

import (
	"testing"
	"time"
)

func TestEvaluateLocksBelowThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 22, 31, 0, 0, time.UTC)
	state, transition := Evaluate(State{Status: StatusUnlocked}, 2.0, now, "cycle c1 missed", DefaultConfig())
	if transition != TransitionLocked {
		t.Fatalf("expected locked transition, got %s", transition)
	}
	if !state.Locked() {
		t.Fatal("expected locked state")
	}
	if state.LockedAt == nil || !state.LockedAt.Equal(now) {
		t.Fatalf("expected locked_at %v, got %v", now, state.LockedAt)
	}
	if want := now.Add(24 * time.Hour); state.UnlockAt == nil || !state.UnlockAt.Equal(want) {
		t.Fatalf("expected unlock_at %v, got %v", want, state.UnlockAt)
	}
	if state.TriggerReason != "cycle c1 missed" {
		t.Fatalf("expected trigger reason recorded, got %q", state.TriggerReason)
	}
}

func TestEvaluateStaysUnlockedAtThreshold(t *testing.T) {
	t.Parallel()

	state, transition := Evaluate(State{Status: StatusUnlocked}, 3.0, time.Now(), "", DefaultConfig())
	if transition != TransitionNone || state.Locked() {
		t.Fatalf("expected no transition at threshold, got %s", transition)
	}
}

func TestEvaluateHoldsLockBeforeTimer(t *testing.T) {
	t.Parallel()

	lockedAt := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	unlockAt := lockedAt.Add(24 * time.Hour)
	locked := State{Status: StatusLocked, LockedAt: &lockedAt, UnlockAt: &unlockAt, TriggerReason: "missed"}

	// Score recovered but the timer has not elapsed: still locked.
	state, transition := Evaluate(locked, 9.0, lockedAt.Add(12*time.Hour), "", DefaultConfig())
	if transition != TransitionNone || !state.Locked() {
		t.Fatalf("expected lock to hold before unlock_at, got %s", transition)
	}
}

func TestEvaluateUnlocksWithGuardSatisfied(t *testing.T) {
	t.Parallel()

	lockedAt := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	unlockAt := lockedAt.Add(24 * time.Hour)
	locked := State{Status: StatusLocked, LockedAt: &lockedAt, UnlockAt: &unlockAt, TriggerReason: "missed"}

	state, transition := Evaluate(locked, 4.5, unlockAt, "", DefaultConfig())
	if transition != TransitionUnlocked {
		t.Fatalf("expected unlocked transition, got %s", transition)
	}
	if state.Locked() {
		t.Fatal("expected unlocked state")
	}
	if state.UnlockAt != nil {
		t.Fatal("expected unlock_at cleared")
	}
	if state.LockedAt == nil || state.TriggerReason == "" {
		t.Fatal("expected lock history retained for audit")
	}
}

func TestEvaluateRearmsWhenScoreStillLow(t *testing.T) {
	t.Parallel()

	lockedAt := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	unlockAt := lockedAt.Add(24 * time.Hour)
	locked := State{Status: StatusLocked, LockedAt: &lockedAt, UnlockAt: &unlockAt, TriggerReason: "missed"}

	state, transition := Evaluate(locked, 2.0, unlockAt, "", DefaultConfig())
	if transition != TransitionRearmed {
		t.Fatalf("expected rearmed transition, got %s", transition)
	}
	if !state.Locked() {
		t.Fatal("expected lock to stay armed")
	}
	// Extension is anchored at the prior unlock instant: T+24h → T+48h.
	if want := lockedAt.Add(48 * time.Hour); state.UnlockAt == nil || !state.UnlockAt.Equal(want) {
		t.Fatalf("expected re-armed unlock_at %v, got %v", want, state.UnlockAt)
	}
	if state.TriggerReason != "missed" {
		t.Fatalf("expected original trigger preserved, got %q", state.TriggerReason)
	}
}

func TestEvaluateRearmRepeats(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	lockedAt := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC)
	unlockAt := lockedAt.Add(cfg.Duration)
	state := State{Status: StatusLocked, LockedAt: &lockedAt, UnlockAt: &unlockAt, TriggerReason: "missed"}

	// Two elapsed timers without recovery stack two extensions.
	state, _ = Evaluate(state, 1.0, lockedAt.Add(24*time.Hour), "", cfg)
	state, _ = Evaluate(state, 1.0, lockedAt.Add(48*time.Hour), "", cfg)
	if want := lockedAt.Add(72 * time.Hour); state.UnlockAt == nil || !state.UnlockAt.Equal(want) {
		t.Fatalf("expected stacked unlock_at %v, got %v", want, state.UnlockAt)
	}
}

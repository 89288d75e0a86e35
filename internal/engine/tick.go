package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ironwill-app/ironwill/internal/lockout"
	"github.com/ironwill-app/ironwill/internal/notify"
	"github.com/ironwill-app/ironwill/internal/protocol"
	"github.com/ironwill-app/ironwill/internal/scoring"
	"github.com/ironwill-app/ironwill/internal/storage"
)

// Tick sweeps every owner once: elapsed cycles finalize as missed, score and
// lockout state move accordingly, reminders fire for open windows, and the
// inactivity decay heals idle scores. One owner's failure is logged and never
// blocks the rest of the sweep.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	ctx, span := s.tracer.Start(ctx, "engine.Tick")
	defer span.End()

	owners, err := s.store.ListOwnerIDs(ctx)
	if err != nil {
		log.Printf("tick: list owners: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, ownerID := range owners {
		ownerID := ownerID
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.sweepOwner(ctx, ownerID, now); err != nil {
				log.Printf("tick: sweep owner_id=%s: %v", ownerID, err)
			}
		}()
	}
	wg.Wait()
}

// sweepOwner advances one owner under their lock. All state transitions the
// sweep computes land in a single atomic resolution; notifications dispatch
// only after the resolution persists.
func (s *Service) sweepOwner(ctx context.Context, ownerID string, now time.Time) error {
	unlock := s.locks.acquire(ownerID)
	defer unlock()

	now = now.UTC()

	score, err := s.loadScore(ctx, ownerID, now)
	if err != nil {
		return err
	}
	lockState, err := s.loadLockout(ctx, ownerID)
	if err != nil {
		return err
	}
	protocols, err := s.store.ListProtocolsByOwner(ctx, ownerID, false)
	if err != nil {
		return err
	}

	resolution := storage.Resolution{OwnerID: ownerID}
	var pending []notify.Event
	scoreChanged := false
	lockChanged := false

	graceByProtocol := make(map[string]time.Duration, len(protocols))
	for _, record := range protocols {
		graceByProtocol[record.ID] = record.GracePeriod

		p := protocol.ProtocolFromRecord(record)
		cycleRecord, err := s.store.GetPendingCycle(ctx, p.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return err
		}
		plan, err := s.registry.PlanAdvance(p, protocol.CycleFromRecord(cycleRecord), now)
		if err != nil {
			return err
		}
		if plan == nil {
			continue
		}

		for _, missed := range plan.Missed {
			resolution.FinalizedCycles = append(resolution.FinalizedCycles, protocol.RecordFromCycle(missed))

			delta, cause, ok := scoring.DeltaFor(missed.Outcome)
			if !ok {
				continue
			}
			value := scoring.Apply(score.Value, delta)
			resolution.ScoreEvents = append(resolution.ScoreEvents, storage.ScoreEventRecord{
				ID:         missed.ID + ":" + string(cause),
				OwnerID:    ownerID,
				Delta:      delta,
				Value:      value,
				Cause:      string(cause),
				CycleID:    missed.ID,
				OccurredAt: now,
			})
			score.Value = value
			score.LastUpdatedAt = now
			score.LastOutcomeAt = now
			scoreChanged = true

			pending = append(pending, notify.Event{
				OwnerID:    ownerID,
				Topic:      notify.TopicCycleMissed,
				Message:    fmt.Sprintf("cycle missed: %s", p.Title),
				DedupeKey:  notify.TopicCycleMissed + ":" + missed.ID,
				OccurredAt: now,
			})

			// A lock can trigger mid-sweep; cycles keep advancing while
			// locked, only owner-initiated mutations are denied.
			reason := fmt.Sprintf("cycle %s finalized missed", missed.ID)
			next, transition := lockout.Evaluate(lockState, value, now, reason, s.cfg.Lockout)
			if transition != lockout.TransitionNone {
				lockState = next
				lockChanged = true
				if transition == lockout.TransitionLocked {
					pending = append(pending, lockEvent(ownerID, lockState, transition, now))
				}
			}
		}

		if plan.Next != nil {
			resolution.NewCycles = append(resolution.NewCycles, protocol.RecordFromCycle(*plan.Next))
		}
		resolution.ProtocolUpdates = append(resolution.ProtocolUpdates, protocol.RecordFromProtocol(plan.Protocol))
	}

	// Inactivity decay: one small heal per elapsed interval with no cycle
	// outcome inside it. Owners with no finalized cycle yet do not decay.
	if !score.LastOutcomeAt.IsZero() &&
		score.Value < scoring.MaxValue &&
		now.Sub(score.LastDecayAt) >= s.cfg.DecayInterval &&
		score.LastOutcomeAt.Before(now.Add(-s.cfg.DecayInterval)) {
		value := scoring.Apply(score.Value, scoring.DecayDelta)
		if value != score.Value {
			resolution.ScoreEvents = append(resolution.ScoreEvents, storage.ScoreEventRecord{
				ID:         fmt.Sprintf("%s:decay:%d", ownerID, now.Unix()),
				OwnerID:    ownerID,
				Delta:      scoring.DecayDelta,
				Value:      value,
				Cause:      string(scoring.CauseDecay),
				OccurredAt: now,
			})
			score.Value = value
			score.LastUpdatedAt = now
		}
		score.LastDecayAt = now
		scoreChanged = true
	}

	// Lockout timer: elapsed locks either clear or re-arm depending on the
	// recovered score.
	next, transition := lockout.Evaluate(lockState, score.Value, now, lockState.TriggerReason, s.cfg.Lockout)
	if transition != lockout.TransitionNone {
		lockState = next
		lockChanged = true
		if transition == lockout.TransitionRearmed {
			pending = append(pending, lockEvent(ownerID, lockState, transition, now))
		}
	}

	if scoreChanged {
		resolution.Score = &score
	}
	if lockChanged {
		lockRecord := recordFromLockout(ownerID, lockState, now)
		resolution.Lockout = &lockRecord
	}

	if scoreChanged || lockChanged ||
		len(resolution.FinalizedCycles) > 0 || len(resolution.NewCycles) > 0 ||
		len(resolution.ProtocolUpdates) > 0 {
		if err := s.store.ApplyResolution(ctx, resolution); err != nil {
			return err
		}
	}

	for _, event := range pending {
		s.notify(ctx, event)
	}

	return s.sendReminders(ctx, ownerID, graceByProtocol, now)
}

// sendReminders nudges the owner for every pending cycle whose proof window
// is currently open and unreminded. The sent mark persists before counting a
// reminder delivered so retries stay bounded to one per cycle.
func (s *Service) sendReminders(ctx context.Context, ownerID string, graceByProtocol map[string]time.Duration, now time.Time) error {
	cycles, err := s.store.ListPendingCyclesByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, record := range cycles {
		if record.ReminderSentAt != nil {
			continue
		}
		grace, ok := graceByProtocol[record.ProtocolID]
		if !ok {
			continue
		}
		cycle := protocol.CycleFromRecord(record)
		if cycle.DueAt.After(now) || now.After(cycle.Deadline(grace)) {
			continue
		}
		if err := s.store.MarkReminderSent(ctx, cycle.ID, now); err != nil {
			return err
		}
		s.notify(ctx, notify.Event{
			OwnerID:    ownerID,
			Topic:      notify.TopicCycleReminder,
			Message:    "proof window is open",
			DedupeKey:  notify.TopicCycleReminder + ":" + cycle.ID,
			OccurredAt: now,
		})
	}
	return nil
}

func lockEvent(ownerID string, state lockout.State, transition lockout.Transition, now time.Time) notify.Event {
	event := notify.Event{OwnerID: ownerID, OccurredAt: now}
	switch transition {
	case lockout.TransitionRearmed:
		event.Topic = notify.TopicLockoutRearmed
		event.Message = "lockout extended: score still below threshold at unlock time"
		if state.UnlockAt != nil {
			event.DedupeKey = fmt.Sprintf("%s:%s:%d", notify.TopicLockoutRearmed, ownerID, state.UnlockAt.Unix())
		}
	default:
		event.Topic = notify.TopicLockoutTriggered
		event.Message = "accountability score fell below the lockout threshold"
		if state.LockedAt != nil {
			event.DedupeKey = fmt.Sprintf("%s:%s:%d", notify.TopicLockoutTriggered, ownerID, state.LockedAt.Unix())
		}
	}
	return event
}

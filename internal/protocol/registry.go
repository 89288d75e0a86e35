package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/ironwill-app/ironwill/internal/errors"
	"github.com/ironwill-app/ironwill/internal/platform/id"
	"github.com/ironwill-app/ironwill/internal/storage"
)

// Registry owns protocol lifecycle: commitment, archival, and the pure
// planning of cycle transitions. Score and lockout effects of a plan are
// composed and persisted by the orchestrator so each call stays
// all-or-nothing.
type Registry struct {
	store storage.ProtocolStore
	clock func() time.Time
	newID func() (string, error)
}

// NewRegistry constructs a protocol registry.
func NewRegistry(store storage.ProtocolStore, clock func() time.Time, newID func() (string, error)) *Registry {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Registry{store: store, clock: clock, newID: newID}
}

// CommitInput describes one protocol commitment request.
type CommitInput struct {
	OwnerID     string
	Title       string
	Schedule    Schedule
	GracePeriod time.Duration
}

// Commit records a new protocol and opens its first cycle.
func (r *Registry) Commit(ctx context.Context, input CommitInput) (Protocol, Cycle, error) {
	if r == nil || r.store == nil {
		return Protocol{}, Cycle{}, fmt.Errorf("protocol store is not configured")
	}
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return Protocol{}, Cycle{}, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Protocol{}, Cycle{}, apperrors.New(apperrors.CodeTitleEmpty, "protocol title is required")
	}
	if input.GracePeriod < 0 {
		return Protocol{}, Cycle{}, apperrors.New(apperrors.CodeGracePeriodInvalid, "grace period must not be negative")
	}
	if err := input.Schedule.Validate(); err != nil {
		return Protocol{}, Cycle{}, apperrors.Wrap(apperrors.CodeInvalidSchedule, "invalid schedule", err)
	}

	now := r.clock().UTC()
	firstDue, err := input.Schedule.NextDue(now)
	if err != nil || !firstDue.After(now) {
		return Protocol{}, Cycle{}, apperrors.New(apperrors.CodeInvalidSchedule, "schedule yields no future due time")
	}

	protocolID, err := r.newID()
	if err != nil {
		return Protocol{}, Cycle{}, err
	}
	cycleID, err := r.newID()
	if err != nil {
		return Protocol{}, Cycle{}, err
	}

	p := Protocol{
		ID:             protocolID,
		OwnerID:        ownerID,
		Title:          title,
		Schedule:       input.Schedule,
		GracePeriod:    input.GracePeriod,
		Status:         StatusScheduled,
		CurrentCycleID: cycleID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	c := Cycle{
		ID:         cycleID,
		ProtocolID: protocolID,
		OwnerID:    ownerID,
		DueAt:      firstDue,
		Outcome:    OutcomePending,
		CreatedAt:  now,
	}
	if err := r.store.CreateProtocolWithCycle(ctx, RecordFromProtocol(p), RecordFromCycle(c)); err != nil {
		return Protocol{}, Cycle{}, err
	}
	return p, c, nil
}

// Archive stops a protocol from advancing. The protocol row is retained.
func (r *Registry) Archive(ctx context.Context, protocolID string) (Protocol, error) {
	if r == nil || r.store == nil {
		return Protocol{}, fmt.Errorf("protocol store is not configured")
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return Protocol{}, apperrors.New(apperrors.CodeNotFound, "protocol id is required")
	}
	record, err := r.store.ArchiveProtocol(ctx, protocolID, r.clock().UTC())
	if err != nil {
		return Protocol{}, err
	}
	return ProtocolFromRecord(record), nil
}

// AdvancePlan is the computed effect of rolling one protocol forward to now:
// zero or more elapsed cycles finalized as missed, the replacement pending
// cycle when any were finalized, and the protocol's updated status.
type AdvancePlan struct {
	Protocol Protocol
	Missed   []Cycle
	Next     *Cycle
}

// PlanAdvance computes the idempotent advance of a protocol's current cycle.
// Every occurrence whose grace window closed before now finalizes as missed,
// so elapsed wall time rather than tick count drives the state. It returns
// nil when nothing changed.
func (r *Registry) PlanAdvance(p Protocol, current Cycle, now time.Time) (*AdvancePlan, error) {
	if p.Archived() || current.Outcome.Terminal() {
		return nil, nil
	}
	now = now.UTC()

	plan := &AdvancePlan{Protocol: p}
	cursor := current
	for cursor.Deadline(p.GracePeriod).Before(now) {
		finalized := cursor
		finalized.Outcome = OutcomeMissed
		finalizedAt := cursor.Deadline(p.GracePeriod)
		finalized.FinalizedAt = &finalizedAt
		plan.Missed = append(plan.Missed, finalized)

		nextDue, err := p.Schedule.NextDue(cursor.DueAt)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidSchedule, "compute next due time", err)
		}
		nextID, err := r.newID()
		if err != nil {
			return nil, err
		}
		cursor = Cycle{
			ID:         nextID,
			ProtocolID: p.ID,
			OwnerID:    p.OwnerID,
			DueAt:      nextDue,
			Outcome:    OutcomePending,
			CreatedAt:  now,
		}
	}

	if len(plan.Missed) > 0 {
		next := cursor
		plan.Next = &next
		plan.Protocol.CurrentCycleID = next.ID
		plan.Protocol.Status = StatusMissed
		plan.Protocol.UpdatedAt = now
		if !next.DueAt.After(now) {
			plan.Protocol.Status = StatusAwaitingProof
		}
		return plan, nil
	}

	// No finalization due; the only possible movement is scheduled →
	// awaiting proof once the due time passes.
	if p.Status == StatusScheduled && !current.DueAt.After(now) {
		plan.Protocol.Status = StatusAwaitingProof
		plan.Protocol.UpdatedAt = now
		return plan, nil
	}
	return nil, nil
}

// SubmitPlan is the computed effect of accepting proof for a cycle: the
// finalized cycle, its replacement, and the protocol's updated status.
type SubmitPlan struct {
	Protocol  Protocol
	Finalized Cycle
	Next      Cycle
}

// PlanSubmit computes proof acceptance for the protocol's current cycle.
// Proof after the grace window is rejected, not marked late; the cycle is
// left untouched for the next advance to finalize as missed.
func (r *Registry) PlanSubmit(p Protocol, current Cycle, proofRef string, now time.Time) (*SubmitPlan, error) {
	if p.Archived() {
		return nil, apperrors.New(apperrors.CodeProtocolArchived, "protocol is archived")
	}
	if current.Outcome.Terminal() {
		return nil, apperrors.New(apperrors.CodeCycleNotPending, "cycle outcome is already finalized")
	}
	now = now.UTC()
	if now.After(current.Deadline(p.GracePeriod)) {
		return nil, apperrors.New(apperrors.CodeDeadlineExceeded, "proof window closed")
	}

	finalized := current
	outcome := OutcomeOnTime
	if now.After(current.DueAt) {
		outcome = OutcomeLate
	}
	finalized.Outcome = outcome
	finalized.ProofRef = proofRef
	submittedAt := now
	finalized.SubmittedAt = &submittedAt
	finalized.FinalizedAt = &submittedAt

	nextDue, err := p.Schedule.NextDue(current.DueAt)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidSchedule, "compute next due time", err)
	}
	nextID, err := r.newID()
	if err != nil {
		return nil, err
	}
	next := Cycle{
		ID:         nextID,
		ProtocolID: p.ID,
		OwnerID:    p.OwnerID,
		DueAt:      nextDue,
		Outcome:    OutcomePending,
		CreatedAt:  now,
	}

	updated := p
	updated.Status = StatusVerified
	updated.CurrentCycleID = next.ID
	updated.UpdatedAt = now
	return &SubmitPlan{Protocol: updated, Finalized: finalized, Next: next}, nil
}

// Package engine orchestrates protocol lifecycle, proof adjudication, score
// movement, and lockout transitions behind one public contract.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/ironwill-app/ironwill/internal/errors"
	"github.com/ironwill-app/ironwill/internal/lockout"
	"github.com/ironwill-app/ironwill/internal/notify"
	"github.com/ironwill-app/ironwill/internal/platform/id"
	"github.com/ironwill-app/ironwill/internal/platform/timeouts"
	"github.com/ironwill-app/ironwill/internal/proofstore"
	"github.com/ironwill-app/ironwill/internal/protocol"
	"github.com/ironwill-app/ironwill/internal/scoring"
	"github.com/ironwill-app/ironwill/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ironwill-app/ironwill/internal/engine"

// Config tunes engine behavior. Zero values fall back to defaults.
type Config struct {
	Lockout         lockout.Config
	DecayInterval   time.Duration
	ProofPutTimeout time.Duration
	NotifyTimeout   time.Duration
}

func (c Config) normalized() Config {
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = lockout.DefaultConfig().Threshold
	}
	if c.Lockout.Duration <= 0 {
		c.Lockout.Duration = lockout.DefaultConfig().Duration
	}
	if c.DecayInterval <= 0 {
		c.DecayInterval = 24 * time.Hour
	}
	if c.ProofPutTimeout <= 0 {
		c.ProofPutTimeout = timeouts.ProofStorePut
	}
	if c.NotifyTimeout <= 0 {
		c.NotifyTimeout = timeouts.Notify
	}
	return c
}

// Service is the accountability engine orchestrator. All mutating
// operations for one owner are serialized behind a per-owner lock;
// operations for different owners proceed in parallel.
type Service struct {
	store    storage.Store
	proofs   proofstore.Store
	notifier notify.Notifier
	registry *protocol.Registry
	clock    func() time.Time
	cfg      Config
	locks    ownerLocks
	tracer   trace.Tracer
}

// NewService constructs the engine orchestrator.
func NewService(store storage.Store, proofs proofstore.Store, notifier notify.Notifier, cfg Config, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{
		store:    store,
		proofs:   proofs,
		notifier: notifier,
		registry: protocol.NewRegistry(store, clock, newID),
		clock:    clock,
		cfg:      cfg.normalized(),
		tracer:   otel.Tracer(tracerName),
	}
}

// ScoreView is the owner's score as reported to callers.
type ScoreView struct {
	Value         float64
	LastUpdatedAt time.Time
}

// LockView is the owner's lockout state as reported to callers.
type LockView struct {
	Status        lockout.Status
	LockedAt      *time.Time
	UnlockAt      *time.Time
	TriggerReason string
}

// Snapshot is one consistent view of an owner's engine state.
type Snapshot struct {
	OwnerID      string
	Score        ScoreView
	Lock         LockView
	ActiveCycles []protocol.Cycle
}

// CommitInput describes one protocol commitment request.
type CommitInput struct {
	OwnerID     string
	Title       string
	Schedule    protocol.Schedule
	GracePeriod time.Duration
}

// CommitResult reports a committed protocol and its opening cycle.
type CommitResult struct {
	Protocol protocol.Protocol
	Cycle    protocol.Cycle
}

// Commit records a new protocol for an owner. Locked owners are rejected.
func (s *Service) Commit(ctx context.Context, input CommitInput) (CommitResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Commit")
	defer span.End()

	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return CommitResult{}, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}

	unlock := s.locks.acquire(ownerID)
	defer unlock()

	lockState, err := s.loadLockout(ctx, ownerID)
	if err != nil {
		return CommitResult{}, err
	}
	if lockState.Locked() {
		return CommitResult{}, apperrors.New(apperrors.CodeLockedOut, "owner is locked out")
	}

	p, c, err := s.registry.Commit(ctx, protocol.CommitInput{
		OwnerID:     ownerID,
		Title:       input.Title,
		Schedule:    input.Schedule,
		GracePeriod: input.GracePeriod,
	})
	if err != nil {
		return CommitResult{}, err
	}

	// First commitment opens the owner's score at the initial value.
	if err := s.ensureScore(ctx, ownerID); err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Protocol: p, Cycle: c}, nil
}

// SubmitInput describes one proof submission.
type SubmitInput struct {
	OwnerID     string
	CycleID     string
	Proof       []byte
	ContentType string
}

// SubmitResult reports the finalized cycle together with the score and lock
// state produced by the submission, as one consistent snapshot.
type SubmitResult struct {
	Cycle protocol.Cycle
	Score ScoreView
	Lock  LockView
}

// Submit adjudicates proof for a pending cycle. The proof artifact is
// validated and stored before any state mutates; a proof store failure
// aborts the call with no state change.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Submit")
	defer span.End()

	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return SubmitResult{}, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}
	cycleID := strings.TrimSpace(input.CycleID)
	if cycleID == "" {
		return SubmitResult{}, apperrors.New(apperrors.CodeNotFound, "cycle id is required")
	}
	if err := validateProof(input.Proof, input.ContentType); err != nil {
		return SubmitResult{}, err
	}

	unlock := s.locks.acquire(ownerID)
	defer unlock()

	now := s.clock().UTC()

	lockState, err := s.loadLockout(ctx, ownerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if lockState.Locked() {
		return SubmitResult{}, apperrors.New(apperrors.CodeLockedOut, "owner is locked out")
	}

	cycleRecord, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return SubmitResult{}, apperrors.New(apperrors.CodeNotFound, "cycle not found")
		}
		return SubmitResult{}, err
	}
	if cycleRecord.OwnerID != ownerID {
		return SubmitResult{}, apperrors.New(apperrors.CodeNotFound, "cycle not found")
	}
	protocolRecord, err := s.store.GetProtocol(ctx, cycleRecord.ProtocolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return SubmitResult{}, apperrors.New(apperrors.CodeNotFound, "protocol not found")
		}
		return SubmitResult{}, err
	}

	p := protocol.ProtocolFromRecord(protocolRecord)
	current := protocol.CycleFromRecord(cycleRecord)

	// The content address is pure, so the plan can carry the final ref
	// before the artifact is stored.
	ref := proofstore.RefFor(input.Proof)
	plan, err := s.registry.PlanSubmit(p, current, string(ref), now)
	if err != nil {
		return SubmitResult{}, err
	}

	checkCtx, cancelCheck := context.WithTimeout(ctx, timeouts.ProofStoreCheck)
	stored, err := s.proofs.Exists(checkCtx, ref)
	cancelCheck()
	if err != nil {
		return SubmitResult{}, apperrors.Wrap(apperrors.CodeProofStoreUnavailable, "check proof artifact", err)
	}
	if !stored {
		putCtx, cancel := context.WithTimeout(ctx, s.cfg.ProofPutTimeout)
		defer cancel()
		if _, err := s.proofs.Put(putCtx, input.Proof, proofstore.Metadata{
			OwnerID:     ownerID,
			ProtocolID:  p.ID,
			CycleID:     current.ID,
			ContentType: input.ContentType,
		}); err != nil {
			return SubmitResult{}, apperrors.Wrap(apperrors.CodeProofStoreUnavailable, "store proof artifact", err)
		}
	}

	score, err := s.loadScore(ctx, ownerID, now)
	if err != nil {
		return SubmitResult{}, err
	}
	delta, cause, ok := scoring.DeltaFor(plan.Finalized.Outcome)
	if !ok {
		return SubmitResult{}, fmt.Errorf("no score delta for outcome %s", plan.Finalized.Outcome)
	}
	value := scoring.Apply(score.Value, delta)
	event := storage.ScoreEventRecord{
		ID:         plan.Finalized.ID + ":" + string(cause),
		OwnerID:    ownerID,
		Delta:      delta,
		Value:      value,
		Cause:      string(cause),
		CycleID:    plan.Finalized.ID,
		OccurredAt: now,
	}
	score.Value = value
	score.LastUpdatedAt = now
	score.LastOutcomeAt = now

	reason := fmt.Sprintf("cycle %s finalized %s", plan.Finalized.ID, plan.Finalized.Outcome)
	nextLock, transition := lockout.Evaluate(lockState, value, now, reason, s.cfg.Lockout)
	lockRecord := recordFromLockout(ownerID, nextLock, now)

	resolution := storage.Resolution{
		OwnerID:         ownerID,
		FinalizedCycles: []storage.CycleRecord{protocol.RecordFromCycle(plan.Finalized)},
		NewCycles:       []storage.CycleRecord{protocol.RecordFromCycle(plan.Next)},
		ProtocolUpdates: []storage.ProtocolRecord{protocol.RecordFromProtocol(plan.Protocol)},
		ScoreEvents:     []storage.ScoreEventRecord{event},
		Score:           &score,
		Lockout:         &lockRecord,
	}
	if err := s.store.ApplyResolution(ctx, resolution); err != nil {
		return SubmitResult{}, err
	}

	if transition == lockout.TransitionLocked {
		s.notify(ctx, lockEvent(ownerID, nextLock, transition, now))
	}

	return SubmitResult{
		Cycle: plan.Finalized,
		Score: ScoreView{Value: score.Value, LastUpdatedAt: score.LastUpdatedAt},
		Lock:  lockViewFrom(nextLock),
	}, nil
}

// Archive stops a protocol from advancing. Locked owners are rejected.
func (s *Service) Archive(ctx context.Context, ownerID, protocolID string) (protocol.Protocol, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Archive")
	defer span.End()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return protocol.Protocol{}, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}

	unlock := s.locks.acquire(ownerID)
	defer unlock()

	lockState, err := s.loadLockout(ctx, ownerID)
	if err != nil {
		return protocol.Protocol{}, err
	}
	if lockState.Locked() {
		return protocol.Protocol{}, apperrors.New(apperrors.CodeLockedOut, "owner is locked out")
	}

	record, err := s.store.GetProtocol(ctx, protocolID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return protocol.Protocol{}, apperrors.New(apperrors.CodeNotFound, "protocol not found")
		}
		return protocol.Protocol{}, err
	}
	if record.OwnerID != ownerID {
		return protocol.Protocol{}, apperrors.New(apperrors.CodeNotFound, "protocol not found")
	}
	return s.registry.Archive(ctx, protocolID)
}

// Status returns a read-only snapshot of one owner's engine state.
func (s *Service) Status(ctx context.Context, ownerID string) (Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Status")
	defer span.End()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Snapshot{}, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}

	unlock := s.locks.acquire(ownerID)
	defer unlock()

	now := s.clock().UTC()
	score, err := s.loadScore(ctx, ownerID, now)
	if err != nil {
		return Snapshot{}, err
	}
	lockState, err := s.loadLockout(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	pending, err := s.store.ListPendingCyclesByOwner(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	cycles := make([]protocol.Cycle, 0, len(pending))
	for _, record := range pending {
		cycles = append(cycles, protocol.CycleFromRecord(record))
	}
	return Snapshot{
		OwnerID:      ownerID,
		Score:        ScoreView{Value: score.Value, LastUpdatedAt: score.LastUpdatedAt},
		Lock:         lockViewFrom(lockState),
		ActiveCycles: cycles,
	}, nil
}

// ScoreHistory lists an owner's recent score events, newest first.
func (s *Service) ScoreHistory(ctx context.Context, ownerID string, limit int) ([]storage.ScoreEventRecord, error) {
	ctx, span := s.tracer.Start(ctx, "engine.ScoreHistory")
	defer span.End()

	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperrors.New(apperrors.CodeOwnerEmpty, "owner id is required")
	}
	return s.store.ListScoreEvents(ctx, ownerID, limit)
}

func validateProof(data []byte, contentType string) error {
	err := proofstore.Validate(data, contentType)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, proofstore.ErrEmpty):
		return apperrors.New(apperrors.CodeProofEmpty, "proof content is required")
	case errors.Is(err, proofstore.ErrTooLarge):
		return apperrors.New(apperrors.CodeProofTooLarge, "proof content exceeds the size limit")
	case errors.Is(err, proofstore.ErrUnsupportedType):
		return apperrors.New(apperrors.CodeProofUnsupportedType, "proof content type is not supported")
	default:
		return err
	}
}

func (s *Service) loadScore(ctx context.Context, ownerID string, now time.Time) (storage.ScoreRecord, error) {
	record, err := s.store.GetScore(ctx, ownerID)
	if err == nil {
		return record, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.ScoreRecord{
			OwnerID:       ownerID,
			Value:         scoring.InitialValue,
			LastUpdatedAt: now,
			LastDecayAt:   now,
		}, nil
	}
	return storage.ScoreRecord{}, err
}

func (s *Service) ensureScore(ctx context.Context, ownerID string) error {
	_, err := s.store.GetScore(ctx, ownerID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	now := s.clock().UTC()
	initial := storage.ScoreRecord{
		OwnerID:       ownerID,
		Value:         scoring.InitialValue,
		LastUpdatedAt: now,
		LastDecayAt:   now,
	}
	return s.store.ApplyResolution(ctx, storage.Resolution{OwnerID: ownerID, Score: &initial})
}

func (s *Service) loadLockout(ctx context.Context, ownerID string) (lockout.State, error) {
	record, err := s.store.GetLockout(ctx, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return lockout.State{Status: lockout.StatusUnlocked}, nil
		}
		return lockout.State{}, err
	}
	return lockout.State{
		Status:        lockout.Status(record.Status),
		LockedAt:      record.LockedAt,
		UnlockAt:      record.UnlockAt,
		TriggerReason: record.TriggerReason,
	}, nil
}

func recordFromLockout(ownerID string, state lockout.State, now time.Time) storage.LockoutRecord {
	return storage.LockoutRecord{
		OwnerID:       ownerID,
		Status:        string(state.Status),
		LockedAt:      state.LockedAt,
		UnlockAt:      state.UnlockAt,
		TriggerReason: state.TriggerReason,
		UpdatedAt:     now,
	}
}

func lockViewFrom(state lockout.State) LockView {
	return LockView{
		Status:        state.Status,
		LockedAt:      state.LockedAt,
		UnlockAt:      state.UnlockAt,
		TriggerReason: state.TriggerReason,
	}
}

func (s *Service) notify(ctx context.Context, event notify.Event) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, event); err != nil {
		// Best-effort: notification failures never affect engine state.
		log.Printf("notify owner_id=%s topic=%s failed: %v", event.OwnerID, event.Topic, err)
	}
}

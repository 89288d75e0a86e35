package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/ironwill-app/ironwill/internal/errors"
	"github.com/ironwill-app/ironwill/internal/storage"
)

type fakeProtocolStore struct {
	protocols map[string]storage.ProtocolRecord
	cycles    map[string]storage.CycleRecord
}

func newFakeProtocolStore() *fakeProtocolStore {
	return &fakeProtocolStore{
		protocols: make(map[string]storage.ProtocolRecord),
		cycles:    make(map[string]storage.CycleRecord),
	}
}

func (s *fakeProtocolStore) CreateProtocolWithCycle(_ context.Context, p storage.ProtocolRecord, c storage.CycleRecord) error {
	if _, exists := s.protocols[p.ID]; exists {
		return storage.ErrConflict
	}
	s.protocols[p.ID] = p
	s.cycles[c.ID] = c
	return nil
}

func (s *fakeProtocolStore) GetProtocol(_ context.Context, protocolID string) (storage.ProtocolRecord, error) {
	record, ok := s.protocols[protocolID]
	if !ok {
		return storage.ProtocolRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeProtocolStore) ListProtocolsByOwner(_ context.Context, ownerID string, includeArchived bool) ([]storage.ProtocolRecord, error) {
	var out []storage.ProtocolRecord
	for _, record := range s.protocols {
		if record.OwnerID != ownerID {
			continue
		}
		if record.ArchivedAt != nil && !includeArchived {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *fakeProtocolStore) ArchiveProtocol(_ context.Context, protocolID string, archivedAt time.Time) (storage.ProtocolRecord, error) {
	record, ok := s.protocols[protocolID]
	if !ok {
		return storage.ProtocolRecord{}, storage.ErrNotFound
	}
	record.ArchivedAt = &archivedAt
	record.Status = string(StatusArchived)
	record.UpdatedAt = archivedAt
	s.protocols[protocolID] = record
	return record, nil
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDs(ids ...string) func() (string, error) {
	index := 0
	return func() (string, error) {
		if index >= len(ids) {
			return "", errors.New("id sequence exhausted")
		}
		value := ids[index]
		index++
		return value, nil
	}
}

func TestCommitCreatesProtocolAndFirstCycle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	store := newFakeProtocolStore()
	registry := NewRegistry(store, fixedClock(now), sequentialIDs("proto-1", "cycle-1"))

	p, c, err := registry.Commit(context.Background(), CommitInput{
		OwnerID:     "owner-1",
		Title:       "evening run",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p.Status != StatusScheduled {
		t.Fatalf("expected scheduled status, got %s", p.Status)
	}
	if p.CurrentCycleID != c.ID {
		t.Fatalf("expected current cycle %s, got %s", c.ID, p.CurrentCycleID)
	}
	if want := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC); !c.DueAt.Equal(want) {
		t.Fatalf("expected first due %v, got %v", want, c.DueAt)
	}
	if c.Outcome != OutcomePending {
		t.Fatalf("expected pending first cycle, got %s", c.Outcome)
	}
	if len(store.protocols) != 1 || len(store.cycles) != 1 {
		t.Fatalf("expected one protocol and one cycle persisted, got %d/%d", len(store.protocols), len(store.cycles))
	}
}

func TestCommitRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(newFakeProtocolStore(), fixedClock(time.Now()), sequentialIDs("p", "c"))
	_, _, err := registry.Commit(context.Background(), CommitInput{
		OwnerID:  "owner-1",
		Title:    "stretching",
		Schedule: Schedule{Frequency: "hourly", DueTime: "22:00"},
	})
	if !apperrors.IsCode(err, apperrors.CodeInvalidSchedule) {
		t.Fatalf("expected INVALID_SCHEDULE, got %v", err)
	}
}

func TestPlanAdvanceFinalizesOverdueCycleAsMissed(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("cycle-2"))
	p := Protocol{
		ID:             "proto-1",
		OwnerID:        "owner-1",
		Schedule:       Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod:    30 * time.Minute,
		Status:         StatusAwaitingProof,
		CurrentCycleID: "cycle-1",
	}
	current := Cycle{
		ID:         "cycle-1",
		ProtocolID: "proto-1",
		OwnerID:    "owner-1",
		DueAt:      time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),
		Outcome:    OutcomePending,
	}

	plan, err := registry.PlanAdvance(p, current, time.Date(2026, 3, 4, 22, 31, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan advance: %v", err)
	}
	if plan == nil {
		t.Fatal("expected an advance plan")
	}
	if len(plan.Missed) != 1 {
		t.Fatalf("expected one missed cycle, got %d", len(plan.Missed))
	}
	if plan.Missed[0].Outcome != OutcomeMissed {
		t.Fatalf("expected missed outcome, got %s", plan.Missed[0].Outcome)
	}
	if plan.Next == nil {
		t.Fatal("expected a replacement cycle")
	}
	if want := time.Date(2026, 3, 5, 22, 0, 0, 0, time.UTC); !plan.Next.DueAt.Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, plan.Next.DueAt)
	}
	if plan.Protocol.CurrentCycleID != plan.Next.ID {
		t.Fatalf("expected protocol to point at replacement cycle")
	}
	if plan.Protocol.Status != StatusMissed {
		t.Fatalf("expected missed protocol status, got %s", plan.Protocol.Status)
	}
}

func TestPlanAdvanceCatchesUpAllElapsedOccurrences(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("c2", "c3", "c4"))
	p := Protocol{
		ID:          "proto-1",
		OwnerID:     "owner-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
		Status:      StatusAwaitingProof,
	}
	current := Cycle{
		ID:         "c1",
		ProtocolID: "proto-1",
		OwnerID:    "owner-1",
		DueAt:      time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC),
		Outcome:    OutcomePending,
	}

	// Three full days elapsed: March 1, 2, and 3 occurrences all missed.
	plan, err := registry.PlanAdvance(p, current, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan advance: %v", err)
	}
	if len(plan.Missed) != 3 {
		t.Fatalf("expected three missed cycles, got %d", len(plan.Missed))
	}
	if want := time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC); !plan.Next.DueAt.Equal(want) {
		t.Fatalf("expected catch-up due %v, got %v", want, plan.Next.DueAt)
	}
}

func TestPlanAdvanceIsIdempotentWhenNothingDue(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs())
	p := Protocol{
		ID:          "proto-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
		Status:      StatusAwaitingProof,
	}
	current := Cycle{
		ID:      "c1",
		DueAt:   time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),
		Outcome: OutcomePending,
	}

	// Inside the grace window: nothing to finalize.
	plan, err := registry.PlanAdvance(p, current, time.Date(2026, 3, 4, 22, 15, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan advance: %v", err)
	}
	if plan != nil {
		t.Fatalf("expected nil plan inside grace, got %+v", plan)
	}
}

func TestPlanAdvanceMarksAwaitingProofAtDueTime(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs())
	p := Protocol{
		ID:          "proto-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
		Status:      StatusScheduled,
	}
	current := Cycle{
		ID:      "c1",
		DueAt:   time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),
		Outcome: OutcomePending,
	}

	plan, err := registry.PlanAdvance(p, current, time.Date(2026, 3, 4, 22, 5, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan advance: %v", err)
	}
	if plan == nil {
		t.Fatal("expected status-only plan")
	}
	if plan.Protocol.Status != StatusAwaitingProof {
		t.Fatalf("expected awaiting_proof, got %s", plan.Protocol.Status)
	}
	if len(plan.Missed) != 0 || plan.Next != nil {
		t.Fatal("expected no cycle movement at due time")
	}
}

func TestPlanAdvanceSkipsArchivedProtocols(t *testing.T) {
	t.Parallel()

	archivedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs())
	p := Protocol{
		ID:          "proto-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
		ArchivedAt:  &archivedAt,
	}
	current := Cycle{ID: "c1", DueAt: time.Date(2026, 2, 1, 22, 0, 0, 0, time.UTC), Outcome: OutcomePending}

	plan, err := registry.PlanAdvance(p, current, time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan advance: %v", err)
	}
	if plan != nil {
		t.Fatal("expected archived protocol to never advance")
	}
}

func TestPlanSubmitOnTimeAndLate(t *testing.T) {
	t.Parallel()

	p := Protocol{
		ID:          "proto-1",
		OwnerID:     "owner-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
		Status:      StatusAwaitingProof,
	}
	current := Cycle{
		ID:         "c1",
		ProtocolID: "proto-1",
		OwnerID:    "owner-1",
		DueAt:      time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),
		Outcome:    OutcomePending,
	}

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("c2"))
	plan, err := registry.PlanSubmit(p, current, "sha256/abc", time.Date(2026, 3, 4, 21, 50, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan submit: %v", err)
	}
	if plan.Finalized.Outcome != OutcomeOnTime {
		t.Fatalf("expected on_time, got %s", plan.Finalized.Outcome)
	}
	if plan.Finalized.ProofRef != "sha256/abc" {
		t.Fatalf("expected proof ref recorded, got %q", plan.Finalized.ProofRef)
	}
	if plan.Protocol.Status != StatusVerified {
		t.Fatalf("expected verified status, got %s", plan.Protocol.Status)
	}
	if want := time.Date(2026, 3, 5, 22, 0, 0, 0, time.UTC); !plan.Next.DueAt.Equal(want) {
		t.Fatalf("expected next due %v, got %v", want, plan.Next.DueAt)
	}

	registry = NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("c2"))
	plan, err = registry.PlanSubmit(p, current, "sha256/abc", time.Date(2026, 3, 4, 22, 10, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("plan late submit: %v", err)
	}
	if plan.Finalized.Outcome != OutcomeLate {
		t.Fatalf("expected late, got %s", plan.Finalized.Outcome)
	}
}

func TestPlanSubmitRejectsAfterGrace(t *testing.T) {
	t.Parallel()

	p := Protocol{
		ID:          "proto-1",
		Schedule:    Schedule{Frequency: FrequencyDaily, DueTime: "22:00"},
		GracePeriod: 30 * time.Minute,
	}
	current := Cycle{
		ID:      "c1",
		DueAt:   time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC),
		Outcome: OutcomePending,
	}

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("c2"))
	_, err := registry.PlanSubmit(p, current, "sha256/abc", time.Date(2026, 3, 4, 22, 31, 0, 0, time.UTC))
	if !apperrors.IsCode(err, apperrors.CodeDeadlineExceeded) {
		t.Fatalf("expected DEADLINE_EXCEEDED, got %v", err)
	}
}

func TestPlanSubmitRejectsFinalizedCycle(t *testing.T) {
	t.Parallel()

	p := Protocol{ID: "proto-1", Schedule: Schedule{Frequency: FrequencyDaily, DueTime: "22:00"}}
	current := Cycle{ID: "c1", Outcome: OutcomeOnTime}

	registry := NewRegistry(newFakeProtocolStore(), nil, sequentialIDs("c2"))
	_, err := registry.PlanSubmit(p, current, "sha256/abc", time.Now())
	if !apperrors.IsCode(err, apperrors.CodeCycleNotPending) {
		t.Fatalf("expected CYCLE_NOT_PENDING, got %v", err)
	}
}

func TestArchiveRetainsProtocol(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	store := newFakeProtocolStore()
	registry := NewRegistry(store, fixedClock(now), sequentialIDs("proto-1", "cycle-1"))
	p, _, err := registry.Commit(context.Background(), CommitInput{
		OwnerID:  "owner-1",
		Title:    "journal",
		Schedule: Schedule{Frequency: FrequencyDaily, DueTime: "21:00"},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	archived, err := registry.Archive(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived() {
		t.Fatal("expected archived protocol")
	}
	if _, ok := store.protocols[p.ID]; !ok {
		t.Fatal("expected protocol row to be retained")
	}
}

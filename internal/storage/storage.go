// Package storage defines the persistence records and store boundaries for
// the accountability engine.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// ProtocolRecord stores one committed protocol definition and its cycle state.
type ProtocolRecord struct {
	ID             string
	OwnerID        string
	Title          string
	Frequency      string
	DueTime        string
	Weekday        int
	GracePeriod    time.Duration
	Status         string
	CurrentCycleID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ArchivedAt     *time.Time
}

// CycleRecord stores one occurrence of a protocol's recurring obligation.
// Cycle rows are append-only; a finalized cycle is never rewritten.
type CycleRecord struct {
	ID             string
	ProtocolID     string
	OwnerID        string
	DueAt          time.Time
	ProofRef       string
	SubmittedAt    *time.Time
	Outcome        string
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	FinalizedAt    *time.Time
}

// ScoreRecord stores one owner's current accountability score.
// LastOutcomeAt is zero until the first cycle outcome lands; it gates the
// inactivity decay.
type ScoreRecord struct {
	OwnerID       string
	Value         float64
	LastUpdatedAt time.Time
	LastDecayAt   time.Time
	LastOutcomeAt time.Time
}

// ScoreEventRecord stores one append-only score change with its cause.
type ScoreEventRecord struct {
	ID         string
	OwnerID    string
	Delta      float64
	Value      float64
	Cause      string
	CycleID    string
	OccurredAt time.Time
}

// LockoutRecord stores one owner's lockout state.
type LockoutRecord struct {
	OwnerID       string
	Status        string
	LockedAt      *time.Time
	UnlockAt      *time.Time
	TriggerReason string
	UpdatedAt     time.Time
}

// Resolution is one owner-scoped batch of state transitions committed
// atomically: finalized cycles, their replacement cycles, protocol status
// updates, score movement, and the resulting lockout state.
type Resolution struct {
	OwnerID         string
	FinalizedCycles []CycleRecord
	NewCycles       []CycleRecord
	ProtocolUpdates []ProtocolRecord
	ScoreEvents     []ScoreEventRecord
	Score           *ScoreRecord
	Lockout         *LockoutRecord
}

// ProtocolStore persists protocol definitions.
type ProtocolStore interface {
	CreateProtocolWithCycle(ctx context.Context, protocol ProtocolRecord, cycle CycleRecord) error
	GetProtocol(ctx context.Context, protocolID string) (ProtocolRecord, error)
	ListProtocolsByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]ProtocolRecord, error)
	ArchiveProtocol(ctx context.Context, protocolID string, archivedAt time.Time) (ProtocolRecord, error)
}

// CycleStore reads cycle state and records reminder marks.
type CycleStore interface {
	GetCycle(ctx context.Context, cycleID string) (CycleRecord, error)
	GetPendingCycle(ctx context.Context, protocolID string) (CycleRecord, error)
	ListPendingCyclesByOwner(ctx context.Context, ownerID string) ([]CycleRecord, error)
	MarkReminderSent(ctx context.Context, cycleID string, sentAt time.Time) error
}

// ScoreStore reads score state and history.
type ScoreStore interface {
	GetScore(ctx context.Context, ownerID string) (ScoreRecord, error)
	ListScoreEvents(ctx context.Context, ownerID string, limit int) ([]ScoreEventRecord, error)
}

// LockoutStore reads lockout state.
type LockoutStore interface {
	GetLockout(ctx context.Context, ownerID string) (LockoutRecord, error)
}

// OwnerStore enumerates owners with engine-managed state.
type OwnerStore interface {
	ListOwnerIDs(ctx context.Context) ([]string, error)
}

// ResolutionStore commits one owner-scoped resolution atomically.
type ResolutionStore interface {
	ApplyResolution(ctx context.Context, resolution Resolution) error
}

// Store aggregates every persistence boundary the engine requires.
type Store interface {
	ProtocolStore
	CycleStore
	ScoreStore
	LockoutStore
	OwnerStore
	ResolutionStore
	Close() error
}

// Package protocol models committed obligations and their recurring cycles.
package protocol

import "time"

// Status describes a protocol's position in its current cycle.
type Status string

const (
	// StatusScheduled means the current cycle's due time is still ahead.
	StatusScheduled Status = "scheduled"
	// StatusAwaitingProof means the due time passed and the grace window is open.
	StatusAwaitingProof Status = "awaiting_proof"
	// StatusVerified means the last finalized cycle received proof in time.
	StatusVerified Status = "verified"
	// StatusMissed means the last finalized cycle expired without proof.
	StatusMissed Status = "missed"
	// StatusArchived means the protocol no longer advances. Protocols are
	// archived, never deleted.
	StatusArchived Status = "archived"
)

// Outcome describes one cycle's terminal (or pending) result.
type Outcome string

const (
	// OutcomePending means the cycle still accepts proof.
	OutcomePending Outcome = "pending"
	// OutcomeOnTime means proof arrived at or before the due time.
	OutcomeOnTime Outcome = "on_time"
	// OutcomeLate means proof arrived after the due time but within grace.
	OutcomeLate Outcome = "late"
	// OutcomeMissed means the grace window closed without proof.
	OutcomeMissed Outcome = "missed"
)

// Terminal reports whether an outcome is final.
func (o Outcome) Terminal() bool {
	return o == OutcomeOnTime || o == OutcomeLate || o == OutcomeMissed
}

// Protocol is one recurring user-committed obligation.
type Protocol struct {
	ID             string
	OwnerID        string
	Title          string
	Schedule       Schedule
	GracePeriod    time.Duration
	Status         Status
	CurrentCycleID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ArchivedAt     *time.Time
}

// Archived reports whether the protocol stopped advancing.
func (p Protocol) Archived() bool {
	return p.ArchivedAt != nil
}

// Cycle is one occurrence of a protocol's recurrence. A finalized cycle is
// immutable.
type Cycle struct {
	ID             string
	ProtocolID     string
	OwnerID        string
	DueAt          time.Time
	ProofRef       string
	SubmittedAt    *time.Time
	Outcome        Outcome
	ReminderSentAt *time.Time
	CreatedAt      time.Time
	FinalizedAt    *time.Time
}

// Deadline returns the last instant at which proof is still accepted.
func (c Cycle) Deadline(grace time.Duration) time.Time {
	return c.DueAt.Add(grace)
}

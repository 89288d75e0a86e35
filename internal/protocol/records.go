package protocol

import (
	"time"

	"github.com/ironwill-app/ironwill/internal/storage"
)

// RecordFromProtocol converts a domain protocol to its persistence record.
func RecordFromProtocol(p Protocol) storage.ProtocolRecord {
	return storage.ProtocolRecord{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Title:          p.Title,
		Frequency:      string(p.Schedule.Frequency),
		DueTime:        p.Schedule.DueTime,
		Weekday:        int(p.Schedule.Weekday),
		GracePeriod:    p.GracePeriod,
		Status:         string(p.Status),
		CurrentCycleID: p.CurrentCycleID,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		ArchivedAt:     p.ArchivedAt,
	}
}

// ProtocolFromRecord converts a persistence record to a domain protocol.
func ProtocolFromRecord(record storage.ProtocolRecord) Protocol {
	return Protocol{
		ID:      record.ID,
		OwnerID: record.OwnerID,
		Title:   record.Title,
		Schedule: Schedule{
			Frequency: Frequency(record.Frequency),
			DueTime:   record.DueTime,
			Weekday:   time.Weekday(record.Weekday),
		},
		GracePeriod:    record.GracePeriod,
		Status:         Status(record.Status),
		CurrentCycleID: record.CurrentCycleID,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
		ArchivedAt:     record.ArchivedAt,
	}
}

// RecordFromCycle converts a domain cycle to its persistence record.
func RecordFromCycle(c Cycle) storage.CycleRecord {
	return storage.CycleRecord{
		ID:             c.ID,
		ProtocolID:     c.ProtocolID,
		OwnerID:        c.OwnerID,
		DueAt:          c.DueAt,
		ProofRef:       c.ProofRef,
		SubmittedAt:    c.SubmittedAt,
		Outcome:        string(c.Outcome),
		ReminderSentAt: c.ReminderSentAt,
		CreatedAt:      c.CreatedAt,
		FinalizedAt:    c.FinalizedAt,
	}
}

// CycleFromRecord converts a persistence record to a domain cycle.
func CycleFromRecord(record storage.CycleRecord) Cycle {
	return Cycle{
		ID:             record.ID,
		ProtocolID:     record.ProtocolID,
		OwnerID:        record.OwnerID,
		DueAt:          record.DueAt,
		ProofRef:       record.ProofRef,
		SubmittedAt:    record.SubmittedAt,
		Outcome:        Outcome(record.Outcome),
		ReminderSentAt: record.ReminderSentAt,
		CreatedAt:      record.CreatedAt,
		FinalizedAt:    record.FinalizedAt,
	}
}

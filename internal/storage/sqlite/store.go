// Package sqlite provides the SQLite-backed engine storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/ironwill-app/ironwill/internal/platform/storage/sqlitemigrate"
	"github.com/ironwill-app/ironwill/internal/storage"
	"github.com/ironwill-app/ironwill/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists engine state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens a SQLite engine store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateProtocolWithCycle inserts a protocol together with its opening cycle.
func (s *Store) CreateProtocolWithCycle(ctx context.Context, protocol storage.ProtocolRecord, cycle storage.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(protocol.ID) == "" {
		return fmt.Errorf("protocol id is required")
	}
	if strings.TrimSpace(cycle.ID) == "" {
		return fmt.Errorf("cycle id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin protocol create: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback protocol create: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := upsertProtocolExec(ctx, tx, protocol, true); err != nil {
		return rollbackWith(err)
	}
	if err := upsertCycleExec(ctx, tx, cycle); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit protocol create: %w", err)
	}
	return nil
}

// GetProtocol returns one protocol by ID.
func (s *Store) GetProtocol(ctx context.Context, protocolID string) (storage.ProtocolRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProtocolRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProtocolRecord{}, fmt.Errorf("storage is not configured")
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return storage.ProtocolRecord{}, fmt.Errorf("protocol id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_id, title, frequency, due_time, weekday,
		        grace_period_ms, status, current_cycle_id,
		        created_at, updated_at, archived_at
		   FROM protocols
		  WHERE id = ?`,
		protocolID,
	)
	return scanProtocol(row)
}

// ListProtocolsByOwner returns an owner's protocols, optionally with archived ones.
func (s *Store) ListProtocolsByOwner(ctx context.Context, ownerID string, includeArchived bool) ([]storage.ProtocolRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	query := `SELECT id, owner_id, title, frequency, due_time, weekday,
	                 grace_period_ms, status, current_cycle_id,
	                 created_at, updated_at, archived_at
	            FROM protocols
	           WHERE owner_id = ?`
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	defer rows.Close()

	var records []storage.ProtocolRecord
	for rows.Next() {
		record, err := scanProtocol(rows)
		if err != nil {
			return nil, fmt.Errorf("list protocols: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	return records, nil
}

// ArchiveProtocol marks one protocol archived. The row is retained.
func (s *Store) ArchiveProtocol(ctx context.Context, protocolID string, archivedAt time.Time) (storage.ProtocolRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ProtocolRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ProtocolRecord{}, fmt.Errorf("storage is not configured")
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return storage.ProtocolRecord{}, fmt.Errorf("protocol id is required")
	}

	millis := toMillis(archivedAt)
	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE protocols
		    SET status = 'archived', archived_at = ?, updated_at = ?
		  WHERE id = ? AND archived_at IS NULL`,
		millis,
		millis,
		protocolID,
	)
	if err != nil {
		return storage.ProtocolRecord{}, fmt.Errorf("archive protocol: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.ProtocolRecord{}, fmt.Errorf("archive protocol: %w", err)
	}
	if affected == 0 {
		// Either missing or already archived; re-read to tell the two apart.
		record, getErr := s.GetProtocol(ctx, protocolID)
		if getErr != nil {
			return storage.ProtocolRecord{}, getErr
		}
		return record, nil
	}
	return s.GetProtocol(ctx, protocolID)
}

// GetCycle returns one cycle by ID.
func (s *Store) GetCycle(ctx context.Context, cycleID string) (storage.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CycleRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CycleRecord{}, fmt.Errorf("storage is not configured")
	}
	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" {
		return storage.CycleRecord{}, fmt.Errorf("cycle id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, protocol_id, owner_id, due_at, proof_ref, submitted_at,
		        outcome, reminder_sent_at, created_at, finalized_at
		   FROM cycles
		  WHERE id = ?`,
		cycleID,
	)
	return scanCycle(row)
}

// GetPendingCycle returns a protocol's single pending cycle.
func (s *Store) GetPendingCycle(ctx context.Context, protocolID string) (storage.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.CycleRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.CycleRecord{}, fmt.Errorf("storage is not configured")
	}
	protocolID = strings.TrimSpace(protocolID)
	if protocolID == "" {
		return storage.CycleRecord{}, fmt.Errorf("protocol id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, protocol_id, owner_id, due_at, proof_ref, submitted_at,
		        outcome, reminder_sent_at, created_at, finalized_at
		   FROM cycles
		  WHERE protocol_id = ? AND outcome = 'pending'
		  ORDER BY due_at ASC
		  LIMIT 1`,
		protocolID,
	)
	return scanCycle(row)
}

// ListPendingCyclesByOwner returns every pending cycle owned by one owner.
func (s *Store) ListPendingCyclesByOwner(ctx context.Context, ownerID string) ([]storage.CycleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, protocol_id, owner_id, due_at, proof_ref, submitted_at,
		        outcome, reminder_sent_at, created_at, finalized_at
		   FROM cycles
		  WHERE owner_id = ? AND outcome = 'pending'
		  ORDER BY due_at ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending cycles: %w", err)
	}
	defer rows.Close()

	var records []storage.CycleRecord
	for rows.Next() {
		record, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("list pending cycles: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending cycles: %w", err)
	}
	return records, nil
}

// MarkReminderSent records the reminder timestamp on one cycle.
func (s *Store) MarkReminderSent(ctx context.Context, cycleID string, sentAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	cycleID = strings.TrimSpace(cycleID)
	if cycleID == "" {
		return fmt.Errorf("cycle id is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE cycles SET reminder_sent_at = ? WHERE id = ?`,
		toMillis(sentAt),
		cycleID,
	)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetScore returns one owner's score record.
func (s *Store) GetScore(ctx context.Context, ownerID string) (storage.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ScoreRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ScoreRecord{}, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return storage.ScoreRecord{}, fmt.Errorf("owner id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_id, value, last_updated_at, last_decay_at, last_outcome_at
		   FROM scores
		  WHERE owner_id = ?`,
		ownerID,
	)

	var record storage.ScoreRecord
	var lastUpdatedAt int64
	var lastDecayAt int64
	var lastOutcomeAt int64
	err := row.Scan(&record.OwnerID, &record.Value, &lastUpdatedAt, &lastDecayAt, &lastOutcomeAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ScoreRecord{}, storage.ErrNotFound
		}
		return storage.ScoreRecord{}, fmt.Errorf("get score: %w", err)
	}
	record.LastUpdatedAt = fromMillis(lastUpdatedAt)
	record.LastDecayAt = fromMillis(lastDecayAt)
	if lastOutcomeAt != 0 {
		record.LastOutcomeAt = fromMillis(lastOutcomeAt)
	}
	return record, nil
}

// ListScoreEvents returns an owner's score events, newest first.
func (s *Store) ListScoreEvents(ctx context.Context, ownerID string, limit int) ([]storage.ScoreEventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}

	query := `SELECT id, owner_id, delta, value, cause, cycle_id, occurred_at
	            FROM score_events
	           WHERE owner_id = ?
	           ORDER BY occurred_at DESC, id DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list score events: %w", err)
	}
	defer rows.Close()

	var records []storage.ScoreEventRecord
	for rows.Next() {
		var record storage.ScoreEventRecord
		var occurredAt int64
		if err := rows.Scan(
			&record.ID,
			&record.OwnerID,
			&record.Delta,
			&record.Value,
			&record.Cause,
			&record.CycleID,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("list score events: %w", err)
		}
		record.OccurredAt = fromMillis(occurredAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list score events: %w", err)
	}
	return records, nil
}

// GetLockout returns one owner's lockout record.
func (s *Store) GetLockout(ctx context.Context, ownerID string) (storage.LockoutRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.LockoutRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.LockoutRecord{}, fmt.Errorf("storage is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return storage.LockoutRecord{}, fmt.Errorf("owner id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT owner_id, status, locked_at, unlock_at, trigger_reason, updated_at
		   FROM lockouts
		  WHERE owner_id = ?`,
		ownerID,
	)

	var record storage.LockoutRecord
	var lockedAt sql.NullInt64
	var unlockAt sql.NullInt64
	var updatedAt int64
	err := row.Scan(&record.OwnerID, &record.Status, &lockedAt, &unlockAt, &record.TriggerReason, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.LockoutRecord{}, storage.ErrNotFound
		}
		return storage.LockoutRecord{}, fmt.Errorf("get lockout: %w", err)
	}
	record.LockedAt = fromNullMillis(lockedAt)
	record.UnlockAt = fromNullMillis(unlockAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// ListOwnerIDs enumerates every owner with protocol or score state.
func (s *Store) ListOwnerIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT owner_id FROM protocols
		 UNION
		 SELECT owner_id FROM scores
		 ORDER BY owner_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			return nil, fmt.Errorf("list owners: %w", err)
		}
		owners = append(owners, ownerID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

// ApplyResolution commits one owner-scoped state batch in a single transaction.
func (s *Store) ApplyResolution(ctx context.Context, resolution storage.Resolution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(resolution.OwnerID) == "" {
		return fmt.Errorf("owner id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolution write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback resolution write: %v", cause, rollbackErr)
		}
		return cause
	}

	for _, cycle := range resolution.FinalizedCycles {
		if err := upsertCycleExec(ctx, tx, cycle); err != nil {
			return rollbackWith(err)
		}
	}
	for _, cycle := range resolution.NewCycles {
		if err := upsertCycleExec(ctx, tx, cycle); err != nil {
			return rollbackWith(err)
		}
	}
	for _, protocol := range resolution.ProtocolUpdates {
		if err := upsertProtocolExec(ctx, tx, protocol, false); err != nil {
			return rollbackWith(err)
		}
	}
	for _, event := range resolution.ScoreEvents {
		if err := insertScoreEventExec(ctx, tx, event); err != nil {
			return rollbackWith(err)
		}
	}
	if resolution.Score != nil {
		if err := upsertScoreExec(ctx, tx, *resolution.Score); err != nil {
			return rollbackWith(err)
		}
	}
	if resolution.Lockout != nil {
		if err := upsertLockoutExec(ctx, tx, *resolution.Lockout); err != nil {
			return rollbackWith(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolution write: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProtocol(row rowScanner) (storage.ProtocolRecord, error) {
	var record storage.ProtocolRecord
	var gracePeriodMillis int64
	var createdAt int64
	var updatedAt int64
	var archivedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Title,
		&record.Frequency,
		&record.DueTime,
		&record.Weekday,
		&gracePeriodMillis,
		&record.Status,
		&record.CurrentCycleID,
		&createdAt,
		&updatedAt,
		&archivedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ProtocolRecord{}, storage.ErrNotFound
		}
		return storage.ProtocolRecord{}, fmt.Errorf("scan protocol: %w", err)
	}
	record.GracePeriod = time.Duration(gracePeriodMillis) * time.Millisecond
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	record.ArchivedAt = fromNullMillis(archivedAt)
	return record, nil
}

func scanCycle(row rowScanner) (storage.CycleRecord, error) {
	var record storage.CycleRecord
	var dueAt int64
	var submittedAt sql.NullInt64
	var reminderSentAt sql.NullInt64
	var createdAt int64
	var finalizedAt sql.NullInt64
	err := row.Scan(
		&record.ID,
		&record.ProtocolID,
		&record.OwnerID,
		&dueAt,
		&record.ProofRef,
		&submittedAt,
		&record.Outcome,
		&reminderSentAt,
		&createdAt,
		&finalizedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CycleRecord{}, storage.ErrNotFound
		}
		return storage.CycleRecord{}, fmt.Errorf("scan cycle: %w", err)
	}
	record.DueAt = fromMillis(dueAt)
	record.SubmittedAt = fromNullMillis(submittedAt)
	record.ReminderSentAt = fromNullMillis(reminderSentAt)
	record.CreatedAt = fromMillis(createdAt)
	record.FinalizedAt = fromNullMillis(finalizedAt)
	return record, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertProtocolExec(ctx context.Context, tx execer, record storage.ProtocolRecord, createOnly bool) error {
	conflict := `ON CONFLICT (id) DO UPDATE SET
	               title = excluded.title,
	               status = excluded.status,
	               current_cycle_id = excluded.current_cycle_id,
	               updated_at = excluded.updated_at,
	               archived_at = excluded.archived_at`
	if createOnly {
		conflict = `ON CONFLICT (id) DO NOTHING`
	}
	result, err := tx.ExecContext(
		ctx,
		`INSERT INTO protocols (
		   id, owner_id, title, frequency, due_time, weekday,
		   grace_period_ms, status, current_cycle_id,
		   created_at, updated_at, archived_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 `+conflict,
		record.ID,
		record.OwnerID,
		record.Title,
		record.Frequency,
		record.DueTime,
		record.Weekday,
		record.GracePeriod.Milliseconds(),
		record.Status,
		record.CurrentCycleID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
		toNullMillis(record.ArchivedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("write protocol: %w", err)
	}
	if createOnly {
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("write protocol: %w", err)
		}
		if affected == 0 {
			return storage.ErrConflict
		}
	}
	return nil
}

func upsertCycleExec(ctx context.Context, tx execer, record storage.CycleRecord) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO cycles (
		   id, protocol_id, owner_id, due_at, proof_ref, submitted_at,
		   outcome, reminder_sent_at, created_at, finalized_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   proof_ref = excluded.proof_ref,
		   submitted_at = excluded.submitted_at,
		   outcome = excluded.outcome,
		   reminder_sent_at = excluded.reminder_sent_at,
		   finalized_at = excluded.finalized_at`,
		record.ID,
		record.ProtocolID,
		record.OwnerID,
		toMillis(record.DueAt),
		record.ProofRef,
		toNullMillis(record.SubmittedAt),
		record.Outcome,
		toNullMillis(record.ReminderSentAt),
		toMillis(record.CreatedAt),
		toNullMillis(record.FinalizedAt),
	)
	if err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	return nil
}

func insertScoreEventExec(ctx context.Context, tx execer, record storage.ScoreEventRecord) error {
	// Event IDs are deterministic per cause, so a replayed sweep inserts
	// the same row once.
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO score_events (id, owner_id, delta, value, cause, cycle_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		record.ID,
		record.OwnerID,
		record.Delta,
		record.Value,
		record.Cause,
		record.CycleID,
		toMillis(record.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("write score event: %w", err)
	}
	return nil
}

func upsertScoreExec(ctx context.Context, tx execer, record storage.ScoreRecord) error {
	var lastOutcomeAt int64
	if !record.LastOutcomeAt.IsZero() {
		lastOutcomeAt = toMillis(record.LastOutcomeAt)
	}
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO scores (owner_id, value, last_updated_at, last_decay_at, last_outcome_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   value = excluded.value,
		   last_updated_at = excluded.last_updated_at,
		   last_decay_at = excluded.last_decay_at,
		   last_outcome_at = excluded.last_outcome_at`,
		record.OwnerID,
		record.Value,
		toMillis(record.LastUpdatedAt),
		toMillis(record.LastDecayAt),
		lastOutcomeAt,
	)
	if err != nil {
		return fmt.Errorf("write score: %w", err)
	}
	return nil
}

func upsertLockoutExec(ctx context.Context, tx execer, record storage.LockoutRecord) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO lockouts (owner_id, status, locked_at, unlock_at, trigger_reason, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   status = excluded.status,
		   locked_at = excluded.locked_at,
		   unlock_at = excluded.unlock_at,
		   trigger_reason = excluded.trigger_reason,
		   updated_at = excluded.updated_at`,
		record.OwnerID,
		record.Status,
		toNullMillis(record.LockedAt),
		toNullMillis(record.UnlockAt),
		record.TriggerReason,
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("write lockout: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)

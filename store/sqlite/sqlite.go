/*
Package sqlite provides a SQLite-backed implementation of the queue storage
interfaces.

PURPOSE:
  Implements DoctorStore, TokenStore, SlotLedger and TokenSequencer on one
  SQLite database so the scheduler survives restarts. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  queue.DoctorStore:     Doctor profiles
  queue.TokenStore:      Tokens with conditional status update
  queue.SlotLedger:      Occupancy via conditional UPDATE
  queue.TokenSequencer:  Daily counter via upsert + RETURNING

ATOMICITY:
  The invariant-bearing operations are single conditional statements:

    Admit:        UPDATE slots SET occupied = occupied + 1
                  WHERE ... AND occupied < capacity
    Release:      UPDATE slots ... AND occupied > 0
    Next:         INSERT INTO counters ... ON CONFLICT DO UPDATE
                  SET n = n + 1 RETURNING n
    UpdateStatus: UPDATE tokens SET status = ? WHERE id = ? AND status = ?

  Each statement checks and mutates in one step, so the check-then-act
  races the engine forbids cannot reappear at the storage layer.

WAL MODE:
  Opened with WAL (Write-Ahead Logging): readers don't block, one writer
  at a time, better crash recovery. A process-level write mutex keeps the
  driver from surfacing SQLITE_BUSY under concurrent handlers.

USAGE:
  st, err := sqlite.New("./data/opd.db")   // ":memory:" for tests
  if err != nil { log.Fatal(err) }
  defer st.Close()

SEE ALSO:
  - queue/store.go:  Interface definitions
  - queue/ledger.go: In-memory ledger used by tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/opd-queue/queue"
)

// Store implements all queue storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	// mu serializes writes: SQLite allows a single writer, and funneling
	// writes through one mutex avoids SQLITE_BUSY under concurrent handlers.
	mu sync.Mutex
}

// New creates a new SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and plays
	// well with the write mutex.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS doctors (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		specialty      TEXT NOT NULL,
		slot_time      TEXT NOT NULL,
		daily_capacity INTEGER NOT NULL,
		created_at     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		id           TEXT PRIMARY KEY,
		number       INTEGER NOT NULL,
		patient_name TEXT NOT NULL,
		contact      TEXT,
		source       TEXT NOT NULL,
		doctor_id    TEXT NOT NULL REFERENCES doctors(id),
		slot_time    TEXT NOT NULL,
		status       TEXT NOT NULL,
		day          TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_doctor_day
		ON tokens(doctor_id, day);
	CREATE INDEX IF NOT EXISTS idx_tokens_day
		ON tokens(day);

	-- Occupancy ledger: one row per doctor-day.
	CREATE TABLE IF NOT EXISTS slots (
		doctor_id TEXT NOT NULL,
		day       TEXT NOT NULL,
		capacity  INTEGER NOT NULL,
		occupied  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (doctor_id, day)
	);

	-- Daily token numbering: one authoritative counter per day.
	CREATE TABLE IF NOT EXISTS counters (
		day TEXT PRIMARY KEY,
		n   INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DOCTOR STORE
// =============================================================================

func (s *Store) SaveDoctor(ctx context.Context, d queue.Doctor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO doctors (id, name, specialty, slot_time, daily_capacity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			specialty = excluded.specialty,
			slot_time = excluded.slot_time,
			daily_capacity = excluded.daily_capacity`,
		string(d.ID), d.Name, d.Specialty, d.SlotTime, d.DailyCapacity,
		d.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetDoctor(ctx context.Context, id queue.DoctorID) (*queue.Doctor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, specialty, slot_time, daily_capacity, created_at
		FROM doctors WHERE id = ?`, string(id))
	d, err := scanDoctor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.ErrDoctorNotFound
	}
	return d, err
}

func (s *Store) ListDoctors(ctx context.Context) ([]queue.Doctor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, specialty, slot_time, daily_capacity, created_at
		FROM doctors ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDoctor(r rowScanner) (*queue.Doctor, error) {
	var d queue.Doctor
	var id, createdAt string
	if err := r.Scan(&id, &d.Name, &d.Specialty, &d.SlotTime, &d.DailyCapacity, &createdAt); err != nil {
		return nil, err
	}
	d.ID = queue.DoctorID(id)
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse doctor created_at: %w", err)
	}
	d.CreatedAt = t
	return &d, nil
}

// =============================================================================
// TOKEN STORE
// =============================================================================

func (s *Store) SaveToken(ctx context.Context, t queue.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, number, patient_name, contact, source, doctor_id, slot_time, status, day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.ID), t.Number, t.PatientName, t.Contact, string(t.Source),
		string(t.DoctorID), t.SlotTime, string(t.Status),
		t.Day().String(), t.CreatedAt.Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetToken(ctx context.Context, id queue.TokenID) (*queue.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, number, patient_name, contact, source, doctor_id, slot_time, status, created_at
		FROM tokens WHERE id = ?`, string(id))
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, queue.ErrTokenNotFound
	}
	return t, err
}

func (s *Store) TokensByDoctorAndDay(ctx context.Context, doctorID queue.DoctorID, day queue.Day) ([]queue.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number, patient_name, contact, source, doctor_id, slot_time, status, created_at
		FROM tokens WHERE doctor_id = ? AND day = ?
		ORDER BY created_at, number`, string(doctorID), day.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []queue.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// UpdateStatus is compare-and-set: the UPDATE only matches when the current
// status equals from, so concurrent transitions cannot both win.
func (s *Store) UpdateStatus(ctx context.Context, id queue.TokenID, from, to queue.Status) (*queue.Token, error) {
	s.mu.Lock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tokens SET status = ? WHERE id = ? AND status = ?`,
		string(to), string(id), string(from))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Distinguish "no such token" from "status moved under us".
		if _, err := s.GetToken(ctx, id); err != nil {
			return nil, err
		}
		return nil, queue.ErrConcurrentModification
	}
	return s.GetToken(ctx, id)
}

// CountAdmitted is the deprecated fallback read path; see queue.TokenStore.
func (s *Store) CountAdmitted(ctx context.Context, day queue.Day) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tokens WHERE day = ?`, day.String()).Scan(&n)
	return n, err
}

func scanToken(r rowScanner) (*queue.Token, error) {
	var t queue.Token
	var id, source, doctorID, status, createdAt string
	var contact sql.NullString
	if err := r.Scan(&id, &t.Number, &t.PatientName, &contact, &source,
		&doctorID, &t.SlotTime, &status, &createdAt); err != nil {
		return nil, err
	}
	t.ID = queue.TokenID(id)
	t.Contact = contact.String
	t.Source = queue.Source(source)
	t.DoctorID = queue.DoctorID(doctorID)
	t.Status = queue.Status(status)
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse token created_at: %w", err)
	}
	t.CreatedAt = ts
	return &t, nil
}

// =============================================================================
// SLOT LEDGER
// =============================================================================

func (s *Store) GetOrInit(ctx context.Context, doctorID queue.DoctorID, day queue.Day, defaultCapacity int) (queue.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (doctor_id, day, capacity, occupied)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(doctor_id, day) DO NOTHING`,
		string(doctorID), day.String(), defaultCapacity); err != nil {
		return queue.LedgerEntry{}, err
	}
	return s.readSlot(ctx, doctorID, day)
}

func (s *Store) Admit(ctx context.Context, doctorID queue.DoctorID, day queue.Day, force bool) (queue.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE slots SET occupied = occupied + 1
		WHERE doctor_id = ? AND day = ? AND occupied < capacity
		RETURNING capacity, occupied`
	if force {
		query = `
		UPDATE slots SET occupied = occupied + 1
		WHERE doctor_id = ? AND day = ?
		RETURNING capacity, occupied`
	}

	entry := queue.LedgerEntry{DoctorID: doctorID, Day: day}
	err := s.db.QueryRowContext(ctx, query, string(doctorID), day.String()).
		Scan(&entry.Capacity, &entry.Occupied)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the entry is missing or the day is full; report occupancy
		// as observed either way.
		existing, rerr := s.readSlot(ctx, doctorID, day)
		if rerr != nil && !errors.Is(rerr, sql.ErrNoRows) {
			return queue.LedgerEntry{}, rerr
		}
		return queue.LedgerEntry{}, &queue.SlotFullError{
			DoctorID: doctorID,
			Day:      day,
			Occupied: existing.Occupied,
			Capacity: existing.Capacity,
		}
	}
	if err != nil {
		return queue.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Store) Release(ctx context.Context, doctorID queue.DoctorID, day queue.Day) (queue.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := queue.LedgerEntry{DoctorID: doctorID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		UPDATE slots SET occupied = occupied - 1
		WHERE doctor_id = ? AND day = ? AND occupied > 0
		RETURNING capacity, occupied`,
		string(doctorID), day.String()).
		Scan(&entry.Capacity, &entry.Occupied)
	if errors.Is(err, sql.ErrNoRows) {
		// Missing entry or already at zero: floored no-op.
		existing, rerr := s.readSlot(ctx, doctorID, day)
		if rerr != nil && !errors.Is(rerr, sql.ErrNoRows) {
			return queue.LedgerEntry{}, rerr
		}
		return existing, nil
	}
	if err != nil {
		return queue.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Store) Status(ctx context.Context, doctorID queue.DoctorID, day queue.Day) (queue.LedgerEntry, bool, error) {
	entry, err := s.readSlot(ctx, doctorID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.LedgerEntry{}, false, nil
	}
	if err != nil {
		return queue.LedgerEntry{}, false, err
	}
	return entry, true, nil
}

// readSlot returns the slot row, or a zero-valued entry with sql.ErrNoRows.
func (s *Store) readSlot(ctx context.Context, doctorID queue.DoctorID, day queue.Day) (queue.LedgerEntry, error) {
	entry := queue.LedgerEntry{DoctorID: doctorID, Day: day}
	err := s.db.QueryRowContext(ctx, `
		SELECT capacity, occupied FROM slots WHERE doctor_id = ? AND day = ?`,
		string(doctorID), day.String()).
		Scan(&entry.Capacity, &entry.Occupied)
	if err != nil {
		return queue.LedgerEntry{DoctorID: doctorID, Day: day}, err
	}
	return entry, nil
}

// =============================================================================
// TOKEN SEQUENCER
// =============================================================================

// Next draws the day's next token number from the counter row. The upsert
// increments and returns in one statement, so concurrent admissions can
// never observe the same value.
func (s *Store) Next(ctx context.Context, day queue.Day) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (day, n) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET n = n + 1
		RETURNING n`, day.String()).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

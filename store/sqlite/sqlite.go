/*
Package sqlite provides the SQLite-backed implementation of the treasury
storage interfaces.

PURPOSE:
  Implements treasury.TxStore and treasury.MemberDirectory using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  dues_payments, benefit_payments and financial_movements are insert-only:
  - No UPDATE statements touch them
  - No DELETE statements touch them
  - Corrections go through compensating entries

KEY TABLES:
  pricing_config:      singleton current dues prices (id always 1)
  dues_cycles:         one row per year, with its price snapshot
  dues_status:         lazily-created per-member override flags
  dues_payments:       immutable, UNIQUE(member_id, month, year)
  benefit_events:      fundraising events with per-tenure quotas
  card_allocations:    per-member counters, UNIQUE(event_id, member_id)
  benefit_payments:    immutable sale rows
  financial_movements: the audit ledger
  members:             roster view consumed for eligibility

MONEY:
  Amounts are stored as decimal strings (TEXT) and summed in Go with
  shopspring/decimal. SQLite REAL arithmetic is never used for money.

CONCURRENCY:
  Uses sync.Mutex to serialize writers; WithTx holds it for the whole
  unit so allocation counter updates cannot race. SQLite is opened with
  WAL for better read concurrency.

USAGE:
  store, err := sqlite.New("./data/treasury.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := treasury.NewEngine(store, store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - treasury/store.go:        interface definitions
  - treasury/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/brigade/treasury-engine/treasury"
)

// Store implements treasury.TxStore and treasury.MemberDirectory.
type Store struct {
	db *sql.DB
	mu sync.Mutex
	q  queries
}

var (
	_ treasury.TxStore         = (*Store)(nil)
	_ treasury.MemberDirectory = (*Store)(nil)
)

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and plays
	// well with the mutex-serialized writer model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Singleton current dues prices; id is always 1
	CREATE TABLE IF NOT EXISTS pricing_config (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		regular_price TEXT NOT NULL,
		student_price TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT NOT NULL DEFAULT ''
	);

	-- One cycle per calendar year, with its own price snapshot
	CREATE TABLE IF NOT EXISTS dues_cycles (
		year INTEGER PRIMARY KEY,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		regular_price TEXT NOT NULL,
		student_price TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		closed_at TEXT,
		closed_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_active
		ON dues_cycles(active) WHERE active;

	-- Per-member override flags, created lazily
	CREATE TABLE IF NOT EXISTS dues_status (
		member_id TEXT PRIMARY KEY,
		student BOOLEAN NOT NULL DEFAULT FALSE,
		student_since TEXT,
		student_note TEXT NOT NULL DEFAULT '',
		deactivated BOOLEAN NOT NULL DEFAULT FALSE,
		deactivation_reason TEXT NOT NULL DEFAULT '',
		deactivated_at TEXT,
		deactivated_by TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Dues payments (insert-only)
	CREATE TABLE IF NOT EXISTS dues_payments (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_on TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		receipt TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	-- CRITICAL: one payment per member per period
	CREATE UNIQUE INDEX IF NOT EXISTS idx_dues_payments_period
		ON dues_payments(member_id, month, year);
	CREATE INDEX IF NOT EXISTS idx_dues_payments_member_year
		ON dues_payments(member_id, year);

	-- Benefit events
	CREATE TABLE IF NOT EXISTS benefit_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		event_date TEXT NOT NULL,
		quotas_json TEXT NOT NULL,
		card_price TEXT NOT NULL,
		extra_card_price TEXT NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		closed_at TEXT
	);

	-- Card allocations (mutable counters)
	CREATE TABLE IF NOT EXISTS card_allocations (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		allocated INTEGER NOT NULL,
		sold INTEGER NOT NULL DEFAULT 0,
		extra_sold INTEGER NOT NULL DEFAULT 0,
		released INTEGER NOT NULL DEFAULT 0,
		total_due TEXT NOT NULL,
		total_paid TEXT NOT NULL,
		state TEXT NOT NULL,
		releases_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		UNIQUE(event_id, member_id)
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_event
		ON card_allocations(event_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_member
		ON card_allocations(member_id);

	-- Benefit payments (insert-only)
	CREATE TABLE IF NOT EXISTS benefit_payments (
		id TEXT PRIMARY KEY,
		allocation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		cards INTEGER NOT NULL,
		amount TEXT NOT NULL,
		paid_on TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		receipt TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_benefit_payments_allocation
		ON benefit_payments(allocation_id);

	-- Financial movements (insert-only audit ledger)
	CREATE TABLE IF NOT EXISTS financial_movements (
		id TEXT PRIMARY KEY,
		direction TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		dues_payment_id TEXT NOT NULL DEFAULT '',
		benefit_payment_id TEXT NOT NULL DEFAULT '',
		receipt TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_movements_direction
		ON financial_movements(direction);
	CREATE INDEX IF NOT EXISTS idx_movements_category
		ON financial_movements(category);
	CREATE INDEX IF NOT EXISTS idx_movements_date
		ON financial_movements(date DESC);

	-- Member roster view
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		join_date TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_status
		ON members(status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside a SQL transaction. The writer mutex is held for
// the whole unit so concurrent read-modify-write sequences on allocation
// counters serialize.
func (s *Store) WithTx(ctx context.Context, fn func(treasury.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore exposes the query set bound to an open *sql.Tx.
type txStore struct {
	q queries
}

var _ treasury.Store = (*txStore)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements every Store method against a dbtx.
type queries struct {
	db dbtx
}

// =============================================================================
// HELPERS - time and nullable column handling
// =============================================================================

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// =============================================================================
// PRICING
// =============================================================================

func (q queries) GetPricing(ctx context.Context) (*treasury.PricingConfig, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT regular_price, student_price, updated_at, updated_by
		FROM pricing_config WHERE id = 1`)

	var cfg treasury.PricingConfig
	var regular, student, updatedAt string
	err := row.Scan(&regular, &student, &updatedAt, &cfg.UpdatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing config: %w", err)
	}
	cfg.RegularPrice = parseDecimal(regular)
	cfg.StudentPrice = parseDecimal(student)
	cfg.UpdatedAt = parseTime(updatedAt)
	return &cfg, nil
}

func (q queries) SavePricing(ctx context.Context, cfg treasury.PricingConfig) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pricing_config (id, regular_price, student_price, updated_at, updated_by)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			regular_price = excluded.regular_price,
			student_price = excluded.student_price,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		cfg.RegularPrice.String(), cfg.StudentPrice.String(),
		fmtTime(cfg.UpdatedAt), cfg.UpdatedBy)
	if err != nil {
		return fmt.Errorf("failed to save pricing config: %w", err)
	}
	return nil
}

// =============================================================================
// DUES CYCLES
// =============================================================================

const cycleColumns = `year, start_date, end_date, active, closed,
	regular_price, student_price, notes, created_at, closed_at, closed_by`

func scanCycle(row interface{ Scan(...any) error }) (*treasury.DuesCycle, error) {
	var c treasury.DuesCycle
	var start, end, regular, student, createdAt string
	var closedAt sql.NullString
	err := row.Scan(&c.Year, &start, &end, &c.Active, &c.Closed,
		&regular, &student, &c.Notes, &createdAt, &closedAt, &c.ClosedBy)
	if err != nil {
		return nil, err
	}
	c.StartDate = parseTime(start)
	c.EndDate = parseTime(end)
	c.RegularPrice = parseDecimal(regular)
	c.StudentPrice = parseDecimal(student)
	c.CreatedAt = parseTime(createdAt)
	c.ClosedAt = parseTimePtr(closedAt)
	return &c, nil
}

func (q queries) GetCycle(ctx context.Context, year int) (*treasury.DuesCycle, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM dues_cycles WHERE year = ?`, year)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cycle %d: %w", year, err)
	}
	return c, nil
}

func (q queries) ActiveCycle(ctx context.Context) (*treasury.DuesCycle, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+cycleColumns+` FROM dues_cycles WHERE active LIMIT 1`)
	c, err := scanCycle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active cycle: %w", err)
	}
	return c, nil
}

func (q queries) ListCycles(ctx context.Context) ([]treasury.DuesCycle, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+cycleColumns+` FROM dues_cycles ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	defer rows.Close()

	var out []treasury.DuesCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (q queries) SaveCycle(ctx context.Context, c treasury.DuesCycle) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dues_cycles
			(year, start_date, end_date, active, closed, regular_price,
			 student_price, notes, created_at, closed_at, closed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			active = excluded.active,
			closed = excluded.closed,
			regular_price = excluded.regular_price,
			student_price = excluded.student_price,
			notes = excluded.notes,
			closed_at = excluded.closed_at,
			closed_by = excluded.closed_by`,
		c.Year, fmtTime(c.StartDate), fmtTime(c.EndDate), c.Active, c.Closed,
		c.RegularPrice.String(), c.StudentPrice.String(), c.Notes,
		fmtTime(c.CreatedAt), fmtTimePtr(c.ClosedAt), c.ClosedBy)
	if err != nil {
		return fmt.Errorf("failed to save cycle %d: %w", c.Year, err)
	}
	return nil
}

func (q queries) DeactivateCyclesExcept(ctx context.Context, year int) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE dues_cycles SET active = FALSE WHERE year != ? AND active`, year)
	if err != nil {
		return fmt.Errorf("failed to deactivate cycles: %w", err)
	}
	return nil
}

// =============================================================================
// DUES STATUS
// =============================================================================

func (q queries) GetDuesStatus(ctx context.Context, memberID string) (*treasury.DuesStatus, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT member_id, student, student_since, student_note,
		       deactivated, deactivation_reason, deactivated_at, deactivated_by,
		       updated_at
		FROM dues_status WHERE member_id = ?`, memberID)

	var st treasury.DuesStatus
	var studentSince, deactivatedAt sql.NullString
	var updatedAt string
	err := row.Scan(&st.MemberID, &st.Student, &studentSince, &st.StudentNote,
		&st.Deactivated, &st.DeactivationReason, &deactivatedAt, &st.DeactivatedBy,
		&updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dues status: %w", err)
	}
	st.StudentSince = parseTimePtr(studentSince)
	st.DeactivatedAt = parseTimePtr(deactivatedAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

func (q queries) SaveDuesStatus(ctx context.Context, st treasury.DuesStatus) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dues_status
			(member_id, student, student_since, student_note,
			 deactivated, deactivation_reason, deactivated_at, deactivated_by,
			 updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(member_id) DO UPDATE SET
			student = excluded.student,
			student_since = excluded.student_since,
			student_note = excluded.student_note,
			deactivated = excluded.deactivated,
			deactivation_reason = excluded.deactivation_reason,
			deactivated_at = excluded.deactivated_at,
			deactivated_by = excluded.deactivated_by,
			updated_at = excluded.updated_at`,
		st.MemberID, st.Student, fmtTimePtr(st.StudentSince), st.StudentNote,
		st.Deactivated, st.DeactivationReason, fmtTimePtr(st.DeactivatedAt),
		st.DeactivatedBy, fmtTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save dues status: %w", err)
	}
	return nil
}

// =============================================================================
// DUES PAYMENTS
// =============================================================================

const duesPaymentColumns = `id, member_id, month, year, amount, paid_on,
	method, receipt, note, created_at, created_by`

func scanDuesPayment(row interface{ Scan(...any) error }) (*treasury.DuesPayment, error) {
	var p treasury.DuesPayment
	var amount, paidOn, createdAt string
	err := row.Scan(&p.ID, &p.MemberID, &p.Month, &p.Year, &amount, &paidOn,
		&p.Method, &p.Receipt, &p.Note, &createdAt, &p.CreatedBy)
	if err != nil {
		return nil, err
	}
	p.Amount = parseDecimal(amount)
	p.PaidOn = parseTime(paidOn)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

func (q queries) InsertDuesPayment(ctx context.Context, p treasury.DuesPayment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO dues_payments
			(id, member_id, month, year, amount, paid_on, method, receipt,
			 note, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.Month, p.Year, p.Amount.String(), fmtTime(p.PaidOn),
		p.Method, p.Receipt, p.Note, fmtTime(p.CreatedAt), p.CreatedBy)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &treasury.DuplicatePaymentError{
				MemberID: p.MemberID,
				Month:    p.Month,
				Year:     p.Year,
			}
		}
		return fmt.Errorf("failed to insert dues payment: %w", err)
	}
	return nil
}

func (q queries) GetDuesPayment(ctx context.Context, memberID string, month, year int) (*treasury.DuesPayment, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+duesPaymentColumns+` FROM dues_payments
		 WHERE member_id = ? AND month = ? AND year = ?`,
		memberID, month, year)
	p, err := scanDuesPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dues payment: %w", err)
	}
	return p, nil
}

func (q queries) ListDuesPayments(ctx context.Context, memberID string, year int) ([]treasury.DuesPayment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+duesPaymentColumns+` FROM dues_payments
		 WHERE member_id = ? AND year = ? ORDER BY month ASC`,
		memberID, year)
	if err != nil {
		return nil, fmt.Errorf("failed to list dues payments: %w", err)
	}
	defer rows.Close()

	var out []treasury.DuesPayment
	for rows.Next() {
		p, err := scanDuesPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// =============================================================================
// BENEFIT EVENTS
// =============================================================================

const eventColumns = `id, name, description, event_date, quotas_json,
	card_price, extra_card_price, closed, created_at, created_by, closed_at`

func scanEvent(row interface{ Scan(...any) error }) (*treasury.BenefitEvent, error) {
	var ev treasury.BenefitEvent
	var eventDate, quotasJSON, cardPrice, extraPrice, createdAt string
	var closedAt sql.NullString
	err := row.Scan(&ev.ID, &ev.Name, &ev.Description, &eventDate, &quotasJSON,
		&cardPrice, &extraPrice, &ev.Closed, &createdAt, &ev.CreatedBy, &closedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(quotasJSON), &ev.Quotas); err != nil {
		return nil, fmt.Errorf("failed to decode quotas: %w", err)
	}
	ev.EventDate = parseTime(eventDate)
	ev.CardPrice = parseDecimal(cardPrice)
	ev.ExtraCardPrice = parseDecimal(extraPrice)
	ev.CreatedAt = parseTime(createdAt)
	ev.ClosedAt = parseTimePtr(closedAt)
	return &ev, nil
}

func (q queries) InsertEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	quotasJSON, err := json.Marshal(ev.Quotas)
	if err != nil {
		return fmt.Errorf("failed to encode quotas: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO benefit_events
			(id, name, description, event_date, quotas_json, card_price,
			 extra_card_price, closed, created_at, created_by, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Name, ev.Description, fmtTime(ev.EventDate), string(quotasJSON),
		ev.CardPrice.String(), ev.ExtraCardPrice.String(), ev.Closed,
		fmtTime(ev.CreatedAt), ev.CreatedBy, fmtTimePtr(ev.ClosedAt))
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (q queries) GetEvent(ctx context.Context, id string) (*treasury.BenefitEvent, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM benefit_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}
	return ev, nil
}

func (q queries) ListEvents(ctx context.Context) ([]treasury.BenefitEvent, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM benefit_events ORDER BY event_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []treasury.BenefitEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (q queries) SaveEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	quotasJSON, err := json.Marshal(ev.Quotas)
	if err != nil {
		return fmt.Errorf("failed to encode quotas: %w", err)
	}
	_, err = q.db.ExecContext(ctx, `
		UPDATE benefit_events SET
			name = ?, description = ?, event_date = ?, quotas_json = ?,
			card_price = ?, extra_card_price = ?, closed = ?, closed_at = ?
		WHERE id = ?`,
		ev.Name, ev.Description, fmtTime(ev.EventDate), string(quotasJSON),
		ev.CardPrice.String(), ev.ExtraCardPrice.String(), ev.Closed,
		fmtTimePtr(ev.ClosedAt), ev.ID)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// =============================================================================
// CARD ALLOCATIONS
// =============================================================================

const allocationColumns = `id, event_id, member_id, allocated, sold,
	extra_sold, released, total_due, total_paid, state, releases_json, created_at`

func scanAllocation(row interface{ Scan(...any) error }) (*treasury.CardAllocation, error) {
	var a treasury.CardAllocation
	var totalDue, totalPaid, state, releasesJSON, createdAt string
	err := row.Scan(&a.ID, &a.EventID, &a.MemberID, &a.Allocated, &a.Sold,
		&a.ExtraSold, &a.Released, &totalDue, &totalPaid, &state,
		&releasesJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(releasesJSON), &a.Releases); err != nil {
		return nil, fmt.Errorf("failed to decode release history: %w", err)
	}
	a.TotalDue = parseDecimal(totalDue)
	a.TotalPaid = parseDecimal(totalPaid)
	a.State = treasury.PaymentState(state)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func allocationArgs(a treasury.CardAllocation) ([]any, error) {
	releasesJSON, err := json.Marshal(a.Releases)
	if err != nil {
		return nil, fmt.Errorf("failed to encode release history: %w", err)
	}
	if a.Releases == nil {
		releasesJSON = []byte("[]")
	}
	return []any{
		a.ID, a.EventID, a.MemberID, a.Allocated, a.Sold, a.ExtraSold,
		a.Released, a.TotalDue.String(), a.TotalPaid.String(), string(a.State),
		string(releasesJSON), fmtTime(a.CreatedAt),
	}, nil
}

func (q queries) InsertAllocation(ctx context.Context, a treasury.CardAllocation) error {
	args, err := allocationArgs(a)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO card_allocations
			(id, event_id, member_id, allocated, sold, extra_sold, released,
			 total_due, total_paid, state, releases_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	return nil
}

func (q queries) GetAllocation(ctx context.Context, id string) (*treasury.CardAllocation, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+allocationColumns+` FROM card_allocations WHERE id = ?`, id)
	a, err := scanAllocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load allocation: %w", err)
	}
	return a, nil
}

func (q queries) listAllocations(ctx context.Context, where string, arg any) ([]treasury.CardAllocation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+allocationColumns+` FROM card_allocations WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations: %w", err)
	}
	defer rows.Close()

	var out []treasury.CardAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (q queries) ListAllocationsByEvent(ctx context.Context, eventID string) ([]treasury.CardAllocation, error) {
	return q.listAllocations(ctx, `event_id = ? ORDER BY member_id ASC`, eventID)
}

func (q queries) ListAllocationsByMember(ctx context.Context, memberID string) ([]treasury.CardAllocation, error) {
	return q.listAllocations(ctx, `member_id = ? ORDER BY created_at ASC`, memberID)
}

func (q queries) SaveAllocation(ctx context.Context, a treasury.CardAllocation) error {
	releasesJSON, err := json.Marshal(a.Releases)
	if err != nil {
		return fmt.Errorf("failed to encode release history: %w", err)
	}
	if a.Releases == nil {
		releasesJSON = []byte("[]")
	}
	_, err = q.db.ExecContext(ctx, `
		UPDATE card_allocations SET
			allocated = ?, sold = ?, extra_sold = ?, released = ?,
			total_due = ?, total_paid = ?, state = ?, releases_json = ?
		WHERE id = ?`,
		a.Allocated, a.Sold, a.ExtraSold, a.Released,
		a.TotalDue.String(), a.TotalPaid.String(), string(a.State),
		string(releasesJSON), a.ID)
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

// =============================================================================
// BENEFIT PAYMENTS
// =============================================================================

func (q queries) InsertBenefitPayment(ctx context.Context, p treasury.BenefitPayment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO benefit_payments
			(id, allocation_id, kind, cards, amount, paid_on, method, receipt,
			 note, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AllocationID, string(p.Kind), p.Cards, p.Amount.String(),
		fmtTime(p.PaidOn), p.Method, p.Receipt, p.Note,
		fmtTime(p.CreatedAt), p.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert benefit payment: %w", err)
	}
	return nil
}

func (q queries) ListBenefitPayments(ctx context.Context, allocationID string) ([]treasury.BenefitPayment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, allocation_id, kind, cards, amount, paid_on, method,
		       receipt, note, created_at, created_by
		FROM benefit_payments WHERE allocation_id = ?
		ORDER BY created_at ASC`, allocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benefit payments: %w", err)
	}
	defer rows.Close()

	var out []treasury.BenefitPayment
	for rows.Next() {
		var p treasury.BenefitPayment
		var kind, amount, paidOn, createdAt string
		err := rows.Scan(&p.ID, &p.AllocationID, &kind, &p.Cards, &amount,
			&paidOn, &p.Method, &p.Receipt, &p.Note, &createdAt, &p.CreatedBy)
		if err != nil {
			return nil, err
		}
		p.Kind = treasury.SaleKind(kind)
		p.Amount = parseDecimal(amount)
		p.PaidOn = parseTime(paidOn)
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// FINANCIAL MOVEMENTS
// =============================================================================

func (q queries) InsertMovement(ctx context.Context, m treasury.FinancialMovement) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO financial_movements
			(id, direction, category, amount, description, date,
			 dues_payment_id, benefit_payment_id, receipt, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Direction), string(m.Category), m.Amount.String(),
		m.Description, fmtTime(m.Date), m.DuesPaymentID, m.BenefitPaymentID,
		m.Receipt, fmtTime(m.CreatedAt), m.CreatedBy)
	if err != nil {
		return fmt.Errorf("failed to insert movement: %w", err)
	}
	return nil
}

func (q queries) ListMovements(ctx context.Context, f treasury.MovementFilter) ([]treasury.FinancialMovement, error) {
	query := `
		SELECT id, direction, category, amount, description, date,
		       dues_payment_id, benefit_payment_id, receipt, created_at, created_by
		FROM financial_movements WHERE 1=1`
	var args []any
	if f.Direction != nil {
		query += ` AND direction = ?`
		args = append(args, string(*f.Direction))
	}
	if f.Category != nil {
		query += ` AND category = ?`
		args = append(args, string(*f.Category))
	}
	if f.From != nil {
		query += ` AND date >= ?`
		args = append(args, fmtTime(*f.From))
	}
	if f.To != nil {
		query += ` AND date <= ?`
		args = append(args, fmtTime(*f.To))
	}
	query += ` ORDER BY date DESC, created_at DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	var out []treasury.FinancialMovement
	for rows.Next() {
		var m treasury.FinancialMovement
		var direction, category, amount, date, createdAt string
		err := rows.Scan(&m.ID, &direction, &category, &amount, &m.Description,
			&date, &m.DuesPaymentID, &m.BenefitPaymentID, &m.Receipt,
			&createdAt, &m.CreatedBy)
		if err != nil {
			return nil, err
		}
		m.Direction = treasury.MovementDirection(direction)
		m.Category = treasury.MovementCategory(category)
		m.Amount = parseDecimal(amount)
		m.Date = parseTime(date)
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SumMovements totals amounts in Go with decimal arithmetic; SQLite SUM
// over REAL would lose precision.
func (q queries) SumMovements(ctx context.Context, dir treasury.MovementDirection) (decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT amount FROM financial_movements WHERE direction = ?`, string(dir))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum movements: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(parseDecimal(amount))
	}
	return total, rows.Err()
}

// =============================================================================
// MEMBER DIRECTORY
// =============================================================================

// UpsertMember writes a roster row. The treasury engine itself never
// calls this; it exists for seeding and for the roster sync endpoint.
func (s *Store) UpsertMember(ctx context.Context, m treasury.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, join_date, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			join_date = excluded.join_date,
			status = excluded.status`,
		m.ID, m.Name, fmtTime(m.JoinDate), string(m.Status))
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*treasury.Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, join_date, status FROM members WHERE id = ?`, id)

	var m treasury.Member
	var joinDate, status string
	err := row.Scan(&m.ID, &m.Name, &joinDate, &status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load member: %w", err)
	}
	m.JoinDate = parseTime(joinDate)
	m.Status = treasury.LifecycleStatus(status)
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, statuses ...treasury.LifecycleStatus) ([]treasury.Member, error) {
	query := `SELECT id, name, join_date, status FROM members`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY join_date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []treasury.Member
	for rows.Next() {
		var m treasury.Member
		var joinDate, status string
		if err := rows.Scan(&m.ID, &m.Name, &joinDate, &status); err != nil {
			return nil, err
		}
		m.JoinDate = parseTime(joinDate)
		m.Status = treasury.LifecycleStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// STORE - non-transactional passthrough
// =============================================================================

func (s *Store) GetPricing(ctx context.Context) (*treasury.PricingConfig, error) {
	return s.q.GetPricing(ctx)
}

func (s *Store) SavePricing(ctx context.Context, cfg treasury.PricingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SavePricing(ctx, cfg)
}

func (s *Store) GetCycle(ctx context.Context, year int) (*treasury.DuesCycle, error) {
	return s.q.GetCycle(ctx, year)
}

func (s *Store) ActiveCycle(ctx context.Context) (*treasury.DuesCycle, error) {
	return s.q.ActiveCycle(ctx)
}

func (s *Store) ListCycles(ctx context.Context) ([]treasury.DuesCycle, error) {
	return s.q.ListCycles(ctx)
}

func (s *Store) SaveCycle(ctx context.Context, c treasury.DuesCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveCycle(ctx, c)
}

func (s *Store) DeactivateCyclesExcept(ctx context.Context, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeactivateCyclesExcept(ctx, year)
}

func (s *Store) GetDuesStatus(ctx context.Context, memberID string) (*treasury.DuesStatus, error) {
	return s.q.GetDuesStatus(ctx, memberID)
}

func (s *Store) SaveDuesStatus(ctx context.Context, st treasury.DuesStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveDuesStatus(ctx, st)
}

func (s *Store) InsertDuesPayment(ctx context.Context, p treasury.DuesPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertDuesPayment(ctx, p)
}

func (s *Store) GetDuesPayment(ctx context.Context, memberID string, month, year int) (*treasury.DuesPayment, error) {
	return s.q.GetDuesPayment(ctx, memberID, month, year)
}

func (s *Store) ListDuesPayments(ctx context.Context, memberID string, year int) ([]treasury.DuesPayment, error) {
	return s.q.ListDuesPayments(ctx, memberID, year)
}

func (s *Store) InsertEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertEvent(ctx, ev)
}

func (s *Store) GetEvent(ctx context.Context, id string) (*treasury.BenefitEvent, error) {
	return s.q.GetEvent(ctx, id)
}

func (s *Store) ListEvents(ctx context.Context) ([]treasury.BenefitEvent, error) {
	return s.q.ListEvents(ctx)
}

func (s *Store) SaveEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveEvent(ctx, ev)
}

func (s *Store) InsertAllocation(ctx context.Context, a treasury.CardAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertAllocation(ctx, a)
}

func (s *Store) GetAllocation(ctx context.Context, id string) (*treasury.CardAllocation, error) {
	return s.q.GetAllocation(ctx, id)
}

func (s *Store) ListAllocationsByEvent(ctx context.Context, eventID string) ([]treasury.CardAllocation, error) {
	return s.q.ListAllocationsByEvent(ctx, eventID)
}

func (s *Store) ListAllocationsByMember(ctx context.Context, memberID string) ([]treasury.CardAllocation, error) {
	return s.q.ListAllocationsByMember(ctx, memberID)
}

func (s *Store) SaveAllocation(ctx context.Context, a treasury.CardAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveAllocation(ctx, a)
}

func (s *Store) InsertBenefitPayment(ctx context.Context, p treasury.BenefitPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertBenefitPayment(ctx, p)
}

func (s *Store) ListBenefitPayments(ctx context.Context, allocationID string) ([]treasury.BenefitPayment, error) {
	return s.q.ListBenefitPayments(ctx, allocationID)
}

func (s *Store) InsertMovement(ctx context.Context, m treasury.FinancialMovement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.InsertMovement(ctx, m)
}

func (s *Store) ListMovements(ctx context.Context, f treasury.MovementFilter) ([]treasury.FinancialMovement, error) {
	return s.q.ListMovements(ctx, f)
}

func (s *Store) SumMovements(ctx context.Context, dir treasury.MovementDirection) (decimal.Decimal, error) {
	return s.q.SumMovements(ctx, dir)
}

// =============================================================================
// TX STORE - delegation to the tx-bound query set
// =============================================================================

func (t *txStore) GetPricing(ctx context.Context) (*treasury.PricingConfig, error) {
	return t.q.GetPricing(ctx)
}

func (t *txStore) SavePricing(ctx context.Context, cfg treasury.PricingConfig) error {
	return t.q.SavePricing(ctx, cfg)
}

func (t *txStore) GetCycle(ctx context.Context, year int) (*treasury.DuesCycle, error) {
	return t.q.GetCycle(ctx, year)
}

func (t *txStore) ActiveCycle(ctx context.Context) (*treasury.DuesCycle, error) {
	return t.q.ActiveCycle(ctx)
}

func (t *txStore) ListCycles(ctx context.Context) ([]treasury.DuesCycle, error) {
	return t.q.ListCycles(ctx)
}

func (t *txStore) SaveCycle(ctx context.Context, c treasury.DuesCycle) error {
	return t.q.SaveCycle(ctx, c)
}

func (t *txStore) DeactivateCyclesExcept(ctx context.Context, year int) error {
	return t.q.DeactivateCyclesExcept(ctx, year)
}

func (t *txStore) GetDuesStatus(ctx context.Context, memberID string) (*treasury.DuesStatus, error) {
	return t.q.GetDuesStatus(ctx, memberID)
}

func (t *txStore) SaveDuesStatus(ctx context.Context, st treasury.DuesStatus) error {
	return t.q.SaveDuesStatus(ctx, st)
}

func (t *txStore) InsertDuesPayment(ctx context.Context, p treasury.DuesPayment) error {
	return t.q.InsertDuesPayment(ctx, p)
}

func (t *txStore) GetDuesPayment(ctx context.Context, memberID string, month, year int) (*treasury.DuesPayment, error) {
	return t.q.GetDuesPayment(ctx, memberID, month, year)
}

func (t *txStore) ListDuesPayments(ctx context.Context, memberID string, year int) ([]treasury.DuesPayment, error) {
	return t.q.ListDuesPayments(ctx, memberID, year)
}

func (t *txStore) InsertEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	return t.q.InsertEvent(ctx, ev)
}

func (t *txStore) GetEvent(ctx context.Context, id string) (*treasury.BenefitEvent, error) {
	return t.q.GetEvent(ctx, id)
}

func (t *txStore) ListEvents(ctx context.Context) ([]treasury.BenefitEvent, error) {
	return t.q.ListEvents(ctx)
}

func (t *txStore) SaveEvent(ctx context.Context, ev treasury.BenefitEvent) error {
	return t.q.SaveEvent(ctx, ev)
}

func (t *txStore) InsertAllocation(ctx context.Context, a treasury.CardAllocation) error {
	return t.q.InsertAllocation(ctx, a)
}

func (t *txStore) GetAllocation(ctx context.Context, id string) (*treasury.CardAllocation, error) {
	return t.q.GetAllocation(ctx, id)
}

func (t *txStore) ListAllocationsByEvent(ctx context.Context, eventID string) ([]treasury.CardAllocation, error) {
	return t.q.ListAllocationsByEvent(ctx, eventID)
}

func (t *txStore) ListAllocationsByMember(ctx context.Context, memberID string) ([]treasury.CardAllocation, error) {
	return t.q.ListAllocationsByMember(ctx, memberID)
}

func (t *txStore) SaveAllocation(ctx context.Context, a treasury.CardAllocation) error {
	return t.q.SaveAllocation(ctx, a)
}

func (t *txStore) InsertBenefitPayment(ctx context.Context, p treasury.BenefitPayment) error {
	return t.q.InsertBenefitPayment(ctx, p)
}

func (t *txStore) ListBenefitPayments(ctx context.Context, allocationID string) ([]treasury.BenefitPayment, error) {
	return t.q.ListBenefitPayments(ctx, allocationID)
}

func (t *txStore) InsertMovement(ctx context.Context, m treasury.FinancialMovement) error {
	return t.q.InsertMovement(ctx, m)
}

func (t *txStore) ListMovements(ctx context.Context, f treasury.MovementFilter) ([]treasury.FinancialMovement, error) {
	return t.q.ListMovements(ctx, f)
}

func (t *txStore) SumMovements(ctx context.Context, dir treasury.MovementDirection) (decimal.Decimal, error) {
	return t.q.SumMovements(ctx, dir)
}

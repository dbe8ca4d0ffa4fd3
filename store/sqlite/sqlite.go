/*
Package sqlite provides a SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:
  Implements engine.Store (obligations, recurrence plans, debt states,
  occurrence history, accounts, transactions) on SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  obligations:        Scheduled obligations
  recurrence_plans:   1:1 recurrence configuration per obligation
  debt_states:        1:1 amortization state per debt obligation
  occurrence_history: One row per occurrence outcome;
                      UNIQUE(obligation_id, scheduled_date) backs the
                      duplicate-occurrence guard at the storage level
  accounts:           Ledger accounts, single currency each
  transactions:       Posted financial movements

MONEY ENCODING:
  Amounts are stored as decimal strings plus a currency column, never as
  REAL, so balances survive round-trips exactly.

ATOMICITY:
  WithTx wraps ledger operations in one database transaction. Balance
  mutation and the transaction record commit or roll back together, and
  reads inside the boundary observe staged writes.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite runs in WAL (Write-Ahead
  Logging) mode so readers don't block. In production with PostgreSQL,
  database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/obligations.db")
  if err != nil { ... }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
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

	"github.com/payflow/obligation-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second pool connection to ":memory:" would open a separate empty
	// database. SQLite serializes writers anyway, so one connection is fine.
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
	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		description TEXT,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		start_date TEXT NOT NULL,
		next_occurrence TEXT,
		end_date TEXT,
		account_id TEXT NOT NULL,
		category_id TEXT,
		metadata_json TEXT,
		display_order INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_obligations_status
		ON obligations(status);
	-- Due-scan hot path
	CREATE INDEX IF NOT EXISTS idx_obligations_status_next
		ON obligations(status, next_occurrence);

	CREATE TABLE IF NOT EXISTS recurrence_plans (
		obligation_id TEXT PRIMARY KEY
			REFERENCES obligations(id) ON DELETE CASCADE,
		frequency TEXT NOT NULL DEFAULT '',
		interval INTEGER NOT NULL DEFAULT 1,
		day_of_month INTEGER,
		day_of_week INTEGER,
		max_occurrences INTEGER,
		occurrences_count INTEGER NOT NULL DEFAULT 0,
		auto_process BOOLEAN NOT NULL DEFAULT FALSE,
		create_transaction BOOLEAN NOT NULL DEFAULT FALSE,
		notify_days_before INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS debt_states (
		obligation_id TEXT PRIMARY KEY
			REFERENCES obligations(id) ON DELETE CASCADE,
		original_amount TEXT NOT NULL,
		remaining_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		total_installments INTEGER NOT NULL DEFAULT 0,
		paid_installments INTEGER NOT NULL DEFAULT 0,
		installment_amount TEXT,
		interest_rate TEXT,
		late_fee TEXT NOT NULL,
		days_overdue INTEGER NOT NULL DEFAULT 0,
		due_date TEXT,
		creditor TEXT,
		reference TEXT
	);

	CREATE TABLE IF NOT EXISTS occurrence_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		obligation_id TEXT NOT NULL
			REFERENCES obligations(id) ON DELETE CASCADE,
		planned_amount TEXT NOT NULL,
		actual_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		scheduled_date TEXT NOT NULL,
		processed_date TEXT,
		transaction_id INTEGER,
		failure_reason TEXT,
		payment_method TEXT,
		notes TEXT
	);

	-- CRITICAL: one occurrence per obligation per due date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_history_unique_occurrence
		ON occurrence_history(obligation_id, scheduled_date);
	-- Overdue-scan hot path
	CREATE INDEX IF NOT EXISTS idx_history_status_scheduled
		ON occurrence_history(status, scheduled_date);

	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		account_id TEXT NOT NULL,
		destination_id TEXT,
		tx_date TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account
		ON transactions(account_id, tx_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so ledger operations run unchanged
// inside and outside the WithTx boundary.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

func (s *Store) SaveObligation(ctx context.Context, o engine.ScheduledObligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metadataJSON, _ := json.Marshal(o.Metadata)
	now := time.Now().UTC().Format(time.RFC3339)

	query := `
		INSERT INTO obligations
		(id, kind, status, description, amount, currency, start_date, next_occurrence,
		 end_date, account_id, category_id, metadata_json, display_order, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			status = excluded.status,
			description = excluded.description,
			amount = excluded.amount,
			currency = excluded.currency,
			start_date = excluded.start_date,
			next_occurrence = excluded.next_occurrence,
			end_date = excluded.end_date,
			account_id = excluded.account_id,
			category_id = excluded.category_id,
			metadata_json = excluded.metadata_json,
			display_order = excluded.display_order,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Kind, o.Status, o.Description,
		o.Amount.Value.String(), o.Amount.Currency,
		o.StartDate.String(), nullDate(o.NextOccurrence), nullDate(o.EndDate),
		o.AccountID, nullCategory(o.CategoryID), string(metadataJSON), o.DisplayOrder,
		now, now,
	)
	return err
}

func (s *Store) GetObligation(ctx context.Context, id engine.ObligationID) (*engine.ScheduledObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, obligationSelect+" WHERE id = ?", id)
	o, err := scanObligation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListObligations(ctx context.Context) ([]engine.ScheduledObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryObligations(ctx, obligationSelect+" ORDER BY display_order ASC, id ASC")
}

func (s *Store) DeleteObligation(ctx context.Context, id engine.ObligationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Plan, debt state, and history rows cascade via foreign keys.
	_, err := s.db.ExecContext(ctx, "DELETE FROM obligations WHERE id = ?", id)
	return err
}

func (s *Store) DueObligations(ctx context.Context, asOf engine.Date) ([]engine.ScheduledObligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryObligations(ctx,
		obligationSelect+`
		 WHERE status = ? AND next_occurrence IS NOT NULL AND next_occurrence <= ?
		 ORDER BY next_occurrence ASC, id ASC`,
		engine.StatusActive, asOf.String())
}

const obligationSelect = `
	SELECT id, kind, status, description, amount, currency, start_date,
	       next_occurrence, end_date, account_id, category_id, metadata_json, display_order
	FROM obligations`

func (s *Store) queryObligations(ctx context.Context, query string, args ...any) ([]engine.ScheduledObligation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query obligations: %w", err)
	}
	defer rows.Close()

	var obligations []engine.ScheduledObligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, *o)
	}
	return obligations, rows.Err()
}

func scanObligation(row rowScanner) (*engine.ScheduledObligation, error) {
	var (
		o              engine.ScheduledObligation
		amount         string
		currency       string
		startDate      string
		nextOccurrence sql.NullString
		endDate        sql.NullString
		description    sql.NullString
		categoryID     sql.NullString
		metadataJSON   sql.NullString
	)

	err := row.Scan(
		&o.ID, &o.Kind, &o.Status, &description, &amount, &currency,
		&startDate, &nextOccurrence, &endDate, &o.AccountID, &categoryID,
		&metadataJSON, &o.DisplayOrder,
	)
	if err != nil {
		return nil, err
	}

	o.Description = description.String
	if o.Amount, err = parseMoney(amount, currency); err != nil {
		return nil, err
	}
	o.StartDate, _ = engine.ParseDate(startDate)
	o.NextOccurrence = parseNullDate(nextOccurrence)
	o.EndDate = parseNullDate(endDate)
	if categoryID.Valid && categoryID.String != "" {
		cat := engine.CategoryID(categoryID.String)
		o.CategoryID = &cat
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &o.Metadata)
	}
	return &o, nil
}

func (s *Store) SavePlan(ctx context.Context, p engine.RecurrencePlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO recurrence_plans
		(obligation_id, frequency, interval, day_of_month, day_of_week,
		 max_occurrences, occurrences_count, auto_process, create_transaction, notify_days_before)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(obligation_id) DO UPDATE SET
			frequency = excluded.frequency,
			interval = excluded.interval,
			day_of_month = excluded.day_of_month,
			day_of_week = excluded.day_of_week,
			max_occurrences = excluded.max_occurrences,
			occurrences_count = excluded.occurrences_count,
			auto_process = excluded.auto_process,
			create_transaction = excluded.create_transaction,
			notify_days_before = excluded.notify_days_before
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ObligationID, p.Frequency, p.Interval,
		nullInt(p.DayOfMonth), nullInt(p.DayOfWeek), nullInt(p.MaxOccurrences),
		p.OccurrencesCount, p.AutoProcess, p.CreateTransaction, p.NotifyDaysBefore,
	)
	return err
}

func (s *Store) GetPlan(ctx context.Context, id engine.ObligationID) (*engine.RecurrencePlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p          engine.RecurrencePlan
		dayOfMonth sql.NullInt64
		dayOfWeek  sql.NullInt64
		maxOcc     sql.NullInt64
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT obligation_id, frequency, interval, day_of_month, day_of_week,
		       max_occurrences, occurrences_count, auto_process, create_transaction, notify_days_before
		FROM recurrence_plans WHERE obligation_id = ?`, id,
	).Scan(
		&p.ObligationID, &p.Frequency, &p.Interval, &dayOfMonth, &dayOfWeek,
		&maxOcc, &p.OccurrencesCount, &p.AutoProcess, &p.CreateTransaction, &p.NotifyDaysBefore,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.DayOfMonth = intPtr(dayOfMonth)
	p.DayOfWeek = intPtr(dayOfWeek)
	p.MaxOccurrences = intPtr(maxOcc)
	return &p, nil
}

func (s *Store) SaveDebt(ctx context.Context, d engine.DebtState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var installment, rate *string
	if d.InstallmentAmount != nil {
		v := d.InstallmentAmount.Value.String()
		installment = &v
	}
	if d.InterestRate != nil {
		v := d.InterestRate.String()
		rate = &v
	}

	query := `
		INSERT INTO debt_states
		(obligation_id, original_amount, remaining_amount, paid_amount, currency,
		 total_installments, paid_installments, installment_amount, interest_rate,
		 late_fee, days_overdue, due_date, creditor, reference)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(obligation_id) DO UPDATE SET
			remaining_amount = excluded.remaining_amount,
			paid_amount = excluded.paid_amount,
			total_installments = excluded.total_installments,
			paid_installments = excluded.paid_installments,
			installment_amount = excluded.installment_amount,
			interest_rate = excluded.interest_rate,
			late_fee = excluded.late_fee,
			days_overdue = excluded.days_overdue,
			due_date = excluded.due_date,
			creditor = excluded.creditor,
			reference = excluded.reference
	`

	_, err := s.db.ExecContext(ctx, query,
		d.ObligationID,
		d.OriginalAmount.Value.String(), d.RemainingAmount.Value.String(),
		d.PaidAmount.Value.String(), d.OriginalAmount.Currency,
		d.TotalInstallments, d.PaidInstallments, installment, rate,
		d.LateFee.Value.String(), d.DaysOverdue, nullDate(d.DueDate),
		d.Creditor, d.Reference,
	)
	return err
}

func (s *Store) GetDebt(ctx context.Context, id engine.ObligationID) (*engine.DebtState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		d           engine.DebtState
		original    string
		remaining   string
		paid        string
		currency    string
		installment sql.NullString
		rate        sql.NullString
		lateFee     string
		dueDate     sql.NullString
		creditor    sql.NullString
		reference   sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT obligation_id, original_amount, remaining_amount, paid_amount, currency,
		       total_installments, paid_installments, installment_amount, interest_rate,
		       late_fee, days_overdue, due_date, creditor, reference
		FROM debt_states WHERE obligation_id = ?`, id,
	).Scan(
		&d.ObligationID, &original, &remaining, &paid, &currency,
		&d.TotalInstallments, &d.PaidInstallments, &installment, &rate,
		&lateFee, &d.DaysOverdue, &dueDate, &creditor, &reference,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if d.OriginalAmount, err = parseMoney(original, currency); err != nil {
		return nil, err
	}
	if d.RemainingAmount, err = parseMoney(remaining, currency); err != nil {
		return nil, err
	}
	if d.PaidAmount, err = parseMoney(paid, currency); err != nil {
		return nil, err
	}
	if d.LateFee, err = parseMoney(lateFee, currency); err != nil {
		return nil, err
	}
	if installment.Valid {
		m, err := parseMoney(installment.String, currency)
		if err != nil {
			return nil, err
		}
		d.InstallmentAmount = &m
	}
	if rate.Valid {
		r, err := decimal.NewFromString(rate.String)
		if err != nil {
			return nil, fmt.Errorf("malformed stored interest rate %q: %w", rate.String, err)
		}
		d.InterestRate = &r
	}
	d.DueDate = parseNullDate(dueDate)
	d.Creditor = creditor.String
	d.Reference = reference.String
	return &d, nil
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (s *Store) InsertEntry(ctx context.Context, e engine.OccurrenceHistoryEntry) (engine.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO occurrence_history
		(obligation_id, planned_amount, actual_amount, currency, status,
		 scheduled_date, processed_date, transaction_id, failure_reason, payment_method, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		e.ObligationID,
		e.PlannedAmount.Value.String(), e.ActualAmount.Value.String(), e.PlannedAmount.Currency,
		e.Status, e.ScheduledDate.String(), nullDate(e.ProcessedDate),
		nullTxID(e.TransactionID), e.FailureReason, e.PaymentMethod, e.Notes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return 0, engine.ErrDuplicateOccurrence
		}
		return 0, fmt.Errorf("failed to insert history entry: %w", err)
	}

	id, err := res.LastInsertId()
	return engine.EntryID(id), err
}

func (s *Store) GetEntry(ctx context.Context, id engine.EntryID) (*engine.OccurrenceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, historySelect+" WHERE id = ?", id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e engine.OccurrenceHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE occurrence_history
		SET actual_amount = ?, status = ?, processed_date = ?,
		    transaction_id = ?, failure_reason = ?, payment_method = ?, notes = ?
		WHERE id = ?`,
		e.ActualAmount.Value.String(), e.Status, nullDate(e.ProcessedDate),
		nullTxID(e.TransactionID), e.FailureReason, e.PaymentMethod, e.Notes, e.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrEntryNotFound
	}
	return nil
}

func (s *Store) FindEntry(ctx context.Context, obligationID engine.ObligationID, scheduled engine.Date) (*engine.OccurrenceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		historySelect+" WHERE obligation_id = ? AND scheduled_date = ?",
		obligationID, scheduled.String())
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) EntriesByObligation(ctx context.Context, obligationID engine.ObligationID) ([]engine.OccurrenceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		historySelect+" WHERE obligation_id = ? ORDER BY scheduled_date ASC, id ASC",
		obligationID)
}

func (s *Store) PendingBefore(ctx context.Context, asOf engine.Date) ([]engine.OccurrenceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		historySelect+" WHERE status = ? AND scheduled_date < ? ORDER BY scheduled_date ASC, id ASC",
		engine.OccurrencePending, asOf.String())
}

func (s *Store) EntriesInRange(ctx context.Context, from, to engine.Date) ([]engine.OccurrenceHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx,
		historySelect+" WHERE scheduled_date >= ? AND scheduled_date <= ? ORDER BY scheduled_date ASC, id ASC",
		from.String(), to.String())
}

const historySelect = `
	SELECT id, obligation_id, planned_amount, actual_amount, currency, status,
	       scheduled_date, processed_date, transaction_id, failure_reason, payment_method, notes
	FROM occurrence_history`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]engine.OccurrenceHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []engine.OccurrenceHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*engine.OccurrenceHistoryEntry, error) {
	var (
		e             engine.OccurrenceHistoryEntry
		planned       string
		actual        string
		currency      string
		scheduledDate string
		processedDate sql.NullString
		txID          sql.NullInt64
		failureReason sql.NullString
		paymentMethod sql.NullString
		notes         sql.NullString
	)

	err := row.Scan(
		&e.ID, &e.ObligationID, &planned, &actual, &currency, &e.Status,
		&scheduledDate, &processedDate, &txID, &failureReason, &paymentMethod, &notes,
	)
	if err != nil {
		return nil, err
	}

	if e.PlannedAmount, err = parseMoney(planned, currency); err != nil {
		return nil, err
	}
	if e.ActualAmount, err = parseMoney(actual, currency); err != nil {
		return nil, err
	}
	e.ScheduledDate, _ = engine.ParseDate(scheduledDate)
	e.ProcessedDate = parseNullDate(processedDate)
	if txID.Valid {
		id := engine.TransactionID(txID.Int64)
		e.TransactionID = &id
	}
	e.FailureReason = failureReason.String
	e.PaymentMethod = paymentMethod.String
	e.Notes = notes.String
	return &e, nil
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a engine.LedgerAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, db dbtx, a engine.LedgerAccount) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO accounts (id, name, balance, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			balance = excluded.balance,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		a.ID, a.Name, a.Balance.Value.String(), a.Balance.Currency, now, now)
	return err
}

func (s *Store) GetAccount(ctx context.Context, id engine.AccountID) (*engine.LedgerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func getAccount(ctx context.Context, db dbtx, id engine.AccountID) (*engine.LedgerAccount, error) {
	var (
		a        engine.LedgerAccount
		balance  string
		currency string
	)
	err := db.QueryRowContext(ctx,
		"SELECT id, name, balance, currency FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &balance, &currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if a.Balance, err = parseMoney(balance, currency); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]engine.LedgerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listAccounts(ctx, s.db)
}

func listAccounts(ctx context.Context, db dbtx) ([]engine.LedgerAccount, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, balance, currency FROM accounts ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []engine.LedgerAccount
	for rows.Next() {
		var (
			a        engine.LedgerAccount
			balance  string
			currency string
		)
		if err := rows.Scan(&a.ID, &a.Name, &balance, &currency); err != nil {
			return nil, err
		}
		if a.Balance, err = parseMoney(balance, currency); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) InsertTransaction(ctx context.Context, t engine.Transaction) (engine.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertTransaction(ctx, s.db, t)
}

func insertTransaction(ctx context.Context, db dbtx, t engine.Transaction) (engine.TransactionID, error) {
	var dest *string
	if t.DestinationID != nil {
		v := string(*t.DestinationID)
		dest = &v
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO transactions
		(kind, amount, currency, account_id, destination_id, tx_date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Kind, t.Amount.Value.String(), t.Amount.Currency,
		t.AccountID, dest, t.Date.String(), t.Description,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	return engine.TransactionID(id), err
}

func (s *Store) GetTransaction(ctx context.Context, id engine.TransactionID) (*engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTransaction(ctx, s.db, id)
}

func getTransaction(ctx context.Context, db dbtx, id engine.TransactionID) (*engine.Transaction, error) {
	row := db.QueryRowContext(ctx, transactionSelect+" WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID engine.AccountID) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, accountID)
}

func listTransactions(ctx context.Context, db dbtx, accountID engine.AccountID) ([]engine.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		transactionSelect+` WHERE account_id = ? OR destination_id = ?
		 ORDER BY tx_date ASC, id ASC`,
		accountID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []engine.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func (s *Store) UpdateTransaction(ctx context.Context, t engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateTransaction(ctx, s.db, t)
}

func updateTransaction(ctx context.Context, db dbtx, t engine.Transaction) error {
	var dest *string
	if t.DestinationID != nil {
		v := string(*t.DestinationID)
		dest = &v
	}

	res, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET kind = ?, amount = ?, currency = ?, account_id = ?,
		    destination_id = ?, tx_date = ?, description = ?
		WHERE id = ?`,
		t.Kind, t.Amount.Value.String(), t.Amount.Currency,
		t.AccountID, dest, t.Date.String(), t.Description, t.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrTransactionNotFound
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id engine.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteTransaction(ctx, s.db, id)
}

func deleteTransaction(ctx context.Context, db dbtx, id engine.TransactionID) error {
	res, err := db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return engine.ErrTransactionNotFound
	}
	return nil
}

const transactionSelect = `
	SELECT id, kind, amount, currency, account_id, destination_id, tx_date, description
	FROM transactions`

func scanTransaction(row rowScanner) (*engine.Transaction, error) {
	var (
		t           engine.Transaction
		amount      string
		currency    string
		dest        sql.NullString
		txDate      string
		description sql.NullString
	)
	err := row.Scan(&t.ID, &t.Kind, &amount, &currency, &t.AccountID, &dest, &txDate, &description)
	if err != nil {
		return nil, err
	}

	if t.Amount, err = parseMoney(amount, currency); err != nil {
		return nil, err
	}
	if dest.Valid {
		id := engine.AccountID(dest.String)
		t.DestinationID = &id
	}
	t.Date, _ = engine.ParseDate(txDate)
	t.Description = description.String
	return &t, nil
}

// =============================================================================
// TRANSACTIONAL BOUNDARY
// =============================================================================

// WithTx executes fn within a database transaction. Reads inside the
// boundary go through the same *sql.Tx, so a revert followed by an apply
// observes the reverted balance.
func (s *Store) WithTx(ctx context.Context, fn func(engine.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txLedger{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txLedger is the LedgerStore view inside a WithTx boundary.
type txLedger struct {
	tx *sql.Tx
}

func (t *txLedger) SaveAccount(ctx context.Context, a engine.LedgerAccount) error {
	return saveAccount(ctx, t.tx, a)
}

func (t *txLedger) GetAccount(ctx context.Context, id engine.AccountID) (*engine.LedgerAccount, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *txLedger) ListAccounts(ctx context.Context) ([]engine.LedgerAccount, error) {
	return listAccounts(ctx, t.tx)
}

func (t *txLedger) InsertTransaction(ctx context.Context, tx engine.Transaction) (engine.TransactionID, error) {
	return insertTransaction(ctx, t.tx, tx)
}

func (t *txLedger) GetTransaction(ctx context.Context, id engine.TransactionID) (*engine.Transaction, error) {
	return getTransaction(ctx, t.tx, id)
}

func (t *txLedger) ListTransactions(ctx context.Context, accountID engine.AccountID) ([]engine.Transaction, error) {
	return listTransactions(ctx, t.tx, accountID)
}

func (t *txLedger) UpdateTransaction(ctx context.Context, tx engine.Transaction) error {
	return updateTransaction(ctx, t.tx, tx)
}

func (t *txLedger) DeleteTransaction(ctx context.Context, id engine.TransactionID) error {
	return deleteTransaction(ctx, t.tx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

// parseMoney surfaces malformed stored amounts instead of reading them
// as zero; a corrupted row must fail the query loudly.
func parseMoney(value, currency string) (engine.Money, error) {
	v, err := decimal.NewFromString(value)
	if err != nil {
		return engine.Money{}, fmt.Errorf("malformed stored amount %q: %w", value, err)
	}
	return engine.Money{Value: v, Currency: engine.Currency(currency)}, nil
}

func nullDate(d *engine.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseNullDate(s sql.NullString) *engine.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := engine.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullInt(n *int) *int64 {
	if n == nil {
		return nil
	}
	v := int64(*n)
	return &v
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullCategory(c *engine.CategoryID) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func nullTxID(id *engine.TransactionID) *int64 {
	if id == nil {
		return nil
	}
	v := int64(*id)
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Reset clears all data. Intended for tests and the demo seed.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"occurrence_history", "recurrence_plans", "debt_states", "obligations", "transactions", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

var _ engine.Store = (*Store)(nil)

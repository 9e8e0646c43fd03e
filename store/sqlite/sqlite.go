/*
Package sqlite provides the SQLite-backed implementation of the recovery
storage interfaces.

PURPOSE:
  Implements recovery.TxStore using database/sql. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  overtime_transactions: funding sources (rows owned by the upstream
                         approval workflow; this engine writes only the
                         grant spend channel and status)
  recovery_grants:       grants and their state machine
  ledger_entries:        which transaction funded which grant, batch
                         inserted and batch deleted, never updated
  leaves:                read-only facts from the leave module
  employees:             reference resolution
  tenant_settings:       conversion policy per tenant

TRANSACTIONS:
  WithTx wraps a function in a single database transaction. The conversion
  and cancellation flows run their reads and writes through the same
  transactional view, so a failed ledger write rolls back the grant and
  every overtime mutation with it.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. In production
  with PostgreSQL, database-level concurrency control handles this instead.

USAGE:
  st, err := sqlite.New("./data/recovery.db")  // ":memory:" for tests
  svc := recovery.NewService(st)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - recovery/store.go: Interface definitions
  - recovery/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/recovery-engine/recovery"
)

// Store implements recovery.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens the database and migrates the schema. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, id)
	);

	-- Funding sources. Rows are created upstream; this engine only writes
	-- spent_grant, spent_grant_hours and status.
	CREATE TABLE IF NOT EXISTS overtime_transactions (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		raw_hours TEXT NOT NULL,
		approved_hours TEXT,
		spent_legacy INTEGER NOT NULL DEFAULT 0,
		spent_legacy_hours TEXT NOT NULL DEFAULT '0',
		spent_grant INTEGER NOT NULL DEFAULT 0,
		spent_grant_hours TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	-- FIFO allocation hot path
	CREATE INDEX IF NOT EXISTS idx_overtime_employee_status_date
		ON overtime_transactions(tenant_id, employee_id, status, date ASC);

	CREATE TABLE IF NOT EXISTS recovery_grants (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		day_count TEXT NOT NULL,
		source_hours TEXT NOT NULL,
		conversion_rate TEXT NOT NULL,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_grants_employee_dates
		ON recovery_grants(tenant_id, employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_grants_status_end
		ON recovery_grants(status, end_date);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		overtime_id TEXT NOT NULL,
		grant_id TEXT NOT NULL,
		hours_used TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_grant ON ledger_entries(grant_id);
	CREATE INDEX IF NOT EXISTS idx_entries_overtime ON ledger_entries(overtime_id);

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee_dates
		ON leaves(tenant_id, employee_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS tenant_settings (
		tenant_id TEXT PRIMARY KEY,
		daily_working_hours TEXT NOT NULL,
		conversion_rate TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx, so every query below is
// shared between the plain store and the transactional view.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee inserts or replaces an employee record.
func (s *Store) SaveEmployee(ctx context.Context, e recovery.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, tenant_id, name) VALUES (?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET name = excluded.name`,
		e.ID, e.TenantID, e.Name)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, id string) (*recovery.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, tenantID, id)
}

func getEmployee(ctx context.Context, q querier, tenantID, id string) (*recovery.Employee, error) {
	var e recovery.Employee
	err := q.QueryRowContext(ctx,
		"SELECT id, tenant_id, name FROM employees WHERE tenant_id = ? AND id = ?",
		tenantID, id,
	).Scan(&e.ID, &e.TenantID, &e.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query employee: %w", err)
	}
	return &e, nil
}

// =============================================================================
// OVERTIME TRANSACTIONS
// =============================================================================

const overtimeColumns = `id, tenant_id, employee_id, date, raw_hours, approved_hours,
	spent_legacy, spent_legacy_hours, spent_grant, spent_grant_hours, status`

func (s *Store) SaveOvertime(ctx context.Context, tx recovery.OvertimeTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveOvertime(ctx, s.db, tx)
}

func saveOvertime(ctx context.Context, q querier, tx recovery.OvertimeTransaction) error {
	var approved *string
	if tx.ApprovedHours != nil {
		v := tx.ApprovedHours.String()
		approved = &v
	}
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO overtime_transactions (`+overtimeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.TenantID, tx.EmployeeID, tx.Date.String(),
		tx.RawHours.String(), approved,
		tx.SpentLegacy, tx.SpentLegacyHours.String(),
		tx.SpentGrant, tx.SpentGrantHours.String(),
		tx.Status)
	if err != nil {
		return fmt.Errorf("failed to save overtime: %w", err)
	}
	return nil
}

func (s *Store) GetOvertime(ctx context.Context, tenantID, id string) (*recovery.OvertimeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getOvertime(ctx, s.db, tenantID, id)
}

func getOvertime(ctx context.Context, q querier, tenantID, id string) (*recovery.OvertimeTransaction, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+overtimeColumns+" FROM overtime_transactions WHERE tenant_id = ? AND id = ?",
		tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query overtime: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	tx, err := scanOvertime(rows)
	if err != nil {
		return nil, err
	}
	return &tx, rows.Err()
}

func (s *Store) ListApprovedOvertime(ctx context.Context, tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovedOvertime(ctx, s.db, tenantID, employeeID)
}

func listApprovedOvertime(ctx context.Context, q querier, tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+overtimeColumns+` FROM overtime_transactions
		WHERE tenant_id = ? AND employee_id = ? AND status = ?
		ORDER BY date ASC, id ASC`,
		tenantID, employeeID, recovery.OvertimeApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to query overtime: %w", err)
	}
	defer rows.Close()

	var txs []recovery.OvertimeTransaction
	for rows.Next() {
		tx, err := scanOvertime(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) UpdateOvertimeSpend(ctx context.Context, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateOvertimeSpend(ctx, s.db, tenantID, id, spentGrant, spentGrantHours, status)
}

func updateOvertimeSpend(ctx context.Context, q querier, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	res, err := q.ExecContext(ctx, `
		UPDATE overtime_transactions
		SET spent_grant = ?, spent_grant_hours = ?, status = ?
		WHERE tenant_id = ? AND id = ?`,
		spentGrant, spentGrantHours.String(), status, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to update overtime spend: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, recovery.ErrOvertimeNotFound)
	}
	return nil
}

func scanOvertime(rows *sql.Rows) (recovery.OvertimeTransaction, error) {
	var (
		tx               recovery.OvertimeTransaction
		date             string
		rawHours         string
		approvedHours    sql.NullString
		spentLegacyHours string
		spentGrantHours  string
	)
	err := rows.Scan(&tx.ID, &tx.TenantID, &tx.EmployeeID, &date, &rawHours, &approvedHours,
		&tx.SpentLegacy, &spentLegacyHours, &tx.SpentGrant, &spentGrantHours, &tx.Status)
	if err != nil {
		return tx, fmt.Errorf("failed to scan overtime: %w", err)
	}

	tx.Date, err = recovery.ParseDate(date)
	if err != nil {
		return tx, err
	}
	tx.RawHours = mustDecimal(rawHours)
	if approvedHours.Valid {
		v := mustDecimal(approvedHours.String)
		tx.ApprovedHours = &v
	}
	tx.SpentLegacyHours = mustDecimal(spentLegacyHours)
	tx.SpentGrantHours = mustDecimal(spentGrantHours)
	return tx, nil
}

// =============================================================================
// RECOVERY GRANTS
// =============================================================================

const grantColumns = `id, tenant_id, employee_id, start_date, end_date, day_count,
	source_hours, conversion_rate, status, notes, approved_by, approved_at,
	created_at, updated_at`

func (s *Store) CreateGrant(ctx context.Context, g *recovery.RecoveryGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createGrant(ctx, s.db, g)
}

func createGrant(ctx context.Context, q querier, g *recovery.RecoveryGrant) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO recovery_grants (`+grantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.TenantID, g.EmployeeID,
		g.StartDate.String(), g.EndDate.String(), g.DayCount.String(),
		g.SourceHours.String(), g.ConversionRate.String(),
		g.Status, g.Notes, g.ApprovedBy, nullTime(g.ApprovedAt),
		g.CreatedAt.UTC().Format(time.RFC3339), g.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, tenantID, id string) (*recovery.RecoveryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGrant(ctx, s.db, tenantID, id)
}

func getGrant(ctx context.Context, q querier, tenantID, id string) (*recovery.RecoveryGrant, error) {
	grants, err := queryGrants(ctx, q,
		"SELECT "+grantColumns+" FROM recovery_grants WHERE tenant_id = ? AND id = ?",
		tenantID, id)
	if err != nil {
		return nil, err
	}
	if len(grants) == 0 {
		return nil, nil
	}
	return &grants[0], nil
}

func (s *Store) UpdateGrant(ctx context.Context, g *recovery.RecoveryGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateGrant(ctx, s.db, g)
}

func updateGrant(ctx context.Context, q querier, g *recovery.RecoveryGrant) error {
	res, err := q.ExecContext(ctx, `
		UPDATE recovery_grants
		SET start_date = ?, end_date = ?, day_count = ?, source_hours = ?,
		    conversion_rate = ?, status = ?, notes = ?, approved_by = ?,
		    approved_at = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?`,
		g.StartDate.String(), g.EndDate.String(), g.DayCount.String(),
		g.SourceHours.String(), g.ConversionRate.String(),
		g.Status, g.Notes, g.ApprovedBy, nullTime(g.ApprovedAt),
		g.UpdatedAt.UTC().Format(time.RFC3339),
		g.TenantID, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", g.ID, recovery.ErrGrantNotFound)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listGrants(ctx, s.db, f)
}

func listGrants(ctx context.Context, q querier, f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	where := []string{"1=1"}
	var args []any

	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		where = append(where, "end_date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		where = append(where, "start_date <= ?")
		args = append(args, f.To.String())
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM recovery_grants WHERE "+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count grants: %w", err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	args = append(args, limit, (page-1)*limit)

	grants, err := queryGrants(ctx, q, `
		SELECT `+grantColumns+` FROM recovery_grants WHERE `+clause+`
		ORDER BY start_date DESC, id ASC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, err
	}
	return grants, total, nil
}

func (s *Store) ListEmployeeGrants(ctx context.Context, tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEmployeeGrants(ctx, s.db, tenantID, employeeID, from, to)
}

func listEmployeeGrants(ctx context.Context, q querier, tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	query := "SELECT " + grantColumns + " FROM recovery_grants WHERE tenant_id = ? AND employee_id = ?"
	args := []any{tenantID, employeeID}
	if from != nil {
		query += " AND end_date >= ?"
		args = append(args, from.String())
	}
	if to != nil {
		query += " AND start_date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY start_date DESC, id ASC"
	return queryGrants(ctx, q, query, args...)
}

func (s *Store) ListOverlappingGrants(ctx context.Context, tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOverlappingGrants(ctx, s.db, tenantID, employeeID, start, end, statuses, excludeID)
}

func listOverlappingGrants(ctx context.Context, q querier, tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	placeholders := make([]string, len(statuses))
	args := []any{tenantID, employeeID}
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	// Closed-interval overlap: starts before the window ends, ends after it
	// starts.
	query := `
		SELECT ` + grantColumns + ` FROM recovery_grants
		WHERE tenant_id = ? AND employee_id = ?
		  AND status IN (` + strings.Join(placeholders, ", ") + `)
		  AND start_date <= ? AND end_date >= ?`
	args = append(args, end.String(), start.String())
	if excludeID != "" {
		query += " AND id != ?"
		args = append(args, excludeID)
	}
	query += " ORDER BY start_date ASC"
	return queryGrants(ctx, q, query, args...)
}

func (s *Store) ListApprovedEnding(ctx context.Context, before recovery.Date) ([]recovery.RecoveryGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApprovedEnding(ctx, s.db, before)
}

func listApprovedEnding(ctx context.Context, q querier, before recovery.Date) ([]recovery.RecoveryGrant, error) {
	return queryGrants(ctx, q, `
		SELECT `+grantColumns+` FROM recovery_grants
		WHERE status = ? AND end_date < ?
		ORDER BY end_date ASC`,
		recovery.GrantApproved, before.String())
}

func queryGrants(ctx context.Context, q querier, query string, args ...any) ([]recovery.RecoveryGrant, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var grants []recovery.RecoveryGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

func scanGrant(rows *sql.Rows) (recovery.RecoveryGrant, error) {
	var (
		g           recovery.RecoveryGrant
		startDate   string
		endDate     string
		dayCount    string
		sourceHours string
		rate        string
		approvedAt  sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := rows.Scan(&g.ID, &g.TenantID, &g.EmployeeID, &startDate, &endDate,
		&dayCount, &sourceHours, &rate, &g.Status, &g.Notes, &g.ApprovedBy,
		&approvedAt, &createdAt, &updatedAt)
	if err != nil {
		return g, fmt.Errorf("failed to scan grant: %w", err)
	}

	if g.StartDate, err = recovery.ParseDate(startDate); err != nil {
		return g, err
	}
	if g.EndDate, err = recovery.ParseDate(endDate); err != nil {
		return g, err
	}
	g.DayCount = mustDecimal(dayCount)
	g.SourceHours = mustDecimal(sourceHours)
	g.ConversionRate = mustDecimal(rate)
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		g.ApprovedAt = &t
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	g.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return g, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (s *Store) AppendEntries(ctx context.Context, entries []recovery.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntries(ctx, s.db, entries)
}

func appendEntries(ctx context.Context, q querier, entries []recovery.LedgerEntry) error {
	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, overtime_id, grant_id, hours_used, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			e.ID, e.OvertimeID, e.GrantID, e.HoursUsed.String(),
			e.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}
	return nil
}

func (s *Store) ListEntriesByGrant(ctx context.Context, grantID string) ([]recovery.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listEntriesByGrant(ctx, s.db, grantID)
}

func listEntriesByGrant(ctx context.Context, q querier, grantID string) ([]recovery.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, overtime_id, grant_id, hours_used, created_at
		FROM ledger_entries WHERE grant_id = ? ORDER BY id ASC`, grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []recovery.LedgerEntry
	for rows.Next() {
		var (
			e         recovery.LedgerEntry
			hours     string
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.OvertimeID, &e.GrantID, &hours, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.HoursUsed = mustDecimal(hours)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) DeleteEntriesByGrant(ctx context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEntriesByGrant(ctx, s.db, grantID)
}

func deleteEntriesByGrant(ctx context.Context, q querier, grantID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM ledger_entries WHERE grant_id = ?", grantID)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entries: %w", err)
	}
	return nil
}

// =============================================================================
// LEAVES
// =============================================================================

// SaveLeave inserts or replaces a leave fact. The leave module owns these
// rows; this writer exists for seeding and tests.
func (s *Store) SaveLeave(ctx context.Context, l recovery.Leave) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO leaves (id, tenant_id, employee_id, start_date, end_date, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.TenantID, l.EmployeeID, l.StartDate.String(), l.EndDate.String(), l.Status)
	return err
}

func (s *Store) ListBlockingLeaves(ctx context.Context, tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBlockingLeaves(ctx, s.db, tenantID, employeeID, start, end)
}

func listBlockingLeaves(ctx context.Context, q querier, tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, employee_id, start_date, end_date, status
		FROM leaves
		WHERE tenant_id = ? AND employee_id = ?
		  AND status NOT IN (?, ?)
		  AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC`,
		tenantID, employeeID, recovery.LeaveRejected, recovery.LeaveCancelled,
		end.String(), start.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var leaves []recovery.Leave
	for rows.Next() {
		var (
			l         recovery.Leave
			startDate string
			endDate   string
		)
		if err := rows.Scan(&l.ID, &l.TenantID, &l.EmployeeID, &startDate, &endDate, &l.Status); err != nil {
			return nil, fmt.Errorf("failed to scan leave: %w", err)
		}
		if l.StartDate, err = recovery.ParseDate(startDate); err != nil {
			return nil, err
		}
		if l.EndDate, err = recovery.ParseDate(endDate); err != nil {
			return nil, err
		}
		leaves = append(leaves, l)
	}
	return leaves, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

// SaveConversionPolicy stores a tenant's hours/days constants.
func (s *Store) SaveConversionPolicy(ctx context.Context, tenantID string, p recovery.ConversionPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_settings (tenant_id, daily_working_hours, conversion_rate)
		VALUES (?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			daily_working_hours = excluded.daily_working_hours,
			conversion_rate = excluded.conversion_rate`,
		tenantID, p.DailyWorkingHours.String(), p.ConversionRate.String())
	return err
}

func (s *Store) GetConversionPolicy(ctx context.Context, tenantID string) (recovery.ConversionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getConversionPolicy(ctx, s.db, tenantID)
}

func getConversionPolicy(ctx context.Context, q querier, tenantID string) (recovery.ConversionPolicy, error) {
	var dwh, rate string
	err := q.QueryRowContext(ctx,
		"SELECT daily_working_hours, conversion_rate FROM tenant_settings WHERE tenant_id = ?",
		tenantID,
	).Scan(&dwh, &rate)
	if err == sql.ErrNoRows {
		return recovery.DefaultConversionPolicy(), nil
	}
	if err != nil {
		return recovery.ConversionPolicy{}, fmt.Errorf("failed to query settings: %w", err)
	}
	return recovery.ConversionPolicy{
		DailyWorkingHours: mustDecimal(dwh),
		ConversionRate:    mustDecimal(rate),
	}, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Any error rolls back
// every write made through the transactional view.
func (s *Store) WithTx(ctx context.Context, fn func(recovery.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the recovery.Store view bound to one open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, tenantID, id string) (*recovery.Employee, error) {
	return getEmployee(ctx, ts.tx, tenantID, id)
}

func (ts *txStore) GetOvertime(ctx context.Context, tenantID, id string) (*recovery.OvertimeTransaction, error) {
	return getOvertime(ctx, ts.tx, tenantID, id)
}

func (ts *txStore) ListApprovedOvertime(ctx context.Context, tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	return listApprovedOvertime(ctx, ts.tx, tenantID, employeeID)
}

func (ts *txStore) SaveOvertime(ctx context.Context, tx recovery.OvertimeTransaction) error {
	return saveOvertime(ctx, ts.tx, tx)
}

func (ts *txStore) UpdateOvertimeSpend(ctx context.Context, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	return updateOvertimeSpend(ctx, ts.tx, tenantID, id, spentGrant, spentGrantHours, status)
}

func (ts *txStore) CreateGrant(ctx context.Context, g *recovery.RecoveryGrant) error {
	return createGrant(ctx, ts.tx, g)
}

func (ts *txStore) GetGrant(ctx context.Context, tenantID, id string) (*recovery.RecoveryGrant, error) {
	return getGrant(ctx, ts.tx, tenantID, id)
}

func (ts *txStore) UpdateGrant(ctx context.Context, g *recovery.RecoveryGrant) error {
	return updateGrant(ctx, ts.tx, g)
}

func (ts *txStore) ListGrants(ctx context.Context, f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	return listGrants(ctx, ts.tx, f)
}

func (ts *txStore) ListEmployeeGrants(ctx context.Context, tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	return listEmployeeGrants(ctx, ts.tx, tenantID, employeeID, from, to)
}

func (ts *txStore) ListOverlappingGrants(ctx context.Context, tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	return listOverlappingGrants(ctx, ts.tx, tenantID, employeeID, start, end, statuses, excludeID)
}

func (ts *txStore) ListApprovedEnding(ctx context.Context, before recovery.Date) ([]recovery.RecoveryGrant, error) {
	return listApprovedEnding(ctx, ts.tx, before)
}

func (ts *txStore) AppendEntries(ctx context.Context, entries []recovery.LedgerEntry) error {
	return appendEntries(ctx, ts.tx, entries)
}

func (ts *txStore) ListEntriesByGrant(ctx context.Context, grantID string) ([]recovery.LedgerEntry, error) {
	return listEntriesByGrant(ctx, ts.tx, grantID)
}

func (ts *txStore) DeleteEntriesByGrant(ctx context.Context, grantID string) error {
	return deleteEntriesByGrant(ctx, ts.tx, grantID)
}

func (ts *txStore) ListBlockingLeaves(ctx context.Context, tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	return listBlockingLeaves(ctx, ts.tx, tenantID, employeeID, start, end)
}

func (ts *txStore) GetConversionPolicy(ctx context.Context, tenantID string) (recovery.ConversionPolicy, error) {
	return getConversionPolicy(ctx, ts.tx, tenantID)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}

// Compile-time interface checks.
var (
	_ recovery.Store   = (*txStore)(nil)
	_ recovery.TxStore = (*Store)(nil)
)

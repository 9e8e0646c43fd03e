// Package store provides an in-memory recovery.TxStore for tests and dev
// mode. Transactions are simulated with a snapshot taken on entry and
// restored on error, mirroring the rollback semantics of the SQLite store.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warp/recovery-engine/recovery"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	d  *data
}

type data struct {
	employees map[scopedKey]recovery.Employee
	overtime  map[scopedKey]recovery.OvertimeTransaction
	grants    map[scopedKey]recovery.RecoveryGrant
	entries   map[string][]recovery.LedgerEntry // grantID -> entries
	leaves    []recovery.Leave
	policies  map[string]recovery.ConversionPolicy // tenantID -> policy
}

type scopedKey struct {
	TenantID string
	ID       string
}

func NewMemory() *Memory {
	return &Memory{d: newData()}
}

func newData() *data {
	return &data{
		employees: make(map[scopedKey]recovery.Employee),
		overtime:  make(map[scopedKey]recovery.OvertimeTransaction),
		grants:    make(map[scopedKey]recovery.RecoveryGrant),
		entries:   make(map[string][]recovery.LedgerEntry),
		policies:  make(map[string]recovery.ConversionPolicy),
	}
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e recovery.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.employees[scopedKey{e.TenantID, e.ID}] = e
	return nil
}

func (m *Memory) SaveLeave(_ context.Context, l recovery.Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.leaves = append(m.d.leaves, l)
	return nil
}

func (m *Memory) SetConversionPolicy(tenantID string, p recovery.ConversionPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.policies[tenantID] = p
}

// =============================================================================
// OVERTIME
// =============================================================================

func (m *Memory) GetOvertime(_ context.Context, tenantID, id string) (*recovery.OvertimeTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getOvertime(tenantID, id)
}

func (m *Memory) ListApprovedOvertime(_ context.Context, tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listApprovedOvertime(tenantID, employeeID)
}

func (m *Memory) SaveOvertime(_ context.Context, tx recovery.OvertimeTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.overtime[scopedKey{tx.TenantID, tx.ID}] = tx
	return nil
}

func (m *Memory) UpdateOvertimeSpend(_ context.Context, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.updateOvertimeSpend(tenantID, id, spentGrant, spentGrantHours, status)
}

func (d *data) getOvertime(tenantID, id string) (*recovery.OvertimeTransaction, error) {
	tx, ok := d.overtime[scopedKey{tenantID, id}]
	if !ok {
		return nil, nil
	}
	cp := tx
	return &cp, nil
}

func (d *data) listApprovedOvertime(tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	var out []recovery.OvertimeTransaction
	for _, tx := range d.overtime {
		if tx.TenantID == tenantID && tx.EmployeeID == employeeID && tx.Status == recovery.OvertimeApproved {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) updateOvertimeSpend(tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	k := scopedKey{tenantID, id}
	tx, ok := d.overtime[k]
	if !ok {
		return recovery.ErrOvertimeNotFound
	}
	tx.SpentGrant = spentGrant
	tx.SpentGrantHours = spentGrantHours
	tx.Status = status
	d.overtime[k] = tx
	return nil
}

// =============================================================================
// GRANTS
// =============================================================================

func (m *Memory) CreateGrant(_ context.Context, g *recovery.RecoveryGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.grants[scopedKey{g.TenantID, g.ID}] = *g
	return nil
}

func (m *Memory) GetGrant(_ context.Context, tenantID, id string) (*recovery.RecoveryGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getGrant(tenantID, id)
}

func (m *Memory) UpdateGrant(_ context.Context, g *recovery.RecoveryGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.updateGrant(g)
}

func (m *Memory) ListGrants(_ context.Context, f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listGrants(f)
}

func (m *Memory) ListEmployeeGrants(_ context.Context, tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listEmployeeGrants(tenantID, employeeID, from, to)
}

func (m *Memory) ListOverlappingGrants(_ context.Context, tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listOverlappingGrants(tenantID, employeeID, start, end, statuses, excludeID)
}

func (m *Memory) ListApprovedEnding(_ context.Context, before recovery.Date) ([]recovery.RecoveryGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listApprovedEnding(before)
}

func (d *data) getGrant(tenantID, id string) (*recovery.RecoveryGrant, error) {
	g, ok := d.grants[scopedKey{tenantID, id}]
	if !ok {
		return nil, nil
	}
	cp := g
	return &cp, nil
}

func (d *data) updateGrant(g *recovery.RecoveryGrant) error {
	k := scopedKey{g.TenantID, g.ID}
	if _, ok := d.grants[k]; !ok {
		return recovery.ErrGrantNotFound
	}
	d.grants[k] = *g
	return nil
}

func (d *data) listGrants(f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	var all []recovery.RecoveryGrant
	for _, g := range d.grants {
		if f.TenantID != "" && g.TenantID != f.TenantID {
			continue
		}
		if f.EmployeeID != "" && g.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && g.Status != f.Status {
			continue
		}
		if f.From != nil && g.EndDate.Before(*f.From) {
			continue
		}
		if f.To != nil && g.StartDate.After(*f.To) {
			continue
		}
		all = append(all, g)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartDate.Equal(all[j].StartDate) {
			return all[i].StartDate.After(all[j].StartDate)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (d *data) listEmployeeGrants(tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	var out []recovery.RecoveryGrant
	for _, g := range d.grants {
		if g.TenantID != tenantID || g.EmployeeID != employeeID {
			continue
		}
		if from != nil && g.EndDate.Before(*from) {
			continue
		}
		if to != nil && g.StartDate.After(*to) {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.After(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *data) listOverlappingGrants(tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	want := make(map[recovery.GrantStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	requested := recovery.DateRange{Start: start, End: end}

	var out []recovery.RecoveryGrant
	for _, g := range d.grants {
		if g.TenantID != tenantID || g.EmployeeID != employeeID || g.ID == excludeID {
			continue
		}
		if !want[g.Status] {
			continue
		}
		if requested.Overlaps(recovery.DateRange{Start: g.StartDate, End: g.EndDate}) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (d *data) listApprovedEnding(before recovery.Date) ([]recovery.RecoveryGrant, error) {
	var out []recovery.RecoveryGrant
	for _, g := range d.grants {
		if g.Status == recovery.GrantApproved && g.EndDate.Before(before) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func (m *Memory) AppendEntries(_ context.Context, entries []recovery.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.appendEntries(entries)
}

func (m *Memory) ListEntriesByGrant(_ context.Context, grantID string) ([]recovery.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listEntriesByGrant(grantID)
}

func (m *Memory) DeleteEntriesByGrant(_ context.Context, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.d.entries, grantID)
	return nil
}

func (d *data) appendEntries(entries []recovery.LedgerEntry) error {
	for _, e := range entries {
		d.entries[e.GrantID] = append(d.entries[e.GrantID], e)
	}
	return nil
}

func (d *data) listEntriesByGrant(grantID string) ([]recovery.LedgerEntry, error) {
	out := make([]recovery.LedgerEntry, len(d.entries[grantID]))
	copy(out, d.entries[grantID])
	return out, nil
}

// =============================================================================
// LEAVES / EMPLOYEES / SETTINGS
// =============================================================================

func (m *Memory) ListBlockingLeaves(_ context.Context, tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.listBlockingLeaves(tenantID, employeeID, start, end)
}

func (m *Memory) GetEmployee(_ context.Context, tenantID, id string) (*recovery.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getEmployee(tenantID, id)
}

func (m *Memory) GetConversionPolicy(_ context.Context, tenantID string) (recovery.ConversionPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.getConversionPolicy(tenantID)
}

func (d *data) listBlockingLeaves(tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	requested := recovery.DateRange{Start: start, End: end}
	var out []recovery.Leave
	for _, l := range d.leaves {
		if l.TenantID != tenantID || l.EmployeeID != employeeID || !l.Status.Blocks() {
			continue
		}
		if requested.Overlaps(recovery.DateRange{Start: l.StartDate, End: l.EndDate}) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (d *data) getEmployee(tenantID, id string) (*recovery.Employee, error) {
	e, ok := d.employees[scopedKey{tenantID, id}]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (d *data) getConversionPolicy(tenantID string) (recovery.ConversionPolicy, error) {
	if p, ok := d.policies[tenantID]; ok {
		return p, nil
	}
	return recovery.DefaultConversionPolicy(), nil
}

// =============================================================================
// TRANSACTIONS - Snapshot on entry, restore on error
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(recovery.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	view := &txView{d: m.d}
	if err := fn(view); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

func (d *data) clone() *data {
	cp := newData()
	for k, v := range d.employees {
		cp.employees[k] = v
	}
	for k, v := range d.overtime {
		cp.overtime[k] = v
	}
	for k, v := range d.grants {
		cp.grants[k] = v
	}
	for k, v := range d.entries {
		cp.entries[k] = append([]recovery.LedgerEntry{}, v...)
	}
	cp.leaves = append([]recovery.Leave{}, d.leaves...)
	for k, v := range d.policies {
		cp.policies[k] = v
	}
	return cp
}

// txView exposes the already-locked data as a recovery.Store.
type txView struct {
	d *data
}

func (v *txView) GetOvertime(_ context.Context, tenantID, id string) (*recovery.OvertimeTransaction, error) {
	return v.d.getOvertime(tenantID, id)
}

func (v *txView) ListApprovedOvertime(_ context.Context, tenantID, employeeID string) ([]recovery.OvertimeTransaction, error) {
	return v.d.listApprovedOvertime(tenantID, employeeID)
}

func (v *txView) SaveOvertime(_ context.Context, tx recovery.OvertimeTransaction) error {
	v.d.overtime[scopedKey{tx.TenantID, tx.ID}] = tx
	return nil
}

func (v *txView) UpdateOvertimeSpend(_ context.Context, tenantID, id string, spentGrant bool, spentGrantHours decimal.Decimal, status recovery.OvertimeStatus) error {
	return v.d.updateOvertimeSpend(tenantID, id, spentGrant, spentGrantHours, status)
}

func (v *txView) CreateGrant(_ context.Context, g *recovery.RecoveryGrant) error {
	v.d.grants[scopedKey{g.TenantID, g.ID}] = *g
	return nil
}

func (v *txView) GetGrant(_ context.Context, tenantID, id string) (*recovery.RecoveryGrant, error) {
	return v.d.getGrant(tenantID, id)
}

func (v *txView) UpdateGrant(_ context.Context, g *recovery.RecoveryGrant) error {
	return v.d.updateGrant(g)
}

func (v *txView) ListGrants(_ context.Context, f recovery.GrantFilter) ([]recovery.RecoveryGrant, int, error) {
	return v.d.listGrants(f)
}

func (v *txView) ListEmployeeGrants(_ context.Context, tenantID, employeeID string, from, to *recovery.Date) ([]recovery.RecoveryGrant, error) {
	return v.d.listEmployeeGrants(tenantID, employeeID, from, to)
}

func (v *txView) ListOverlappingGrants(_ context.Context, tenantID, employeeID string, start, end recovery.Date, statuses []recovery.GrantStatus, excludeID string) ([]recovery.RecoveryGrant, error) {
	return v.d.listOverlappingGrants(tenantID, employeeID, start, end, statuses, excludeID)
}

func (v *txView) ListApprovedEnding(_ context.Context, before recovery.Date) ([]recovery.RecoveryGrant, error) {
	return v.d.listApprovedEnding(before)
}

func (v *txView) AppendEntries(_ context.Context, entries []recovery.LedgerEntry) error {
	return v.d.appendEntries(entries)
}

func (v *txView) ListEntriesByGrant(_ context.Context, grantID string) ([]recovery.LedgerEntry, error) {
	return v.d.listEntriesByGrant(grantID)
}

func (v *txView) DeleteEntriesByGrant(_ context.Context, grantID string) error {
	delete(v.d.entries, grantID)
	return nil
}

func (v *txView) ListBlockingLeaves(_ context.Context, tenantID, employeeID string, start, end recovery.Date) ([]recovery.Leave, error) {
	return v.d.listBlockingLeaves(tenantID, employeeID, start, end)
}

func (v *txView) GetEmployee(_ context.Context, tenantID, id string) (*recovery.Employee, error) {
	return v.d.getEmployee(tenantID, id)
}

func (v *txView) GetConversionPolicy(_ context.Context, tenantID string) (recovery.ConversionPolicy, error) {
	return v.d.getConversionPolicy(tenantID)
}

// Compile-time checks
var (
	_ recovery.Store   = (*txView)(nil)
	_ recovery.TxStore = (*Memory)(nil)
)

// Package store provides an in-memory engine.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/payflow/obligation-engine/engine"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	obligations map[engine.ObligationID]engine.ScheduledObligation
	plans       map[engine.ObligationID]engine.RecurrencePlan
	debts       map[engine.ObligationID]engine.DebtState

	entries     map[engine.EntryID]engine.OccurrenceHistoryEntry
	nextEntryID engine.EntryID

	accounts map[engine.AccountID]engine.LedgerAccount
	txs      map[engine.TransactionID]engine.Transaction
	nextTxID engine.TransactionID
}

func NewMemory() *Memory {
	return &Memory{
		obligations: make(map[engine.ObligationID]engine.ScheduledObligation),
		plans:       make(map[engine.ObligationID]engine.RecurrencePlan),
		debts:       make(map[engine.ObligationID]engine.DebtState),
		entries:     make(map[engine.EntryID]engine.OccurrenceHistoryEntry),
		accounts:    make(map[engine.AccountID]engine.LedgerAccount),
		txs:         make(map[engine.TransactionID]engine.Transaction),
	}
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

func (m *Memory) SaveObligation(_ context.Context, o engine.ScheduledObligation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obligations[o.ID] = o
	return nil
}

func (m *Memory) GetObligation(_ context.Context, id engine.ObligationID) (*engine.ScheduledObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if o, ok := m.obligations[id]; ok {
		return &o, nil
	}
	return nil, nil
}

func (m *Memory) ListObligations(_ context.Context) ([]engine.ScheduledObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.ScheduledObligation, 0, len(m.obligations))
	for _, o := range m.obligations {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayOrder != result[j].DisplayOrder {
			return result[i].DisplayOrder < result[j].DisplayOrder
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// DeleteObligation cascades to plan, debt state, and history entries.
func (m *Memory) DeleteObligation(_ context.Context, id engine.ObligationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.obligations, id)
	delete(m.plans, id)
	delete(m.debts, id)
	for entryID, e := range m.entries {
		if e.ObligationID == id {
			delete(m.entries, entryID)
		}
	}
	return nil
}

func (m *Memory) SavePlan(_ context.Context, p engine.RecurrencePlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ObligationID] = p
	return nil
}

func (m *Memory) GetPlan(_ context.Context, id engine.ObligationID) (*engine.RecurrencePlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plans[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) SaveDebt(_ context.Context, d engine.DebtState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debts[d.ObligationID] = d
	return nil
}

func (m *Memory) GetDebt(_ context.Context, id engine.ObligationID) (*engine.DebtState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.debts[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *Memory) DueObligations(_ context.Context, asOf engine.Date) ([]engine.ScheduledObligation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []engine.ScheduledObligation
	for _, o := range m.obligations {
		if o.Status != engine.StatusActive || o.NextOccurrence == nil {
			continue
		}
		if o.NextOccurrence.BeforeOrEqual(asOf) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextOccurrence.Equal(*due[j].NextOccurrence) {
			return due[i].NextOccurrence.Before(*due[j].NextOccurrence)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

// =============================================================================
// HISTORY STORE
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, e engine.OccurrenceHistoryEntry) (engine.EntryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEntryID++
	e.ID = m.nextEntryID
	m.entries[e.ID] = e
	return e.ID, nil
}

func (m *Memory) GetEntry(_ context.Context, id engine.EntryID) (*engine.OccurrenceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entries[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) UpdateEntry(_ context.Context, e engine.OccurrenceHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return engine.ErrEntryNotFound
	}
	m.entries[e.ID] = e
	return nil
}

func (m *Memory) FindEntry(_ context.Context, obligationID engine.ObligationID, scheduled engine.Date) (*engine.OccurrenceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ObligationID == obligationID && e.ScheduledDate.Equal(scheduled) {
			entry := e
			return &entry, nil
		}
	}
	return nil, nil
}

func (m *Memory) EntriesByObligation(_ context.Context, obligationID engine.ObligationID) ([]engine.OccurrenceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.OccurrenceHistoryEntry
	for _, e := range m.entries {
		if e.ObligationID == obligationID {
			result = append(result, e)
		}
	}
	sortEntries(result)
	return result, nil
}

func (m *Memory) PendingBefore(_ context.Context, asOf engine.Date) ([]engine.OccurrenceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.OccurrenceHistoryEntry
	for _, e := range m.entries {
		if e.Status == engine.OccurrencePending && e.ScheduledDate.Before(asOf) {
			result = append(result, e)
		}
	}
	sortEntries(result)
	return result, nil
}

func (m *Memory) EntriesInRange(_ context.Context, from, to engine.Date) ([]engine.OccurrenceHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.OccurrenceHistoryEntry
	for _, e := range m.entries {
		if from.BeforeOrEqual(e.ScheduledDate) && e.ScheduledDate.BeforeOrEqual(to) {
			result = append(result, e)
		}
	}
	sortEntries(result)
	return result, nil
}

func sortEntries(entries []engine.OccurrenceHistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ScheduledDate.Equal(entries[j].ScheduledDate) {
			return entries[i].ScheduledDate.Before(entries[j].ScheduledDate)
		}
		return entries[i].ID < entries[j].ID
	})
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a engine.LedgerAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, id engine.AccountID) (*engine.LedgerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.accounts[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]engine.LedgerAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.LedgerAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) InsertTransaction(_ context.Context, t engine.Transaction) (engine.TransactionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTxID++
	t.ID = m.nextTxID
	m.txs[t.ID] = t
	return t.ID, nil
}

func (m *Memory) GetTransaction(_ context.Context, id engine.TransactionID) (*engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.txs[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *Memory) ListTransactions(_ context.Context, accountID engine.AccountID) ([]engine.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.Transaction
	for _, t := range m.txs {
		if t.AccountID == accountID || (t.DestinationID != nil && *t.DestinationID == accountID) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, t engine.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[t.ID]; !ok {
		return engine.ErrTransactionNotFound
	}
	m.txs[t.ID] = t
	return nil
}

func (m *Memory) DeleteTransaction(_ context.Context, id engine.TransactionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[id]; !ok {
		return engine.ErrTransactionNotFound
	}
	delete(m.txs, id)
	return nil
}

// =============================================================================
// TRANSACTIONAL BOUNDARY
// =============================================================================

// WithTx runs fn against a staged copy of accounts and transactions and
// commits only on success, so a failed reconciler operation leaves
// balances untouched, matching the SQL store's rollback semantics. The
// lock is held across the whole boundary: concurrent boundaries
// serialize instead of committing stale snapshots over each other.
func (m *Memory) WithTx(_ context.Context, fn func(engine.LedgerStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := &Memory{
		accounts: cloneMap(m.accounts),
		txs:      cloneMap(m.txs),
		nextTxID: m.nextTxID,
	}
	if err := fn(staged); err != nil {
		return err
	}

	m.accounts = staged.accounts
	m.txs = staged.txs
	m.nextTxID = staged.nextTxID
	return nil
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

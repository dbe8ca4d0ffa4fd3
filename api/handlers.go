/*
handlers.go - HTTP API handlers for the obligation engine

PURPOSE:
  Exposes the obligation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Obligations:
    GET    /api/obligations                 List obligations
    POST   /api/obligations                 Create obligation
    GET    /api/obligations/{id}            Get obligation (plan + debt)
    PUT    /api/obligations/{id}            Update mutable fields
    DELETE /api/obligations/{id}            Delete (cascades history)
    POST   /api/obligations/{id}/pause      Pause
    POST   /api/obligations/{id}/resume     Resume
    POST   /api/obligations/{id}/cancel     Cancel
    POST   /api/obligations/{id}/process    Process the due occurrence
    GET    /api/obligations/{id}/history    Occurrence history + stats
    GET    /api/obligations/{id}/schedule   Projected amortization (debt)

  History:
    POST   /api/history/{id}/outcome        Finalize a pending entry

  Ledger:
    GET    /api/accounts                    List accounts
    POST   /api/accounts                    Create account
    GET    /api/accounts/{id}               Get account
    GET    /api/accounts/{id}/transactions  Account transactions
    POST   /api/transactions                Post transaction
    PUT    /api/transactions/{id}           Replace transaction (revert+apply)
    DELETE /api/transactions/{id}           Delete transaction (revert)

  Engine:
    GET    /api/summary                     Notification summary
    POST   /api/scan                        Run the due-obligation scan
    POST   /api/seed                        Load demo data
    POST   /api/reset                       Clear all data (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate occurrence, already finalized)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Background scan using the same processing path
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/payflow/obligation-engine/engine"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can wipe all data.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.Store
	History    *engine.HistoryLedger
	Reconciler *engine.Reconciler
	Lifecycle  *engine.Lifecycle
	Log        *logrus.Logger

	// now supplies the default as-of date when requests omit one.
	now func() time.Time
}

// NewHandler wires the engine services over the given store.
func NewHandler(store engine.Store, log *logrus.Logger) *Handler {
	history := engine.NewHistoryLedger(store)
	reconciler := engine.NewReconciler(store)
	return &Handler{
		Store:      store,
		History:    history,
		Reconciler: reconciler,
		Lifecycle:  engine.NewLifecycle(store, history, reconciler),
		Log:        log,
		now:        time.Now,
	}
}

// asOfOrToday resolves an optional as-of string, falling back to today.
func (h *Handler) asOfOrToday(s *string) (engine.Date, error) {
	if s == nil || *s == "" {
		return today(h.now()), nil
	}
	return engine.ParseDate(*s)
}

func (h *Handler) asOfQuery(r *http.Request) (engine.Date, error) {
	q := r.URL.Query().Get("as_of")
	if q == "" {
		return today(h.now()), nil
	}
	return engine.ParseDate(q)
}

// =============================================================================
// OBLIGATION HANDLERS
// =============================================================================

// ListObligations returns all obligations with their effective status.
func (h *Handler) ListObligations(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	obligations, err := h.Store.ListObligations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list obligations", err)
		return
	}

	dtos := make([]ObligationDTO, len(obligations))
	for i, o := range obligations {
		dtos[i] = toObligationDTO(o, asOf)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetObligation returns one obligation with its plan and debt state.
func (h *Handler) GetObligation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	o, err := h.Store.GetObligation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligation", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Obligation not found", nil)
		return
	}

	dto := toObligationDTO(*o, today(h.now()))

	if plan, err := h.Store.GetPlan(ctx, id); err == nil && plan != nil {
		p := toPlanDTO(*plan)
		dto.Plan = &p
	}
	if debt, err := h.Store.GetDebt(ctx, id); err == nil && debt != nil {
		d := toDebtDTO(*debt)
		dto.Debt = &d
	}

	writeJSON(w, http.StatusOK, dto)
}

// CreateObligation creates an obligation with optional plan and debt state.
func (h *Handler) CreateObligation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "id and account_id are required", nil)
		return
	}

	amount, err := parseMoneyFields(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date (use YYYY-MM-DD)", err)
		return
	}

	// The account must exist and carry the obligation's currency up
	// front, not on the first processing pass.
	account, err := h.Store.GetAccount(ctx, engine.AccountID(req.AccountID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to resolve account", err)
		return
	}
	if account == nil {
		writeError(w, http.StatusBadRequest, "account_id references an unknown account", nil)
		return
	}
	if !amount.SameCurrency(account.Balance) {
		writeError(w, http.StatusBadRequest, "Currency does not match the account", nil)
		return
	}

	next := start
	o := engine.ScheduledObligation{
		ID:             engine.ObligationID(req.ID),
		Kind:           engine.ObligationKind(req.Kind),
		Status:         engine.StatusActive,
		Description:    req.Description,
		Amount:         amount,
		StartDate:      start,
		NextOccurrence: &next,
		AccountID:      engine.AccountID(req.AccountID),
		Metadata:       req.Metadata,
		DisplayOrder:   req.DisplayOrder,
	}
	if req.EndDate != nil {
		end, err := engine.ParseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
		o.EndDate = &end
	}
	if req.CategoryID != nil {
		cat := engine.CategoryID(*req.CategoryID)
		o.CategoryID = &cat
	}

	if err := o.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid obligation", err)
		return
	}

	if err := h.Store.SaveObligation(ctx, o); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save obligation", err)
		return
	}

	if req.Plan != nil {
		plan := engine.RecurrencePlan{
			ObligationID:      o.ID,
			Frequency:         engine.Frequency(req.Plan.Frequency),
			Interval:          req.Plan.Interval,
			DayOfMonth:        req.Plan.DayOfMonth,
			DayOfWeek:         req.Plan.DayOfWeek,
			MaxOccurrences:    req.Plan.MaxOccurrences,
			AutoProcess:       req.Plan.AutoProcess,
			CreateTransaction: req.Plan.CreateTransaction,
			NotifyDaysBefore:  req.Plan.NotifyDaysBefore,
		}
		if plan.Interval < 1 {
			plan.Interval = 1
		}
		if err := h.Store.SavePlan(ctx, plan); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save plan", err)
			return
		}
	}

	if req.Debt != nil && o.Kind == engine.KindDebt {
		debt := engine.NewDebtState(o.ID, amount, req.Debt.TotalInstallments)
		debt.Creditor = req.Debt.Creditor
		debt.Reference = req.Debt.Reference
		if req.Debt.InterestRate != nil {
			rate, err := decimal.NewFromString(*req.Debt.InterestRate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid interest_rate", err)
				return
			}
			debt.InterestRate = &rate
		}
		if req.Debt.DueDate != nil {
			due, err := engine.ParseDate(*req.Debt.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid due_date (use YYYY-MM-DD)", err)
				return
			}
			debt.DueDate = &due
		}
		if err := h.Store.SaveDebt(ctx, debt); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save debt state", err)
			return
		}
	}

	h.Log.WithFields(logrus.Fields{
		"obligation": o.ID,
		"kind":       o.Kind,
		"amount":     o.Amount.Value.StringFixed(2),
		"currency":   o.Amount.Currency,
	}).Info("obligation created")

	writeJSON(w, http.StatusCreated, toObligationDTO(o, today(h.now())))
}

// UpdateObligationRequest carries the mutable fields of an obligation.
// Scheduling state (status, next occurrence) changes only through the
// lifecycle endpoints.
type UpdateObligationRequest struct {
	Description  *string           `json:"description,omitempty"`
	Amount       *string           `json:"amount,omitempty"`
	EndDate      *string           `json:"end_date,omitempty"`
	CategoryID   *string           `json:"category_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DisplayOrder *int              `json:"display_order,omitempty"`
}

// UpdateObligation updates the mutable fields of an obligation.
func (h *Handler) UpdateObligation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	o, err := h.Store.GetObligation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligation", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Obligation not found", nil)
		return
	}

	var req UpdateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Description != nil {
		o.Description = *req.Description
	}
	if req.Amount != nil {
		amount, err := parseMoneyFields(*req.Amount, string(o.Amount.Currency))
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		o.Amount = amount
	}
	if req.EndDate != nil {
		end, err := engine.ParseDate(*req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (use YYYY-MM-DD)", err)
			return
		}
		o.EndDate = &end
	}
	if req.CategoryID != nil {
		cat := engine.CategoryID(*req.CategoryID)
		o.CategoryID = &cat
	}
	if req.Metadata != nil {
		o.Metadata = req.Metadata
	}
	if req.DisplayOrder != nil {
		o.DisplayOrder = *req.DisplayOrder
	}

	if err := o.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid obligation", err)
		return
	}
	if err := h.Store.SaveObligation(ctx, *o); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save obligation", err)
		return
	}

	writeJSON(w, http.StatusOK, toObligationDTO(*o, today(h.now())))
}

// DeleteObligation deletes an obligation; plan, debt state, and history
// cascade. Posted ledger transactions survive.
func (h *Handler) DeleteObligation(w http.ResponseWriter, r *http.Request) {
	id := engine.ObligationID(chi.URLParam(r, "id"))

	if err := h.Store.DeleteObligation(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete obligation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseObligation pauses an active obligation.
func (h *Handler) PauseObligation(w http.ResponseWriter, r *http.Request) {
	h.lifecycleTransition(w, r, h.Lifecycle.Pause)
}

// ResumeObligation reactivates a paused obligation.
func (h *Handler) ResumeObligation(w http.ResponseWriter, r *http.Request) {
	h.lifecycleTransition(w, r, h.Lifecycle.Resume)
}

// CancelObligation cancels a non-terminal obligation.
func (h *Handler) CancelObligation(w http.ResponseWriter, r *http.Request) {
	h.lifecycleTransition(w, r, h.Lifecycle.Cancel)
}

func (h *Handler) lifecycleTransition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id engine.ObligationID) error) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	if err := fn(ctx, id); err != nil {
		writeEngineError(w, err)
		return
	}

	o, err := h.Store.GetObligation(ctx, id)
	if err != nil || o == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload obligation", err)
		return
	}
	writeJSON(w, http.StatusOK, toObligationDTO(*o, today(h.now())))
}

// ProcessObligation processes the due occurrence of one obligation.
func (h *Handler) ProcessObligation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	var req ProcessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf, err := h.asOfOrToday(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.Lifecycle.ProcessDue(ctx, id, asOf)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"obligation": id,
		"as_of":      asOf.String(),
		"completed":  result.Completed,
	}).Info("occurrence processed")

	writeJSON(w, http.StatusOK, toProcessResultDTO(result))
}

func toProcessResultDTO(result *engine.ProcessResult) ProcessResultDTO {
	dto := ProcessResultDTO{
		Completed:      result.Completed,
		NextOccurrence: dateStr(result.Next),
	}
	if result.Entry != nil {
		e := toHistoryEntryDTO(*result.Entry)
		dto.Entry = &e
	}
	if result.Transaction != nil {
		t := toTransactionDTO(*result.Transaction)
		dto.Transaction = &t
	}
	return dto
}

// GetHistory returns an obligation's occurrence history with stats.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	o, err := h.Store.GetObligation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligation", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Obligation not found", nil)
		return
	}

	entries, err := h.Store.EntriesByObligation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load history", err)
		return
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		Entries: toHistoryEntryDTOs(entries),
		Stats:   toStatsDTO(engine.Summarize(entries)),
	})
}

// GetSchedule returns the projected amortization schedule of a debt.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.ObligationID(chi.URLParam(r, "id"))

	o, err := h.Store.GetObligation(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get obligation", err)
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "Obligation not found", nil)
		return
	}
	if o.Kind != engine.KindDebt {
		writeError(w, http.StatusBadRequest, "Obligation is not a debt", nil)
		return
	}

	debt, err := h.Store.GetDebt(ctx, id)
	if err != nil || debt == nil {
		writeError(w, http.StatusNotFound, "Debt state not found", err)
		return
	}

	rate := decimal.Zero
	if debt.InterestRate != nil {
		rate = *debt.InterestRate
	}
	schedule := engine.AmortizationSchedule(debt.OriginalAmount, rate, debt.TotalInstallments, o.StartDate)

	dtos := make([]AmortizationEntryDTO, len(schedule))
	for i, entry := range schedule {
		dtos[i] = AmortizationEntryDTO{
			Period:           entry.Period,
			DueDate:          entry.DueDate.String(),
			Principal:        entry.Principal.Value.StringFixed(2),
			Interest:         entry.Interest.Value.StringFixed(2),
			Total:            entry.Total.Value.StringFixed(2),
			RemainingBalance: entry.RemainingBalance.Value.StringFixed(2),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

// MarkOutcome finalizes a pending history entry with an explicit
// outcome. Finalizing the obligation's current due occurrence advances
// its schedule exactly as processing would, so the manual flow (scan
// records Pending, a person settles it) keeps obligations moving.
func (h *Handler) MarkOutcome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entryID, ok := parseEntryID(w, r)
	if !ok {
		return
	}

	var req MarkOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	asOf, err := h.asOfOrToday(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	st, err := h.settlementFrom(ctx, entryID, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	result, err := h.Lifecycle.FinalizeEntry(ctx, entryID, st, asOf)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"entry":   entryID,
		"outcome": req.Status,
		"as_of":   asOf.String(),
	}).Info("occurrence finalized")

	writeJSON(w, http.StatusOK, toProcessResultDTO(result))
}

func (h *Handler) settlementFrom(ctx context.Context, id engine.EntryID, req MarkOutcomeRequest) (engine.Settlement, error) {
	st := engine.Settlement{
		Outcome: engine.OccurrenceStatus(req.Status),
		Method:  req.Method,
		Reason:  req.Reason,
	}
	if req.ActualAmount != nil {
		entry, err := h.Store.GetEntry(ctx, id)
		if err != nil {
			return st, err
		}
		if entry == nil {
			return st, engine.ErrEntryNotFound
		}
		m, err := parseMoneyFields(*req.ActualAmount, string(entry.PlannedAmount.Currency))
		if err != nil {
			return st, fmt.Errorf("%w: %v", engine.ErrInvalidAmount, err)
		}
		st.Actual = &m
	}
	return st, nil
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListAccounts returns all ledger accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates a ledger account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	balance := "0"
	if req.Balance != "" {
		balance = req.Balance
	}
	m, err := parseMoneyFields(balance, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid balance", err)
		return
	}

	a := engine.LedgerAccount{
		ID:      engine.AccountID(req.ID),
		Name:    req.Name,
		Balance: m,
	}
	if err := h.Store.SaveAccount(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

// GetAccount returns one ledger account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get account", err)
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*a))
}

// GetAccountTransactions returns an account's transactions.
func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id := engine.AccountID(chi.URLParam(r, "id"))

	txs, err := h.Store.ListTransactions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// CreateTransaction posts a transaction and applies its balance effect.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	created, err := h.Reconciler.Create(r.Context(), tx)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"transaction": created.ID,
		"kind":        created.Kind,
		"amount":      created.Amount.Value.StringFixed(2),
		"account":     created.AccountID,
	}).Info("transaction posted")

	writeJSON(w, http.StatusCreated, toTransactionDTO(*created))
}

// UpdateTransaction replaces a transaction, reverting the old balance
// effect and applying the new one atomically.
func (h *Handler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	txID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}

	next, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	updated, err := h.Reconciler.Update(r.Context(), txID, next)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*updated))
}

// DeleteTransaction removes a transaction and reverts its balance effect.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	txID, ok := parseTransactionID(w, r)
	if !ok {
		return
	}

	if err := h.Reconciler.Delete(r.Context(), txID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeTransaction(w http.ResponseWriter, r *http.Request) (engine.Transaction, bool) {
	var req CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return engine.Transaction{}, false
	}

	amount, err := parseMoneyFields(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return engine.Transaction{}, false
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return engine.Transaction{}, false
	}

	tx := engine.Transaction{
		Kind:        engine.TransactionKind(req.Kind),
		Amount:      amount,
		AccountID:   engine.AccountID(req.AccountID),
		Date:        date,
		Description: req.Description,
	}
	if req.DestinationID != nil {
		dest := engine.AccountID(*req.DestinationID)
		tx.DestinationID = &dest
	}
	return tx, true
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// GetSummary returns the notification summary for an as-of date.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	obligations, err := h.Store.ListObligations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list obligations", err)
		return
	}

	writeJSON(w, http.StatusOK, toSummaryDTO(engine.BuildNotificationSummary(obligations, asOf)))
}

// TriggerScan runs one due-obligation scan pass.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	asOf, err := h.asOfOrToday(req.AsOf)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	result, err := h.RunScan(r.Context(), asOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Scan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunScan processes every due obligation whose plan opts into automatic
// processing; the rest get their occurrence recorded as Pending so a
// person can settle it through the outcome endpoint. Skippable
// conditions (not due anymore, paused meanwhile) are logged at debug
// level and never abort the pass.
func (h *Handler) RunScan(ctx context.Context, asOf engine.Date) (ScanResultDTO, error) {
	result := ScanResultDTO{AsOf: asOf.String()}

	due, err := h.Store.DueObligations(ctx, asOf)
	if err != nil {
		return result, err
	}
	result.Scanned = len(due)

	for _, o := range due {
		plan, err := h.Store.GetPlan(ctx, o.ID)
		if err != nil {
			result.Failed = append(result.Failed, string(o.ID))
			continue
		}
		if plan == nil || !plan.AutoProcess {
			if _, err := h.Lifecycle.AcknowledgeDue(ctx, o.ID, asOf); err != nil {
				if engine.IsSkippable(err) || errors.Is(err, engine.ErrDuplicateOccurrence) {
					result.Skipped++
					continue
				}
				h.Log.WithField("obligation", o.ID).WithError(err).Error("scan failed to record pending occurrence")
				result.Failed = append(result.Failed, string(o.ID))
				continue
			}
			result.Pending++
			continue
		}

		// One occurrence per pass; a backlog drains over successive scans.
		if _, err := h.Lifecycle.ProcessDue(ctx, o.ID, asOf); err != nil {
			if engine.IsSkippable(err) {
				h.Log.WithField("obligation", o.ID).WithError(err).Debug("scan skipped obligation")
				result.Skipped++
				continue
			}
			h.Log.WithField("obligation", o.ID).WithError(err).Error("scan failed to process obligation")
			result.Failed = append(result.Failed, string(o.ID))
			continue
		}
		result.Processed++
	}

	h.Log.WithFields(logrus.Fields{
		"as_of":     result.AsOf,
		"scanned":   result.Scanned,
		"processed": result.Processed,
		"pending":   result.Pending,
		"skipped":   result.Skipped,
		"failed":    len(result.Failed),
	}).Info("due-obligation scan complete")

	return result, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseMoneyFields(amount, currency string) (engine.Money, error) {
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return engine.Money{}, err
	}
	return engine.Money{Value: v, Currency: engine.Currency(currency)}, nil
}

func parseEntryID(w http.ResponseWriter, r *http.Request) (engine.EntryID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := parseInt64(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry id", err)
		return 0, false
	}
	return engine.EntryID(n), true
}

func parseTransactionID(w http.ResponseWriter, r *http.Request) (engine.TransactionID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := parseInt64(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transaction id", err)
		return 0, false
	}
	return engine.TransactionID(n), true
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// writeEngineError maps domain errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrDuplicateOccurrence),
		errors.Is(err, engine.ErrAlreadyFinalized),
		engine.IsSkippable(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts cross the wire as decimal strings ("1250.00") plus a currency
  code, never as floats. Parsing happens in handlers.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain model these map to
*/
package api

import (
	"time"

	"github.com/payflow/obligation-engine/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ObligationDTO represents a scheduled obligation in API responses.
// Status is the effective status at the request's as-of date, so an
// unprocessed past-due obligation reads as "overdue".
type ObligationDTO struct {
	ID             string             `json:"id"`
	Kind           string             `json:"kind"`
	Status         string             `json:"status"`
	Description    string             `json:"description,omitempty"`
	Amount         string             `json:"amount"`
	Currency       string             `json:"currency"`
	StartDate      string             `json:"start_date"`
	NextOccurrence *string            `json:"next_occurrence,omitempty"`
	EndDate        *string            `json:"end_date,omitempty"`
	AccountID      string             `json:"account_id"`
	CategoryID     *string            `json:"category_id,omitempty"`
	Metadata       map[string]string  `json:"metadata,omitempty"`
	DisplayOrder   int                `json:"display_order"`
	Plan           *RecurrencePlanDTO `json:"plan,omitempty"`
	Debt           *DebtStateDTO      `json:"debt,omitempty"`
}

// RecurrencePlanDTO represents recurrence configuration.
type RecurrencePlanDTO struct {
	Frequency         string `json:"frequency"`
	Interval          int    `json:"interval"`
	DayOfMonth        *int   `json:"day_of_month,omitempty"`
	DayOfWeek         *int   `json:"day_of_week,omitempty"`
	MaxOccurrences    *int   `json:"max_occurrences,omitempty"`
	OccurrencesCount  int    `json:"occurrences_count"`
	AutoProcess       bool   `json:"auto_process"`
	CreateTransaction bool   `json:"create_transaction"`
	NotifyDaysBefore  int    `json:"notify_days_before"`
}

// DebtStateDTO represents amortization state for a debt obligation.
type DebtStateDTO struct {
	OriginalAmount        string  `json:"original_amount"`
	RemainingAmount       string  `json:"remaining_amount"`
	PaidAmount            string  `json:"paid_amount"`
	Currency              string  `json:"currency"`
	TotalInstallments     int     `json:"total_installments"`
	PaidInstallments      int     `json:"paid_installments"`
	RemainingInstallments int     `json:"remaining_installments"`
	InstallmentAmount     *string `json:"installment_amount,omitempty"`
	InterestRate          *string `json:"interest_rate,omitempty"`
	LateFee               string  `json:"late_fee"`
	DaysOverdue           int     `json:"days_overdue"`
	DueDate               *string `json:"due_date,omitempty"`
	Creditor              string  `json:"creditor,omitempty"`
	Reference             string  `json:"reference,omitempty"`
	FullyPaid             bool    `json:"fully_paid"`
}

// CreateObligationRequest is the request to create an obligation.
type CreateObligationRequest struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Description  string            `json:"description"`
	Amount       string            `json:"amount"`
	Currency     string            `json:"currency"`
	StartDate    string            `json:"start_date"`
	EndDate      *string           `json:"end_date,omitempty"`
	AccountID    string            `json:"account_id"`
	CategoryID   *string           `json:"category_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DisplayOrder int               `json:"display_order"`

	Plan *CreatePlanRequest `json:"plan,omitempty"`
	Debt *CreateDebtRequest `json:"debt,omitempty"`
}

// CreatePlanRequest is the recurrence section of an obligation request.
type CreatePlanRequest struct {
	Frequency         string `json:"frequency"`
	Interval          int    `json:"interval"`
	DayOfMonth        *int   `json:"day_of_month,omitempty"`
	DayOfWeek         *int   `json:"day_of_week,omitempty"`
	MaxOccurrences    *int   `json:"max_occurrences,omitempty"`
	AutoProcess       bool   `json:"auto_process"`
	CreateTransaction bool   `json:"create_transaction"`
	NotifyDaysBefore  int    `json:"notify_days_before"`
}

// CreateDebtRequest is the debt section of an obligation request.
type CreateDebtRequest struct {
	TotalInstallments int     `json:"total_installments"`
	InterestRate      *string `json:"interest_rate,omitempty"`
	DueDate           *string `json:"due_date,omitempty"`
	Creditor          string  `json:"creditor,omitempty"`
	Reference         string  `json:"reference,omitempty"`
}

// ProcessRequest is the request to process a due occurrence. AsOf
// defaults to today when omitted.
type ProcessRequest struct {
	AsOf *string `json:"as_of,omitempty"`
}

// ProcessResultDTO is the outcome of processing one occurrence.
type ProcessResultDTO struct {
	Entry          *HistoryEntryDTO `json:"entry,omitempty"`
	Transaction    *TransactionDTO  `json:"transaction,omitempty"`
	Completed      bool             `json:"completed"`
	NextOccurrence *string          `json:"next_occurrence,omitempty"`
}

// HistoryEntryDTO represents one occurrence outcome.
type HistoryEntryDTO struct {
	ID            int64   `json:"id"`
	ObligationID  string  `json:"obligation_id"`
	PlannedAmount string  `json:"planned_amount"`
	ActualAmount  string  `json:"actual_amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	ScheduledDate string  `json:"scheduled_date"`
	ProcessedDate *string `json:"processed_date,omitempty"`
	TransactionID *int64  `json:"transaction_id,omitempty"`
	FailureReason string  `json:"failure_reason,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

// HistoryResponse wraps an obligation's history with aggregate stats.
type HistoryResponse struct {
	Entries []HistoryEntryDTO `json:"entries"`
	Stats   HistoryStatsDTO   `json:"stats"`
}

// HistoryStatsDTO aggregates a set of history entries.
type HistoryStatsDTO struct {
	Count        int               `json:"count"`
	PaidCount    int               `json:"paid_count"`
	FailedCount  int               `json:"failed_count"`
	SkippedCount int               `json:"skipped_count"`
	PartialCount int               `json:"partial_count"`
	PendingCount int               `json:"pending_count"`
	PlannedTotal map[string]string `json:"planned_total"`
	ActualTotal  map[string]string `json:"actual_total"`
}

// MarkOutcomeRequest finalizes a pending history entry. Status is one
// of paid, failed, skipped, partial. ActualAmount applies to paid
// (optional) and partial (required).
type MarkOutcomeRequest struct {
	Status       string  `json:"status"`
	ActualAmount *string `json:"actual_amount,omitempty"`
	Method       string  `json:"method,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	AsOf         *string `json:"as_of,omitempty"`
}

// AccountDTO represents a ledger account.
type AccountDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// CreateAccountRequest is the request to create a ledger account.
type CreateAccountRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Balance  string `json:"balance"`
	Currency string `json:"currency"`
}

// TransactionDTO represents a posted financial movement.
type TransactionDTO struct {
	ID            int64   `json:"id"`
	Kind          string  `json:"kind"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	AccountID     string  `json:"account_id"`
	DestinationID *string `json:"destination_id,omitempty"`
	Date          string  `json:"date"`
	Description   string  `json:"description,omitempty"`
}

// CreateTransactionRequest is the request to post a transaction.
type CreateTransactionRequest struct {
	Kind          string  `json:"kind"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	AccountID     string  `json:"account_id"`
	DestinationID *string `json:"destination_id,omitempty"`
	Date          string  `json:"date"`
	Description   string  `json:"description,omitempty"`
}

// SummaryDTO is the notification summary for a given as-of date.
type SummaryDTO struct {
	AsOf     string          `json:"as_of"`
	Overdue  BucketDTO       `json:"overdue"`
	DueToday BucketDTO       `json:"due_today"`
	Upcoming []DaySummaryDTO `json:"upcoming"`
}

// BucketDTO is a count plus per-currency totals.
type BucketDTO struct {
	Count  int               `json:"count"`
	Totals map[string]string `json:"totals"`
}

// DaySummaryDTO is one upcoming day's bucket.
type DaySummaryDTO struct {
	Date   string    `json:"date"`
	Bucket BucketDTO `json:"bucket"`
}

// ScanResultDTO reports one due-scan pass. Pending counts obligations
// whose occurrence was recorded (or already waits) for manual
// finalization through the outcome endpoint.
type ScanResultDTO struct {
	AsOf      string   `json:"as_of"`
	Scanned   int      `json:"scanned"`
	Processed int      `json:"processed"`
	Pending   int      `json:"pending"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// AmortizationEntryDTO is one period of a projected payment schedule.
type AmortizationEntryDTO struct {
	Period           int    `json:"period"`
	DueDate          string `json:"due_date"`
	Principal        string `json:"principal"`
	Interest         string `json:"interest"`
	Total            string `json:"total"`
	RemainingBalance string `json:"remaining_balance"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toObligationDTO(o engine.ScheduledObligation, asOf engine.Date) ObligationDTO {
	return ObligationDTO{
		ID:             string(o.ID),
		Kind:           string(o.Kind),
		Status:         string(engine.EffectiveStatus(o, asOf)),
		Description:    o.Description,
		Amount:         o.Amount.Value.StringFixed(2),
		Currency:       string(o.Amount.Currency),
		StartDate:      o.StartDate.String(),
		NextOccurrence: dateStr(o.NextOccurrence),
		EndDate:        dateStr(o.EndDate),
		AccountID:      string(o.AccountID),
		CategoryID:     categoryStr(o.CategoryID),
		Metadata:       o.Metadata,
		DisplayOrder:   o.DisplayOrder,
	}
}

func toPlanDTO(p engine.RecurrencePlan) RecurrencePlanDTO {
	return RecurrencePlanDTO{
		Frequency:         string(p.Frequency),
		Interval:          p.Interval,
		DayOfMonth:        p.DayOfMonth,
		DayOfWeek:         p.DayOfWeek,
		MaxOccurrences:    p.MaxOccurrences,
		OccurrencesCount:  p.OccurrencesCount,
		AutoProcess:       p.AutoProcess,
		CreateTransaction: p.CreateTransaction,
		NotifyDaysBefore:  p.NotifyDaysBefore,
	}
}

func toDebtDTO(d engine.DebtState) DebtStateDTO {
	dto := DebtStateDTO{
		OriginalAmount:        d.OriginalAmount.Value.StringFixed(2),
		RemainingAmount:       d.RemainingAmount.Value.StringFixed(2),
		PaidAmount:            d.PaidAmount.Value.StringFixed(2),
		Currency:              string(d.OriginalAmount.Currency),
		TotalInstallments:     d.TotalInstallments,
		PaidInstallments:      d.PaidInstallments,
		RemainingInstallments: d.RemainingInstallments(),
		LateFee:               d.LateFee.Value.StringFixed(2),
		DaysOverdue:           d.DaysOverdue,
		DueDate:               dateStr(d.DueDate),
		Creditor:              d.Creditor,
		Reference:             d.Reference,
		FullyPaid:             d.IsFullyPaid(),
	}
	if d.InstallmentAmount != nil {
		v := d.InstallmentAmount.Value.StringFixed(2)
		dto.InstallmentAmount = &v
	}
	if d.InterestRate != nil {
		v := d.InterestRate.String()
		dto.InterestRate = &v
	}
	return dto
}

func toHistoryEntryDTO(e engine.OccurrenceHistoryEntry) HistoryEntryDTO {
	dto := HistoryEntryDTO{
		ID:            int64(e.ID),
		ObligationID:  string(e.ObligationID),
		PlannedAmount: e.PlannedAmount.Value.StringFixed(2),
		ActualAmount:  e.ActualAmount.Value.StringFixed(2),
		Currency:      string(e.PlannedAmount.Currency),
		Status:        string(e.Status),
		ScheduledDate: e.ScheduledDate.String(),
		ProcessedDate: dateStr(e.ProcessedDate),
		FailureReason: e.FailureReason,
		PaymentMethod: e.PaymentMethod,
		Notes:         e.Notes,
	}
	if e.TransactionID != nil {
		v := int64(*e.TransactionID)
		dto.TransactionID = &v
	}
	return dto
}

func toHistoryEntryDTOs(entries []engine.OccurrenceHistoryEntry) []HistoryEntryDTO {
	dtos := make([]HistoryEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toHistoryEntryDTO(e)
	}
	return dtos
}

func toStatsDTO(s engine.HistoryStats) HistoryStatsDTO {
	return HistoryStatsDTO{
		Count:        s.Count,
		PaidCount:    s.PaidCount,
		FailedCount:  s.FailedCount,
		SkippedCount: s.SkippedCount,
		PartialCount: s.PartialCount,
		PendingCount: s.PendingCount,
		PlannedTotal: totalsMap(s.PlannedTotal),
		ActualTotal:  totalsMap(s.ActualTotal),
	}
}

func toAccountDTO(a engine.LedgerAccount) AccountDTO {
	return AccountDTO{
		ID:       string(a.ID),
		Name:     a.Name,
		Balance:  a.Balance.Value.StringFixed(2),
		Currency: string(a.Balance.Currency),
	}
}

func toTransactionDTO(t engine.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          int64(t.ID),
		Kind:        string(t.Kind),
		Amount:      t.Amount.Value.StringFixed(2),
		Currency:    string(t.Amount.Currency),
		AccountID:   string(t.AccountID),
		Date:        t.Date.String(),
		Description: t.Description,
	}
	if t.DestinationID != nil {
		v := string(*t.DestinationID)
		dto.DestinationID = &v
	}
	return dto
}

func toTransactionDTOs(txs []engine.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	return dtos
}

func toSummaryDTO(s engine.NotificationSummary) SummaryDTO {
	upcoming := make([]DaySummaryDTO, len(s.Upcoming))
	for i, day := range s.Upcoming {
		upcoming[i] = DaySummaryDTO{Date: day.Date.String(), Bucket: toBucketDTO(day.Bucket)}
	}
	return SummaryDTO{
		AsOf:     s.AsOf.String(),
		Overdue:  toBucketDTO(s.Overdue),
		DueToday: toBucketDTO(s.DueToday),
		Upcoming: upcoming,
	}
}

func toBucketDTO(b engine.SummaryBucket) BucketDTO {
	return BucketDTO{Count: b.Count, Totals: totalsMap(b.Totals)}
}

func totalsMap(totals map[engine.Currency]engine.Money) map[string]string {
	out := make(map[string]string, len(totals))
	for currency, m := range totals {
		out[string(currency)] = m.Value.StringFixed(2)
	}
	return out
}

func dateStr(d *engine.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func categoryStr(c *engine.CategoryID) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

func today(now time.Time) engine.Date {
	return engine.DateOf(now)
}

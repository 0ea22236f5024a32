package ledger_http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"corebanking/internal/app/statement"
	"corebanking/internal/domain"
	"corebanking/internal/store"
)

type LedgerService interface {
	OpenAccount(ctx context.Context, holderID string, kind domain.AccountKind) (*domain.Account, error)
	CloseAccount(ctx context.Context, number string) (*domain.Account, error)
	GetAccount(ctx context.Context, number string) (*domain.Account, error)
	ListAccounts(ctx context.Context, holderID string) ([]domain.Account, error)
	Deposit(ctx context.Context, number string, amount decimal.Decimal) (*domain.Transaction, error)
	Withdraw(ctx context.Context, number string, amount decimal.Decimal) (*domain.Transaction, error)
	Transfer(ctx context.Context, source, dest string, amount decimal.Decimal) (*domain.Transaction, error)
	InstantTransfer(ctx context.Context, source, dest string, amount decimal.Decimal) (*domain.Transaction, error)
}

type StatementService interface {
	Statement(ctx context.Context, number string, period *store.Period) (*statement.Statement, error)
	RecentAcrossAccounts(ctx context.Context, numbers []string, limit int) ([]domain.Transaction, error)
}

type LedgerHandler struct {
	ledger     LedgerService
	statements StatementService
	logger     *zap.Logger
}

func NewLedgerHandler(l LedgerService, s StatementService, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: l, statements: s, logger: logger}
}

type OpenAccountRequest struct {
	HolderID string `json:"holder_id"`
	Kind     string `json:"kind"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
}

type AccountResponse struct {
	Number         string          `json:"number"`
	Agency         string          `json:"agency"`
	HolderID       string          `json:"holder_id"`
	Kind           string          `json:"kind"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
	Available      decimal.Decimal `json:"available"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type TransactionResponse struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      *string         `json:"source,omitempty"`
	Destination *string         `json:"destination,omitempty"`
	Description string          `json:"description"`
}

type StatementResponse struct {
	Account      AccountResponse       `json:"account"`
	From         *time.Time            `json:"from,omitempty"`
	To           *time.Time            `json:"to,omitempty"`
	Transactions []TransactionResponse `json:"transactions"`
}

func toAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		Number:         a.Number,
		Agency:         a.Agency,
		HolderID:       a.HolderID,
		Kind:           string(a.Kind),
		Balance:        a.Balance,
		OverdraftLimit: a.OverdraftLimit,
		Available:      a.Available(),
		Active:         a.Active,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		Kind:        string(t.Kind),
		Amount:      t.Amount,
		Fee:         t.Fee,
		Timestamp:   t.Timestamp,
		Source:      t.Source,
		Destination: t.Destination,
		Description: t.Description,
	}
}

func toTransactionResponses(txs []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, len(txs))
	for i := range txs {
		out[i] = toTransactionResponse(&txs[i])
	}
	return out
}

func (h *LedgerHandler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req OpenAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for OpenAccount", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.HolderID == "" {
		http.Error(w, "holder_id is required", http.StatusBadRequest)
		return
	}
	kind, err := domain.ParseAccountKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	account, err := h.ledger.OpenAccount(r.Context(), req.HolderID, kind)
	if err != nil {
		h.writeError(w, "OpenAccount", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *LedgerHandler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, "GetAccount", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *LedgerHandler) ListHolderAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledger.ListAccounts(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, "ListAccounts", err)
		return
	}
	resp := make([]AccountResponse, len(accounts))
	for i := range accounts {
		resp[i] = toAccountResponse(&accounts[i])
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.ledger.CloseAccount(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, "CloseAccount", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *LedgerHandler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.singleAccountOperation(w, r, "Deposit", h.ledger.Deposit)
}

func (h *LedgerHandler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.singleAccountOperation(w, r, "Withdraw", h.ledger.Withdraw)
}

func (h *LedgerHandler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	h.transferOperation(w, r, "Transfer", h.ledger.Transfer)
}

func (h *LedgerHandler) InstantTransferHandler(w http.ResponseWriter, r *http.Request) {
	h.transferOperation(w, r, "InstantTransfer", h.ledger.InstantTransfer)
}

func (h *LedgerHandler) singleAccountOperation(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string, decimal.Decimal) (*domain.Transaction, error)) {
	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.String("operation", op), zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	txn, err := fn(r.Context(), chi.URLParam(r, "number"), req.Amount)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

func (h *LedgerHandler) transferOperation(w http.ResponseWriter, r *http.Request, op string,
	fn func(context.Context, string, string, decimal.Decimal) (*domain.Transaction, error)) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body", zap.String("operation", op), zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source == "" || req.Destination == "" {
		http.Error(w, "source and destination are required", http.StatusBadRequest)
		return
	}

	txn, err := fn(r.Context(), req.Source, req.Destination, req.Amount)
	if err != nil {
		h.writeError(w, op, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// StatementHandler serves the account history. from and to are RFC 3339 and
// must be given together.
func (h *LedgerHandler) StatementHandler(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := h.statements.Statement(r.Context(), chi.URLParam(r, "number"), period)
	if err != nil {
		h.writeError(w, "Statement", err)
		return
	}

	resp := StatementResponse{
		Account:      toAccountResponse(&st.Account),
		Transactions: toTransactionResponses(st.Transactions),
	}
	if period != nil {
		resp.From, resp.To = &period.Start, &period.End
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) RecentHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, "ListAccounts", err)
		return
	}
	numbers := make([]string, len(accounts))
	for i, a := range accounts {
		numbers[i] = a.Number
	}

	txs, err := h.statements.RecentAcrossAccounts(r.Context(), numbers, limit)
	if err != nil {
		h.writeError(w, "RecentAcrossAccounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

var errPeriodBounds = errors.New("from and to must both be set and from must be before to")

func parsePeriod(r *http.Request) (*store.Period, error) {
	q := r.URL.Query()
	fromRaw, toRaw := q.Get("from"), q.Get("to")
	if fromRaw == "" && toRaw == "" {
		return nil, nil
	}
	if fromRaw == "" || toRaw == "" {
		return nil, errPeriodBounds
	}
	from, err := time.Parse(time.RFC3339, fromRaw)
	if err != nil {
		return nil, errors.New("from must be an RFC 3339 timestamp")
	}
	to, err := time.Parse(time.RFC3339, toRaw)
	if err != nil {
		return nil, errors.New("to must be an RFC 3339 timestamp")
	}
	if !from.Before(to) {
		return nil, errPeriodBounds
	}
	return &store.Period{Start: from, End: to}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSameAccount),
		errors.Is(err, domain.ErrInvalidAccountKind):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNonZeroBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrLockTimeout),
		errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("Ledger request failed", zap.String("operation", op), zap.Error(err))
	default:
		h.logger.Warn("Ledger request rejected", zap.String("operation", op), zap.Error(err))
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Internal server error"
	}
	http.Error(w, msg, status)
}

func (h *LedgerHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

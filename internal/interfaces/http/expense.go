package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fintrack/internal/domain/expense"
	"fintrack/internal/shared/apperr"
)

type ExpenseHandler struct {
	expenseService *expense.Service
	responder
}

func NewExpenseHandler(expenseService *expense.Service, logger *zap.Logger, exposeDetails bool) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
		responder:      responder{logger: logger, exposeDetails: exposeDetails},
	}
}

// Request/Response DTOs
//
// userId, expenseId and receiptUrl are accepted as aliases so older clients
// keep working.

type CreateExpenseRequest struct {
	OwnerID    string          `json:"ownerId"`
	UserID     string          `json:"userId"`
	Category   string          `json:"category"`
	Amount     json.RawMessage `json:"amount"`
	Date       string          `json:"date"`
	ReceiptRef *string         `json:"receiptRef"`
	ReceiptURL *string         `json:"receiptUrl"`
}

type UpdateExpenseRequest struct {
	OwnerID    string                            `json:"ownerId"`
	UserID     string                            `json:"userId"`
	RecordID   string                            `json:"recordId"`
	ExpenseID  string                            `json:"expenseId"`
	Category   expense.Optional[string]          `json:"category"`
	Amount     expense.Optional[json.RawMessage] `json:"amount"`
	Date       expense.Optional[string]          `json:"date"`
	ReceiptRef expense.Optional[string]          `json:"receiptRef"`
	ReceiptURL expense.Optional[string]          `json:"receiptUrl"`
}

type CreateExpenseResponse struct {
	Message string           `json:"message"`
	Expense *expense.Expense `json:"expense"`
}

type UpdateExpenseResponse struct {
	Message string           `json:"message"`
	Data    *expense.Expense `json:"data"`
}

type DeleteExpenseResponse struct {
	Message     string           `json:"message"`
	DeletedItem *expense.Expense `json:"deletedItem"`
}

// HandleExpenses serves the collection route. PUT and DELETE are accepted
// here too, with the record id taken from the body or query string.
func (h *ExpenseHandler) HandleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListExpenses(w, r)
	case http.MethodPost:
		h.handleCreateExpense(w, r)
	case http.MethodPut:
		h.handleUpdateExpense(w, r)
	case http.MethodDelete:
		h.handleDeleteExpense(w, r)
	default:
		h.methodNotAllowed(w)
	}
}

// HandleExpenseByID serves /api/expenses/{recordId}
func (h *ExpenseHandler) HandleExpenseByID(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleGetExpense(w, r)
	case http.MethodPut:
		h.handleUpdateExpense(w, r)
	case http.MethodDelete:
		h.handleDeleteExpense(w, r)
	default:
		h.methodNotAllowed(w)
	}
}

// HandleSummary returns the totals shown above the expense table.
func (h *ExpenseHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	summary, err := h.expenseService.Summary(r.Context(), resolveOwner(r, q.Get("ownerId"), q.Get("userId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *ExpenseHandler) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	expenses, err := h.expenseService.List(r.Context(), resolveOwner(r, q.Get("ownerId"), q.Get("userId")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	e, err := h.expenseService.Get(r.Context(), resolveOwner(r, q.Get("ownerId"), q.Get("userId")), r.PathValue("recordId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, e)
}

func (h *ExpenseHandler) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("invalid create expense body", zap.Error(err))
		h.writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := parseAmountField(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	receiptRef := req.ReceiptRef
	if receiptRef == nil {
		receiptRef = req.ReceiptURL
	}

	e, err := h.expenseService.Create(r.Context(), expense.CreateParams{
		OwnerID:    resolveOwner(r, req.OwnerID, req.UserID),
		Category:   req.Category,
		Amount:     amount,
		Date:       req.Date,
		ReceiptRef: receiptRef,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("expense created", zap.String("owner_id", e.OwnerID), zap.String("record_id", e.RecordID))
	h.writeJSON(w, http.StatusCreated, CreateExpenseResponse{Message: "Expense added successfully", Expense: e})
}

func (h *ExpenseHandler) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug("invalid update expense body", zap.Error(err))
		h.writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch, err := req.patch()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	ownerID := resolveOwner(r, req.OwnerID, req.UserID, q.Get("ownerId"), q.Get("userId"))
	recordID := firstNonEmpty(r.PathValue("recordId"), req.RecordID, req.ExpenseID)

	e, err := h.expenseService.Update(r.Context(), ownerID, recordID, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, UpdateExpenseResponse{Message: "Expense updated successfully", Data: e})
}

func (h *ExpenseHandler) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := resolveOwner(r, q.Get("ownerId"), q.Get("userId"))
	recordID := firstNonEmpty(r.PathValue("recordId"), q.Get("recordId"), q.Get("expenseId"))

	e, err := h.expenseService.Delete(r.Context(), ownerID, recordID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("expense deleted", zap.String("owner_id", e.OwnerID), zap.String("record_id", e.RecordID))
	h.writeJSON(w, http.StatusOK, DeleteExpenseResponse{Message: "Expense deleted successfully", DeletedItem: e})
}

// patch converts the request into a domain patch. An explicit null or empty
// amount is kept as a zero amount so validation rejects it.
func (req *UpdateExpenseRequest) patch() (expense.Patch, error) {
	p := expense.Patch{
		Category:   req.Category,
		Date:       req.Date,
		ReceiptRef: req.ReceiptRef,
	}
	if !p.ReceiptRef.Set {
		p.ReceiptRef = req.ReceiptURL
	}
	if req.Amount.Set {
		amount, err := parseAmountField(req.Amount.Value)
		if err != nil {
			return expense.Patch{}, err
		}
		p.Amount = expense.Some(amount.Decimal)
	}
	return p, nil
}

// parseAmountField accepts a JSON number or numeric string. Absent, null and
// blank values come back invalid rather than as an error.
func parseAmountField(raw json.RawMessage) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return decimal.NullDecimal{}, nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return decimal.NullDecimal{}, apperr.Validation("invalid amount")
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			return decimal.NullDecimal{}, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, apperr.Validationf("invalid amount %q", s)
	}
	return decimal.NewNullDecimal(d), nil
}

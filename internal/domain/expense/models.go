package expense

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/shared/apperr"
)

// GuestOwnerID is the identity a client uses before sign-in completes.
const GuestOwnerID = "guest"

// DateLayout is the calendar-date format stored in Expense.Date.
const DateLayout = time.DateOnly

var ErrExpenseNotFound = apperr.NotFound("expense not found")

// Expense is a single spending entry owned by one user.
type Expense struct {
	OwnerID    string
	RecordID   string
	Category   string
	Amount     decimal.Decimal
	Date       string
	ReceiptRef *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type expenseJSON struct {
	OwnerID    string    `json:"ownerId"`
	RecordID   string    `json:"recordId"`
	Category   string    `json:"category"`
	Amount     string    `json:"amount"`
	Date       string    `json:"date"`
	ReceiptRef *string   `json:"receiptRef"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MarshalJSON writes the amount as a fixed two-decimal string.
func (e Expense) MarshalJSON() ([]byte, error) {
	return json.Marshal(expenseJSON{
		OwnerID:    e.OwnerID,
		RecordID:   e.RecordID,
		Category:   e.Category,
		Amount:     FormatAmount(e.Amount),
		Date:       e.Date,
		ReceiptRef: e.ReceiptRef,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	})
}

func (e *Expense) UnmarshalJSON(data []byte) error {
	var raw expenseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount := decimal.Zero
	if raw.Amount != "" {
		parsed, err := decimal.NewFromString(raw.Amount)
		if err != nil {
			return err
		}
		amount = parsed
	}
	*e = Expense{
		OwnerID:    raw.OwnerID,
		RecordID:   raw.RecordID,
		Category:   raw.Category,
		Amount:     amount,
		Date:       raw.Date,
		ReceiptRef: raw.ReceiptRef,
		CreatedAt:  raw.CreatedAt,
		UpdatedAt:  raw.UpdatedAt,
	}
	return nil
}

// HasReceipt reports whether a receipt reference is attached.
func (e *Expense) HasReceipt() bool {
	return e.ReceiptRef != nil && *e.ReceiptRef != ""
}

// Optional carries a value together with whether its JSON key was present.
// An explicit null sets Set with the zero value.
type Optional[T any] struct {
	Value T
	Set   bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

// IsZero lets `omitzero` drop unset fields when encoding.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}

type CreateParams struct {
	OwnerID    string
	Category   string
	Amount     decimal.NullDecimal
	Date       string
	ReceiptRef *string
}

func (p *CreateParams) Validate() error {
	var missing []string
	if strings.TrimSpace(p.Category) == "" {
		missing = append(missing, "category")
	}
	if !p.Amount.Valid {
		missing = append(missing, "amount")
	}
	if IsPlaceholderOwner(p.OwnerID) {
		missing = append(missing, "ownerId")
	}
	if len(missing) > 0 {
		return apperr.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if _, err := NormalizeAmount(p.Amount.Decimal); err != nil {
		return err
	}
	if p.Date != "" {
		if _, err := NormalizeDate(p.Date); err != nil {
			return err
		}
	}
	return nil
}

// Patch is a partial update. Only fields with Set are written; all others keep
// their stored value. ReceiptRef with Set and an empty Value removes the receipt.
type Patch struct {
	Category   Optional[string]
	Amount     Optional[decimal.Decimal]
	Date       Optional[string]
	ReceiptRef Optional[string]
}

// IsEmpty reports whether the patch names no recognized field.
func (p *Patch) IsEmpty() bool {
	return !p.Category.Set && !p.Amount.Set && !p.Date.Set && !p.ReceiptRef.Set
}

// Normalize validates the set fields and returns the patch in stored form.
func (p Patch) Normalize() (Patch, error) {
	if p.Category.Set {
		category := strings.TrimSpace(p.Category.Value)
		if category == "" {
			return Patch{}, apperr.Validation("category cannot be empty")
		}
		p.Category.Value = category
	}
	if p.Amount.Set {
		amount, err := NormalizeAmount(p.Amount.Value)
		if err != nil {
			return Patch{}, err
		}
		p.Amount.Value = amount
	}
	if p.Date.Set {
		date, err := NormalizeDate(p.Date.Value)
		if err != nil {
			return Patch{}, err
		}
		p.Date.Value = date
	}
	if p.ReceiptRef.Set {
		p.ReceiptRef.Value = strings.TrimSpace(p.ReceiptRef.Value)
	}
	return p, nil
}

// Apply merges the patch into e. Used by stores that merge in process.
func (p *Patch) Apply(e *Expense, updatedAt time.Time) {
	if p.Category.Set {
		e.Category = p.Category.Value
	}
	if p.Amount.Set {
		e.Amount = p.Amount.Value
	}
	if p.Date.Set {
		e.Date = p.Date.Value
	}
	if p.ReceiptRef.Set {
		if p.ReceiptRef.Value == "" {
			e.ReceiptRef = nil
		} else {
			ref := p.ReceiptRef.Value
			e.ReceiptRef = &ref
		}
	}
	e.UpdatedAt = updatedAt
}

// NormalizeAmount rounds to two places (half away from zero) and requires a positive result.
func NormalizeAmount(d decimal.Decimal) (decimal.Decimal, error) {
	rounded := d.Round(2)
	if !rounded.IsPositive() {
		return decimal.Decimal{}, apperr.Validation("amount must be greater than zero")
	}
	return rounded, nil
}

// ParseAmount parses user input such as "12.5" into a normalized amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, apperr.Validationf("invalid amount %q", s)
	}
	return NormalizeAmount(d)
}

func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func NormalizeDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", apperr.Validationf("date must be formatted as YYYY-MM-DD, got %q", s)
	}
	return t.Format(DateLayout), nil
}

// IsPlaceholderOwner reports whether id means "no identity was provided".
func IsPlaceholderOwner(id string) bool {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "", "null", "undefined", GuestOwnerID:
		return true
	}
	return false
}

// Summary aggregates the figures shown above the expense table.
type Summary struct {
	Total        decimal.Decimal `json:"-"`
	Count        int             `json:"count"`
	WithReceipts int             `json:"withReceipts"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Total        string `json:"total"`
		Count        int    `json:"count"`
		WithReceipts int    `json:"withReceipts"`
	}{FormatAmount(s.Total), s.Count, s.WithReceipts})
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw struct {
		Total        decimal.Decimal `json:"total"`
		Count        int             `json:"count"`
		WithReceipts int             `json:"withReceipts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Summary{Total: raw.Total, Count: raw.Count, WithReceipts: raw.WithReceipts}
	return nil
}

func Summarize(expenses []*Expense) Summary {
	s := Summary{Total: decimal.Zero}
	for _, e := range expenses {
		s.Total = s.Total.Add(e.Amount)
		s.Count++
		if e.HasReceipt() {
			s.WithReceipts++
		}
	}
	return s
}

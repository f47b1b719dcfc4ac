package expense

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/shared/apperr"
)

// Service implements the expense operations on top of a Repository.
// It keeps no per-request state; the only shared field is the clock guard
// that keeps issued timestamps strictly increasing.
type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	last time.Time
}

// NewService creates a new expense service
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// timestamp returns the current UTC time at microsecond precision, never
// earlier than or equal to a previously issued one.
func (s *Service) timestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// Create validates params and writes a new expense with a fresh record id.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Expense, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	amount, _ := NormalizeAmount(params.Amount.Decimal)
	now := s.timestamp()

	date := now.Format(DateLayout)
	if params.Date != "" {
		date, _ = NormalizeDate(params.Date)
	}

	var receiptRef *string
	if params.ReceiptRef != nil && strings.TrimSpace(*params.ReceiptRef) != "" {
		ref := strings.TrimSpace(*params.ReceiptRef)
		receiptRef = &ref
	}

	e := &Expense{
		OwnerID:    strings.TrimSpace(params.OwnerID),
		RecordID:   s.newID(),
		Category:   strings.TrimSpace(params.Category),
		Amount:     amount,
		Date:       date,
		ReceiptRef: receiptRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Put(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// List returns every expense of one owner in store order.
func (s *Service) List(ctx context.Context, ownerID string) ([]*Expense, error) {
	if IsPlaceholderOwner(ownerID) {
		return nil, apperr.Validation("missing required parameter: ownerId")
	}

	expenses, err := s.repo.ListByOwner(ctx, strings.TrimSpace(ownerID))
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []*Expense{}
	}
	return expenses, nil
}

// Get returns a single expense.
func (s *Service) Get(ctx context.Context, ownerID, recordID string) (*Expense, error) {
	if err := validateKey(ownerID, recordID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, strings.TrimSpace(ownerID), strings.TrimSpace(recordID))
}

// Update merges patch into the stored expense and rewrites updatedAt.
func (s *Service) Update(ctx context.Context, ownerID, recordID string, patch Patch) (*Expense, error) {
	if strings.TrimSpace(recordID) == "" {
		return nil, apperr.Validation("expense ID is required")
	}
	if IsPlaceholderOwner(ownerID) {
		return nil, apperr.Validation("owner ID is required")
	}
	if patch.IsEmpty() {
		return nil, apperr.Validation("no fields to update")
	}

	normalized, err := patch.Normalize()
	if err != nil {
		return nil, err
	}

	return s.repo.Update(ctx, strings.TrimSpace(ownerID), strings.TrimSpace(recordID), normalized, s.timestamp())
}

// Delete removes an expense and returns the deleted snapshot.
func (s *Service) Delete(ctx context.Context, ownerID, recordID string) (*Expense, error) {
	if err := validateKey(ownerID, recordID); err != nil {
		return nil, err
	}
	return s.repo.Delete(ctx, strings.TrimSpace(ownerID), strings.TrimSpace(recordID))
}

// Summary aggregates an owner's expenses.
func (s *Service) Summary(ctx context.Context, ownerID string) (Summary, error) {
	expenses, err := s.List(ctx, ownerID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(expenses), nil
}

func validateKey(ownerID, recordID string) error {
	if IsPlaceholderOwner(ownerID) || strings.TrimSpace(recordID) == "" {
		return apperr.Validation("missing ownerId or expenseId parameter")
	}
	return nil
}

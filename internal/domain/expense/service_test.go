package expense

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/shared/apperr"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	PutFunc         func(ctx context.Context, e *Expense) error
	GetFunc         func(ctx context.Context, ownerID, recordID string) (*Expense, error)
	ListByOwnerFunc func(ctx context.Context, ownerID string) ([]*Expense, error)
	UpdateFunc      func(ctx context.Context, ownerID, recordID string, patch Patch, updatedAt time.Time) (*Expense, error)
	DeleteFunc      func(ctx context.Context, ownerID, recordID string) (*Expense, error)
}

func (m *MockRepository) Put(ctx context.Context, e *Expense) error {
	if m.PutFunc != nil {
		return m.PutFunc(ctx, e)
	}
	return nil
}

func (m *MockRepository) Get(ctx context.Context, ownerID, recordID string) (*Expense, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ownerID, recordID)
	}
	return nil, ErrExpenseNotFound
}

func (m *MockRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Expense, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *MockRepository) Update(ctx context.Context, ownerID, recordID string, patch Patch, updatedAt time.Time) (*Expense, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ownerID, recordID, patch, updatedAt)
	}
	return nil, ErrExpenseNotFound
}

func (m *MockRepository) Delete(ctx context.Context, ownerID, recordID string) (*Expense, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, ownerID, recordID)
	}
	return nil, ErrExpenseNotFound
}

func newTestService(repo Repository, now time.Time) *Service {
	s := NewService(repo)
	s.now = func() time.Time { return now }
	s.newID = func() string { return "rec-1" }
	return s
}

func TestCreateExpense(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)

	tests := []struct {
		name     string
		params   CreateParams
		putErr   error
		wantErr  bool
		wantKind apperr.Kind
		check    func(t *testing.T, e *Expense)
	}{
		{
			name:   "Success",
			params: CreateParams{OwnerID: " u1 ", Category: " Food ", Amount: amount("12.345"), Date: "2024-05-01"},
			check: func(t *testing.T, e *Expense) {
				if e.OwnerID != "u1" || e.Category != "Food" || e.RecordID != "rec-1" {
					t.Errorf("Create() = %+v", e)
				}
				if FormatAmount(e.Amount) != "12.35" {
					t.Errorf("Amount = %s, want 12.35", FormatAmount(e.Amount))
				}
				if e.Date != "2024-05-01" {
					t.Errorf("Date = %q", e.Date)
				}
				if !e.CreatedAt.Equal(e.UpdatedAt) {
					t.Error("createdAt and updatedAt should be equal on create")
				}
				if e.CreatedAt.Nanosecond()%1000 != 0 || e.CreatedAt.Location() != time.UTC {
					t.Errorf("CreatedAt = %v, want UTC at microsecond precision", e.CreatedAt)
				}
			},
		},
		{
			name:   "Date Defaults To Today",
			params: CreateParams{OwnerID: "u1", Category: "Food", Amount: amount("1"), ReceiptRef: strPtr("  ")},
			check: func(t *testing.T, e *Expense) {
				if e.Date != "2024-05-06" {
					t.Errorf("Date = %q, want 2024-05-06", e.Date)
				}
				if e.ReceiptRef != nil {
					t.Error("blank receipt ref should be dropped")
				}
			},
		},
		{
			name:     "Missing Fields",
			params:   CreateParams{OwnerID: "u1"},
			wantErr:  true,
			wantKind: apperr.KindValidation,
		},
		{
			name:     "Repository Error",
			params:   CreateParams{OwnerID: "u1", Category: "Food", Amount: amount("1")},
			putErr:   apperr.Dependency("failed to write expense", errors.New("timeout")),
			wantErr:  true,
			wantKind: apperr.KindDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			repo := &MockRepository{
				PutFunc: func(ctx context.Context, e *Expense) error {
					called = true
					return tt.putErr
				},
			}
			s := newTestService(repo, now)

			got, err := s.Create(ctx, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if apperr.KindOf(err) != tt.wantKind {
					t.Errorf("Create() error kind = %v, want %v", apperr.KindOf(err), tt.wantKind)
				}
				if tt.wantKind == apperr.KindValidation && called {
					t.Error("repository should not be called on validation failure")
				}
				return
			}
			tt.check(t, got)
		})
	}
}

func TestListExpenses(t *testing.T) {
	ctx := context.Background()

	t.Run("placeholder owner", func(t *testing.T) {
		s := NewService(&MockRepository{
			ListByOwnerFunc: func(ctx context.Context, ownerID string) ([]*Expense, error) {
				t.Error("repository should not be called")
				return nil, nil
			},
		})
		for _, owner := range []string{"", "guest", "undefined"} {
			_, err := s.List(ctx, owner)
			if !apperr.IsValidation(err) || !strings.Contains(err.Error(), "ownerId") {
				t.Errorf("List(%q) error = %v, want validation", owner, err)
			}
		}
	})

	t.Run("nil becomes empty", func(t *testing.T) {
		s := NewService(&MockRepository{})
		got, err := s.List(ctx, "u1")
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("List() = %v, want empty non-nil slice", got)
		}
	})
}

func TestUpdateExpense(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		name     string
		ownerID  string
		recordID string
		patch    Patch
		wantMsg  string
	}{
		{name: "Missing Record", ownerID: "u1", recordID: " ", patch: Patch{Category: Some("Food")}, wantMsg: "expense ID is required"},
		{name: "Missing Owner", ownerID: "guest", recordID: "e1", patch: Patch{Category: Some("Food")}, wantMsg: "owner ID is required"},
		{name: "Empty Patch", ownerID: "u1", recordID: "e1", patch: Patch{}, wantMsg: "no fields to update"},
		{name: "Invalid Amount", ownerID: "u1", recordID: "e1", patch: Patch{Amount: Some(decimal.RequireFromString("-1"))}, wantMsg: "amount must be greater than zero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(&MockRepository{
				UpdateFunc: func(ctx context.Context, ownerID, recordID string, patch Patch, updatedAt time.Time) (*Expense, error) {
					t.Error("repository should not be called")
					return nil, nil
				},
			}, now)

			_, err := s.Update(ctx, tt.ownerID, tt.recordID, tt.patch)
			if !apperr.IsValidation(err) || apperr.Message(err) != tt.wantMsg {
				t.Errorf("Update() error = %v, want %q", err, tt.wantMsg)
			}
		})
	}

	t.Run("Passes Normalized Patch", func(t *testing.T) {
		var gotPatch Patch
		var gotAt time.Time
		s := newTestService(&MockRepository{
			UpdateFunc: func(ctx context.Context, ownerID, recordID string, patch Patch, updatedAt time.Time) (*Expense, error) {
				if ownerID != "u1" || recordID != "e1" {
					t.Errorf("Update() key = %s/%s", ownerID, recordID)
				}
				gotPatch, gotAt = patch, updatedAt
				return &Expense{OwnerID: ownerID, RecordID: recordID}, nil
			},
		}, now)

		_, err := s.Update(ctx, "u1", " e1 ", Patch{Category: Some(" Travel "), Amount: Some(decimal.RequireFromString("2.005"))})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if gotPatch.Category.Value != "Travel" || FormatAmount(gotPatch.Amount.Value) != "2.01" {
			t.Errorf("patch = %+v", gotPatch)
		}
		if gotPatch.Date.Set || gotPatch.ReceiptRef.Set {
			t.Error("unset fields should stay unset")
		}
		if !gotAt.Equal(now) {
			t.Errorf("updatedAt = %v, want %v", gotAt, now)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		s := newTestService(&MockRepository{}, now)
		_, err := s.Update(ctx, "u1", "missing", Patch{Category: Some("Food")})
		if !errors.Is(err, ErrExpenseNotFound) {
			t.Errorf("Update() error = %v, want ErrExpenseNotFound", err)
		}
	})
}

func TestDeleteExpense(t *testing.T) {
	ctx := context.Background()
	s := NewService(&MockRepository{
		DeleteFunc: func(ctx context.Context, ownerID, recordID string) (*Expense, error) {
			return &Expense{OwnerID: ownerID, RecordID: recordID}, nil
		},
	})

	if _, err := s.Delete(ctx, "", "e1"); !apperr.IsValidation(err) {
		t.Errorf("Delete() with no owner error = %v, want validation", err)
	}
	if _, err := s.Delete(ctx, "u1", ""); apperr.Message(err) != "missing ownerId or expenseId parameter" {
		t.Errorf("Delete() with no record error = %v", err)
	}

	got, err := s.Delete(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got.RecordID != "e1" {
		t.Errorf("Delete() = %+v", got)
	}
}

func TestTimestampIsStrictlyIncreasing(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestService(&MockRepository{}, frozen)

	prev := s.timestamp()
	for i := 0; i < 100; i++ {
		next := s.timestamp()
		if !next.After(prev) {
			t.Fatalf("timestamp() = %v, not after %v", next, prev)
		}
		prev = next
	}

	// A clock that steps backwards still yields a later timestamp.
	s.now = func() time.Time { return frozen.Add(-time.Hour) }
	if next := s.timestamp(); !next.After(prev) {
		t.Errorf("timestamp() after clock step back = %v, not after %v", next, prev)
	}
}

func TestSummary(t *testing.T) {
	s := NewService(&MockRepository{
		ListByOwnerFunc: func(ctx context.Context, ownerID string) ([]*Expense, error) {
			return []*Expense{
				{Amount: decimal.RequireFromString("1.25"), ReceiptRef: strPtr("https://r/1")},
				{Amount: decimal.RequireFromString("2.75")},
			}, nil
		},
	})

	got, err := s.Summary(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if FormatAmount(got.Total) != "4.00" || got.Count != 2 || got.WithReceipts != 1 {
		t.Errorf("Summary() = %+v", got)
	}
}

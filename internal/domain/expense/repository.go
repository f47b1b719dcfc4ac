package expense

import (
	"context"
	"time"
)

// Repository is the record store keyed by (ownerID, recordID).
//
// Update and Delete must be atomic per key and conditioned on the record
// existing: when it does not, they return ErrExpenseNotFound without writing.
type Repository interface {
	Put(ctx context.Context, e *Expense) error
	Get(ctx context.Context, ownerID, recordID string) (*Expense, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Expense, error)
	Update(ctx context.Context, ownerID, recordID string, patch Patch, updatedAt time.Time) (*Expense, error)
	Delete(ctx context.Context, ownerID, recordID string) (*Expense, error)
}

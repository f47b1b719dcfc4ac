// Package memory holds process-local store backends for development and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/domain/expense"
)

// ExpenseRepository keeps expenses in a map partitioned by owner.
// Records are returned in insertion order, like a sort-keyed table scan
// would return them in key order.
type ExpenseRepository struct {
	mu     sync.RWMutex
	owners map[string]*partition
}

type partition struct {
	items map[string]*expense.Expense
	order []string
}

var _ expense.Repository = (*ExpenseRepository)(nil)

func NewExpenseRepository() *ExpenseRepository {
	return &ExpenseRepository{owners: make(map[string]*partition)}
}

func (r *ExpenseRepository) Put(ctx context.Context, e *expense.Expense) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.owners[e.OwnerID]
	if !ok {
		p = &partition{items: make(map[string]*expense.Expense)}
		r.owners[e.OwnerID] = p
	}
	if _, exists := p.items[e.RecordID]; !exists {
		p.order = append(p.order, e.RecordID)
	}
	p.items[e.RecordID] = clone(e)
	return nil
}

func (r *ExpenseRepository) Get(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e := r.lookup(ownerID, recordID)
	if e == nil {
		return nil, expense.ErrExpenseNotFound
	}
	return clone(e), nil
}

func (r *ExpenseRepository) ListByOwner(ctx context.Context, ownerID string) ([]*expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.owners[ownerID]
	if !ok {
		return []*expense.Expense{}, nil
	}
	out := make([]*expense.Expense, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, clone(p.items[id]))
	}
	return out, nil
}

func (r *ExpenseRepository) Update(ctx context.Context, ownerID, recordID string, patch expense.Patch, updatedAt time.Time) (*expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(ownerID, recordID)
	if e == nil {
		return nil, expense.ErrExpenseNotFound
	}
	patch.Apply(e, updatedAt)
	return clone(e), nil
}

func (r *ExpenseRepository) Delete(ctx context.Context, ownerID, recordID string) (*expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.lookup(ownerID, recordID)
	if e == nil {
		return nil, expense.ErrExpenseNotFound
	}

	p := r.owners[ownerID]
	delete(p.items, recordID)
	for i, id := range p.order {
		if id == recordID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return e, nil
}

func (r *ExpenseRepository) lookup(ownerID, recordID string) *expense.Expense {
	p, ok := r.owners[ownerID]
	if !ok {
		return nil
	}
	return p.items[recordID]
}

func clone(e *expense.Expense) *expense.Expense {
	c := *e
	if e.ReceiptRef != nil {
		ref := *e.ReceiptRef
		c.ReceiptRef = &ref
	}
	return &c
}

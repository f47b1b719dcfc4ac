package expense

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/shared/apperr"
)

const DefaultCopyWorkers = 4

// CopyResult is the outcome of copying one owner's records.
type CopyResult struct {
	OwnerID string
	Listed  int
	Copied  int
	Skipped int
	Err     error
}

// CopyOwners copies every record of each owner from src to dst. Records that
// already exist in dst are skipped, so a partial run can be repeated. Owners
// are processed by up to workers goroutines; results keep the input order.
func CopyOwners(ctx context.Context, src, dst Repository, owners []string, workers int) []CopyResult {
	if workers <= 0 {
		workers = DefaultCopyWorkers
	}

	results := make([]CopyResult, len(owners))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, owner := range owners {
		g.Go(func() error {
			results[i] = copyOwner(ctx, src, dst, owner)
			return nil
		})
	}
	g.Wait()
	return results
}

func copyOwner(ctx context.Context, src, dst Repository, ownerID string) CopyResult {
	res := CopyResult{OwnerID: ownerID}

	expenses, err := src.ListByOwner(ctx, ownerID)
	if err != nil {
		res.Err = fmt.Errorf("list source: %w", err)
		return res
	}
	res.Listed = len(expenses)

	for _, e := range expenses {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		_, err := dst.Get(ctx, e.OwnerID, e.RecordID)
		switch {
		case err == nil:
			res.Skipped++
			continue
		case !apperr.IsNotFound(err):
			res.Err = fmt.Errorf("check %s: %w", e.RecordID, err)
			return res
		}

		if err := dst.Put(ctx, e); err != nil {
			res.Err = fmt.Errorf("put %s: %w", e.RecordID, err)
			return res
		}
		res.Copied++
	}
	return res
}

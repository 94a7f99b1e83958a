package application

import (
	"context"

	"github.com/commercekit/orderflow/internal/domains/returns/application/types"
)

// runBulk applies op to every id, collecting one result per item. Items fail
// independently; the batch never rolls back and stops early only when the
// context itself dies.
func runBulk(ctx context.Context, ids []string, op func(ctx context.Context, id string) error) []types.ItemResult {
	results := make([]types.ItemResult, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			results = append(results, types.ItemResult{ID: id, Err: err})
			continue
		}
		results = append(results, types.ItemResult{ID: id, Err: op(ctx, id)})
	}
	return results
}

// Package types carries the command and result payloads of the returns
// application layer.
package types

import orderstypes "github.com/commercekit/orderflow/internal/domains/orders/application/types"

// ResolveInput is an admin decision on an open return request.
type ResolveInput struct {
	OrderID string
	Action  orderstypes.ResolveReturnAction
	Note    string
	// Damaged suppresses the restock credit when the returned goods cannot
	// be resold.
	Damaged bool
}

// RestockLine credits one product back into inventory.
type RestockLine struct {
	ProductID string
	Quantity  int64
}

// ItemResult reports one item of a best-effort bulk operation. A nil Err
// means the item succeeded; failures never roll back sibling items.
type ItemResult struct {
	ID  string
	Err error
}

// Failed counts the items that errored.
func Failed(results []ItemResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

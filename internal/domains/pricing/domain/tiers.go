package domain

// BulkTier grants a percentage off once the ordered quantity reaches MinQty.
type BulkTier struct {
	MinQty     int64
	PercentOff int64
}

// BestTier picks the highest threshold the quantity qualifies for; ties break
// toward the larger threshold.
func BestTier(tiers []BulkTier, qty int64) (BulkTier, bool) {
	var best BulkTier
	var found bool
	for _, tier := range tiers {
		if qty < tier.MinQty {
			continue
		}
		if !found || tier.MinQty >= best.MinQty {
			best = tier
			found = true
		}
	}
	return best, found
}

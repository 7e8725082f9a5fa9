package pricing

import "sort"

// Money represents a monetary value stored in minor units.
type Money = int64

// Tier grants a bundle price once a line reaches MinQuantity pieces.
type Tier struct {
	MinQuantity int
	BundlePrice Money
}

// Item describes a line item used for order total calculation.
type Item struct {
	Qty       int
	LinePrice Money
}

// Summary aggregates computed order components.
type Summary struct {
	Subtotal Money
	Tax      Money
	Total    Money
}

// BundlePrice prices a quantity of a single product against its tier
// ladder. Tiers are evaluated from the highest MinQuantity down and the
// first tier whose MinQuantity does not exceed qty wins. Full bundles of
// the winning tier are charged BundlePrice each and the remainder is
// charged at unitPrice per piece. With no applicable tier the whole
// quantity is charged at unitPrice.
//
// The function is pure: the tiers slice is never mutated.
func BundlePrice(tiers []Tier, qty int, unitPrice Money) Money {
	if len(tiers) == 0 {
		return unitPrice * Money(qty)
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinQuantity > sorted[j].MinQuantity
	})
	for _, t := range sorted {
		if t.MinQuantity > 0 && t.MinQuantity <= qty {
			bundles := qty / t.MinQuantity
			rest := qty % t.MinQuantity
			return Money(bundles)*t.BundlePrice + Money(rest)*unitPrice
		}
	}
	return unitPrice * Money(qty)
}

// Compute calculates order totals from already priced lines.
func Compute(items []Item, taxBps int) Summary {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += it.LinePrice
	}
	tax := (subtotal * Money(taxBps)) / 10000
	return Summary{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal + tax,
	}
}

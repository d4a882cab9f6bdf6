/*
inventory.go - Stock deltas for sale mutations

PURPOSE:
  The only code allowed to change Product.stock. Every change is a signed
  delta computed from line items and applied inside the caller's
  transaction.

INVARIANT:
  Stock never goes negative as an effect of a sale operation.

TWO POLICIES:
  Create/Edit: ALL-OR-NOTHING. Every product is read and every decrease
               validated before the first patch is issued, so a later
               insufficiency can never leave an earlier product mutated.

  Cancel:      BEST-EFFORT. Line items without a resolvable product are
               skipped with a warning instead of aborting the
               cancellation. Historical sales can reference products that
               no longer exist; they must still be cancellable.

DELTA SIGN:
  delta = sum(old quantities) - sum(new quantities), per product
    creation (old empty):  negative, stock decreases
    return   (new empty):  positive, stock increases
    edit 3 -> 5 units:     -2

SEE ALSO:
  - lifecycle.go: Calls these inside RunAtomically
*/
package sales

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/warp/sales-engine/ledger"
)

// ComputeDeltas returns the per-product stock change needed to move from
// oldItems to newItems. Products whose delta is zero are omitted.
func ComputeDeltas(oldItems, newItems []LineItem) map[string]int {
	deltas := make(map[string]int)
	for _, li := range oldItems {
		deltas[li.ProductID] += li.Quantity
	}
	for _, li := range newItems {
		deltas[li.ProductID] -= li.Quantity
	}
	for id, d := range deltas {
		if d == 0 {
			delete(deltas, id)
		}
	}
	return deltas
}

// ValidateAndApply applies deltas to product stock inside tx, or fails
// without patching anything.
func ValidateAndApply(ctx context.Context, tx ledger.Tx, deltas map[string]int) error {
	ids := sortedIDs(deltas)

	// Phase 1: read and validate everything.
	next := make(map[string]int, len(ids))
	for _, id := range ids {
		p, err := loadProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		d := deltas[id]
		if p.Stock+d < 0 {
			return &InsufficientStockError{ProductID: id, Available: p.Stock, Requested: -d}
		}
		next[id] = p.Stock + d
	}

	// Phase 2: write.
	for _, id := range ids {
		if err := tx.Patch(ctx, productRef(id), map[string]any{"stock": next[id]}); err != nil {
			return fmt.Errorf("update stock of %s: %w", id, err)
		}
	}
	return nil
}

// FillSnapshots completes line items from the catalog inside tx. A missing
// name, a zero unit cost, or a zero unit price on a non-gift line is copied
// from the product; values the caller set are kept as the negotiated price.
func FillSnapshots(ctx context.Context, tx ledger.Tx, items []LineItem) ([]LineItem, error) {
	out := cloneItems(items)
	for i, li := range out {
		if li.Name != "" && !li.UnitCost.IsZero() && (li.IsGift || !li.UnitPrice.IsZero()) {
			continue
		}
		p, err := loadProduct(ctx, tx, li.ProductID)
		if err != nil {
			return nil, err
		}
		if li.Name == "" {
			out[i].Name = p.Name
		}
		if li.UnitCost.IsZero() {
			out[i].UnitCost = p.Cost
		}
		if li.UnitPrice.IsZero() && !li.IsGift {
			out[i].UnitPrice = p.Price
		}
	}
	return out, nil
}

// ReturnBestEffort puts the quantities of items back into stock. Items
// without a product id, or whose product no longer exists, are skipped and
// reported as warnings. Storage errors still fail the call.
func ReturnBestEffort(ctx context.Context, tx ledger.Tx, items []LineItem) ([]string, error) {
	var warnings []string
	resolvable := make([]LineItem, 0, len(items))
	for i, li := range items {
		if li.ProductID == "" {
			warnings = append(warnings, fmt.Sprintf("line item %d (%s): no product reference, stock not returned", i, li.Name))
			continue
		}
		resolvable = append(resolvable, li)
	}

	deltas := ComputeDeltas(resolvable, nil)
	for _, id := range sortedIDs(deltas) {
		p, err := loadProduct(ctx, tx, id)
		if errors.Is(err, ErrProductNotFound) {
			warnings = append(warnings, fmt.Sprintf("product %s: not found, %d unit(s) not returned", id, deltas[id]))
			continue
		}
		if err != nil {
			return warnings, err
		}
		if err := tx.Patch(ctx, productRef(id), map[string]any{"stock": p.Stock + deltas[id]}); err != nil {
			return warnings, fmt.Errorf("update stock of %s: %w", id, err)
		}
	}
	return warnings, nil
}

func loadProduct(ctx context.Context, tx ledger.Tx, id string) (Product, error) {
	var p Product
	err := tx.Get(ctx, productRef(id), &p)
	if errors.Is(err, ledger.ErrDocumentNotFound) {
		return Product{}, &ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return Product{}, fmt.Errorf("read product %s: %w", id, err)
	}
	return p, nil
}

func sortedIDs(deltas map[string]int) []string {
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

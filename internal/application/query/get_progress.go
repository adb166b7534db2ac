// Package query contains read operations (CQRS - Queries).
// Queries recompute state from the catalog and cart without side effects:
// no enforcement, no mutations, no flag transitions.
package query

import (
	"context"

	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
)

// GetProgressQuery requests the current milestone descriptor.
type GetProgressQuery struct {
	Session shared.SessionToken
}

// GetProgressHandler computes progress on demand.
type GetProgressHandler struct {
	catalogSource rule.CatalogSource
	cartSource    cart.Source
	normalizer    *rule.Normalizer
	calculator    *progress.Calculator
}

// NewGetProgressHandler creates the handler.
func NewGetProgressHandler(catalogSource rule.CatalogSource, cartSource cart.Source, normalizer *rule.Normalizer, calculator *progress.Calculator) *GetProgressHandler {
	return &GetProgressHandler{
		catalogSource: catalogSource,
		cartSource:    cartSource,
		normalizer:    normalizer,
		calculator:    calculator,
	}
}

// Handle fetches the current sources and computes the descriptor.
// A failed catalog fetch degrades to an empty catalog (suppressed UI);
// a failed cart fetch is fatal for the query.
func (h *GetProgressHandler) Handle(ctx context.Context, q GetProgressQuery) (progress.Descriptor, error) {
	if !q.Session.IsValid() {
		return progress.Descriptor{}, shared.NewDomainError("query", "GetProgress", shared.ErrInvalidID, "session token is required")
	}

	catalog := rule.Empty()
	if raw, err := h.catalogSource.Fetch(ctx, q.Session); err == nil {
		catalog, _ = h.normalizer.NormalizeCatalog(raw)
	}

	snap, err := h.cartSource.Fetch(ctx, q.Session)
	if err != nil {
		return progress.Descriptor{}, shared.WrapError("query", "GetProgress", shared.ErrCartUnavailable, "cart fetch failed", err)
	}

	return h.calculator.Compute(catalog, snap.Subtotal), nil
}

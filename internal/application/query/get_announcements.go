package query

import (
	"context"

	"github.com/cartperks/cartperks-engine/internal/domain/announce"
	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// GetAnnouncementsQuery requests the merged announcement list.
type GetAnnouncementsQuery struct {
	Session shared.SessionToken
}

// GetAnnouncementsHandler builds the announcement list on demand.
type GetAnnouncementsHandler struct {
	catalogSource rule.CatalogSource
	cartSource    cart.Source
	normalizer    *rule.Normalizer
	evaluator     *eligibility.Evaluator
	aggregator    *announce.Aggregator
}

// NewGetAnnouncementsHandler creates the handler.
func NewGetAnnouncementsHandler(catalogSource rule.CatalogSource, cartSource cart.Source, normalizer *rule.Normalizer, evaluator *eligibility.Evaluator, aggregator *announce.Aggregator) *GetAnnouncementsHandler {
	return &GetAnnouncementsHandler{
		catalogSource: catalogSource,
		cartSource:    cartSource,
		normalizer:    normalizer,
		evaluator:     evaluator,
		aggregator:    aggregator,
	}
}

// Handle fetches sources, evaluates offer rules, and merges messages.
func (h *GetAnnouncementsHandler) Handle(ctx context.Context, q GetAnnouncementsQuery) ([]string, error) {
	if !q.Session.IsValid() {
		return nil, shared.NewDomainError("query", "GetAnnouncements", shared.ErrInvalidID, "session token is required")
	}

	catalog := rule.Empty()
	if raw, err := h.catalogSource.Fetch(ctx, q.Session); err == nil {
		catalog, _ = h.normalizer.NormalizeCatalog(raw)
	}

	snap, err := h.cartSource.Fetch(ctx, q.Session)
	if err != nil {
		return nil, shared.WrapError("query", "GetAnnouncements", shared.ErrCartUnavailable, "cart fetch failed", err)
	}

	var best *eligibility.Record
	if rec, ok := h.evaluator.EvaluateBest(catalog.BXGY, snap); ok {
		best = &rec
	}
	offers := h.evaluator.EvaluateAll(catalog.BuyXGetY, snap)

	return h.aggregator.Build(catalog.CodeDiscounts(), snap, best, offers, catalog.Fallback), nil
}

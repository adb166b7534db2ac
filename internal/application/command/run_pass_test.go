package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/announce"
	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/notification"
	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

type fakeCatalogSource struct {
	raw *rule.RawCatalog
	err error
}

func (f *fakeCatalogSource) Fetch(_ context.Context, _ shared.SessionToken) (*rule.RawCatalog, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.raw, nil
}

func passCatalog() *rule.RawCatalog {
	return &rule.RawCatalog{
		Shipping: []rule.Record{{
			"id": "shipping:free", "step": "step1", "goal": "30",
			"before_message": "Spend {{goal}} more for free shipping",
			"after_message":  "Free shipping unlocked!",
		}},
		FreeGift: []rule.Record{{
			"id": "freegift:mug", "step": "step2", "goal": "50",
			"after_message": "Free mug unlocked!",
			"variant_id":    "9001",
		}},
		BuyXGetY: []rule.Record{{
			"id": "buyxgety:cap", "x": "1", "y": "1",
			"after_message": "Free cap added",
			"variant_id":    "9002",
		}},
		Fallback: []string{"Free returns on all orders"},
	}
}

func newPassHandler(cs rule.CatalogSource, sf *fakeStorefront, settings PassSettings) *RunPassHandler {
	ev := eligibility.NewEvaluator(nil)
	return NewRunPassHandler(RunPassDeps{
		CatalogSource: cs,
		CartSource:    sf,
		Normalizer:    rule.NewNormalizer(),
		Calculator:    progress.NewCalculator(),
		Evaluator:     ev,
		Machine:       notification.NewMachine(notification.NewMemoryFlagStore()),
		Aggregator:    announce.NewAggregator(),
		Enforcer:      NewEnforceRewardsHandler(sf, sf, ev, nil),
		Applier:       NewApplyRewardHandler(sf, nil),
		Settings:      settings,
	})
}

func TestRunPass_FullEvaluation(t *testing.T) {
	snap := &cart.Snapshot{
		Items:    []cart.LineItem{{Index: 1, ProductID: "p1", Quantity: 1, LinePrice: 4000}},
		Subtotal: 4000,
	}
	sf := &fakeStorefront{snap: snap}
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.False(t, res.Unavailable)
	assert.False(t, res.Degraded)

	// Step 1 (3000) is met, step 2 (5000) is not.
	assert.Equal(t, 1, res.Progress.CompletedCount)

	// The single-unit BuyXGetY offer auto-added its reward silently.
	assert.Len(t, res.RewardsAdded, 1)
	assert.Equal(t, shared.VariantID(9002), res.RewardsAdded[0].VariantID)
	assert.Len(t, sf.adds, 1)
	assert.Empty(t, res.Popups)

	// Offer message first, then the external fallback.
	assert.Equal(t, []string{"Free cap added", "Free returns on all orders"}, res.Announcements)
}

func TestRunPass_RejectsInvalidSession(t *testing.T) {
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, &fakeStorefront{}, DefaultPassSettings())

	_, err := h.Handle(context.Background(), RunPassCommand{Session: "  "})
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestRunPass_CartUnavailable(t *testing.T) {
	sf := &fakeStorefront{fetchErr: errors.New("storefront down")}
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession})
	assert.NoError(t, err)
	assert.True(t, res.Unavailable)
	assert.Empty(t, res.Popups)
	assert.Empty(t, res.RewardsAdded)
	assert.Empty(t, res.Announcements)
}

func TestRunPass_CatalogUnavailableDegrades(t *testing.T) {
	snap := &cart.Snapshot{Subtotal: 4000}
	sf := &fakeStorefront{snap: snap}
	h := newPassHandler(&fakeCatalogSource{err: shared.ErrCatalogUnavailable}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, res.Progress.Suppressed)
	assert.Empty(t, res.Announcements)
	assert.Empty(t, res.RewardsAdded)
}

func TestRunPass_PrimedPassEmitsNothing(t *testing.T) {
	snap := &cart.Snapshot{
		Items:    []cart.LineItem{{Index: 1, ProductID: "p1", Quantity: 2, LinePrice: 8000}},
		Subtotal: 8000,
	}
	sf := &fakeStorefront{snap: snap}
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession, Prime: true, DrawerOpen: true})
	assert.NoError(t, err)
	assert.True(t, res.Primed)
	assert.Empty(t, res.Popups)
	assert.Empty(t, res.RewardsAdded)

	// Progress and announcements still render on a primed pass.
	assert.Equal(t, 2, res.Progress.CompletedCount)
	assert.NotEmpty(t, res.Announcements)

	// The baseline holds: the next pass stays silent too.
	res, err = h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.Empty(t, res.Popups)
	assert.Empty(t, res.RewardsAdded)
}

func TestRunPass_AtMostOnePromptPerPass(t *testing.T) {
	raw := passCatalog()
	// A second prompt-worthy rule: the free gift at step 2.
	snap := &cart.Snapshot{
		Items:    []cart.LineItem{{Index: 1, ProductID: "p1", Quantity: 3, LinePrice: 9000}},
		Subtotal: 9000,
	}
	raw.BXGY = []rule.Record{{
		"id": "bxgy:bundle", "minimum_purchase": "60",
		"after_message": "Bundle offer unlocked",
		"variant_id":    "9003",
	}}
	sf := &fakeStorefront{snap: snap}
	h := newPassHandler(&fakeCatalogSource{raw: raw}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.Len(t, res.Popups, 1)

	// The first prompt in catalog order won: the free gift.
	assert.Equal(t, rule.KindFreeGift, res.Popups[0].Kind)

	// The losing prompt kept its flags unset and fires next pass.
	res, err = h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.Len(t, res.Popups, 1)
	assert.Equal(t, rule.KindBXGY, res.Popups[0].Kind)
}

func TestRunPass_SettingsGateIntents(t *testing.T) {
	snap := &cart.Snapshot{
		Items:    []cart.LineItem{{Index: 1, ProductID: "p1", Quantity: 1, LinePrice: 4000}},
		Subtotal: 4000,
	}
	sf := &fakeStorefront{snap: snap}
	settings := DefaultPassSettings()
	settings.AutoAddEnabled = false
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, sf, settings)

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession, DrawerOpen: true})
	assert.NoError(t, err)
	assert.Empty(t, res.RewardsAdded)
	assert.Empty(t, sf.adds)
}

func TestRunPass_EnforcerRemovalsReported(t *testing.T) {
	snap := &cart.Snapshot{
		Items: []cart.LineItem{
			{Index: 1, ProductID: "p1", Quantity: 1, LinePrice: 1000},
			giftLine(2, "freegift:orphan"),
		},
		Subtotal: 1000,
	}
	sf := &fakeStorefront{snap: snap}
	h := newPassHandler(&fakeCatalogSource{raw: passCatalog()}, sf, DefaultPassSettings())

	res, err := h.Handle(context.Background(), RunPassCommand{Session: testSession})
	assert.NoError(t, err)
	assert.Len(t, res.Removed, 1)
	assert.Equal(t, ReasonOrphaned, res.Removed[0].Reason)
	assert.Equal(t, []cart.ChangeLineIntent{{LineIndex: 2, Quantity: 0}}, sf.changes)
}

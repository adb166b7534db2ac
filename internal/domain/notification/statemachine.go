package notification

import (
	"context"
	"time"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// DefaultAutoCloseDelay is how long a free-gift prompt stays open before
// closing itself.
const DefaultAutoCloseDelay = 3 * time.Second

// Machine drives the per-(kind, guardKey) state machine
// {Unseen, Shown, AutoAdded}. State is held entirely in the injected
// FlagStore; the machine itself is stateless and safe to share.
type Machine struct {
	flags          FlagStore
	autoCloseDelay time.Duration
}

// NewMachine creates a Machine over the given flag store.
func NewMachine(flags FlagStore) *Machine {
	return &Machine{flags: flags, autoCloseDelay: DefaultAutoCloseDelay}
}

// WithAutoCloseDelay overrides the free-gift prompt auto-close delay.
func (m *Machine) WithAutoCloseDelay(d time.Duration) *Machine {
	if d > 0 {
		m.autoCloseDelay = d
	}
	return m
}

// Options controls one Decide pass.
type Options struct {
	// Primed marks the very first evaluation after a page or catalog
	// load: current completion is recorded as the baseline and no
	// popups or auto-adds fire.
	Primed bool

	// DrawerOpen reports whether the overlay drawer is visible. Prompt
	// transitions require it; silent auto-adds do not.
	DrawerOpen bool
}

// Decide runs the state machine over the candidates and returns the
// transitions to execute. Resets (completion true -> false) are applied to
// the flag store immediately; Shown/AutoAdded transitions are returned as
// Actions and only persist their flags when the caller commits them after
// a successful mutation.
func (m *Machine) Decide(ctx context.Context, session shared.SessionToken, candidates []Candidate, opts Options) (*Decisions, error) {
	d := &Decisions{}

	for _, c := range candidates {
		r := c.Rule
		guard := r.GuardKey()
		shownKey := FlagKey{Family: FamilyPopupShown, Kind: r.Kind.String(), GuardKey: guard}
		addedKey := FlagKey{Family: FamilyAutoAdded, Kind: r.Kind.String(), GuardKey: guard}

		if !c.Complete {
			// Shown/AutoAdded -> Unseen: clear both families so the
			// next qualifying transition is observable again.
			hadShown, err := m.flags.Has(ctx, session, shownKey)
			if err != nil {
				return nil, err
			}
			hadAdded, err := m.flags.Has(ctx, session, addedKey)
			if err != nil {
				return nil, err
			}
			if hadShown || hadAdded {
				if err := m.flags.Delete(ctx, session, shownKey); err != nil {
					return nil, err
				}
				if err := m.flags.Delete(ctx, session, addedKey); err != nil {
					return nil, err
				}
				d.Cleared = append(d.Cleared, guard)
			}
			continue
		}

		seen, err := m.flags.Has(ctx, session, shownKey)
		if err != nil {
			return nil, err
		}
		if seen {
			continue
		}

		if opts.Primed {
			// Baseline: the offer was already satisfied before the
			// page loaded, so record it as seen without celebrating.
			if err := m.flags.Set(ctx, session, shownKey); err != nil {
				return nil, err
			}
			continue
		}

		if !r.RewardVariant.IsValid() {
			// Reward resolution failure skips this rule only.
			d.Skipped = append(d.Skipped, guard)
			continue
		}

		switch {
		case r.Kind == rule.KindBuyXGetY && r.MinQuantity <= 1 && !r.MinPurchase.IsPositive():
			// A single qualifying unit already satisfies the offer;
			// presenting a choice is redundant. Unseen -> AutoAdded.
			d.Actions = append(d.Actions, Action{
				GuardKey: guard,
				Kind:     r.Kind,
				Add:      m.addIntent(r),
				flagKeys: []FlagKey{shownKey, addedKey},
			})

		case r.Kind == rule.KindFreeGift:
			// Non-interactive: prompt opens, the add fires with it,
			// and the prompt closes itself shortly after.
			if !opts.DrawerOpen {
				continue
			}
			popup := m.popupIntent(r, guard)
			popup.AutoCloseAfter = m.autoCloseDelay
			d.Actions = append(d.Actions, Action{
				GuardKey: guard,
				Kind:     r.Kind,
				Popup:    popup,
				Add:      m.addIntent(r),
				flagKeys: []FlagKey{shownKey, addedKey},
			})

		default:
			// Interactive offer: Unseen -> Shown. The customer
			// accepts via the prompt; no automatic insertion here.
			if !opts.DrawerOpen {
				continue
			}
			d.Actions = append(d.Actions, Action{
				GuardKey: guard,
				Kind:     r.Kind,
				Popup:    m.popupIntent(r, guard),
				flagKeys: []FlagKey{shownKey},
			})
		}
	}

	return d, nil
}

// Commit persists an action's guard flags after its side effects succeeded.
func (m *Machine) Commit(ctx context.Context, session shared.SessionToken, action Action) error {
	for _, key := range action.flagKeys {
		if err := m.flags.Set(ctx, session, key); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) popupIntent(r *rule.Rule, guard shared.RuleKey) *PopupIntent {
	return &PopupIntent{
		Kind:     r.Kind,
		GuardKey: guard,
		Title:    r.Title,
		Body:     rule.Substitute(r.AfterMessage, r.Tokens(0)),
		Icon:     r.Icon,
	}
}

func (m *Machine) addIntent(r *rule.Rule) *cart.AddLineIntent {
	return &cart.AddLineIntent{
		VariantID: r.RewardVariant,
		Quantity:  r.RewardQuantity(),
		Properties: map[string]string{
			cart.PropReward:  "true",
			cart.PropRuleKey: r.Key.String(),
			cart.PropHide:    "false",
		},
	}
}

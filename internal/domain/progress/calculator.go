// Package progress computes the milestone progress track: ordered step
// descriptors, fill percentage, and the label shown above the bar.
// Everything here is a pure function of (catalog, subtotal); descriptors
// are recomputed wholesale on every pass, never diffed.
package progress

import (
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Step is one rendered milestone on the progress track.
type Step struct {
	// Slot is the ordinal position (1-4).
	Slot int

	// Key is the identity key of the occupying rule.
	Key shared.RuleKey

	// Kind is the occupying rule's kind.
	Kind rule.Kind

	// Title is the rule's display title.
	Title string

	// Icon is the resolved emoji.
	Icon string

	// Goal is the subtotal threshold, zero when unresolved.
	Goal shared.Money

	// Resolved reports whether the goal is a usable positive amount.
	Resolved bool

	// Done reports whether the step is completed under monotonic
	// milestone semantics.
	Done bool

	// Label is the token-substituted display text: the after-message for
	// done steps, the before-message otherwise.
	Label string
}

// Descriptor is the full progress state for one evaluation pass.
type Descriptor struct {
	// Suppressed indicates the progress UI should not render at all:
	// no steps configured, or none with a resolvable goal. Distinct from
	// a bar at 0%.
	Suppressed bool

	// Steps is the ordered step list, slot ascending.
	Steps []Step

	// CompletedCount is the number of completed steps.
	CompletedCount int

	// NextPending is the slot of the first not-yet-completed step,
	// zero when every step is done.
	NextPending int

	// CompletedPercent is the share of the bar covered by fully
	// completed steps.
	CompletedPercent shared.Percent

	// FillPercent adds the linearly interpolated partial segment between
	// the last completed threshold and the next pending one.
	FillPercent shared.Percent

	// Label is the headline text: the pending step's before-message, a
	// final celebratory label when everything is complete, or a generic
	// in-progress label.
	Label string

	// AllComplete reports that every configured step is resolved and met.
	AllComplete bool
}

// Calculator computes progress descriptors.
type Calculator struct {
	// FinalLabel is shown when all steps are complete.
	FinalLabel string

	// InProgressLabel is the generic fallback headline.
	InProgressLabel string
}

// NewCalculator creates a Calculator with default labels.
func NewCalculator() *Calculator {
	return &Calculator{
		FinalLabel:      "You unlocked every reward!",
		InProgressLabel: "Keep going to unlock your rewards",
	}
}

// Compute builds the progress descriptor for the catalog's step rules
// against the cart subtotal.
//
// Completion is evaluated strictly in slot order and stops at the first
// unmet or unresolved step: a later, lower threshold never registers as
// done while an earlier one is unmet.
func (c *Calculator) Compute(catalog *rule.Catalog, subtotal shared.Money) Descriptor {
	slots := catalog.StepRules()
	if len(slots) == 0 {
		return Descriptor{Suppressed: true}
	}

	steps := make([]Step, 0, len(slots))
	anyResolved := false
	for slot := 1; slot <= rule.MaxStepSlots; slot++ {
		r, ok := slots[slot]
		if !ok {
			continue
		}
		resolved := r.HasResolvedGoal()
		anyResolved = anyResolved || resolved
		steps = append(steps, Step{
			Slot:     slot,
			Key:      r.Key,
			Kind:     r.Kind,
			Title:    r.Title,
			Icon:     r.Icon,
			Goal:     r.Goal,
			Resolved: resolved,
		})
	}
	if !anyResolved {
		return Descriptor{Suppressed: true}
	}

	d := Descriptor{Steps: steps}
	share := 100.0 / float64(len(steps))

	// Monotonic scan: count completed steps until the first unmet or
	// unresolved goal.
	var prevGoal shared.Money
	scanning := true
	for i := range steps {
		s := &steps[i]
		if scanning && s.Resolved && s.Goal <= subtotal {
			s.Done = true
			d.CompletedCount++
			prevGoal = s.Goal
			continue
		}
		if scanning {
			scanning = false
			d.NextPending = s.Slot
		}
	}

	d.CompletedPercent = shared.ClampPercent(float64(d.CompletedCount) * share)
	d.FillPercent = d.CompletedPercent

	// Linear interpolation toward the next pending resolved goal.
	if d.NextPending != 0 {
		if next, ok := findStep(steps, d.NextPending); ok && next.Resolved {
			span := next.Goal - prevGoal
			if span > 0 {
				partial := float64(subtotal-prevGoal) / float64(span)
				if partial < 0 {
					partial = 0
				}
				if partial > 1 {
					partial = 1
				}
				d.FillPercent = shared.ClampPercent(d.CompletedPercent.Float() + partial*share)
			}
		}
	}

	// Per-step labels.
	for i := range steps {
		s := &steps[i]
		r := slots[s.Slot]
		remaining := s.Goal.Sub(subtotal)
		if s.Done {
			s.Label = rule.Substitute(r.AfterMessage, r.Tokens(0))
		} else {
			s.Label = rule.Substitute(r.BeforeMessage, r.Tokens(remaining))
		}
	}

	// Headline label.
	switch {
	case d.NextPending != 0:
		next, _ := findStep(steps, d.NextPending)
		r := slots[next.Slot]
		d.Label = rule.Substitute(r.BeforeMessage, r.Tokens(next.Goal.Sub(subtotal)))
	case d.CompletedCount == len(steps):
		d.AllComplete = true
		d.Label = c.FinalLabel
	default:
		d.Label = c.InProgressLabel
	}

	return d
}

func findStep(steps []Step, slot int) (Step, bool) {
	for _, s := range steps {
		if s.Slot == slot {
			return s, true
		}
	}
	return Step{}, false
}

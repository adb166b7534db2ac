// Package notification implements the per-rule popup and auto-add state
// machine: at-most-once celebration prompts, at-most-once automatic reward
// insertion, and reset-on-ineligibility so re-qualification is observable
// again.
package notification

import (
	"context"
	"sync"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// FlagFamily distinguishes the two persisted flag families.
type FlagFamily string

const (
	// FamilyPopupShown guards the celebration popup.
	FamilyPopupShown FlagFamily = "popup_shown"

	// FamilyAutoAdded guards automatic reward insertion.
	FamilyAutoAdded FlagFamily = "auto_added"
)

// FlagKey addresses one persisted flag: (family, kind, guardKey), scoped to
// a browsing session.
type FlagKey struct {
	Family   FlagFamily
	Kind     string
	GuardKey shared.RuleKey
}

// FlagStore is the injected session-scoped key-value store holding guard
// flags. Presence is the value: a set flag exists, a cleared one does not.
// Production uses the redis adapter; tests and embedded hosts use
// MemoryFlagStore.
type FlagStore interface {
	// Has reports whether the flag is set.
	Has(ctx context.Context, session shared.SessionToken, key FlagKey) (bool, error)

	// Set marks the flag.
	Set(ctx context.Context, session shared.SessionToken, key FlagKey) error

	// Delete clears the flag. Deleting an absent flag is a no-op.
	Delete(ctx context.Context, session shared.SessionToken, key FlagKey) error

	// Clear wipes every flag of the session.
	Clear(ctx context.Context, session shared.SessionToken) error
}

// MemoryFlagStore is the in-memory FlagStore adapter.
type MemoryFlagStore struct {
	mu    sync.RWMutex
	flags map[shared.SessionToken]map[FlagKey]struct{}
}

// NewMemoryFlagStore creates an empty in-memory store.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{flags: make(map[shared.SessionToken]map[FlagKey]struct{})}
}

// Has implements FlagStore.
func (s *MemoryFlagStore) Has(_ context.Context, session shared.SessionToken, key FlagKey) (bool, error) {
	if key.GuardKey == "" {
		return false, shared.ErrGuardKeyEmpty
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.flags[session][key]
	return ok, nil
}

// Set implements FlagStore.
func (s *MemoryFlagStore) Set(_ context.Context, session shared.SessionToken, key FlagKey) error {
	if key.GuardKey == "" {
		return shared.ErrGuardKeyEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[session] == nil {
		s.flags[session] = make(map[FlagKey]struct{})
	}
	s.flags[session][key] = struct{}{}
	return nil
}

// Delete implements FlagStore.
func (s *MemoryFlagStore) Delete(_ context.Context, session shared.SessionToken, key FlagKey) error {
	if key.GuardKey == "" {
		return shared.ErrGuardKeyEmpty
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags[session], key)
	return nil
}

// Clear implements FlagStore.
func (s *MemoryFlagStore) Clear(_ context.Context, session shared.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, session)
	return nil
}

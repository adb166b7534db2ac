package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages engine behavior toggles. Beyond plain on/off, a flag
// can carry a rollout percentage; sessions are bucketed by token hash so a
// shopper keeps the same behavior for their whole visit.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100). Sessions are assigned by token hash.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// FeatureEnforcer reconciles stale reward lines before evaluation.
	FeatureEnforcer = "engine.enforcer"

	// FeaturePopups allows prompt-open intents for unlocked rewards.
	FeaturePopups = "engine.popups"

	// FeatureAutoAdd allows automatic reward line insertion.
	FeatureAutoAdd = "engine.auto_add"

	// FeatureAnnouncements serves the merged announcement list.
	FeatureAnnouncements = "engine.announcements"

	// FeatureCustomConditions evaluates merchant JsonLogic conditions.
	FeatureCustomConditions = "engine.custom_conditions"
)

// defaultFeatures returns the built-in flag set, everything on.
func defaultFeatures() map[string]*Feature {
	defs := []*Feature{
		{Name: FeatureEnforcer, Description: "Remove reward lines that lost entitlement", Enabled: true, RolloutPercent: 100},
		{Name: FeaturePopups, Description: "Show unlock prompts in the overlay", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAutoAdd, Description: "Insert earned reward lines automatically", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAnnouncements, Description: "Serve the merged announcement bar", Enabled: true, RolloutPercent: 100},
		{Name: FeatureCustomConditions, Description: "Evaluate merchant-defined JsonLogic conditions", Enabled: true, RolloutPercent: 100},
	}
	features := make(map[string]*Feature, len(defs))
	for _, f := range defs {
		features[f.Name] = f
	}
	return features
}

// LoadFeatureFlags builds the flag set from defaults plus environment
// overrides. FEATURE_ENGINE_POPUPS=false disables engine.popups;
// FEATURE_ENGINE_AUTO_ADD_ROLLOUT=25 rolls auto-add out to a quarter of
// sessions.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: defaultFeatures()}

	for name, feature := range ff.features {
		envName := "FEATURE_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
		if val := os.Getenv(envName); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
			}
		}
		if val := os.Getenv(envName + "_ROLLOUT"); val != "" {
			if n, err := strconv.Atoi(val); err == nil && n >= 0 && n <= 100 {
				feature.RolloutPercent = n
			}
		}
	}
	return ff
}

// IsEnabled reports whether the feature is globally on, ignoring rollout.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled
}

// IsEnabledFor reports whether the feature is on for the given session,
// applying the rollout bucket.
func (ff *FeatureFlags) IsEnabledFor(name, session string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	if !ok || !f.Enabled {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	if f.RolloutPercent <= 0 {
		return false
	}
	return bucketOf(name, session) < f.RolloutPercent
}

// Set flips a flag at runtime. Used by tests and admin tooling.
func (ff *FeatureFlags) Set(name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[name]; ok {
		f.Enabled = enabled
		return
	}
	ff.features[name] = &Feature{Name: name, Enabled: enabled, RolloutPercent: 100}
}

// bucketOf maps (feature, session) onto a stable 0-99 bucket.
func bucketOf(name, session string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(session))
	return int(h.Sum32() % 100)
}

package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Flag names.
const (
	FeatureHearts       = "progression.hearts"
	FeatureLeagues      = "progression.leagues"
	FeatureAchievements = "progression.achievements"
	FeatureSoftGate     = "anonymous.soft_gate"
	FeatureNotifyToasts = "notify.progress_toasts"
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature is one toggle. RolloutPercent below 100 admits a stable subset of
// users; requests without a user see the flag only when it is fully on.
type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

func (f *Feature) activeAt(now time.Time) bool {
	if !f.Enabled || f.RolloutPercent <= 0 {
		return false
	}
	if f.EnabledFrom != nil && now.Before(*f.EnabledFrom) {
		return false
	}
	return f.EnabledUntil == nil || !now.After(*f.EnabledUntil)
}

func (f *Feature) setPercent(p int) {
	f.RolloutPercent = p
	f.Enabled = p > 0
}

var defaultFeatures = []Feature{
	{Name: FeatureHearts, Description: "Spend a heart on every wrong answer", RolloutPercent: 100},
	{Name: FeatureLeagues, Description: "Add lesson XP to the weekly league", RolloutPercent: 100},
	{Name: FeatureAchievements, Description: "Evaluate achievements after each completion", RolloutPercent: 100},
	{Name: FeatureSoftGate, Description: "Offer sign-up to anonymous learners before it becomes mandatory", RolloutPercent: 100},
	// off until clients render toasts
	{Name: FeatureNotifyToasts, Description: "Toasts for streaks, daily goals and achievements"},
}

// FeatureFlags is safe for concurrent reads and live updates.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]map[string]bool // userID -> flag -> value
	now       func() time.Time
}

// NewFeatureFlags returns the built-in defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
		now:       time.Now,
	}
	for _, f := range defaultFeatures {
		f := f
		f.setPercent(f.RolloutPercent)
		ff.features[f.Name] = &f
	}
	return ff
}

// LoadFeatureFlags applies FEATURE_<NAME> variables on top of the defaults.
// The value is a bool or a rollout percent:
//
//	FEATURE_PROGRESSION_LEAGUES=false
//	FEATURE_PROGRESSION_HEARTS=50
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	for name, f := range ff.features {
		raw, ok := os.LookupEnv(envKey(name))
		if !ok || raw == "" {
			continue
		}
		if on, err := strconv.ParseBool(raw); err == nil {
			f.setPercent(0)
			if on {
				f.setPercent(100)
			}
		} else if p, err := strconv.Atoi(raw); err == nil && p >= 0 && p <= 100 {
			f.setPercent(p)
		}
	}
	return ff
}

// "progression.hearts" -> "FEATURE_PROGRESSION_HEARTS"
func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// Enabled evaluates name for userID. An empty userID asks about the global
// switch.
func (ff *FeatureFlags) Enabled(name, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if v, ok := ff.overrides[userID][name]; ok && userID != "" {
		return v
	}
	f, ok := ff.features[name]
	if !ok || !f.activeAt(ff.now()) {
		return false
	}
	if f.RolloutPercent >= 100 {
		return true
	}
	return userID != "" && bucket(name, userID) < f.RolloutPercent
}

// bucket is a stable 0-99 slot of a user for one flag.
func bucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetUserOverride pins a flag for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][name] = enabled
}

func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, userID)
}

// SetRolloutPercent changes a flag at runtime.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.setPercent(percent)
	return nil
}

func (ff *FeatureFlags) EnableFeature(name string) error  { return ff.SetRolloutPercent(name, 100) }
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetRolloutPercent(name, 0) }

// GetAllFeatures returns copies for the admin listing.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make(map[string]*Feature, len(ff.features))
	for name, f := range ff.features {
		c := *f
		out[name] = &c
	}
	return out
}

package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags holds process-wide toggles for optional components.
// Every flag can be overridden with FEATURE_<NAME>=true|false.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	// === Notification sinks ===
	FeatureNotifyLog    = "notify.log"    // Log every notification event
	FeatureNotifyFeed   = "notify.feed"   // Keep recent notifications for the HTTP feed
	FeatureNotifyPubSub = "notify.pubsub" // Publish notifications on Redis channels

	// === Reminders ===
	FeatureRemindersRearm = "reminders.rearm" // Periodically re-arm timers from storage
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureNotifyLog] = &Feature{
		Name:        FeatureNotifyLog,
		Description: "Write notification events to the structured log",
		Enabled:     true,
	}

	ff.features[FeatureNotifyFeed] = &Feature{
		Name:        FeatureNotifyFeed,
		Description: "Serve recent notifications per user and group over HTTP",
		Enabled:     true,
	}

	// Only takes effect with a redis client available
	ff.features[FeatureNotifyPubSub] = &Feature{
		Name:        FeatureNotifyPubSub,
		Description: "Publish notifications on Redis pub/sub channels",
		Enabled:     true,
	}

	ff.features[FeatureRemindersRearm] = &Feature{
		Name:        FeatureRemindersRearm,
		Description: "Re-arm session reminders from storage on a schedule",
		Enabled:     true,
	}
}

// loadFromEnvironment applies FEATURE_<NAME> overrides.
// Example: FEATURE_NOTIFY_PUBSUB=false
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		if val := os.Getenv(featureNameToEnvKey(name)); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.pubsub" -> "FEATURE_NOTIFY_PUBSUB"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// SetEnabled toggles a feature at runtime.
func (ff *FeatureFlags) SetEnabled(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	feature.Enabled = enabled
	return nil
}

// EnabledFeatures returns the names of enabled features, sorted.
func (ff *FeatureFlags) EnabledFeatures() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name, f := range ff.features {
		if f.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// --- Errors ---

// ErrFeatureNotFound is returned for an unknown feature name.
var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

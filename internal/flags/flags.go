// Package flags holds the feature flags read from configuration. Flags
// are read-only after initialization; unknown flags fall back to the
// caller's default.
package flags

import (
	"maps"
	"strings"

	"github.com/zjrosen/issuetree/internal/log"
)

const (
	// FlagSharedFetch makes concurrent lookups of the same key within one
	// resolution share a single remote call.
	FlagSharedFetch = "shared-fetch"

	// FlagFetchCache gates the cross-resolution fetch cache. The cache also
	// needs cache.enabled.
	FlagFetchCache = "fetch-cache"
)

// Registry holds feature flag state. Names are case-insensitive because
// viper lowercases map keys.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from a config map. The map is copied.
func New(flags map[string]bool) *Registry {
	r := &Registry{flags: make(map[string]bool, len(flags))}
	for name, on := range flags {
		r.flags[strings.ToLower(name)] = on
	}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.flags), "flags", r.All())
	return r
}

// Enabled reports whether the named flag is on. Unknown flags and a nil
// registry report false.
func (r *Registry) Enabled(name string) bool {
	return r.EnabledOr(name, false)
}

// EnabledOr is Enabled with an explicit default for unknown flags.
func (r *Registry) EnabledOr(name string, def bool) bool {
	if r == nil {
		return def
	}
	value, exists := r.flags[strings.ToLower(name)]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name, "result", def)
		return def
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	result := make(map[string]bool)
	if r != nil {
		maps.Copy(result, r.flags)
	}
	return result
}

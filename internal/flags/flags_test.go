package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		expected bool
	}{
		{"known flag on", New(map[string]bool{FlagSharedFetch: true}), FlagSharedFetch, true},
		{"known flag off", New(map[string]bool{FlagFetchCache: false}), FlagFetchCache, false},
		{"unknown flag", New(map[string]bool{FlagSharedFetch: true}), "unknown-flag", false},
		{"nil registry", nil, FlagSharedFetch, false},
		{"nil map", New(nil), FlagSharedFetch, false},
		{"case-insensitive", New(map[string]bool{"Shared-Fetch": true}), FlagSharedFetch, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_EnabledOr(t *testing.T) {
	r := New(map[string]bool{FlagFetchCache: false})

	require.True(t, r.EnabledOr(FlagSharedFetch, true), "unknown uses default")
	require.False(t, r.EnabledOr(FlagFetchCache, true), "configured value wins")

	var nilReg *Registry
	require.True(t, nilReg.EnabledOr(FlagSharedFetch, true))
}

func TestRegistry_All_ReturnsCopy(t *testing.T) {
	original := map[string]bool{FlagSharedFetch: true}
	r := New(original)

	original[FlagFetchCache] = true
	require.False(t, r.Enabled(FlagFetchCache), "registry should not alias the config map")

	all := r.All()
	all[FlagSharedFetch] = false
	require.True(t, r.Enabled(FlagSharedFetch), "registry should not be affected by copy mutation")

	require.Equal(t, map[string]bool{FlagSharedFetch: true}, r.All())
	require.Equal(t, map[string]bool{}, (*Registry)(nil).All())
}

package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.ShouldClearRootRenderPass)
	assert.True(t, s.AllowAntialiasing)
	assert.False(t, s.PartialSwapEnabled)
	assert.Equal(t, 8, s.TextureBatchCap)
	assert.Equal(t, 16, s.MaxPendingSyncQueries)
	require.NoError(t, s.Validate())
}

func TestSettingsOptions(t *testing.T) {
	s := DefaultSettings().Apply(
		WithPartialSwap(true),
		WithClearRootRenderPass(false),
		WithAntialiasing(true, true),
		WithShaderBlending(),
		WithDelayedOverlayRelease(),
		WithTextureBatchCap(4),
		WithMaxPendingSyncQueries(2),
		WithStrictChecks(),
		WithReadbackWorkaround(),
	)
	assert.True(t, s.PartialSwapEnabled)
	assert.False(t, s.ShouldClearRootRenderPass)
	assert.True(t, s.ForceAntialiasing)
	assert.True(t, s.ForceBlendingWithShaders)
	assert.True(t, s.DelayReleasingOverlayResources)
	assert.Equal(t, 4, s.TextureBatchCap)
	assert.Equal(t, 2, s.MaxPendingSyncQueries)
	assert.True(t, s.StrictChecks)
	assert.True(t, s.ReadbackWorkaround)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"zero batch cap", WithTextureBatchCap(0)},
		{"batch cap above draw limit", WithTextureBatchCap(9)},
		{"no sync queries", WithMaxPendingSyncQueries(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, DefaultSettings().Apply(tt.opt).Validate())
		})
	}
}

func TestLoadSettings(t *testing.T) {
	s, err := LoadSettings(strings.NewReader(`
partial_swap_enabled = true
should_clear_root_render_pass = false
texture_batch_cap = 3
`))
	require.NoError(t, err)
	assert.True(t, s.PartialSwapEnabled)
	assert.False(t, s.ShouldClearRootRenderPass)
	assert.Equal(t, 3, s.TextureBatchCap)
	// Unset keys keep their defaults.
	assert.True(t, s.AllowAntialiasing)
	assert.Equal(t, 16, s.MaxPendingSyncQueries)
}

func TestLoadSettingsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "no_such_setting = true\n"},
		{"wrong type", "partial_swap_enabled = \"yes\"\n"},
		{"invalid value", "texture_batch_cap = 64\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSettings(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderer.toml")
	require.NoError(t, os.WriteFile(path, []byte("force_antialiasing = true\n"), 0o600))

	s, err := LoadSettingsFile(path)
	require.NoError(t, err)
	assert.True(t, s.ForceAntialiasing)

	_, err = LoadSettingsFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

package renderer

import (
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/compositor/gpu"
)

// Default limits.
const (
	// DefaultTextureBatchCap is the number of texture quads merged into one
	// draw call.
	DefaultTextureBatchCap = gpu.MaxQuadsPerDraw

	// DefaultMaxPendingSyncQueries bounds the frames in flight before
	// BeginDrawingFrame blocks on the oldest one.
	DefaultMaxPendingSyncQueries = 16

	// DefaultHighpThreshold is the texture coordinate range above which
	// programs need high precision.
	DefaultHighpThreshold = 2048
)

// Settings configures a Renderer.
type Settings struct {
	// PartialSwapEnabled restricts drawing and swapping to the damaged
	// area when the surface supports partial swap.
	PartialSwapEnabled bool `toml:"partial_swap_enabled"`

	// ShouldClearRootRenderPass clears the backbuffer before drawing the
	// root pass. Disable it when the root pass is known to be opaque.
	ShouldClearRootRenderPass bool `toml:"should_clear_root_render_pass"`

	AllowAntialiasing bool `toml:"allow_antialiasing"`
	ForceAntialiasing bool `toml:"force_antialiasing"`

	// ForceBlendingWithShaders blends render pass quads against a backdrop
	// copy even when a fixed-function blend would do.
	ForceBlendingWithShaders bool `toml:"force_blending_with_shaders"`

	// DelayReleasingOverlayResources holds overlay resource locks for one
	// extra swap.
	DelayReleasingOverlayResources bool `toml:"delay_releasing_overlay_resources"`

	TextureBatchCap       int `toml:"texture_batch_cap"`
	MaxPendingSyncQueries int `toml:"max_pending_sync_queries"`
	HighpThreshold        int `toml:"highp_threshold"`

	// StrictChecks panics on contract violations instead of logging them,
	// and clears opaque passes to blue so undrawn areas stand out.
	StrictChecks bool `toml:"strict_checks"`

	// ReadbackWorkaround copies the framebuffer into a temporary texture
	// before every asynchronous readback.
	ReadbackWorkaround bool `toml:"readback_workaround"`
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		ShouldClearRootRenderPass: true,
		AllowAntialiasing:         true,
		TextureBatchCap:           DefaultTextureBatchCap,
		MaxPendingSyncQueries:     DefaultMaxPendingSyncQueries,
		HighpThreshold:            DefaultHighpThreshold,
	}
}

// Option modifies Settings.
type Option func(*Settings)

// WithPartialSwap enables or disables partial swap.
func WithPartialSwap(enabled bool) Option {
	return func(s *Settings) {
		s.PartialSwapEnabled = enabled
	}
}

// WithClearRootRenderPass sets whether the root pass is cleared.
func WithClearRootRenderPass(clear bool) Option {
	return func(s *Settings) {
		s.ShouldClearRootRenderPass = clear
	}
}

// WithAntialiasing sets the antialiasing policy. force applies
// antialiasing even to axis-aligned quads.
func WithAntialiasing(allow, force bool) Option {
	return func(s *Settings) {
		s.AllowAntialiasing = allow
		s.ForceAntialiasing = force
	}
}

// WithShaderBlending forces render pass quads through the backdrop path.
func WithShaderBlending() Option {
	return func(s *Settings) {
		s.ForceBlendingWithShaders = true
	}
}

// WithDelayedOverlayRelease holds overlay resources one extra swap.
func WithDelayedOverlayRelease() Option {
	return func(s *Settings) {
		s.DelayReleasingOverlayResources = true
	}
}

// WithTextureBatchCap sets the number of texture quads per batched draw.
func WithTextureBatchCap(n int) Option {
	return func(s *Settings) {
		s.TextureBatchCap = n
	}
}

// WithMaxPendingSyncQueries sets the frame pacing limit.
func WithMaxPendingSyncQueries(n int) Option {
	return func(s *Settings) {
		s.MaxPendingSyncQueries = n
	}
}

// WithStrictChecks makes contract violations panic.
func WithStrictChecks() Option {
	return func(s *Settings) {
		s.StrictChecks = true
	}
}

// WithReadbackWorkaround enables the copy before asynchronous readbacks.
func WithReadbackWorkaround() Option {
	return func(s *Settings) {
		s.ReadbackWorkaround = true
	}
}

// Apply returns s with opts applied.
func (s Settings) Apply(opts ...Option) Settings {
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Validate reports settings that cannot be used.
func (s Settings) Validate() error {
	if s.TextureBatchCap < 1 || s.TextureBatchCap > gpu.MaxQuadsPerDraw {
		return fmt.Errorf("renderer: texture_batch_cap %d out of range [1, %d]", s.TextureBatchCap, gpu.MaxQuadsPerDraw)
	}
	if s.MaxPendingSyncQueries < 1 {
		return fmt.Errorf("renderer: max_pending_sync_queries %d must be positive", s.MaxPendingSyncQueries)
	}
	if s.HighpThreshold < 0 {
		return fmt.Errorf("renderer: highp_threshold %d is negative", s.HighpThreshold)
	}
	return nil
}

// LoadSettings decodes TOML from r over DefaultSettings. Unknown keys are
// rejected.
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("renderer: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettingsFile reads settings from a TOML file.
func LoadSettingsFile(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("renderer: open settings: %w", err)
	}
	defer f.Close()
	return LoadSettings(f)
}

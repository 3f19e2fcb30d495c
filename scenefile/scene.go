// Package scenefile reads compositor frames described in YAML.
//
// A scene names the images it uses and lists render passes in dependency
// order, the root pass last. Quads are listed front-most first, the order
// of [quads.RenderPass.QuadList]:
//
//	size: [256, 256]
//	images:
//	  photo: photo.png
//	passes:
//	  - id: "2.0"
//	    output_rect: [0, 0, 128, 128]
//	    quads:
//	      - type: texture
//	        rect: [0, 0, 128, 128]
//	        image: photo
//	  - id: "1.0"
//	    output_rect: [0, 0, 256, 256]
//	    quads:
//	      - type: render_pass
//	        rect: [0, 0, 128, 128]
//	        pass: "2.0"
//	        filters: [{type: blur, amount: 2}]
//	        state:
//	          transform: [{translate: [64, 64]}, {rotate: 15}]
//	      - type: solid_color
//	        rect: [0, 0, 256, 256]
//	        color: white
//
// Colors are straight alpha, as quads carry them.
package scenefile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/compositor/geom"
)

// ErrNoPasses is returned for a scene without render passes.
var ErrNoPasses = errors.New("scenefile: scene has no passes")

// Scene is a parsed scene file.
type Scene struct {
	// Size is the viewport size. It defaults to the root pass output size.
	Size *Size `yaml:"size"`
	// Clip limits drawing within the viewport.
	Clip *Rect `yaml:"clip"`
	// Scale is the device scale factor, 1 when unset.
	Scale float64 `yaml:"scale"`

	// Images maps names to files, relative to the scene file.
	Images map[string]string `yaml:"images"`

	Passes []Pass `yaml:"passes"`

	dir string
}

// Pass describes one render pass.
type Pass struct {
	ID         PassID    `yaml:"id"`
	OutputRect Rect      `yaml:"output_rect"`
	DamageRect *Rect     `yaml:"damage_rect"`
	Transform  Transform `yaml:"transform"`
	// Transparent defaults to true.
	Transparent *bool `yaml:"transparent"`

	// Capture attaches a copy request whose result is reported by
	// Frame.Captures.
	Capture     bool  `yaml:"capture"`
	CaptureArea *Rect `yaml:"capture_area"`

	Quads []Quad `yaml:"quads"`
}

// State is the shared state of a quad. Quads without one share a default
// state per pass.
type State struct {
	Transform      Transform `yaml:"transform"`
	Clip           *Rect     `yaml:"clip"`
	Opacity        *float32  `yaml:"opacity"`
	BlendMode      string    `yaml:"blend_mode"`
	SortingContext int       `yaml:"sorting_context"`
	LayerBounds    *Size     `yaml:"layer_bounds"`
}

// Quad describes one draw quad. Type selects which of the remaining
// fields apply.
type Quad struct {
	Type          string `yaml:"type"`
	Rect          Rect   `yaml:"rect"`
	VisibleRect   *Rect  `yaml:"visible_rect"`
	OpaqueRect    *Rect  `yaml:"opaque_rect"`
	NeedsBlending bool   `yaml:"needs_blending"`
	State         *State `yaml:"state"`

	// solid_color, debug_border
	Color Color `yaml:"color"`
	Width int   `yaml:"width"`
	NoAA  bool  `yaml:"no_aa"`

	// texture, tile, stream_video, io_surface
	Image         string    `yaml:"image"`
	Premultiplied *bool     `yaml:"premultiplied"`
	UV            *RectF    `yaml:"uv"`
	TexRect       *RectF    `yaml:"tex_rect"`
	Background    Color     `yaml:"background"`
	VertexOpacity []float32 `yaml:"vertex_opacity"`
	Flipped       bool      `yaml:"flipped"`
	Nearest       bool      `yaml:"nearest"`
	Swizzle       bool      `yaml:"swizzle"`
	Overlay       bool      `yaml:"overlay"`
	Matrix        Transform `yaml:"matrix"`

	// render_pass
	Pass              PassID   `yaml:"pass"`
	Mask              string   `yaml:"mask"`
	MaskUV            *RectF   `yaml:"mask_uv"`
	Filters           []Filter `yaml:"filters"`
	BackgroundFilters []Filter `yaml:"background_filters"`
	FiltersScale      float64  `yaml:"filters_scale"`

	// yuv_video
	Y          string `yaml:"y"`
	U          string `yaml:"u"`
	V          string `yaml:"v"`
	A          string `yaml:"a"`
	ColorSpace string `yaml:"color_space"`

	// picture, surface
	ContentsRect  *Rect   `yaml:"contents_rect"`
	ContentsScale float64 `yaml:"contents_scale"`
	SurfaceID     uint64  `yaml:"surface_id"`
}

// Filter is one filter operation, named like its CSS function.
type Filter struct {
	Type   string    `yaml:"type"`
	Amount float32   `yaml:"amount"`
	Offset []int     `yaml:"offset"`
	Color  Color     `yaml:"color"`
	Matrix []float32 `yaml:"matrix"`
	Inset  int       `yaml:"inset"`
}

// Load reads and parses the scene file at path. Image paths resolve
// relative to the file.
func Load(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenefile: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

// Parse parses a scene. Unknown keys are errors. Relative image paths
// resolve against the working directory.
func Parse(data []byte) (*Scene, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scene
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenefile: %w", err)
	}
	if len(s.Passes) == 0 {
		return nil, ErrNoPasses
	}
	if s.Scale == 0 {
		s.Scale = 1
	}
	return &s, nil
}

// ViewportSize returns Size, or the output size of the last pass when
// Size is unset.
func (s *Scene) ViewportSize() geom.Size {
	if s.Size != nil {
		return geom.Size(*s.Size)
	}
	return s.Passes[len(s.Passes)-1].OutputRect.Geom().Size()
}

// SetDir sets the directory relative image paths resolve against.
func (s *Scene) SetDir(dir string) { s.dir = dir }

func (s *Scene) imagePath(name string) (string, error) {
	file, ok := s.Images[name]
	if !ok {
		return "", fmt.Errorf("unknown image %q", name)
	}
	if filepath.IsAbs(file) || s.dir == "" {
		return file, nil
	}
	return filepath.Join(s.dir, file), nil
}

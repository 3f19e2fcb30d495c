package scenefile

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/colornames"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/quads"
)

// Rect is an integer rectangle written as [x, y, width, height].
type Rect geom.Rect

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Rect) UnmarshalYAML(node *yaml.Node) error {
	var v []int
	if err := node.Decode(&v); err != nil {
		return err
	}
	if len(v) != 4 {
		return nodeError(node, "rect needs [x, y, width, height], got %d values", len(v))
	}
	if v[2] < 0 || v[3] < 0 {
		return nodeError(node, "rect has negative size")
	}
	*r = Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	return nil
}

// Geom returns r as a geom.Rect.
func (r Rect) Geom() geom.Rect { return geom.Rect(r) }

// RectF is a float rectangle written as [x, y, width, height].
type RectF geom.RectF

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *RectF) UnmarshalYAML(node *yaml.Node) error {
	var v []float64
	if err := node.Decode(&v); err != nil {
		return err
	}
	if len(v) != 4 {
		return nodeError(node, "rect needs [x, y, width, height], got %d values", len(v))
	}
	*r = RectF{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	return nil
}

// Geom returns r as a geom.RectF.
func (r RectF) Geom() geom.RectF { return geom.RectF(r) }

// Size is written as [width, height].
type Size geom.Size

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var v []int
	if err := node.Decode(&v); err != nil {
		return err
	}
	if len(v) != 2 || v[0] <= 0 || v[1] <= 0 {
		return nodeError(node, "size needs a positive [width, height]")
	}
	*s = Size{Width: v[0], Height: v[1]}
	return nil
}

// PassID names a render pass as "layer.index", "layer" or [layer, index].
type PassID quads.RenderPassID

// UnmarshalYAML implements yaml.Unmarshaler.
func (id *PassID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var v []int
		if err := node.Decode(&v); err != nil {
			return err
		}
		if len(v) != 2 {
			return nodeError(node, "pass id needs [layer, index]")
		}
		*id = PassID{LayerID: v[0], Index: v[1]}
		return nil
	}
	layer, index, _ := strings.Cut(node.Value, ".")
	l, err := strconv.Atoi(layer)
	if err != nil {
		return nodeError(node, "pass id %q: %v", node.Value, err)
	}
	i := 0
	if index != "" {
		if i, err = strconv.Atoi(index); err != nil {
			return nodeError(node, "pass id %q: %v", node.Value, err)
		}
	}
	*id = PassID{LayerID: l, Index: i}
	return nil
}

// ID returns the render pass id.
func (id PassID) ID() quads.RenderPassID { return quads.RenderPassID(id) }

// Color is a color written as "#rgb", "#rrggbb",
// "#rrggbbaa", an SVG color name, "transparent" or [r, g, b, a] in 0..1.
type Color struct {
	c   gputypes.Color
	set bool
}

// RGBA returns a straight-alpha Color.
func RGBA(r, g, b, a float64) Color {
	return Color{c: gputypes.Color{R: r, G: g, B: b, A: a}, set: true}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var v []float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		switch len(v) {
		case 3:
			*c = RGBA(v[0], v[1], v[2], 1)
		case 4:
			*c = RGBA(v[0], v[1], v[2], v[3])
		default:
			return nodeError(node, "color needs [r, g, b] or [r, g, b, a]")
		}
		return nil
	}
	parsed, err := ParseColor(node.Value)
	if err != nil {
		return nodeError(node, "%v", err)
	}
	*c = parsed
	return nil
}

// ParseColor parses the scalar color forms.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "transparent" {
		return RGBA(0, 0, 0, 0), nil
	}
	if hex, ok := strings.CutPrefix(s, "#"); ok {
		if len(hex) == 3 {
			hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
		}
		if len(hex) == 6 {
			hex += "ff"
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil || len(hex) != 8 {
			return Color{}, fmt.Errorf("bad hex color %q", s)
		}
		return RGBA(
			float64(v>>24&0xff)/255,
			float64(v>>16&0xff)/255,
			float64(v>>8&0xff)/255,
			float64(v&0xff)/255,
		), nil
	}
	named, ok := colornames.Map[s]
	if !ok {
		return Color{}, fmt.Errorf("unknown color %q", s)
	}
	return RGBA(float64(named.R)/255, float64(named.G)/255, float64(named.B)/255, float64(named.A)/255), nil
}

// IsSet reports whether the color was given.
func (c Color) IsSet() bool { return c.set }

// Value returns the color. The zero Color is transparent black.
func (c Color) Value() gputypes.Color { return c.c }

// Transform is a list of operations applied in order, like a CSS transform
// list. Each item is a single-key map:
//
//	translate: [x, y] or [x, y, z]
//	scale: s, [x, y] or [x, y, z]
//	rotate, rotate_x, rotate_y: degrees (rotate turns about z)
//	perspective: depth
//	matrix: 16 row-major values
type Transform struct {
	t   geom.Transform
	set bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Transform) UnmarshalYAML(node *yaml.Node) error {
	var ops []map[string]yaml.Node
	if err := node.Decode(&ops); err != nil {
		return err
	}
	result := geom.Identity()
	for _, op := range ops {
		if len(op) != 1 {
			return nodeError(node, "transform operation needs exactly one key")
		}
		for name, arg := range op {
			m, err := transformOp(name, &arg)
			if err != nil {
				return err
			}
			result = result.Mul(m)
		}
	}
	*t = Transform{t: result, set: true}
	return nil
}

func transformOp(name string, arg *yaml.Node) (geom.Transform, error) {
	switch name {
	case "rotate", "rotate_z", "rotate_x", "rotate_y", "perspective":
		var v float64
		if err := arg.Decode(&v); err != nil {
			return geom.Transform{}, err
		}
		rad := v * math.Pi / 180
		switch name {
		case "rotate_x":
			return geom.RotateX(rad), nil
		case "rotate_y":
			return geom.RotateY(rad), nil
		case "perspective":
			return geom.Perspective(v), nil
		default:
			return geom.RotateZ(rad), nil
		}
	case "scale":
		if arg.Kind == yaml.ScalarNode {
			var s float64
			if err := arg.Decode(&s); err != nil {
				return geom.Transform{}, err
			}
			return geom.Scale(s, s, 1), nil
		}
		v, err := vector(arg, 1)
		if err != nil {
			return geom.Transform{}, err
		}
		return geom.Scale(v[0], v[1], v[2]), nil
	case "translate":
		v, err := vector(arg, 0)
		if err != nil {
			return geom.Transform{}, err
		}
		return geom.Translate(v[0], v[1], v[2]), nil
	case "matrix":
		var v []float64
		if err := arg.Decode(&v); err != nil {
			return geom.Transform{}, err
		}
		if len(v) != 16 {
			return geom.Transform{}, nodeError(arg, "matrix needs 16 values, got %d", len(v))
		}
		var m geom.Transform
		for i := range 16 {
			m.M[i/4][i%4] = v[i]
		}
		return m, nil
	default:
		return geom.Transform{}, nodeError(arg, "unknown transform operation %q", name)
	}
}

// vector decodes [x, y] or [x, y, z], filling z with def.
func vector(node *yaml.Node, def float64) ([3]float64, error) {
	var v []float64
	if err := node.Decode(&v); err != nil {
		return [3]float64{}, err
	}
	switch len(v) {
	case 2:
		return [3]float64{v[0], v[1], def}, nil
	case 3:
		return [3]float64{v[0], v[1], v[2]}, nil
	}
	return [3]float64{}, nodeError(node, "vector needs 2 or 3 values, got %d", len(v))
}

// Matrix returns the composed transform, the identity when none was given.
func (t Transform) Matrix() geom.Transform {
	if !t.set {
		return geom.Identity()
	}
	return t.t
}

func nodeError(node *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("scenefile: line %d: %s", node.Line, fmt.Sprintf(format, args...))
}

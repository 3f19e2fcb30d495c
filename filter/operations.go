package filter

import (
	"fmt"
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/gputypes"
)

// Type identifies a filter operation.
type Type int

// Filter operation types, named after their CSS functions.
const (
	Grayscale Type = iota
	Sepia
	Saturate
	HueRotate
	Invert
	Brightness
	Contrast
	Opacity
	Blur
	DropShadow
	Matrix
	Zoom
)

var typeNames = [...]string{
	Grayscale:  "grayscale",
	Sepia:      "sepia",
	Saturate:   "saturate",
	HueRotate:  "hue-rotate",
	Invert:     "invert",
	Brightness: "brightness",
	Contrast:   "contrast",
	Opacity:    "opacity",
	Blur:       "blur",
	DropShadow: "drop-shadow",
	Matrix:     "color-matrix",
	Zoom:       "zoom",
}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType returns the Type with the given CSS-style name.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return 0, false
}

// Operation is one step of a filter chain.
type Operation struct {
	Type Type

	// Amount is the operation parameter: a factor for color operations,
	// degrees for HueRotate, the standard deviation in layer pixels for
	// Blur and DropShadow, the magnification for Zoom.
	Amount float32

	// Offset and Color describe a DropShadow.
	Offset geom.Point
	Color  gputypes.Color

	// ColorMatrix is the matrix of a Matrix operation.
	ColorMatrix ColorMatrix

	// Inset is the zoom lens inset in pixels.
	Inset int
}

// NewBlur returns a gaussian blur with the given standard deviation.
func NewBlur(sigma float32) Operation { return Operation{Type: Blur, Amount: sigma} }

// NewDropShadow returns a drop shadow.
func NewDropShadow(offset geom.Point, sigma float32, color gputypes.Color) Operation {
	return Operation{Type: DropShadow, Amount: sigma, Offset: offset, Color: color}
}

// NewColorOperation returns a color operation of type t.
func NewColorOperation(t Type, amount float32) Operation {
	return Operation{Type: t, Amount: amount}
}

// NewMatrix returns an operation applying m.
func NewMatrix(m ColorMatrix) Operation { return Operation{Type: Matrix, ColorMatrix: m} }

// ToColorMatrix returns the color matrix for a color operation. ok is
// false for operations that move pixels.
func (op Operation) ToColorMatrix() (m ColorMatrix, ok bool) {
	switch op.Type {
	case Grayscale:
		return GrayscaleMatrix(op.Amount), true
	case Sepia:
		return SepiaMatrix(op.Amount), true
	case Saturate:
		return SaturateMatrix(op.Amount), true
	case HueRotate:
		return HueRotateMatrix(op.Amount), true
	case Invert:
		return InvertMatrix(op.Amount), true
	case Brightness:
		return BrightnessMatrix(op.Amount), true
	case Contrast:
		return ContrastMatrix(op.Amount), true
	case Opacity:
		return OpacityMatrix(op.Amount), true
	case Matrix:
		return op.ColorMatrix, true
	default:
		return ColorMatrix{}, false
	}
}

// Operations is an ordered filter chain.
type Operations []Operation

// IsEmpty reports whether the chain has no operations.
func (ops Operations) IsEmpty() bool { return len(ops) == 0 }

// HasFilterThatMovesPixels reports whether an output pixel can depend on
// other input pixels.
func (ops Operations) HasFilterThatMovesPixels() bool {
	for _, op := range ops {
		switch op.Type {
		case Blur, DropShadow, Zoom:
			return true
		}
	}
	return false
}

// HasFilterThatAffectsOpacity reports whether the chain can change alpha.
func (ops Operations) HasFilterThatAffectsOpacity() bool {
	for _, op := range ops {
		switch op.Type {
		case Opacity, Blur, DropShadow, Zoom:
			return true
		case Matrix:
			if op.ColorMatrix.AffectsAlpha() {
				return true
			}
		}
	}
	return false
}

// ToColorMatrix folds the chain into one color matrix. ok is false when
// the chain is empty or contains an operation that moves pixels.
func (ops Operations) ToColorMatrix() (ColorMatrix, bool) {
	if len(ops) == 0 {
		return ColorMatrix{}, false
	}
	m := IdentityMatrix()
	for _, op := range ops {
		om, ok := op.ToColorMatrix()
		if !ok {
			return ColorMatrix{}, false
		}
		m = m.Then(om)
	}
	return m, true
}

// Outsets returns how far the chain can spread content beyond its input
// bounds on each side, in layer pixels scaled by scale.
func (ops Operations) Outsets(scale float64) (top, right, bottom, left int) {
	for _, op := range ops {
		switch op.Type {
		case Blur:
			s := blurExtent(op.Amount, scale)
			top, right, bottom, left = top+s, right+s, bottom+s, left+s
		case DropShadow:
			s := blurExtent(op.Amount, scale)
			dx := int(math.Round(float64(op.Offset.X) * scale))
			dy := int(math.Round(float64(op.Offset.Y) * scale))
			top += max(0, s-dy)
			bottom += max(0, s+dy)
			left += max(0, s-dx)
			right += max(0, s+dx)
		}
	}
	return top, right, bottom, left
}

// ExpandRect grows r by the chain's outsets.
func (ops Operations) ExpandRect(r geom.Rect, scale float64) geom.Rect {
	top, right, bottom, left := ops.Outsets(scale)
	return geom.XYWH(r.X-left, r.Y-top, r.Width+left+right, r.Height+top+bottom)
}

// blurExtent is three standard deviations, rounded up.
func blurExtent(sigma float32, scale float64) int {
	return int(math.Ceil(3 * float64(sigma) * scale))
}

// Package quads defines the drawing instructions of a compositor frame.
//
// A frame is a [RenderPassList]: render passes in dependency order with the
// root pass last. Each [RenderPass] holds positioned, typed [DrawQuad]s that
// share transform, clip, opacity and blend state through [SharedQuadState].
//
// Quad lists are stored front-to-back, the order the layer tree emits them.
// The renderer walks them back-to-front with [RenderPass.BackToFront].
//
// The quad material is a closed set. Every quad carries exactly one
// [Payload] from this package, and consumers dispatch on it with an
// exhaustive type switch:
//
//	switch p := q.Payload.(type) {
//	case *quads.SolidColorQuad:
//	case *quads.TextureQuad:
//	...
//	}
package quads

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/filter"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/resource"
)

// Material identifies the kind of a quad.
type Material uint8

// Quad materials.
const (
	MaterialInvalid Material = iota
	MaterialDebugBorder
	MaterialPictureContent
	MaterialRenderPass
	MaterialSolidColor
	MaterialStreamVideoContent
	MaterialSurfaceContent
	MaterialTextureContent
	MaterialTiledContent
	MaterialYUVVideoContent
	MaterialIOSurfaceContent
)

var materialNames = [...]string{
	MaterialInvalid:            "Invalid",
	MaterialDebugBorder:        "DebugBorder",
	MaterialPictureContent:     "PictureContent",
	MaterialRenderPass:         "RenderPass",
	MaterialSolidColor:         "SolidColor",
	MaterialStreamVideoContent: "StreamVideoContent",
	MaterialSurfaceContent:     "SurfaceContent",
	MaterialTextureContent:     "TextureContent",
	MaterialTiledContent:       "TiledContent",
	MaterialYUVVideoContent:    "YUVVideoContent",
	MaterialIOSurfaceContent:   "IOSurfaceContent",
}

// String returns the material name.
func (m Material) String() string {
	if int(m) < len(materialNames) {
		return materialNames[m]
	}
	return fmt.Sprintf("Material(%d)", m)
}

// Errors reported by Validate.
var (
	ErrVisibleRectOutsideRect = errors.New("quads: visible rect outside quad rect")
	ErrNoSharedState          = errors.New("quads: quad without shared state")
	ErrNoPayload              = errors.New("quads: quad without payload")
	ErrDuplicatePass          = errors.New("quads: duplicate render pass id")
	ErrUnknownPass            = errors.New("quads: render pass quad references a later or unknown pass")
	ErrEmptyPassList          = errors.New("quads: empty render pass list")
)

// Payload is the material-specific part of a quad. The set of payloads is
// closed: only types of this package implement it.
type Payload interface {
	Material() Material
	payload()
}

// SolidColorQuad fills the quad with a straight-alpha color.
type SolidColorQuad struct {
	Color                gputypes.Color
	ForceAntiAliasingOff bool
}

// TileQuad draws one tile of tiled layer content.
type TileQuad struct {
	ResourceID   resource.ID
	TexCoordRect geom.RectF // in texels
	TextureSize  geom.Size
	Swizzle      bool // contents are stored with red and blue exchanged
	Nearest      bool
}

// RenderPassQuad draws the texture of another render pass.
type RenderPassQuad struct {
	PassID RenderPassID

	// MaskResourceID is an optional alpha mask, sampled at MaskUVRect.
	MaskResourceID resource.ID
	MaskUVRect     geom.RectF

	Filters           filter.Operations
	BackgroundFilters filter.Operations
	FiltersScale      float64
}

// TextureQuad draws an arbitrary texture, such as canvas or plugin content.
type TextureQuad struct {
	ResourceID         resource.ID
	PremultipliedAlpha bool

	UVTopLeft     geom.PointF
	UVBottomRight geom.PointF

	// BackgroundColor is composited under the texture before drawing.
	BackgroundColor gputypes.Color

	// VertexOpacity is the opacity at the top-left, top-right,
	// bottom-right and bottom-left corners.
	VertexOpacity [4]float32

	Flipped      bool
	Nearest      bool
	AllowOverlay bool
}

// ColorSpace selects the YUV to RGB conversion.
type ColorSpace uint8

// YUV color spaces.
const (
	ColorSpaceBT601 ColorSpace = iota
	ColorSpaceBT709
	ColorSpaceJPEG
)

// String returns the color space name.
func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceBT601:
		return "BT601"
	case ColorSpaceBT709:
		return "BT709"
	case ColorSpaceJPEG:
		return "JPEG"
	}
	return fmt.Sprintf("ColorSpace(%d)", c)
}

// YUVVideoQuad draws planar YUV video. APlane is optional.
type YUVVideoQuad struct {
	YPlane, UPlane, VPlane, APlane resource.ID
	TexCoordRect                   geom.RectF // normalized
	ColorSpace                     ColorSpace
}

// StreamVideoQuad draws an external video stream texture through a texture
// coordinate transform.
type StreamVideoQuad struct {
	ResourceID resource.ID
	Matrix     geom.Transform
}

// Orientation of IOSurface contents.
type Orientation uint8

// IOSurface orientations.
const (
	OrientationFlipped Orientation = iota
	OrientationUnflipped
)

// IOSurfaceQuad draws a shared platform surface.
type IOSurfaceQuad struct {
	ResourceID  resource.ID
	Size        geom.Size
	Orientation Orientation
}

// DebugBorderQuad outlines the quad rect.
type DebugBorderQuad struct {
	Color gputypes.Color
	Width int
}

// PictureQuad is recorded content rasterized upstream. It never reaches the
// renderer.
type PictureQuad struct {
	ContentsRect  geom.Rect
	ContentsScale float64
}

// SurfaceQuad references another compositor frame. Surface aggregation
// replaces it upstream.
type SurfaceQuad struct {
	SurfaceID uint64
}

func (*SolidColorQuad) Material() Material  { return MaterialSolidColor }
func (*TileQuad) Material() Material        { return MaterialTiledContent }
func (*RenderPassQuad) Material() Material  { return MaterialRenderPass }
func (*TextureQuad) Material() Material     { return MaterialTextureContent }
func (*YUVVideoQuad) Material() Material    { return MaterialYUVVideoContent }
func (*StreamVideoQuad) Material() Material { return MaterialStreamVideoContent }
func (*IOSurfaceQuad) Material() Material   { return MaterialIOSurfaceContent }
func (*DebugBorderQuad) Material() Material { return MaterialDebugBorder }
func (*PictureQuad) Material() Material     { return MaterialPictureContent }
func (*SurfaceQuad) Material() Material     { return MaterialSurfaceContent }

func (*SolidColorQuad) payload()  {}
func (*TileQuad) payload()        {}
func (*RenderPassQuad) payload()  {}
func (*TextureQuad) payload()     {}
func (*YUVVideoQuad) payload()    {}
func (*StreamVideoQuad) payload() {}
func (*IOSurfaceQuad) payload()   {}
func (*DebugBorderQuad) payload() {}
func (*PictureQuad) payload()     {}
func (*SurfaceQuad) payload()     {}

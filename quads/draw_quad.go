package quads

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/resource"
)

// SharedQuadState is the transform, clip and compositing state shared by
// the quads of one layer. It is owned by its RenderPass.
type SharedQuadState struct {
	// QuadToTargetTransform maps quad space into the render pass target.
	QuadToTargetTransform geom.Transform

	QuadLayerBounds      geom.Size
	VisibleQuadLayerRect geom.Rect

	// ClipRect is in target space and applies only when IsClipped.
	ClipRect  geom.Rect
	IsClipped bool

	Opacity   float32
	BlendMode gpu.BlendMode

	// SortingContextID groups quads that are depth sorted together. Zero
	// means the quads are drawn in list order.
	SortingContextID int
}

// DrawQuad is one positioned drawing instruction.
type DrawQuad struct {
	// Rect is the quad's extent in quad space.
	Rect geom.Rect
	// OpaqueRect is the part of Rect known to be fully opaque.
	OpaqueRect geom.Rect
	// VisibleRect is the part of Rect not occluded. It lies within Rect.
	VisibleRect geom.Rect

	NeedsBlending bool

	// SharedState is borrowed from the render pass for the current frame.
	SharedState *SharedQuadState

	Payload Payload
}

// NewDrawQuad returns a fully visible quad with no opaque area.
func NewDrawQuad(sqs *SharedQuadState, rect geom.Rect, p Payload) *DrawQuad {
	return &DrawQuad{Rect: rect, VisibleRect: rect, SharedState: sqs, Payload: p}
}

// NewSolidColorQuad returns a quad filled with color. The quad is opaque
// when the color is.
func NewSolidColorQuad(sqs *SharedQuadState, rect geom.Rect, color gputypes.Color) *DrawQuad {
	q := NewDrawQuad(sqs, rect, &SolidColorQuad{Color: color})
	if color.A >= 1 {
		q.OpaqueRect = rect
	}
	return q
}

// NewTextureQuad returns a quad drawing the whole texture of id.
func NewTextureQuad(sqs *SharedQuadState, rect geom.Rect, id resource.ID, premultiplied bool) *DrawQuad {
	return NewDrawQuad(sqs, rect, &TextureQuad{
		ResourceID:         id,
		PremultipliedAlpha: premultiplied,
		UVBottomRight:      geom.PointF{X: 1, Y: 1},
		VertexOpacity:      [4]float32{1, 1, 1, 1},
	})
}

// NewTileQuad returns a quad drawing texRect of a tile texture.
func NewTileQuad(sqs *SharedQuadState, rect geom.Rect, id resource.ID, texRect geom.RectF, textureSize geom.Size) *DrawQuad {
	return NewDrawQuad(sqs, rect, &TileQuad{ResourceID: id, TexCoordRect: texRect, TextureSize: textureSize})
}

// NewRenderPassQuad returns a quad drawing the output of pass.
func NewRenderPassQuad(sqs *SharedQuadState, rect geom.Rect, pass RenderPassID) *DrawQuad {
	return NewDrawQuad(sqs, rect, &RenderPassQuad{PassID: pass, FiltersScale: 1})
}

// NewDebugBorderQuad returns a quad outlining rect.
func NewDebugBorderQuad(sqs *SharedQuadState, rect geom.Rect, color gputypes.Color, width int) *DrawQuad {
	q := NewDrawQuad(sqs, rect, &DebugBorderQuad{Color: color, Width: width})
	q.NeedsBlending = color.A < 1
	return q
}

// Material returns the quad's material.
func (q *DrawQuad) Material() Material {
	if q.Payload == nil {
		return MaterialInvalid
	}
	return q.Payload.Material()
}

// IsDebugQuad reports whether the quad is a debug overlay.
func (q *DrawQuad) IsDebugQuad() bool {
	return q.Material() == MaterialDebugBorder
}

// ShouldDrawWithBlending reports whether the quad must be blended with what
// is already in the target.
func (q *DrawQuad) ShouldDrawWithBlending() bool {
	if q.NeedsBlending {
		return true
	}
	if s := q.SharedState; s != nil && (s.Opacity < 1 || s.BlendMode != gpu.BlendSrcOver) {
		return true
	}
	return !q.OpaqueRect.Contains(q.VisibleRect)
}

// Resources returns the resource ids the quad samples.
func (q *DrawQuad) Resources() []resource.ID {
	var ids []resource.ID
	add := func(id resource.ID) {
		if id != resource.InvalidID {
			ids = append(ids, id)
		}
	}
	switch p := q.Payload.(type) {
	case *TileQuad:
		add(p.ResourceID)
	case *RenderPassQuad:
		add(p.MaskResourceID)
	case *TextureQuad:
		add(p.ResourceID)
	case *YUVVideoQuad:
		add(p.YPlane)
		add(p.UPlane)
		add(p.VPlane)
		add(p.APlane)
	case *StreamVideoQuad:
		add(p.ResourceID)
	case *IOSurfaceQuad:
		add(p.ResourceID)
	case *SolidColorQuad, *DebugBorderQuad, *PictureQuad, *SurfaceQuad, nil:
	}
	return ids
}

// Validate checks the quad's structural invariants.
func (q *DrawQuad) Validate() error {
	if q.SharedState == nil {
		return ErrNoSharedState
	}
	if q.Payload == nil {
		return ErrNoPayload
	}
	if !q.VisibleRect.IsEmpty() && !q.Rect.Contains(q.VisibleRect) {
		return fmt.Errorf("%w: %v not in %v", ErrVisibleRectOutsideRect, q.VisibleRect, q.Rect)
	}
	return nil
}

package scenefile

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/filter"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// Capture is the copy of a render pass a scene asked for.
type Capture struct {
	Pass   quads.RenderPassID
	Result <-chan *quads.CopyOutputResult
}

// Frame is a scene turned into renderer input. Its resources live in the
// provider it was built with until Release.
type Frame struct {
	Passes   quads.RenderPassList
	Viewport geom.Rect
	Clip     geom.Rect
	Scale    float64
	Captures []Capture

	provider  *resource.Provider
	resources []resource.ID
}

// Release deletes the resources uploaded for the frame.
func (f *Frame) Release() {
	for _, id := range f.resources {
		f.provider.DeleteResource(id)
	}
	f.resources = nil
}

// builder carries the state of one Build call.
type builder struct {
	scene    *Scene
	provider *resource.Provider
	frame    *Frame
	images   map[string]resource.ID
	sizes    map[string]geom.Size
}

// Build uploads the scene's images into provider and returns the frame.
// Each image is decoded once, however many quads use it.
func (s *Scene) Build(provider *resource.Provider) (*Frame, error) {
	b := &builder{
		scene:    s,
		provider: provider,
		frame:    &Frame{Scale: s.Scale, provider: provider},
		images:   make(map[string]resource.ID),
		sizes:    make(map[string]geom.Size),
	}
	for _, p := range s.Passes {
		pass, err := b.pass(&p)
		if err != nil {
			b.frame.Release()
			return nil, err
		}
		b.frame.Passes = append(b.frame.Passes, pass)
	}
	if err := b.frame.Passes.Validate(); err != nil {
		b.frame.Release()
		return nil, fmt.Errorf("scenefile: %w", err)
	}

	size := s.ViewportSize()
	b.frame.Viewport = geom.RectFromSize(size)
	b.frame.Clip = b.frame.Viewport
	if s.Clip != nil {
		b.frame.Clip = b.frame.Viewport.Intersect(s.Clip.Geom())
	}
	compositor.Logger().Debug("scenefile: frame built",
		"passes", len(b.frame.Passes), "resources", len(b.frame.resources), "viewport", size.String())
	return b.frame, nil
}

func (b *builder) pass(p *Pass) (*quads.RenderPass, error) {
	pass := quads.NewRenderPass(p.ID.ID(), p.OutputRect.Geom())
	if p.DamageRect != nil {
		pass.DamageRect = p.DamageRect.Geom()
	}
	pass.TransformToRootTarget = p.Transform.Matrix()
	if p.Transparent != nil {
		pass.HasTransparentBackground = *p.Transparent
	}
	if p.Capture {
		req, ch := quads.NewCopyOutputRequestChan()
		req.ForceBitmapResult = true
		if p.CaptureArea != nil {
			req.SetArea(p.CaptureArea.Geom())
		}
		pass.AddCopyRequest(req)
		b.frame.Captures = append(b.frame.Captures, Capture{Pass: pass.ID, Result: ch})
	}

	var shared *quads.SharedQuadState
	for i := range p.Quads {
		q := &p.Quads[i]
		sqs := shared
		if q.State != nil {
			var err error
			if sqs, err = b.state(pass, q.State); err != nil {
				return nil, fmt.Errorf("scenefile: pass %v quad %d: %w", pass.ID, i, err)
			}
		} else if sqs == nil {
			shared = pass.CreateAndAppendSharedQuadState()
			sqs = shared
		}
		dq, err := b.quad(sqs, q)
		if err != nil {
			return nil, fmt.Errorf("scenefile: pass %v quad %d: %w", pass.ID, i, err)
		}
		pass.AppendQuad(dq)
	}
	return pass, nil
}

func (b *builder) state(pass *quads.RenderPass, st *State) (*quads.SharedQuadState, error) {
	sqs := pass.CreateAndAppendSharedQuadState()
	sqs.QuadToTargetTransform = st.Transform.Matrix()
	if st.Clip != nil {
		sqs.ClipRect = st.Clip.Geom()
		sqs.IsClipped = true
	}
	if st.Opacity != nil {
		sqs.Opacity = *st.Opacity
	}
	if st.BlendMode != "" {
		mode, ok := gpu.ParseBlendMode(st.BlendMode)
		if !ok {
			return nil, fmt.Errorf("unknown blend mode %q", st.BlendMode)
		}
		sqs.BlendMode = mode
	}
	sqs.SortingContextID = st.SortingContext
	if st.LayerBounds != nil {
		sqs.QuadLayerBounds = geom.Size(*st.LayerBounds)
		sqs.VisibleQuadLayerRect = geom.RectFromSize(sqs.QuadLayerBounds)
	}
	return sqs, nil
}

func (b *builder) quad(sqs *quads.SharedQuadState, q *Quad) (*quads.DrawQuad, error) {
	rect := q.Rect.Geom()
	var dq *quads.DrawQuad
	switch q.Type {
	case "solid_color":
		dq = quads.NewSolidColorQuad(sqs, rect, q.Color.Value())
		dq.Payload.(*quads.SolidColorQuad).ForceAntiAliasingOff = q.NoAA

	case "debug_border":
		width := q.Width
		if width == 0 {
			width = 1
		}
		dq = quads.NewDebugBorderQuad(sqs, rect, q.Color.Value(), width)

	case "texture":
		id, _, err := b.image(q.Image)
		if err != nil {
			return nil, err
		}
		premultiplied := q.Premultiplied == nil || *q.Premultiplied
		dq = quads.NewTextureQuad(sqs, rect, id, premultiplied)
		tq := dq.Payload.(*quads.TextureQuad)
		if q.UV != nil {
			uv := q.UV.Geom()
			tq.UVTopLeft = geom.PointF{X: uv.X, Y: uv.Y}
			tq.UVBottomRight = geom.PointF{X: uv.X + uv.Width, Y: uv.Y + uv.Height}
		}
		if q.Background.IsSet() {
			tq.BackgroundColor = q.Background.Value()
		}
		if len(q.VertexOpacity) > 0 {
			if len(q.VertexOpacity) != 4 {
				return nil, fmt.Errorf("vertex_opacity needs 4 values, got %d", len(q.VertexOpacity))
			}
			copy(tq.VertexOpacity[:], q.VertexOpacity)
		}
		tq.Flipped = q.Flipped
		tq.Nearest = q.Nearest
		tq.AllowOverlay = q.Overlay

	case "tile":
		id, size, err := b.image(q.Image)
		if err != nil {
			return nil, err
		}
		texRect := geom.RectF{Width: float64(size.Width), Height: float64(size.Height)}
		if q.TexRect != nil {
			texRect = q.TexRect.Geom()
		}
		dq = quads.NewTileQuad(sqs, rect, id, texRect, size)
		tile := dq.Payload.(*quads.TileQuad)
		tile.Swizzle = q.Swizzle
		tile.Nearest = q.Nearest

	case "render_pass":
		dq = quads.NewRenderPassQuad(sqs, rect, q.Pass.ID())
		rp := dq.Payload.(*quads.RenderPassQuad)
		if q.Mask != "" {
			id, _, err := b.image(q.Mask)
			if err != nil {
				return nil, err
			}
			rp.MaskResourceID = id
			rp.MaskUVRect = geom.RectF{Width: 1, Height: 1}
			if q.MaskUV != nil {
				rp.MaskUVRect = q.MaskUV.Geom()
			}
		}
		var err error
		if rp.Filters, err = filters(q.Filters); err != nil {
			return nil, err
		}
		if rp.BackgroundFilters, err = filters(q.BackgroundFilters); err != nil {
			return nil, err
		}
		if q.FiltersScale != 0 {
			rp.FiltersScale = q.FiltersScale
		}

	case "yuv_video":
		yuv := &quads.YUVVideoQuad{TexCoordRect: geom.RectF{Width: 1, Height: 1}}
		if q.TexRect != nil {
			yuv.TexCoordRect = q.TexRect.Geom()
		}
		for _, plane := range []struct {
			name string
			dst  *resource.ID
			opt  bool
		}{{q.Y, &yuv.YPlane, false}, {q.U, &yuv.UPlane, false}, {q.V, &yuv.VPlane, false}, {q.A, &yuv.APlane, true}} {
			if plane.name == "" && plane.opt {
				continue
			}
			id, _, err := b.image(plane.name)
			if err != nil {
				return nil, err
			}
			*plane.dst = id
		}
		switch strings.ToLower(q.ColorSpace) {
		case "", "bt601":
			yuv.ColorSpace = quads.ColorSpaceBT601
		case "bt709":
			yuv.ColorSpace = quads.ColorSpaceBT709
		case "jpeg":
			yuv.ColorSpace = quads.ColorSpaceJPEG
		default:
			return nil, fmt.Errorf("unknown color space %q", q.ColorSpace)
		}
		dq = quads.NewDrawQuad(sqs, rect, yuv)
		if yuv.APlane == resource.InvalidID {
			dq.OpaqueRect = rect
		}

	case "stream_video":
		id, _, err := b.image(q.Image)
		if err != nil {
			return nil, err
		}
		dq = quads.NewDrawQuad(sqs, rect, &quads.StreamVideoQuad{ResourceID: id, Matrix: q.Matrix.Matrix()})

	case "io_surface":
		id, size, err := b.image(q.Image)
		if err != nil {
			return nil, err
		}
		orientation := quads.OrientationUnflipped
		if q.Flipped {
			orientation = quads.OrientationFlipped
		}
		dq = quads.NewDrawQuad(sqs, rect, &quads.IOSurfaceQuad{ResourceID: id, Size: size, Orientation: orientation})

	case "picture":
		pq := &quads.PictureQuad{ContentsRect: rect, ContentsScale: 1}
		if q.ContentsRect != nil {
			pq.ContentsRect = q.ContentsRect.Geom()
		}
		if q.ContentsScale != 0 {
			pq.ContentsScale = q.ContentsScale
		}
		dq = quads.NewDrawQuad(sqs, rect, pq)

	case "surface":
		dq = quads.NewDrawQuad(sqs, rect, &quads.SurfaceQuad{SurfaceID: q.SurfaceID})

	default:
		return nil, fmt.Errorf("unknown quad type %q", q.Type)
	}

	if q.VisibleRect != nil {
		dq.VisibleRect = q.VisibleRect.Geom()
	}
	if q.OpaqueRect != nil {
		dq.OpaqueRect = q.OpaqueRect.Geom()
	}
	if q.NeedsBlending {
		dq.NeedsBlending = true
	}
	return dq, nil
}

// image returns the resource holding the named image, decoding and
// uploading it on first use.
func (b *builder) image(name string) (resource.ID, geom.Size, error) {
	if name == "" {
		return resource.InvalidID, geom.Size{}, fmt.Errorf("quad needs an image")
	}
	if id, ok := b.images[name]; ok {
		return id, b.sizes[name], nil
	}
	path, err := b.scene.imagePath(name)
	if err != nil {
		return resource.InvalidID, geom.Size{}, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return resource.InvalidID, geom.Size{}, fmt.Errorf("image %q: %w", name, err)
	}
	id, err := b.provider.CreateFromImage(img)
	if err != nil {
		return resource.InvalidID, geom.Size{}, fmt.Errorf("image %q: %w", name, err)
	}
	size, _ := b.provider.Size(id)
	b.images[name] = id
	b.sizes[name] = size
	b.frame.resources = append(b.frame.resources, id)
	return id, size, nil
}

// filters converts scene filters into filter operations.
func filters(list []Filter) (filter.Operations, error) {
	if len(list) == 0 {
		return nil, nil
	}
	ops := make(filter.Operations, 0, len(list))
	for _, f := range list {
		t, ok := filter.ParseType(f.Type)
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", f.Type)
		}
		op := filter.Operation{Type: t, Amount: f.Amount, Inset: f.Inset}
		switch t {
		case filter.DropShadow:
			if len(f.Offset) != 0 && len(f.Offset) != 2 {
				return nil, fmt.Errorf("drop-shadow offset needs [x, y]")
			}
			if len(f.Offset) == 2 {
				op.Offset = geom.Point{X: f.Offset[0], Y: f.Offset[1]}
			}
			op.Color = f.Color.Value()
		case filter.Matrix:
			if len(f.Matrix) != len(op.ColorMatrix) {
				return nil, fmt.Errorf("color-matrix needs %d values, got %d", len(op.ColorMatrix), len(f.Matrix))
			}
			copy(op.ColorMatrix[:], f.Matrix)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

package quads

import (
	"fmt"
	"iter"

	"github.com/gogpu/compositor/geom"
)

// RenderPassID names a render pass by the layer that owns it and an index
// among that layer's passes.
type RenderPassID struct {
	LayerID int
	Index   int
}

// String returns "layer.index".
func (id RenderPassID) String() string {
	return fmt.Sprintf("%d.%d", id.LayerID, id.Index)
}

// RenderPass is a drawing target and the quads drawn into it.
type RenderPass struct {
	ID RenderPassID

	// OutputRect is the pass extent in physical pixels.
	OutputRect geom.Rect
	// DamageRect is the part of OutputRect that changed this frame.
	DamageRect geom.Rect

	TransformToRootTarget    geom.Transform
	HasTransparentBackground bool

	// QuadList is ordered front-to-back.
	QuadList            []*DrawQuad
	SharedQuadStateList []*SharedQuadState

	CopyRequests []*CopyOutputRequest
}

// NewRenderPass returns an empty pass with full damage, identity transform
// and a transparent background.
func NewRenderPass(id RenderPassID, outputRect geom.Rect) *RenderPass {
	return &RenderPass{
		ID:                       id,
		OutputRect:               outputRect,
		DamageRect:               outputRect,
		TransformToRootTarget:    geom.Identity(),
		HasTransparentBackground: true,
	}
}

// CreateAndAppendSharedQuadState adds shared state with identity transform
// and full opacity.
func (p *RenderPass) CreateAndAppendSharedQuadState() *SharedQuadState {
	s := &SharedQuadState{
		QuadToTargetTransform: geom.Identity(),
		VisibleQuadLayerRect:  p.OutputRect,
		QuadLayerBounds:       p.OutputRect.Size(),
		Opacity:               1,
	}
	p.SharedQuadStateList = append(p.SharedQuadStateList, s)
	return s
}

// AppendQuad adds q behind every quad already in the pass.
func (p *RenderPass) AppendQuad(q *DrawQuad) {
	p.QuadList = append(p.QuadList, q)
}

// AddCopyRequest attaches a copy request serviced after the pass is drawn.
func (p *RenderPass) AddCopyRequest(r *CopyOutputRequest) {
	p.CopyRequests = append(p.CopyRequests, r)
}

// TakeCopyRequests detaches and returns the pass's copy requests.
func (p *RenderPass) TakeCopyRequests() []*CopyOutputRequest {
	reqs := p.CopyRequests
	p.CopyRequests = nil
	return reqs
}

// BackToFront yields the quads in paint order, back-most first.
func (p *RenderPass) BackToFront() iter.Seq[*DrawQuad] {
	return func(yield func(*DrawQuad) bool) {
		for i := len(p.QuadList) - 1; i >= 0; i-- {
			if !yield(p.QuadList[i]) {
				return
			}
		}
	}
}

// FrontToBack yields the quads front-most first.
func (p *RenderPass) FrontToBack() iter.Seq[*DrawQuad] {
	return func(yield func(*DrawQuad) bool) {
		for _, q := range p.QuadList {
			if !yield(q) {
				return
			}
		}
	}
}

// Clear drops the pass's quads and resolves any copy request still pending
// with an empty result.
func (p *RenderPass) Clear() {
	for _, r := range p.TakeCopyRequests() {
		r.Discard()
	}
	clear(p.QuadList)
	p.QuadList = p.QuadList[:0]
	clear(p.SharedQuadStateList)
	p.SharedQuadStateList = p.SharedQuadStateList[:0]
}

// Validate checks every quad of the pass.
func (p *RenderPass) Validate() error {
	for i, q := range p.QuadList {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("pass %v quad %d: %w", p.ID, i, err)
		}
	}
	return nil
}

// RenderPassList is a frame's passes in dependency order. The root pass is
// last.
type RenderPassList []*RenderPass

// Root returns the root pass, or nil for an empty list.
func (l RenderPassList) Root() *RenderPass {
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

// Find returns the pass with the given id.
func (l RenderPassList) Find(id RenderPassID) (*RenderPass, bool) {
	for _, p := range l {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Validate checks that pass ids are unique, that render pass quads only
// reference passes drawn earlier, and that every quad is well formed.
func (l RenderPassList) Validate() error {
	if len(l) == 0 {
		return ErrEmptyPassList
	}
	seen := make(map[RenderPassID]bool, len(l))
	for _, p := range l {
		if seen[p.ID] {
			return fmt.Errorf("%w: %v", ErrDuplicatePass, p.ID)
		}
		if err := p.Validate(); err != nil {
			return err
		}
		for _, q := range p.QuadList {
			if rp, ok := q.Payload.(*RenderPassQuad); ok && !seen[rp.PassID] {
				return fmt.Errorf("%w: %v in %v", ErrUnknownPass, rp.PassID, p.ID)
			}
		}
		seen[p.ID] = true
	}
	return nil
}

// Clear clears every pass and empties the list.
func (l *RenderPassList) Clear() {
	for _, p := range *l {
		p.Clear()
	}
	clear(*l)
	*l = (*l)[:0]
}

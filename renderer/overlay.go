package renderer

import (
	"cmp"
	"slices"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/resource"
)

// overlayState tracks the resources of promoted quads. A resource stays
// read-locked while the display may still scan it out.
type overlayState struct {
	planes  []output.OverlayPlane
	pending []resource.ID // promoted in the frame being drawn
	inUse   []resource.ID // on screen since the last swap
	delayed []resource.ID // on screen until the next swap
}

func unlockAll(p *resource.Provider, ids []resource.ID) {
	for _, id := range ids {
		p.UnlockForRead(id)
	}
}

// swapped moves the frame's overlay resources on screen and releases those
// the display no longer reads.
func (s *overlayState) swapped(p *resource.Provider, delay bool) {
	if delay {
		unlockAll(p, s.delayed)
		s.delayed = s.inUse
	} else {
		unlockAll(p, s.inUse)
	}
	s.inUse = s.pending
	s.pending = nil
	s.planes = nil
}

func (s *overlayState) releaseAll(p *resource.Provider) {
	unlockAll(p, s.pending)
	unlockAll(p, s.inUse)
	unlockAll(p, s.delayed)
	*s = overlayState{}
}

// overlayCandidate reports whether q can be scanned out directly instead
// of being composited.
func overlayCandidate(q *quads.DrawQuad) (*quads.TextureQuad, bool) {
	p, ok := q.Payload.(*quads.TextureQuad)
	if !ok || !p.AllowOverlay || q.ShouldDrawWithBlending() {
		return nil, false
	}
	sqs := q.SharedState
	if sqs == nil || sqs.IsClipped || !sqs.QuadToTargetTransform.Preserves2DAxisAlignment() {
		return nil, false
	}
	return p, true
}

// processOverlays promotes eligible quads of the root pass to overlay
// planes and removes them from its quad list.
func (r *Renderer) processOverlays(root *quads.RenderPass) {
	s := &r.overlays
	if len(s.pending) > 0 {
		unlockAll(r.provider, s.pending)
		s.pending = nil
	}
	s.planes = nil

	f := r.frame
	dx := float64(f.viewport.X - root.OutputRect.X)
	dy := float64(f.viewport.Y - root.OutputRect.Y)
	if r.surface.IsDisplayedAsOverlayPlane() {
		s.planes = append(s.planes, output.OverlayPlane{
			DisplayRect:      f.viewport.ToRectF(),
			UVRect:           geom.XYWHF(0, 0, 1, 1),
			UseOutputSurface: true,
		})
	}
	limit := r.surface.Capabilities().MaxOverlayPlanes
	if limit == 0 || len(root.CopyRequests) > 0 {
		return
	}

	var covered []geom.RectF
	var promoted []output.OverlayPlane
	kept := root.QuadList[:0]
	for _, q := range root.QuadList {
		if q.SharedState == nil {
			kept = append(kept, q)
			continue
		}
		bounds := q.SharedState.QuadToTargetTransform.MapRect(q.Rect.ToRectF())
		p, ok := overlayCandidate(q)
		if ok && len(promoted) < limit && !overlapsAny(bounds, covered) {
			if tex, err := r.provider.LockForRead(p.ResourceID); err == nil {
				s.pending = append(s.pending, p.ResourceID)
				promoted = append(promoted, output.OverlayPlane{
					DisplayRect: bounds.Offset(dx, dy),
					UVRect: geom.XYWHF(p.UVTopLeft.X, p.UVTopLeft.Y,
						p.UVBottomRight.X-p.UVTopLeft.X, p.UVBottomRight.Y-p.UVTopLeft.Y),
					Texture: tex,
				})
				r.stats.OverlaysPromoted++
				continue
			}
		}
		covered = append(covered, bounds)
		kept = append(kept, q)
	}
	clear(root.QuadList[len(kept):])
	root.QuadList = kept

	// Promoted planes stack above the primary plane, the frontmost highest.
	for i := range promoted {
		promoted[i].ZOrder = len(promoted) - i
	}
	s.planes = append(s.planes, promoted...)
	if len(promoted) > 0 {
		compositor.Logger().Debug("renderer: promoted overlays", "count", len(promoted))
	}
}

func overlapsAny(r geom.RectF, rects []geom.RectF) bool {
	for _, o := range rects {
		if !r.Intersect(o).IsEmpty() {
			return true
		}
	}
	return false
}

// scheduleOverlays orders the frame's planes bottom to top.
func (r *Renderer) scheduleOverlays() {
	slices.SortStableFunc(r.overlays.planes, func(a, b output.OverlayPlane) int {
		return cmp.Compare(a.ZOrder, b.ZOrder)
	})
}

package renderer

import (
	"weak"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/resource"
)

// syncQuery brackets the commands of one frame. Resources read during the
// frame stay locked until its query completes.
type syncQuery struct {
	ctx        gpu.Context
	id         gpu.QueryID
	generation uint64
	pending    bool
	destroyed  bool
}

func (q *syncQuery) begin() resource.Fence {
	q.generation++
	q.ctx.BeginQuery(q.id)
	q.pending = true
	return &syncFence{query: weak.Make(q), generation: q.generation}
}

func (q *syncQuery) end() { q.ctx.EndQuery(q.id) }

func (q *syncQuery) isPending() bool {
	if q.pending && q.ctx.QueryAvailable(q.id) {
		q.pending = false
	}
	return q.pending
}

func (q *syncQuery) wait() {
	if !q.pending {
		return
	}
	q.ctx.WaitQuery(q.id)
	q.pending = !q.ctx.QueryAvailable(q.id)
}

// syncFence passes once its query completes. A fence outliving its query,
// or one whose query has been reused, has passed.
type syncFence struct {
	query      weak.Pointer[syncQuery]
	generation uint64
}

func (f *syncFence) HasPassed() bool {
	q := f.query.Value()
	if q == nil || q.destroyed || q.generation != f.generation {
		return true
	}
	return !q.isPending()
}

func (f *syncFence) Wait() {
	q := f.query.Value()
	if q == nil || q.destroyed || q.generation != f.generation {
		return
	}
	q.wait()
}

// syncQueryPool recycles frame queries and bounds how many frames may be
// in flight.
type syncQueryPool struct {
	ctx        gpu.Context
	maxPending int
	pending    []*syncQuery // oldest first
	available  []*syncQuery
	current    *syncQuery
	disabled   bool
}

func newSyncQueryPool(ctx gpu.Context, maxPending int) *syncQueryPool {
	return &syncQueryPool{ctx: ctx, maxPending: maxPending}
}

// beginFrame starts the query of a new frame and returns its fence. stalled
// reports whether the pool had to wait for an older frame first.
func (p *syncQueryPool) beginFrame() (fence resource.Fence, stalled bool) {
	if p.disabled {
		return resource.PassedFence, false
	}
	if len(p.pending) >= p.maxPending {
		compositor.Logger().Warn("renderer: too many frames in flight, waiting", "pending", len(p.pending))
		p.pending[0].wait()
		stalled = true
	}
	for len(p.pending) > 0 && !p.pending[0].isPending() {
		p.available = append(p.available, p.pending[0])
		p.pending[0] = nil
		p.pending = p.pending[1:]
	}

	var q *syncQuery
	if n := len(p.available); n > 0 {
		q = p.available[n-1]
		p.available = p.available[:n-1]
	} else {
		id, err := p.ctx.CreateQuery()
		if err != nil {
			compositor.Logger().Debug("renderer: sync queries unavailable", "err", err)
			p.disabled = true
			return resource.PassedFence, stalled
		}
		q = &syncQuery{ctx: p.ctx, id: id}
	}
	p.current = q
	return q.begin(), stalled
}

// endFrame ends the current frame's query.
func (p *syncQueryPool) endFrame() {
	if p.current == nil {
		return
	}
	p.current.end()
	p.pending = append(p.pending, p.current)
	p.current = nil
}

func (p *syncQueryPool) inFlight() int { return len(p.pending) }

func (p *syncQueryPool) destroy() {
	all := append(p.pending, p.available...)
	if p.current != nil {
		all = append(all, p.current)
	}
	for _, q := range all {
		q.destroyed = true
		p.ctx.DeleteQuery(q.id)
	}
	p.pending, p.available, p.current = nil, nil, nil
}

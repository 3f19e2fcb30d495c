package soft

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

type pixelBuffer struct {
	data   []byte
	mapped bool
}

type query struct {
	active bool

	// serial is the submission serial the query waits for, zero until ended.
	serial uint64
	done   bool

	callbacks []func()
}

// CopyTexSubImage implements gpu.Context.
func (c *Context) CopyTexSubImage(dst gpu.TextureID, dstOrigin geom.Point, src geom.Rect) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	t, ok := c.textures[dst]
	if !ok {
		return fmt.Errorf("%w: texture %d", gpu.ErrInvalidID, dst)
	}
	fb, err := c.target()
	if err != nil {
		return err
	}
	if fb == t {
		return fmt.Errorf("soft: copy from texture %d into itself", dst)
	}
	t.copyFrom(fb, src, dstOrigin)
	c.stats.TextureCopies++
	return nil
}

// ReadPixels implements gpu.Context.
func (c *Context) ReadPixels(rect geom.Rect) ([]byte, error) {
	if c.lost {
		return nil, gpu.ErrContextLost
	}
	t, err := c.target()
	if err != nil {
		return nil, err
	}
	c.stats.Readbacks++
	return t.read(rect, c.cfg.readback), nil
}

// CreateBuffer implements gpu.Context.
func (c *Context) CreateBuffer() (gpu.BufferID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	id := gpu.BufferID(c.newID())
	c.buffers[id] = &pixelBuffer{}
	return id, nil
}

// DeleteBuffer implements gpu.Context.
func (c *Context) DeleteBuffer(id gpu.BufferID) {
	delete(c.buffers, id)
}

// ReadPixelsAsync implements gpu.Context. The software context copies the
// pixels immediately; completion is still reported through queries.
func (c *Context) ReadPixelsAsync(buf gpu.BufferID, rect geom.Rect) error {
	if c.cfg.noAsync {
		return gpu.ErrUnsupported
	}
	b, ok := c.buffers[buf]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpu.ErrInvalidID, buf)
	}
	if b.mapped {
		return gpu.ErrBufferMapped
	}
	pix, err := c.ReadPixels(rect)
	if err != nil {
		return err
	}
	b.data = pix
	return nil
}

// MapBuffer implements gpu.Context.
func (c *Context) MapBuffer(buf gpu.BufferID) ([]byte, error) {
	if c.lost {
		return nil, gpu.ErrContextLost
	}
	b, ok := c.buffers[buf]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpu.ErrInvalidID, buf)
	}
	b.mapped = true
	return b.data, nil
}

// UnmapBuffer implements gpu.Context.
func (c *Context) UnmapBuffer(buf gpu.BufferID) {
	if b, ok := c.buffers[buf]; ok {
		b.mapped = false
	}
}

// CreateQuery implements gpu.Context.
func (c *Context) CreateQuery() (gpu.QueryID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	if c.cfg.noAsync {
		return gpu.InvalidID, gpu.ErrUnsupported
	}
	id := gpu.QueryID(c.newID())
	c.queries[id] = &query{}
	return id, nil
}

// DeleteQuery implements gpu.Context. Pending callbacks are dropped.
func (c *Context) DeleteQuery(id gpu.QueryID) {
	delete(c.queries, id)
}

// BeginQuery implements gpu.Context. Beginning a query resets it.
func (c *Context) BeginQuery(id gpu.QueryID) {
	if q, ok := c.queries[id]; ok {
		q.active = true
		q.serial = 0
		q.done = false
	}
}

// EndQuery implements gpu.Context.
func (c *Context) EndQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok || !q.active {
		return
	}
	q.active = false
	c.submitted++
	q.serial = c.submitted
}

// QueryAvailable implements gpu.Context.
func (c *Context) QueryAvailable(id gpu.QueryID) bool {
	q, ok := c.queries[id]
	if !ok {
		return true
	}
	return c.isDone(q)
}

func (c *Context) isDone(q *query) bool {
	return q.done || (q.serial != 0 && q.serial <= c.completed)
}

// WaitQuery implements gpu.Context. Commands complete in order, so every
// query ended before id completes too.
func (c *Context) WaitQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok || q.serial == 0 {
		return
	}
	c.completed = max(c.completed, q.serial)
	c.deliver()
}

// SignalQuery implements gpu.Context.
func (c *Context) SignalQuery(id gpu.QueryID, callback func()) {
	q, ok := c.queries[id]
	if !ok {
		slogger().Warn("soft: signal on unknown query", "query", id)
		return
	}
	q.callbacks = append(q.callbacks, callback)
}

// CompleteQuery marks a single query complete, out of submission order,
// and runs its callbacks. It simulates a driver signaling completions in
// arbitrary order.
func (c *Context) CompleteQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok || q.serial == 0 {
		return
	}
	q.done = true
	c.runCallbacks(q)
}

// PendingQueries returns the ended queries that have not completed, in
// submission order.
func (c *Context) PendingQueries() []gpu.QueryID {
	var ids []gpu.QueryID
	for id, q := range c.queries {
		if q.serial != 0 && !c.isDone(q) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b gpu.QueryID) int {
		return cmp.Compare(c.queries[a].serial, c.queries[b].serial)
	})
	return ids
}

// deliver runs callbacks of completed queries in submission order.
func (c *Context) deliver() {
	var ready []*query
	for _, q := range c.queries {
		if len(q.callbacks) > 0 && c.isDone(q) {
			ready = append(ready, q)
		}
	}
	slices.SortFunc(ready, func(a, b *query) int {
		return cmp.Compare(a.serial, b.serial)
	})
	for _, q := range ready {
		c.runCallbacks(q)
	}
}

func (c *Context) runCallbacks(q *query) {
	cbs := q.callbacks
	q.callbacks = nil
	for _, cb := range cbs {
		cb()
	}
}

// InsertSyncToken implements gpu.Context.
func (c *Context) InsertSyncToken() uint64 {
	c.syncToken++
	return c.syncToken
}

// Flush implements gpu.Context. Without manual completion every ended query
// completes.
func (c *Context) Flush() {
	if !c.cfg.manual {
		c.completed = c.submitted
	}
	c.deliver()
}

// Finish implements gpu.Context.
func (c *Context) Finish() {
	c.completed = c.submitted
	c.deliver()
}

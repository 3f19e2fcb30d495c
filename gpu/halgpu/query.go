package halgpu

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/compositor/gpu"
)

type queryState uint8

const (
	queryIdle queryState = iota
	queryActive
	queryEnded
	querySubmitted
)

// query completes with the submission that carried its commands.
type query struct {
	state      queryState
	submission uint64
	callbacks  []func()
}

// CreateQuery implements gpu.Context.
func (c *Context) CreateQuery() (gpu.QueryID, error) {
	if c.lost {
		return gpu.InvalidID, gpu.ErrContextLost
	}
	id := gpu.QueryID(c.newID())
	c.queries[id] = &query{}
	return id, nil
}

// DeleteQuery implements gpu.Context. Pending callbacks are dropped.
func (c *Context) DeleteQuery(id gpu.QueryID) {
	delete(c.queries, id)
}

// BeginQuery implements gpu.Context.
func (c *Context) BeginQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok {
		slogger().Warn("halgpu: begin of unknown query", "query", uint64(id))
		return
	}
	q.state = queryActive
	q.submission = 0
}

// EndQuery implements gpu.Context.
func (c *Context) EndQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok || q.state != queryActive {
		return
	}
	q.state = queryEnded
	c.ended = append(c.ended, id)
}

func (c *Context) completed(q *query) bool {
	return q.state == querySubmitted && q.submission <= c.queue.PollCompleted()
}

// QueryAvailable implements gpu.Context.
func (c *Context) QueryAvailable(id gpu.QueryID) bool {
	q, ok := c.queries[id]
	return ok && c.completed(q)
}

// WaitQuery implements gpu.Context.
func (c *Context) WaitQuery(id gpu.QueryID) {
	q, ok := c.queries[id]
	if !ok || q.state == queryIdle || q.state == queryActive {
		return
	}
	if q.state == queryEnded {
		c.submit()
	}
	if !c.completed(q) {
		if err := c.device.WaitIdle(); err != nil {
			slogger().Warn("halgpu: wait idle", "err", err)
		}
	}
	c.collectGarbage(false)
	c.deliver()
}

// SignalQuery implements gpu.Context.
func (c *Context) SignalQuery(id gpu.QueryID, callback func()) {
	q, ok := c.queries[id]
	if !ok {
		slogger().Warn("halgpu: signal of unknown query", "query", uint64(id))
		return
	}
	q.callbacks = append(q.callbacks, callback)
}

// deliver runs the callbacks of completed queries in submission order.
// Callbacks may create, delete and signal queries.
func (c *Context) deliver() {
	type signal struct {
		id         gpu.QueryID
		submission uint64
		callbacks  []func()
	}
	var ready []signal
	for id, q := range c.queries {
		if len(q.callbacks) > 0 && c.completed(q) {
			ready = append(ready, signal{id: id, submission: q.submission, callbacks: q.callbacks})
			q.callbacks = nil
		}
	}
	slices.SortFunc(ready, func(a, b signal) int {
		if r := cmp.Compare(a.submission, b.submission); r != 0 {
			return r
		}
		return cmp.Compare(a.id, b.id)
	})
	for _, s := range ready {
		for _, cb := range s.callbacks {
			cb()
		}
	}
}

// PendingQueries returns the ended queries that have not completed, in
// end order.
func (c *Context) PendingQueries() []gpu.QueryID {
	var ids []gpu.QueryID
	for id, q := range c.queries {
		if q.state == queryEnded || (q.state == querySubmitted && !c.completed(q)) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (q *query) String() string {
	return fmt.Sprintf("query(state=%d submission=%d)", q.state, q.submission)
}

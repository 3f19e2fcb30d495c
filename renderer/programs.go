package renderer

import (
	"fmt"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/gpu"
)

// programCache creates programs on first use and deletes them with the
// renderer.
type programCache struct {
	ctx      gpu.Context
	programs map[gpu.ProgramKey]struct{}
}

func newProgramCache(ctx gpu.Context) *programCache {
	return &programCache{ctx: ctx, programs: make(map[gpu.ProgramKey]struct{})}
}

// get returns nil when key is ready to use.
func (c *programCache) get(key gpu.ProgramKey) error {
	if _, ok := c.programs[key]; ok {
		return nil
	}
	if c.ctx.IsContextLost() {
		return gpu.ErrContextLost
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := c.ctx.CreateProgram(key); err != nil {
		return fmt.Errorf("renderer: create program %s: %w", key, err)
	}
	c.programs[key] = struct{}{}
	compositor.Logger().Debug("renderer: program compiled", "program", key.String())
	return nil
}

func (c *programCache) count() int { return len(c.programs) }

func (c *programCache) destroy() {
	for key := range c.programs {
		c.ctx.DeleteProgram(key)
	}
	clear(c.programs)
}

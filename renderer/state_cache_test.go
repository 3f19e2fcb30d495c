package renderer

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/gpu/soft"
)

func TestStateCacheElidesRedundantState(t *testing.T) {
	s := newStateCache(soft.New())
	premul := gputypes.BlendStatePremultiplied()

	s.setBlend(true, premul)
	s.setBlend(true, premul)
	s.setBlend(false, premul)
	s.setBlend(false, gputypes.BlendState{})
	assert.Equal(t, 2, s.skipped)

	s.setScissor(true, geom.XYWH(0, 0, 2, 2))
	s.setScissor(true, geom.XYWH(0, 0, 2, 2))
	s.setScissor(true, geom.XYWH(0, 0, 3, 3))
	s.setScissor(false, geom.XYWH(0, 0, 3, 3))
	s.setScissor(false, geom.Rect{})
	assert.Equal(t, 4, s.skipped)

	key := gpu.ProgramKey{Kind: gpu.ProgramSolidColor}
	s.useProgram(key)
	s.useProgram(key)
	assert.Equal(t, 5, s.skipped)
}

func TestStateCacheReset(t *testing.T) {
	calls := 0
	s := newStateCache(soft.New())
	s.onScissorChange = func() { calls++ }
	s.setScissor(false, geom.Rect{})
	s.setBlend(false, gputypes.BlendState{})

	s.reset()
	require.NotNil(t, s.ctx)
	assert.Zero(t, s.skipped)

	s.setScissor(false, geom.Rect{})
	s.setBlend(false, gputypes.BlendState{})
	assert.Zero(t, s.skipped, "state after a reset is always issued")
	assert.Equal(t, 2, calls, "the hook survives the reset")
}

func TestStateCacheScissorHook(t *testing.T) {
	var seen []geom.Rect
	s := newStateCache(soft.New())
	s.onScissorChange = func() { seen = append(seen, s.scissorRect) }

	s.setScissor(true, geom.XYWH(0, 0, 1, 1))
	s.setScissor(true, geom.XYWH(0, 0, 1, 1))
	s.setScissor(true, geom.XYWH(1, 1, 1, 1))

	// The hook sees the scissor still in effect.
	assert.Equal(t, []geom.Rect{{}, geom.XYWH(0, 0, 1, 1)}, seen)
}

func TestProgramCache(t *testing.T) {
	ctx := soft.New()
	c := newProgramCache(ctx)
	key := gpu.ProgramKey{Kind: gpu.ProgramTile, Swizzle: true}
	require.NoError(t, c.get(key))
	require.NoError(t, c.get(key))
	assert.Equal(t, 1, c.count())
	assert.True(t, ctx.HasProgram(key))

	assert.Error(t, c.get(gpu.ProgramKey{Kind: gpu.ProgramSolidColor, Swizzle: true}))
	assert.Equal(t, 1, c.count())

	c.destroy()
	assert.Zero(t, c.count())
	assert.False(t, ctx.HasProgram(key))

	ctx.LoseContext()
	assert.ErrorIs(t, c.get(key), gpu.ErrContextLost)
}

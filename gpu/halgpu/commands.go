package halgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/shader"
)

// deferred is a release that waits for a submission to complete.
type deferred struct {
	submission uint64
	release    func()
}

// pending is the submission index the commands recorded so far will get.
func (c *Context) pending() uint64 {
	if c.recorded {
		return c.submitted + 1
	}
	return c.submitted
}

// retire runs release once every command recorded so far has completed.
func (c *Context) retire(release func()) {
	c.garbage = append(c.garbage, deferred{submission: c.pending(), release: release})
	c.stats.DeferredReleases++
}

// collectGarbage runs the releases whose submission completed, or all of
// them when all is set.
func (c *Context) collectGarbage(all bool) {
	if len(c.garbage) == 0 {
		return
	}
	done := c.submitted
	if !all {
		done = c.queue.PollCompleted()
	}
	kept := c.garbage[:0]
	var ready []deferred
	for _, d := range c.garbage {
		if all || d.submission <= done {
			ready = append(ready, d)
		} else {
			kept = append(kept, d)
		}
	}
	clear(c.garbage[len(kept):])
	c.garbage = kept
	for _, d := range ready {
		d.release()
	}
}

// beginEncoding returns the open command encoder, creating one if needed.
func (c *Context) beginEncoding() (hal.CommandEncoder, error) {
	if c.encoder != nil {
		return c.encoder, nil
	}
	enc, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "compositor_encoder"})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding("compositor_frame"); err != nil {
		return nil, fmt.Errorf("halgpu: begin encoding: %w", err)
	}
	c.encoder = enc
	return enc, nil
}

// copyEncoder returns the encoder with no render pass open, for copies.
func (c *Context) copyEncoder() (hal.CommandEncoder, error) {
	c.endPass()
	enc, err := c.beginEncoding()
	if err != nil {
		return nil, err
	}
	c.recorded = true
	return enc, nil
}

// renderPass returns a render pass drawing into t, ending the open pass if
// it targets another texture.
func (c *Context) renderPass(t *texture) (hal.RenderPassEncoder, error) {
	if c.pass != nil && c.passTarget == t {
		return c.pass, nil
	}
	c.endPass()
	enc, err := c.beginEncoding()
	if err != nil {
		return nil, err
	}
	c.pass = enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "compositor_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    t.view,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		}},
	})
	c.passTarget = t
	c.recorded = true
	c.stats.RenderPasses++
	return c.pass, nil
}

func (c *Context) endPass() {
	if c.pass == nil {
		return
	}
	c.pass.End()
	c.pass = nil
	c.passTarget = nil
}

// discardRecording drops commands that were never submitted.
func (c *Context) discardRecording() {
	c.pass = nil
	c.passTarget = nil
	if c.encoder != nil {
		c.encoder.DiscardEncoding()
		c.encoder = nil
	}
	c.recorded = false
}

// submit ends and submits the recorded commands. Queries ended since the
// previous submit complete with this submission.
func (c *Context) submit() {
	if c.lost {
		return
	}
	if c.recorded {
		c.endPass()
		cmdBuf, err := c.encoder.EndEncoding()
		c.encoder = nil
		c.recorded = false
		if err != nil {
			slogger().Error("halgpu: end encoding", "err", err)
			return
		}
		index, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf})
		if err != nil {
			c.device.FreeCommandBuffer(cmdBuf)
			if errors.Is(err, hal.ErrDeviceLost) {
				c.lost = true
				slogger().Warn("halgpu: device lost")
				return
			}
			slogger().Error("halgpu: submit", "err", err)
			return
		}
		c.submitted = index
		c.stats.Submissions++
		c.garbage = append(c.garbage, deferred{submission: index, release: func() { c.device.FreeCommandBuffer(cmdBuf) }})
	}
	for _, id := range c.ended {
		if q, ok := c.queries[id]; ok && q.state == queryEnded {
			q.state = querySubmitted
			q.submission = c.submitted
		}
	}
	c.ended = c.ended[:0]
}

// Flush implements gpu.Context.
func (c *Context) Flush() {
	c.submit()
	c.collectGarbage(false)
	c.deliver()
}

// Finish implements gpu.Context.
func (c *Context) Finish() {
	c.submit()
	if err := c.device.WaitIdle(); err != nil {
		slogger().Warn("halgpu: wait idle", "err", err)
	}
	c.collectGarbage(false)
	c.deliver()
}

// Clear implements gpu.Context. hal clears whole attachments only, so the
// scissored viewport is filled with a solid quad drawn without blending.
func (c *Context) Clear(color gputypes.Color) {
	if c.lost {
		return
	}
	t, err := c.target()
	if err != nil {
		slogger().Warn("halgpu: clear without target", "err", err)
		return
	}
	bounds := c.drawBounds(t)
	if bounds.IsEmpty() {
		return
	}
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramSolidColor},
		Quads: []gpu.QuadGeometry{{
			Matrix:        rectMatrix(bounds),
			TexRect:       gpu.UnitTexRect,
			VertexOpacity: gpu.OpaqueVertices,
		}},
	}
	call.Uniforms.Color = [4]float32{float32(color.R), float32(color.G), float32(color.B), float32(color.A)}
	call.Uniforms.Alpha = 1
	key := pipelineKey{program: call.Program, format: t.format}
	if err := c.record(t, key, bounds, call); err != nil {
		slogger().Warn("halgpu: clear", "err", err)
		return
	}
	c.stats.Clears++
}

// Draw implements gpu.Context.
func (c *Context) Draw(call *gpu.DrawCall) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	if call.Program != c.program {
		return fmt.Errorf("halgpu: draw with %s while %s is in use", call.Program, c.program)
	}
	if _, ok := c.programs[call.Program]; !ok {
		return fmt.Errorf("%w: program %s not created", gpu.ErrInvalidID, call.Program)
	}
	if len(call.Quads) == 0 || len(call.Quads) > gpu.MaxQuadsPerDraw {
		return fmt.Errorf("halgpu: draw with %d quads", len(call.Quads))
	}
	t, err := c.target()
	if err != nil {
		return err
	}
	bounds := c.drawBounds(t)
	if call.Clip != nil {
		if !call.Clip.IsRectilinear(1e-6) {
			slogger().Debug("halgpu: non-rectilinear clip drawn with its bounds")
		}
		bounds = bounds.Intersect(call.Clip.BoundingBox().ToEnclosingRect())
	}
	if bounds.IsEmpty() {
		return nil
	}
	key := pipelineKey{program: call.Program, format: t.format, blendOn: c.blendOn}
	if c.blendOn {
		key.blend = c.blendState
	}
	if err := c.record(t, key, bounds, call); err != nil {
		return err
	}
	c.stats.DrawCalls++
	return nil
}

// record encodes call into the render pass of t, scissored to bounds.
func (c *Context) record(t *texture, key pipelineKey, bounds geom.Rect, call *gpu.DrawCall) error {
	pipeline, err := c.pipeline(key)
	if err != nil {
		return err
	}

	uniforms, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "compositor_uniforms",
		Size:  shader.UniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("halgpu: create uniform buffer: %w", err)
	}
	if err := c.queue.WriteBuffer(uniforms, 0, shader.PackUniforms(t.size, call)); err != nil {
		c.device.DestroyBuffer(uniforms)
		return fmt.Errorf("halgpu: write uniforms: %w", err)
	}

	entries := []gputypes.BindGroupEntry{
		{Binding: shader.BindingUniforms, Resource: gputypes.BufferBinding{
			Buffer: uniforms.NativeHandle(), Size: shader.UniformSize,
		}},
		{Binding: shader.BindingSourceSampler, Resource: gputypes.SamplerBinding{
			Sampler: c.shared.sampler(call.Filters[gpu.UnitSource]).NativeHandle(),
		}},
		{Binding: shader.BindingAuxSampler, Resource: gputypes.SamplerBinding{
			Sampler: c.shared.linear.NativeHandle(),
		}},
	}
	for unit, id := range call.Textures {
		view := c.shared.dummy.view
		if id != gpu.InvalidID {
			src, ok := c.textures[id]
			if !ok {
				c.device.DestroyBuffer(uniforms)
				return fmt.Errorf("%w: texture %d on unit %d", gpu.ErrInvalidID, id, unit)
			}
			if src == t {
				c.device.DestroyBuffer(uniforms)
				return fmt.Errorf("halgpu: texture %d sampled while bound as target", id)
			}
			view = src.view
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  uint32(shader.BindingFirstTexture + unit), //nolint:gosec // unit < MaxTextureUnits
			Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
		})
	}
	group, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "compositor_bind",
		Layout:  c.shared.bindLayout,
		Entries: entries,
	})
	if err != nil {
		c.device.DestroyBuffer(uniforms)
		return fmt.Errorf("halgpu: create bind group: %w", err)
	}

	pass, err := c.renderPass(t)
	if err != nil {
		c.device.DestroyBindGroup(group)
		c.device.DestroyBuffer(uniforms)
		return err
	}
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	pass.SetViewport(0, 0, float32(t.size.Width), float32(t.size.Height), 0, 1)
	pass.SetScissorRect(uint32(bounds.X), uint32(bounds.Y), uint32(bounds.Width), uint32(bounds.Height)) //nolint:gosec // bounds lie inside the target
	pass.Draw(uint32(6*len(call.Quads)), 1, 0, 0)                                                       //nolint:gosec // at most MaxQuadsPerDraw quads

	c.retire(func() {
		c.device.DestroyBindGroup(group)
		c.device.DestroyBuffer(uniforms)
	})
	return nil
}

// rectMatrix maps the unit square onto r.
func rectMatrix(r geom.Rect) geom.Transform {
	return geom.Translate(float64(r.X), float64(r.Y), 0).Mul(geom.Scale(float64(r.Width), float64(r.Height), 1))
}

package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/shader"
)

// sharedObjects are created once per context and used by every program.
type sharedObjects struct {
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	linear     hal.Sampler
	nearest    hal.Sampler

	// dummy is bound to texture units a draw leaves empty.
	dummy *texture
}

func newSharedObjects(device hal.Device, queue hal.Queue) (*sharedObjects, error) {
	s := &sharedObjects{}

	entries := []gputypes.BindGroupLayoutEntry{{
		Binding:    shader.BindingUniforms,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}}
	for _, b := range []uint32{shader.BindingSourceSampler, shader.BindingAuxSampler} {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    b,
			Visibility: gputypes.ShaderStageFragment,
			Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
		})
	}
	for unit := range gpu.MaxTextureUnits {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(shader.BindingFirstTexture + unit), //nolint:gosec // unit < MaxTextureUnits
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}

	var err error
	s.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "compositor_bind_layout",
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: create bind group layout: %w", err)
	}
	s.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "compositor_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{s.bindLayout},
	})
	if err != nil {
		s.destroy(device)
		return nil, fmt.Errorf("halgpu: create pipeline layout: %w", err)
	}
	s.linear, err = device.CreateSampler(samplerDescriptor("compositor_linear", gputypes.FilterModeLinear))
	if err != nil {
		s.destroy(device)
		return nil, fmt.Errorf("halgpu: create linear sampler: %w", err)
	}
	s.nearest, err = device.CreateSampler(samplerDescriptor("compositor_nearest", gputypes.FilterModeNearest))
	if err != nil {
		s.destroy(device)
		return nil, fmt.Errorf("halgpu: create nearest sampler: %w", err)
	}
	s.dummy, err = newTexture(device, "compositor_dummy", 1, 1, gpu.FormatRGBA8)
	if err != nil {
		s.destroy(device)
		return nil, err
	}
	if err := s.dummy.write(queue, 0, 0, 1, 1, []byte{0, 0, 0, 0}, 4); err != nil {
		s.destroy(device)
		return nil, err
	}
	return s, nil
}

func samplerDescriptor(label string, filter gputypes.FilterMode) *hal.SamplerDescriptor {
	return &hal.SamplerDescriptor{
		Label:        label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: filter,
		LodMaxClamp:  32,
	}
}

func (s *sharedObjects) sampler(f gpu.Filter) hal.Sampler {
	if f == gpu.FilterNearest {
		return s.nearest
	}
	return s.linear
}

// destroy releases the objects in reverse creation order.
func (s *sharedObjects) destroy(device hal.Device) {
	if s.dummy != nil {
		s.dummy.release(device)
		s.dummy = nil
	}
	if s.nearest != nil {
		device.DestroySampler(s.nearest)
		s.nearest = nil
	}
	if s.linear != nil {
		device.DestroySampler(s.linear)
		s.linear = nil
	}
	if s.pipeLayout != nil {
		device.DestroyPipelineLayout(s.pipeLayout)
		s.pipeLayout = nil
	}
	if s.bindLayout != nil {
		device.DestroyBindGroupLayout(s.bindLayout)
		s.bindLayout = nil
	}
}

// pipelineKey identifies a render pipeline. Blend state is baked into hal
// pipelines, so every state the renderer uses gets its own.
type pipelineKey struct {
	program gpu.ProgramKey
	format  gpu.Format
	blendOn bool
	blend   gputypes.BlendState
}

// CreateProgram implements gpu.Context.
func (c *Context) CreateProgram(key gpu.ProgramKey) error {
	if c.lost {
		return gpu.ErrContextLost
	}
	if _, ok := c.programs[key]; ok {
		return nil
	}
	if err := key.Validate(); err != nil {
		return err
	}
	_, err := c.module(key)
	return err
}

// module returns the shader module of key, compiling it on first use.
func (c *Context) module(key gpu.ProgramKey) (hal.ShaderModule, error) {
	if m, ok := c.programs[key]; ok {
		return m, nil
	}
	code, err := c.cfg.compile(key)
	if err != nil {
		return nil, fmt.Errorf("halgpu: program %s: %w", key, err)
	}
	m, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  key.String(),
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: shader module %s: %w", key, err)
	}
	c.programs[key] = m
	slogger().Debug("halgpu: program created", "program", key.String())
	return m, nil
}

// DeleteProgram implements gpu.Context.
func (c *Context) DeleteProgram(key gpu.ProgramKey) {
	m, ok := c.programs[key]
	if !ok {
		return
	}
	delete(c.programs, key)
	for pk, p := range c.pipelines {
		if pk.program == key {
			delete(c.pipelines, pk)
			c.retire(func() { c.device.DestroyRenderPipeline(p) })
		}
	}
	c.retire(func() { c.device.DestroyShaderModule(m) })
}

// HasProgram reports whether key was created.
func (c *Context) HasProgram(key gpu.ProgramKey) bool {
	_, ok := c.programs[key]
	return ok
}

// pipeline returns the render pipeline of key, creating it on first use.
func (c *Context) pipeline(key pipelineKey) (hal.RenderPipeline, error) {
	if p, ok := c.pipelines[key]; ok {
		return p, nil
	}
	m, err := c.module(key.program)
	if err != nil {
		return nil, err
	}
	target := gputypes.ColorTargetState{
		Format:    key.format.TextureFormat(),
		WriteMask: gputypes.ColorWriteMaskAll,
	}
	if key.blendOn {
		blend := key.blend
		target.Blend = &blend
	}
	p, err := c.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  key.program.String(),
		Layout: c.shared.pipeLayout,
		Vertex: hal.VertexState{
			Module:     m,
			EntryPoint: shader.VertexEntry,
		},
		Fragment: &hal.FragmentState{
			Module:     m,
			EntryPoint: shader.FragmentEntry,
			Targets:    []gputypes.ColorTargetState{target},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("halgpu: pipeline %s: %w", key.program, err)
	}
	c.pipelines[key] = p
	c.stats.PipelinesCreated++
	return p, nil
}

// Package compositor draws composited frames on a GPU.
//
// A frame arrives as an ordered list of render passes (root last). Each pass
// holds quads in paint order together with the shared state they reference
// (transform, clip, opacity, blend mode, 3D sorting context). The renderer
// walks the passes, allocates and caches intermediate textures for non-root
// passes, derives scissor rects from damage and clip, splits 3D-sorted quads
// through a BSP tree and issues draw calls through a small GL-like context.
//
// # Packages
//
//   - geom: rectangles, quads and 4x4 transforms
//   - quads: render passes, draw quads and copy requests
//   - filter: filter operations and their CPU application
//   - bsp: polygon splitting and back-to-front traversal
//   - resource: the resource table shared by producers and the renderer
//   - gpu: the context interface; gpu/soft is a CPU reference, gpu/halgpu
//     runs on gogpu/wgpu hal devices
//   - shader: WGSL sources for every program variant
//   - output: output surfaces
//   - renderer: DirectRenderer orchestration and the GPU backend
//   - scenefile: YAML frame descriptions
//
// # Quick Start
//
//	ctx := soft.New(soft.WithSize(256, 256))
//	surface := output.NewOffscreen(ctx)
//	defer surface.Destroy()
//	provider := resource.NewProvider(ctx)
//	defer provider.Destroy()
//	r, err := renderer.New(surface, provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Destroy()
//
//	pass := quads.NewRenderPass(quads.RenderPassID{LayerID: 1}, geom.XYWH(0, 0, 256, 256))
//	sqs := pass.CreateAndAppendSharedQuadState()
//	pass.AppendQuad(quads.NewSolidColorQuad(sqs, pass.OutputRect, gputypes.Color{R: 1, A: 1}))
//	passes := quads.RenderPassList{pass}
//	if err := r.DrawFrame(&passes, 1, pass.OutputRect, pass.OutputRect, false); err != nil {
//	    log.Fatal(err)
//	}
//	err = r.SwapBuffers(output.FrameMetadata{})
package compositor

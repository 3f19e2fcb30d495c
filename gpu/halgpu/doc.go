// Package halgpu implements gpu.Context on top of github.com/gogpu/wgpu/hal.
//
// The context translates the bound-state model of gpu.Context into hal
// command recording:
//
//   - textures are hal textures with one view, framebuffers name the texture
//     they render into
//   - every program is a shader module compiled from WGSL by shader.Compile,
//     and render pipelines are created lazily per program, target format and
//     blend state
//   - draws and clears are recorded into one render pass per framebuffer
//     binding and submitted on Flush
//   - queries complete when the queue reports their submission index done
//
// Per-draw uniform buffers and bind groups, and resources deleted while
// commands referencing them are in flight, are released only once their
// submission completes.
//
// # Devices
//
// A Context either opens a device from a registered hal backend:
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
//
//	ctx, err := halgpu.Open(gputypes.BackendVulkan, halgpu.WithSize(800, 600))
//
// or shares the device of a host application through a
// gpucontext.DeviceProvider:
//
//	ctx, err := halgpu.NewFromProvider(provider)
//
// Importing this package registers the "hal" output backend, which opens
// the best registered hal backend headless.
package halgpu

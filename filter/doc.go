// Package filter describes CSS-style filter chains attached to render pass
// quads and applies them on the CPU.
//
// A chain that only recolors pixels folds into a single 4x5 color matrix,
// which the renderer uploads as a shader uniform instead of rendering a
// filtered copy. Other chains (blur, drop shadow, zoom) are executed by
// Apply on premultiplied RGBA images.
package filter

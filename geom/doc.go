// Package geom provides the integer and float geometry used by the
// compositor: rectangles in physical pixels, float quads and points, and
// 4x4 transforms that map layer space into render target space.
//
// Coordinates follow the layer tree convention: origin at the top-left,
// X to the right, Y down, Z toward the viewer.
package geom

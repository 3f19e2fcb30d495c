// Package renderer draws frames of render passes to an output surface.
//
// A Renderer owns the textures of non-root render passes across frames,
// the compiled programs and a shadow of the context's pipeline state. Each
// DrawFrame call:
//
//   - releases textures of passes that disappeared or changed size
//   - computes the damage of the root pass and, with partial swap, a
//     scissor for every pass from it
//   - promotes eligible root quads to overlay planes
//   - draws every pass back to front, sorting quads of a 3D rendering
//     context through a BSP tree and batching consecutive texture quads
//   - applies filters and backdrop blend modes to render pass quads
//   - services copy requests, asynchronously when the context can
//
// Frames are bracketed by sync queries. Resources read during a frame are
// not reused until its query completes, and no more than
// Settings.MaxPendingSyncQueries frames may be in flight.
//
// Settings can be built from options or loaded from TOML:
//
//	settings, err := renderer.LoadSettingsFile("renderer.toml")
//	if err != nil {
//	    return err
//	}
//	r, err := renderer.New(surface, provider, renderer.WithSettings(settings))
package renderer

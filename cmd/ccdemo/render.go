package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/quads"
	"github.com/gogpu/compositor/renderer"
	"github.com/gogpu/compositor/resource"
	"github.com/gogpu/compositor/scenefile"
)

// errNoSnapshot is returned for surfaces that cannot be read back.
var errNoSnapshot = errors.New("surface cannot be read back")

type snapshotter interface {
	Snapshot() (*image.RGBA, error)
}

// runner renders scene files with fixed options.
type runner struct {
	backend  string
	outDir   string
	workers  int
	settings renderer.Settings
}

func (r *runner) surface(opts output.Options) (output.Surface, error) {
	if r.backend == "" {
		return output.New(opts)
	}
	return output.NewByName(r.backend, opts)
}

// render draws the scene at path and writes the frame and its captures. It
// returns the files written.
func (r *runner) render(ctx context.Context, path string) ([]string, error) {
	scene, err := scenefile.Load(path)
	if err != nil {
		return nil, err
	}
	surface, err := r.surface(output.Options{
		Size:        scene.ViewportSize(),
		PartialSwap: r.settings.PartialSwapEnabled,
		Workers:     r.workers,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer surface.Destroy()
	snap, ok := surface.(snapshotter)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, errNoSnapshot)
	}

	provider := resource.NewProvider(surface.Context())
	defer provider.Destroy()
	rend, err := renderer.New(surface, provider, renderer.WithSettings(r.settings))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer rend.Destroy()

	frame, err := scene.Build(provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer frame.Release()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := rend.DrawFrame(&frame.Passes, frame.Scale, frame.Viewport, frame.Clip, false); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := rend.SwapBuffers(output.FrameMetadata{}); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rend.Finish()

	img, err := snap.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	files := []string{filepath.Join(r.outDir, name+".png")}
	if err := imaging.Save(img, files[0]); err != nil {
		return nil, err
	}
	for _, c := range frame.Captures {
		var result *quads.CopyOutputResult
		select {
		case result = <-c.Result:
		default:
		}
		if result.IsEmpty() || result.Bitmap == nil {
			return files, fmt.Errorf("%s: capture of pass %v produced no bitmap", path, c.Pass)
		}
		file := filepath.Join(r.outDir, fmt.Sprintf("%s-%d.%d.png", name, c.Pass.LayerID, c.Pass.Index))
		if err := imaging.Save(result.Bitmap, file); err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Command ccdemo renders compositor scene files to PNG images.
//
//	ccdemo -out frames scenes/*.yaml
//	ccdemo -backend soft -settings renderer.toml -watch scene.yaml
//
// The hal backend runs on Vulkan when a driver is present. Otherwise the
// software backend is used. Every scene renders into <out>/<name>.png.
// Passes marked for capture are written next to it as
// <name>-<layer>.<index>.png.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/renderer"

	_ "github.com/gogpu/compositor/gpu/halgpu"
	_ "github.com/gogpu/compositor/gpu/soft"
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

func main() {
	var (
		backend  = flag.String("backend", "", "output backend (default: best available, one of "+strings.Join(output.List(), ", ")+")")
		outDir   = flag.String("out", ".", "output directory")
		settings = flag.String("settings", "", "renderer settings TOML file")
		jobs     = flag.Int("j", runtime.GOMAXPROCS(0), "scenes rendered concurrently")
		workers  = flag.Int("workers", 0, "rasterizer goroutines per software surface")
		watch    = flag.Bool("watch", false, "re-render scenes when they or their images change")
		verbose  = flag.Bool("v", false, "log compositor diagnostics")
	)
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: ccdemo [flags] scene.yaml...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	compositor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	r := &runner{
		backend:  *backend,
		outDir:   *outDir,
		workers:  *workers,
		settings: renderer.DefaultSettings(),
	}
	if *settings != "" {
		s, err := renderer.LoadSettingsFile(*settings)
		if err != nil {
			log.Fatal(err)
		}
		r.settings = s
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := renderAll(ctx, r, flag.Args(), *jobs); err != nil {
		log.Print(err)
		if !*watch {
			os.Exit(1)
		}
	}
	if *watch {
		if err := watchScenes(ctx, r, flag.Args()); err != nil {
			log.Fatal(err)
		}
	}
}

// renderAll renders scenes with at most jobs in flight and returns the first
// error. Each scene gets its own surface and context.
func renderAll(ctx context.Context, r *runner, scenes []string, jobs int) error {
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for _, path := range scenes {
		g.Go(func() error {
			files, err := r.render(ctx, path)
			if err != nil {
				return err
			}
			log.Printf("%s -> %s", path, strings.Join(files, ", "))
			return nil
		})
	}
	return g.Wait()
}

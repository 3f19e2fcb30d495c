package output_test

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/gpu/soft"
	"github.com/gogpu/compositor/output"
)

func newSurface(t *testing.T, opts ...output.OffscreenOption) (*output.Offscreen, *soft.Context) {
	t.Helper()
	ctx := soft.New(soft.WithSize(4, 4))
	s := output.NewOffscreen(ctx, opts...)
	t.Cleanup(s.Destroy)
	if err := s.Reshape(geom.Size{Width: 4, Height: 4}, 1); err != nil {
		t.Fatalf("Reshape() error = %v", err)
	}
	return s, ctx
}

func TestOffscreenReshape(t *testing.T) {
	s, ctx := newSurface(t)
	size := geom.Size{Width: 8, Height: 6}
	if err := s.Reshape(size, 2); err != nil {
		t.Fatalf("Reshape() error = %v", err)
	}
	if got := s.SurfaceSize(); got != size {
		t.Errorf("SurfaceSize() = %v, want %v", got, size)
	}
	if got := ctx.DefaultFramebufferSize(); got != size {
		t.Errorf("backbuffer size = %v, want %v", got, size)
	}
	if s.ScaleFactor() != 2 {
		t.Errorf("ScaleFactor() = %v, want 2", s.ScaleFactor())
	}
	if err := s.Reshape(geom.Size{}, 1); err == nil {
		t.Error("Reshape(empty) should fail")
	}
}

func TestOffscreenDiscardBackbuffer(t *testing.T) {
	s, ctx := newSurface(t)
	s.DiscardBackbuffer()
	if ctx.HasBackbuffer() {
		t.Fatal("backbuffer still allocated after discard")
	}
	if err := s.SwapBuffers(&output.Frame{}); !errors.Is(err, output.ErrNoBackbuffer) {
		t.Errorf("SwapBuffers() error = %v, want ErrNoBackbuffer", err)
	}
	if _, err := s.Snapshot(); !errors.Is(err, output.ErrNoBackbuffer) {
		t.Errorf("Snapshot() error = %v, want ErrNoBackbuffer", err)
	}

	s.EnsureBackbuffer()
	if !ctx.HasBackbuffer() {
		t.Fatal("backbuffer not restored")
	}
	if got := ctx.DefaultFramebufferSize(); got != (geom.Size{Width: 4, Height: 4}) {
		t.Errorf("restored size = %v", got)
	}
}

func TestOffscreenSwapBuffers(t *testing.T) {
	var handled []*output.Frame
	s, _ := newSurface(t, output.WithSwapHandler(func(f *output.Frame) { handled = append(handled, f) }))

	if _, ok := s.LastFrame(); ok {
		t.Error("LastFrame() before any swap")
	}
	frame := &output.Frame{
		Metadata:      output.FrameMetadata{FrameID: 3, DeviceScaleFactor: 1},
		Size:          geom.Size{Width: 4, Height: 4},
		SubBufferRect: geom.XYWH(1, 1, 2, 2),
		Overlays:      []output.OverlayPlane{{ZOrder: 1, Texture: 7}},
	}
	if err := s.SwapBuffers(frame); err != nil {
		t.Fatalf("SwapBuffers() error = %v", err)
	}
	got, ok := s.LastFrame()
	if !ok || got.Metadata != frame.Metadata || got.Size != frame.Size || got.SubBufferRect != frame.SubBufferRect {
		t.Errorf("LastFrame() = %+v, %v", got, ok)
	}
	frame.Overlays[0].Texture = 9
	if len(got.Overlays) != 1 || got.Overlays[0].Texture != 7 {
		t.Errorf("LastFrame().Overlays = %+v, want a copy of the swapped planes", got.Overlays)
	}
	if s.SwapCount() != 1 || len(handled) != 1 {
		t.Errorf("SwapCount() = %d, handler calls = %d", s.SwapCount(), len(handled))
	}
}

func TestOffscreenCapabilities(t *testing.T) {
	s, _ := newSurface(t, output.WithPartialSwap(true), output.WithExternalStencilTest(), output.WithOverlayPlane(), output.WithOverlayPlanes(2))
	caps := s.Capabilities()
	if !caps.PartialSwap || caps.FlippedOutput || caps.MaxOverlayPlanes != 2 {
		t.Errorf("Capabilities() = %+v", caps)
	}
	if !s.HasExternalStencilTest() || !s.IsDisplayedAsOverlayPlane() {
		t.Error("stencil or overlay option lost")
	}
}

func TestOffscreenSnapshotOrientation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []output.OffscreenOption
		wantRow int
	}{
		{"bottom-left origin", nil, 3},
		{"flipped output", []output.OffscreenOption{output.WithFlippedOutput()}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ctx := newSurface(t, tt.opts...)
			s.BindFramebuffer()
			ctx.Viewport(geom.XYWH(0, 0, 4, 4))
			ctx.Scissor(true, geom.XYWH(0, 0, 4, 1))
			ctx.Clear(gputypes.Color{R: 1, A: 1})

			img, err := s.Snapshot()
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			for y := range 4 {
				r := img.RGBAAt(0, y).R
				if want := y == tt.wantRow; (r == 255) != want {
					t.Errorf("row %d red = %d, want red only on row %d", y, r, tt.wantRow)
				}
			}
		})
	}
}

func TestOffscreenSnapshotSwizzles(t *testing.T) {
	ctx := soft.New(soft.WithSize(2, 2), soft.WithReadbackFormat(gpu.FormatBGRA8))
	s := output.NewOffscreen(ctx)
	defer s.Destroy()
	if err := s.Reshape(geom.Size{Width: 2, Height: 2}, 1); err != nil {
		t.Fatal(err)
	}
	s.BindFramebuffer()
	ctx.Clear(gputypes.Color{R: 1, A: 1})

	img, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if c := img.RGBAAt(1, 1); c.R != 255 || c.B != 0 {
		t.Errorf("pixel = %v, want red", c)
	}
}

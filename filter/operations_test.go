package filter

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/gputypes"
)

func TestOperationsToColorMatrix(t *testing.T) {
	tests := []struct {
		name string
		ops  Operations
		ok   bool
	}{
		{"empty", nil, false},
		{"single", Operations{NewColorOperation(Brightness, 0.5)}, true},
		{"chain", Operations{NewColorOperation(Saturate, 2), NewColorOperation(HueRotate, 45), NewMatrix(IdentityMatrix())}, true},
		{"blur", Operations{NewBlur(2)}, false},
		{"mixed", Operations{NewColorOperation(Invert, 1), NewBlur(2)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.ops.ToColorMatrix(); ok != tt.ok {
				t.Errorf("ToColorMatrix() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestOperationsPredicates(t *testing.T) {
	ops := Operations{NewColorOperation(Sepia, 1)}
	if ops.HasFilterThatMovesPixels() || ops.HasFilterThatAffectsOpacity() {
		t.Error("sepia neither moves pixels nor changes opacity")
	}
	ops = append(ops, NewBlur(1))
	if !ops.HasFilterThatMovesPixels() || !ops.HasFilterThatAffectsOpacity() {
		t.Error("blur moves pixels and changes opacity")
	}
	if !(Operations{NewColorOperation(Opacity, 0.5)}).HasFilterThatAffectsOpacity() {
		t.Error("opacity affects opacity")
	}
}

func TestOperationsExpandRect(t *testing.T) {
	ops := Operations{NewBlur(2), NewDropShadow(geom.Point{X: 10, Y: 0}, 0, gputypes.Color{A: 1})}
	got := ops.ExpandRect(geom.XYWH(0, 0, 100, 100), 1)
	// Blur spreads 6px everywhere, the shadow adds 10px to the right.
	want := geom.XYWH(-6, -6, 122, 112)
	if got != want {
		t.Errorf("ExpandRect() = %v, want %v", got, want)
	}
}

func TestParseType(t *testing.T) {
	for _, ty := range []Type{Grayscale, HueRotate, DropShadow, Zoom} {
		got, ok := ParseType(ty.String())
		if !ok || got != ty {
			t.Errorf("ParseType(%q) = %v, %v", ty.String(), got, ok)
		}
	}
	if _, ok := ParseType("nope"); ok {
		t.Error("unknown name should not parse")
	}
}

func TestApplyBlurSpreads(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 9, 9))
	src.SetRGBA(4, 4, color.RGBA{255, 255, 255, 255})

	out := Apply(Operations{NewBlur(1)}, src, 1)
	if out == nil {
		t.Fatal("Apply() returned nil")
	}
	if got, want := out.Bounds(), image.Rect(-3, -3, 12, 12); got != want {
		t.Errorf("bounds = %v, want %v", got, want)
	}
	center := out.RGBAAt(4, 4).A
	side := out.RGBAAt(5, 4).A
	if center == 0 || center == 255 {
		t.Errorf("center alpha = %d, want partially spread", center)
	}
	if side == 0 || side >= center {
		t.Errorf("neighbor alpha = %d, want in (0, %d)", side, center)
	}
}

func TestApplyDropShadow(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := range 2 {
		for x := range 2 {
			src.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}
	ops := Operations{NewDropShadow(geom.Point{X: 4, Y: 4}, 0, gputypes.Color{R: 1, A: 1})}
	out := Apply(ops, src, 1)

	if got, want := out.Bounds(), image.Rect(0, 0, 14, 14); got != want {
		t.Fatalf("bounds = %v, want %v", got, want)
	}
	if got := out.RGBAAt(4, 4); got != (color.RGBA{255, 0, 0, 255}) {
		t.Errorf("shadow pixel = %v, want red", got)
	}
	if got := out.RGBAAt(0, 0); got != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("source pixel = %v, want black", got)
	}
	if got := out.RGBAAt(8, 8); got.A != 0 {
		t.Errorf("empty pixel = %v, want transparent", got)
	}
}

func TestApplyNil(t *testing.T) {
	if Apply(Operations{NewBlur(1)}, nil, 1) != nil {
		t.Error("nil source should produce nil")
	}
}

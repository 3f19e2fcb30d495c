package gpu

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestProgramKeyValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     ProgramKey
		wantErr bool
	}{
		{"solid color", ProgramKey{Kind: ProgramSolidColor}, false},
		{"solid color AA", ProgramKey{Kind: ProgramSolidColor, AA: true}, false},
		{"render pass full", ProgramKey{Kind: ProgramRenderPass, AA: true, Mask: true, ColorMatrix: true}, false},
		{"render pass backdrop", ProgramKey{Kind: ProgramRenderPass, Backdrop: true, BlendMode: BlendMultiply}, false},
		{"blend without backdrop", ProgramKey{Kind: ProgramRenderPass, BlendMode: BlendMultiply}, true},
		{"invalid kind", ProgramKey{}, true},
		{"mask on tile", ProgramKey{Kind: ProgramTile, Mask: true}, true},
		{"swizzle on texture", ProgramKey{Kind: ProgramTexture, Swizzle: true}, true},
		{"premultiplied texture", ProgramKey{Kind: ProgramTexture, Premultiplied: true, Background: true}, false},
		{"alpha on solid", ProgramKey{Kind: ProgramSolidColor, Alpha: true}, true},
		{"yuv alpha", ProgramKey{Kind: ProgramYUVVideo, Alpha: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgramKeyString(t *testing.T) {
	key := ProgramKey{Kind: ProgramRenderPass, AA: true, Mask: true, Backdrop: true, BlendMode: BlendScreen}
	if got, want := key.String(), "RenderPass+AA+Mask+Backdrop+Screen"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := (ProgramKey{Kind: ProgramTile}).String(); got != "Tile" {
		t.Errorf("String() = %q, want Tile", got)
	}
}

func TestBlendModeFixedFunction(t *testing.T) {
	for m := BlendSrcOver; m < blendModeCount; m++ {
		_, ok := m.FixedFunction()
		want := m == BlendSrcOver || m == BlendScreen
		if ok != want {
			t.Errorf("%s.FixedFunction() ok = %v, want %v", m, ok, want)
		}
	}

	state, _ := BlendScreen.FixedFunction()
	if state.Color.SrcFactor != gputypes.BlendFactorOneMinusDst || state.Color.DstFactor != gputypes.BlendFactorOne {
		t.Errorf("Screen color component = %+v", state.Color)
	}
}

func TestParseBlendMode(t *testing.T) {
	for m := BlendSrcOver; m < blendModeCount; m++ {
		got, ok := ParseBlendMode(m.String())
		if !ok || got != m {
			t.Errorf("ParseBlendMode(%q) = %v, %v", m.String(), got, ok)
		}
	}
	if _, ok := ParseBlendMode("Plus"); ok {
		t.Error("ParseBlendMode(Plus) should fail")
	}
	if BlendHue.IsSeparable() || !BlendMultiply.IsSeparable() {
		t.Error("IsSeparable misclassifies modes")
	}
}

func TestSwizzleRB(t *testing.T) {
	pix := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	SwizzleRB(pix)
	want := []byte{3, 2, 1, 4, 7, 6, 5, 8}
	for i := range pix {
		if pix[i] != want[i] {
			t.Fatalf("SwizzleRB = %v, want %v", pix, want)
		}
	}
	if FormatFromTexture(FormatBGRA8.TextureFormat()) != FormatBGRA8 {
		t.Error("FormatFromTexture round trip failed")
	}
}

package shader

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

func TestSourceEntryPoints(t *testing.T) {
	keys := []gpu.ProgramKey{
		{Kind: gpu.ProgramSolidColor},
		{Kind: gpu.ProgramSolidColor, AA: true},
		{Kind: gpu.ProgramTile, Swizzle: true},
		{Kind: gpu.ProgramTexture, Premultiplied: true, Background: true},
		{Kind: gpu.ProgramRenderPass, AA: true, Mask: true, ColorMatrix: true},
		{Kind: gpu.ProgramRenderPass, Backdrop: true, BlendMode: gpu.BlendHue},
		{Kind: gpu.ProgramYUVVideo, Alpha: true},
		{Kind: gpu.ProgramStreamVideo},
		{Kind: gpu.ProgramDebugBorder},
	}
	for _, key := range keys {
		t.Run(key.String(), func(t *testing.T) {
			src, err := Source(key)
			if err != nil {
				t.Fatalf("Source() error = %v", err)
			}
			for _, want := range []string{
				"@vertex", "@fragment", "fn " + VertexEntry, "fn " + FragmentEntry,
				"@group(0) @binding(0) var<uniform> u: Uniforms;",
				"quads: array<QuadData, 8>",
			} {
				if !strings.Contains(src, want) {
					t.Errorf("source missing %q", want)
				}
			}
		})
	}
}

func TestSourceVariants(t *testing.T) {
	tests := []struct {
		name    string
		key     gpu.ProgramKey
		want    []string
		notWant []string
	}{
		{
			name:    "plain render pass",
			key:     gpu.ProgramKey{Kind: gpu.ProgramRenderPass},
			want:    []string{"textureSample(source_tex"},
			notWant: []string{"mask_tex, aux_sampler", "u.color_matrix", "fwidth", "composite("},
		},
		{
			name: "masked color matrix",
			key:  gpu.ProgramKey{Kind: gpu.ProgramRenderPass, Mask: true, ColorMatrix: true},
			want: []string{"textureSample(mask_tex, aux_sampler, mask_uv)", "u.color_matrix * straight", "c = c * mask;"},
		},
		{
			name: "antialiased",
			key:  gpu.ProgramKey{Kind: gpu.ProgramSolidColor, AA: true},
			want: []string{"fwidth(in.local)", "c = c * coverage;"},
		},
		{
			name: "backdrop multiply",
			key:  gpu.ProgramKey{Kind: gpu.ProgramRenderPass, Backdrop: true, BlendMode: gpu.BlendMultiply},
			want: []string{"fn blend_fn", "return s * d;", "textureSample(backdrop_tex", "c = composite(c, b);"},
		},
		{
			name:    "backdrop src over",
			key:     gpu.ProgramKey{Kind: gpu.ProgramRenderPass, Backdrop: true},
			want:    []string{"return src + dst * (1.0 - src.a);"},
			notWant: []string{"fn blend_fn"},
		},
		{
			name: "non separable",
			key:  gpu.ProgramKey{Kind: gpu.ProgramRenderPass, Backdrop: true, BlendMode: gpu.BlendLuminosity},
			want: []string{"fn set_lum", "fn set_sat", "return set_lum(d, lum(s));"},
		},
		{
			name:    "straight alpha texture",
			key:     gpu.ProgramKey{Kind: gpu.ProgramTexture},
			want:    []string{"c = vec4<f32>(c.rgb * c.a, c.a);", "c = c * in.opacity;"},
			notWant: []string{"u.color * (1.0 - c.a)"},
		},
		{
			name:    "yuv without alpha",
			key:     gpu.ProgramKey{Kind: gpu.ProgramYUVVideo},
			want:    []string{"let a = 1.0;"},
			notWant: []string{"alpha_tex, source_sampler"},
		},
		{
			name: "debug border",
			key:  gpu.ProgramKey{Kind: gpu.ProgramDebugBorder},
			want: []string{"discard;", "u.params.y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Source(tt.key)
			if err != nil {
				t.Fatalf("Source() error = %v", err)
			}
			for _, s := range tt.want {
				if !strings.Contains(src, s) {
					t.Errorf("source missing %q", s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(src, s) {
					t.Errorf("source unexpectedly contains %q", s)
				}
			}
		})
	}
}

func TestSourceRejectsInvalidKey(t *testing.T) {
	if _, err := Source(gpu.ProgramKey{Kind: gpu.ProgramTile, Mask: true}); err == nil {
		t.Error("Source() should reject a masked tile program")
	}
}

func TestCompileDoesNotCacheFailures(t *testing.T) {
	before := CachedPrograms()
	if _, err := Compile(gpu.ProgramKey{Kind: gpu.ProgramTile, Mask: true}); err == nil {
		t.Fatal("Compile() should reject a masked tile program")
	}
	if got := CachedPrograms(); got != before {
		t.Errorf("CachedPrograms() = %d, want %d", got, before)
	}
}

func readFloat(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

func TestPackUniforms(t *testing.T) {
	call := &gpu.DrawCall{
		Program: gpu.ProgramKey{Kind: gpu.ProgramSolidColor},
		Quads: []gpu.QuadGeometry{
			{Matrix: geom.Identity(), TexRect: gpu.UnitTexRect, VertexOpacity: gpu.OpaqueVertices},
			{Matrix: geom.Translate(5, 7, 0), TexRect: [4]float32{0.5, 0.25, 0.5, 0.5}},
		},
		Uniforms: gpu.Uniforms{Color: [4]float32{0.1, 0.2, 0.3, 0.4}, Alpha: 0.75, BorderWidth: 2},
	}
	buf := PackUniforms(geom.Size{Width: 640, Height: 480}, call)

	if len(buf) != UniformSize || UniformSize != 992 {
		t.Fatalf("len = %d, UniformSize = %d, want 992", len(buf), UniformSize)
	}
	checks := []struct {
		name string
		off  int
		want float32
	}{
		{"viewport width", offViewport, 640},
		{"viewport height", offViewport + 4, 480},
		{"color alpha", offColor + 12, 0.4},
		{"alpha", offParams, 0.75},
		{"border width", offParams + 4, 2},
		{"quad 0 m00", offQuads, 1},
		{"quad 0 opacity", offQuads + 80, 1},
		{"quad 1 translate x", offQuads + quadStride + 48, 5},
		{"quad 1 translate y", offQuads + quadStride + 52, 7},
		{"quad 1 tex rect u", offQuads + quadStride + 64, 0.5},
		{"quad 1 opacity", offQuads + quadStride + 80, 0},
	}
	for _, c := range checks {
		if got := readFloat(buf, c.off); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

package shader

import (
	"fmt"

	"github.com/gogpu/compositor/gpu"
)

// separableBodies hold the per-channel W3C blend function B(s, d) on
// unpremultiplied vec3 colors.
var separableBodies = map[gpu.BlendMode]string{
	gpu.BlendMultiply: "return s * d;",
	gpu.BlendScreen:   "return s + d - s * d;",
	gpu.BlendOverlay:  "return hard_light(d, s);",
	gpu.BlendDarken:   "return min(s, d);",
	gpu.BlendLighten:  "return max(s, d);",
	gpu.BlendColorDodge: `let dodge = min(vec3<f32>(1.0), d / max(vec3<f32>(1.0) - s, vec3<f32>(1e-6)));
    return select(dodge, vec3<f32>(0.0), d <= vec3<f32>(0.0));`,
	gpu.BlendColorBurn: `let burn = vec3<f32>(1.0) - min(vec3<f32>(1.0), (vec3<f32>(1.0) - d) / max(s, vec3<f32>(1e-6)));
    return select(burn, vec3<f32>(1.0), d >= vec3<f32>(1.0));`,
	gpu.BlendHardLight: "return hard_light(s, d);",
	gpu.BlendSoftLight: `let dx = select(sqrt(d), ((16.0 * d - 12.0) * d + 4.0) * d, d <= vec3<f32>(0.25));
    let low = d - (vec3<f32>(1.0) - 2.0 * s) * d * (vec3<f32>(1.0) - d);
    let high = d + (2.0 * s - vec3<f32>(1.0)) * (dx - d);
    return select(high, low, s <= vec3<f32>(0.5));`,
	gpu.BlendDifference: "return abs(s - d);",
	gpu.BlendExclusion:  "return s + d - 2.0 * s * d;",
	gpu.BlendHue:        "return set_lum(set_sat(s, sat(d)), lum(d));",
	gpu.BlendSaturation: "return set_lum(set_sat(d, sat(s)), lum(d));",
	gpu.BlendColor:      "return set_lum(s, lum(d));",
	gpu.BlendLuminosity: "return set_lum(d, lum(s));",
}

const hardLightSource = `
fn hard_light(s: vec3<f32>, d: vec3<f32>) -> vec3<f32> {
    let low = 2.0 * s * d;
    let high = vec3<f32>(1.0) - 2.0 * (vec3<f32>(1.0) - s) * (vec3<f32>(1.0) - d);
    return select(high, low, s <= vec3<f32>(0.5));
}
`

const nonSeparableSource = `
fn lum(c: vec3<f32>) -> f32 {
    return dot(c, vec3<f32>(0.30, 0.59, 0.11));
}

fn sat(c: vec3<f32>) -> f32 {
    return max(max(c.r, c.g), c.b) - min(min(c.r, c.g), c.b);
}

fn clip_color(c: vec3<f32>) -> vec3<f32> {
    let l = lum(c);
    let n = min(min(c.r, c.g), c.b);
    let x = max(max(c.r, c.g), c.b);
    var r = c;
    r = select(r, vec3<f32>(l) + (r - vec3<f32>(l)) * l / (l - n), n < 0.0);
    r = select(r, vec3<f32>(l) + (r - vec3<f32>(l)) * (1.0 - l) / (x - l), x > 1.0);
    return r;
}

fn set_lum(c: vec3<f32>, l: f32) -> vec3<f32> {
    return clip_color(c + vec3<f32>(l - lum(c)));
}

fn set_sat(c: vec3<f32>, s: f32) -> vec3<f32> {
    let lo = min(min(c.r, c.g), c.b);
    let hi = max(max(c.r, c.g), c.b);
    let spread = hi - lo;
    let scaled = select(vec3<f32>(0.0), (c - vec3<f32>(lo)) * s / spread, spread > 0.0);
    return scaled;
}
`

// blendSource returns the WGSL helpers and the composite function that
// blends a premultiplied source over a premultiplied backdrop with mode.
func blendSource(mode gpu.BlendMode) string {
	if mode == gpu.BlendSrcOver {
		return `
fn composite(src: vec4<f32>, dst: vec4<f32>) -> vec4<f32> {
    return src + dst * (1.0 - src.a);
}
`
	}

	body, ok := separableBodies[mode]
	if !ok {
		body = "return s;"
	}
	helpers := hardLightSource
	if !mode.IsSeparable() {
		helpers = nonSeparableSource
	}
	return helpers + fmt.Sprintf(`
// %s
fn blend_fn(s: vec3<f32>, d: vec3<f32>) -> vec3<f32> {
    %s
}

fn composite(src: vec4<f32>, dst: vec4<f32>) -> vec4<f32> {
    let sa = src.a;
    let da = dst.a;
    let s = src.rgb / max(sa, 1e-6);
    let d = dst.rgb / max(da, 1e-6);
    let rgb = src.rgb * (1.0 - da) + dst.rgb * (1.0 - sa) + sa * da * blend_fn(s, d);
    return vec4<f32>(clamp(rgb, vec3<f32>(0.0), vec3<f32>(1.0)), sa + da - sa * da);
}
`, mode, body)
}

package soft

import (
	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/gpu"
)

// blendFixed applies a fixed-function blend state to premultiplied colors.
func blendFixed(state gputypes.BlendState, src, dst [4]float32) [4]float32 {
	var out [4]float32
	for i := range 3 {
		out[i] = blendComponent(state.Color, src, dst, i)
	}
	out[3] = blendComponent(state.Alpha, src, dst, 3)
	return out
}

func blendComponent(c gputypes.BlendComponent, src, dst [4]float32, ch int) float32 {
	s := src[ch] * blendFactor(c.SrcFactor, src, dst, ch)
	d := dst[ch] * blendFactor(c.DstFactor, src, dst, ch)
	switch c.Operation {
	case gputypes.BlendOperationSubtract:
		return clamp01(s - d)
	case gputypes.BlendOperationReverseSubtract:
		return clamp01(d - s)
	case gputypes.BlendOperationMin:
		return math32.Min(src[ch], dst[ch])
	case gputypes.BlendOperationMax:
		return math32.Max(src[ch], dst[ch])
	default:
		return clamp01(s + d)
	}
}

func blendFactor(f gputypes.BlendFactor, src, dst [4]float32, ch int) float32 {
	switch f {
	case gputypes.BlendFactorZero:
		return 0
	case gputypes.BlendFactorOne:
		return 1
	case gputypes.BlendFactorSrc:
		return src[ch]
	case gputypes.BlendFactorOneMinusSrc:
		return 1 - src[ch]
	case gputypes.BlendFactorSrcAlpha:
		return src[3]
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return 1 - src[3]
	case gputypes.BlendFactorDst:
		return dst[ch]
	case gputypes.BlendFactorOneMinusDst:
		return 1 - dst[ch]
	case gputypes.BlendFactorDstAlpha:
		return dst[3]
	case gputypes.BlendFactorOneMinusDstAlpha:
		return 1 - dst[3]
	case gputypes.BlendFactorSrcAlphaSaturated:
		if ch == 3 {
			return 1
		}
		return math32.Min(src[3], 1-dst[3])
	default:
		return 1
	}
}

// blendAdvanced composites premultiplied src over dst with a W3C blend mode:
//
//	co = cs*(1-ab) + cb*(1-as) + as*ab*B(Cb, Cs)
//	ao = as + ab - as*ab
func blendAdvanced(mode gpu.BlendMode, src, dst [4]float32) [4]float32 {
	sa, da := src[3], dst[3]
	if sa == 0 {
		return dst
	}
	if da == 0 || mode == gpu.BlendSrcOver {
		return [4]float32{
			src[0] + dst[0]*(1-sa),
			src[1] + dst[1]*(1-sa),
			src[2] + dst[2]*(1-sa),
			sa + da*(1-sa),
		}
	}

	// Unpremultiplied inputs to the blend function.
	sr, sg, sb := src[0]/sa, src[1]/sa, src[2]/sa
	dr, dg, db := dst[0]/da, dst[1]/da, dst[2]/da

	var br, bg, bb float32
	if mode.IsSeparable() {
		f := separableFunc(mode)
		br, bg, bb = f(sr, dr), f(sg, dg), f(sb, db)
	} else {
		br, bg, bb = nonSeparable(mode, sr, sg, sb, dr, dg, db)
	}

	both := sa * da
	return [4]float32{
		clamp01(src[0]*(1-da) + dst[0]*(1-sa) + both*br),
		clamp01(src[1]*(1-da) + dst[1]*(1-sa) + both*bg),
		clamp01(src[2]*(1-da) + dst[2]*(1-sa) + both*bb),
		sa + da - both,
	}
}

// separableFunc returns B(Cs, Cb) for a separable mode on unpremultiplied
// channels in [0,1].
func separableFunc(mode gpu.BlendMode) func(s, d float32) float32 {
	switch mode {
	case gpu.BlendMultiply:
		return func(s, d float32) float32 { return s * d }
	case gpu.BlendScreen:
		return func(s, d float32) float32 { return s + d - s*d }
	case gpu.BlendOverlay:
		return func(s, d float32) float32 { return hardLight(d, s) }
	case gpu.BlendDarken:
		return math32.Min
	case gpu.BlendLighten:
		return math32.Max
	case gpu.BlendColorDodge:
		return func(s, d float32) float32 {
			if d == 0 {
				return 0
			}
			if s >= 1 {
				return 1
			}
			return math32.Min(1, d/(1-s))
		}
	case gpu.BlendColorBurn:
		return func(s, d float32) float32 {
			if d >= 1 {
				return 1
			}
			if s <= 0 {
				return 0
			}
			return 1 - math32.Min(1, (1-d)/s)
		}
	case gpu.BlendHardLight:
		return hardLight
	case gpu.BlendSoftLight:
		return func(s, d float32) float32 {
			if s <= 0.5 {
				return d - (1-2*s)*d*(1-d)
			}
			var dx float32
			if d <= 0.25 {
				dx = ((16*d-12)*d + 4) * d
			} else {
				dx = math32.Sqrt(d)
			}
			return d + (2*s-1)*(dx-d)
		}
	case gpu.BlendDifference:
		return func(s, d float32) float32 { return math32.Abs(s - d) }
	case gpu.BlendExclusion:
		return func(s, d float32) float32 { return s + d - 2*s*d }
	default:
		return func(s, _ float32) float32 { return s }
	}
}

func hardLight(s, d float32) float32 {
	if s <= 0.5 {
		return 2 * s * d
	}
	return 1 - 2*(1-s)*(1-d)
}

func nonSeparable(mode gpu.BlendMode, sr, sg, sb, dr, dg, db float32) (float32, float32, float32) {
	switch mode {
	case gpu.BlendHue:
		r, g, b := setSat(sr, sg, sb, sat(dr, dg, db))
		return setLum(r, g, b, lum(dr, dg, db))
	case gpu.BlendSaturation:
		r, g, b := setSat(dr, dg, db, sat(sr, sg, sb))
		return setLum(r, g, b, lum(dr, dg, db))
	case gpu.BlendColor:
		return setLum(sr, sg, sb, lum(dr, dg, db))
	case gpu.BlendLuminosity:
		return setLum(dr, dg, db, lum(sr, sg, sb))
	default:
		return sr, sg, sb
	}
}

func lum(r, g, b float32) float32 {
	return 0.30*r + 0.59*g + 0.11*b
}

func sat(r, g, b float32) float32 {
	return max(r, g, b) - min(r, g, b)
}

func clipColor(r, g, b float32) (float32, float32, float32) {
	l := lum(r, g, b)
	n := min(r, g, b)
	x := max(r, g, b)
	if n < 0 {
		r = l + (r-l)*l/(l-n)
		g = l + (g-l)*l/(l-n)
		b = l + (b-l)*l/(l-n)
	}
	if x > 1 {
		r = l + (r-l)*(1-l)/(x-l)
		g = l + (g-l)*(1-l)/(x-l)
		b = l + (b-l)*(1-l)/(x-l)
	}
	return r, g, b
}

func setLum(r, g, b, l float32) (float32, float32, float32) {
	d := l - lum(r, g, b)
	return clipColor(r+d, g+d, b+d)
}

func setSat(r, g, b, s float32) (float32, float32, float32) {
	c := [3]*float32{&r, &g, &b}
	// Sort pointers so *c[0] <= *c[1] <= *c[2].
	if *c[0] > *c[1] {
		c[0], c[1] = c[1], c[0]
	}
	if *c[1] > *c[2] {
		c[1], c[2] = c[2], c[1]
	}
	if *c[0] > *c[1] {
		c[0], c[1] = c[1], c[0]
	}
	lo, mid, hi := c[0], c[1], c[2]
	if *hi > *lo {
		*mid = (*mid - *lo) * s / (*hi - *lo)
		*hi = s
	} else {
		*mid, *hi = 0, 0
	}
	*lo = 0
	return r, g, b
}

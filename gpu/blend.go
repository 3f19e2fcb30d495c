package gpu

import "github.com/gogpu/gputypes"

// BlendMode is a compositing operator between a source layer and its
// backdrop: Porter-Duff source-over plus the W3C Compositing and Blending
// Level 1 separable and non-separable modes.
type BlendMode uint8

// Blend modes.
const (
	BlendSrcOver BlendMode = iota
	BlendScreen
	BlendOverlay
	BlendDarken
	BlendLighten
	BlendColorDodge
	BlendColorBurn
	BlendHardLight
	BlendSoftLight
	BlendDifference
	BlendExclusion
	BlendMultiply
	BlendHue
	BlendSaturation
	BlendColor
	BlendLuminosity

	blendModeCount
)

var blendModeNames = [...]string{
	BlendSrcOver:    "SrcOver",
	BlendScreen:     "Screen",
	BlendOverlay:    "Overlay",
	BlendDarken:     "Darken",
	BlendLighten:    "Lighten",
	BlendColorDodge: "ColorDodge",
	BlendColorBurn:  "ColorBurn",
	BlendHardLight:  "HardLight",
	BlendSoftLight:  "SoftLight",
	BlendDifference: "Difference",
	BlendExclusion:  "Exclusion",
	BlendMultiply:   "Multiply",
	BlendHue:        "Hue",
	BlendSaturation: "Saturation",
	BlendColor:      "Color",
	BlendLuminosity: "Luminosity",
}

// String returns the name of the blend mode.
func (m BlendMode) String() string {
	if m < blendModeCount {
		return blendModeNames[m]
	}
	return "Unknown"
}

// ParseBlendMode returns the blend mode with the given name.
func ParseBlendMode(name string) (BlendMode, bool) {
	for i, n := range blendModeNames {
		if n == name {
			return BlendMode(i), true
		}
	}
	return BlendSrcOver, false
}

// IsSeparable reports whether the mode blends each channel independently.
func (m BlendMode) IsSeparable() bool {
	return m < BlendHue
}

// FixedFunction returns the fixed-function blend state implementing m on
// premultiplied colors. The boolean is false when m can only be implemented
// by blending in the fragment shader against a copy of the backdrop.
func (m BlendMode) FixedFunction() (gputypes.BlendState, bool) {
	switch m {
	case BlendSrcOver:
		return gputypes.BlendStatePremultiplied(), true
	case BlendScreen:
		return gputypes.BlendState{
			Color: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOneMinusDst,
				DstFactor: gputypes.BlendFactorOne,
				Operation: gputypes.BlendOperationAdd,
			},
			Alpha: gputypes.BlendComponent{
				SrcFactor: gputypes.BlendFactorOne,
				DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
				Operation: gputypes.BlendOperationAdd,
			},
		}, true
	default:
		return gputypes.BlendState{}, false
	}
}

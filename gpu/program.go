package gpu

import (
	"fmt"
	"strings"
)

// ProgramKind selects the shader family of a program.
type ProgramKind uint8

// Program kinds, one per drawable material.
const (
	ProgramInvalid ProgramKind = iota
	ProgramSolidColor
	ProgramTile
	ProgramRenderPass
	ProgramTexture
	ProgramYUVVideo
	ProgramStreamVideo
	ProgramDebugBorder
)

// String returns the name of the program kind.
func (k ProgramKind) String() string {
	switch k {
	case ProgramSolidColor:
		return "SolidColor"
	case ProgramTile:
		return "Tile"
	case ProgramRenderPass:
		return "RenderPass"
	case ProgramTexture:
		return "Texture"
	case ProgramYUVVideo:
		return "YUVVideo"
	case ProgramStreamVideo:
		return "StreamVideo"
	case ProgramDebugBorder:
		return "DebugBorder"
	default:
		return "Invalid"
	}
}

// ProgramKey identifies one compiled shader program variant. Keys are
// comparable and used directly as cache keys.
type ProgramKey struct {
	Kind ProgramKind

	// AA enables edge antialiasing of the quad outline.
	AA bool

	// Mask multiplies the source by the alpha of texture unit 1.
	// Render pass programs only.
	Mask bool

	// ColorMatrix applies Uniforms.ColorMatrix to unpremultiplied source
	// color. Render pass programs only.
	ColorMatrix bool

	// Backdrop samples texture unit 2 as the pixels behind the quad and
	// blends against them with BlendMode in the shader. Render pass
	// programs only.
	Backdrop  bool
	BlendMode BlendMode

	// Swizzle swaps red and blue of the sampled texel. Tile programs only.
	Swizzle bool

	// Premultiplied marks texture sources that already carry premultiplied
	// alpha. Texture programs only.
	Premultiplied bool

	// Background composites the texel over Uniforms.Color.
	// Texture programs only.
	Background bool

	// Alpha samples an alpha plane from texture unit 3. YUV programs only.
	Alpha bool
}

// Validate reports an error when the key combines flags that do not apply
// to its kind.
func (k ProgramKey) Validate() error {
	if k.Kind == ProgramInvalid || k.Kind > ProgramDebugBorder {
		return fmt.Errorf("gpu: invalid program kind %d", k.Kind)
	}
	if k.Kind != ProgramRenderPass && (k.Mask || k.ColorMatrix || k.Backdrop || k.BlendMode != BlendSrcOver) {
		return fmt.Errorf("gpu: %s program cannot use render pass flags", k.Kind)
	}
	if !k.Backdrop && k.BlendMode != BlendSrcOver {
		return fmt.Errorf("gpu: blend mode %s requires a backdrop", k.BlendMode)
	}
	if k.Kind != ProgramTile && k.Swizzle {
		return fmt.Errorf("gpu: %s program cannot swizzle", k.Kind)
	}
	if k.Kind != ProgramTexture && (k.Premultiplied || k.Background) {
		return fmt.Errorf("gpu: %s program cannot use texture flags", k.Kind)
	}
	if k.Kind != ProgramYUVVideo && k.Alpha {
		return fmt.Errorf("gpu: %s program cannot sample an alpha plane", k.Kind)
	}
	return nil
}

// String returns a compact description such as "RenderPass+AA+Mask".
func (k ProgramKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Kind.String())
	flag := func(on bool, name string) {
		if on {
			sb.WriteByte('+')
			sb.WriteString(name)
		}
	}
	flag(k.AA, "AA")
	flag(k.Mask, "Mask")
	flag(k.ColorMatrix, "ColorMatrix")
	flag(k.Backdrop, "Backdrop")
	flag(k.BlendMode != BlendSrcOver, k.BlendMode.String())
	flag(k.Swizzle, "Swizzle")
	flag(k.Premultiplied, "Premultiplied")
	flag(k.Background, "Background")
	flag(k.Alpha, "Alpha")
	return sb.String()
}

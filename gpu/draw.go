package gpu

import "github.com/gogpu/compositor/geom"

// MaxQuadsPerDraw is the largest number of quads a single DrawCall carries.
// It bounds the per-quad uniform array of the shaders.
const MaxQuadsPerDraw = 8

// Texture units bound by a DrawCall.
const (
	UnitSource   = iota // main texture, or the Y plane
	UnitMask            // render pass mask, or the U plane
	UnitBackdrop        // backdrop copy, or the V plane
	UnitAlpha           // YUV alpha plane
	MaxTextureUnits
)

// QuadGeometry places one quad of a draw call.
//
// Quad-local coordinates span the unit square with (0,0) at the quad's
// top-left corner. Matrix maps local (u, v, 0, 1) to homogeneous window
// coordinates of the bound framebuffer.
type QuadGeometry struct {
	Matrix geom.Transform

	// TexRect maps local coordinates to texture coordinates:
	// uv = TexRect[0:2] + local * TexRect[2:4].
	TexRect [4]float32

	// VertexOpacity holds per-corner opacity for the top-left, top-right,
	// bottom-right and bottom-left corners, interpolated across the quad.
	VertexOpacity [4]float32
}

// UnitTexRect maps the quad onto the full texture.
var UnitTexRect = [4]float32{0, 0, 1, 1}

// OpaqueVertices is a VertexOpacity with every corner fully opaque.
var OpaqueVertices = [4]float32{1, 1, 1, 1}

// Uniforms are the per-draw shader parameters. Fields a program does not
// read are ignored.
type Uniforms struct {
	// Color is the premultiplied solid or border color, or the background
	// color of texture programs.
	Color [4]float32

	// Alpha scales the final fragment.
	Alpha float32

	// ColorMatrix is column-major and applied as M*c + ColorOffset to
	// unpremultiplied color in [0,1]. YUV programs use it as the YUV to RGB
	// conversion with the offset already folded in.
	ColorMatrix [16]float32
	ColorOffset [4]float32

	// MaskRect maps local coordinates to mask texture coordinates, in the
	// same layout as QuadGeometry.TexRect.
	MaskRect [4]float32

	// BackdropRect is the window-space x, y, width and height covered by the
	// backdrop texture.
	BackdropRect [4]float32

	// TexTransform is a column-major matrix applied to texture coordinates
	// by stream video programs.
	TexTransform [16]float32

	// BorderWidth is the debug border width in window pixels.
	BorderWidth float32
}

// DrawCall is one draw of up to MaxQuadsPerDraw quads with a single program.
type DrawCall struct {
	Program  ProgramKey
	Quads    []QuadGeometry
	Textures [MaxTextureUnits]TextureID
	Filters  [MaxTextureUnits]Filter
	Uniforms Uniforms

	// Clip restricts drawing to a convex window-space region. Nil draws the
	// full quads.
	Clip *geom.QuadF
}

// IdentityMatrix16 is the column-major 4x4 identity.
var IdentityMatrix16 = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

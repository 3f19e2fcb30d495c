package filter

import (
	"image"

	"github.com/chewxy/math32"
)

// ColorMatrix is a 4x5 color transformation in row-major order:
//
//	[R']   [m00 m01 m02 m03 m04]   [R]
//	[G'] = [m10 m11 m12 m13 m14] * [G]
//	[B']   [m20 m21 m22 m23 m24]   [B]
//	[A']   [m30 m31 m32 m33 m34]   [A]
//	                               [1]
//
// The matrix acts on unpremultiplied channels in [0, 255]; the fifth column
// is an offset in the same range.
type ColorMatrix [20]float32

// Rec. 709 luminance weights.
const (
	lumR = 0.2126
	lumG = 0.7152
	lumB = 0.0722
)

// IdentityMatrix returns the matrix that leaves colors unchanged.
func IdentityMatrix() ColorMatrix {
	return ColorMatrix{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// BrightnessMatrix scales RGB by amount (0 = black, 1 = unchanged).
func BrightnessMatrix(amount float32) ColorMatrix {
	return ColorMatrix{
		amount, 0, 0, 0, 0,
		0, amount, 0, 0, 0,
		0, 0, amount, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// ContrastMatrix scales RGB around mid-gray (0 = gray, 1 = unchanged).
func ContrastMatrix(amount float32) ColorMatrix {
	offset := 127.5 * (1 - amount)
	return ColorMatrix{
		amount, 0, 0, 0, offset,
		0, amount, 0, 0, offset,
		0, 0, amount, 0, offset,
		0, 0, 0, 1, 0,
	}
}

// SaturateMatrix blends between luminance (0) and the input (1).
// Values above 1 oversaturate.
func SaturateMatrix(amount float32) ColorMatrix {
	inv := 1 - amount
	return ColorMatrix{
		lumR*inv + amount, lumG * inv, lumB * inv, 0, 0,
		lumR * inv, lumG*inv + amount, lumB * inv, 0, 0,
		lumR * inv, lumG * inv, lumB*inv + amount, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// GrayscaleMatrix converts to grayscale by amount in [0, 1].
func GrayscaleMatrix(amount float32) ColorMatrix {
	return SaturateMatrix(1 - clamp01(amount))
}

// SepiaMatrix applies a sepia tone by amount in [0, 1].
func SepiaMatrix(amount float32) ColorMatrix {
	a := clamp01(amount)
	inv := 1 - a
	return ColorMatrix{
		0.393*a + inv, 0.769 * a, 0.189 * a, 0, 0,
		0.349 * a, 0.686*a + inv, 0.168 * a, 0, 0,
		0.272 * a, 0.534 * a, 0.131*a + inv, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// InvertMatrix inverts RGB by amount in [0, 1].
func InvertMatrix(amount float32) ColorMatrix {
	a := clamp01(amount)
	scale := 1 - 2*a
	offset := 255 * a
	return ColorMatrix{
		scale, 0, 0, 0, offset,
		0, scale, 0, 0, offset,
		0, 0, scale, 0, offset,
		0, 0, 0, 1, 0,
	}
}

// OpacityMatrix multiplies alpha by amount in [0, 1].
func OpacityMatrix(amount float32) ColorMatrix {
	m := IdentityMatrix()
	m[18] = clamp01(amount)
	return m
}

// HueRotateMatrix rotates hue by degrees.
func HueRotateMatrix(degrees float32) ColorMatrix {
	rad := degrees * math32.Pi / 180
	c := math32.Cos(rad)
	s := math32.Sin(rad)
	const (
		hr = 0.213
		hg = 0.715
		hb = 0.072
	)
	return ColorMatrix{
		hr + c*(1-hr) - s*hr, hg - c*hg - s*hg, hb - c*hb + s*(1-hb), 0, 0,
		hr - c*hr + s*0.143, hg + c*(1-hg) + s*0.140, hb - c*hb - s*0.283, 0, 0,
		hr - c*hr - s*(1-hr), hg - c*hg + s*hg, hb + c*(1-hb) + s*hb, 0, 0,
		0, 0, 0, 1, 0,
	}
}

// Then returns the matrix that applies m first and next second.
func (m ColorMatrix) Then(next ColorMatrix) ColorMatrix {
	var r ColorMatrix
	for row := range 4 {
		for col := range 4 {
			var sum float32
			for k := range 4 {
				sum += next[row*5+k] * m[k*5+col]
			}
			r[row*5+col] = sum
		}
		r[row*5+4] = next[row*5+0]*m[4] + next[row*5+1]*m[9] +
			next[row*5+2]*m[14] + next[row*5+3]*m[19] + next[row*5+4]
	}
	return r
}

// IsIdentity reports whether m leaves every color unchanged.
func (m ColorMatrix) IsIdentity() bool {
	return m == IdentityMatrix()
}

// AffectsAlpha reports whether the alpha row differs from the identity.
func (m ColorMatrix) AffectsAlpha() bool {
	return m[15] != 0 || m[16] != 0 || m[17] != 0 || m[18] != 1 || m[19] != 0
}

// Uniforms splits m into the shader layout: a column-major 4x4 matrix and
// an offset vector normalized to [0, 1].
func (m ColorMatrix) Uniforms() (matrix [16]float32, offset [4]float32) {
	for row := range 4 {
		for col := range 4 {
			matrix[col*4+row] = m[row*5+col]
		}
		offset[row] = m[row*5+4] / 255
	}
	return matrix, offset
}

// Apply transforms the premultiplied pixels of src inside bounds into dst.
// src and dst may be the same image.
func (m ColorMatrix) Apply(src, dst *image.RGBA, bounds image.Rectangle) {
	if src == nil || dst == nil {
		return
	}
	bounds = bounds.Intersect(src.Bounds()).Intersect(dst.Bounds())
	if bounds.Empty() {
		return
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			si := src.PixOffset(x, y)
			di := dst.PixOffset(x, y)

			pr := float32(src.Pix[si+0])
			pg := float32(src.Pix[si+1])
			pb := float32(src.Pix[si+2])
			a := float32(src.Pix[si+3])

			// Unpremultiply: the coefficients assume straight alpha.
			var r, g, b float32
			if a > 0 {
				r = pr * 255 / a
				g = pg * 255 / a
				b = pb * 255 / a
			}

			nr := m[0]*r + m[1]*g + m[2]*b + m[3]*a + m[4]
			ng := m[5]*r + m[6]*g + m[7]*b + m[8]*a + m[9]
			nb := m[10]*r + m[11]*g + m[12]*b + m[13]*a + m[14]
			na := clamp(m[15]*r+m[16]*g+m[17]*b+m[18]*a+m[19], 0, 255)

			f := na / 255
			dst.Pix[di+0] = toByte(clamp(nr, 0, 255) * f)
			dst.Pix[di+1] = toByte(clamp(ng, 0, 255) * f)
			dst.Pix[di+2] = toByte(clamp(nb, 0, 255) * f)
			dst.Pix[di+3] = toByte(na)
		}
	}
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}

func clamp01(v float32) float32 { return clamp(v, 0, 1) }

func toByte(v float32) uint8 {
	return uint8(clamp(math32.Round(v), 0, 255))
}

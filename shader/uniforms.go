package shader

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// Byte offsets of the Uniforms struct fields.
const (
	offViewport     = 0
	offColor        = 16
	offColorMatrix  = 32
	offColorOffset  = 96
	offMaskRect     = 112
	offBackdropRect = 128
	offTexTransform = 144
	offParams       = 208
	offQuads        = 224

	quadStride = 96
)

// UniformSize is the size in bytes of the uniform buffer of every program.
const UniformSize = offQuads + quadStride*gpu.MaxQuadsPerDraw

// PackUniforms lays out the uniforms of call for a framebuffer of the given
// size. The result is UniformSize bytes, little-endian.
func PackUniforms(framebuffer geom.Size, call *gpu.DrawCall) []byte {
	buf := make([]byte, UniformSize)
	u := &call.Uniforms

	putFloats(buf[offViewport:], float32(framebuffer.Width), float32(framebuffer.Height), 0, 0)
	putFloats(buf[offColor:], u.Color[:]...)
	putFloats(buf[offColorMatrix:], u.ColorMatrix[:]...)
	putFloats(buf[offColorOffset:], u.ColorOffset[:]...)
	putFloats(buf[offMaskRect:], u.MaskRect[:]...)
	putFloats(buf[offBackdropRect:], u.BackdropRect[:]...)
	putFloats(buf[offTexTransform:], u.TexTransform[:]...)
	putFloats(buf[offParams:], u.Alpha, u.BorderWidth, 0, 0)

	for i, q := range call.Quads {
		if i >= gpu.MaxQuadsPerDraw {
			break
		}
		base := offQuads + i*quadStride
		m := q.Matrix.Float32ColumnMajor()
		putFloats(buf[base:], m[:]...)
		putFloats(buf[base+64:], q.TexRect[:]...)
		putFloats(buf[base+80:], q.VertexOpacity[:]...)
	}
	return buf
}

func putFloats(dst []byte, v ...float32) {
	for i, f := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

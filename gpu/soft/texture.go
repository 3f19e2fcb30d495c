package soft

import (
	"github.com/chewxy/math32"

	"github.com/gogpu/compositor/geom"
	"github.com/gogpu/compositor/gpu"
)

// texture is premultiplied RGBA storage. The format only records the
// channel order clients upload and read in.
type texture struct {
	size   geom.Size
	format gpu.Format
	pix    []byte
}

func newTexture(size geom.Size, format gpu.Format) *texture {
	return &texture{size: size, format: format, pix: make([]byte, size.Area()*4)}
}

func (t *texture) offset(x, y int) int {
	return (y*t.size.Width + x) * 4
}

func (t *texture) at(x, y int) [4]float32 {
	o := t.offset(x, y)
	p := t.pix[o : o+4 : o+4]
	return [4]float32{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
}

func (t *texture) set(x, y int, c [4]float32) {
	o := t.offset(x, y)
	p := t.pix[o : o+4 : o+4]
	p[0], p[1], p[2], p[3] = toByte(c[0]), toByte(c[1]), toByte(c[2]), toByte(c[3])
}

func (t *texture) fill(r geom.Rect, c [4]float32) {
	b := [4]byte{toByte(c[0]), toByte(c[1]), toByte(c[2]), toByte(c[3])}
	for y := r.Y; y < r.Bottom(); y++ {
		for x := r.X; x < r.Right(); x++ {
			o := t.offset(x, y)
			copy(t.pix[o:o+4], b[:])
		}
	}
}

// copyFrom copies src rect of s to dst in t, clipped to both textures.
func (t *texture) copyFrom(s *texture, src geom.Rect, dst geom.Point) {
	src = src.Intersect(geom.RectFromSize(s.size))
	for y := range src.Height {
		ty := dst.Y + y
		if ty < 0 || ty >= t.size.Height {
			continue
		}
		for x := range src.Width {
			tx := dst.X + x
			if tx < 0 || tx >= t.size.Width {
				continue
			}
			so := s.offset(src.X+x, src.Y+y)
			to := t.offset(tx, ty)
			copy(t.pix[to:to+4], s.pix[so:so+4])
		}
	}
}

// read returns rect in increasing row order, in the given channel order.
func (t *texture) read(r geom.Rect, format gpu.Format) []byte {
	out := make([]byte, r.Width*r.Height*4)
	for y := range r.Height {
		sy := r.Y + y
		if sy < 0 || sy >= t.size.Height {
			continue
		}
		for x := range r.Width {
			sx := r.X + x
			if sx < 0 || sx >= t.size.Width {
				continue
			}
			so := t.offset(sx, sy)
			copy(out[(y*r.Width+x)*4:], t.pix[so:so+4])
		}
	}
	if format == gpu.FormatBGRA8 {
		gpu.SwizzleRB(out)
	}
	return out
}

// topDown returns the pixels with the last row first.
func (t *texture) topDown() []byte {
	out := make([]byte, len(t.pix))
	row := t.size.Width * 4
	for y := range t.size.Height {
		copy(out[y*row:(y+1)*row], t.pix[(t.size.Height-1-y)*row:(t.size.Height-y)*row])
	}
	return out
}

// sample reads the texture at normalized coordinates with clamp-to-edge
// addressing.
func (t *texture) sample(u, v float32, filter gpu.Filter) [4]float32 {
	w, h := float32(t.size.Width), float32(t.size.Height)
	if filter == gpu.FilterNearest {
		x := clampInt(int(math32.Floor(u*w)), 0, t.size.Width-1)
		y := clampInt(int(math32.Floor(v*h)), 0, t.size.Height-1)
		return t.at(x, y)
	}

	fx := u*w - 0.5
	fy := v*h - 0.5
	x0 := math32.Floor(fx)
	y0 := math32.Floor(fy)
	ax := fx - x0
	ay := fy - y0
	ix0 := clampInt(int(x0), 0, t.size.Width-1)
	iy0 := clampInt(int(y0), 0, t.size.Height-1)
	ix1 := clampInt(int(x0)+1, 0, t.size.Width-1)
	iy1 := clampInt(int(y0)+1, 0, t.size.Height-1)

	c00, c10 := t.at(ix0, iy0), t.at(ix1, iy0)
	c01, c11 := t.at(ix0, iy1), t.at(ix1, iy1)
	var out [4]float32
	for i := range out {
		top := c00[i] + (c10[i]-c00[i])*ax
		bottom := c01[i] + (c11[i]-c01[i])*ax
		out[i] = top + (bottom-top)*ay
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toByte(v float32) byte {
	return byte(clamp01(v)*255 + 0.5)
}

package filter

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/chewxy/math32"
)

// Apply runs the chain over src, a premultiplied image, and returns a new
// image covering src.Bounds() expanded by the chain's outsets. scale maps
// layer pixels to image pixels. Runs of color operations are folded into
// one matrix pass. A nil or empty src yields nil.
func Apply(ops Operations, src *image.RGBA, scale float64) *image.RGBA {
	if src == nil || src.Bounds().Empty() {
		return nil
	}

	top, right, bottom, left := ops.Outsets(scale)
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(b.Min.X-left, b.Min.Y-top, b.Max.X+right, b.Max.Y+bottom))
	draw.Draw(out, b, src, b.Min, draw.Src)

	var pending *ColorMatrix
	flush := func() {
		if pending != nil {
			pending.Apply(out, out, out.Bounds())
			pending = nil
		}
	}

	for _, op := range ops {
		if m, ok := op.ToColorMatrix(); ok {
			if pending == nil {
				pending = &m
			} else {
				folded := pending.Then(m)
				pending = &folded
			}
			continue
		}
		flush()
		switch op.Type {
		case Blur:
			out = gaussianBlur(out, float64(op.Amount)*scale)
		case DropShadow:
			out = dropShadow(out, op, scale)
		case Zoom:
			out = zoom(out, op.Amount, int(float64(op.Inset)*scale))
		}
	}
	flush()
	return out
}

// gaussianBlur blurs all four premultiplied channels with a separable
// gaussian. Edges are extended.
func gaussianBlur(src *image.RGBA, sigma float64) *image.RGBA {
	if sigma <= 0 {
		return src
	}
	k := gaussianKernel(sigma)
	opts := &convolution.Options{}
	res := convolution.Convolve(src, k, opts)
	return convolution.Convolve(res, k.Transposed(), opts)
}

// dropShadow draws src over a blurred, offset, colorized copy of its
// alpha.
func dropShadow(src *image.RGBA, op Operation, scale float64) *image.RGBA {
	b := src.Bounds()
	dx := int(math32.Round(float32(float64(op.Offset.X) * scale)))
	dy := int(math32.Round(float32(float64(op.Offset.Y) * scale)))

	shadow := image.NewRGBA(b)
	cr := float32(op.Color.R * op.Color.A)
	cg := float32(op.Color.G * op.Color.A)
	cb := float32(op.Color.B * op.Color.A)
	ca := float32(op.Color.A)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		sy := y - dy
		if sy < b.Min.Y || sy >= b.Max.Y {
			continue
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			sx := x - dx
			if sx < b.Min.X || sx >= b.Max.X {
				continue
			}
			a := float32(src.Pix[src.PixOffset(sx, sy)+3])
			i := shadow.PixOffset(x, y)
			shadow.Pix[i+0] = toByte(cr * a)
			shadow.Pix[i+1] = toByte(cg * a)
			shadow.Pix[i+2] = toByte(cb * a)
			shadow.Pix[i+3] = toByte(ca * a)
		}
	}
	shadow = gaussianBlur(shadow, float64(op.Amount)*scale)
	draw.Draw(shadow, b, src, b.Min, draw.Over)
	return shadow
}

// zoom magnifies the center of src by amount, leaving an inset band
// unmagnified.
func zoom(src *image.RGBA, amount float32, inset int) *image.RGBA {
	if amount <= 1 {
		return src
	}
	b := src.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, src, b.Min, draw.Src)
	cx := float32(b.Min.X+b.Max.X) / 2
	cy := float32(b.Min.Y+b.Max.Y) / 2
	inner := b.Inset(inset)
	for y := inner.Min.Y; y < inner.Max.Y; y++ {
		for x := inner.Min.X; x < inner.Max.X; x++ {
			sx := int(math32.Floor(cx + (float32(x)+0.5-cx)/amount))
			sy := int(math32.Floor(cy + (float32(y)+0.5-cy)/amount))
			copy(out.Pix[out.PixOffset(x, y):out.PixOffset(x, y)+4], src.Pix[src.PixOffset(sx, sy):src.PixOffset(sx, sy)+4])
		}
	}
	return out
}

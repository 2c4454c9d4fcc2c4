package display

import (
	"image"
	"image/color"
)

// Surface is the compositing target a display renders into. The production
// implementation wraps an Android Surface through EGL; tests substitute an
// in-memory sink.
type Surface interface {
	// Present displays one composited frame. Called only from the
	// display's render goroutine.
	Present(img *image.RGBA) error

	// Release frees the underlying native resources. Called exactly once,
	// after the render goroutine has exited.
	Release()
}

// letterboxFill is the color of the bars around the plugin when the
// aspect ratios differ.
var letterboxFill = color.RGBA{0x10, 0x10, 0x10, 0xFF}

// renderLoop blocks on the framebuffer's dirty condition, snapshots it and
// composites the letterboxed result onto the surface. It owns the surface
// exclusively; nothing else may call Present. Exits when the server closes
// the framebuffer.
func (d *Display) renderLoop(surface Surface) {
	defer close(d.renderDone)
	var (
		snap []uint32
		img  *image.RGBA
	)
	for {
		px, fw, fh, ok := d.srv.WaitFrame(snap)
		if !ok {
			return
		}
		snap = px

		d.refreshGeometry()
		g := d.Geometry()
		if g.SurfaceW <= 0 || g.SurfaceH <= 0 {
			continue
		}
		if img == nil || img.Rect.Dx() != g.SurfaceW || img.Rect.Dy() != g.SurfaceH {
			img = image.NewRGBA(image.Rect(0, 0, g.SurfaceW, g.SurfaceH))
		}
		compose(img, px, fw, fh, g)
		if err := surface.Present(img); err != nil {
			d.log.Error("display %d: present: %s", d.num, err)
			return
		}
	}
}

// compose scales the ARGB framebuffer into the letterbox region of dst
// with nearest-neighbor sampling and fills the bars.
func compose(dst *image.RGBA, fb []uint32, fw, fh int, g Geometry) {
	scale, x0, y0 := g.Letterbox()
	renderW := int(float64(fw) * scale)
	renderH := int(float64(fh) * scale)
	sw, sh := g.SurfaceW, g.SurfaceH

	for y := 0; y < sh; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+sw*4]
		fy := -1
		if y >= y0 && y < y0+renderH {
			fy = int(float64(y-y0) / scale)
			if fy >= fh {
				fy = fh - 1
			}
		}
		for x := 0; x < sw; x++ {
			o := x * 4
			if fy < 0 || x < x0 || x >= x0+renderW {
				row[o+0] = letterboxFill.R
				row[o+1] = letterboxFill.G
				row[o+2] = letterboxFill.B
				row[o+3] = letterboxFill.A
				continue
			}
			fx := int(float64(x-x0) / scale)
			if fx >= fw {
				fx = fw - 1
			}
			p := fb[fy*fw+fx]
			row[o+0] = byte(p >> 16)
			row[o+1] = byte(p >> 8)
			row[o+2] = byte(p)
			row[o+3] = 0xFF
		}
	}
}

package display

import (
	"image"
	"testing"
)

func TestComposeLetterboxes(t *testing.T) {
	// 2x2 framebuffer onto a 4x2 surface: scale 1, centered horizontally.
	fb := []uint32{
		0xFFFF0000, 0xFF00FF00,
		0xFF0000FF, 0xFFFFFFFF,
	}
	g := Geometry{SurfaceW: 4, SurfaceH: 2, PluginW: 2, PluginH: 2}
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	compose(img, fb, 2, 2, g)

	// Bars on the left and right.
	for _, x := range []int{0, 3} {
		for y := 0; y < 2; y++ {
			if got := img.RGBAAt(x, y); got != letterboxFill {
				t.Fatalf("bar pixel (%d,%d) = %v", x, y, got)
			}
		}
	}
	// Framebuffer content in the middle, ARGB unpacked to RGBA.
	if got := img.RGBAAt(1, 0); got.R != 0xFF || got.G != 0 || got.B != 0 {
		t.Fatalf("pixel (1,0) = %v, want red", got)
	}
	if got := img.RGBAAt(2, 0); got.G != 0xFF || got.R != 0 {
		t.Fatalf("pixel (2,0) = %v, want green", got)
	}
	if got := img.RGBAAt(1, 1); got.B != 0xFF || got.R != 0 {
		t.Fatalf("pixel (1,1) = %v, want blue", got)
	}
}

func TestComposeScalesUp(t *testing.T) {
	// 1x1 red framebuffer onto a 4x4 surface: fills everything.
	fb := []uint32{0xFFFF0000}
	g := Geometry{SurfaceW: 4, SurfaceH: 4, PluginW: 1, PluginH: 1}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	compose(img, fb, 1, 1, g)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if got := img.RGBAAt(x, y); got.R != 0xFF || got.A != 0xFF {
				t.Fatalf("pixel (%d,%d) = %v, want red", x, y, got)
			}
		}
	}
}

package display

import "testing"

func TestGeometryLetterbox(t *testing.T) {
	// Wide surface, square plugin: pillarboxed and centered.
	g := Geometry{SurfaceW: 200, SurfaceH: 100, PluginW: 100, PluginH: 100}
	scale, x0, y0 := g.Letterbox()
	if scale != 1.0 || x0 != 50 || y0 != 0 {
		t.Fatalf("letterbox = scale %.2f offset (%d,%d), want 1.00 (50,0)", scale, x0, y0)
	}

	// Tall surface: letterboxed top and bottom.
	g = Geometry{SurfaceW: 100, SurfaceH: 300, PluginW: 200, PluginH: 200}
	scale, x0, y0 = g.Letterbox()
	if scale != 0.5 || x0 != 0 || y0 != 100 {
		t.Fatalf("letterbox = scale %.2f offset (%d,%d), want 0.50 (0,100)", scale, x0, y0)
	}
}

func TestGeometrySurfaceToPlugin(t *testing.T) {
	g := Geometry{SurfaceW: 200, SurfaceH: 100, PluginW: 100, PluginH: 100}
	// Center of the surface is the center of the plugin.
	x, y := g.SurfaceToPlugin(100, 50)
	if x != 50 || y != 50 {
		t.Fatalf("center maps to (%d,%d), want (50,50)", x, y)
	}
	// The plugin's top-left corner sits at the pillarbox edge.
	x, y = g.SurfaceToPlugin(50, 0)
	if x != 0 || y != 0 {
		t.Fatalf("corner maps to (%d,%d), want (0,0)", x, y)
	}
	// Points in the bars map outside the plugin bounds.
	if x, _ = g.SurfaceToPlugin(10, 50); x >= 0 {
		t.Fatalf("bar point maps inside plugin: x=%d", x)
	}
}

func TestGeometryScaledRoundTrip(t *testing.T) {
	g := Geometry{SurfaceW: 1080, SurfaceH: 720, PluginW: 400, PluginH: 300}
	scale, x0, y0 := g.Letterbox()
	// Forward transform of a plugin point that lands on the surface pixel
	// grid, then the inverse.
	px, py := 120, 45
	sx := x0 + int(float64(px)*scale)
	sy := y0 + int(float64(py)*scale)
	bx, by := g.SurfaceToPlugin(sx, sy)
	if bx != px || by != py {
		t.Fatalf("round trip (%d,%d) -> (%d,%d)", px, py, bx, by)
	}
}

func TestGeometryInvalidPassthrough(t *testing.T) {
	g := Geometry{SurfaceW: 800, SurfaceH: 600}
	// Plugin size unknown: coordinates pass through untouched.
	if x, y := g.SurfaceToPlugin(31, 47); x != 31 || y != 47 {
		t.Fatalf("passthrough = (%d,%d)", x, y)
	}
}

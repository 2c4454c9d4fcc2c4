package display

// Geometry captures the surface and plugin dimensions plus the letterbox
// transform derived from them. The render loop and the touch path both
// work from the same Geometry value, swapped atomically as a whole, so the
// two can never disagree mid-resize about where the plugin sits on the
// surface.
type Geometry struct {
	SurfaceW, SurfaceH int
	PluginW, PluginH   int
}

// Valid reports whether both the surface and the plugin size are known.
func (g Geometry) Valid() bool {
	return g.SurfaceW > 0 && g.SurfaceH > 0 && g.PluginW > 0 && g.PluginH > 0
}

// Letterbox returns the scale factor and the top-left corner of the region
// the plugin's framebuffer occupies on the surface: scaled to fit while
// preserving aspect ratio, centered in both axes.
func (g Geometry) Letterbox() (scale float64, x0, y0 int) {
	if !g.Valid() {
		return 1, 0, 0
	}
	scaleX := float64(g.SurfaceW) / float64(g.PluginW)
	scaleY := float64(g.SurfaceH) / float64(g.PluginH)
	scale = scaleX
	if scaleY < scaleX {
		scale = scaleY
	}
	x0 = (g.SurfaceW - int(float64(g.PluginW)*scale)) / 2
	y0 = (g.SurfaceH - int(float64(g.PluginH)*scale)) / 2
	return scale, x0, y0
}

// SurfaceToPlugin maps a point in surface coordinates into the plugin's
// natural coordinate space by inverting the letterbox transform. Points in
// the letterbox bars map to coordinates outside the plugin's bounds; the
// hit test clamps those to the top-level window.
func (g Geometry) SurfaceToPlugin(x, y int) (px, py int) {
	if !g.Valid() {
		return x, y
	}
	scale, x0, y0 := g.Letterbox()
	return int(float64(x-x0) / scale), int(float64(y-y0) / scale)
}

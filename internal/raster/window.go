package raster

import (
	"context"
	"fmt"
	"sort"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// Window is a bounded view of the elevation, flow-direction and auxiliary
// rasters around an outlet. It is not modified after loading.
type Window struct {
	Elevation *Grid
	FlowDir   *Grid
	Layers    map[string]*Grid
}

// WindowReader loads a square window of half-width radius around centre.
type WindowReader interface {
	ReadWindow(ctx context.Context, centre model.Coord, radius float64) (*Window, error)
}

// Validate checks that elevation and flow direction share one pixel space.
func (w *Window) Validate() error {
	if w == nil {
		return fmt.Errorf("window is nil")
	}
	if err := w.Elevation.Validate(); err != nil {
		return fmt.Errorf("invalid elevation grid: %w", err)
	}
	if err := w.FlowDir.Validate(); err != nil {
		return fmt.Errorf("invalid flow-direction grid: %w", err)
	}
	if w.Elevation.Width != w.FlowDir.Width || w.Elevation.Height != w.FlowDir.Height {
		return fmt.Errorf("elevation %dx%d and flow-direction %dx%d grids differ in size",
			w.Elevation.Width, w.Elevation.Height, w.FlowDir.Width, w.FlowDir.Height)
	}
	if w.Elevation.Transform != w.FlowDir.Transform {
		return fmt.Errorf("elevation and flow-direction grids are not aligned")
	}
	for name, layer := range w.Layers {
		if err := layer.Validate(); err != nil {
			return fmt.Errorf("invalid layer %q: %w", name, err)
		}
	}
	return nil
}

// Layer returns the named auxiliary grid, if loaded.
func (w *Window) Layer(name string) (*Grid, bool) {
	g, ok := w.Layers[name]
	return g, ok && g != nil
}

// LayerNames returns the loaded auxiliary layer names in sorted order.
func (w *Window) LayerNames() []string {
	names := make([]string, 0, len(w.Layers))
	for name := range w.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bounds is an axis-aligned planar extent.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Around returns the square of half-width radius centred on c.
func Around(c model.Coord, radius float64) Bounds {
	return Bounds{MinX: c.X - radius, MinY: c.Y - radius, MaxX: c.X + radius, MaxY: c.Y + radius}
}

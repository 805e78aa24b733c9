package raster

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// ErrOutsideRaster is returned when a requested window misses the raster.
var ErrOutsideRaster = errors.New("window does not intersect the raster")

type asciiHeader struct {
	ncols, nrows int
	xll, yll     float64
	centre       bool
	cellSize     float64
	nodata       float64
	hasNoData    bool
}

func (h asciiHeader) transform() GeoTransform {
	x0 := h.xll
	top := h.yll + float64(h.nrows)*h.cellSize
	if h.centre {
		x0 -= h.cellSize / 2
		top -= h.cellSize / 2
	}
	return NorthUp(x0, top, h.cellSize)
}

// ReadASCII decodes an ESRI ASCII grid. When clip is non-nil only the cells
// intersecting it are kept, and rows below it are never parsed.
func ReadASCII(r io.Reader, clip *Bounds) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	h, first, err := readASCIIHeader(sc)
	if err != nil {
		return nil, err
	}
	gt := h.transform()

	c0, c1, r0, r1 := 0, h.ncols, 0, h.nrows
	if clip != nil {
		c0 = clampInt(int(math.Floor((clip.MinX-gt[0])/h.cellSize)), 0, h.ncols)
		c1 = clampInt(int(math.Ceil((clip.MaxX-gt[0])/h.cellSize)), 0, h.ncols)
		r0 = clampInt(int(math.Floor((gt[3]-clip.MaxY)/h.cellSize)), 0, h.nrows)
		r1 = clampInt(int(math.Ceil((gt[3]-clip.MinY)/h.cellSize)), 0, h.nrows)
		if c0 >= c1 || r0 >= r1 {
			return nil, ErrOutsideRaster
		}
	}

	out := &Grid{
		Width:     c1 - c0,
		Height:    r1 - r0,
		NoData:    h.nodata,
		HasNoData: h.hasNoData,
		Transform: NorthUp(gt[0]+float64(c0)*h.cellSize, gt[3]-float64(r0)*h.cellSize, h.cellSize),
	}
	out.Values = make([]float64, out.Width*out.Height)

	total := h.ncols * h.nrows
	token := first
	for i := 0; i < total; i++ {
		if i > 0 || token == "" {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, fmt.Errorf("failed to read grid values: %w", err)
				}
				return nil, fmt.Errorf("grid ended after %d of %d values", i, total)
			}
			token = sc.Text()
		}
		row, col := i/h.ncols, i%h.ncols
		if row >= r1 {
			break
		}
		if row < r0 || col < c0 || col >= c1 {
			continue
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid grid value at row %d col %d: %w", row, col, err)
		}
		out.Values[(row-r0)*out.Width+(col-c0)] = v
	}
	return out, nil
}

// readASCIIHeader consumes header pairs and returns the first data token.
func readASCIIHeader(sc *bufio.Scanner) (asciiHeader, string, error) {
	var h asciiHeader
	seen := map[string]bool{}
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		switch key {
		case "ncols", "nrows", "xllcorner", "xllcenter", "yllcorner", "yllcenter", "cellsize", "nodata_value":
		default:
			if err := h.check(seen); err != nil {
				return h, "", err
			}
			return h, sc.Text(), nil
		}
		if !sc.Scan() {
			return h, "", fmt.Errorf("missing value for header %q", key)
		}
		raw := sc.Text()
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return h, "", fmt.Errorf("invalid header %s %q: %w", key, raw, err)
		}
		seen[key] = true
		switch key {
		case "ncols":
			h.ncols = int(v)
		case "nrows":
			h.nrows = int(v)
		case "xllcorner":
			h.xll = v
		case "xllcenter":
			h.xll = v
			h.centre = true
		case "yllcorner":
			h.yll = v
		case "yllcenter":
			h.yll = v
			h.centre = true
		case "cellsize":
			h.cellSize = v
		case "nodata_value":
			h.nodata = v
			h.hasNoData = true
		}
	}
	if err := sc.Err(); err != nil {
		return h, "", fmt.Errorf("failed to read grid header: %w", err)
	}
	if err := h.check(seen); err != nil {
		return h, "", err
	}
	return h, "", nil
}

func (h asciiHeader) check(seen map[string]bool) error {
	if !seen["ncols"] || !seen["nrows"] || !seen["cellsize"] {
		return fmt.Errorf("grid header needs ncols, nrows and cellsize")
	}
	if !(seen["xllcorner"] || seen["xllcenter"]) || !(seen["yllcorner"] || seen["yllcenter"]) {
		return fmt.Errorf("grid header needs a lower-left corner or centre")
	}
	if h.ncols <= 0 || h.nrows <= 0 || h.cellSize <= 0 {
		return fmt.Errorf("grid header has non-positive size")
	}
	return nil
}

// WriteASCII encodes g as an ESRI ASCII grid. Only north-up grids with square
// cells can be represented.
func WriteASCII(w io.Writer, g *Grid) error {
	if err := g.Validate(); err != nil {
		return err
	}
	gt := g.Transform
	if gt[2] != 0 || gt[4] != 0 || gt[1] != -gt[5] {
		return fmt.Errorf("grid is not north-up with square cells")
	}
	bw := bufio.NewWriter(w)
	yll := gt[3] + float64(g.Height)*gt[5]
	if _, err := fmt.Fprintf(bw, "ncols %d\nnrows %d\nxllcorner %s\nyllcorner %s\ncellsize %s\n",
		g.Width, g.Height, formatFloat(gt[0]), formatFloat(yll), formatFloat(gt[1])); err != nil {
		return err
	}
	if g.HasNoData {
		if _, err := fmt.Fprintf(bw, "NODATA_value %s\n", formatFloat(g.NoData)); err != nil {
			return err
		}
	}
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			if col > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(formatFloat(g.At(row, col))); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
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

// FileReader reads windows from ESRI ASCII grid files.
type FileReader struct {
	ElevationPath string
	FlowDirPath   string
	LayerPaths    map[string]string
}

// ReadWindow implements WindowReader.
func (r FileReader) ReadWindow(ctx context.Context, centre model.Coord, radius float64) (*Window, error) {
	clip := Around(centre, radius)
	elev, err := readFile(ctx, r.ElevationPath, &clip)
	if err != nil {
		return nil, fmt.Errorf("failed to read elevation: %w", err)
	}
	dirs, err := readFile(ctx, r.FlowDirPath, &clip)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow directions: %w", err)
	}
	w := &Window{Elevation: elev, FlowDir: dirs, Layers: make(map[string]*Grid, len(r.LayerPaths))}
	for name, path := range r.LayerPaths {
		g, err := readFile(ctx, path, &clip)
		if err != nil {
			return nil, fmt.Errorf("failed to read layer %q: %w", name, err)
		}
		w.Layers[name] = g
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// ReadFile decodes a whole ESRI ASCII grid file.
func ReadFile(path string) (*Grid, error) {
	return readFile(context.Background(), path, nil)
}

func readFile(ctx context.Context, path string, clip *Bounds) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			// Best-effort close on read-only file.
			_ = cerr
		}
	}()
	return ReadASCII(f, clip)
}

package contour

import (
	"errors"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/raster"
)

const (
	utm30  = "+proj=utm +zone=30 +ellps=GRS80 +units=m +no_defs"
	wgs84  = "+proj=longlat +datum=WGS84 +no_defs"
	cellSz = 25.0
)

func maskOf(rows ...string) Mask {
	m := Mask{Width: len(rows[0]), Height: len(rows), Transform: raster.NorthUp(440000, 4474000, cellSz)}
	for _, r := range rows {
		for _, ch := range r {
			m.Cells = append(m.Cells, ch == '#')
		}
	}
	return m
}

func members(t *testing.T, m Mask) []Feature {
	t.Helper()
	features, err := GridService{}.Polygonize(m)
	require.NoError(t, err)
	var out []Feature
	for _, f := range features {
		if f.Value == MemberValue {
			out = append(out, f)
		}
	}
	return out
}

func TestPolygonizeSingleCell(t *testing.T) {
	got := members(t, maskOf("#"))
	require.Len(t, got, 1)
	require.Len(t, got[0].Polygon, 1)
	assert.Len(t, got[0].Polygon[0], 5, "four corners plus closing point")
	assert.InDelta(t, cellSz*cellSz, got[0].Polygon.Area(), 1e-6)
}

func TestPolygonizeHole(t *testing.T) {
	got := members(t, maskOf(
		"###",
		"#.#",
		"###",
	))
	require.Len(t, got, 1)
	require.Len(t, got[0].Polygon, 2, "outer ring and one hole")
	assert.Len(t, got[0].Polygon[0], 5)
	assert.Len(t, got[0].Polygon[1], 5)
	assert.InDelta(t, 8*cellSz*cellSz, got[0].Polygon.Area(), 1e-6)
}

func TestPolygonizeDiagonalCellsStaySeparate(t *testing.T) {
	got := members(t, maskOf(
		"#.",
		".#",
	))
	require.Len(t, got, 2)
	for _, f := range got {
		assert.InDelta(t, cellSz*cellSz, f.Polygon.Area(), 1e-6)
	}
}

func TestPolygonizeLShape(t *testing.T) {
	got := members(t, maskOf(
		"#..",
		"#..",
		"###",
	))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Polygon[0], 7, "six corners plus closing point")
	assert.InDelta(t, 5*cellSz*cellSz, got[0].Polygon.Area(), 1e-6)
}

func TestPolygonizeCoversBackground(t *testing.T) {
	features, err := GridService{}.Polygonize(maskOf(
		"...",
		".#.",
		"...",
	))
	require.NoError(t, err)
	total := 0.0
	for _, f := range features {
		total += f.Polygon.Area()
	}
	assert.Len(t, features, 2)
	assert.InDelta(t, 9*cellSz*cellSz, total, 1e-6)
}

func TestExtractKeepsMembersOnly(t *testing.T) {
	ex := Extractor{Service: GridService{}, NativeCRS: utm30}
	c, err := ex.Extract(maskOf(
		"....",
		".##.",
		"....",
	))
	require.NoError(t, err)
	require.Len(t, c.Native, 1)
	assert.InDelta(t, 2*cellSz*cellSz, c.Native[0].Area(), 1e-6)
	assert.Nil(t, c.Display)
}

func TestExtractEmptyMask(t *testing.T) {
	ex := Extractor{Service: GridService{}}
	_, err := ex.Extract(maskOf("..", ".."))
	require.ErrorIs(t, err, ErrEmptyGeometry)
}

type backgroundOnly struct{ GridService }

func (backgroundOnly) Polygonize(Mask) ([]Feature, error) {
	return []Feature{{Value: 0, Polygon: geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}}}}, nil
}

func TestExtractNoMemberFeature(t *testing.T) {
	ex := Extractor{Service: backgroundOnly{}}
	_, err := ex.Extract(maskOf("#"))
	require.ErrorIs(t, err, ErrEmptyGeometry)
}

type failing struct{ GridService }

func (failing) Polygonize(Mask) ([]Feature, error) {
	return nil, errors.New("boom")
}

func TestExtractPropagatesServiceError(t *testing.T) {
	ex := Extractor{Service: failing{}}
	_, err := ex.Extract(maskOf("#"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestReprojectRoundTrip(t *testing.T) {
	ex := Extractor{Service: GridService{}, NativeCRS: utm30, DisplayCRS: wgs84}
	c, err := ex.Extract(maskOf(
		"##",
		"#.",
	))
	require.NoError(t, err)
	require.Len(t, c.Display, 1)

	lonlat := c.Display[0][0][0]
	assert.InDelta(t, -3.7, lonlat.X, 0.1)
	assert.InDelta(t, 40.4, lonlat.Y, 0.1)

	back, err := GridService{}.Reproject(c.Display, wgs84, utm30)
	require.NoError(t, err)
	mp, err := asMultiPolygon(back)
	require.NoError(t, err)
	for i, ring := range c.Native[0] {
		for j, p := range ring {
			assert.InDelta(t, p.X, mp[0][i][j].X, 1e-3)
			assert.InDelta(t, p.Y, mp[0][i][j].Y, 1e-3)
		}
	}
}

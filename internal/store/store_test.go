package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "regions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func square(x0, y0, size float64) [][]model.Coord {
	return [][]model.Coord{{
		{X: x0, Y: y0},
		{X: x0 + size, Y: y0},
		{X: x0 + size, Y: y0 + size},
		{X: x0, Y: y0 + size},
		{X: x0, Y: y0},
	}}
}

func TestUpsertAndGetRegion(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	ic := 1.4
	in := model.Region{
		ID:           72,
		Name:         "Ebro",
		Tmco:         25,
		BetaMedio:    1.8,
		Distribution: "TCEV",
		IC50:         &ic,
		P0Coeffs:     map[int]float64{2: 0.9, 100: 1.2},
		Boundary:     square(0, 0, 10),
	}
	require.NoError(t, s.UpsertRegion(ctx, in))

	got, err := s.GetRegion(ctx, 72)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	in.P0Coeffs = map[int]float64{5: 1.1}
	in.IC50 = nil
	require.NoError(t, s.UpsertRegion(ctx, in))
	got, err = s.GetRegion(ctx, 72)
	require.NoError(t, err)
	assert.Equal(t, map[int]float64{5: 1.1}, got.P0Coeffs)
	assert.Nil(t, got.IC50)

	_, err = s.GetRegion(ctx, 1)
	require.ErrorIs(t, err, ErrRegionNotFound)
}

func TestListAndFindRegion(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertRegion(ctx, model.Region{ID: 2, Tmco: 10, BetaMedio: 1, Distribution: "GEV", Boundary: square(10, 0, 10)}))
	require.NoError(t, s.UpsertRegion(ctx, model.Region{ID: 1, Tmco: 10, BetaMedio: 1, Distribution: "GEV", Boundary: square(0, 0, 10)}))
	require.NoError(t, s.UpsertRegion(ctx, model.Region{ID: 3, Tmco: 10, BetaMedio: 1, Distribution: "GEV"}))

	regions, err := s.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, regions, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{regions[0].ID, regions[1].ID, regions[2].ID})

	r, err := s.FindRegionAt(ctx, model.Coord{X: 15, Y: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.ID)

	r, err = s.FindRegionAt(ctx, model.Coord{X: 3, Y: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID)

	_, err = s.FindRegionAt(ctx, model.Coord{X: 50, Y: 50})
	require.ErrorIs(t, err, ErrRegionNotFound)
}

func TestDecodeAndImportRegions(t *testing.T) {
	const doc = `
regions:
  - id: 821
    name: Segura
    tmco: 50
    beta_medio: 2.1
    distribution: tcev
    p0_coeffs:
      2: 0.8
      500: 1.3
    boundary:
      - [{x: 0, y: 0}, {x: 5, y: 0}, {x: 5, y: 5}, {x: 0, y: 0}]
  - id: 11
    tmco: 10
    beta_medio: 1.0
    distribution: GEV
`
	f, err := DecodeRegions(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, f.Regions, 2)
	assert.Equal(t, "TCEV", f.Regions[0].Distribution)
	assert.Equal(t, 1.3, f.Regions[0].P0Coeffs[500])

	s := openTemp(t)
	n, err := s.ImportRegions(context.Background(), f.Regions)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetRegion(context.Background(), 821)
	require.NoError(t, err)
	assert.Equal(t, "Segura", got.Name)
	assert.Len(t, got.Boundary[0], 4)

	_, err = s.ImportRegions(context.Background(), []model.Region{{ID: 1}, {ID: 1}})
	assert.Error(t, err)
}

func TestDecodeRegionsRejectsUnknownKeys(t *testing.T) {
	_, err := DecodeRegions(strings.NewReader("regions:\n  - id: 1\n    colour: red\n"))
	assert.Error(t, err)

	_, err = DecodeRegions(strings.NewReader(""))
	assert.Error(t, err)
}

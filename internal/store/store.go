// Package store handles the SQLite region catalogue.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/geom"

	"github.com/verte-zerg/hydrobasin/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// ErrRegionNotFound is returned when no region matches an id or a point.
var ErrRegionNotFound = errors.New("region not found")

// Store wraps SQLite access for regional parameters.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS regions (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			tmco REAL NOT NULL,
			beta_medio REAL NOT NULL,
			distribution TEXT NOT NULL,
			ic50 REAL,
			ic67 REAL,
			ic90 REAL,
			boundary TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS region_p0_coefficients (
			region_id INTEGER NOT NULL,
			period INTEGER NOT NULL,
			coeff REAL NOT NULL,
			PRIMARY KEY (region_id, period)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_region_p0_region ON region_p0_coefficients(region_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertRegion stores a region and replaces its P0 coefficients.
func (s *Store) UpsertRegion(ctx context.Context, r model.Region) (err error) {
	boundary, err := json.Marshal(r.Boundary)
	if err != nil {
		return fmt.Errorf("failed to encode boundary of region %d: %w", r.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO regions (id, name, tmco, beta_medio, distribution, ic50, ic67, ic90, boundary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			tmco = excluded.tmco,
			beta_medio = excluded.beta_medio,
			distribution = excluded.distribution,
			ic50 = excluded.ic50,
			ic67 = excluded.ic67,
			ic90 = excluded.ic90,
			boundary = excluded.boundary`,
		r.ID, r.Name, r.Tmco, r.BetaMedio, r.Distribution,
		nullable(r.IC50), nullable(r.IC67), nullable(r.IC90),
		string(boundary),
	); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM region_p0_coefficients WHERE region_id = ?`, r.ID); err != nil {
		return err
	}

	if len(r.P0Coeffs) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO region_p0_coefficients (region_id, period, coeff) VALUES (?, ?, ?)`)
		if perr != nil {
			err = perr
			return err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for _, period := range sortedPeriods(r.P0Coeffs) {
			if _, err = stmt.ExecContext(ctx, r.ID, period, r.P0Coeffs[period]); err != nil {
				return err
			}
		}
	}

	err = tx.Commit()
	return err
}

// GetRegion loads one region with its coefficients.
func (s *Store) GetRegion(ctx context.Context, id int64) (model.Region, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, tmco, beta_medio, distribution, ic50, ic67, ic90, boundary
		 FROM regions WHERE id = ?`, id)
	r, err := scanRegion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Region{}, fmt.Errorf("region %d: %w", id, ErrRegionNotFound)
	}
	if err != nil {
		return model.Region{}, err
	}
	coeffs, err := s.coefficients(ctx)
	if err != nil {
		return model.Region{}, err
	}
	r.P0Coeffs = coeffs[r.ID]
	return r, nil
}

// ListRegions returns every region ordered by id.
func (s *Store) ListRegions(ctx context.Context) ([]model.Region, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, tmco, beta_medio, distribution, ic50, ic67, ic90, boundary
		 FROM regions ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var regions []model.Region
	for rows.Next() {
		r, err := scanRegion(rows)
		if err != nil {
			return nil, err
		}
		regions = append(regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	coeffs, err := s.coefficients(ctx)
	if err != nil {
		return nil, err
	}
	for i := range regions {
		regions[i].P0Coeffs = coeffs[regions[i].ID]
	}
	return regions, nil
}

// FindRegionAt returns the lowest-id region whose boundary contains c.
// Points on an edge count as inside.
func (s *Store) FindRegionAt(ctx context.Context, c model.Coord) (model.Region, error) {
	regions, err := s.ListRegions(ctx)
	if err != nil {
		return model.Region{}, err
	}
	p := geom.Point{X: c.X, Y: c.Y}
	for _, r := range regions {
		poly := BoundaryPolygon(r)
		if len(poly) == 0 {
			continue
		}
		if p.Within(poly) != geom.Outside {
			return r, nil
		}
	}
	return model.Region{}, fmt.Errorf("no region contains (%g, %g): %w", c.X, c.Y, ErrRegionNotFound)
}

// BoundaryPolygon converts the stored rings of a region to a polygon.
func BoundaryPolygon(r model.Region) geom.Polygon {
	var poly geom.Polygon
	for _, ring := range r.Boundary {
		if len(ring) < 3 {
			continue
		}
		path := make(geom.Path, len(ring))
		for i, c := range ring {
			path[i] = geom.Point{X: c.X, Y: c.Y}
		}
		poly = append(poly, path)
	}
	return poly
}

func (s *Store) coefficients(ctx context.Context) (map[int64]map[int]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT region_id, period, coeff FROM region_p0_coefficients`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	result := map[int64]map[int]float64{}
	for rows.Next() {
		var id int64
		var period int
		var coeff float64
		if err := rows.Scan(&id, &period, &coeff); err != nil {
			return nil, err
		}
		if _, ok := result[id]; !ok {
			result[id] = map[int]float64{}
		}
		result[id][period] = coeff
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegion(sc scanner) (model.Region, error) {
	var r model.Region
	var ic50, ic67, ic90 sql.NullFloat64
	var boundary string
	if err := sc.Scan(&r.ID, &r.Name, &r.Tmco, &r.BetaMedio, &r.Distribution, &ic50, &ic67, &ic90, &boundary); err != nil {
		return model.Region{}, err
	}
	r.IC50 = fromNullable(ic50)
	r.IC67 = fromNullable(ic67)
	r.IC90 = fromNullable(ic90)
	if err := json.Unmarshal([]byte(boundary), &r.Boundary); err != nil {
		return model.Region{}, fmt.Errorf("failed to decode boundary of region %d: %w", r.ID, err)
	}
	return r, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func sortedPeriods(m map[int]float64) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/hydrobasin/internal/model"
)

// RegionFile is the YAML layout accepted by `regions import`.
type RegionFile struct {
	Regions []model.Region `yaml:"regions" json:"regions"`
}

// DecodeRegions parses a YAML region file. Unknown keys are rejected.
func DecodeRegions(r io.Reader) (RegionFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f RegionFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return RegionFile{}, fmt.Errorf("region file is empty")
		}
		return RegionFile{}, fmt.Errorf("failed to decode region file: %w", err)
	}
	for i := range f.Regions {
		f.Regions[i].Distribution = strings.ToUpper(strings.TrimSpace(f.Regions[i].Distribution))
	}
	return f, nil
}

// ImportRegions upserts every region and returns how many were written.
func (s *Store) ImportRegions(ctx context.Context, regions []model.Region) (int, error) {
	seen := make(map[int64]struct{}, len(regions))
	for _, r := range regions {
		if _, ok := seen[r.ID]; ok {
			return 0, fmt.Errorf("duplicate region id %d", r.ID)
		}
		seen[r.ID] = struct{}{}
	}
	for i, r := range regions {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := s.UpsertRegion(ctx, r); err != nil {
			return i, fmt.Errorf("failed to store region %d: %w", r.ID, err)
		}
	}
	return len(regions), nil
}

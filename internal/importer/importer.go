// Package importer seeds the history store from externally supplied name
// histories.
//
// Input files are JSON arrays of
//
//	{"uuid": "...", "names": [{"name": "...", "changedToAt": 1234}, ...]}
//
// When several records (in one file or across files) describe the same
// identifier, the one with the most names wins. An identifier is seeded only
// if the store holds no history for it; existing histories are never touched.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/namehist/internal/history"
	"github.com/roach88/namehist/internal/metrics"
)

// Seeder is the store operation the importer needs.
// *store.Store implements it.
type Seeder interface {
	SeedHistory(ctx context.Context, id uuid.UUID, elements []history.Element, source history.Source) (bool, error)
}

// Dataset maps identifiers to the history to seed.
type Dataset map[uuid.UUID][]history.Element

// record is one entry of an import file.
type record struct {
	UUID  string            `json:"uuid"`
	Names []history.Element `json:"names"`
}

// Decode reads one import document.
func Decode(r io.Reader) (Dataset, error) {
	var records []record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode import data: %w", err)
	}

	data := make(Dataset, len(records))
	for i, rec := range records {
		id, err := history.ParseID(rec.UUID)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		for j, el := range rec.Names {
			if el.Name == "" {
				return nil, fmt.Errorf("record %d (%s): name %d is empty", i, id, j)
			}
		}
		data.Merge(Dataset{id: rec.Names})
	}
	return data, nil
}

// LoadFile reads and decodes the import file at path.
func LoadFile(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	data, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// Merge folds other into d. For an identifier present in both, the longer
// history wins; on a tie d keeps its own.
func (d Dataset) Merge(other Dataset) {
	for id, names := range other {
		if cur, ok := d[id]; !ok || len(cur) < len(names) {
			d[id] = names
		}
	}
}

// IDs returns the identifiers of d in a stable order.
func (d Dataset) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Report summarizes an import.
type Report struct {
	Files       int `json:"files"`
	Identifiers int `json:"identifiers"`
	Seeded      int `json:"seeded"`
	Skipped     int `json:"skipped"`
}

// Importer seeds histories through a Seeder.
type Importer struct {
	seeder  Seeder
	source  history.Source
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Importer.
type Option func(*Importer)

// WithSource sets the provenance tag written with every element
// (default history.SourceImport).
func WithSource(s history.Source) Option {
	return func(im *Importer) {
		im.source = s
	}
}

// WithLogger sets the logger (default slog.Default).
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = l
	}
}

// WithMetrics records seeded and skipped identifiers.
func WithMetrics(m *metrics.Metrics) Option {
	return func(im *Importer) {
		im.metrics = m
	}
}

// New creates an Importer writing through seeder.
func New(seeder Seeder, opts ...Option) *Importer {
	im := &Importer{
		seeder: seeder,
		source: history.SourceImport,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportFiles loads every file, merges them, and seeds the result.
// Files are decoded concurrently; nothing is written if any file fails.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (Report, error) {
	loaded := make([]Dataset, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := LoadFile(path)
			if err != nil {
				return err
			}
			loaded[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	merged := make(Dataset)
	for i, data := range loaded {
		im.logger.Info("loaded import file", "path", paths[i], "identifiers", len(data))
		merged.Merge(data)
	}

	report, err := im.Import(ctx, merged)
	report.Files = len(paths)
	return report, err
}

// Import seeds every identifier of data that has no stored history.
// It stops at the first storage failure; identifiers seeded before it stay.
func (im *Importer) Import(ctx context.Context, data Dataset) (Report, error) {
	report := Report{Identifiers: len(data)}

	for _, id := range data.IDs() {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		seeded, err := im.seeder.SeedHistory(ctx, id, data[id], im.source)
		if err != nil {
			return report, fmt.Errorf("seed %s: %w", id, err)
		}

		if seeded {
			report.Seeded++
			im.metrics.IncrementImported("seeded")
			im.logger.Debug("seeded history", "identifier", id, "names", len(data[id]))
		} else {
			report.Skipped++
			im.metrics.IncrementImported("skipped")
		}
	}

	im.logger.Info("import finished",
		"identifiers", report.Identifiers,
		"seeded", report.Seeded,
		"skipped", report.Skipped,
	)
	return report, nil
}

// Package sources lists experiments and loads their result records from the
// filesystem, the results API, MongoDB or a static directory index.
package sources

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

// Origins reported in Experiment.Source.
const (
	OriginFilesystem = "filesystem"
	OriginMongoDB    = "mongodb"
)

const metadataFile = "metadata.json"

var (
	ErrNotFound = errors.New("not found")
	// ErrDegraded is returned with a usable but incomplete listing, e.g.
	// when the results API reports MongoDB as unavailable.
	ErrDegraded = errors.New("results backend degraded")
)

// Experiment is one directory (or stored run) of result files.
type Experiment struct {
	ID          string           `json:"id"`
	Directory   string           `json:"directory"`
	Path        string           `json:"path"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Timestamp   models.Timestamp `json:"timestamp"`
	Source      string           `json:"source"`
	Count       int              `json:"count,omitempty"`

	origin Source
}

// Source lists experiments and loads their records.
type Source interface {
	Name() string
	ListExperiments(ctx context.Context) ([]Experiment, error)
	LoadRecords(ctx context.Context, exp Experiment) ([]*models.Record, error)
}

// sortExperiments orders newest first, then by title.
func sortExperiments(exps []Experiment) {
	sort.SliceStable(exps, func(i, j int) bool {
		if exps[i].Timestamp != exps[j].Timestamp {
			return exps[i].Timestamp > exps[j].Timestamp
		}
		return exps[i].Title < exps[j].Title
	})
}

// isResultFile reports whether name is a record file of an experiment.
func isResultFile(name string) bool {
	base := path.Base(name)
	return strings.HasSuffix(strings.ToLower(base), ".json") && base != metadataFile
}

// batchFetcher fetches several files at once, keyed by file name. Files
// missing from the result are fetched one by one.
type batchFetcher func(ctx context.Context, names []string) (map[string][]byte, error)

type fileFetcher func(ctx context.Context, name string) ([]byte, error)

// loadInBatches decodes the named files in sequential batches. A batch that
// fails falls back to individual fetches; a file that fails is logged and
// skipped.
func loadInBatches(ctx context.Context, names []string, size int, batch batchFetcher, one fileFetcher, log zerolog.Logger) ([]*models.Record, error) {
	if size <= 0 {
		size = len(names)
	}
	records := make([]*models.Record, 0, len(names))
	for start := 0; start < len(names); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + size
		if end > len(names) {
			end = len(names)
		}
		chunk := names[start:end]

		var contents map[string][]byte
		if batch != nil {
			var err error
			contents, err = batch(ctx, chunk)
			if err != nil {
				log.Warn().Err(err).Int("batch_start", start).Int("batch_size", len(chunk)).
					Msg("batch fetch failed, loading files individually")
				contents = nil
			}
		}

		for _, name := range chunk {
			data, ok := contents[name]
			if !ok {
				var err error
				data, err = one(ctx, name)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					log.Warn().Err(err).Str("file", name).Msg("skipping file")
					continue
				}
			}
			rec, err := models.DecodeRecord(data)
			if err != nil {
				log.Warn().Err(err).Str("file", name).Msg("skipping undecodable file")
				continue
			}
			rec.SourceFile = path.Base(name)
			records = append(records, rec)
		}
	}
	log.Debug().Int("files", len(names)).Int("records", len(records)).Msg("experiment loaded")
	return records, nil
}

func notFound(what string) error {
	return fmt.Errorf("%s: %w", what, ErrNotFound)
}

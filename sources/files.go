package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

// FileSource reads experiments from directories under a set of roots.
type FileSource struct {
	roots     []string
	batchSize int
	log       zerolog.Logger
}

func NewFileSource(roots []string, batchSize int, log zerolog.Logger) *FileSource {
	return &FileSource{
		roots:     roots,
		batchSize: batchSize,
		log:       log.With().Str("source", "files").Logger(),
	}
}

func (s *FileSource) Name() string { return "files" }

type experimentMetadata struct {
	Title       string           `json:"title"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Timestamp   models.Timestamp `json:"timestamp"`
	CreatedAt   models.Timestamp `json:"created_at"`
}

// ListExperiments returns one experiment per directory. Missing roots are
// skipped.
func (s *FileSource) ListExperiments(ctx context.Context) ([]Experiment, error) {
	var out []Experiment
	seen := map[string]bool{}

	for _, root := range s.roots {
		entries, err := os.ReadDir(root)
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn().Str("root", root).Msg("results root does not exist")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read results root %s: %w", root, err)
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			exp := Experiment{
				ID:        e.Name(),
				Directory: e.Name(),
				Path:      dir,
				Title:     e.Name(),
				Source:    OriginFilesystem,
				origin:    s,
			}
			if seen[exp.ID] {
				exp.ID = filepath.Base(root) + "-" + e.Name()
			}
			seen[exp.ID] = true

			if info, err := e.Info(); err == nil {
				exp.Timestamp = models.Timestamp(info.ModTime().Unix())
			}
			s.applyMetadata(&exp)

			files, err := s.resultFiles(dir)
			if err != nil {
				s.log.Warn().Err(err).Str("dir", dir).Msg("skipping unreadable experiment")
				continue
			}
			exp.Count = len(files)
			out = append(out, exp)
		}
	}

	sortExperiments(out)
	return out, nil
}

func (s *FileSource) applyMetadata(exp *Experiment) {
	data, err := os.ReadFile(filepath.Join(exp.Path, metadataFile))
	if err != nil {
		return
	}
	var meta experimentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.log.Warn().Err(err).Str("dir", exp.Path).Msg("invalid experiment metadata")
		return
	}
	switch {
	case meta.Title != "":
		exp.Title = meta.Title
	case meta.Name != "":
		exp.Title = meta.Name
	}
	exp.Description = meta.Description
	switch {
	case !meta.Timestamp.IsZero():
		exp.Timestamp = meta.Timestamp
	case !meta.CreatedAt.IsZero():
		exp.Timestamp = meta.CreatedAt
	}
}

func (s *FileSource) resultFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isResultFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadRecords decodes every result file of the experiment.
func (s *FileSource) LoadRecords(ctx context.Context, exp Experiment) ([]*models.Record, error) {
	names, err := s.resultFiles(exp.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("experiment " + exp.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("list experiment %s: %w", exp.ID, err)
	}

	readOne := func(_ context.Context, name string) ([]byte, error) {
		return os.ReadFile(filepath.Join(exp.Path, name))
	}
	return loadInBatches(ctx, names, s.batchSize, nil, readOne, s.log.With().Str("experiment", exp.ID).Logger())
}

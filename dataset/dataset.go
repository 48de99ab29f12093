// Package dataset keeps loaded experiments in memory so that filtering,
// sorting and paging never refetch records.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"resolution-dashboard/analytics"
	"resolution-dashboard/models"
	"resolution-dashboard/reconcile"
	"resolution-dashboard/sources"
)

var ErrRecordNotFound = errors.New("record not found")

// Loader finds experiments and loads their records.
type Loader interface {
	Find(ctx context.Context, id string) (sources.Experiment, error)
	Load(ctx context.Context, exp sources.Experiment) ([]*models.Record, error)
}

// Dataset is one load of an experiment. It is never mutated after creation.
type Dataset struct {
	// LoadID changes on every load; paging state is scoped to it.
	LoadID     string
	Experiment sources.Experiment
	// Records holds one canonical record per logical id.
	Records   []*models.Record
	Loaded    int
	Analytics analytics.Analytics
	LoadedAt  time.Time

	byID map[string]*models.Record
}

// New reconciles records into a dataset with a fresh load id.
func New(exp sources.Experiment, records []*models.Record, now time.Time) *Dataset {
	canonical := reconcile.Reconcile(records)
	d := &Dataset{
		LoadID:     uuid.NewString(),
		Experiment: exp,
		Records:    canonical,
		Loaded:     len(records),
		Analytics:  analytics.Aggregate(canonical),
		LoadedAt:   now,
		byID:       make(map[string]*models.Record, len(canonical)),
	}
	for _, r := range canonical {
		if id := r.LogicalID(); id != "" {
			d.byID[id] = r
		}
	}
	return d
}

// Record returns the canonical record with the given logical id.
func (d *Dataset) Record(id string) (*models.Record, error) {
	if r, ok := d.byID[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("record %s in %s: %w", id, d.Experiment.ID, ErrRecordNotFound)
}

// Store caches datasets by experiment id.
type Store struct {
	loader Loader
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	sets  map[string]*Dataset
	group singleflight.Group
}

func NewStore(loader Loader, log zerolog.Logger) *Store {
	return &Store{
		loader: loader,
		log:    log.With().Str("component", "dataset").Logger(),
		now:    time.Now,
		sets:   map[string]*Dataset{},
	}
}

// Get returns the cached dataset of an experiment, loading it on first use.
func (s *Store) Get(ctx context.Context, id string) (*Dataset, error) {
	if d, ok := s.Cached(id); ok {
		return d, nil
	}
	return s.load(ctx, id)
}

// Reload discards the cached dataset and loads the experiment again.
func (s *Store) Reload(ctx context.Context, id string) (*Dataset, error) {
	s.mu.Lock()
	delete(s.sets, id)
	s.mu.Unlock()
	return s.load(ctx, id)
}

func (s *Store) Cached(id string) (*Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sets[id]
	return d, ok
}

// load coalesces concurrent loads of the same experiment.
func (s *Store) load(ctx context.Context, id string) (*Dataset, error) {
	v, err, _ := s.group.Do(id, func() (any, error) {
		exp, err := s.loader.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		start := s.now()
		records, err := s.loader.Load(ctx, exp)
		if err != nil {
			return nil, fmt.Errorf("load experiment %s: %w", id, err)
		}

		d := New(exp, records, s.now())
		s.mu.Lock()
		s.sets[id] = d
		s.mu.Unlock()

		s.log.Info().
			Str("experiment", id).
			Str("load_id", d.LoadID).
			Int("files", d.Loaded).
			Int("records", len(d.Records)).
			Dur("took", s.now().Sub(start)).
			Msg("dataset loaded")
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}

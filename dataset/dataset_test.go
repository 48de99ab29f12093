package dataset

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolution-dashboard/models"
	"resolution-dashboard/sources"
)

type fakeLoader struct {
	records map[string][]*models.Record
	loads   atomic.Int32
	delay   time.Duration
}

func (f *fakeLoader) Find(_ context.Context, id string) (sources.Experiment, error) {
	if _, ok := f.records[id]; !ok {
		return sources.Experiment{}, sources.ErrNotFound
	}
	return sources.Experiment{ID: id, Title: id}, nil
}

func (f *fakeLoader) Load(_ context.Context, exp sources.Experiment) ([]*models.Record, error) {
	f.loads.Add(1)
	time.Sleep(f.delay)
	return f.records[exp.ID], nil
}

func run(id string, n int, rec string) *models.Record {
	return &models.Record{QueryID: id, RunIteration: models.FlexInt{N: n, Valid: true}, RecommendationField: models.Scalar(rec), ResolvedOutcome: "p1"}
}

func TestNew_ReconcilesAndAggregates(t *testing.T) {
	d := New(sources.Experiment{ID: "exp"}, []*models.Record{
		run("q1", 1, "p2"),
		run("q1", 2, "p1"),
		run("q2", 1, "p1"),
	}, time.Now())

	require.Len(t, d.Records, 2)
	assert.Equal(t, 3, d.Loaded)
	assert.NotEmpty(t, d.LoadID)
	assert.Equal(t, 2, d.Analytics.Correct)

	r, err := d.Record("q1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Run)
	assert.Equal(t, 2, r.RunCount)

	_, err = d.Record("nope")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestStore_CachesUntilReload(t *testing.T) {
	loader := &fakeLoader{records: map[string][]*models.Record{"exp": {run("q1", 1, "p1")}}}
	store := NewStore(loader, zerolog.Nop())
	ctx := context.Background()

	first, err := store.Get(ctx, "exp")
	require.NoError(t, err)
	second, err := store.Get(ctx, "exp")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.EqualValues(t, 1, loader.loads.Load())

	reloaded, err := store.Reload(ctx, "exp")
	require.NoError(t, err)
	assert.NotEqual(t, first.LoadID, reloaded.LoadID)
	assert.EqualValues(t, 2, loader.loads.Load())

	cached, ok := store.Cached("exp")
	require.True(t, ok)
	assert.Same(t, reloaded, cached)
}

func TestStore_UnknownExperiment(t *testing.T) {
	store := NewStore(&fakeLoader{}, zerolog.Nop())
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sources.ErrNotFound)
	_, ok := store.Cached("missing")
	assert.False(t, ok)
}

func TestStore_CoalescesConcurrentLoads(t *testing.T) {
	loader := &fakeLoader{
		records: map[string][]*models.Record{"exp": {run("q1", 1, "p1")}},
		delay:   50 * time.Millisecond,
	}
	store := NewStore(loader, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]*Dataset, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := store.Get(context.Background(), "exp")
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, loader.loads.Load())
	for _, d := range results {
		assert.Same(t, results[0], d)
	}
}

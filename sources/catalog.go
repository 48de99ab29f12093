package sources

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"resolution-dashboard/models"
)

// AllResultsID is the experiment id of the combined view over every stored
// result, offered when the primary source can load it.
const AllResultsID = "all-results"

// AllRecordsLoader is implemented by sources that can load every stored
// result at once.
type AllRecordsLoader interface {
	AllRecords(ctx context.Context) ([]*models.Record, error)
}

// Listing is the experiment list shown on the dashboard.
type Listing struct {
	Experiments []Experiment `json:"experiments"`
	Degraded    bool         `json:"degraded"`
	Warning     string       `json:"warning,omitempty"`
}

// CatalogOptions mirror the dashboard feature flags.
type CatalogOptions struct {
	// MongoOnly disables the fallback listing.
	MongoOnly bool
	// SingleExperiment restricts the listing to one experiment.
	SingleExperiment string
}

// Catalog lists experiments from a primary source and degrades to a
// fallback source when the primary fails.
type Catalog struct {
	primary  Source
	fallback Source
	opts     CatalogOptions
	log      zerolog.Logger
}

// NewCatalog creates a catalog. fallback may be nil.
func NewCatalog(primary, fallback Source, opts CatalogOptions, log zerolog.Logger) *Catalog {
	if opts.MongoOnly {
		fallback = nil
	}
	return &Catalog{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		log:      log.With().Str("component", "catalog").Logger(),
	}
}

// List returns the experiments to show. An error is only returned when no
// listing at all could be produced.
func (c *Catalog) List(ctx context.Context) (Listing, error) {
	exps, err := c.primary.ListExperiments(ctx)
	listing := Listing{Experiments: exps}

	if err != nil {
		c.log.Warn().Err(err).Str("source", c.primary.Name()).Msg("primary listing failed")
		listing.Degraded = true
		switch {
		case c.fallback != nil:
			fallback, ferr := c.fallback.ListExperiments(ctx)
			if ferr != nil {
				return Listing{}, fmt.Errorf("list experiments: %w", errors.Join(err, ferr))
			}
			listing.Experiments = fallback
			listing.Warning = fmt.Sprintf("The %s results backend is unavailable; showing %s results instead.",
				c.primary.Name(), c.fallback.Name())
		case errors.Is(err, ErrDegraded):
			listing.Warning = "The results backend reported a database error; the list may be incomplete."
		default:
			return Listing{}, fmt.Errorf("list experiments: %w", err)
		}
	} else if _, ok := c.primary.(AllRecordsLoader); ok {
		listing.Experiments = append([]Experiment{{
			ID:     AllResultsID,
			Title:  "All stored results",
			Source: OriginMongoDB,
			origin: c.primary,
		}}, listing.Experiments...)
	}

	if single := c.opts.SingleExperiment; single != "" {
		var only []Experiment
		for _, e := range listing.Experiments {
			if e.ID == single || e.Directory == single {
				only = append(only, e)
			}
		}
		listing.Experiments = only
	}
	return listing, nil
}

// Find looks an experiment up by id.
func (c *Catalog) Find(ctx context.Context, id string) (Experiment, error) {
	listing, err := c.List(ctx)
	if err != nil {
		return Experiment{}, err
	}
	for _, e := range listing.Experiments {
		if e.ID == id {
			return e, nil
		}
	}
	return Experiment{}, notFound("experiment " + id)
}

// Load loads the records of an experiment from the source that listed it.
func (c *Catalog) Load(ctx context.Context, exp Experiment) ([]*models.Record, error) {
	src := exp.origin
	if src == nil {
		src = c.primary
	}
	if exp.ID == AllResultsID {
		loader, ok := src.(AllRecordsLoader)
		if !ok {
			return nil, notFound("experiment " + exp.ID)
		}
		return loader.AllRecords(ctx)
	}
	return src.LoadRecords(ctx, exp)
}

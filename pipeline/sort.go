package pipeline

import (
	"sort"
	"strings"

	"resolution-dashboard/analytics"
	"resolution-dashboard/models"
)

type comparator func(a, b *models.Record) int

var comparators = map[Column]comparator{
	ColumnID: func(a, b *models.Record) int {
		return strings.Compare(strings.ToLower(a.LogicalID()), strings.ToLower(b.LogicalID()))
	},
	ColumnTitle: func(a, b *models.Record) int {
		return strings.Compare(strings.ToLower(a.Title()), strings.ToLower(b.Title()))
	},
	ColumnTimestamp: func(a, b *models.Record) int {
		return cmpFloat(float64(a.Timestamp()), float64(b.Timestamp()))
	},
	ColumnExpiration: func(a, b *models.Record) int {
		return cmpFloat(float64(a.Expiration()), float64(b.Expiration()))
	},
	ColumnRecommendation: func(a, b *models.Record) int {
		return strings.Compare(strings.ToLower(a.Recommendation()), strings.ToLower(b.Recommendation()))
	},
	ColumnResolution: func(a, b *models.Record) int {
		ra, _ := a.Resolution()
		rb, _ := b.Resolution()
		return strings.Compare(strings.ToLower(ra), strings.ToLower(rb))
	},
	// unresolved < incorrect < correct
	ColumnCorrect: func(a, b *models.Record) int {
		return int(analytics.Classify(a)) - int(analytics.Classify(b))
	},
	ColumnRuns: func(a, b *models.Record) int {
		return runCount(a) - runCount(b)
	},
	ColumnTags: func(a, b *models.Record) int {
		return strings.Compare(strings.ToLower(strings.Join(a.Tags(), ",")), strings.ToLower(strings.Join(b.Tags(), ",")))
	},
}

// Sortable reports whether col has a comparator.
func Sortable(col Column) bool {
	_, ok := comparators[col]
	return ok
}

// SortRecords returns a sorted copy. The order is total: ties on the column
// fall back to input position, so the descending order is exactly the
// reverse of the ascending one.
func SortRecords(records []*models.Record, s Sort) []*models.Record {
	cmp, ok := comparators[s.Column]
	if !ok {
		cmp = comparators[DefaultSort.Column]
	}

	type indexed struct {
		rec *models.Record
		pos int
	}
	items := make([]indexed, len(records))
	for i, r := range records {
		items[i] = indexed{rec: r, pos: i}
	}

	sort.SliceStable(items, func(i, j int) bool {
		c := cmp(items[i].rec, items[j].rec)
		if c == 0 {
			c = items[i].pos - items[j].pos
		}
		if s.Direction == Desc {
			return c > 0
		}
		return c < 0
	})

	out := make([]*models.Record, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}

func runCount(r *models.Record) int {
	if r.RunCount > 0 {
		return r.RunCount
	}
	return 1
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

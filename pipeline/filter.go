package pipeline

import (
	"strings"
	"time"

	"resolution-dashboard/analytics"
	"resolution-dashboard/models"
)

// Filter runs the filter chain: correctness, tags, date bounds, then search.
func Filter(records []*models.Record, f Filters) []*models.Record {
	out := records
	out = keep(out, correctnessMatcher(f.Correctness))
	if len(f.Tags) > 0 {
		out = keep(out, func(r *models.Record) bool { return hasAllTags(r, f.Tags) })
	}
	if f.ProcessedFrom != nil {
		out = keep(out, func(r *models.Record) bool { return onOrAfter(r.Timestamp(), *f.ProcessedFrom) })
	}
	if f.ExpirationFrom != nil {
		out = keep(out, func(r *models.Record) bool { return onOrAfter(r.Expiration(), *f.ExpirationFrom) })
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		out = keep(out, func(r *models.Record) bool { return matchesSearch(r, q) })
	}
	return out
}

func keep(records []*models.Record, pred func(*models.Record) bool) []*models.Record {
	if pred == nil {
		return records
	}
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func correctnessMatcher(f CorrectnessFilter) func(*models.Record) bool {
	var want analytics.Correctness
	switch f {
	case FilterCorrect:
		want = analytics.Correct
	case FilterIncorrect:
		want = analytics.Incorrect
	case FilterUnresolved:
		want = analytics.Unresolved
	default:
		return nil
	}
	return func(r *models.Record) bool { return analytics.Classify(r) == want }
}

func hasAllTags(r *models.Record, tags []string) bool {
	for _, t := range tags {
		if !r.HasTag(t) {
			return false
		}
	}
	return true
}

// onOrAfter is an inclusive lower bound; records without the date fail it.
func onOrAfter(ts models.Timestamp, from time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Time().Before(from)
}

func matchesSearch(r *models.Record, q string) bool {
	res, _ := r.Resolution()
	fields := append(r.IdentityFields(), r.Recommendation(), res, r.Title())
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// TagCounts lists every tag in records with the number of records carrying
// it, for the tag filter options.
func TagCounts(records []*models.Record) map[string]int {
	counts := map[string]int{}
	for _, r := range records {
		seen := map[string]bool{}
		for _, t := range r.Tags() {
			key := strings.ToLower(t)
			if !seen[key] {
				seen[key] = true
				counts[key]++
			}
		}
	}
	return counts
}

package analytics

import (
	"sort"
	"strings"

	"resolution-dashboard/models"
)

const (
	unresolvedBucket = "unresolved"
	noneBucket       = "none"
)

// Stats holds correctness counts over resolved records.
type Stats struct {
	Total     int     `json:"total"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy"`
}

func (s *Stats) add(c Correctness) {
	switch c {
	case Correct:
		s.Total++
		s.Correct++
	case Incorrect:
		s.Total++
		s.Incorrect++
	}
}

func (s *Stats) finish() {
	s.Accuracy = percent(s.Correct, s.Total)
}

// TagStats scopes the global stats to records carrying one tag.
type TagStats struct {
	Tag        string `json:"tag"`
	Records    int    `json:"records"`
	Unresolved int    `json:"unresolved"`
	Stats
	// IgnoringP4 excludes records whose recommendation or resolution is p4.
	IgnoringP4 Stats `json:"ignoring_p4"`
}

// Analytics is the aggregate view of a dataset.
type Analytics struct {
	// TotalRecords counts every record, resolved or not.
	TotalRecords int `json:"total_records"`
	Stats
	Unresolved int `json:"unresolved"`
	// NoDataCount counts resolved records whose recommendation is p4.
	NoDataCount int `json:"no_data_count"`
	// P1P2 is accuracy over resolved records recommending p1 or p2.
	P1P2 Stats `json:"p1_p2"`
	// Distributions count all records.
	RecommendationDist map[string]int `json:"recommendation_distribution"`
	ResolutionDist     map[string]int `json:"resolution_distribution"`
	Tags               []TagStats     `json:"tags"`
}

// Aggregate computes analytics over records. It is a pure function of its input.
func Aggregate(records []*models.Record) Analytics {
	a := Analytics{
		RecommendationDist: map[string]int{},
		ResolutionDist:     map[string]int{},
	}
	tags := map[string]*TagStats{}

	for _, r := range records {
		a.TotalRecords++

		rec := normalize(r.Recommendation())
		res, resolved := r.Resolution()
		res = normalize(res)

		recKey := rec
		if recKey == "" {
			recKey = noneBucket
		}
		a.RecommendationDist[recKey]++
		if resolved {
			a.ResolutionDist[res]++
		} else {
			a.ResolutionDist[unresolvedBucket]++
		}

		c := Classify(r)
		if c == Unresolved {
			a.Unresolved++
		}
		a.Stats.add(c)
		if resolved && rec == P4 {
			a.NoDataCount++
		}
		if rec == P1 || rec == P2 {
			a.P1P2.add(c)
		}

		seen := map[string]bool{}
		for _, tag := range r.Tags() {
			key := strings.ToLower(tag)
			if seen[key] {
				continue
			}
			seen[key] = true
			ts, ok := tags[key]
			if !ok {
				ts = &TagStats{Tag: tag}
				tags[key] = ts
			}
			ts.Records++
			if c == Unresolved {
				ts.Unresolved++
			}
			ts.Stats.add(c)
			if rec != P4 && res != P4 {
				ts.IgnoringP4.add(c)
			}
		}
	}

	a.Stats.finish()
	a.P1P2.finish()
	a.Tags = make([]TagStats, 0, len(tags))
	for _, ts := range tags {
		ts.Stats.finish()
		ts.IgnoringP4.finish()
		a.Tags = append(a.Tags, *ts)
	}
	sort.Slice(a.Tags, func(i, j int) bool {
		if a.Tags[i].Records != a.Tags[j].Records {
			return a.Tags[i].Records > a.Tags[j].Records
		}
		return a.Tags[i].Tag < a.Tags[j].Tag
	})
	return a
}

// Tag returns the stats for one tag, case-insensitively.
func (a Analytics) Tag(tag string) (TagStats, bool) {
	for _, ts := range a.Tags {
		if strings.EqualFold(ts.Tag, tag) {
			return ts, true
		}
	}
	return TagStats{}, false
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

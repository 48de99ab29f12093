package handlers

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resolution-dashboard/pipeline"
)

const dateLayout = "2006-01-02"

// parseFilters reads the filter query parameters: correct, tags, from,
// exp_from and q.
func parseFilters(c *gin.Context) pipeline.Filters {
	f := pipeline.Filters{
		Correctness: pipeline.ParseCorrectness(c.Query("correct")),
		Search:      strings.TrimSpace(c.Query("q")),
	}
	for _, v := range c.QueryArray("tags") {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	f.ProcessedFrom = parseDate(c.Query("from"))
	f.ExpirationFrom = parseDate(c.Query("exp_from"))
	return f
}

func parseDate(s string) *time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

func parseSort(c *gin.Context) pipeline.Sort {
	col := pipeline.Column(c.Query("sort"))
	if col == "" || !pipeline.Sortable(col) {
		return pipeline.DefaultSort
	}
	return pipeline.Sort{Column: col, Direction: pipeline.Direction(c.Query("dir"))}
}

// parsePage reports the requested page and whether one was given.
func parsePage(c *gin.Context) (int, bool) {
	page, err := strconv.Atoi(c.Query("page"))
	if err != nil {
		return 1, false
	}
	return page, true
}

// encodeState renders a state as query parameters understood by the
// parse functions above.
func encodeState(s pipeline.State) url.Values {
	v := url.Values{}
	if s.Filters.Correctness != "" && s.Filters.Correctness != pipeline.FilterAll {
		v.Set("correct", string(s.Filters.Correctness))
	}
	if len(s.Filters.Tags) > 0 {
		v.Set("tags", strings.Join(s.Filters.Tags, ","))
	}
	if s.Filters.ProcessedFrom != nil {
		v.Set("from", s.Filters.ProcessedFrom.Format(dateLayout))
	}
	if s.Filters.ExpirationFrom != nil {
		v.Set("exp_from", s.Filters.ExpirationFrom.Format(dateLayout))
	}
	if s.Filters.Search != "" {
		v.Set("q", s.Filters.Search)
	}
	if s.Sort != pipeline.DefaultSort {
		v.Set("sort", string(s.Sort.Column))
		v.Set("dir", string(s.Sort.Direction))
	}
	// always explicit: a missing page restores the saved one
	page := s.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	return v
}

func stateURL(base string, s pipeline.State) string {
	return base + "?" + encodeState(s).Encode()
}

// filterQuery is the state's filter part, used by chart URLs.
func filterQuery(s pipeline.State) string {
	v := encodeState(s)
	v.Del("sort")
	v.Del("dir")
	v.Del("page")
	return v.Encode()
}

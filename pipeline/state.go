// Package pipeline filters, sorts and paginates a reconciled dataset for
// one table view.
package pipeline

import (
	"strings"
	"time"
)

// DefaultPageSize is the number of rows per results page.
const DefaultPageSize = 100

// CorrectnessFilter selects records by correctness class.
type CorrectnessFilter string

const (
	FilterAll        CorrectnessFilter = "all"
	FilterCorrect    CorrectnessFilter = "correct"
	FilterIncorrect  CorrectnessFilter = "incorrect"
	FilterUnresolved CorrectnessFilter = "unresolved"
)

// ParseCorrectness maps a query value onto a filter, defaulting to all.
func ParseCorrectness(s string) CorrectnessFilter {
	switch f := CorrectnessFilter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterCorrect, FilterIncorrect, FilterUnresolved:
		return f
	}
	return FilterAll
}

// Filters are applied in field order.
type Filters struct {
	Correctness CorrectnessFilter `json:"correctness"`
	// Tags uses AND semantics.
	Tags []string `json:"tags,omitempty"`
	// Inclusive lower bounds, each applied on its own date field.
	ProcessedFrom  *time.Time `json:"processed_from,omitempty"`
	ExpirationFrom *time.Time `json:"expiration_from,omitempty"`
	Search         string     `json:"search,omitempty"`
}

// Column identifies a sortable/displayable table column.
type Column string

const (
	ColumnID             Column = "id"
	ColumnTitle          Column = "title"
	ColumnTimestamp      Column = "timestamp"
	ColumnRecommendation Column = "recommendation"
	ColumnResolution     Column = "resolution"
	ColumnCorrect        Column = "correct"
	ColumnRuns           Column = "runs"
	ColumnExpiration     Column = "expiration"
	ColumnTags           Column = "tags"
)

// Direction of a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

func (d Direction) Flip() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

type Sort struct {
	Column    Column    `json:"column"`
	Direction Direction `json:"direction"`
}

// DefaultSort shows the newest results first.
var DefaultSort = Sort{Column: ColumnTimestamp, Direction: Desc}

// State is everything one results view needs to present a page. It is a
// value: every action returns a new State.
type State struct {
	// LoadID identifies the dataset load the state belongs to.
	LoadID   string   `json:"load_id"`
	Filters  Filters  `json:"filters"`
	Sort     Sort     `json:"sort"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
	Columns  []Column `json:"columns,omitempty"`
}

// NewState returns the initial state for a freshly loaded dataset.
func NewState(loadID string) State {
	return State{
		LoadID:   loadID,
		Filters:  Filters{Correctness: FilterAll},
		Sort:     DefaultSort,
		Page:     1,
		PageSize: DefaultPageSize,
	}
}

// ForDataset carries the state over to a dataset load. A different load
// resets the page; filters, sort and columns are kept.
func (s State) ForDataset(loadID string) State {
	if s.LoadID != loadID {
		s.LoadID = loadID
		s.Page = 1
	}
	return s
}

// WithFilters replaces the filters and returns to the first page.
func (s State) WithFilters(f Filters) State {
	if f.Correctness == "" {
		f.Correctness = FilterAll
	}
	f.Tags = append([]string(nil), f.Tags...)
	s.Filters = f
	s.Page = 1
	return s
}

// ToggleSort sorts by col. Selecting the current column again flips the
// direction; a new column starts descending for time and run counts and
// ascending otherwise.
func (s State) ToggleSort(col Column) State {
	if s.Sort.Column == col {
		s.Sort.Direction = s.Sort.Direction.Flip()
	} else {
		s.Sort = Sort{Column: col, Direction: defaultDirection(col)}
	}
	s.Page = 1
	return s
}

// WithSort sets an explicit sort.
func (s State) WithSort(srt Sort) State {
	if srt.Column == "" {
		srt = DefaultSort
	}
	if srt.Direction != Asc && srt.Direction != Desc {
		srt.Direction = defaultDirection(srt.Column)
	}
	s.Sort = srt
	s.Page = 1
	return s
}

// WithPage selects a page. Out-of-range pages are clamped when presented.
func (s State) WithPage(page int) State {
	s.Page = page
	return s
}

// WithColumns changes visible columns; the current page is kept.
func (s State) WithColumns(cols []Column) State {
	s.Columns = append([]Column(nil), cols...)
	return s
}

func defaultDirection(col Column) Direction {
	switch col {
	case ColumnTimestamp, ColumnRuns, ColumnExpiration:
		return Desc
	}
	return Asc
}

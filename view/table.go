// Package view shapes records into view-models consumed by the templates
// and the JSON API. It holds no markup beyond small escaped fragments.
package view

import (
	"fmt"
	"html/template"
	"strconv"

	"resolution-dashboard/analytics"
	"resolution-dashboard/format"
	"resolution-dashboard/models"
	"resolution-dashboard/pipeline"
)

// ColumnDef describes one table column.
type ColumnDef struct {
	Key      pipeline.Column `json:"key"`
	Label    string          `json:"label"`
	Sortable bool            `json:"sortable"`
	cell     func(r *models.Record) Cell
}

// Cell is one rendered table cell.
type Cell struct {
	Text  string        `json:"text"`
	HTML  template.HTML `json:"-"`
	Class string        `json:"class,omitempty"`
	Title string        `json:"title,omitempty"`
}

var columnDefs = []ColumnDef{
	{Key: pipeline.ColumnID, Label: "Query ID", cell: func(r *models.Record) Cell {
		id := r.LogicalID()
		return Cell{Text: format.ShortHash(id), Title: id, Class: "mono"}
	}},
	{Key: pipeline.ColumnTitle, Label: "Title", cell: func(r *models.Record) Cell {
		title := r.Title()
		return Cell{Text: format.Truncate(title, 90), Title: title}
	}},
	{Key: pipeline.ColumnTimestamp, Label: "Processed", cell: func(r *models.Record) Cell {
		return Cell{Text: format.Timestamp(r.Timestamp())}
	}},
	{Key: pipeline.ColumnRecommendation, Label: "Recommendation", cell: func(r *models.Record) Cell {
		return Cell{Text: format.Outcome(r.Recommendation()), Class: "outcome"}
	}},
	{Key: pipeline.ColumnResolution, Label: "Resolution", cell: func(r *models.Record) Cell {
		res, _ := r.Resolution()
		return Cell{Text: format.Outcome(res), Class: "outcome"}
	}},
	{Key: pipeline.ColumnCorrect, Label: "Result", cell: func(r *models.Record) Cell {
		c := analytics.Classify(r)
		return Cell{Text: format.Correctness(analytics.IsCorrect(r)), Class: "result-" + c.String()}
	}},
	{Key: pipeline.ColumnRuns, Label: "Runs", cell: func(r *models.Record) Cell {
		n := r.RunCount
		if n == 0 {
			n = 1
		}
		return Cell{Text: strconv.Itoa(n)}
	}},
	{Key: pipeline.ColumnExpiration, Label: "Expires", cell: func(r *models.Record) Cell {
		return Cell{Text: format.Timestamp(r.Expiration())}
	}},
	{Key: pipeline.ColumnTags, Label: "Tags", cell: func(r *models.Record) Cell {
		return Cell{Text: format.Tags(r.Tags()), HTML: format.TagBadges(r.Tags())}
	}},
}

// DefaultColumns are shown when no preference is stored.
var DefaultColumns = []pipeline.Column{
	pipeline.ColumnID,
	pipeline.ColumnTitle,
	pipeline.ColumnTimestamp,
	pipeline.ColumnRecommendation,
	pipeline.ColumnResolution,
	pipeline.ColumnCorrect,
	pipeline.ColumnRuns,
}

// AllColumns lists every column that can be enabled.
func AllColumns() []ColumnDef {
	out := make([]ColumnDef, len(columnDefs))
	for i, c := range columnDefs {
		c.Sortable = pipeline.Sortable(c.Key)
		out[i] = c
	}
	return out
}

// ResolveColumns keeps the known columns of prefs in their given order,
// falling back to DefaultColumns when none are usable.
func ResolveColumns(prefs []pipeline.Column) []ColumnDef {
	byKey := map[pipeline.Column]ColumnDef{}
	for _, c := range AllColumns() {
		byKey[c.Key] = c
	}
	pick := func(keys []pipeline.Column) []ColumnDef {
		var out []ColumnDef
		seen := map[pipeline.Column]bool{}
		for _, k := range keys {
			if c, ok := byKey[k]; ok && !seen[k] {
				seen[k] = true
				out = append(out, c)
			}
		}
		return out
	}
	if cols := pick(prefs); len(cols) > 0 {
		return cols
	}
	return pick(DefaultColumns)
}

// Header is a column header with its sort state.
type Header struct {
	ColumnDef
	Active    bool               `json:"active"`
	Direction pipeline.Direction `json:"direction,omitempty"`
	Indicator string             `json:"indicator,omitempty"`
}

// Row is one table row.
type Row struct {
	ID       string `json:"id"`
	RunCount int    `json:"run_count"`
	Cells    []Cell `json:"cells"`
}

// Table is the view-model of one results page.
type Table struct {
	Headers []Header `json:"headers"`
	Rows    []Row    `json:"rows"`
	Pager   Pager    `json:"pager"`
	// Empty marks a filtered set with no results.
	Empty   bool   `json:"empty"`
	Message string `json:"message,omitempty"`
}

// Pager describes pagination controls.
type Pager struct {
	Page    int    `json:"page"`
	Pages   int    `json:"pages"`
	Total   int    `json:"total"`
	HasPrev bool   `json:"has_prev"`
	HasNext bool   `json:"has_next"`
	Summary string `json:"summary"`
}

// BuildTable renders a page with the state's column preferences.
func BuildTable(page pipeline.PageView) Table {
	cols := ResolveColumns(page.State.Columns)
	t := Table{Headers: make([]Header, len(cols)), Empty: page.Empty}

	for i, c := range cols {
		h := Header{ColumnDef: c}
		if page.State.Sort.Column == c.Key {
			h.Active = true
			h.Direction = page.State.Sort.Direction
			h.Indicator = "▲"
			if h.Direction == pipeline.Desc {
				h.Indicator = "▼"
			}
		}
		t.Headers[i] = h
	}

	if page.Empty {
		t.Message = "No results match the current filters."
		return t
	}

	t.Rows = make([]Row, len(page.Items))
	for i, r := range page.Items {
		row := Row{ID: r.LogicalID(), RunCount: r.RunCount, Cells: make([]Cell, len(cols))}
		for j, c := range cols {
			row.Cells[j] = c.cell(r)
		}
		t.Rows[i] = row
	}

	t.Pager = Pager{
		Page:    page.Page,
		Pages:   page.Pages,
		Total:   page.Total,
		HasPrev: page.Page > 1,
		HasNext: page.Page < page.Pages,
		Summary: fmt.Sprintf("Showing %d–%d of %d", page.First, page.Last, page.Total),
	}
	return t
}

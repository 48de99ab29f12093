package handlers

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"resolution-dashboard/analytics"
	"resolution-dashboard/charts"
	"resolution-dashboard/config"
	"resolution-dashboard/dataset"
	"resolution-dashboard/models"
	"resolution-dashboard/pipeline"
	"resolution-dashboard/sources"
	"resolution-dashboard/view"
)

type DashboardData struct {
	Title    string
	Listing  sources.Listing
	Features config.Features
}

// ResultsData is everything the results page renders.
type ResultsData struct {
	Title      string
	Experiment sources.Experiment
	LoadID     string
	Loaded     int
	Filters    FilterParams
	Table      view.Table
	Headers    []HeaderLink
	Pager      PagerLinks
	Stats      StatsData
	Tags       []TagOption
	Columns    []ColumnOption
	Charts     []ChartLink
	Features   config.Features
}

// FilterParams echo the active filters into the form.
type FilterParams struct {
	Correct  string
	Tags     string
	Search   string
	From     string
	ExpFrom  string
	Sort     string
	Dir      string
	ClearURL string
}

// StatsData summarizes the filtered records.
type StatsData struct {
	Total       int
	Resolved    int
	Correct     int
	Incorrect   int
	Unresolved  int
	NoData      int
	Accuracy    float64
	P1P2        analytics.Stats
	TagAccuracy []analytics.TagStats
}

type HeaderLink struct {
	view.Header
	Href string
}

type PagerLinks struct {
	view.Pager
	PrevHref  string
	NextHref  string
	FirstHref string
	LastHref  string
}

type TagOption struct {
	Tag      string
	Count    int
	Selected bool
}

type ColumnOption struct {
	Key     pipeline.Column
	Label   string
	Visible bool
}

type ChartLink struct {
	Title string
	Src   string
}

// Dashboard lists the experiments.
func (h *Handler) Dashboard(c *gin.Context) {
	listing, err := h.catalog.List(c.Request.Context())
	if err != nil {
		h.renderError(c, statusFor(err), "Failed to load experiments", err)
		return
	}
	c.HTML(http.StatusOK, "dashboard.html", DashboardData{
		Title:    "Experiments",
		Listing:  listing,
		Features: h.cfg.Features,
	})
}

// ExperimentPage renders the filtered, sorted results table of an
// experiment.
func (h *Handler) ExperimentPage(c *gin.Context) {
	ds, err := h.datasets.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, statusFor(err), "Failed to load experiment", err)
		return
	}

	page, filtered := h.present(c, ds)
	c.HTML(http.StatusOK, "results.html", h.resultsData(ds, page, filtered))
}

// present applies the request's filters, sort and page to a dataset. The
// page falls back to the one saved for this load and is saved again.
func (h *Handler) present(c *gin.Context, ds *dataset.Dataset) (pipeline.PageView, []*models.Record) {
	state := pipeline.NewState(ds.LoadID).
		WithFilters(parseFilters(c)).
		WithSort(parseSort(c))
	state.PageSize = h.cfg.PageSize

	if cols, err := h.prefs.Columns(); err != nil {
		h.log.Warn().Err(err).Msg("failed to read column preferences")
	} else if len(cols) > 0 {
		state = state.WithColumns(toColumns(cols))
	}

	page, explicit := parsePage(c)
	if !explicit {
		saved, err := h.prefs.CurrentPage(ds.LoadID)
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to read saved page")
		}
		page = saved
	}
	state = state.WithPage(page)

	pv := pipeline.Present(ds.Records, state)
	if err := h.prefs.SetCurrentPage(ds.LoadID, pv.Page); err != nil {
		h.log.Warn().Err(err).Msg("failed to save page")
	}
	return pv, pipeline.Filter(ds.Records, state.Filters)
}

func (h *Handler) resultsData(ds *dataset.Dataset, page pipeline.PageView, filtered []*models.Record) ResultsData {
	state := page.State
	base := "/experiments/" + url.PathEscape(ds.Experiment.ID)
	table := view.BuildTable(page)

	data := ResultsData{
		Title:      ds.Experiment.Title,
		Experiment: ds.Experiment,
		LoadID:     ds.LoadID,
		Loaded:     ds.Loaded,
		Table:      table,
		Stats:      statsFor(analytics.Aggregate(filtered)),
		Features:   h.cfg.Features,
		Filters: FilterParams{
			Correct:  string(state.Filters.Correctness),
			Search:   state.Filters.Search,
			Sort:     string(state.Sort.Column),
			Dir:      string(state.Sort.Direction),
			ClearURL: base + "?page=1",
		},
	}
	v := encodeState(state)
	data.Filters.Tags = v.Get("tags")
	data.Filters.From = v.Get("from")
	data.Filters.ExpFrom = v.Get("exp_from")

	for _, hd := range table.Headers {
		link := HeaderLink{Header: hd}
		if hd.Sortable {
			link.Href = stateURL(base, state.ToggleSort(hd.Key))
		}
		data.Headers = append(data.Headers, link)
	}

	data.Pager = PagerLinks{Pager: table.Pager}
	if table.Pager.HasPrev {
		data.Pager.PrevHref = stateURL(base, state.WithPage(page.Page-1))
		data.Pager.FirstHref = stateURL(base, state.WithPage(1))
	}
	if table.Pager.HasNext {
		data.Pager.NextHref = stateURL(base, state.WithPage(page.Page+1))
		data.Pager.LastHref = stateURL(base, state.WithPage(page.Pages))
	}

	selected := map[string]bool{}
	// tag counts are keyed in lower case
	for _, t := range state.Filters.Tags {
		selected[strings.ToLower(t)] = true
	}
	for tag, n := range pipeline.TagCounts(ds.Records) {
		data.Tags = append(data.Tags, TagOption{Tag: tag, Count: n, Selected: selected[tag]})
	}
	sort.Slice(data.Tags, func(i, j int) bool {
		if data.Tags[i].Count != data.Tags[j].Count {
			return data.Tags[i].Count > data.Tags[j].Count
		}
		return data.Tags[i].Tag < data.Tags[j].Tag
	})

	visible := map[pipeline.Column]bool{}
	for _, hd := range table.Headers {
		visible[hd.Key] = true
	}
	for _, col := range view.AllColumns() {
		data.Columns = append(data.Columns, ColumnOption{Key: col.Key, Label: col.Label, Visible: visible[col.Key]})
	}

	query := filterQuery(state)
	for _, kind := range charts.Kinds() {
		src := "/charts/" + url.PathEscape(ds.Experiment.ID) + "/" + string(kind) + ".png"
		if query != "" {
			src += "?" + query
		}
		data.Charts = append(data.Charts, ChartLink{Title: chartTitles[kind], Src: src})
	}
	return data
}

var chartTitles = map[charts.Kind]string{
	charts.KindRecommendations: "Recommendation distribution",
	charts.KindResolutions:     "Resolution distribution",
	charts.KindTagAccuracy:     "Accuracy by tag",
}

func statsFor(a analytics.Analytics) StatsData {
	return StatsData{
		Total:       a.TotalRecords,
		Resolved:    a.Total,
		Correct:     a.Correct,
		Incorrect:   a.Incorrect,
		Unresolved:  a.Unresolved,
		NoData:      a.NoDataCount,
		Accuracy:    a.Accuracy,
		P1P2:        a.P1P2,
		TagAccuracy: a.Tags,
	}
}

func toColumns(keys []string) []pipeline.Column {
	cols := make([]pipeline.Column, len(keys))
	for i, k := range keys {
		cols[i] = pipeline.Column(k)
	}
	return cols
}

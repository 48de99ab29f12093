package pipeline

import "resolution-dashboard/models"

// PageView is one page of a filtered, sorted dataset.
type PageView struct {
	Items    []*models.Record
	Page     int
	Pages    int
	PageSize int
	// Total is the number of records after filtering.
	Total int
	// First and Last are 1-based positions of the page's items in the
	// filtered set; both are 0 when the page is empty.
	First int
	Last  int
	Empty bool
	State State
}

// Paginate slices one page out of records. The page is clamped to the
// available range; an empty input yields an Empty view with zero pages.
func Paginate(records []*models.Record, page, size int) PageView {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(records)
	if total == 0 {
		return PageView{Page: 1, PageSize: size, Empty: true}
	}

	pages := (total + size - 1) / size
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	return PageView{
		Items:    records[start:end],
		Page:     page,
		Pages:    pages,
		PageSize: size,
		Total:    total,
		First:    start + 1,
		Last:     end,
	}
}

// Present runs filter, sort and paginate for one state. The returned view
// carries the state with its page clamped.
func Present(records []*models.Record, s State) PageView {
	filtered := Filter(records, s.Filters)
	sorted := SortRecords(filtered, s.Sort)
	view := Paginate(sorted, s.Page, s.PageSize)
	s.Page = view.Page
	s.PageSize = view.PageSize
	view.State = s
	return view
}

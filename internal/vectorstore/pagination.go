package vectorstore

// Page is the uniform paginated result shape.
type Page[T any] struct {
	// Total is the backend-reported match count across all pages. Zero
	// when the backend cannot report totals (see NewOpenPage).
	Total int `json:"total"`

	TotalPages  int `json:"totalPages"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`

	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`

	Items []T `json:"items"`
}

// NewPage builds a page from a backend-reported total.
// TotalPages = ceil(total/perPage), floored at 1.
func NewPage[T any](items []T, total, page, perPage int) *Page[T] {
	totalPages := 1
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return &Page[T]{
		Total:           total,
		TotalPages:      totalPages,
		PerPage:         perPage,
		CurrentPage:     page,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
		Items:           items,
	}
}

// NewOpenPage builds a page for backends that cannot report totals.
//
// TotalPages defaults to 1 and HasNextPage is derived from whether the
// fetch filled the page before any post-fetch filtering. The heuristic
// can undercount available pages; documented per driver as a limitation.
func NewOpenPage[T any](items []T, page, perPage int, fetched int) *Page[T] {
	return &Page[T]{
		Total:           0,
		TotalPages:      1,
		PerPage:         perPage,
		CurrentPage:     page,
		HasNextPage:     fetched >= perPage,
		HasPreviousPage: page > 1,
		Items:           items,
	}
}

// pageWindow slices the [offset, offset+limit) window for the given
// 1-based page out of a result set fetched from the start. Drivers whose
// backends lack numeric offsets over-fetch and window client-side.
func pageWindow[T any](all []T, page, limit int) []T {
	start := (page - 1) * limit
	if start >= len(all) {
		return nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}

package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPage(t *testing.T) {
	tests := []struct {
		name           string
		total          int
		page           int
		perPage        int
		wantTotalPages int
		wantNext       bool
		wantPrev       bool
	}{
		{name: "exact fit", total: 20, page: 1, perPage: 10, wantTotalPages: 2, wantNext: true},
		{name: "partial last page", total: 21, page: 3, perPage: 10, wantTotalPages: 3, wantPrev: true},
		{name: "middle page", total: 30, page: 2, perPage: 10, wantTotalPages: 3, wantNext: true, wantPrev: true},
		{name: "zero total", total: 0, page: 1, perPage: 10, wantTotalPages: 1},
		{name: "single page", total: 5, page: 1, perPage: 10, wantTotalPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage([]string{}, tt.total, tt.page, tt.perPage)
			assert.Equal(t, tt.wantTotalPages, p.TotalPages)
			assert.Equal(t, tt.wantNext, p.HasNextPage)
			assert.Equal(t, tt.wantPrev, p.HasPreviousPage)
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, tt.perPage, p.PerPage)
		})
	}
}

func TestNewOpenPage(t *testing.T) {
	t.Run("full fetch implies next page", func(t *testing.T) {
		p := NewOpenPage([]int{1, 2, 3}, 1, 3, 3)
		assert.True(t, p.HasNextPage)
		assert.Equal(t, 1, p.TotalPages)
	})

	t.Run("short fetch is the last page", func(t *testing.T) {
		p := NewOpenPage([]int{1}, 2, 3, 1)
		assert.False(t, p.HasNextPage)
		assert.True(t, p.HasPreviousPage)
	})

	t.Run("post-filter shrink keeps heuristic on fetched count", func(t *testing.T) {
		// 3 fetched, 1 survived a MinScore filter: more pages may exist.
		p := NewOpenPage([]int{1}, 1, 3, 3)
		assert.True(t, p.HasNextPage)
	})
}

func TestPageWindow(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}

	assert.Equal(t, []string{"a", "b"}, pageWindow(all, 1, 2))
	assert.Equal(t, []string{"c", "d"}, pageWindow(all, 2, 2))
	assert.Equal(t, []string{"e"}, pageWindow(all, 3, 2))
	assert.Nil(t, pageWindow(all, 4, 2))
}

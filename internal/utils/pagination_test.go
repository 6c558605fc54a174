package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, limit string
		want        Pagination
	}{
		{"", "", Pagination{Page: 1, Limit: 10, Offset: 0}},
		{"3", "20", Pagination{Page: 3, Limit: 20, Offset: 40}},
		{"0", "-5", Pagination{Page: 1, Limit: 10, Offset: 0}},
		{"x", "1000", Pagination{Page: 1, Limit: 100, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.page+"/"+tt.limit, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPagination(tt.page, tt.limit))
		})
	}
}

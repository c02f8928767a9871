package paging

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestFromQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		want  Page
	}{
		{"", Page{Limit: DefaultLimit, Offset: 0}},
		{"?limit=10&offset=20", Page{Limit: 10, Offset: 20}},
		{"?limit=1000", Page{Limit: MaxLimit}},
		{"?limit=abc&offset=-5", Page{Limit: DefaultLimit, Offset: 0}},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/x"+tt.query, nil)
		if got := FromQuery(c); got != tt.want {
			t.Errorf("FromQuery(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func TestNewResult(t *testing.T) {
	r := NewResult([]int(nil), 0, Page{Limit: 10})
	if r.Items == nil || r.NextOffset != 0 {
		t.Errorf("empty result = %+v", r)
	}

	r = NewResult([]int{1, 2}, 5, Page{Limit: 2, Offset: 2})
	if r.NextOffset != 4 {
		t.Errorf("NextOffset = %d, want 4", r.NextOffset)
	}
	r = NewResult([]int{5}, 5, Page{Limit: 2, Offset: 4})
	if r.NextOffset != 0 {
		t.Errorf("NextOffset = %d, want 0 on last page", r.NextOffset)
	}
}

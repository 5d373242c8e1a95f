package filtering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usestring/harslim/internal/config"
	"github.com/usestring/harslim/pkg/har"
)

func sampleRecords() []*har.RequestRecord {
	return []*har.RequestRecord{
		{Index: 0, Method: "GET", URL: "https://api.example.com/users"},
		{Index: 1, Method: "POST", URL: "https://api.example.com/users"},
		{Index: 2, Method: "GET", URL: "https://cdn.example.com/logo.png"},
		{Index: 3, Method: "DELETE", URL: "https://api.example.com/users/7"},
		{Index: 4, Method: "post", URL: "https://auth.example.com/token"},
	}
}

func indices(records []*har.RequestRecord) []int {
	out := make([]int, 0, len(records))
	for _, r := range records {
		out = append(out, r.Index)
	}
	return out
}

func TestSelectEmptyCriteriaAdmitsAll(t *testing.T) {
	s, err := New(config.Filter{}, config.Scope{})
	require.NoError(t, err)

	records := sampleRecords()
	got := s.Select(records)
	assert.Equal(t, records, got)
}

func TestSelectByMethod(t *testing.T) {
	s, err := New(config.Filter{Methods: []string{"post"}}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{1, 4}, indices(got), "method comparison is case-insensitive")
}

func TestSelectByHost(t *testing.T) {
	s, err := New(config.Filter{Hosts: []string{"API.example.com"}}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{0, 1, 3}, indices(got))
}

func TestSelectByURLRegex(t *testing.T) {
	s, err := New(config.Filter{URLRegex: []string{`/users(/\d+)?$`, `\.png$`}}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{0, 1, 2, 3}, indices(got), "any matching pattern admits")
}

func TestSelectByIndexRange(t *testing.T) {
	s, err := New(config.Filter{IndexRange: []int{1, 3}}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{1, 2, 3}, indices(got), "range bounds are inclusive")
}

func TestSelectCriteriaIntersect(t *testing.T) {
	s, err := New(config.Filter{
		Methods:    []string{"GET", "POST"},
		Hosts:      []string{"api.example.com"},
		IndexRange: []int{0, 3},
	}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{0, 1}, indices(got))
}

func TestSelectScope(t *testing.T) {
	t.Run("exact URL or regex grants", func(t *testing.T) {
		s, err := New(config.Filter{}, config.Scope{
			IncludeURLs:  []string{"https://auth.example.com/token"},
			IncludeRegex: []string{`cdn\.`},
		})
		require.NoError(t, err)

		got := s.Select(sampleRecords())
		assert.Equal(t, []int{2, 4}, indices(got))
	})

	t.Run("scope intersects with filter", func(t *testing.T) {
		s, err := New(
			config.Filter{Methods: []string{"GET"}},
			config.Scope{IncludeRegex: []string{`example\.com`}},
		)
		require.NoError(t, err)

		got := s.Select(sampleRecords())
		assert.Equal(t, []int{0, 2}, indices(got))
	})
}

func TestSelectPreservesOrder(t *testing.T) {
	s, err := New(config.Filter{Methods: []string{"GET", "POST", "DELETE"}}, config.Scope{})
	require.NoError(t, err)

	got := s.Select(sampleRecords())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, indices(got))
}

func TestNewRejectsBadPatterns(t *testing.T) {
	_, err := New(config.Filter{URLRegex: []string{"("}}, config.Scope{})
	assert.Error(t, err)

	_, err = New(config.Filter{}, config.Scope{IncludeRegex: []string{"["}})
	assert.Error(t, err)
}

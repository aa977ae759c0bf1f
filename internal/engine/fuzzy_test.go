package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolmesh/orchestrator/internal/catalog"
	"github.com/toolmesh/orchestrator/internal/search"
)

func TestFuzzyMatch_SubstringFastPath(t *testing.T) {
	require.True(t, fuzzyMatch("weather", "weather_lookup"))
}

func TestFuzzyMatch_ToleratesTypo(t *testing.T) {
	require.True(t, fuzzyMatch("wather", "weather_lookup"))
}

func TestFuzzyMatch_RejectsUnrelated(t *testing.T) {
	require.False(t, fuzzyMatch("invoice", "weather_lookup"))
}

func TestFuzzyCandidates_RespectsLimit(t *testing.T) {
	e := &Engine{}
	cached := []catalog.Tool{
		{ID: "1", Name: "weather_lookup"},
		{ID: "2", Name: "weather_forecast"},
		{ID: "3", Name: "invoice_lookup"},
	}

	matches := e.fuzzyCandidates(cached, "weather", 1)
	require.Len(t, matches, 1)
	require.Equal(t, search.Match{Tool: cached[0], Distance: 0.5}, matches[0])
}

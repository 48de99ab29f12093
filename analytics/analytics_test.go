package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resolution-dashboard/models"
)

func record(t *testing.T, raw string) *models.Record {
	t.Helper()
	r, err := models.DecodeRecord([]byte(raw))
	require.NoError(t, err)
	return r
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *bool
	}{
		{"exact match", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"p1"}`, boolPtr(true)},
		{"case insensitive", `{"query_id":"a","recommendation":"P2","resolved_price_outcome":"p2"}`, boolPtr(true)},
		{"mismatch", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"p2"}`, boolPtr(false)},
		{"p1 maps to 1", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"1"}`, boolPtr(true)},
		{"p2 maps to 0", `{"query_id":"a","recommendation":"p2","resolved_price_outcome":0}`, boolPtr(true)},
		{"p2 is not 1", `{"query_id":"a","recommendation":"p2","resolved_price_outcome":"1"}`, boolPtr(false)},
		{"p4 catch-all", `{"query_id":"a","recommendation":"p4","resolved_price_outcome":"p3"}`, boolPtr(true)},
		{"p3 catch-all numeric", `{"query_id":"a","recommendation":"p3","resolved_price_outcome":"0.5"}`, boolPtr(true)},
		{"p3 against binary", `{"query_id":"a","recommendation":"p3","resolved_price_outcome":"p1"}`, boolPtr(false)},
		{"p4 against 0", `{"query_id":"a","recommendation":"p4","resolved_price_outcome":"0"}`, boolPtr(false)},
		{"missing recommendation", `{"query_id":"a","resolved_price_outcome":"p1"}`, boolPtr(false)},
		{"missing resolution", `{"query_id":"a","recommendation":"p1"}`, nil},
		{"null resolution", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":null}`, nil},
		{"N/A resolution", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"N/A"}`, nil},
		{"None resolution", `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"None"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsCorrect(record(t, tt.raw))
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestAggregate_SingleCorrect(t *testing.T) {
	a := Aggregate([]*models.Record{
		record(t, `{"query_id":"a","resolved_price_outcome":"p1","recommendation":"p1"}`),
	})

	assert.Equal(t, 1, a.Total)
	assert.Equal(t, 1, a.Correct)
	assert.Equal(t, 0, a.Incorrect)
	assert.Equal(t, 100.0, a.Accuracy)
}

func TestAggregate_NoDataCount(t *testing.T) {
	r := record(t, `{"query_id":"a","recommendation":"p4","resolved_price_outcome":"p3"}`)
	require.NotNil(t, IsCorrect(r))
	assert.True(t, *IsCorrect(r))

	a := Aggregate([]*models.Record{r})
	assert.Equal(t, 1, a.NoDataCount)
	assert.Equal(t, 1, a.Correct)
}

func TestAggregate_UnresolvedExcludedFromTotals(t *testing.T) {
	a := Aggregate([]*models.Record{
		record(t, `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"p1"}`),
		record(t, `{"query_id":"b","recommendation":"p2","resolved_price_outcome":"p1"}`),
		record(t, `{"query_id":"c","recommendation":"p2"}`),
		record(t, `{"query_id":"d","recommendation":"p1","resolved_price_outcome":"N/A"}`),
		record(t, `{"query_id":"e"}`),
	})

	assert.Equal(t, 5, a.TotalRecords)
	assert.Equal(t, 2, a.Total)
	assert.Equal(t, 1, a.Correct)
	assert.Equal(t, 1, a.Incorrect)
	assert.Equal(t, 3, a.Unresolved)
	assert.Equal(t, 50.0, a.Accuracy)

	// histograms count every record
	assert.Equal(t, map[string]int{"p1": 2, "p2": 2, "none": 1}, a.RecommendationDist)
	assert.Equal(t, map[string]int{"p1": 2, "unresolved": 3}, a.ResolutionDist)

	assert.Equal(t, 2, a.P1P2.Total)
	assert.Equal(t, 1, a.P1P2.Correct)
}

func TestAggregate_TagBuckets(t *testing.T) {
	a := Aggregate([]*models.Record{
		record(t, `{"query_id":"a","recommendation":"p1","resolved_price_outcome":"p1","tags":["sports","nba"]}`),
		record(t, `{"query_id":"b","recommendation":"p4","resolved_price_outcome":"p2","tags":["sports"]}`),
		record(t, `{"query_id":"c","recommendation":"p2","tags":["crypto"]}`),
	})

	sports, ok := a.Tag("sports")
	require.True(t, ok)
	assert.Equal(t, 2, sports.Records)
	assert.Equal(t, 2, sports.Total)
	assert.Equal(t, 1, sports.Correct)
	assert.Equal(t, 1, sports.Incorrect)
	assert.Equal(t, 1, sports.IgnoringP4.Total)
	assert.Equal(t, 100.0, sports.IgnoringP4.Accuracy)

	nba, ok := a.Tag("NBA")
	require.True(t, ok)
	assert.Equal(t, 1, nba.Correct)

	crypto, ok := a.Tag("crypto")
	require.True(t, ok)
	assert.Equal(t, 1, crypto.Unresolved)
	assert.Equal(t, 0, crypto.Total)

	assert.Equal(t, "sports", a.Tags[0].Tag)
}

func TestAggregate_Empty(t *testing.T) {
	a := Aggregate(nil)
	assert.Equal(t, 0, a.TotalRecords)
	assert.Equal(t, 0.0, a.Accuracy)
	assert.Empty(t, a.Tags)
}

func boolPtr(b bool) *bool { return &b }

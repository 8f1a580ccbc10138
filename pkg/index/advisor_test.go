package index_test

import (
	"testing"

	"github.com/bobboyms/dbcore/pkg/index"
)

func TestAnalyzeAndCreateIndexes_HighSelectivity_RecommendsHash(t *testing.T) {
	samples := []index.ColumnSample{
		{Column: "id", Values: []interface{}{1, 2, 3, 4, 5}},
	}
	recs := index.AnalyzeAndCreateIndexes(samples, nil)

	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].Kind != "HASH" {
		t.Fatalf("expected HASH for fully-distinct column, got %s", recs[0].Kind)
	}
}

func TestAnalyzeAndCreateIndexes_ModerateSelectivity_RecommendsBTree(t *testing.T) {
	samples := []index.ColumnSample{
		{Column: "status", Values: []interface{}{"a", "a", "b", "c", "d"}},
	}
	recs := index.AnalyzeAndCreateIndexes(samples, nil)

	if len(recs) != 1 {
		t.Fatalf("expected 1 recommendation, got %d", len(recs))
	}
	if recs[0].Kind != "BTREE" {
		t.Fatalf("expected BTREE for 0.8 selectivity column, got %s", recs[0].Kind)
	}
}

func TestAnalyzeAndCreateIndexes_LowSelectivityHighFrequency_RecommendsBTree(t *testing.T) {
	samples := []index.ColumnSample{
		{Column: "flag", Values: []interface{}{true, true, true, false}},
	}
	freq := map[string]int{"flag": 25}
	recs := index.AnalyzeAndCreateIndexes(samples, freq)

	if len(recs) != 1 || recs[0].Kind != "BTREE" {
		t.Fatalf("expected BTREE recommendation driven by frequency, got %+v", recs)
	}
}

func TestAnalyzeAndCreateIndexes_LowSelectivityLowFrequency_NoRecommendation(t *testing.T) {
	samples := []index.ColumnSample{
		{Column: "flag", Values: []interface{}{true, true, true, false}},
	}
	recs := index.AnalyzeAndCreateIndexes(samples, nil)

	if len(recs) != 0 {
		t.Fatalf("expected no recommendation for low selectivity / low frequency, got %+v", recs)
	}
}

func TestAnalyzeAndCreateIndexes_EmptySample(t *testing.T) {
	samples := []index.ColumnSample{
		{Column: "empty", Values: nil},
	}
	recs := index.AnalyzeAndCreateIndexes(samples, nil)
	if len(recs) != 0 {
		t.Fatalf("expected no recommendation for empty sample, got %+v", recs)
	}
}

package app

import (
	"testing"
	"time"

	"stock-data-ingest/internal/model"
)

func makeRecords(n int) []model.PriceRecord {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PriceRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.PriceRecord{
			ID:        int64(i + 1),
			Timestamp: base.AddDate(0, 0, i),
			Interval:  model.Interval1d,
		})
	}
	return out
}

func TestDownsampleRecordsNoOpWithinBudget(t *testing.T) {
	records := makeRecords(10)

	if got := downsampleRecords(records, 0); len(got) != 10 {
		t.Errorf("zero budget must not downsample, got %d", len(got))
	}
	if got := downsampleRecords(records, 10); len(got) != 10 {
		t.Errorf("exact budget must not downsample, got %d", len(got))
	}
	if got := downsampleRecords(records, 100); len(got) != 10 {
		t.Errorf("large budget must not downsample, got %d", len(got))
	}
}

func TestDownsampleRecordsKeepsEndpoints(t *testing.T) {
	records := makeRecords(100)

	got := downsampleRecords(records, 5)
	if len(got) != 5 {
		t.Fatalf("expected 5 points, got %d", len(got))
	}
	if got[0].ID != records[0].ID {
		t.Errorf("first point dropped: %d", got[0].ID)
	}
	if got[len(got)-1].ID != records[len(records)-1].ID {
		t.Errorf("last point must always survive, got %d", got[len(got)-1].ID)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Timestamp.Before(got[i].Timestamp) {
			t.Errorf("downsampled points out of order at %d", i)
		}
	}
}

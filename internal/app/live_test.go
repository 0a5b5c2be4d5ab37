package app

import (
	"context"
	"strings"
	"testing"

	"stock-data-ingest/internal/model"
)

type fakeLiveStore struct {
	sources     []model.DataSource
	instruments []model.Instrument
}

func (f *fakeLiveStore) FirstActiveDataSourceByType(_ context.Context, providerType string) (model.DataSource, bool, error) {
	for _, ds := range f.sources {
		if ds.IsActive && strings.Contains(strings.ToLower(ds.ProviderType), strings.ToLower(providerType)) {
			return ds, true, nil
		}
	}
	return model.DataSource{}, false, nil
}

func (f *fakeLiveStore) ListActiveInstruments(context.Context) ([]model.Instrument, error) {
	return f.instruments, nil
}

func TestLiveUniversePinsProviderType(t *testing.T) {
	store := &fakeLiveStore{sources: []model.DataSource{
		{ID: 1, Name: "Alpha Vantage", ProviderType: "ALPHA_VANTAGE", IsActive: true, Priority: 1},
		{ID: 2, Name: "Groww Live", ProviderType: "GROWW", IsActive: true, Priority: 2},
	}}
	universe := liveUniverse{store: store, providerType: "groww"}

	ds, ok, err := universe.FirstActiveDataSource(context.Background())
	if err != nil {
		t.Fatalf("FirstActiveDataSource returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected a matching source")
	}
	if ds.ID != 2 {
		t.Errorf("expected the live-data source despite lower priority elsewhere, got id %d", ds.ID)
	}
}

func TestLiveUniverseNoMatchingSource(t *testing.T) {
	store := &fakeLiveStore{sources: []model.DataSource{
		{ID: 1, Name: "Alpha Vantage", ProviderType: "ALPHA_VANTAGE", IsActive: true},
	}}
	universe := liveUniverse{store: store, providerType: "groww"}

	_, ok, err := universe.FirstActiveDataSource(context.Background())
	if err != nil {
		t.Fatalf("FirstActiveDataSource returned error: %v", err)
	}
	if ok {
		t.Error("expected no match for an absent provider family")
	}
}

package instrumentsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

func TestParseRows(t *testing.T) {
	body := strings.Join([]string{
		"exchange,trading_symbol,name,segment,series",
		"NSE,RELIANCE,Reliance Industries,CASH,EQ",
		`NSE,TCS,"Tata Consultancy Services, Ltd",CASH,EQ`,
		"NSE,SHORTLINE",
		"BSE,INFY,Infosys,CASH,EQ",
	}, "\n")

	rows := ParseRows(body)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Name != "Tata Consultancy Services, Ltd" {
		t.Errorf("quoted field mishandled: %q", rows[1].Name)
	}
	if rows[2].Exchange != "BSE" {
		t.Errorf("unexpected third row %+v", rows[2])
	}
}

func TestParseRowsHeaderCaseAndOrder(t *testing.T) {
	body := strings.Join([]string{
		"Series,NAME,Trading_Symbol,EXCHANGE,Segment",
		"EQ,Reliance Industries,RELIANCE,NSE,CASH",
	}, "\n")

	rows := ParseRows(body)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	if row.Exchange != "NSE" || row.TradingSymbol != "RELIANCE" || row.Series != "EQ" || row.Segment != "CASH" {
		t.Errorf("column remapping failed: %+v", row)
	}
}

func TestParseRowsMissingHeader(t *testing.T) {
	body := strings.Join([]string{
		"exchange,trading_symbol,name,series",
		"NSE,RELIANCE,Reliance Industries,EQ",
	}, "\n")

	if rows := ParseRows(body); rows != nil {
		t.Errorf("expected nil for a feed missing the segment header, got %d rows", len(rows))
	}
}

func TestParseRowsEmptyBody(t *testing.T) {
	if rows := ParseRows("   \n"); rows != nil {
		t.Errorf("expected nil for a blank body, got %v", rows)
	}
	if rows := ParseRows("exchange,trading_symbol,name,segment,series\n"); len(rows) != 0 {
		t.Errorf("expected no rows for a header-only body, got %d", len(rows))
	}
}

type fakeSyncStore struct {
	exchanges map[string]model.Exchange
	existing  map[string]bool
	created   []model.Instrument
}

func (f *fakeSyncStore) GetExchangeByCode(_ context.Context, code string) (model.Exchange, bool, error) {
	ex, ok := f.exchanges[strings.ToUpper(code)]
	return ex, ok, nil
}

func (f *fakeSyncStore) InstrumentExists(_ context.Context, symbol string, exchangeID int64) (bool, error) {
	return f.existing[symbol], nil
}

func (f *fakeSyncStore) CreateInstrument(_ context.Context, inst model.Instrument) (model.Instrument, error) {
	inst.ID = int64(len(f.created) + 1)
	f.created = append(f.created, inst)
	return inst, nil
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{
		exchanges: map[string]model.Exchange{
			"NSE": {ID: 1, Code: "NSE", IsActive: true},
		},
		existing: make(map[string]bool),
	}
}

func TestApplyFilters(t *testing.T) {
	store := newFakeSyncStore()
	syncer := New(Options{AllowedExchanges: []string{"NSE", "BSE"}}, store, zerolog.Nop())

	rows := []model.InstrumentRow{
		{Exchange: "NSE", TradingSymbol: "RELIANCE", Name: "Reliance Industries", Segment: "CASH", Series: "EQ"},
		{Exchange: "NSE", TradingSymbol: "SOMESME", Name: "Some SME", Segment: "CASH", Series: "BE"},
		{Exchange: "NSE", TradingSymbol: "NIFTYFUT", Name: "Nifty Future", Segment: "FNO", Series: "EQ"},
		{Exchange: "MCX", TradingSymbol: "GOLD", Name: "Gold", Segment: "CASH", Series: "EQ"},
		{Exchange: "NSE", TradingSymbol: "", Name: "Blank Symbol", Segment: "CASH", Series: "EQ"},
		{Exchange: "BSE", TradingSymbol: "INFY", Name: "Infosys", Segment: "CASH", Series: "EQ"},
	}

	result, err := syncer.Apply(context.Background(), rows)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	// RELIANCE created; BSE row passes the filter but the exchange row is
	// absent, so it counts as skipped; everything else is silently filtered
	if result.Created != 1 {
		t.Errorf("expected 1 created, got %d", result.Created)
	}
	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", result.Skipped)
	}
	if len(store.created) != 1 || store.created[0].Symbol != "RELIANCE" {
		t.Fatalf("unexpected created set %+v", store.created)
	}

	created := store.created[0]
	if created.Segment != "CASH" || !created.IsActive || created.ExchangeID != 1 {
		t.Errorf("created instrument misconfigured: %+v", created)
	}
}

func TestApplyExistingInstrumentSkippedSilently(t *testing.T) {
	store := newFakeSyncStore()
	store.existing["RELIANCE"] = true
	syncer := New(Options{AllowedExchanges: []string{"NSE"}}, store, zerolog.Nop())

	rows := []model.InstrumentRow{
		{Exchange: "NSE", TradingSymbol: "RELIANCE", Name: "Reliance Industries", Segment: "CASH", Series: "EQ"},
	}

	result, err := syncer.Apply(context.Background(), rows)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if result.Created != 0 || result.Skipped != 0 {
		t.Errorf("an existing instrument is a silent no-op, got %+v", result)
	}
	if len(store.created) != 0 {
		t.Errorf("no instrument may be created, got %d", len(store.created))
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newFakeSyncStore()
	syncer := New(Options{AllowedExchanges: []string{"NSE"}}, store, zerolog.Nop())

	rows := []model.InstrumentRow{
		{Exchange: "NSE", TradingSymbol: "RELIANCE", Name: "Reliance Industries", Segment: "CASH", Series: "EQ"},
	}

	if _, err := syncer.Apply(context.Background(), rows); err != nil {
		t.Fatalf("first Apply returned error: %v", err)
	}
	store.existing["RELIANCE"] = true

	result, err := syncer.Apply(context.Background(), rows)
	if err != nil {
		t.Fatalf("second Apply returned error: %v", err)
	}
	if result.Created != 0 {
		t.Errorf("second pass must create nothing, got %d", result.Created)
	}
	if len(store.created) != 1 {
		t.Errorf("expected exactly 1 instrument overall, got %d", len(store.created))
	}
}

func TestSyncEmptyFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  \n"))
	}))
	defer server.Close()

	store := newFakeSyncStore()
	syncer := New(Options{FeedURL: server.URL, AllowedExchanges: []string{"NSE"}}, store, zerolog.Nop())

	result, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("an empty feed must not fail: %v", err)
	}
	if result.Created != 0 || result.Skipped != 0 {
		t.Errorf("expected a zero result, got %+v", result)
	}
}

func TestSyncFeedStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	syncer := New(Options{FeedURL: server.URL}, newFakeSyncStore(), zerolog.Nop())

	if _, err := syncer.Sync(context.Background()); err == nil {
		t.Fatal("expected an error for a non-200 feed response")
	}
}

func TestSyncEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Join([]string{
			"exchange,trading_symbol,name,segment,series",
			"NSE,RELIANCE,Reliance Industries,CASH,EQ",
			"NSE,NIFTYFUT,Nifty Future,FNO,EQ",
		}, "\n")))
	}))
	defer server.Close()

	store := newFakeSyncStore()
	syncer := New(Options{FeedURL: server.URL, AllowedExchanges: []string{"NSE"}}, store, zerolog.Nop())

	result, err := syncer.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if result.Created != 1 {
		t.Errorf("expected 1 created, got %d", result.Created)
	}
	if len(store.created) != 1 || store.created[0].Symbol != "RELIANCE" {
		t.Errorf("unexpected created set %+v", store.created)
	}
}

package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"stock-data-ingest/internal/model"
)

func TestAlphaVantageCredentialMissing(t *testing.T) {
	provider := NewAlphaVantage(zerolog.Nop())

	_, err := provider.Fetch(context.Background(), model.DataSource{Name: "av"}, FetchRequest{Symbol: "AAPL", Interval: model.Interval1d})
	if err == nil {
		t.Fatal("expected an error without an api key")
	}
	if !IsCode(err, CodeCredentialMissing) {
		t.Errorf("expected %s, got %s", CodeCredentialMissing, CodeOf(err))
	}
}

func TestAlphaVantageFetchDaily(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "TIME_SERIES_DAILY" {
			t.Errorf("unexpected function %q", q.Get("function"))
		}
		if q.Get("symbol") != "AAPL" || q.Get("apikey") != "demo" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("outputsize") != "compact" {
			t.Errorf("expected compact outputsize, got %q", q.Get("outputsize"))
		}
		w.Write([]byte(`{
			"Time Series (Daily)": {
				"2024-01-25": {"1. open": "149.50", "2. high": "150.50", "3. low": "148.50", "4. close": "149.50", "5. volume": "1000"},
				"2024-01-24": {"1. open": "148.00", "2. high": "149.00", "3. low": "147.00", "4. close": "148.50", "5. volume": "2000"}
			}
		}`))
	}))
	defer server.Close()

	provider := NewAlphaVantage(zerolog.Nop())
	ds := model.DataSource{Name: "av", ProviderType: "ALPHA_VANTAGE", APIEndpoint: server.URL, APIKey: "demo"}

	resp, err := provider.Fetch(context.Background(), ds, FetchRequest{Symbol: "AAPL", Interval: model.Interval1d})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(resp.Daily) != 2 {
		t.Fatalf("expected 2 daily rows, got %d", len(resp.Daily))
	}
	if resp.Daily["2024-01-25"].Open != "149.50" {
		t.Errorf("unexpected open %q", resp.Daily["2024-01-25"].Open)
	}
}

func TestAlphaVantageIntradayQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "TIME_SERIES_INTRADAY" {
			t.Errorf("unexpected function %q", q.Get("function"))
		}
		if q.Get("interval") != "5min" {
			t.Errorf("unexpected interval %q", q.Get("interval"))
		}
		w.Write([]byte(`{"Time Series (5min)": {"2024-01-25 10:00:00": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "5"}}}`))
	}))
	defer server.Close()

	provider := NewAlphaVantage(zerolog.Nop())
	ds := model.DataSource{Name: "av", ProviderType: "ALPHA_VANTAGE", APIEndpoint: server.URL, APIKey: "demo"}

	resp, err := provider.Fetch(context.Background(), ds, FetchRequest{Symbol: "AAPL", Interval: model.Interval5m})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(resp.Min5) != 1 {
		t.Errorf("expected 1 row in the 5min series, got %d", len(resp.Min5))
	}
}

func TestAlphaVantageNoteIsFatal(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"error message", `{"Error Message": "Invalid API call"}`},
		{"rate limit note", `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`},
		{"information", `{"Information": "premium endpoint"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			provider := NewAlphaVantage(zerolog.Nop())
			ds := model.DataSource{Name: "av", ProviderType: "ALPHA_VANTAGE", APIEndpoint: server.URL, APIKey: "demo"}

			_, err := provider.Fetch(context.Background(), ds, FetchRequest{Symbol: "AAPL", Interval: model.Interval1d})
			if err == nil {
				t.Fatal("expected a fatal error for diagnostic body on 200")
			}
			if !IsCode(err, CodeProviderPayload) {
				t.Errorf("expected %s, got %s", CodeProviderPayload, CodeOf(err))
			}
		})
	}
}

func TestAlphaVantageRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream blew up", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"Time Series (Daily)": {"2024-01-25": {"1. open": "1", "2. high": "1", "3. low": "1", "4. close": "1", "5. volume": "1"}}}`))
	}))
	defer server.Close()

	provider := NewAlphaVantage(zerolog.Nop())
	ds := model.DataSource{Name: "av", ProviderType: "ALPHA_VANTAGE", APIEndpoint: server.URL, APIKey: "demo"}

	resp, err := provider.Fetch(context.Background(), ds, FetchRequest{Symbol: "AAPL", Interval: model.Interval1d})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if len(resp.Daily) != 1 {
		t.Errorf("expected 1 daily row after retry, got %d", len(resp.Daily))
	}
}

func TestAlphaVantageNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such symbol", http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewAlphaVantage(zerolog.Nop())
	ds := model.DataSource{Name: "av", ProviderType: "ALPHA_VANTAGE", APIEndpoint: server.URL, APIKey: "demo"}

	_, err := provider.Fetch(context.Background(), ds, FetchRequest{Symbol: "NOPE", Interval: model.Interval1d})
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	if !IsCode(err, CodeProviderHTTP) {
		t.Errorf("expected %s, got %s", CodeProviderHTTP, CodeOf(err))
	}
	if calls.Load() != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestAlphaVantageIntervalMapping(t *testing.T) {
	cases := map[model.Interval]string{
		model.Interval1m:  "1min",
		model.Interval5m:  "5min",
		model.Interval15m: "15min",
		model.Interval30m: "30min",
		model.Interval1h:  "60min",
		model.Interval4h:  "60min",
	}
	for interval, want := range cases {
		if got := alphaVantageInterval(interval); got != want {
			t.Errorf("alphaVantageInterval(%s) = %s, want %s", interval, got, want)
		}
	}
}

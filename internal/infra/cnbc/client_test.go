package cnbc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"watchlist_go/internal/domain"

	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, time.Second)
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

func TestFetchQuotes_SingleSymbolShape(t *testing.T) {
	var gotSymbols string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotSymbols = r.URL.Query().Get("symbols")
		if r.URL.Query().Get("requestMethod") != "fast" {
			t.Errorf("missing requestMethod=fast: %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"FastQuoteResult":{"FastQuote":{"symbol":"AAPL","last":"150.255","change_pct":"1.2"}}}`))
	})

	quotes, err := client.FetchQuotes(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if gotSymbols != "AAPL" {
		t.Errorf("symbols param = %q", gotSymbols)
	}
	q, ok := quotes["AAPL"]
	if !ok {
		t.Fatal("AAPL missing from result")
	}
	if !q.Price.Equal(decimal.RequireFromString("150.255")) {
		t.Errorf("price = %s, want unrounded 150.255", q.Price)
	}
	if !q.ChangePercent.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("change = %s", q.ChangePercent)
	}
}

func TestFetchQuotes_MultiSymbolShape(t *testing.T) {
	var gotSymbols string
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotSymbols = r.URL.Query().Get("symbols")
		w.Write([]byte(`{"FastQuoteResult":{"FastQuote":[
			{"symbol":"AAPL","last":"150.25","change_pct":"+1.20%"},
			{"symbol":".SPX","last":"4,512.34","change_pct":"-0.5"},
			{"symbol":"VFIAX","last":"410.01","change_pct":"UNCH"}
		]}}`))
	})

	quotes, err := client.FetchQuotes(context.Background(), []string{"AAPL", ".SPX", "VFIAX"})
	if err != nil {
		t.Fatalf("FetchQuotes failed: %v", err)
	}
	if gotSymbols != "AAPL|.SPX|VFIAX" {
		t.Errorf("symbols param = %q", gotSymbols)
	}
	if len(quotes) != 3 {
		t.Fatalf("expected 3 quotes, got %d", len(quotes))
	}
	if !quotes[".SPX"].Price.Equal(decimal.RequireFromString("4512.34")) {
		t.Errorf("index price = %s", quotes[".SPX"].Price)
	}
	if !quotes["AAPL"].ChangePercent.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("AAPL change = %s", quotes["AAPL"].ChangePercent)
	}
	if !quotes["VFIAX"].ChangePercent.IsZero() {
		t.Errorf("UNCH change = %s", quotes["VFIAX"].ChangePercent)
	}
}

func TestFetchQuotes_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) }},
		{"not json", respond(`<html>oops</html>`)},
		{"missing node", respond(`{"Other":{}}`)},
		{"bad number in batch", respond(`{"FastQuoteResult":{"FastQuote":[
			{"symbol":"AAPL","last":"150.25","change_pct":"1"},
			{"symbol":"MSFT","last":"n/a","change_pct":"1"}]}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestServer(t, tt.handler)
			quotes, err := client.FetchQuotes(context.Background(), []string{"AAPL", "MSFT"})
			if err == nil {
				t.Fatalf("expected error, got %v", quotes)
			}
			if quotes != nil {
				t.Error("a failed batch must not return partial quotes")
			}
			if !domain.IsRetriable(err) {
				t.Errorf("feed errors must be transient, got %v", err)
			}
		})
	}
}

func TestFetchQuotes_NoSymbolsNoRequest(t *testing.T) {
	called := false
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	quotes, err := client.FetchQuotes(context.Background(), nil)
	if err != nil || len(quotes) != 0 || called {
		t.Errorf("empty batch: quotes=%v err=%v called=%v", quotes, err, called)
	}
}

func TestResolve(t *testing.T) {
	t.Run("stock", func(t *testing.T) {
		client := newTestServer(t, respond(`{"QuickQuoteResult":{"QuickQuote":{"symbol":"AAPL","code":"0","name":"Apple Inc","assetType":"STOCK"}}}`))
		res, err := client.Resolve(context.Background(), "AAPL")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Class != domain.ClassStock || res.Name != "Apple Inc" || res.Precision != 2 || res.Symbol != "AAPL" {
			t.Errorf("unexpected resolution: %+v", res)
		}
	})

	t.Run("mutual fund", func(t *testing.T) {
		client := newTestServer(t, respond(`{"QuickQuoteResult":{"QuickQuote":{"symbol":"VFIAX","code":"0","name":"Vanguard 500","assetType":"FUND"}}}`))
		res, err := client.Resolve(context.Background(), "VFIAX")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if res.Class != domain.ClassMutualFund {
			t.Errorf("class = %s", res.Class)
		}
	})

	t.Run("not found", func(t *testing.T) {
		client := newTestServer(t, respond(`{"QuickQuoteResult":{"QuickQuote":{"symbol":"ZZZZ","code":"1"}}}`))
		_, err := client.Resolve(context.Background(), "ZZZZ")
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	})

	t.Run("no connection", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
		_, err := client.Resolve(context.Background(), "AAPL")
		if !domain.IsRetriable(err) {
			t.Errorf("expected transient error, got %v", err)
		}
	})
}

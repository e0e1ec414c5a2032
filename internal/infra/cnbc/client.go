package cnbc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

const (
	fastQuotePath  = "$.FastQuoteResult.FastQuote"
	quickQuotePath = "$.QuickQuoteResult.QuickQuote"

	// notFoundCode is what the quote service puts in "code" for an unknown symbol.
	notFoundCode = "1"
)

// Client talks to the polling quote service for stocks and mutual funds.
// It implements domain.QuotePoller and domain.QuoteResolver.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the quote endpoint at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default().With("module", "cnbc_client"),
	}
}

// FetchQuotes requests all symbols in one call. The service answers a single object for one
// symbol and an array for several; both are normalized here. Values are returned unrounded.
// Any unparsable quote fails the whole batch.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	q := url.Values{}
	q.Set("output", "json")
	q.Set("requestMethod", "fast")
	q.Set("symbols", strings.Join(symbols, "|"))

	doc, err := c.get(ctx, q)
	if err != nil {
		return nil, domain.NewTransientFeedError("poll", err)
	}

	items, err := quoteItems(doc, fastQuotePath)
	if err != nil {
		return nil, domain.NewTransientFeedError("poll", err)
	}

	out := make(map[string]domain.Quote, len(items))
	for _, item := range items {
		quote, err := parseFastQuote(item)
		if err != nil {
			return nil, domain.NewTransientFeedError("poll", err)
		}
		out[quote.Symbol] = quote
	}
	return out, nil
}

// Resolve looks up a stock, index or mutual fund ticker.
func (c *Client) Resolve(ctx context.Context, symbol string) (domain.Resolution, error) {
	q := url.Values{}
	q.Set("output", "json")
	q.Set("symbols", symbol)

	doc, err := c.get(ctx, q)
	if err != nil {
		return domain.Resolution{}, domain.NewTransientFeedError("resolve", err)
	}

	items, err := quoteItems(doc, quickQuotePath)
	if err != nil || len(items) == 0 {
		if err == nil {
			err = domain.ErrEmptyResponse
		}
		return domain.Resolution{}, domain.NewTransientFeedError("resolve", err)
	}
	item := items[0]

	if code := stringField(item, "code"); code == notFoundCode {
		return domain.Resolution{}, &domain.NotFoundError{Symbol: symbol}
	}

	class := domain.ClassMutualFund
	switch stringField(item, "assetType") {
	case "STOCK", "INDEX":
		class = domain.ClassStock
	}

	resolved := stringField(item, "symbol")
	if resolved == "" {
		resolved = symbol
	}
	return domain.Resolution{
		Symbol:    resolved,
		Name:      stringField(item, "name"),
		Class:     class,
		Precision: domain.MinPrecision,
	}, nil
}

func (c *Client) get(ctx context.Context, q url.Values) (interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return doc, nil
}

// quoteItems extracts the quote node at path and returns it as a list whatever its shape.
func quoteItems(doc interface{}, path string) ([]map[string]interface{}, error) {
	node, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}

	switch n := node.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{n}, nil
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(n))
		for _, v := range n {
			m, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: quote entry is %T", domain.ErrMalformedResponse, v)
			}
			items = append(items, m)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: quote node is %T", domain.ErrMalformedResponse, node)
	}
}

func parseFastQuote(item map[string]interface{}) (domain.Quote, error) {
	symbol := stringField(item, "symbol")
	if symbol == "" {
		return domain.Quote{}, fmt.Errorf("%w: quote without symbol", domain.ErrMalformedResponse)
	}
	price, err := parseNumber(stringField(item, "last"))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %s last: %v", domain.ErrMalformedResponse, symbol, err)
	}
	change, err := parseNumber(stringField(item, "change_pct"))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("%w: %s change_pct: %v", domain.ErrMalformedResponse, symbol, err)
	}
	return domain.Quote{Symbol: symbol, Price: price, ChangePercent: change}, nil
}

// parseNumber accepts the service's display formats: "1,234.5", "+1.20%", "UNCH".
func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "UNCH") {
		return decimal.Zero, nil
	}
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimPrefix(s, "+")
	s = strings.ReplaceAll(s, ",", "")
	return decimal.NewFromString(s)
}

func stringField(item map[string]interface{}, key string) string {
	switch v := item[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

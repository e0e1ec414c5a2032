package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"watchlist_go/internal/domain"
	"watchlist_go/internal/infra"
)

// quoteCurrency is the only market the watchlist tracks crypto against.
const quoteCurrency = "USD"

type productResponse struct {
	ID             string `json:"id"`
	BaseCurrency   string `json:"base_currency"`
	QuoteCurrency  string `json:"quote_currency"`
	QuoteIncrement string `json:"quote_increment"`
	Message        string `json:"message"`
}

type currencyResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client resolves crypto symbols against the exchange REST API.
// It implements domain.QuoteResolver.
type Client struct {
	restURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a resolver for the REST API at restURL.
func NewClient(restURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		restURL: strings.TrimSuffix(restURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: slog.Default().With("module", "coinbase_client"),
	}
}

// ProductID maps a base currency to its USD product id ("btc" -> "BTC-USD").
func ProductID(base string) string {
	return strings.ToUpper(base) + "-" + quoteCurrency
}

// SymbolFromProduct maps a product id back to the registry symbol ("BTC-USD" -> "BTC-CRYPTO").
func SymbolFromProduct(productID string) string {
	return domain.CryptoSymbol(strings.TrimSuffix(productID, "-"+quoteCurrency))
}

// Resolve looks up the USD product for a base currency. The returned Symbol is the bare base
// currency; precision follows the product's quote increment.
func (c *Client) Resolve(ctx context.Context, symbol string) (domain.Resolution, error) {
	base := strings.ToUpper(domain.CryptoBase(strings.TrimSpace(symbol)))

	var product productResponse
	status, err := c.getJSON(ctx, "/products/"+ProductID(base), &product)
	if err != nil {
		return domain.Resolution{}, domain.NewTransientFeedError("resolve", err)
	}
	if status == http.StatusNotFound || product.Message == "NotFound" {
		return domain.Resolution{}, &domain.NotFoundError{Symbol: domain.CryptoSymbol(base)}
	}
	if status != http.StatusOK {
		return domain.Resolution{}, domain.NewTransientFeedError("resolve", fmt.Errorf("unexpected status code: %d", status))
	}
	if product.QuoteIncrement == "" {
		return domain.Resolution{}, domain.NewTransientFeedError("resolve", fmt.Errorf("%w: product without quote_increment", domain.ErrMalformedResponse))
	}

	return domain.Resolution{
		Symbol:    base,
		Name:      c.currencyName(ctx, base),
		Class:     domain.ClassCrypto,
		Precision: domain.PrecisionOf(product.QuoteIncrement),
	}, nil
}

// currencyName finds the display name in the currency list. The base id is used if the list
// is unavailable or does not contain it.
func (c *Client) currencyName(ctx context.Context, base string) string {
	var currencies []currencyResponse
	status, err := c.getJSON(ctx, "/currencies", &currencies)
	if err != nil || status != http.StatusOK {
		c.logger.Warn("Currency list unavailable", slog.String("base", base), slog.Any("error", err), slog.Int("status", status))
		return base
	}
	for _, cur := range currencies {
		if strings.EqualFold(cur.ID, base) {
			return cur.Name
		}
	}
	return base
}

// getJSON decodes the body into out for any status so error payloads can be inspected.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}

package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrUnavailable   = errors.New("quote service unavailable")
)

type Quote struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Price  decimal.Decimal `json:"price"`
}

type Provider interface {
	Lookup(ctx context.Context, symbol string) (Quote, error)
}

// Client fetches quotes from an IEX-style endpoint:
// GET {base}/stock/{symbol}/quote?token={key}.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logrus.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *Client) Lookup(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, ErrUnknownSymbol
	}

	u := fmt.Sprintf("%s/stock/%s/quote?token=%s", c.baseURL, url.PathEscape(symbol), url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are retryable, never fatal.
		c.log.Warnf("quote fetch failed for %s: %v", symbol, err)
		return Quote{}, ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Quote{}, ErrUnknownSymbol
	case resp.StatusCode != http.StatusOK:
		c.log.Warnf("quote service returned %d for %s", resp.StatusCode, symbol)
		return Quote{}, ErrUnavailable
	}

	var body struct {
		Symbol      string          `json:"symbol"`
		CompanyName string          `json:"companyName"`
		LatestPrice decimal.Decimal `json:"latestPrice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		c.log.Warnf("quote decode failed for %s: %v", symbol, err)
		return Quote{}, ErrUnavailable
	}
	if body.Symbol == "" || body.LatestPrice.LessThanOrEqual(decimal.Zero) {
		return Quote{}, ErrUnknownSymbol
	}

	return Quote{
		Symbol: body.Symbol,
		Name:   body.CompanyName,
		Price:  body.LatestPrice.Round(2),
	}, nil
}

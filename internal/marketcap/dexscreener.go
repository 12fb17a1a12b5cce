// Package marketcap looks up token market caps and caches them per mint.
package marketcap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDexScreenerURL is the public DexScreener API root.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// Errors returned by fetchers. All of them mean "unknown market cap".
var (
	ErrUnavailable = errors.New("market cap source unavailable")
	ErrNoPairs     = errors.New("no trading pairs")
	ErrNoFDV       = errors.New("fdv not available")
)

// Fetcher returns the market cap in USD for a token mint.
type Fetcher interface {
	FetchMarketCap(ctx context.Context, mint string) (decimal.Decimal, error)
}

// DexScreener fetches the fully diluted valuation of the first pair listed
// for a token.
type DexScreener struct {
	baseURL string
	client  *http.Client
}

var _ Fetcher = (*DexScreener)(nil)

// NewDexScreener creates a client. An empty baseURL uses the public API.
func NewDexScreener(baseURL string, timeout time.Duration) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DexScreener{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type tokensResponse struct {
	Pairs []struct {
		FDV *json.Number `json:"fdv"`
	} `json:"pairs"`
}

// FetchMarketCap implements Fetcher.
func (d *DexScreener) FetchMarketCap(ctx context.Context, mint string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/tokens/%s", d.baseURL, url.PathEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return decimal.Zero, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	var body tokensResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	if len(body.Pairs) == 0 {
		return decimal.Zero, ErrNoPairs
	}
	fdv := body.Pairs[0].FDV
	if fdv == nil {
		return decimal.Zero, ErrNoFDV
	}

	v, err := decimal.NewFromString(fdv.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: fdv %q: %v", ErrUnavailable, fdv.String(), err)
	}
	return v, nil
}

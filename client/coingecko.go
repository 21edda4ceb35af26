package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coingeckoAPI  = "https://api.coingecko.com/api/v3"
	stableAssetID = "usd-coin"
)

// CoinGeckoClient reads the stable asset price from the CoinGecko API.
type CoinGeckoClient struct {
	baseURL  string
	currency string
	client   *http.Client
}

// NewCoinGeckoClient creates a client quoting USDC in currency (e.g. "BRL").
// An empty baseURL selects the public API.
func NewCoinGeckoClient(baseURL, currency string) *CoinGeckoClient {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	return &CoinGeckoClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		currency: strings.ToLower(currency),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Rate returns the price of one USDC in the configured currency.
func (c *CoinGeckoClient) Rate(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", c.baseURL, stableAssetID, c.currency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to build rate request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate: %w", err)
	}

	rate, ok := prices[stableAssetID][c.currency]
	if !ok {
		return decimal.Zero, fmt.Errorf("no %s price in response", c.currency)
	}
	return rate, nil
}

package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/premiummeter/premiummeter/src/models"
)

type fmpQuoteDTO struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// FMPClient serves underlying prices from the Financial Modeling Prep
// quote-short endpoint. Tertiary provider, price only.
type FMPClient struct {
	BaseURL string
	APIKey  string
}

func NewFMPClient(baseURL, apiKey string) *FMPClient {
	return &FMPClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

func (c *FMPClient) Name() models.DataSource {
	return models.SourceFMP
}

func (c *FMPClient) FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error) {
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return 0, fmt.Errorf("FMPClient.FetchPrice: failed to parse base URL: %w", err)
	}

	parsedURL.Path = path.Join(parsedURL.Path, "quote-short", symbol.String())

	client := http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("FMPClient.FetchPrice: failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("apikey", c.APIKey)

	req.URL.RawQuery = q.Encode()
	req.Header.Add("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("FMPClient.FetchPrice: failed to fetch quote: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("FMPClient.FetchPrice: failed to fetch quote, http code %v", res.Status)
	}

	var dto []fmpQuoteDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return 0, fmt.Errorf("FMPClient.FetchPrice: failed to decode json: %w", err)
	}

	if len(dto) == 0 {
		return 0, fmt.Errorf("FMPClient.FetchPrice: no data returned for %s", symbol)
	}

	if dto[0].Price <= 0 {
		return 0, fmt.Errorf("FMPClient.FetchPrice: non-positive price %.2f for %s", dto[0].Price, symbol)
	}

	return dto[0].Price, nil
}

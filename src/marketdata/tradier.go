package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/premiummeter/premiummeter/src/models"
)

type tradierQuotesDTO struct {
	Quotes struct {
		Tick struct {
			Symbol string  `json:"symbol"`
			Last   float64 `json:"last"`
			Bid    float64 `json:"bid"`
			Ask    float64 `json:"ask"`
		} `json:"quote"`
	} `json:"quotes"`
}

type tradierExpirationsDTO struct {
	Expirations struct {
		Date []string `json:"date"`
	} `json:"expirations"`
}

type tradierOptionChainDTO struct {
	Options struct {
		Values []models.OptionChainTickDTO `json:"option"`
	} `json:"options"`
}

// TradierClient talks to the Tradier markets API. It is the primary quote
// provider and the only one that serves option chains and the exchange
// calendar.
type TradierClient struct {
	StockQuotesURL       string
	OptionExpirationsURL string
	OptionChainURL       string
	CalendarURL          string
	BearerToken          string

	mu             sync.Mutex
	cachedCalendar *models.MarketCalendarDTO
}

func NewTradierClient(stockQuotesURL, optionExpirationsURL, optionChainURL, calendarURL, bearerToken string) *TradierClient {
	return &TradierClient{
		StockQuotesURL:       stockQuotesURL,
		OptionExpirationsURL: optionExpirationsURL,
		OptionChainURL:       optionChainURL,
		CalendarURL:          calendarURL,
		BearerToken:          bearerToken,
	}
}

func (c *TradierClient) Name() models.DataSource {
	return models.SourceTradier
}

func (c *TradierClient) FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error) {
	client := http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StockQuotesURL, nil)
	if err != nil {
		return 0, fmt.Errorf("TradierClient.FetchPrice: failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("symbols", symbol.String())

	req.URL.RawQuery = q.Encode()
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.BearerToken))

	res, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("TradierClient.FetchPrice: failed to fetch quote: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("TradierClient.FetchPrice: failed to fetch quote, http code %v", res.Status)
	}

	var dto tradierQuotesDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return 0, fmt.Errorf("TradierClient.FetchPrice: failed to decode json: %w", err)
	}

	if dto.Quotes.Tick.Last <= 0 {
		return 0, fmt.Errorf("TradierClient.FetchPrice: no usable last price for %s", symbol)
	}

	return dto.Quotes.Tick.Last, nil
}

// FetchExpirations returns the available expiration dates for the symbol,
// sorted ascending.
func (c *TradierClient) FetchExpirations(ctx context.Context, symbol models.StockSymbol) ([]time.Time, error) {
	client := http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.OptionExpirationsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("TradierClient.FetchExpirations: failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("symbol", symbol.String())
	q.Add("includeAllRoots", "true")
	q.Add("strikes", "false")

	req.URL.RawQuery = q.Encode()
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.BearerToken))

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TradierClient.FetchExpirations: failed to fetch expirations: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TradierClient.FetchExpirations: failed to fetch expirations, http code %v", res.Status)
	}

	var dto tradierExpirationsDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("TradierClient.FetchExpirations: failed to decode json: %w", err)
	}

	expirations := make([]time.Time, 0, len(dto.Expirations.Date))

	for _, dateStr := range dto.Expirations.Date {
		expiration, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("TradierClient.FetchExpirations: failed to parse expiration date %s: %w", dateStr, err)
		}

		expirations = append(expirations, expiration)
	}

	sort.Slice(expirations, func(i, j int) bool {
		return expirations[i].Before(expirations[j])
	})

	return expirations, nil
}

// FetchChain pulls the full chain for one expiration with provider greeks
// attached, split into calls and puts.
func (c *TradierClient) FetchChain(ctx context.Context, symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error) {
	client := http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.OptionChainURL, nil)
	if err != nil {
		return nil, fmt.Errorf("TradierClient.FetchChain: failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("symbol", symbol.String())
	q.Add("expiration", expiration.Format("2006-01-02"))
	q.Add("greeks", "true")

	req.URL.RawQuery = q.Encode()
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.BearerToken))

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("TradierClient.FetchChain: failed to fetch option chain: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("TradierClient.FetchChain: failed to fetch option chain, http code %v", res.Status)
	}

	var dto tradierOptionChainDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("TradierClient.FetchChain: failed to decode json: %w", err)
	}

	chain := &models.OptionChainDTO{
		Underlying: symbol,
		Expiration: expiration,
	}

	for _, tick := range dto.Options.Values {
		switch models.OptionType(tick.OptionType) {
		case models.Call:
			chain.Calls = append(chain.Calls, tick)
		case models.Put:
			chain.Puts = append(chain.Puts, tick)
		default:
			log.Warnf("TradierClient.FetchChain: skipping tick %s with option type %q", tick.Symbol, tick.OptionType)
		}
	}

	return chain, nil
}

// FetchMarketCalendar returns the exchange calendar for the month containing
// now. The previous payload is reused while the month has not rolled over.
func (c *TradierClient) FetchMarketCalendar(ctx context.Context, now time.Time) (*models.MarketCalendarDTO, error) {
	c.mu.Lock()
	cached := c.cachedCalendar
	c.mu.Unlock()

	if cached != nil && cached.Calendar.Month == int(now.Month()) && cached.Calendar.Year == now.Year() {
		return cached, nil
	}

	log.Debugf("FetchMarketCalendar: fetching market calendar for %v", now.Format("2006-01"))

	client := http.Client{
		Timeout: 10 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CalendarURL, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchMarketCalendar: failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Add("month", fmt.Sprintf("%02d", int(now.Month())))
	q.Add("year", fmt.Sprintf("%d", now.Year()))

	req.URL.RawQuery = q.Encode()
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.BearerToken))

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchMarketCalendar: failed to fetch market calendar: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchMarketCalendar: failed to fetch market calendar, http code %v", res.Status)
	}

	var dto models.MarketCalendarDTO
	if err := json.NewDecoder(res.Body).Decode(&dto); err != nil {
		return nil, fmt.Errorf("FetchMarketCalendar: failed to decode json: %w", err)
	}

	c.mu.Lock()
	c.cachedCalendar = &dto
	c.mu.Unlock()

	return &dto, nil
}

// IsTradingDay reports whether the exchange is open at all on the day
// containing now, per the provider calendar.
func (c *TradierClient) IsTradingDay(ctx context.Context, now time.Time) (bool, error) {
	calendar, err := c.FetchMarketCalendar(ctx, now)
	if err != nil {
		return false, fmt.Errorf("IsTradingDay: failed to fetch market calendar: %w", err)
	}

	day, found := calendar.FindDay(now.Format("2006-01-02"))
	if !found {
		return false, fmt.Errorf("IsTradingDay: no calendar entry for %s", now.Format("2006-01-02"))
	}

	return day.Status == "open", nil
}

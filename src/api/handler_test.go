package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/query"
	"github.com/premiummeter/premiummeter/src/scheduler"
	"github.com/premiummeter/premiummeter/src/scraper"
)

type stubPriceSource struct {
	price float64
	err   error
}

func (s *stubPriceSource) Name() models.DataSource {
	return models.SourceTradier
}

func (s *stubPriceSource) FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}

	return s.price, nil
}

type stubChainSource struct {
	block chan struct{}
}

func (s *stubChainSource) FetchExpirations(ctx context.Context, symbol models.StockSymbol) ([]time.Time, error) {
	return []time.Time{time.Now().AddDate(0, 0, 10)}, nil
}

func (s *stubChainSource) FetchChain(ctx context.Context, symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error) {
	if s.block != nil {
		<-s.block
	}

	return &models.OptionChainDTO{
		Underlying: symbol,
		Expiration: expiration,
		Calls: []models.OptionChainTickDTO{
			{Symbol: "OPT100", Strike: 100, Last: 5.0, OptionType: string(models.Call)},
		},
	}, nil
}

type fixture struct {
	db        *data.InMemoryDatabaseService
	router    *mux.Router
	collector *scraper.Scraper
	wg        *sync.WaitGroup
}

func newFixture(t *testing.T, price marketdata.PriceSource, chains marketdata.ChainSource) *fixture {
	t.Helper()

	db := data.NewInMemoryDatabaseService()

	schedule := models.DefaultSchedule()
	schedule.StockDelaySeconds = 0
	require.NoError(t, db.SaveSchedule(schedule))

	if price == nil {
		price = &stubPriceSource{price: 100}
	}

	if chains == nil {
		chains = &stubChainSource{}
	}

	priceRouter := marketdata.NewPriceRouter(price)
	priceRouter.Backoff = nil

	collector := scraper.New(db, priceRouter, chains, scraper.NewProgressTracker())

	wg := &sync.WaitGroup{}
	worker := scheduler.New(wg, db, collector, scraper.NewExpiryMarker(db), nil)

	router := mux.NewRouter()
	SetupHandler(router, db, worker, collector, query.NewService(db), marketdata.NewDisplayPriceService(priceRouter, db))

	return &fixture{db: db, router: router, collector: collector, wg: wg}
}

func (f *fixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func seedStock(t *testing.T, db models.IDatabaseService, ticker string) *models.Stock {
	t.Helper()

	stock := &models.Stock{
		Ticker:      models.StockSymbol(ticker),
		CompanyName: ticker + " Inc",
		Status:      models.StockStatusActive,
	}
	entry := &models.WatchlistEntry{MonitoringStatus: models.MonitoringActive}
	require.NoError(t, db.SaveStock(stock, entry))

	return stock
}

func seedRecords(t *testing.T, db models.IDatabaseService, stockID uint, strikes []float64) {
	t.Helper()

	collected := time.Now().Add(-24 * time.Hour)

	records := make([]*models.HistoricalPremiumRecord, 0, len(strikes))
	for _, strike := range strikes {
		records = append(records, &models.HistoricalPremiumRecord{
			StockID:                stockID,
			OptionType:             models.Call,
			StrikePrice:            strike,
			ExpirationDate:         collected.AddDate(0, 0, 10),
			DaysToExpiry:           10,
			ContractStatus:         models.ContractStatusActive,
			Premium:                strike / 20,
			StockPriceAtCollection: 100,
			DataSource:             models.SourceTradier,
			CollectedAt:            collected,
		})
	}

	require.NoError(t, db.SavePremiumRecords(records))
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil)

	rec := f.do(t, "GET", "/health", nil)
	require.Equal(t, 200, rec.Code)

	var body map[string]string
	decodeJSON(t, rec, &body)
	require.Equal(t, "ok", body["status"])
}

func TestWatchlistEndpoints(t *testing.T) {
	t.Run("add then list", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "POST", "/api/watchlist", AddStockRequest{Ticker: "xyz", CompanyName: "XYZ Corp"})
		require.Equal(t, 200, rec.Code)

		var added models.WatchlistItemDTO
		decodeJSON(t, rec, &added)
		require.Equal(t, models.StockSymbol("XYZ"), added.Ticker)
		require.Equal(t, models.MonitoringActive, added.MonitoringStatus)

		rec = f.do(t, "GET", "/api/watchlist", nil)
		require.Equal(t, 200, rec.Code)

		var listed struct {
			Watchlist []models.WatchlistItemDTO `json:"watchlist"`
		}
		decodeJSON(t, rec, &listed)
		require.Len(t, listed.Watchlist, 1)
		require.Equal(t, models.StockSymbol("XYZ"), listed.Watchlist[0].Ticker)
	})

	t.Run("duplicate add conflicts", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "POST", "/api/watchlist", AddStockRequest{Ticker: "XYZ"})
		require.Equal(t, 409, rec.Code)
	})

	t.Run("invalid ticker is rejected", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "POST", "/api/watchlist", AddStockRequest{Ticker: "not a ticker"})
		require.Equal(t, 400, rec.Code)
	})

	t.Run("patch updates monitoring status", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		paused := models.MonitoringPaused
		rec := f.do(t, "PATCH", "/api/watchlist/XYZ", UpdateWatchlistRequest{MonitoringStatus: &paused})
		require.Equal(t, 200, rec.Code)

		items, err := f.db.FetchWatchlist()
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, models.MonitoringPaused, items[0].MonitoringStatus)
	})

	t.Run("patch rejects an invalid status", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		bogus := models.MonitoringStatus("sleeping")
		rec := f.do(t, "PATCH", "/api/watchlist/XYZ", UpdateWatchlistRequest{MonitoringStatus: &bogus})
		require.Equal(t, 400, rec.Code)
	})

	t.Run("delete removes the stock", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "DELETE", "/api/watchlist/XYZ", nil)
		require.Equal(t, 200, rec.Code)

		rec = f.do(t, "DELETE", "/api/watchlist/XYZ", nil)
		require.Equal(t, 404, rec.Code)
	})
}

func TestSchedulerEndpoints(t *testing.T) {
	t.Run("pause and resume flip the flag", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "POST", "/api/scheduler/pause", nil)
		require.Equal(t, 200, rec.Code)

		var dto models.ScheduleDTO
		decodeJSON(t, rec, &dto)
		require.True(t, dto.Paused)

		rec = f.do(t, "POST", "/api/scheduler/resume", nil)
		require.Equal(t, 200, rec.Code)

		decodeJSON(t, rec, &dto)
		require.False(t, dto.Paused)
	})

	t.Run("resume rejects a malformed flag", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "POST", "/api/scheduler/resume?run_immediately=sometimes", nil)
		require.Equal(t, 400, rec.Code)
	})

	t.Run("get config returns the schedule", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "GET", "/api/scheduler/config", nil)
		require.Equal(t, 200, rec.Code)

		var dto models.ScheduleDTO
		decodeJSON(t, rec, &dto)
		require.Equal(t, 5, dto.PollingIntervalMinutes)
		require.Equal(t, "09:30", dto.MarketOpen)
	})

	t.Run("put config updates the interval", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		interval := 15
		rec := f.do(t, "PUT", "/api/scheduler/config", models.ScheduleConfigRequest{PollingIntervalMinutes: &interval})
		require.Equal(t, 200, rec.Code)

		var dto models.ScheduleDTO
		decodeJSON(t, rec, &dto)
		require.Equal(t, 15, dto.PollingIntervalMinutes)
	})

	t.Run("put config rejects invalid values", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		interval := 0
		rec := f.do(t, "PUT", "/api/scheduler/config", models.ScheduleConfigRequest{PollingIntervalMinutes: &interval})
		require.Equal(t, 400, rec.Code)
	})

	t.Run("put config rejects malformed json", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		req := httptest.NewRequest("PUT", "/api/scheduler/config", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		require.Equal(t, 400, rec.Code)
	})

	t.Run("runs honors the limit parameter", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		for i := 0; i < 3; i++ {
			run := &models.ScraperRun{
				RunID:     uuid.New(),
				StartedAt: time.Now().Add(time.Duration(-i) * time.Hour),
				Status:    models.RunStatusCompleted,
			}
			require.NoError(t, f.db.CreateScraperRun(run))
		}

		rec := f.do(t, "GET", "/api/scheduler/runs?limit=2", nil)
		require.Equal(t, 200, rec.Code)

		var body struct {
			Runs []models.ScraperRunDTO `json:"runs"`
		}
		decodeJSON(t, rec, &body)
		require.Len(t, body.Runs, 2)
	})

	t.Run("runs rejects a bad limit", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "GET", "/api/scheduler/runs?limit=zero", nil)
		require.Equal(t, 400, rec.Code)

		rec = f.do(t, "GET", "/api/scheduler/runs?limit=0", nil)
		require.Equal(t, 400, rec.Code)
	})

	t.Run("progress reports idle before any run", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "GET", "/api/scheduler/progress", nil)
		require.Equal(t, 200, rec.Code)

		var snapshot models.ProgressSnapshot
		decodeJSON(t, rec, &snapshot)
		require.False(t, snapshot.IsRunning)
		require.Zero(t, snapshot.TotalStocks)
	})

	t.Run("rate limits include the daily counter", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "GET", "/api/scheduler/rate-limits", nil)
		require.Equal(t, 200, rec.Code)

		var body struct {
			Report          models.RateLimitReport `json:"report"`
			DailyAPIQueries int                    `json:"daily_api_queries"`
		}
		decodeJSON(t, rec, &body)
		require.Equal(t, 1, body.Report.StockCount)
		require.True(t, body.Report.WithinDayLimit)
		require.Zero(t, body.DailyAPIQueries)
	})
}

func TestTriggerEndpoint(t *testing.T) {
	t.Run("starts a run and completes it", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "POST", "/api/scheduler/trigger", nil)
		require.Equal(t, 200, rec.Code)

		require.Eventually(t, func() bool {
			runs, err := f.db.FetchRecentRuns(10)
			return err == nil && len(runs) == 1 && runs[0].Status == models.RunStatusCompleted
		}, time.Second, 5*time.Millisecond)

		f.wg.Wait()
	})

	t.Run("conflicts while a run is in progress", func(t *testing.T) {
		release := make(chan struct{})
		f := newFixture(t, nil, &stubChainSource{block: release})
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "POST", "/api/scheduler/trigger", nil)
		require.Equal(t, 200, rec.Code)
		require.Eventually(t, f.collector.IsRunning, time.Second, 5*time.Millisecond)

		rec = f.do(t, "POST", "/api/scheduler/trigger", nil)
		require.Equal(t, 409, rec.Code)

		close(release)

		require.Eventually(t, func() bool {
			return !f.collector.IsRunning()
		}, 2*time.Second, 5*time.Millisecond)

		f.wg.Wait()
	})
}

func TestQueryEndpoints(t *testing.T) {
	t.Run("premiums aggregates seeded records", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		stock := seedStock(t, f.db, "XYZ")
		seedRecords(t, f.db, stock.ID, []float64{100, 100, 105})

		rec := f.do(t, "GET", "/api/query/premiums?ticker=XYZ&option_type=call&strike_mode=exact&strike=100", nil)
		require.Equal(t, 200, rec.Code)

		var response models.PremiumQueryResponse
		decodeJSON(t, rec, &response)
		require.Equal(t, 1, response.TotalStrikes)
		require.Equal(t, 2, response.TotalDataPoints)
		require.Equal(t, 100.0, response.Results[0].StrikePrice)
	})

	t.Run("unknown ticker is not found", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "GET", "/api/query/premiums?ticker=NOPE&option_type=call&strike_mode=exact&strike=100", nil)
		require.Equal(t, 404, rec.Code)
	})

	t.Run("exact mode without a strike is rejected", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "GET", "/api/query/premiums?ticker=XYZ&option_type=call&strike_mode=exact", nil)
		require.Equal(t, 400, rec.Code)
	})

	t.Run("invalid option type is rejected", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "GET", "/api/query/premiums?ticker=XYZ&option_type=future&strike_mode=exact&strike=100", nil)
		require.Equal(t, 400, rec.Code)
	})

	t.Run("distribution returns raw points", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		stock := seedStock(t, f.db, "XYZ")
		seedRecords(t, f.db, stock.ID, []float64{100, 105})

		rec := f.do(t, "GET", "/api/query/distribution?ticker=XYZ&option_type=call", nil)
		require.Equal(t, 200, rec.Code)

		var response models.DistributionResponse
		decodeJSON(t, rec, &response)
		require.Len(t, response.Points, 2)
	})

	t.Run("surface returns the grid", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		stock := seedStock(t, f.db, "XYZ")
		seedRecords(t, f.db, stock.ID, []float64{100, 105})

		rec := f.do(t, "GET", "/api/query/surface?ticker=XYZ&option_type=call", nil)
		require.Equal(t, 200, rec.Code)

		var response models.SurfaceResponse
		decodeJSON(t, rec, &response)
		require.Equal(t, []float64{100}, response.StockPrices)
		require.Equal(t, []float64{100, 105}, response.Strikes)
		require.Len(t, response.Premiums, 1)
	})
}

func TestStockPriceEndpoint(t *testing.T) {
	t.Run("returns a live quote", func(t *testing.T) {
		f := newFixture(t, &stubPriceSource{price: 101.5}, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "GET", "/api/stocks/XYZ/price", nil)
		require.Equal(t, 200, rec.Code)

		var body struct {
			Ticker string  `json:"ticker"`
			Price  float64 `json:"price"`
			Source string  `json:"source"`
		}
		decodeJSON(t, rec, &body)
		require.Equal(t, "XYZ", body.Ticker)
		require.Equal(t, 101.5, body.Price)
		require.Equal(t, "tradier", body.Source)
	})

	t.Run("unknown ticker is not found", func(t *testing.T) {
		f := newFixture(t, nil, nil)

		rec := f.do(t, "GET", "/api/stocks/NOPE/price", nil)
		require.Equal(t, 404, rec.Code)
	})

	t.Run("falls back to the stored price when providers fail", func(t *testing.T) {
		f := newFixture(t, &stubPriceSource{err: fmt.Errorf("provider down")}, nil)
		stock := seedStock(t, f.db, "XYZ")
		seedRecords(t, f.db, stock.ID, []float64{100})

		rec := f.do(t, "GET", "/api/stocks/XYZ/price", nil)
		require.Equal(t, 200, rec.Code)

		var body struct {
			Price  float64 `json:"price"`
			Source string  `json:"source"`
		}
		decodeJSON(t, rec, &body)
		require.Equal(t, 100.0, body.Price)
		require.Equal(t, "database", body.Source)
	})

	t.Run("no price available anywhere", func(t *testing.T) {
		f := newFixture(t, &stubPriceSource{err: fmt.Errorf("provider down")}, nil)
		seedStock(t, f.db, "XYZ")

		rec := f.do(t, "GET", "/api/stocks/XYZ/price", nil)
		require.Equal(t, 404, rec.Code)
	})
}

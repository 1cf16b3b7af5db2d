package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/premiummeter/premiummeter/src/data"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
)

type stubPriceSource struct {
	name  models.DataSource
	fetch func(symbol models.StockSymbol) (float64, error)
}

func (s *stubPriceSource) Name() models.DataSource {
	return s.name
}

func (s *stubPriceSource) FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error) {
	return s.fetch(symbol)
}

type stubChainSource struct {
	mu          sync.Mutex
	chainCalls  []time.Time
	expirations func(symbol models.StockSymbol) ([]time.Time, error)
	chain       func(symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error)
}

func (s *stubChainSource) FetchExpirations(ctx context.Context, symbol models.StockSymbol) ([]time.Time, error) {
	return s.expirations(symbol)
}

func (s *stubChainSource) FetchChain(ctx context.Context, symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error) {
	s.mu.Lock()
	s.chainCalls = append(s.chainCalls, expiration)
	s.mu.Unlock()

	return s.chain(symbol, expiration)
}

func (s *stubChainSource) calls() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Time(nil), s.chainCalls...)
}

func fixedPrice(price float64) *stubPriceSource {
	return &stubPriceSource{
		name: models.SourceTradier,
		fetch: func(symbol models.StockSymbol) (float64, error) {
			return price, nil
		},
	}
}

func callTick(strike, last, midIV float64) models.OptionChainTickDTO {
	tick := models.OptionChainTickDTO{
		Symbol:     fmt.Sprintf("OPT%.0f", strike),
		Strike:     strike,
		Last:       last,
		OptionType: string(models.Call),
	}

	if midIV > 0 {
		tick.Greeks = &models.OptionGreeksDTO{MidIV: midIV}
	}

	return tick
}

func addStock(t *testing.T, db models.IDatabaseService, ticker string) *models.Stock {
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

func newTestScraper(t *testing.T, db *data.InMemoryDatabaseService, price marketdata.PriceSource, chains marketdata.ChainSource, now time.Time) *Scraper {
	t.Helper()

	schedule := models.DefaultSchedule()
	schedule.StockDelaySeconds = 0
	require.NoError(t, db.SaveSchedule(schedule))

	router := marketdata.NewPriceRouter(price)
	router.Backoff = nil

	s := New(db, router, chains, NewProgressTracker())
	s.backoff = nil
	s.nowFn = func() time.Time { return now }

	return s
}

func TestScraperRun(t *testing.T) {
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC)

	t.Run("single call contract produces one record with greeks", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Underlying: symbol,
					Expiration: exp,
					Calls:      []models.OptionChainTickDTO{callTick(100, 5.0, 0.3)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, metrics.TotalStocks)
		require.Equal(t, 1, metrics.SuccessfulStocks)
		require.Equal(t, 0, metrics.FailedStocks)
		require.Equal(t, 1, metrics.TotalContracts)
		require.Equal(t, 3, metrics.APIRequestsUsed)

		records := db.Records()
		require.Len(t, records, 1)

		record := records[0]
		require.Equal(t, models.Call, record.OptionType)
		require.Equal(t, 100.0, record.StrikePrice)
		require.Equal(t, 10, record.DaysToExpiry)
		require.Equal(t, models.ContractStatusActive, record.ContractStatus)
		require.Equal(t, 5.0, record.Premium)
		require.Equal(t, 100.0, record.StockPriceAtCollection)
		require.Equal(t, models.SourceTradier, record.DataSource)
		require.Equal(t, metrics.RunID, record.ScraperRunID)
		require.Equal(t, now, record.CollectedAt)

		require.NotNil(t, record.ImpliedVolatility)
		require.Equal(t, 0.3, *record.ImpliedVolatility)
		require.NotNil(t, record.Delta)
		require.Greater(t, *record.Delta, 0.0)
		require.Less(t, *record.Delta, 1.0)
		require.NotNil(t, record.Gamma)
		require.NotNil(t, record.Theta)
		require.NotNil(t, record.Vega)
		require.NotNil(t, record.Rho)

		runs, err := db.FetchRecentRuns(1)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, models.RunStatusCompleted, runs[0].Status)
		require.NotNil(t, runs[0].CompletedAt)
		require.Equal(t, 1, runs[0].SuccessfulStocks)
		require.Equal(t, 1, runs[0].TotalContracts)
		require.Len(t, runs[0].StockLogs, 1)
		require.Equal(t, models.StockLogSuccess, runs[0].StockLogs[0].Status)
		require.Equal(t, 1, runs[0].StockLogs[0].ContractsCollected)
	})

	t.Run("contracts without usable premium are dropped", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{
						callTick(100, 0, 0.3),
						callTick(105, 2.5, 0.3),
					},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, metrics.TotalContracts)

		records := db.Records()
		require.Len(t, records, 1)
		require.Equal(t, 105.0, records[0].StrikePrice)
	})

	t.Run("missing iv keeps the record without greeks", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 5.0, 0)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		_, err := s.Run(context.Background())
		require.NoError(t, err)

		records := db.Records()
		require.Len(t, records, 1)
		require.Nil(t, records[0].ImpliedVolatility)
		require.Nil(t, records[0].Delta)
		require.Nil(t, records[0].Gamma)
		require.Nil(t, records[0].Theta)
		require.Nil(t, records[0].Vega)
		require.Nil(t, records[0].Rho)
		require.Equal(t, 5.0, records[0].Premium)
	})

	t.Run("expirations are truncated to the nearest max", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		var expirations []time.Time
		for week := 1; week <= 5; week++ {
			expirations = append(expirations, now.AddDate(0, 0, 7*week))
		}

		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return expirations, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 1.0, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		schedule, err := db.FetchSchedule()
		require.NoError(t, err)
		schedule.MaxExpirations = 2
		require.NoError(t, db.SaveSchedule(schedule))

		_, err = s.Run(context.Background())
		require.NoError(t, err)

		calls := chains.calls()
		require.Len(t, calls, 2)
		require.Equal(t, expirations[0], calls[0])
		require.Equal(t, expirations[1], calls[1])
	})

	t.Run("expired and same-day expirations are skipped without a fetch", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		future := now.AddDate(0, 0, 5)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{now.AddDate(0, 0, -1), now, future}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 1.0, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		_, err := s.Run(context.Background())
		require.NoError(t, err)

		calls := chains.calls()
		require.Len(t, calls, 1)
		require.Equal(t, future, calls[0])

		records := db.Records()
		require.Len(t, records, 1)
		require.Equal(t, 5, records[0].DaysToExpiry)
	})

	t.Run("one failing expiration does not abort the stock", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		bad := now.AddDate(0, 0, 7)
		good := now.AddDate(0, 0, 14)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{bad, good}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				if exp.Equal(bad) {
					return nil, fmt.Errorf("chain unavailable")
				}

				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 1.5, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, metrics.SuccessfulStocks)
		require.Equal(t, 0, metrics.FailedStocks)
		require.Equal(t, 1, metrics.TotalContracts)

		records := db.Records()
		require.Len(t, records, 1)
		require.Equal(t, 14, records[0].DaysToExpiry)

		logs := db.StockLogs()
		require.Len(t, logs, 1)
		require.Equal(t, models.StockLogSuccess, logs[0].Status)
	})

	t.Run("price failure fails the stock and the run continues", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "AAA")
		addStock(t, db, "BBB")

		price := &stubPriceSource{
			name: models.SourceTradier,
			fetch: func(symbol models.StockSymbol) (float64, error) {
				if symbol.String() == "AAA" {
					return 0, fmt.Errorf("quote feed down")
				}

				return 50.0, nil
			},
		}

		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(50, 1.0, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, price, chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, metrics.TotalStocks)
		require.Equal(t, 1, metrics.SuccessfulStocks)
		require.Equal(t, 1, metrics.FailedStocks)
		require.Len(t, metrics.Errors, 1)
		require.Contains(t, metrics.Errors[0], "AAA")
		require.Contains(t, metrics.Errors[0], "no price available")

		logs := db.StockLogs()
		require.Len(t, logs, 2)
		require.Equal(t, models.StockLogFailed, logs[0].Status)
		require.Equal(t, models.StockSymbol("AAA"), logs[0].Ticker)
		require.Equal(t, models.StockLogSuccess, logs[1].Status)
		require.Equal(t, models.StockSymbol("BBB"), logs[1].Ticker)

		// the failed stock persisted nothing
		for _, record := range db.Records() {
			require.Equal(t, 50.0, record.StockPriceAtCollection)
		}
	})

	t.Run("expirations failure fails the stock", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return nil, fmt.Errorf("listing unavailable")
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, metrics.FailedStocks)
		require.Empty(t, db.Records())

		logs := db.StockLogs()
		require.Len(t, logs, 1)
		require.Equal(t, models.StockLogFailed, logs[0].Status)
		require.Contains(t, logs[0].ErrorMessage, "failed to fetch expirations")
	})

	t.Run("no listed expirations skips the stock", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				return nil, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, 0, metrics.FailedStocks)
		require.Equal(t, 1, metrics.SkippedStocks)

		logs := db.StockLogs()
		require.Len(t, logs, 1)
		require.Equal(t, models.StockLogSkipped, logs[0].Status)
	})

	t.Run("second concurrent run is rejected", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "XYZ")

		release := make(chan struct{})
		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				<-release
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 1.0, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		firstDone := make(chan error, 1)
		go func() {
			_, err := s.Run(context.Background())
			firstDone <- err
		}()

		require.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)

		_, err := s.Run(context.Background())
		require.ErrorIs(t, err, ErrRunInProgress)

		close(release)

		select {
		case err := <-firstDone:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("first run never finished")
		}

		runs, err := db.FetchRecentRuns(10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
	})

	t.Run("cancellation between stocks finalizes a partial run", func(t *testing.T) {
		db := data.NewInMemoryDatabaseService()
		addStock(t, db, "AAA")
		addStock(t, db, "BBB")

		ctx, cancel := context.WithCancel(context.Background())

		expiration := now.AddDate(0, 0, 10)
		chains := &stubChainSource{
			expirations: func(symbol models.StockSymbol) ([]time.Time, error) {
				// fires while the first stock is mid-flight
				cancel()
				return []time.Time{expiration}, nil
			},
			chain: func(symbol models.StockSymbol, exp time.Time) (*models.OptionChainDTO, error) {
				return &models.OptionChainDTO{
					Calls: []models.OptionChainTickDTO{callTick(100, 1.0, 0.2)},
				}, nil
			},
		}

		s := newTestScraper(t, db, fixedPrice(100), chains, now)

		metrics, err := s.Run(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, metrics.SuccessfulStocks)
		require.Len(t, metrics.Errors, 1)
		require.Contains(t, metrics.Errors[0], "run cancelled")

		// the in-flight stock still committed atomically
		require.Len(t, db.Records(), 1)

		runs, err := db.FetchRecentRuns(1)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusFailed, runs[0].Status)

		logs := db.StockLogs()
		require.Len(t, logs, 1)
		require.Equal(t, models.StockSymbol("AAA"), logs[0].Ticker)
	})
}

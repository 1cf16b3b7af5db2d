package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/premiummeter/premiummeter/src/greeks"
	"github.com/premiummeter/premiummeter/src/marketdata"
	"github.com/premiummeter/premiummeter/src/models"
)

// ErrRunInProgress is returned when Run is entered while a previous run is
// still executing. The caller drops the trigger; triggers are never queued.
var ErrRunInProgress = errors.New("a collection run is already in progress")

const maxChainAttempts = 3

// Scraper walks the active watchlist and persists one batch of option
// premium records per stock. Strictly sequential: the inter-stock delay is
// the rate-limiting mechanism, so there is no intra-run parallelism.
type Scraper struct {
	db       models.IDatabaseService
	router   *marketdata.PriceRouter
	chains   marketdata.ChainSource
	progress *ProgressTracker
	running  atomic.Bool
	backoff  []time.Duration
	nowFn    func() time.Time
}

func New(db models.IDatabaseService, router *marketdata.PriceRouter, chains marketdata.ChainSource, progress *ProgressTracker) *Scraper {
	return &Scraper{
		db:       db,
		router:   router,
		chains:   chains,
		progress: progress,
		backoff:  []time.Duration{1 * time.Second, 2 * time.Second},
		nowFn:    time.Now,
	}
}

func (s *Scraper) IsRunning() bool {
	return s.running.Load()
}

func (s *Scraper) Progress() models.ProgressSnapshot {
	return s.progress.Snapshot()
}

// Run executes one full collection pass over the active watchlist snapshot.
// Re-entry is rejected with ErrRunInProgress; this guard, not the caller's
// timer, is the authority on single-instance execution. Cancellation is
// honored between stocks only, never inside a stock's atomic commit.
func (s *Scraper) Run(ctx context.Context) (*RunMetrics, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	schedule, err := s.db.FetchSchedule()
	if err != nil {
		return nil, fmt.Errorf("Scraper.Run: failed to fetch schedule: %w", err)
	}

	stocks, err := s.db.FetchActiveStocks()
	if err != nil {
		return nil, fmt.Errorf("Scraper.Run: failed to fetch active stocks: %w", err)
	}

	startedAt := s.nowFn()

	run := &models.ScraperRun{
		RunID:       uuid.New(),
		StartedAt:   startedAt,
		Status:      models.RunStatusRunning,
		TotalStocks: len(stocks),
	}

	if err := s.db.CreateScraperRun(run); err != nil {
		return nil, fmt.Errorf("Scraper.Run: failed to create run record: %w", err)
	}

	metrics := &RunMetrics{
		RunID:       run.RunID,
		TotalStocks: len(stocks),
		StartedAt:   startedAt,
	}

	delay := time.Duration(schedule.StockDelaySeconds) * time.Second

	tickers := make([]string, 0, len(stocks))
	for _, stock := range stocks {
		tickers = append(tickers, stock.Ticker.String())
	}

	s.progress.StartRun(tickers, delay)

	log.Infof("Scraper.Run: run %s starting over %d stocks", run.RunID, len(stocks))

	cancelled := false

	for i := range stocks {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		if err := sleepWithContext(ctx, delay); err != nil {
			cancelled = true
			break
		}

		s.scrapeStock(ctx, schedule, run.RunID, &stocks[i], metrics)
	}

	s.progress.FinishRun()

	completedAt := s.nowFn()
	metrics.Duration = completedAt.Sub(startedAt)

	run.CompletedAt = &completedAt
	run.Status = models.RunStatusCompleted
	run.SuccessfulStocks = metrics.SuccessfulStocks
	run.FailedStocks = metrics.FailedStocks
	run.TotalContracts = metrics.TotalContracts
	run.APIRequestsUsed = metrics.APIRequestsUsed

	if cancelled {
		processed := metrics.SuccessfulStocks + metrics.FailedStocks + metrics.SkippedStocks
		log.Warnf("Scraper.Run: run %s cancelled after %d of %d stocks", run.RunID, processed, len(stocks))

		run.Status = models.RunStatusFailed
		metrics.Errors = append(metrics.Errors, fmt.Sprintf("run cancelled after %d of %d stocks", processed, len(stocks)))
	}

	run.ErrorSummary = strings.Join(metrics.Errors, "; ")

	if err := s.db.UpdateScraperRun(run); err != nil {
		return nil, fmt.Errorf("Scraper.Run: failed to finalize run record: %w", err)
	}

	s.warnOnRequestRate(metrics)

	log.Infof("Scraper.Run: run %s finished: %d successful, %d failed, %d contracts, %d api requests in %v",
		run.RunID, metrics.SuccessfulStocks, metrics.FailedStocks, metrics.TotalContracts, metrics.APIRequestsUsed, metrics.Duration.Round(time.Millisecond))

	return metrics, nil
}

func (s *Scraper) scrapeStock(ctx context.Context, schedule *models.ScraperSchedule, runID uuid.UUID, stock *models.Stock, metrics *RunMetrics) {
	s.progress.BeginStock(stock.Ticker)

	now := s.nowFn()

	quote, err := s.router.GetPrice(ctx, stock.Ticker)
	metrics.APIRequestsUsed++

	if err != nil {
		s.failStock(runID, stock, metrics, fmt.Sprintf("no price available: %v", err), "")
		return
	}

	s.progress.SetSource(quote.Source)

	expirations, err := s.fetchExpirationsWithRetry(ctx, stock.Ticker)
	metrics.APIRequestsUsed++

	if err != nil {
		s.failStock(runID, stock, metrics, fmt.Sprintf("failed to fetch expirations: %v", err), quote.Source)
		return
	}

	if len(expirations) == 0 {
		s.skipStock(runID, stock, metrics, quote.Source)
		return
	}

	if len(expirations) > schedule.MaxExpirations {
		expirations = expirations[:schedule.MaxExpirations]
	}

	calculator := greeks.New(schedule.RiskFreeRate)

	var records []*models.HistoricalPremiumRecord

	for _, expiration := range expirations {
		dte := greeks.DaysToExpiry(expiration, now)
		if dte <= 0 {
			log.Debugf("scrapeStock: %s expiration %s already expired, skipping", stock.Ticker, expiration.Format("2006-01-02"))
			continue
		}

		chain, err := s.fetchChainWithRetry(ctx, stock.Ticker, expiration)
		metrics.APIRequestsUsed++

		if err != nil {
			// one bad expiration never aborts the rest of the stock
			log.Errorf("scrapeStock: %s failed to fetch chain for %s: %v", stock.Ticker, expiration.Format("2006-01-02"), err)
			continue
		}

		records = append(records, s.buildRecords(calculator, runID, stock, quote, chain.Calls, models.Call, expiration, dte, now)...)
		records = append(records, s.buildRecords(calculator, runID, stock, quote, chain.Puts, models.Put, expiration, dte, now)...)
	}

	if err := s.db.SavePremiumRecords(records); err != nil {
		s.failStock(runID, stock, metrics, fmt.Sprintf("failed to persist %d records: %v", len(records), err), quote.Source)
		return
	}

	metrics.SuccessfulStocks++
	metrics.TotalContracts += len(records)
	s.progress.CompleteStock(stock.Ticker)

	logRow := &models.StockScrapeLog{
		RunID:              runID,
		Ticker:             stock.Ticker,
		Status:             models.StockLogSuccess,
		SourceUsed:         quote.Source,
		ContractsCollected: len(records),
		ScrapedAt:          s.nowFn(),
	}

	if err := s.db.SaveStockScrapeLog(logRow); err != nil {
		log.Errorf("scrapeStock: failed to save scrape log for %s: %v", stock.Ticker, err)
	}

	log.Infof("scrapeStock: %s collected %d contracts via %s", stock.Ticker, len(records), quote.Source)
}

func (s *Scraper) buildRecords(calculator *greeks.Calculator, runID uuid.UUID, stock *models.Stock, quote marketdata.PriceQuote, ticks []models.OptionChainTickDTO, optionType models.OptionType, expiration time.Time, dte int, collectedAt time.Time) []*models.HistoricalPremiumRecord {
	records := make([]*models.HistoricalPremiumRecord, 0, len(ticks))

	for i := range ticks {
		tick := &ticks[i]

		premium := tick.DerivePremium()
		if premium <= 0 {
			continue
		}

		record := &models.HistoricalPremiumRecord{
			StockID:                stock.ID,
			OptionType:             optionType,
			StrikePrice:            tick.Strike,
			ExpirationDate:         expiration,
			DaysToExpiry:           dte,
			ContractStatus:         models.ContractStatusActive,
			Premium:                premium,
			StockPriceAtCollection: quote.Price,
			Volume:                 tick.Volume,
			OpenInterest:           tick.OpenInterest,
			DataSource:             quote.Source,
			ScraperRunID:           runID,
			CollectedAt:            collectedAt,
		}

		// missing IV drops the greeks, never the record
		if iv := tick.ImpliedVol(); iv != nil {
			record.ImpliedVolatility = iv

			computed := calculator.Compute(quote.Price, tick.Strike, dte, *iv, optionType)
			record.Delta = computed.Delta
			record.Gamma = computed.Gamma
			record.Theta = computed.Theta
			record.Vega = computed.Vega
			record.Rho = computed.Rho
		}

		records = append(records, record)
	}

	return records
}

func (s *Scraper) failStock(runID uuid.UUID, stock *models.Stock, metrics *RunMetrics, message string, source models.DataSource) {
	log.Errorf("failStock: %s: %s", stock.Ticker, message)

	metrics.FailedStocks++
	metrics.Errors = append(metrics.Errors, fmt.Sprintf("%s: %s", stock.Ticker, message))
	s.progress.FailStock(stock.Ticker)

	logRow := &models.StockScrapeLog{
		RunID:        runID,
		Ticker:       stock.Ticker,
		Status:       models.StockLogFailed,
		SourceUsed:   source,
		ErrorMessage: message,
		ScrapedAt:    s.nowFn(),
	}

	if err := s.db.SaveStockScrapeLog(logRow); err != nil {
		log.Errorf("failStock: failed to save scrape log for %s: %v", stock.Ticker, err)
	}
}

func (s *Scraper) skipStock(runID uuid.UUID, stock *models.Stock, metrics *RunMetrics, source models.DataSource) {
	log.Infof("skipStock: %s has no listed expirations", stock.Ticker)

	metrics.SkippedStocks++
	s.progress.CompleteStock(stock.Ticker)

	logRow := &models.StockScrapeLog{
		RunID:        runID,
		Ticker:       stock.Ticker,
		Status:       models.StockLogSkipped,
		SourceUsed:   source,
		ErrorMessage: "no expirations available",
		ScrapedAt:    s.nowFn(),
	}

	if err := s.db.SaveStockScrapeLog(logRow); err != nil {
		log.Errorf("skipStock: failed to save scrape log for %s: %v", stock.Ticker, err)
	}
}

func (s *Scraper) fetchExpirationsWithRetry(ctx context.Context, symbol models.StockSymbol) ([]time.Time, error) {
	var lastErr error

	for attempt := 0; attempt < maxChainAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, s.backoffAt(attempt-1)); err != nil {
				return nil, err
			}
		}

		expirations, err := s.chains.FetchExpirations(ctx, symbol)
		if err != nil {
			lastErr = err

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			continue
		}

		return expirations, nil
	}

	return nil, lastErr
}

func (s *Scraper) fetchChainWithRetry(ctx context.Context, symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error) {
	var lastErr error

	for attempt := 0; attempt < maxChainAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, s.backoffAt(attempt-1)); err != nil {
				return nil, err
			}
		}

		chain, err := s.chains.FetchChain(ctx, symbol, expiration)
		if err != nil {
			lastErr = err

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			continue
		}

		return chain, nil
	}

	return nil, lastErr
}

func (s *Scraper) backoffAt(i int) time.Duration {
	if len(s.backoff) == 0 {
		return 0
	}

	if i >= len(s.backoff) {
		i = len(s.backoff) - 1
	}

	return s.backoff[i]
}

// warnOnRequestRate compares the realized request rate against provider
// ceilings. Observational only; nothing is throttled retroactively.
func (s *Scraper) warnOnRequestRate(metrics *RunMetrics) {
	minutes := metrics.Duration.Minutes()
	if minutes <= 0 || metrics.APIRequestsUsed == 0 {
		return
	}

	perMinute := float64(metrics.APIRequestsUsed) / minutes
	if perMinute > models.RequestsPerMinuteLimit {
		log.Warnf("warnOnRequestRate: realized rate %.1f requests/min exceeds the %d/min provider limit", perMinute, models.RequestsPerMinuteLimit)
	}

	if perHour := perMinute * 60; perHour > models.RequestsPerHourLimit {
		log.Warnf("warnOnRequestRate: realized rate %.0f requests/hour exceeds the %d/hour provider limit", perHour, models.RequestsPerHourLimit)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

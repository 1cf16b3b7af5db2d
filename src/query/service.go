package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/premiummeter/premiummeter/src/models"
)

// Service answers historical premium queries over the time-series store.
// All filtering happens against the records actually present: strike
// selection never synthesizes strikes the data does not contain.
type Service struct {
	db    models.IDatabaseService
	nowFn func() time.Time
}

func NewService(db models.IDatabaseService) *Service {
	return &Service{
		db:    db,
		nowFn: time.Now,
	}
}

// QueryPremiums filters the store by the request's lookback and duration
// windows, selects strikes per the request's mode and aggregates each
// selected strike's records. No matching data is an empty response, not an
// error.
func (s *Service) QueryPremiums(ctx context.Context, req *models.PremiumQueryRequest) (*models.PremiumQueryResponse, error) {
	ctx, span := otel.Tracer("query").Start(ctx, "QueryPremiums")
	defer span.End()

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("ticker", req.Ticker),
		attribute.String("option_type", string(req.OptionType)),
		attribute.String("strike_mode", string(req.StrikeMode)),
	)

	stock, records, err := s.fetchWindow(ctx, req.Ticker, req.OptionType, req.DurationDays, req.ToleranceDays, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	response := &models.PremiumQueryResponse{
		Ticker:     stock.Ticker,
		OptionType: req.OptionType,
		StrikeMode: req.StrikeMode,
		Results:    []models.PremiumStatistics{},
	}

	groups := groupByStrike(records)
	selected := selectStrikes(req, groups, records)

	for _, strike := range selected {
		statistics, err := aggregateStrike(strike, groups[strike])
		if err != nil {
			return nil, fmt.Errorf("QueryPremiums: %w", err)
		}

		response.Results = append(response.Results, statistics)
		response.TotalDataPoints += statistics.DataPoints
	}

	response.TotalStrikes = len(response.Results)

	log.WithContext(ctx).Debugf("QueryPremiums: %s %s %s matched %d strikes, %d data points",
		req.Ticker, req.OptionType, req.StrikeMode, response.TotalStrikes, response.TotalDataPoints)

	return response, nil
}

// QueryDistribution returns the raw (stock price, strike, premium,
// timestamp) tuples inside the window, skipping per-strike aggregation.
func (s *Service) QueryDistribution(ctx context.Context, req *models.PremiumWindowRequest) (*models.DistributionResponse, error) {
	ctx, span := otel.Tracer("query").Start(ctx, "QueryDistribution")
	defer span.End()

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("ticker", req.Ticker), attribute.String("option_type", string(req.OptionType)))

	stock, records, err := s.fetchWindow(ctx, req.Ticker, req.OptionType, req.DurationDays, req.ToleranceDays, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	response := &models.DistributionResponse{
		Ticker:     stock.Ticker,
		OptionType: req.OptionType,
		Points:     make([]models.DistributionPoint, 0, len(records)),
	}

	for i := range records {
		record := &records[i]

		response.Points = append(response.Points, models.DistributionPoint{
			StockPrice:  record.StockPriceAtCollection,
			StrikePrice: record.StrikePrice,
			Premium:     record.Premium,
			CollectedAt: record.CollectedAt,
		})
	}

	return response, nil
}

// QuerySurface buckets the window's records on the exact (stock price,
// strike) pairs observed and returns a dense grid of mean premiums. Cells
// no record ever landed in are nil, which callers must not read as a zero
// premium.
func (s *Service) QuerySurface(ctx context.Context, req *models.PremiumWindowRequest) (*models.SurfaceResponse, error) {
	ctx, span := otel.Tracer("query").Start(ctx, "QuerySurface")
	defer span.End()

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("ticker", req.Ticker), attribute.String("option_type", string(req.OptionType)))

	stock, records, err := s.fetchWindow(ctx, req.Ticker, req.OptionType, req.DurationDays, req.ToleranceDays, req.LookbackDays)
	if err != nil {
		return nil, err
	}

	response := &models.SurfaceResponse{
		Ticker:      stock.Ticker,
		OptionType:  req.OptionType,
		StockPrices: []float64{},
		Strikes:     []float64{},
		Premiums:    [][]*float64{},
	}

	if len(records) == 0 {
		return response, nil
	}

	type cell struct {
		sum   float64
		count int
	}

	cells := make(map[float64]map[float64]*cell)

	for i := range records {
		record := &records[i]

		row, found := cells[record.StockPriceAtCollection]
		if !found {
			row = make(map[float64]*cell)
			cells[record.StockPriceAtCollection] = row

			response.StockPrices = append(response.StockPrices, record.StockPriceAtCollection)
		}

		c, found := row[record.StrikePrice]
		if !found {
			c = &cell{}
			row[record.StrikePrice] = c
		}

		c.sum += record.Premium
		c.count++
	}

	response.Strikes = distinctStrikes(records)
	sort.Float64s(response.StockPrices)

	for _, price := range response.StockPrices {
		row := make([]*float64, len(response.Strikes))

		for j, strike := range response.Strikes {
			if c, found := cells[price][strike]; found {
				mean := c.sum / float64(c.count)
				row[j] = &mean
			}
		}

		response.Premiums = append(response.Premiums, row)
	}

	return response, nil
}

// fetchWindow resolves the instrument and loads its records inside the
// lookback window, narrowed to the days-to-expiry band when a target
// duration was given. Unknown tickers surface the store's not-found error
// for callers to map to a client fault.
func (s *Service) fetchWindow(ctx context.Context, ticker string, optionType models.OptionType, durationDays, toleranceDays, lookbackDays *int) (*models.Stock, []models.HistoricalPremiumRecord, error) {
	stock, err := s.db.FetchStockByTicker(models.NewStockSymbol(ticker))
	if err != nil {
		return nil, nil, err
	}

	now := s.nowFn()

	filter := models.PremiumRecordFilter{
		StockID:    stock.ID,
		OptionType: optionType,
		From:       now.AddDate(0, 0, -*lookbackDays),
		To:         now,
	}

	if durationDays != nil {
		minDTE := *durationDays - *toleranceDays
		maxDTE := *durationDays + *toleranceDays
		filter.MinDTE = &minDTE
		filter.MaxDTE = &maxDTE
	}

	records, err := s.db.FetchPremiumRecords(filter)
	if err != nil {
		return nil, nil, fmt.Errorf("fetchWindow: failed to fetch records for %s: %w", ticker, err)
	}

	return stock, records, nil
}

func groupByStrike(records []models.HistoricalPremiumRecord) map[float64][]models.HistoricalPremiumRecord {
	groups := make(map[float64][]models.HistoricalPremiumRecord)

	for i := range records {
		groups[records[i].StrikePrice] = append(groups[records[i].StrikePrice], records[i])
	}

	return groups
}

func distinctStrikes(records []models.HistoricalPremiumRecord) []float64 {
	seen := make(map[float64]bool)
	strikes := make([]float64, 0)

	for i := range records {
		if !seen[records[i].StrikePrice] {
			seen[records[i].StrikePrice] = true
			strikes = append(strikes, records[i].StrikePrice)
		}
	}

	sort.Float64s(strikes)

	return strikes
}

// selectStrikes applies the request's strike mode against the strikes
// actually present in the filtered records. The result is sorted ascending
// and every entry is guaranteed to have at least one record in groups.
func selectStrikes(req *models.PremiumQueryRequest, groups map[float64][]models.HistoricalPremiumRecord, records []models.HistoricalPremiumRecord) []float64 {
	strikes := distinctStrikes(records)

	switch req.StrikeMode {
	case models.StrikeModeExact:
		if _, found := groups[*req.Strike]; found {
			return []float64{*req.Strike}
		}

		return nil

	case models.StrikeModePercentageRange:
		low := *req.TargetStrike * (1 - *req.RangePercent/100)
		high := *req.TargetStrike * (1 + *req.RangePercent/100)

		selected := make([]float64, 0, len(strikes))
		for _, strike := range strikes {
			if strike >= low && strike <= high {
				selected = append(selected, strike)
			}
		}

		return selected

	case models.StrikeModeNearest:
		reference, found := referencePrice(records)
		if !found {
			return nil
		}

		var above, below []float64

		for _, strike := range strikes {
			if strike > reference {
				above = append(above, strike)
			} else if strike < reference {
				below = append(below, strike)
			}
		}

		selected := make([]float64, 0)

		if req.CountAbove != nil && len(above) > 0 {
			count := *req.CountAbove
			if count > len(above) {
				count = len(above)
			}

			// the lowest strikes strictly above the reference
			selected = append(selected, above[:count]...)
		}

		if req.CountBelow != nil && len(below) > 0 {
			count := *req.CountBelow
			if count > len(below) {
				count = len(below)
			}

			// the highest strikes strictly below the reference
			selected = append(selected, below[len(below)-count:]...)
		}

		sort.Float64s(selected)

		return selected
	}

	return nil
}

// referencePrice is the underlying price recorded on the most recent
// matching record, the anchor for nearest-mode selection.
func referencePrice(records []models.HistoricalPremiumRecord) (float64, bool) {
	if len(records) == 0 {
		return 0, false
	}

	latest := &records[0]

	for i := range records {
		if records[i].CollectedAt.After(latest.CollectedAt) {
			latest = &records[i]
		}
	}

	return latest.StockPriceAtCollection, true
}

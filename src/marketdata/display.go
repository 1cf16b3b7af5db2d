package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/premiummeter/premiummeter/src/models"
)

// DisplayPriceService serves ad-hoc watchlist display prices. Live quotes go
// through its own router rotation behind a short read-through cache; when
// every live provider is exhausted the last stored premium record's
// underlying price is served instead, marked with SourceDatabase.
type DisplayPriceService struct {
	router *PriceRouter
	db     models.IDatabaseService
	cache  *cache.Cache
}

func NewDisplayPriceService(router *PriceRouter, db models.IDatabaseService) *DisplayPriceService {
	return &DisplayPriceService{
		router: router,
		db:     db,
		cache:  cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (s *DisplayPriceService) GetDisplayPrice(ctx context.Context, stock *models.Stock) (PriceQuote, error) {
	if cached, found := s.cache.Get(stock.Ticker.String()); found {
		if quote, ok := cached.(PriceQuote); ok {
			return quote, nil
		}
	}

	quote, err := s.router.GetPrice(ctx, stock.Ticker)
	if err == nil {
		// only live quotes are cached
		s.cache.Set(stock.Ticker.String(), quote, cache.DefaultExpiration)
		return quote, nil
	}

	if !errors.Is(err, ErrNoPrice) {
		return PriceQuote{}, fmt.Errorf("GetDisplayPrice: failed to fetch price for %s: %w", stock.Ticker, err)
	}

	record, found, dbErr := s.db.FetchLatestPremiumRecord(stock.ID)
	if dbErr != nil {
		return PriceQuote{}, fmt.Errorf("GetDisplayPrice: failed to fetch last stored record for %s: %w", stock.Ticker, dbErr)
	}

	if !found {
		return PriceQuote{}, ErrNoPrice
	}

	return PriceQuote{
		Price:     record.StockPriceAtCollection,
		Source:    models.SourceDatabase,
		Timestamp: record.CollectedAt,
	}, nil
}

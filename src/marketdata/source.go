package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/premiummeter/premiummeter/src/models"
)

// ErrNoPrice means every configured provider was tried and none produced a
// usable positive price.
var ErrNoPrice = errors.New("no provider returned a usable price")

// PriceQuote is an underlying price together with where and when it came from.
type PriceQuote struct {
	Price     float64           `json:"price"`
	Source    models.DataSource `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
}

// PriceSource serves the current price of an underlying.
type PriceSource interface {
	Name() models.DataSource
	FetchPrice(ctx context.Context, symbol models.StockSymbol) (float64, error)
}

// ChainSource lists expiration dates and serves per-expiration option chains.
type ChainSource interface {
	FetchExpirations(ctx context.Context, symbol models.StockSymbol) ([]time.Time, error)
	FetchChain(ctx context.Context, symbol models.StockSymbol, expiration time.Time) (*models.OptionChainDTO, error)
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoricalPremiumRecord is an immutable time-series fact: one row per
// (stock, option type, strike, expiration, collection timestamp). The only
// field ever touched after insert is ContractStatus, flipped to expired by
// the daily sweep.
type HistoricalPremiumRecord struct {
	gorm.Model
	StockID                uint           `gorm:"column:stock_id;not null;index:idx_premium_query,priority:1"`
	Stock                  Stock          `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE"`
	OptionType             OptionType     `gorm:"column:option_type;type:text;not null;index:idx_premium_query,priority:2"`
	StrikePrice            float64        `gorm:"column:strike_price;type:numeric;not null;index:idx_premium_query,priority:3"`
	ExpirationDate         time.Time      `gorm:"column:expiration_date;type:date;not null;index:idx_expiry_sweep,priority:1"`
	DaysToExpiry           int            `gorm:"column:days_to_expiry;not null;index:idx_premium_query,priority:4"`
	ContractStatus         ContractStatus `gorm:"column:contract_status;type:text;not null;default:active;index:idx_expiry_sweep,priority:2"`
	Premium                float64        `gorm:"column:premium;type:numeric;not null"`
	StockPriceAtCollection float64        `gorm:"column:stock_price_at_collection;type:numeric;not null"`
	ImpliedVolatility      *float64       `gorm:"column:implied_volatility;type:numeric"`
	Delta                  *float64       `gorm:"column:delta;type:numeric"`
	Gamma                  *float64       `gorm:"column:gamma;type:numeric"`
	Theta                  *float64       `gorm:"column:theta;type:numeric"`
	Vega                   *float64       `gorm:"column:vega;type:numeric"`
	Rho                    *float64       `gorm:"column:rho;type:numeric"`
	Volume                 int64          `gorm:"column:volume;type:bigint;not null;default:0"`
	OpenInterest           int64          `gorm:"column:open_interest;type:bigint;not null;default:0"`
	DataSource             DataSource     `gorm:"column:data_source;type:text;not null"`
	ScraperRunID           uuid.UUID      `gorm:"column:scraper_run_id;type:uuid;index"`
	CollectedAt            time.Time      `gorm:"column:collected_at;type:timestamptz;not null;index:idx_premium_query,priority:5"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ScraperRun struct {
	gorm.Model
	RunID            uuid.UUID        `gorm:"column:run_id;type:uuid;not null;uniqueIndex"`
	StartedAt        time.Time        `gorm:"column:started_at;type:timestamptz;not null"`
	CompletedAt      *time.Time       `gorm:"column:completed_at;type:timestamptz"`
	Status           RunStatus        `gorm:"column:status;type:text;not null;default:running"`
	TotalStocks      int              `gorm:"column:total_stocks;not null;default:0"`
	SuccessfulStocks int              `gorm:"column:successful_stocks;not null;default:0"`
	FailedStocks     int              `gorm:"column:failed_stocks;not null;default:0"`
	TotalContracts   int              `gorm:"column:total_contracts;not null;default:0"`
	APIRequestsUsed  int              `gorm:"column:api_requests_used;not null;default:0"`
	ErrorSummary     string           `gorm:"column:error_summary;type:text"`
	StockLogs        []StockScrapeLog `gorm:"foreignKey:RunID;references:RunID"`
}

type StockScrapeLog struct {
	gorm.Model
	RunID              uuid.UUID      `gorm:"column:run_id;type:uuid;not null;index"`
	Ticker             StockSymbol    `gorm:"column:ticker;type:text;not null"`
	Status             StockLogStatus `gorm:"column:status;type:text;not null"`
	SourceUsed         DataSource     `gorm:"column:source_used;type:text"`
	ContractsCollected int            `gorm:"column:contracts_collected;not null;default:0"`
	ErrorMessage       string         `gorm:"column:error_message;type:text"`
	ScrapedAt          time.Time      `gorm:"column:scraped_at;type:timestamptz;not null"`
}

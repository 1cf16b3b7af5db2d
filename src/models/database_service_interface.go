package models

import "time"

// PremiumRecordFilter narrows historical premium reads. MinDTE/MaxDTE are
// inclusive bounds on days-to-expiry; nil leaves that side open.
type PremiumRecordFilter struct {
	StockID    uint
	OptionType OptionType
	From       time.Time
	To         time.Time
	MinDTE     *int
	MaxDTE     *int
}

type IDatabaseService interface {
	FetchActiveStocks() ([]Stock, error)
	FetchStockByTicker(ticker StockSymbol) (*Stock, error)
	SaveStock(stock *Stock, entry *WatchlistEntry) error
	UpdateWatchlistEntry(ticker StockSymbol, status *MonitoringStatus, notes *string) (*WatchlistEntry, error)
	RemoveStock(ticker StockSymbol) error
	FetchWatchlist() ([]WatchlistItemDTO, error)

	SavePremiumRecords(records []*HistoricalPremiumRecord) error
	FetchPremiumRecords(filter PremiumRecordFilter) ([]HistoricalPremiumRecord, error)
	FetchLatestPremiumRecord(stockID uint) (*HistoricalPremiumRecord, bool, error)
	MarkExpiredContracts(asOf time.Time) (int64, error)

	FetchSchedule() (*ScraperSchedule, error)
	SaveSchedule(schedule *ScraperSchedule) error

	CreateScraperRun(run *ScraperRun) error
	UpdateScraperRun(run *ScraperRun) error
	SaveStockScrapeLog(log *StockScrapeLog) error
	FetchRecentRuns(limit int) ([]ScraperRun, error)
}

package data

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/premiummeter/premiummeter/src/models"
)

var (
	ErrStockNotFound  = errors.New("stock not found")
	ErrDuplicateStock = errors.New("stock already on watchlist")
)

type DatabaseService struct {
	db *gorm.DB
}

func NewDatabaseService(db *gorm.DB) *DatabaseService {
	return &DatabaseService{db: db}
}

func (s *DatabaseService) FetchActiveStocks() ([]models.Stock, error) {
	var stocks []models.Stock

	if result := s.db.
		Joins("JOIN watchlist_entries ON watchlist_entries.stock_id = stocks.id").
		Where("watchlist_entries.monitoring_status = ? AND watchlist_entries.deleted_at IS NULL", models.MonitoringActive).
		Where("stocks.status = ?", models.StockStatusActive).
		Order("stocks.ticker asc").
		Find(&stocks); result.Error != nil {
		return nil, fmt.Errorf("FetchActiveStocks: failed to query stocks: %w", result.Error)
	}

	return stocks, nil
}

func (s *DatabaseService) FetchStockByTicker(ticker models.StockSymbol) (*models.Stock, error) {
	var stock models.Stock

	if err := s.db.Where("ticker = ?", ticker.String()).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}

		return nil, fmt.Errorf("FetchStockByTicker: failed to query %s: %w", ticker, err)
	}

	return &stock, nil
}

func (s *DatabaseService) SaveStock(stock *models.Stock, entry *models.WatchlistEntry) error {
	var existing models.Stock
	err := s.db.Where("ticker = ?", stock.Ticker.String()).First(&existing).Error
	if err == nil {
		return ErrDuplicateStock
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("SaveStock: failed to check for %s: %w", stock.Ticker, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(stock).Error; err != nil {
			return fmt.Errorf("SaveStock: failed to create stock %s: %w", stock.Ticker, err)
		}

		entry.StockID = stock.ID
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("SaveStock: failed to create watchlist entry for %s: %w", stock.Ticker, err)
		}

		return nil
	})
}

func (s *DatabaseService) UpdateWatchlistEntry(ticker models.StockSymbol, status *models.MonitoringStatus, notes *string) (*models.WatchlistEntry, error) {
	stock, err := s.FetchStockByTicker(ticker)
	if err != nil {
		return nil, err
	}

	var entry models.WatchlistEntry
	if err := s.db.Where("stock_id = ?", stock.ID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}

		return nil, fmt.Errorf("UpdateWatchlistEntry: failed to query entry for %s: %w", ticker, err)
	}

	if status != nil {
		entry.MonitoringStatus = *status
	}

	if notes != nil {
		entry.Notes = *notes
	}

	if err := s.db.Save(&entry).Error; err != nil {
		return nil, fmt.Errorf("UpdateWatchlistEntry: failed to save entry for %s: %w", ticker, err)
	}

	return &entry, nil
}

// RemoveStock hard-deletes the stock and everything hanging off it. This is
// the only path that ever deletes historical premium records.
func (s *DatabaseService) RemoveStock(ticker models.StockSymbol) error {
	stock, err := s.FetchStockByTicker(ticker)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("stock_id = ?", stock.ID).Delete(&models.WatchlistEntry{}).Error; err != nil {
			return fmt.Errorf("RemoveStock: failed to delete watchlist entry for %s: %w", ticker, err)
		}

		if err := tx.Unscoped().Where("stock_id = ?", stock.ID).Delete(&models.HistoricalPremiumRecord{}).Error; err != nil {
			return fmt.Errorf("RemoveStock: failed to delete premium records for %s: %w", ticker, err)
		}

		if err := tx.Unscoped().Delete(stock).Error; err != nil {
			return fmt.Errorf("RemoveStock: failed to delete stock %s: %w", ticker, err)
		}

		return nil
	})
}

func (s *DatabaseService) FetchWatchlist() ([]models.WatchlistItemDTO, error) {
	var entries []models.WatchlistEntry

	if result := s.db.Preload("Stock").Order("id asc").Find(&entries); result.Error != nil {
		return nil, fmt.Errorf("FetchWatchlist: failed to query entries: %w", result.Error)
	}

	items := make([]models.WatchlistItemDTO, 0, len(entries))

	for _, entry := range entries {
		var count int64
		if err := s.db.Model(&models.HistoricalPremiumRecord{}).Where("stock_id = ?", entry.StockID).Count(&count).Error; err != nil {
			return nil, fmt.Errorf("FetchWatchlist: failed to count records for %s: %w", entry.Stock.Ticker, err)
		}

		items = append(items, models.WatchlistItemDTO{
			Ticker:           entry.Stock.Ticker,
			CompanyName:      entry.Stock.CompanyName,
			Status:           entry.Stock.Status,
			MonitoringStatus: entry.MonitoringStatus,
			Notes:            entry.Notes,
			DataPoints:       count,
		})
	}

	return items, nil
}

// SavePremiumRecords inserts one instrument's worth of records atomically.
// Readers never observe a partially written batch.
func (s *DatabaseService) SavePremiumRecords(records []*models.HistoricalPremiumRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("SavePremiumRecords: failed to insert %d records: %w", len(records), err)
		}

		return nil
	})
}

func (s *DatabaseService) FetchPremiumRecords(filter models.PremiumRecordFilter) ([]models.HistoricalPremiumRecord, error) {
	query := s.db.
		Where("stock_id = ? AND option_type = ?", filter.StockID, filter.OptionType).
		Where("collected_at >= ? AND collected_at <= ?", filter.From, filter.To)

	if filter.MinDTE != nil {
		query = query.Where("days_to_expiry >= ?", *filter.MinDTE)
	}

	if filter.MaxDTE != nil {
		query = query.Where("days_to_expiry <= ?", *filter.MaxDTE)
	}

	var records []models.HistoricalPremiumRecord
	if result := query.Order("collected_at asc").Find(&records); result.Error != nil {
		return nil, fmt.Errorf("FetchPremiumRecords: failed to query records: %w", result.Error)
	}

	return records, nil
}

func (s *DatabaseService) FetchLatestPremiumRecord(stockID uint) (*models.HistoricalPremiumRecord, bool, error) {
	var record models.HistoricalPremiumRecord

	err := s.db.Where("stock_id = ?", stockID).Order("collected_at desc").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("FetchLatestPremiumRecord: failed to query stock %d: %w", stockID, err)
	}

	return &record, true, nil
}

func (s *DatabaseService) MarkExpiredContracts(asOf time.Time) (int64, error) {
	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	result := s.db.Model(&models.HistoricalPremiumRecord{}).
		Where("expiration_date < ? AND contract_status = ?", today, models.ContractStatusActive).
		Update("contract_status", models.ContractStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("MarkExpiredContracts: failed to update records: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *DatabaseService) FetchSchedule() (*models.ScraperSchedule, error) {
	var schedule models.ScraperSchedule

	err := s.db.First(&schedule, models.ScheduleSingletonID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		schedule = *models.DefaultSchedule()
		if err := s.db.Create(&schedule).Error; err != nil {
			return nil, fmt.Errorf("FetchSchedule: failed to seed default schedule: %w", err)
		}

		return &schedule, nil
	}

	if err != nil {
		return nil, fmt.Errorf("FetchSchedule: failed to query schedule: %w", err)
	}

	return &schedule, nil
}

func (s *DatabaseService) SaveSchedule(schedule *models.ScraperSchedule) error {
	schedule.ID = models.ScheduleSingletonID

	if err := s.db.Save(schedule).Error; err != nil {
		return fmt.Errorf("SaveSchedule: failed to save schedule: %w", err)
	}

	return nil
}

func (s *DatabaseService) CreateScraperRun(run *models.ScraperRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("CreateScraperRun: failed to create run %s: %w", run.RunID, err)
	}

	return nil
}

func (s *DatabaseService) UpdateScraperRun(run *models.ScraperRun) error {
	if err := s.db.Save(run).Error; err != nil {
		return fmt.Errorf("UpdateScraperRun: failed to save run %s: %w", run.RunID, err)
	}

	return nil
}

func (s *DatabaseService) SaveStockScrapeLog(log *models.StockScrapeLog) error {
	if err := s.db.Create(log).Error; err != nil {
		return fmt.Errorf("SaveStockScrapeLog: failed to create log for %s: %w", log.Ticker, err)
	}

	return nil
}

func (s *DatabaseService) FetchRecentRuns(limit int) ([]models.ScraperRun, error) {
	var runs []models.ScraperRun

	if result := s.db.Preload("StockLogs").Order("started_at desc").Limit(limit).Find(&runs); result.Error != nil {
		return nil, fmt.Errorf("FetchRecentRuns: failed to query runs: %w", result.Error)
	}

	return runs, nil
}

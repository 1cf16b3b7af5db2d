package data

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/premiummeter/premiummeter/src/models"
)

// InMemoryDatabaseService mirrors DatabaseService semantics over maps and
// slices. It backs tests and dry runs; nothing survives the process.
type InMemoryDatabaseService struct {
	mu           sync.Mutex
	nextStockID  uint
	nextRecordID uint
	stocks       map[uint]*models.Stock
	entries      map[uint]*models.WatchlistEntry
	records      []*models.HistoricalPremiumRecord
	schedule     *models.ScraperSchedule
	runs         map[uuid.UUID]*models.ScraperRun
	runOrder     []uuid.UUID
	stockLogs    []*models.StockScrapeLog
}

func NewInMemoryDatabaseService() *InMemoryDatabaseService {
	return &InMemoryDatabaseService{
		nextStockID: 1,
		stocks:      make(map[uint]*models.Stock),
		entries:     make(map[uint]*models.WatchlistEntry),
		runs:        make(map[uuid.UUID]*models.ScraperRun),
	}
}

func (s *InMemoryDatabaseService) FetchActiveStocks() ([]models.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stocks []models.Stock

	for id, stock := range s.stocks {
		entry, found := s.entries[id]
		if !found || entry.MonitoringStatus != models.MonitoringActive {
			continue
		}

		if stock.Status != models.StockStatusActive {
			continue
		}

		stocks = append(stocks, *stock)
	}

	sort.Slice(stocks, func(i, j int) bool {
		return stocks[i].Ticker < stocks[j].Ticker
	})

	return stocks, nil
}

func (s *InMemoryDatabaseService) FetchStockByTicker(ticker models.StockSymbol) (*models.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := s.findStockLocked(ticker)
	if stock == nil {
		return nil, ErrStockNotFound
	}

	copied := *stock

	return &copied, nil
}

func (s *InMemoryDatabaseService) SaveStock(stock *models.Stock, entry *models.WatchlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findStockLocked(stock.Ticker) != nil {
		return ErrDuplicateStock
	}

	stock.ID = s.nextStockID
	s.nextStockID++

	stored := *stock
	s.stocks[stock.ID] = &stored

	entry.StockID = stock.ID
	storedEntry := *entry
	s.entries[stock.ID] = &storedEntry

	return nil
}

func (s *InMemoryDatabaseService) UpdateWatchlistEntry(ticker models.StockSymbol, status *models.MonitoringStatus, notes *string) (*models.WatchlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := s.findStockLocked(ticker)
	if stock == nil {
		return nil, ErrStockNotFound
	}

	entry, found := s.entries[stock.ID]
	if !found {
		return nil, ErrStockNotFound
	}

	if status != nil {
		entry.MonitoringStatus = *status
	}

	if notes != nil {
		entry.Notes = *notes
	}

	copied := *entry

	return &copied, nil
}

func (s *InMemoryDatabaseService) RemoveStock(ticker models.StockSymbol) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stock := s.findStockLocked(ticker)
	if stock == nil {
		return ErrStockNotFound
	}

	delete(s.entries, stock.ID)
	delete(s.stocks, stock.ID)

	kept := s.records[:0]
	for _, record := range s.records {
		if record.StockID != stock.ID {
			kept = append(kept, record)
		}
	}
	s.records = kept

	return nil
}

func (s *InMemoryDatabaseService) FetchWatchlist() ([]models.WatchlistItemDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]models.WatchlistItemDTO, 0, len(s.entries))

	for stockID, entry := range s.entries {
		stock, found := s.stocks[stockID]
		if !found {
			continue
		}

		var count int64
		for _, record := range s.records {
			if record.StockID == stockID {
				count++
			}
		}

		items = append(items, models.WatchlistItemDTO{
			Ticker:           stock.Ticker,
			CompanyName:      stock.CompanyName,
			Status:           stock.Status,
			MonitoringStatus: entry.MonitoringStatus,
			Notes:            entry.Notes,
			DataPoints:       count,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Ticker < items[j].Ticker
	})

	return items, nil
}

func (s *InMemoryDatabaseService) SavePremiumRecords(records []*models.HistoricalPremiumRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		s.nextRecordID++
		record.ID = s.nextRecordID

		stored := *record
		s.records = append(s.records, &stored)
	}

	return nil
}

func (s *InMemoryDatabaseService) FetchPremiumRecords(filter models.PremiumRecordFilter) ([]models.HistoricalPremiumRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.HistoricalPremiumRecord

	for _, record := range s.records {
		if record.StockID != filter.StockID || record.OptionType != filter.OptionType {
			continue
		}

		if record.CollectedAt.Before(filter.From) || record.CollectedAt.After(filter.To) {
			continue
		}

		if filter.MinDTE != nil && record.DaysToExpiry < *filter.MinDTE {
			continue
		}

		if filter.MaxDTE != nil && record.DaysToExpiry > *filter.MaxDTE {
			continue
		}

		matched = append(matched, *record)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CollectedAt.Before(matched[j].CollectedAt)
	})

	return matched, nil
}

func (s *InMemoryDatabaseService) FetchLatestPremiumRecord(stockID uint) (*models.HistoricalPremiumRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.HistoricalPremiumRecord

	for _, record := range s.records {
		if record.StockID != stockID {
			continue
		}

		if latest == nil || record.CollectedAt.After(latest.CollectedAt) {
			latest = record
		}
	}

	if latest == nil {
		return nil, false, nil
	}

	copied := *latest

	return &copied, true, nil
}

func (s *InMemoryDatabaseService) MarkExpiredContracts(asOf time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	var flipped int64

	for _, record := range s.records {
		if record.ContractStatus != models.ContractStatusActive {
			continue
		}

		if record.ExpirationDate.Before(today) {
			record.ContractStatus = models.ContractStatusExpired
			flipped++
		}
	}

	return flipped, nil
}

func (s *InMemoryDatabaseService) FetchSchedule() (*models.ScraperSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == nil {
		s.schedule = models.DefaultSchedule()
	}

	copied := *s.schedule

	return &copied, nil
}

func (s *InMemoryDatabaseService) SaveSchedule(schedule *models.ScraperSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule.ID = models.ScheduleSingletonID
	copied := *schedule
	s.schedule = &copied

	return nil
}

func (s *InMemoryDatabaseService) CreateScraperRun(run *models.ScraperRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.RunID] = &copied
	s.runOrder = append(s.runOrder, run.RunID)

	return nil
}

func (s *InMemoryDatabaseService) UpdateScraperRun(run *models.ScraperRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *run
	s.runs[run.RunID] = &copied

	return nil
}

func (s *InMemoryDatabaseService) SaveStockScrapeLog(log *models.StockScrapeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *log
	s.stockLogs = append(s.stockLogs, &copied)

	return nil
}

func (s *InMemoryDatabaseService) FetchRecentRuns(limit int) ([]models.ScraperRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var runs []models.ScraperRun

	for i := len(s.runOrder) - 1; i >= 0 && len(runs) < limit; i-- {
		run, found := s.runs[s.runOrder[i]]
		if !found {
			continue
		}

		copied := *run

		for _, log := range s.stockLogs {
			if log.RunID == copied.RunID {
				copied.StockLogs = append(copied.StockLogs, *log)
			}
		}

		runs = append(runs, copied)
	}

	return runs, nil
}

// StockLogs returns every log row appended so far, oldest first.
func (s *InMemoryDatabaseService) StockLogs() []models.StockScrapeLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]models.StockScrapeLog, 0, len(s.stockLogs))
	for _, log := range s.stockLogs {
		logs = append(logs, *log)
	}

	return logs
}

// Records returns every premium record stored so far, insertion order.
func (s *InMemoryDatabaseService) Records() []models.HistoricalPremiumRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]models.HistoricalPremiumRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, *record)
	}

	return records
}

func (s *InMemoryDatabaseService) findStockLocked(ticker models.StockSymbol) *models.Stock {
	for _, stock := range s.stocks {
		if stock.Ticker.String() == ticker.String() {
			return stock
		}
	}

	return nil
}

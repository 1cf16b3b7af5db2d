package scraper

import (
	"sync"
	"time"

	"github.com/premiummeter/premiummeter/src/models"
)

// etaSafetyFactor pads the completion estimate for provider latency the
// per-stock delay alone does not capture.
const etaSafetyFactor = 1.2

// ProgressTracker mirrors the state of a collection run for external
// observers. At most one run mutates it at a time; snapshots are copies that
// stay valid while the run keeps moving.
type ProgressTracker struct {
	mu            sync.Mutex
	isRunning     bool
	totalStocks   int
	currentStock  models.StockSymbol
	currentSource models.DataSource
	pending       []string
	completed     []string
	failed        []string
	startTime     time.Time
	perStock      time.Duration
	nowFn         func() time.Time
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		nowFn: time.Now,
	}
}

func (p *ProgressTracker) StartRun(tickers []string, perStock time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.isRunning = true
	p.totalStocks = len(tickers)
	p.currentStock = ""
	p.currentSource = ""
	p.pending = append([]string(nil), tickers...)
	p.completed = nil
	p.failed = nil
	p.startTime = p.nowFn()
	p.perStock = perStock
}

func (p *ProgressTracker) BeginStock(ticker models.StockSymbol) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentStock = ticker
	p.currentSource = ""

	for i, pending := range p.pending {
		if pending == ticker.String() {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			break
		}
	}
}

func (p *ProgressTracker) SetSource(source models.DataSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentSource = source
}

func (p *ProgressTracker) CompleteStock(ticker models.StockSymbol) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.completed = append(p.completed, ticker.String())
	p.currentStock = ""
	p.currentSource = ""
}

func (p *ProgressTracker) FailStock(ticker models.StockSymbol) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failed = append(p.failed, ticker.String())
	p.currentStock = ""
	p.currentSource = ""
}

func (p *ProgressTracker) FinishRun() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.isRunning = false
	p.currentStock = ""
	p.currentSource = ""
}

func (p *ProgressTracker) Snapshot() models.ProgressSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := models.ProgressSnapshot{
		IsRunning:          p.isRunning,
		TotalStocks:        p.totalStocks,
		CompletedStocks:    len(p.completed),
		CurrentStock:       p.currentStock,
		CurrentSource:      p.currentSource,
		PendingStocks:      append([]string{}, p.pending...),
		CompletedStockList: append([]string{}, p.completed...),
		FailedStocks:       append([]string{}, p.failed...),
	}

	if !p.isRunning {
		return snapshot
	}

	startTime := p.startTime
	snapshot.StartTime = &startTime

	remaining := len(p.pending)
	if p.currentStock != "" {
		remaining++
	}

	if remaining > 0 && p.perStock > 0 {
		eta := p.nowFn().Add(time.Duration(float64(remaining) * float64(p.perStock) * etaSafetyFactor))
		snapshot.EstimatedCompletion = &eta
	}

	return snapshot
}

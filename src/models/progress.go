package models

import "time"

// ProgressSnapshot is a point-in-time copy of collection progress, safe to
// hand to API callers while a run mutates the tracker underneath.
type ProgressSnapshot struct {
	IsRunning           bool        `json:"is_running"`
	TotalStocks         int         `json:"total_stocks"`
	CompletedStocks     int         `json:"completed_stocks"`
	CurrentStock        StockSymbol `json:"current_stock,omitempty"`
	CurrentSource       DataSource  `json:"current_source,omitempty"`
	PendingStocks       []string    `json:"pending_stocks"`
	CompletedStockList  []string    `json:"completed_stock_list"`
	FailedStocks        []string    `json:"failed_stocks"`
	StartTime           *time.Time  `json:"start_time,omitempty"`
	EstimatedCompletion *time.Time  `json:"estimated_completion,omitempty"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type ScraperRunDTO struct {
	RunID            uuid.UUID           `json:"run_id"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty"`
	Status           RunStatus           `json:"status"`
	TotalStocks      int                 `json:"total_stocks"`
	SuccessfulStocks int                 `json:"successful_stocks"`
	FailedStocks     int                 `json:"failed_stocks"`
	TotalContracts   int                 `json:"total_contracts"`
	APIRequestsUsed  int                 `json:"api_requests_used"`
	ErrorSummary     string              `json:"error_summary,omitempty"`
	StockLogs        []StockScrapeLogDTO `json:"stock_logs,omitempty"`
}

type StockScrapeLogDTO struct {
	Ticker             StockSymbol    `json:"ticker"`
	Status             StockLogStatus `json:"status"`
	SourceUsed         DataSource     `json:"source_used,omitempty"`
	ContractsCollected int            `json:"contracts_collected"`
	ErrorMessage       string         `json:"error_message,omitempty"`
	ScrapedAt          time.Time      `json:"scraped_at"`
}

func (r *ScraperRun) ToDTO() *ScraperRunDTO {
	dto := &ScraperRunDTO{
		RunID:            r.RunID,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Status:           r.Status,
		TotalStocks:      r.TotalStocks,
		SuccessfulStocks: r.SuccessfulStocks,
		FailedStocks:     r.FailedStocks,
		TotalContracts:   r.TotalContracts,
		APIRequestsUsed:  r.APIRequestsUsed,
		ErrorSummary:     r.ErrorSummary,
	}

	for _, l := range r.StockLogs {
		dto.StockLogs = append(dto.StockLogs, StockScrapeLogDTO{
			Ticker:             l.Ticker,
			Status:             l.Status,
			SourceUsed:         l.SourceUsed,
			ContractsCollected: l.ContractsCollected,
			ErrorMessage:       l.ErrorMessage,
			ScrapedAt:          l.ScrapedAt,
		})
	}

	return dto
}

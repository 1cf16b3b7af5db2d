package models

import "time"

type ScheduleDTO struct {
	PollingIntervalMinutes int            `json:"polling_interval_minutes"`
	MarketOpen             string         `json:"market_open"`
	MarketClose            string         `json:"market_close"`
	Timezone               string         `json:"timezone"`
	ExcludeWeekends        bool           `json:"exclude_weekends"`
	ExcludeHolidays        bool           `json:"exclude_holidays"`
	RiskFreeRate           float64        `json:"risk_free_rate"`
	StockDelaySeconds      int            `json:"stock_delay_seconds"`
	MaxExpirations         int            `json:"max_expirations"`
	Status                 ScheduleStatus `json:"status"`
	Paused                 bool           `json:"paused"`
	LastRunAt              *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt              *time.Time     `json:"next_run_at,omitempty"`
	LastErrorMessage       string         `json:"last_error_message,omitempty"`
	DailyAPIQueries        int            `json:"daily_api_queries"`
}

func (s *ScraperSchedule) ToDTO() *ScheduleDTO {
	return &ScheduleDTO{
		PollingIntervalMinutes: s.PollingIntervalMinutes,
		MarketOpen:             s.MarketOpen,
		MarketClose:            s.MarketClose,
		Timezone:               s.Timezone,
		ExcludeWeekends:        s.ExcludeWeekends,
		ExcludeHolidays:        s.ExcludeHolidays,
		RiskFreeRate:           s.RiskFreeRate,
		StockDelaySeconds:      s.StockDelaySeconds,
		MaxExpirations:         s.MaxExpirations,
		Status:                 s.Status,
		Paused:                 s.Paused,
		LastRunAt:              s.LastRunAt,
		NextRunAt:              s.NextRunAt,
		LastErrorMessage:       s.LastErrorMessage,
		DailyAPIQueries:        s.DailyAPIQueries,
	}
}

// ScheduleConfigRequest carries a partial configuration update; nil fields
// keep their current values. Validation happens after applying.
type ScheduleConfigRequest struct {
	PollingIntervalMinutes *int     `json:"polling_interval_minutes,omitempty"`
	MarketOpen             *string  `json:"market_open,omitempty"`
	MarketClose            *string  `json:"market_close,omitempty"`
	Timezone               *string  `json:"timezone,omitempty"`
	ExcludeWeekends        *bool    `json:"exclude_weekends,omitempty"`
	ExcludeHolidays        *bool    `json:"exclude_holidays,omitempty"`
	RiskFreeRate           *float64 `json:"risk_free_rate,omitempty"`
	StockDelaySeconds      *int     `json:"stock_delay_seconds,omitempty"`
	MaxExpirations         *int     `json:"max_expirations,omitempty"`
}

func (r *ScheduleConfigRequest) Apply(s *ScraperSchedule) error {
	if r.PollingIntervalMinutes != nil {
		s.PollingIntervalMinutes = *r.PollingIntervalMinutes
	}

	if r.MarketOpen != nil {
		s.MarketOpen = *r.MarketOpen
	}

	if r.MarketClose != nil {
		s.MarketClose = *r.MarketClose
	}

	if r.Timezone != nil {
		s.Timezone = *r.Timezone
	}

	if r.ExcludeWeekends != nil {
		s.ExcludeWeekends = *r.ExcludeWeekends
	}

	if r.ExcludeHolidays != nil {
		s.ExcludeHolidays = *r.ExcludeHolidays
	}

	if r.RiskFreeRate != nil {
		s.RiskFreeRate = *r.RiskFreeRate
	}

	if r.StockDelaySeconds != nil {
		s.StockDelaySeconds = *r.StockDelaySeconds
	}

	if r.MaxExpirations != nil {
		s.MaxExpirations = *r.MaxExpirations
	}

	return s.Validate()
}

package models

import (
	"fmt"
	"math"
)

// RateLimitReport estimates provider API usage for the configured watchlist
// size and schedule. Observational only; nothing throttles off it.
type RateLimitReport struct {
	StockCount           int      `json:"stock_count"`
	RequestsPerStock     int      `json:"requests_per_stock"`
	RequestsPerCycle     int      `json:"requests_per_cycle"`
	CycleDurationMinutes float64  `json:"cycle_duration_minutes"`
	RequestsPerMinute    float64  `json:"requests_per_minute"`
	RequestsPerHour      float64  `json:"requests_per_hour"`
	RequestsPerDay       float64  `json:"requests_per_day"`
	WithinMinuteLimit    bool     `json:"within_minute_limit"`
	WithinHourLimit      bool     `json:"within_hour_limit"`
	WithinDayLimit       bool     `json:"within_day_limit"`
	Warnings             []string `json:"warnings,omitempty"`
}

// CalculateRateLimits mirrors the per-cycle cost model: one price request
// per stock plus one chain request per retained expiration. The effective
// cycle length is whichever is longer, the paced walk through the watchlist
// or the polling interval itself.
func CalculateRateLimits(stockCount int, s *ScraperSchedule) *RateLimitReport {
	report := &RateLimitReport{
		StockCount:        stockCount,
		WithinMinuteLimit: true,
		WithinHourLimit:   true,
		WithinDayLimit:    true,
	}

	if stockCount == 0 || s.PollingIntervalMinutes == 0 {
		return report
	}

	report.RequestsPerStock = 1 + s.MaxExpirations
	report.RequestsPerCycle = stockCount * report.RequestsPerStock

	cycleMinutes := float64(stockCount*s.StockDelaySeconds) / 60.0
	report.CycleDurationMinutes = round2(cycleMinutes)

	cyclesPerHour := 60.0 / float64(s.PollingIntervalMinutes)
	report.RequestsPerMinute = round2(float64(report.RequestsPerCycle) / math.Max(cycleMinutes, float64(s.PollingIntervalMinutes)))
	report.RequestsPerHour = round2(cyclesPerHour * float64(report.RequestsPerCycle))
	report.RequestsPerDay = round2(report.RequestsPerHour * 24.0)

	if report.RequestsPerMinute > RequestsPerMinuteLimit {
		report.WithinMinuteLimit = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("estimated %.2f requests/minute exceeds the %d/minute provider limit", report.RequestsPerMinute, RequestsPerMinuteLimit))
	}

	if report.RequestsPerHour > RequestsPerHourLimit {
		report.WithinHourLimit = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("estimated %.2f requests/hour exceeds the %d/hour provider limit", report.RequestsPerHour, RequestsPerHourLimit))
	}

	if report.RequestsPerDay > RequestsPerDayLimit {
		report.WithinDayLimit = false
		report.Warnings = append(report.Warnings, fmt.Sprintf("estimated %.2f requests/day exceeds the %d/day provider limit", report.RequestsPerDay, RequestsPerDayLimit))
	}

	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

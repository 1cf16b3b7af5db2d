package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ScheduleSingletonID = 1

	DefaultRiskFreeRate = 0.045

	// Provider-imposed request ceilings the rate report checks against.
	RequestsPerMinuteLimit = 60
	RequestsPerHourLimit   = 360
	RequestsPerDayLimit    = 8000

	// The daily API counter re-anchors this long before market open.
	counterResetLeadTime = 2 * time.Hour
)

// ScraperSchedule is the singleton configuration plus runtime state row.
// Exactly one row exists, enforced by the store, never by the database.
type ScraperSchedule struct {
	ID                     uint           `gorm:"primaryKey"`
	PollingIntervalMinutes int            `gorm:"column:polling_interval_minutes;not null;default:5"`
	MarketOpen             string         `gorm:"column:market_open;type:text;not null;default:09:30"`
	MarketClose            string         `gorm:"column:market_close;type:text;not null;default:16:00"`
	Timezone               string         `gorm:"column:timezone;type:text;not null;default:America/New_York"`
	ExcludeWeekends        bool           `gorm:"column:exclude_weekends;not null;default:true"`
	ExcludeHolidays        bool           `gorm:"column:exclude_holidays;not null;default:true"`
	RiskFreeRate           float64        `gorm:"column:risk_free_rate;type:numeric;not null;default:0.045"`
	StockDelaySeconds      int            `gorm:"column:stock_delay_seconds;not null;default:1"`
	MaxExpirations         int            `gorm:"column:max_expirations;not null;default:10"`
	Status                 ScheduleStatus `gorm:"column:status;type:text;not null;default:idle"`
	Paused                 bool           `gorm:"column:paused;not null;default:true"`
	LastRunAt              *time.Time     `gorm:"column:last_run_at;type:timestamptz"`
	NextRunAt              *time.Time     `gorm:"column:next_run_at;type:timestamptz"`
	LastErrorMessage       string         `gorm:"column:last_error_message;type:text"`
	DailyAPIQueries        int            `gorm:"column:daily_api_queries;not null;default:0"`
	CounterResetAt         *time.Time     `gorm:"column:counter_reset_at;type:timestamptz"`
	UpdatedAt              time.Time
}

func DefaultSchedule() *ScraperSchedule {
	return &ScraperSchedule{
		ID:                     ScheduleSingletonID,
		PollingIntervalMinutes: 5,
		MarketOpen:             "09:30",
		MarketClose:            "16:00",
		Timezone:               "America/New_York",
		ExcludeWeekends:        true,
		ExcludeHolidays:        true,
		RiskFreeRate:           DefaultRiskFreeRate,
		StockDelaySeconds:      1,
		MaxExpirations:         10,
		Status:                 ScheduleStatusIdle,
		Paused:                 true,
	}
}

func (s *ScraperSchedule) Validate() error {
	if s.PollingIntervalMinutes < 1 || s.PollingIntervalMinutes > 1440 {
		return fmt.Errorf("ScraperSchedule: Validate: polling interval must be between 1 and 1440 minutes, got %d", s.PollingIntervalMinutes)
	}

	if s.StockDelaySeconds < 0 || s.StockDelaySeconds > 300 {
		return fmt.Errorf("ScraperSchedule: Validate: stock delay must be between 0 and 300 seconds, got %d", s.StockDelaySeconds)
	}

	if s.MaxExpirations < 1 || s.MaxExpirations > 100 {
		return fmt.Errorf("ScraperSchedule: Validate: max expirations must be between 1 and 100, got %d", s.MaxExpirations)
	}

	if s.RiskFreeRate < 0 || s.RiskFreeRate > 1 {
		return fmt.Errorf("ScraperSchedule: Validate: risk free rate must be between 0 and 1, got %v", s.RiskFreeRate)
	}

	openMin, err := parseClock(s.MarketOpen)
	if err != nil {
		return fmt.Errorf("ScraperSchedule: Validate: invalid market open: %w", err)
	}

	closeMin, err := parseClock(s.MarketClose)
	if err != nil {
		return fmt.Errorf("ScraperSchedule: Validate: invalid market close: %w", err)
	}

	if openMin >= closeMin {
		return fmt.Errorf("ScraperSchedule: Validate: market open %s must be before market close %s", s.MarketOpen, s.MarketClose)
	}

	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("ScraperSchedule: Validate: invalid timezone %s: %w", s.Timezone, err)
	}

	return nil
}

func (s *ScraperSchedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("ScraperSchedule: Location: failed to load %s: %w", s.Timezone, err)
	}

	return loc, nil
}

// IsMarketHours reports whether now falls inside the configured window,
// evaluated in the schedule's timezone. Holiday calendars are the caller's
// concern; this only knows the clock and the weekend flag.
func (s *ScraperSchedule) IsMarketHours(now time.Time) (bool, error) {
	loc, err := s.Location()
	if err != nil {
		return false, err
	}

	local := now.In(loc)

	if s.ExcludeWeekends {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false, nil
		}
	}

	openMin, err := parseClock(s.MarketOpen)
	if err != nil {
		return false, err
	}

	closeMin, err := parseClock(s.MarketClose)
	if err != nil {
		return false, err
	}

	nowMin := local.Hour()*60 + local.Minute()

	return nowMin >= openMin && nowMin <= closeMin, nil
}

// CounterAnchor returns the most recent daily-counter reset anchor at or
// before now: market open minus two hours, in the schedule's timezone.
func (s *ScraperSchedule) CounterAnchor(now time.Time) (time.Time, error) {
	loc, err := s.Location()
	if err != nil {
		return time.Time{}, err
	}

	openMin, err := parseClock(s.MarketOpen)
	if err != nil {
		return time.Time{}, err
	}

	local := now.In(loc)
	anchor := time.Date(local.Year(), local.Month(), local.Day(), openMin/60, openMin%60, 0, 0, loc).Add(-counterResetLeadTime)

	if local.Before(anchor) {
		anchor = anchor.AddDate(0, 0, -1)
	}

	return anchor, nil
}

// ShouldResetCounter reports whether the daily API counter is stale, i.e.
// its last reset happened before the most recent anchor. Evaluated lazily
// by whoever touches the counter, never by a timer.
func (s *ScraperSchedule) ShouldResetCounter(now time.Time) (bool, error) {
	anchor, err := s.CounterAnchor(now)
	if err != nil {
		return false, err
	}

	if s.CounterResetAt == nil {
		return true, nil
	}

	return s.CounterResetAt.Before(anchor), nil
}

func parseClock(v string) (int, error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("parseClock: expected HH:MM, got %q", v)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("parseClock: invalid hour in %q: %w", v, err)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("parseClock: invalid minute in %q: %w", v, err)
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("parseClock: out of range: %q", v)
	}

	return hour*60 + minute, nil
}

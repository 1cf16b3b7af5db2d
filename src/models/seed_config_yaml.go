package models

// SeedConfigYAML is the optional boot configuration file. Schedule values
// fill the singleton row the first time the service comes up; watchlist
// entries are added whenever the ticker is not already tracked.
type SeedConfigYAML struct {
	Schedule  *ScheduleSeedYAML   `yaml:"schedule"`
	Watchlist []WatchlistSeedYAML `yaml:"watchlist"`
}

// ScheduleSeedYAML mirrors ScheduleConfigRequest with yaml tags. Nil fields
// keep the built-in defaults.
type ScheduleSeedYAML struct {
	PollingIntervalMinutes *int     `yaml:"polling_interval_minutes"`
	MarketOpen             *string  `yaml:"market_open"`
	MarketClose            *string  `yaml:"market_close"`
	Timezone               *string  `yaml:"timezone"`
	ExcludeWeekends        *bool    `yaml:"exclude_weekends"`
	ExcludeHolidays        *bool    `yaml:"exclude_holidays"`
	RiskFreeRate           *float64 `yaml:"risk_free_rate"`
	StockDelaySeconds      *int     `yaml:"stock_delay_seconds"`
	MaxExpirations         *int     `yaml:"max_expirations"`
}

type WatchlistSeedYAML struct {
	Ticker      string `yaml:"ticker"`
	CompanyName string `yaml:"company_name"`
	Notes       string `yaml:"notes"`
}

// ToConfigRequest funnels seed values through the same apply-and-validate
// path the scheduler API uses.
func (s *ScheduleSeedYAML) ToConfigRequest() *ScheduleConfigRequest {
	return &ScheduleConfigRequest{
		PollingIntervalMinutes: s.PollingIntervalMinutes,
		MarketOpen:             s.MarketOpen,
		MarketClose:            s.MarketClose,
		Timezone:               s.Timezone,
		ExcludeWeekends:        s.ExcludeWeekends,
		ExcludeHolidays:        s.ExcludeHolidays,
		RiskFreeRate:           s.RiskFreeRate,
		StockDelaySeconds:      s.StockDelaySeconds,
		MaxExpirations:         s.MaxExpirations,
	}
}

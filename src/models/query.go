package models

import (
	"fmt"
	"time"
)

type StrikeMode string

const (
	StrikeModeExact           StrikeMode = "exact"
	StrikeModePercentageRange StrikeMode = "percentage_range"
	StrikeModeNearest         StrikeMode = "nearest"
)

const (
	DefaultToleranceDays = 3
	DefaultLookbackDays  = 30
)

// PremiumQueryRequest selects historical premium records for aggregation.
// Exactly one strike mode applies; the mode decides which optional fields
// are required. Decoded from query strings by the API layer, hence the
// schema tags.
type PremiumQueryRequest struct {
	Ticker       string     `json:"ticker" schema:"ticker"`
	OptionType   OptionType `json:"option_type" schema:"option_type"`
	StrikeMode   StrikeMode `json:"strike_mode" schema:"strike_mode"`
	Strike       *float64   `json:"strike,omitempty" schema:"strike"`
	TargetStrike *float64   `json:"target_strike,omitempty" schema:"target_strike"`
	RangePercent *float64   `json:"range_percent,omitempty" schema:"range_percent"`
	CountAbove   *int       `json:"count_above,omitempty" schema:"count_above"`
	CountBelow   *int       `json:"count_below,omitempty" schema:"count_below"`
	DurationDays *int       `json:"duration_days,omitempty" schema:"duration_days"`
	// ToleranceDays widens the days-to-expiry match around DurationDays.
	ToleranceDays *int `json:"tolerance_days,omitempty" schema:"tolerance_days"`
	LookbackDays  *int `json:"lookback_days,omitempty" schema:"lookback_days"`
}

func (r *PremiumQueryRequest) ApplyDefaults() {
	if r.ToleranceDays == nil {
		tolerance := DefaultToleranceDays
		r.ToleranceDays = &tolerance
	}

	if r.LookbackDays == nil {
		lookback := DefaultLookbackDays
		r.LookbackDays = &lookback
	}
}

func (r *PremiumQueryRequest) Validate() error {
	if err := NewStockSymbol(r.Ticker).Validate(); err != nil {
		return fmt.Errorf("PremiumQueryRequest: Validate: %w", err)
	}

	if err := r.OptionType.Validate(); err != nil {
		return fmt.Errorf("PremiumQueryRequest: Validate: %w", err)
	}

	switch r.StrikeMode {
	case StrikeModeExact:
		if r.Strike == nil || *r.Strike <= 0 {
			return fmt.Errorf("PremiumQueryRequest: Validate: exact mode requires a positive strike")
		}
	case StrikeModePercentageRange:
		if r.TargetStrike == nil || *r.TargetStrike <= 0 {
			return fmt.Errorf("PremiumQueryRequest: Validate: percentage_range mode requires a positive target_strike")
		}

		if r.RangePercent == nil || *r.RangePercent <= 0 || *r.RangePercent > 100 {
			return fmt.Errorf("PremiumQueryRequest: Validate: percentage_range mode requires range_percent in (0, 100]")
		}
	case StrikeModeNearest:
		if r.CountAbove == nil && r.CountBelow == nil {
			return fmt.Errorf("PremiumQueryRequest: Validate: nearest mode requires count_above and/or count_below")
		}

		if r.CountAbove != nil && (*r.CountAbove < 1 || *r.CountAbove > 50) {
			return fmt.Errorf("PremiumQueryRequest: Validate: count_above must be between 1 and 50, got %d", *r.CountAbove)
		}

		if r.CountBelow != nil && (*r.CountBelow < 1 || *r.CountBelow > 50) {
			return fmt.Errorf("PremiumQueryRequest: Validate: count_below must be between 1 and 50, got %d", *r.CountBelow)
		}
	default:
		return fmt.Errorf("PremiumQueryRequest: Validate: invalid strike mode: %s", r.StrikeMode)
	}

	if r.DurationDays != nil && (*r.DurationDays < 0 || *r.DurationDays > 3650) {
		return fmt.Errorf("PremiumQueryRequest: Validate: duration_days must be between 0 and 3650, got %d", *r.DurationDays)
	}

	if r.ToleranceDays != nil && (*r.ToleranceDays < 0 || *r.ToleranceDays > 30) {
		return fmt.Errorf("PremiumQueryRequest: Validate: tolerance_days must be between 0 and 30, got %d", *r.ToleranceDays)
	}

	if r.LookbackDays != nil && (*r.LookbackDays < 1 || *r.LookbackDays > 3650) {
		return fmt.Errorf("PremiumQueryRequest: Validate: lookback_days must be between 1 and 3650, got %d", *r.LookbackDays)
	}

	return nil
}

// PremiumWindowRequest narrows the raw-distribution and surface reads.
// Every strike inside the window qualifies, so no strike mode applies.
type PremiumWindowRequest struct {
	Ticker        string     `json:"ticker" schema:"ticker"`
	OptionType    OptionType `json:"option_type" schema:"option_type"`
	DurationDays  *int       `json:"duration_days,omitempty" schema:"duration_days"`
	ToleranceDays *int       `json:"tolerance_days,omitempty" schema:"tolerance_days"`
	LookbackDays  *int       `json:"lookback_days,omitempty" schema:"lookback_days"`
}

func (r *PremiumWindowRequest) ApplyDefaults() {
	if r.ToleranceDays == nil {
		tolerance := DefaultToleranceDays
		r.ToleranceDays = &tolerance
	}

	if r.LookbackDays == nil {
		lookback := DefaultLookbackDays
		r.LookbackDays = &lookback
	}
}

func (r *PremiumWindowRequest) Validate() error {
	if err := NewStockSymbol(r.Ticker).Validate(); err != nil {
		return fmt.Errorf("PremiumWindowRequest: Validate: %w", err)
	}

	if err := r.OptionType.Validate(); err != nil {
		return fmt.Errorf("PremiumWindowRequest: Validate: %w", err)
	}

	if r.DurationDays != nil && (*r.DurationDays < 0 || *r.DurationDays > 3650) {
		return fmt.Errorf("PremiumWindowRequest: Validate: duration_days must be between 0 and 3650, got %d", *r.DurationDays)
	}

	if r.ToleranceDays != nil && (*r.ToleranceDays < 0 || *r.ToleranceDays > 30) {
		return fmt.Errorf("PremiumWindowRequest: Validate: tolerance_days must be between 0 and 30, got %d", *r.ToleranceDays)
	}

	if r.LookbackDays != nil && (*r.LookbackDays < 1 || *r.LookbackDays > 3650) {
		return fmt.Errorf("PremiumWindowRequest: Validate: lookback_days must be between 1 and 3650, got %d", *r.LookbackDays)
	}

	return nil
}

type PremiumStatistics struct {
	StrikePrice   float64   `json:"strike_price"`
	DataPoints    int       `json:"data_points"`
	MinPremium    float64   `json:"min_premium"`
	MaxPremium    float64   `json:"max_premium"`
	AvgPremium    float64   `json:"avg_premium"`
	MedianPremium float64   `json:"median_premium"`
	StdDevPremium float64   `json:"std_dev_premium"`
	AvgDelta      *float64  `json:"avg_delta"`
	AvgGamma      *float64  `json:"avg_gamma"`
	AvgTheta      *float64  `json:"avg_theta"`
	AvgVega       *float64  `json:"avg_vega"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

type PremiumQueryResponse struct {
	Ticker          StockSymbol         `json:"ticker"`
	OptionType      OptionType          `json:"option_type"`
	StrikeMode      StrikeMode          `json:"strike_mode"`
	TotalStrikes    int                 `json:"total_strikes"`
	TotalDataPoints int                 `json:"total_data_points"`
	Results         []PremiumStatistics `json:"results"`
}

type DistributionPoint struct {
	StockPrice  float64   `json:"stock_price"`
	StrikePrice float64   `json:"strike_price"`
	Premium     float64   `json:"premium"`
	CollectedAt time.Time `json:"collected_at"`
}

type DistributionResponse struct {
	Ticker     StockSymbol         `json:"ticker"`
	OptionType OptionType          `json:"option_type"`
	Points     []DistributionPoint `json:"points"`
}

// SurfaceResponse is a dense price-by-strike grid of mean premiums. Cells
// with no observations are nil, which is not the same thing as a zero
// premium.
type SurfaceResponse struct {
	Ticker      StockSymbol  `json:"ticker"`
	OptionType  OptionType   `json:"option_type"`
	StockPrices []float64    `json:"stock_prices"`
	Strikes     []float64    `json:"strikes"`
	Premiums    [][]*float64 `json:"premiums"`
}

package query

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"github.com/premiummeter/premiummeter/src/models"
)

// aggregateStrike reduces one strike's records to summary statistics. The
// standard deviation is the population form, which is exactly 0 for a
// single record rather than undefined.
func aggregateStrike(strike float64, records []models.HistoricalPremiumRecord) (models.PremiumStatistics, error) {
	result := models.PremiumStatistics{
		StrikePrice: strike,
		DataPoints:  len(records),
	}

	premiums := make([]float64, 0, len(records))
	deltas := make([]*float64, 0, len(records))
	gammas := make([]*float64, 0, len(records))
	thetas := make([]*float64, 0, len(records))
	vegas := make([]*float64, 0, len(records))

	for i := range records {
		record := &records[i]

		premiums = append(premiums, record.Premium)
		deltas = append(deltas, record.Delta)
		gammas = append(gammas, record.Gamma)
		thetas = append(thetas, record.Theta)
		vegas = append(vegas, record.Vega)

		if result.FirstSeen.IsZero() || record.CollectedAt.Before(result.FirstSeen) {
			result.FirstSeen = record.CollectedAt
		}

		if record.CollectedAt.After(result.LastSeen) {
			result.LastSeen = record.CollectedAt
		}
	}

	var err error

	if result.MinPremium, err = stats.Min(premiums); err != nil {
		return result, fmt.Errorf("aggregateStrike: failed to calculate min: %w", err)
	}

	if result.MaxPremium, err = stats.Max(premiums); err != nil {
		return result, fmt.Errorf("aggregateStrike: failed to calculate max: %w", err)
	}

	if result.AvgPremium, err = stats.Mean(premiums); err != nil {
		return result, fmt.Errorf("aggregateStrike: failed to calculate mean: %w", err)
	}

	if result.MedianPremium, err = stats.Median(premiums); err != nil {
		return result, fmt.Errorf("aggregateStrike: failed to calculate median: %w", err)
	}

	if result.StdDevPremium, err = stats.StandardDeviationPopulation(premiums); err != nil {
		return result, fmt.Errorf("aggregateStrike: failed to calculate standard deviation: %w", err)
	}

	result.AvgDelta = meanExcludingNil(deltas)
	result.AvgGamma = meanExcludingNil(gammas)
	result.AvgTheta = meanExcludingNil(thetas)
	result.AvgVega = meanExcludingNil(vegas)

	return result, nil
}

// meanExcludingNil averages only the values that exist. Records written
// without implied volatility carry nil greeks; when every contributor is
// nil the mean itself is nil, never zero.
func meanExcludingNil(values []*float64) *float64 {
	present := make([]float64, 0, len(values))

	for _, v := range values {
		if v != nil {
			present = append(present, *v)
		}
	}

	if len(present) == 0 {
		return nil
	}

	mean, err := stats.Mean(present)
	if err != nil {
		return nil
	}

	return &mean
}

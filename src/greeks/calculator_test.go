package greeks

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/premiummeter/premiummeter/src/models"
)

func TestComputeKnownValues(t *testing.T) {
	// S=100, K=100, T=1y, sigma=0.2, r=0.05: the textbook at-the-money case.
	c := New(0.05)

	t.Run("call", func(t *testing.T) {
		g := c.Compute(100, 100, 365, 0.2, models.Call)

		require.NotNil(t, g.Delta)
		require.InDelta(t, 0.636831, *g.Delta, 1e-4)
		require.InDelta(t, 0.018762, *g.Gamma, 1e-4)
		require.InDelta(t, -0.017573, *g.Theta, 1e-4)
		require.InDelta(t, 0.375240, *g.Vega, 1e-4)
		require.InDelta(t, 0.532325, *g.Rho, 1e-3)
	})

	t.Run("put", func(t *testing.T) {
		g := c.Compute(100, 100, 365, 0.2, models.Put)

		require.NotNil(t, g.Delta)
		require.InDelta(t, -0.363169, *g.Delta, 1e-4)
		// gamma and vega are identical for calls and puts
		require.InDelta(t, 0.018762, *g.Gamma, 1e-4)
		require.InDelta(t, 0.375240, *g.Vega, 1e-4)
		require.Negative(t, *g.Rho)
	})
}

func TestComputeDeltaRanges(t *testing.T) {
	c := New(models.DefaultRiskFreeRate)

	prices := []float64{25, 80, 100, 130, 500}
	strikes := []float64{50, 95, 100, 110, 250}
	days := []int{1, 7, 30, 180, 365}
	vols := []float64{0.05, 0.2, 0.45, 1.2}

	for _, s := range prices {
		for _, k := range strikes {
			for _, d := range days {
				for _, v := range vols {
					call := c.Compute(s, k, d, v, models.Call)
					require.NotNil(t, call.Delta)
					require.GreaterOrEqual(t, *call.Delta, 0.0)
					require.LessOrEqual(t, *call.Delta, 1.0)
					require.GreaterOrEqual(t, *call.Gamma, 0.0)
					require.GreaterOrEqual(t, *call.Vega, 0.0)
					require.False(t, math.IsNaN(*call.Theta))
					require.False(t, math.IsInf(*call.Rho, 0))

					put := c.Compute(s, k, d, v, models.Put)
					require.NotNil(t, put.Delta)
					require.GreaterOrEqual(t, *put.Delta, -1.0)
					require.LessOrEqual(t, *put.Delta, 0.0)
				}
			}
		}
	}
}

func TestComputePutCallParity(t *testing.T) {
	c := New(models.DefaultRiskFreeRate)

	cases := []struct {
		s, k, v float64
		days    int
	}{
		{100, 100, 0.3, 30},
		{150, 140, 0.25, 90},
		{50, 65, 0.6, 10},
		{230, 200, 0.18, 365},
	}

	for _, tc := range cases {
		call := c.Compute(tc.s, tc.k, tc.days, tc.v, models.Call)
		put := c.Compute(tc.s, tc.k, tc.days, tc.v, models.Put)

		// call delta minus put delta is 1 up to output rounding
		require.InDelta(t, 1.0, *call.Delta-*put.Delta, 1e-5)
	}
}

func TestComputeInvalidInputs(t *testing.T) {
	c := New(models.DefaultRiskFreeRate)

	cases := []struct {
		name       string
		s, k, v    float64
		days       int
		optionType models.OptionType
	}{
		{"zero stock price", 0, 100, 0.3, 30, models.Call},
		{"negative stock price", -10, 100, 0.3, 30, models.Call},
		{"zero strike", 100, 0, 0.3, 30, models.Put},
		{"zero days", 100, 100, 0.3, 0, models.Call},
		{"negative days", 100, 100, 0.3, -5, models.Put},
		{"zero vol", 100, 100, 0, 30, models.Call},
		{"negative vol", 100, 100, -0.3, 30, models.Put},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := c.Compute(tc.s, tc.k, tc.days, tc.v, tc.optionType)

			require.Nil(t, g.Delta)
			require.Nil(t, g.Gamma)
			require.Nil(t, g.Theta)
			require.Nil(t, g.Vega)
			require.Nil(t, g.Rho)
		})
	}
}

func TestComputeRounding(t *testing.T) {
	c := New(models.DefaultRiskFreeRate)
	g := c.Compute(103.37, 97.5, 23, 0.4123, models.Call)

	for _, v := range []*float64{g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho} {
		require.NotNil(t, v)
		scaled := *v * 1e6
		require.InDelta(t, math.Round(scaled), scaled, 1e-6)
	}
}

func TestDaysToExpiry(t *testing.T) {
	asOf := time.Date(2024, 1, 10, 15, 42, 0, 0, time.UTC)

	t.Run("future expiration", func(t *testing.T) {
		exp := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
		require.Equal(t, 10, DaysToExpiry(exp, asOf))
	})

	t.Run("same day is zero", func(t *testing.T) {
		exp := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
		require.Equal(t, 0, DaysToExpiry(exp, asOf))
	})

	t.Run("past expiration clamps to zero", func(t *testing.T) {
		exp := time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
		require.Equal(t, 0, DaysToExpiry(exp, asOf))
	})

	t.Run("time of day does not shift the count", func(t *testing.T) {
		exp := time.Date(2024, 1, 11, 0, 0, 1, 0, time.UTC)
		require.Equal(t, 1, DaysToExpiry(exp, asOf))
	})
}

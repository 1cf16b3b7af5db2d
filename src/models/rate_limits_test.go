package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateRateLimits(t *testing.T) {
	t.Run("typical configuration", func(t *testing.T) {
		s := DefaultSchedule()
		s.PollingIntervalMinutes = 60
		s.StockDelaySeconds = 10
		s.MaxExpirations = 8

		report := CalculateRateLimits(5, s)

		require.Equal(t, 9, report.RequestsPerStock)
		require.Equal(t, 45, report.RequestsPerCycle)
		// 5 stocks at 10s apart finish in under a minute, so the 60 minute
		// polling interval dominates the effective rate.
		require.Equal(t, 0.75, report.RequestsPerMinute)
		require.Equal(t, 45.0, report.RequestsPerHour)
		require.Equal(t, 1080.0, report.RequestsPerDay)
		require.True(t, report.WithinMinuteLimit)
		require.True(t, report.WithinHourLimit)
		require.True(t, report.WithinDayLimit)
		require.Empty(t, report.Warnings)
	})

	t.Run("zero stocks yields zeros", func(t *testing.T) {
		report := CalculateRateLimits(0, DefaultSchedule())

		require.Equal(t, 0, report.RequestsPerCycle)
		require.Equal(t, 0.0, report.RequestsPerMinute)
		require.Empty(t, report.Warnings)
	})

	t.Run("aggressive configuration trips the hourly limit", func(t *testing.T) {
		s := DefaultSchedule()
		s.PollingIntervalMinutes = 5
		s.StockDelaySeconds = 1
		s.MaxExpirations = 10

		report := CalculateRateLimits(50, s)

		// 50 * 11 = 550 per cycle, 12 cycles/hour = 6600/hour
		require.Equal(t, 550, report.RequestsPerCycle)
		require.False(t, report.WithinHourLimit)
		require.False(t, report.WithinDayLimit)
		require.NotEmpty(t, report.Warnings)
	})

	t.Run("slow walk dominates the per minute rate", func(t *testing.T) {
		s := DefaultSchedule()
		s.PollingIntervalMinutes = 1
		s.StockDelaySeconds = 60
		s.MaxExpirations = 4

		// 10 stocks at 60s apart is a 10 minute cycle, longer than the
		// 1 minute interval, so the cycle duration is the divisor.
		report := CalculateRateLimits(10, s)

		require.Equal(t, 50, report.RequestsPerCycle)
		require.Equal(t, 10.0, report.CycleDurationMinutes)
		require.Equal(t, 5.0, report.RequestsPerMinute)
	})
}

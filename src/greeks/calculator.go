package greeks

import (
	"math"
	"time"

	"github.com/premiummeter/premiummeter/src/models"
)

const sqrt2Pi = 2.5066282746310002

// Greeks holds option sensitivities. All fields are nil when the inputs
// could not support a Black-Scholes evaluation; a record with unknown
// Greeks is still useful for premium analysis, so this is never an error.
type Greeks struct {
	Delta *float64
	Gamma *float64
	Theta *float64
	Vega  *float64
	Rho   *float64
}

type Calculator struct {
	RiskFreeRate float64
}

func New(riskFreeRate float64) *Calculator {
	return &Calculator{RiskFreeRate: riskFreeRate}
}

// Compute evaluates the closed-form Black-Scholes sensitivities.
// Conventions callers must not re-scale:
//   - theta is per calendar day, already divided by 365
//   - vega and rho are per 1 percentage point move, already divided by 100
//   - every output is rounded to 6 decimal places
func (c *Calculator) Compute(stockPrice, strikePrice float64, daysToExpiry int, impliedVol float64, optionType models.OptionType) Greeks {
	if stockPrice <= 0 || strikePrice <= 0 || daysToExpiry <= 0 || impliedVol <= 0 {
		return Greeks{}
	}

	T := float64(daysToExpiry) / 365.0
	sqrtT := math.Sqrt(T)
	r := c.RiskFreeRate
	sigma := impliedVol

	d1 := (math.Log(stockPrice/strikePrice) + (r+sigma*sigma/2)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT

	discounted := strikePrice * math.Exp(-r*T)

	var delta, theta, rho float64

	if optionType == models.Call {
		delta = normCDF(d1)
		theta = -(stockPrice*normPDF(d1)*sigma)/(2*sqrtT) - r*discounted*normCDF(d2)
		rho = discounted * T * normCDF(d2) / 100
	} else {
		delta = -normCDF(-d1)
		theta = -(stockPrice*normPDF(d1)*sigma)/(2*sqrtT) + r*discounted*normCDF(-d2)
		rho = -discounted * T * normCDF(-d2) / 100
	}

	gamma := normPDF(d1) / (stockPrice * sigma * sqrtT)
	vega := stockPrice * normPDF(d1) * sqrtT / 100
	theta /= 365

	return Greeks{
		Delta: round6(delta),
		Gamma: round6(gamma),
		Theta: round6(theta),
		Vega:  round6(vega),
		Rho:   round6(rho),
	}
}

// DaysToExpiry is the whole calendar-day distance between the as-of date
// and the expiration date, clamped at zero. Time of day is ignored.
func DaysToExpiry(expiration, asOf time.Time) int {
	expDate := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	asOfDate := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	days := int(expDate.Sub(asOfDate).Hours() / 24)
	if days < 0 {
		return 0
	}

	return days
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func round6(v float64) *float64 {
	rounded := math.Round(v*1e6) / 1e6

	return &rounded
}

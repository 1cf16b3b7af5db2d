package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/premiummeter/premiummeter/src/models"
)

const (
	// DefaultMinCooldown is the base cooldown applied after a provider's
	// first failure. Repeated failures double it up to maxCooldownMultiplier.
	DefaultMinCooldown = 30 * time.Minute

	maxCooldownMultiplier = 8
	maxAttemptsPerSource  = 3
)

// SourceHealth is the rotation state tracked per provider.
type SourceHealth struct {
	FailureCount  int       `json:"failure_count"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

func (h SourceHealth) CoolingDown(now time.Time) bool {
	return now.Before(h.CooldownUntil)
}

// PriceRouter rotates through a priority-ordered list of price providers.
// Failing providers are cooled down with exponential backoff and skipped
// until the window passes; a success clears the provider's state entirely.
// MinCooldown and Backoff may be adjusted before first use.
type PriceRouter struct {
	MinCooldown time.Duration
	Backoff     []time.Duration

	mu      sync.Mutex
	sources []PriceSource
	health  map[models.DataSource]*SourceHealth
	nowFn   func() time.Time
}

func NewPriceRouter(sources ...PriceSource) *PriceRouter {
	health := make(map[models.DataSource]*SourceHealth, len(sources))
	for _, source := range sources {
		health[source.Name()] = &SourceHealth{}
	}

	return &PriceRouter{
		MinCooldown: DefaultMinCooldown,
		Backoff:     []time.Duration{1 * time.Second, 2 * time.Second},
		sources:     sources,
		health:      health,
		nowFn:       time.Now,
	}
}

// GetPrice tries providers in rotation order and returns the first usable
// positive price. Each provider gets a small number of same-provider retries
// before its failure is recorded and the next candidate is tried. When every
// provider fails the caller gets ErrNoPrice and decides its own fallback.
func (r *PriceRouter) GetPrice(ctx context.Context, symbol models.StockSymbol) (PriceQuote, error) {
	for _, source := range r.candidates(r.nowFn()) {
		price, err := r.fetchWithRetry(ctx, source, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return PriceQuote{}, ctx.Err()
			}

			log.Warnf("GetPrice: %s failed for %s: %v", source.Name(), symbol, err)
			r.recordFailure(source.Name())

			continue
		}

		r.recordSuccess(source.Name())

		return PriceQuote{
			Price:     price,
			Source:    source.Name(),
			Timestamp: r.nowFn(),
		}, nil
	}

	return PriceQuote{}, ErrNoPrice
}

// candidates filters out cooling-down providers and orders the remainder by
// failure count, keeping priority order on ties. When everything is cooling
// down the full priority list is returned so the router never permanently
// gives up.
func (r *PriceRouter) candidates(now time.Time) []PriceSource {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := make([]PriceSource, 0, len(r.sources))

	for _, source := range r.sources {
		if r.health[source.Name()].CoolingDown(now) {
			continue
		}

		available = append(available, source)
	}

	if len(available) == 0 {
		log.Warn("candidates: all providers cooling down, trying full list")
		return r.sources
	}

	sort.SliceStable(available, func(i, j int) bool {
		return r.health[available[i].Name()].FailureCount < r.health[available[j].Name()].FailureCount
	})

	return available
}

func (r *PriceRouter) fetchWithRetry(ctx context.Context, source PriceSource, symbol models.StockSymbol) (float64, error) {
	var lastErr error

	for attempt := 0; attempt < maxAttemptsPerSource; attempt++ {
		if attempt > 0 && len(r.Backoff) > 0 {
			waitIdx := attempt - 1
			if waitIdx >= len(r.Backoff) {
				waitIdx = len(r.Backoff) - 1
			}

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(r.Backoff[waitIdx]):
			}
		}

		price, err := source.FetchPrice(ctx, symbol)
		if err != nil {
			lastErr = err

			if ctx.Err() != nil {
				return 0, ctx.Err()
			}

			continue
		}

		if price <= 0 {
			lastErr = fmt.Errorf("fetchWithRetry: %s returned non-positive price %.2f for %s", source.Name(), price, symbol)
			continue
		}

		return price, nil
	}

	return 0, lastErr
}

func (r *PriceRouter) recordFailure(name models.DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, found := r.health[name]
	if !found {
		return
	}

	h.FailureCount++

	multiplier := 1 << (h.FailureCount - 1)
	if multiplier > maxCooldownMultiplier {
		multiplier = maxCooldownMultiplier
	}

	h.CooldownUntil = r.nowFn().Add(time.Duration(multiplier) * r.MinCooldown)

	log.Debugf("recordFailure: %s failure count %d, cooling down until %v", name, h.FailureCount, h.CooldownUntil)
}

func (r *PriceRouter) recordSuccess(name models.DataSource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, found := r.health[name]
	if !found {
		return
	}

	h.FailureCount = 0
	h.CooldownUntil = time.Time{}
}

// Health returns a point-in-time copy of every provider's rotation state.
func (r *PriceRouter) Health() map[models.DataSource]SourceHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make(map[models.DataSource]SourceHealth, len(r.health))
	for name, h := range r.health {
		snapshot[name] = *h
	}

	return snapshot
}

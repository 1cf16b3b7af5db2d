package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/premiummeter/premiummeter/src/models"
	"github.com/premiummeter/premiummeter/src/scraper"
	"github.com/premiummeter/premiummeter/src/utils"
)

// ErrInvalidConfig wraps configuration updates rejected by validation so the
// API can answer with a client error instead of a server error.
var ErrInvalidConfig = errors.New("invalid schedule configuration")

// MarketCalendar answers whether the exchange trades at all on the day
// containing now. Nil disables the holiday gate; weekends are still handled
// by the schedule itself.
type MarketCalendar interface {
	IsTradingDay(ctx context.Context, now time.Time) (bool, error)
}

// Worker drives periodic collection runs. It owns the timers and the
// schedule row's runtime fields, but never the single-instance guarantee:
// that belongs to the collector's own guard, and a tick that loses the race
// is dropped, not queued.
type Worker struct {
	wg        *sync.WaitGroup
	db        models.IDatabaseService
	collector *scraper.Scraper
	expiry    *scraper.ExpiryMarker
	calendar  MarketCalendar
	rearm     chan time.Duration
	runCtx    context.Context

	// mu serializes read-modify-write cycles on the schedule row.
	mu    sync.Mutex
	nowFn func() time.Time
}

func New(wg *sync.WaitGroup, db models.IDatabaseService, collector *scraper.Scraper, expiry *scraper.ExpiryMarker, calendar MarketCalendar) *Worker {
	return &Worker{
		wg:        wg,
		db:        db,
		collector: collector,
		expiry:    expiry,
		calendar:  calendar,
		rearm:     make(chan time.Duration, 1),
		runCtx:    context.Background(),
		nowFn:     time.Now,
	}
}

// Start forces the schedule into the paused state before arming any timers.
// A restarted service never begins collecting on its own; an operator must
// resume it explicitly.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		return fmt.Errorf("SchedulerWorker.Start: failed to fetch schedule: %w", err)
	}

	schedule.Paused = true
	schedule.Status = models.ScheduleStatusIdle

	if err := w.db.SaveSchedule(schedule); err != nil {
		return fmt.Errorf("SchedulerWorker.Start: failed to save schedule: %w", err)
	}

	log.Info("SchedulerWorker: starting paused, resume collection via the scheduler API")

	w.runCtx = ctx
	w.wg.Add(1)

	go w.run(ctx, schedule.PollingIntervalMinutes)

	return nil
}

func (w *Worker) run(ctx context.Context, intervalMinutes int) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	// catch contracts that expired while the service was down
	w.sweepExpired()

	expiryTimer := time.NewTimer(w.untilNextSweep())
	defer expiryTimer.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case interval := <-w.rearm:
			ticker.Reset(interval)
		case <-expiryTimer.C:
			w.sweepExpired()
			expiryTimer.Reset(w.untilNextSweep())
		case <-ctx.Done():
			log.Info("stopping SchedulerWorker")
			return
		}
	}
}

// tick is one timer firing: load state, apply the gates, maybe run.
func (w *Worker) tick(ctx context.Context) {
	schedule, err := w.CurrentSchedule()
	if err != nil {
		log.Errorf("SchedulerWorker: failed to load schedule: %v", err)
		return
	}

	if schedule.Paused {
		log.Debug("SchedulerWorker: paused, skipping scheduled run")
		return
	}

	now := w.nowFn()

	open, err := schedule.IsMarketHours(now)
	if err != nil {
		log.Errorf("SchedulerWorker: failed to evaluate market hours: %v", err)
		return
	}

	if !open {
		log.Debug("SchedulerWorker: outside market hours, skipping scheduled run")
		return
	}

	if schedule.ExcludeHolidays && w.calendar != nil {
		tradingDay, calErr := w.calendar.IsTradingDay(ctx, now)
		if calErr != nil {
			log.Warnf("SchedulerWorker: market calendar unavailable, assuming trading day: %v", calErr)
		} else if !tradingDay {
			log.Debug("SchedulerWorker: market holiday, skipping scheduled run")
			return
		}
	}

	w.executeRun(ctx, "scheduled")
}

// Pause stops future scheduled runs. An in-flight run is never cancelled;
// it finishes its pass and commits normally.
func (w *Worker) Pause() (*models.ScraperSchedule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		return nil, fmt.Errorf("SchedulerWorker.Pause: failed to fetch schedule: %w", err)
	}

	schedule.Paused = true

	if err := w.db.SaveSchedule(schedule); err != nil {
		return nil, fmt.Errorf("SchedulerWorker.Pause: failed to save schedule: %w", err)
	}

	log.Info("SchedulerWorker: collection paused")

	return schedule, nil
}

// Resume re-enables scheduled runs. With runImmediately it also kicks off a
// run right away, bypassing the market-hours gate: an explicit operator
// action outranks the clock, though never the in-progress guard.
func (w *Worker) Resume(runImmediately bool) (*models.ScraperSchedule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		return nil, fmt.Errorf("SchedulerWorker.Resume: failed to fetch schedule: %w", err)
	}

	schedule.Paused = false

	if err := w.db.SaveSchedule(schedule); err != nil {
		return nil, fmt.Errorf("SchedulerWorker.Resume: failed to save schedule: %w", err)
	}

	log.Info("SchedulerWorker: collection resumed")

	if runImmediately {
		if w.collector.IsRunning() {
			log.Warn("SchedulerWorker: immediate run skipped, a run is already in progress")
		} else {
			w.spawnRun("resume")
		}
	}

	return schedule, nil
}

// TriggerRun starts a collection run now, regardless of the pause flag and
// the market-hours gate. Returns the collector's guard error when a run is
// already executing.
func (w *Worker) TriggerRun() error {
	if w.collector.IsRunning() {
		return scraper.ErrRunInProgress
	}

	w.spawnRun("manual")

	return nil
}

// UpdateConfig merges a partial update into the schedule, persists it, and
// re-arms the polling timer when the interval changed. The loop keeps
// running throughout; no restart is involved.
func (w *Worker) UpdateConfig(req *models.ScheduleConfigRequest) (*models.ScraperSchedule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		return nil, fmt.Errorf("SchedulerWorker.UpdateConfig: failed to fetch schedule: %w", err)
	}

	previousInterval := schedule.PollingIntervalMinutes

	if err := req.Apply(schedule); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	if err := w.db.SaveSchedule(schedule); err != nil {
		return nil, fmt.Errorf("SchedulerWorker.UpdateConfig: failed to save schedule: %w", err)
	}

	if schedule.PollingIntervalMinutes != previousInterval {
		interval := time.Duration(schedule.PollingIntervalMinutes) * time.Minute

		select {
		case <-w.rearm:
		default:
		}
		w.rearm <- interval

		log.Infof("SchedulerWorker: polling interval now %dm, timer re-armed", schedule.PollingIntervalMinutes)
	}

	return schedule, nil
}

// CurrentSchedule returns the schedule row after lazily re-anchoring the
// daily API counter. There is no reset timer; whoever reads the counter
// first past the anchor performs the reset.
func (w *Worker) CurrentSchedule() (*models.ScraperSchedule, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		return nil, fmt.Errorf("SchedulerWorker.CurrentSchedule: failed to fetch schedule: %w", err)
	}

	if err := w.touchCounterLocked(schedule); err != nil {
		return nil, fmt.Errorf("SchedulerWorker.CurrentSchedule: %w", err)
	}

	return schedule, nil
}

func (w *Worker) spawnRun(trigger string) {
	w.wg.Add(1)

	go func() {
		defer w.wg.Done()
		w.executeRun(w.runCtx, trigger)
	}()
}

func (w *Worker) executeRun(ctx context.Context, trigger string) {
	if w.collector.IsRunning() {
		log.Warnf("SchedulerWorker: %s run dropped, a run is already in progress", trigger)
		return
	}

	w.markRunning()

	metrics, err := w.collector.Run(ctx)
	if err != nil {
		if errors.Is(err, scraper.ErrRunInProgress) {
			log.Warnf("SchedulerWorker: %s run dropped, a run is already in progress", trigger)
			return
		}

		w.markError(err)
		log.Errorf("SchedulerWorker: %s run failed: %v", trigger, err)

		return
	}

	w.markIdle(metrics)
}

func (w *Worker) markRunning() {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		log.Errorf("SchedulerWorker: failed to fetch schedule: %v", err)
		return
	}

	now := w.nowFn()
	schedule.Status = models.ScheduleStatusRunning
	schedule.LastRunAt = &now

	if err := w.db.SaveSchedule(schedule); err != nil {
		log.Errorf("SchedulerWorker: failed to save schedule: %v", err)
	}
}

// markIdle records a successful pass: the error message clears, the daily
// counter absorbs the run's request count, and the next-run estimate moves
// forward by one polling interval.
func (w *Worker) markIdle(metrics *scraper.RunMetrics) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		log.Errorf("SchedulerWorker: failed to fetch schedule: %v", err)
		return
	}

	if err := w.touchCounterLocked(schedule); err != nil {
		log.Errorf("SchedulerWorker: %v", err)
	}

	next := w.nowFn().Add(time.Duration(schedule.PollingIntervalMinutes) * time.Minute)

	schedule.Status = models.ScheduleStatusIdle
	schedule.LastErrorMessage = ""
	schedule.NextRunAt = &next
	schedule.DailyAPIQueries += metrics.APIRequestsUsed

	if err := w.db.SaveSchedule(schedule); err != nil {
		log.Errorf("SchedulerWorker: failed to save schedule: %v", err)
	}
}

func (w *Worker) markError(runErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	schedule, err := w.db.FetchSchedule()
	if err != nil {
		log.Errorf("SchedulerWorker: failed to fetch schedule: %v", err)
		return
	}

	schedule.Status = models.ScheduleStatusError
	schedule.LastErrorMessage = runErr.Error()

	if err := w.db.SaveSchedule(schedule); err != nil {
		log.Errorf("SchedulerWorker: failed to save schedule: %v", err)
	}
}

func (w *Worker) touchCounterLocked(schedule *models.ScraperSchedule) error {
	stale, err := schedule.ShouldResetCounter(w.nowFn())
	if err != nil {
		return fmt.Errorf("failed to check counter anchor: %w", err)
	}

	if !stale {
		return nil
	}

	anchor, err := schedule.CounterAnchor(w.nowFn())
	if err != nil {
		return fmt.Errorf("failed to compute counter anchor: %w", err)
	}

	schedule.DailyAPIQueries = 0
	schedule.CounterResetAt = &anchor

	if err := w.db.SaveSchedule(schedule); err != nil {
		return fmt.Errorf("failed to save counter reset: %w", err)
	}

	log.Debugf("SchedulerWorker: daily API counter re-anchored at %s", anchor.Format(time.RFC3339))

	return nil
}

func (w *Worker) sweepExpired() {
	if _, err := w.expiry.MarkExpired(); err != nil {
		log.Errorf("SchedulerWorker: expiry sweep failed: %v", err)
	}
}

func (w *Worker) untilNextSweep() time.Duration {
	loc := time.UTC

	if schedule, err := w.db.FetchSchedule(); err == nil {
		if l, locErr := schedule.Location(); locErr == nil {
			loc = l
		}
	}

	now := w.nowFn()

	return utils.NextMidnight(now, loc).Sub(now)
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally/v4"

	"github.com/example/court-scheduler/internal/backoff"
	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/metrics"
	"github.com/example/court-scheduler/internal/modeclock"
	"github.com/example/court-scheduler/internal/preference"
	"github.com/example/court-scheduler/internal/ratelimit"
)

// Config holds the scheduling knobs of a run.
type Config struct {
	Days          []int
	EagerDays     []int
	Interval      time.Duration
	EagerInterval time.Duration
	Concurrency   int

	MaxRetries     int
	RetryDelay     time.Duration
	MaxRetryDelay  time.Duration
	AttemptTimeout time.Duration

	// MaxAcquisitions ends the run once that many slots are held. 0 means no limit.
	MaxAcquisitions int
}

// Deps are the collaborators of a Scheduler. Now and Sleep default to the wall clock.
type Deps struct {
	Source    court.AvailabilitySource
	Submitter court.OrderSubmitter
	Notifier  court.Notifier
	Logger    *log.Logger
	Scope     tally.Scope
	Now       func() time.Time
	Sleep     backoff.Sleeper
}

// Scheduler decides when to poll, what to bid on and how many orders race at once.
type Scheduler struct {
	cfg       Config
	clock     modeclock.Clock
	prefs     *preference.Model
	source    court.AvailabilitySource
	submitter court.OrderSubmitter
	notifier  court.Notifier
	log       *log.Entry
	metrics   *metrics.Scheduler
	now       func() time.Time
	sleep     backoff.Sleeper

	tracker *tracker
	status  *statusBoard

	wg sync.WaitGroup
}

func New(cfg Config, clock modeclock.Clock, prefs *preference.Model, deps Deps) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if len(cfg.EagerDays) == 0 {
		cfg.EagerDays = cfg.Days
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 8 * cfg.RetryDelay
	}
	if deps.Logger == nil {
		deps.Logger = log.StandardLogger()
	}
	if deps.Scope == nil {
		deps.Scope = tally.NoopScope
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = ratelimit.Sleep
	}
	return &Scheduler{
		cfg:       cfg,
		clock:     clock,
		prefs:     prefs,
		source:    deps.Source,
		submitter: deps.Submitter,
		notifier:  deps.Notifier,
		log:       deps.Logger.WithField("component", "scheduler"),
		metrics:   metrics.NewScheduler(deps.Scope),
		now:       deps.Now,
		sleep:     deps.Sleep,
		tracker:   newTracker(),
		status:    newStatusBoard(),
	}
}

// Run polls until ctx is done, the acquisition limit is reached, or the service rejects
// the credentials. It returns nil on a graceful end, ctx.Err() on cancellation and the
// auth error otherwise.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.WithFields(log.Fields{
		"days":        s.cfg.Days,
		"eager_days":  s.cfg.EagerDays,
		"concurrency": s.cfg.Concurrency,
		"refresh":     modeclock.FormatTimeOfDay(s.clock.Refresh),
	}).Info("scheduler started")
	defer s.wg.Wait()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := s.now()
		regime := s.clock.At(now)
		s.status.setRegime(regime)

		if regime == modeclock.Dormant {
			wake := s.clock.NextWake(now)
			s.log.WithField("wake", wake.Format("15:04:05")).
				Infof("dormant, waking %s", humanize.RelTime(now, wake, "ago", "from now"))
			if err := s.sleep(ctx, s.dormantDelay(now)); err != nil {
				return err
			}
			continue
		}

		done, err := s.Cycle(ctx)
		if err != nil {
			if internaltypes.IsAuth(err) {
				s.log.WithError(err).Error("credentials rejected, stopping")
			}
			return err
		}
		if done {
			s.finishRun(ctx)
			return nil
		}

		// the cycle may have run across a boundary
		now = s.now()
		regime = s.clock.At(now)
		if regime == modeclock.Dormant {
			continue
		}
		delay := s.pollDelay(regime, now)
		s.log.WithField("regime", regime.String()).Debugf("next poll in %s", delay)
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// dormantDelay sleeps toward the next eager start, never past a regime boundary and never
// less than a second.
func (s *Scheduler) dormantDelay(now time.Time) time.Duration {
	target := s.clock.NextWake(now)
	if b := s.clock.NextBoundary(now); b.Before(target) {
		target = b
	}
	d := target.Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}

// pollDelay is the cadence of the regime, cut short at the next boundary so the eager
// window opens on time and the first poll after the refresh instant happens at it.
func (s *Scheduler) pollDelay(regime modeclock.Regime, now time.Time) time.Duration {
	d := s.cfg.Interval
	if regime == modeclock.Eager {
		d = s.cfg.EagerInterval
	}
	if until := s.clock.NextBoundary(now).Sub(now); until > 0 && until < d {
		d = until
	}
	return d
}

func (s *Scheduler) offsets(regime modeclock.Regime) []int {
	if regime == modeclock.Eager {
		return s.cfg.EagerDays
	}
	return s.cfg.Days
}

// Cycle runs one poll pass: for each monitored day it fetches a snapshot, ranks it and
// races orders for the best slots. It reports whether the acquisition limit was reached.
// Only auth failures and ctx cancellation are returned as errors.
func (s *Scheduler) Cycle(ctx context.Context) (bool, error) {
	now := s.now()
	regime := s.clock.At(now)
	if regime == modeclock.Dormant {
		return false, nil
	}
	for _, off := range s.offsets(regime) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		date := startOfDay(now).AddDate(0, 0, off)
		logger := s.log.WithFields(log.Fields{"regime": regime.String(), "date": date.Format(court.DateLayout)})

		snap, err := s.source.Fetch(ctx, date, off)
		s.metrics.Polls.Inc(1)
		s.status.polled(s.now())
		if err != nil {
			s.metrics.PollErrors.Inc(1)
			s.status.pollFailed()
			if internaltypes.IsAuth(err) {
				return false, err
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			logger.WithError(err).Warn("availability fetch failed")
			continue
		}

		candidates := s.eligible(s.prefs.Candidates(snap.Slots))
		if len(candidates) == 0 {
			logger.WithField("open", len(snap.Slots)).Info("no preferred slots available")
			continue
		}
		logger.WithField("open", len(snap.Slots)).
			Infof("%d preferred slots: %s", len(candidates), describe(candidates, 6))

		if err := s.dispatch(ctx, regime, candidates); err != nil {
			return false, err
		}
		if s.limitReached() {
			return true, nil
		}
		if s.clock.At(s.now()) != regime {
			logger.Info("regime changed, ending cycle")
			return false, nil
		}
	}
	return false, nil
}

func (s *Scheduler) eligible(cands []preference.Candidate) []preference.Candidate {
	out := cands[:0:0]
	for _, c := range cands {
		if !s.tracker.blocked(c.Slot) {
			out = append(out, c)
		}
	}
	return out
}

func (s *Scheduler) limitReached() bool {
	return s.cfg.MaxAcquisitions > 0 && s.tracker.acquiredCount() >= s.cfg.MaxAcquisitions
}

func (s *Scheduler) finishRun(ctx context.Context) {
	acq := s.tracker.acquisitions()
	s.log.WithField("acquired", len(acq)).Info("acquisition limit reached, run ended")
	body := ""
	for _, a := range acq {
		body += fmt.Sprintf("- %s: [%s](%s)\n", a.Slot, a.Receipt, a.Receipt)
	}
	s.notify(ctx, fmt.Sprintf("Run ended: %d slot(s) acquired", len(acq)), body)
}

func (s *Scheduler) notify(ctx context.Context, title, body string) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.notifier.Notify(nctx, title, body); err != nil {
		s.log.WithError(err).Warn("notification failed")
	}
}

// Status is a point-in-time view for the status endpoint.
func (s *Scheduler) Status() Status {
	st := s.status.snapshot()
	st.InFlight = s.tracker.inFlightCount()
	st.Acquired = s.tracker.acquisitions()
	return st
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func describe(cands []preference.Candidate, max int) string {
	slots := make([]court.Slot, len(cands))
	for i, c := range cands {
		slots[i] = c.Slot
	}
	return court.DescribeSlots(slots, max)
}

func newAttemptID() string { return uuid.NewString() }

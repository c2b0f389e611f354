package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/example/court-scheduler/internal/backoff"
	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/modeclock"
	"github.com/example/court-scheduler/internal/preference"
)

// dispatch races orders for candidates in rank order with at most Concurrency in flight.
// A freed permit goes to the next candidate. Dispatch stops early when the regime changes,
// the acquisition limit is hit or the credentials are rejected; running attempts finish.
func (s *Scheduler) dispatch(ctx context.Context, regime modeclock.Regime, cands []preference.Candidate) error {
	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency))
	var (
		mu    sync.Mutex
		fatal error
	)
	fatalErr := func() error {
		mu.Lock()
		defer mu.Unlock()
		return fatal
	}

	for _, c := range cands {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if fatalErr() != nil || s.limitReached() {
			sem.Release(1)
			break
		}
		if cur := s.clock.At(s.now()); cur != regime {
			s.log.WithFields(log.Fields{"from": regime.String(), "to": cur.String()}).
				Info("regime changed, no further attempts on this snapshot")
			sem.Release(1)
			break
		}
		if !s.tracker.begin(c.Slot) {
			sem.Release(1)
			continue
		}
		s.metrics.InFlight.Update(float64(s.tracker.inFlightCount()))

		s.wg.Add(1)
		go func(c preference.Candidate) {
			defer s.wg.Done()
			defer sem.Release(1)
			a := s.attempt(ctx, c)
			if a.Err != nil && internaltypes.IsAuth(a.Err) {
				mu.Lock()
				if fatal == nil {
					fatal = a.Err
				}
				mu.Unlock()
			}
		}(c)
	}
	s.wg.Wait()
	s.metrics.InFlight.Update(float64(s.tracker.inFlightCount()))

	if err := fatalErr(); err != nil {
		return err
	}
	return ctx.Err()
}

// attempt submits one slot, retrying transient failures, and settles its bookkeeping.
func (s *Scheduler) attempt(ctx context.Context, c preference.Candidate) court.Attempt {
	a := court.Attempt{ID: newAttemptID(), Slot: c.Slot, Rank: c.Rank, Started: s.now()}
	logger := s.log.WithFields(log.Fields{"attempt_id": a.ID, "slot": c.Slot.String(), "rank": c.Rank})
	logger.Info("attempting order")

	var res court.Result
	policy := backoff.NewExponentialPolicy(s.cfg.MaxRetries, s.cfg.RetryDelay, s.cfg.MaxRetryDelay)
	try := func(ctx context.Context) error {
		tctx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		defer cancel()
		r, err := s.submitter.Submit(tctx, c.Slot)
		if err == nil && r.Outcome == court.TransientError {
			err = internaltypes.Transient(errors.New(r.Reason))
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !internaltypes.IsTransient(err) {
				err = internaltypes.Transient(err)
			}
			if internaltypes.IsTransient(err) {
				logger.WithError(err).Warn("order try failed")
			}
			return err
		}
		res = r
		return nil
	}
	tries, err := backoff.Retry(ctx, try, policy, internaltypes.IsTransient, s.sleep)
	a.Tries = tries
	a.Finished = s.now()
	a.Err = err

	switch {
	case err == nil && res.Outcome == court.Success:
		a.Outcome, a.Receipt = court.Success, res.Receipt
		n := s.tracker.acquire(c.Slot, res.Receipt, a.Finished)
		s.metrics.Acquired.Inc(1)
		logger.WithField("receipt", res.Receipt).Infof("order created after %d tries (%d held)", tries, n)
		s.notify(ctx, "Court order created",
			fmt.Sprintf("Order **%s** created. Complete the payment within 10 minutes:\n\n[%s](%s)", c.Slot, res.Receipt, res.Receipt))
	case err == nil:
		a.Outcome, a.Reason = court.Rejected, res.Reason
		s.tracker.finish(c.Slot)
		logger.WithField("reason", res.Reason).Info("order rejected, skipping")
	case internaltypes.IsAuth(err):
		a.Outcome = court.TransientError
		s.tracker.finish(c.Slot)
		logger.WithError(err).Error("order failed: credentials rejected")
	case internaltypes.IsTransient(err) && ctx.Err() == nil:
		a.Outcome = court.ExhaustedRetries
		s.tracker.finish(c.Slot)
		logger.WithError(err).Infof("giving up after %d tries, skipping until next poll", tries)
	case ctx.Err() != nil:
		a.Outcome = court.TransientError
		s.tracker.finish(c.Slot)
		logger.WithError(err).Info("attempt interrupted")
	default:
		a.Outcome, a.Reason = court.Rejected, err.Error()
		s.tracker.finish(c.Slot)
		logger.WithError(err).Warn("order failed, skipping")
	}

	s.metrics.Attempt(a.Outcome)
	s.metrics.AttemptDur.Record(a.Finished.Sub(a.Started))
	s.status.attempted(a)
	return a
}

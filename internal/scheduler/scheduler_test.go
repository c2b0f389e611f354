package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/uber-go/tally/v4"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/logging"
	"github.com/example/court-scheduler/internal/modeclock"
	"github.com/example/court-scheduler/internal/preference"
)

type fakeClock struct {
	mu      sync.Mutex
	t       time.Time
	slept   []time.Duration
	onSleep func(n int)
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.slept = append(f.slept, d)
	n := len(f.slept)
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

type fakeSource struct {
	mu    sync.Mutex
	calls []int
	slots func(date string, offset int) []court.Slot
	err   func(offset int) error
}

func (f *fakeSource) Fetch(_ context.Context, date time.Time, offset int) (court.Snapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, offset)
	f.mu.Unlock()
	if f.err != nil {
		if err := f.err(offset); err != nil {
			return court.Snapshot{}, err
		}
	}
	day := date.Format(court.DateLayout)
	return court.Snapshot{Date: day, Offset: offset, Slots: f.slots(day, offset)}, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []string
	current int
	peak    int
	hold    time.Duration
	result  func(s court.Slot, call int) (court.Result, error)
}

func (f *fakeSubmitter) Submit(_ context.Context, s court.Slot) (court.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, s.Key())
	n := len(f.calls)
	f.current++
	if f.current > f.peak {
		f.peak = f.current
	}
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}

	f.mu.Lock()
	f.current--
	f.mu.Unlock()
	return f.result(s, n)
}

func (f *fakeSubmitter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (f *fakeNotifier) Notify(_ context.Context, title, _ string) error {
	f.mu.Lock()
	f.titles = append(f.titles, title)
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) Titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

func rejectAll(court.Slot, int) (court.Result, error) { return court.RejectedBy("taken"), nil }

func succeedAll(s court.Slot, _ int) (court.Result, error) {
	return court.Succeeded("http://pay/" + s.FieldID), nil
}

func slotOf(date, field string, hour int, d court.Duration) court.Slot {
	return court.Slot{Date: date, FieldID: field, HourID: hour, Duration: d}
}

type SchedulerTestSuite struct {
	suite.Suite

	clock    *fakeClock
	source   *fakeSource
	submit   *fakeSubmitter
	notifier *fakeNotifier
	scope    tally.TestScope
	cfg      Config
	fields   map[string]int
	hours    map[string]int
	solo     bool
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) SetupTest() {
	s.clock = &fakeClock{t: time.Date(2025, 5, 26, 10, 0, 0, 0, time.Local)}
	s.source = &fakeSource{slots: func(string, int) []court.Slot { return nil }}
	s.submit = &fakeSubmitter{result: rejectAll}
	s.notifier = &fakeNotifier{}
	s.scope = tally.NewTestScope("", nil)
	s.cfg = Config{
		Days:           []int{0},
		Interval:       10 * time.Minute,
		EagerInterval:  time.Minute,
		Concurrency:    3,
		MaxRetries:     2,
		RetryDelay:     time.Millisecond,
		AttemptTimeout: time.Second,
	}
	// 220 double at 328228: (2+1)+(2+3) = 8; 221 solo at 328229: 3+3 = 6
	s.fields = map[string]int{"220": 2, "221": 3, "222": 0}
	s.hours = map[string]int{"328228": 1, "328229": 3, "328230": 1, "328231": 5}
	s.solo = false
}

func (s *SchedulerTestSuite) newScheduler() *Scheduler {
	prefs, err := preference.New(s.fields, s.hours, preference.WithSolo(s.solo))
	s.Require().NoError(err)
	return New(s.cfg, modeclock.Default(), prefs, Deps{
		Source:    s.source,
		Submitter: s.submit,
		Notifier:  s.notifier,
		Logger:    logging.Discard(),
		Scope:     s.scope,
		Now:       s.clock.Now,
		Sleep:     s.clock.Sleep,
	})
}

func (s *SchedulerTestSuite) counter(name string, tags map[string]string) int64 {
	for _, c := range s.scope.Snapshot().Counters() {
		if c.Name() != name {
			continue
		}
		ok := true
		for k, v := range tags {
			if c.Tags()[k] != v {
				ok = false
			}
		}
		if ok {
			return c.Value()
		}
	}
	return 0
}

func (s *SchedulerTestSuite) TestRejectedIsSkippedAndNotRetried() {
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "221", 328229, court.Solo),
		}
	}
	sched := s.newScheduler()

	done, err := sched.Cycle(context.Background())
	s.NoError(err)
	s.False(done)
	s.Equal([]string{"2025-05-26/220/328228/2h"}, s.submit.Calls())

	// next cycle polls again and tries the slot again
	done, err = sched.Cycle(context.Background())
	s.NoError(err)
	s.False(done)
	s.Len(s.submit.Calls(), 2)
	s.Equal(2, s.source.Calls())
	s.EqualValues(2, s.counter("scheduler.attempts", map[string]string{"outcome": "rejected"}))
	s.EqualValues(2, s.counter("scheduler.polls", nil))
}

func (s *SchedulerTestSuite) TestZeroScoreNeverAttempted() {
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "222", 328228, court.Double), // field score 0
			slotOf(d, "220", 328230, court.Double), // covers 328231 too
			slotOf(d, "220", 328227, court.Double), // 328227 unscored
		}
	}
	sched := s.newScheduler()

	_, err := sched.Cycle(context.Background())
	s.NoError(err)
	s.Equal([]string{"2025-05-26/220/328230/2h"}, s.submit.Calls())
}

func (s *SchedulerTestSuite) TestSoloSlotsOnlyWhenConsidered() {
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{slotOf(d, "221", 328229, court.Solo)}
	}
	_, err := s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Empty(s.submit.Calls())

	s.solo = true
	_, err = s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Equal([]string{"2025-05-26/221/328229/1h"}, s.submit.Calls())
}

func (s *SchedulerTestSuite) TestTieGoesToEarlierHourAcrossRuns() {
	s.fields = map[string]int{"220": 4}
	s.hours = map[string]int{"328228": 5, "328230": 5}
	s.solo = true
	s.cfg.Concurrency = 1
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328230, court.Solo),
			slotOf(d, "220", 328228, court.Solo),
		}
	}
	for i := 0; i < 5; i++ {
		s.submit = &fakeSubmitter{result: rejectAll}
		_, err := s.newScheduler().Cycle(context.Background())
		s.NoError(err)
		s.Equal([]string{"2025-05-26/220/328228/1h", "2025-05-26/220/328230/1h"}, s.submit.Calls())
	}
}

func (s *SchedulerTestSuite) TestConcurrencyIsBounded() {
	s.fields = map[string]int{}
	for i := 0; i < 10; i++ {
		s.fields[fmt.Sprint(200+i)] = 1 + i%9
	}
	s.hours = map[string]int{"328228": 5, "328229": 5}
	s.submit.hold = 20 * time.Millisecond
	s.source.slots = func(d string, _ int) []court.Slot {
		var out []court.Slot
		for i := 0; i < 10; i++ {
			out = append(out, slotOf(d, fmt.Sprint(200+i), 328228, court.Double))
		}
		return out
	}

	_, err := s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Len(s.submit.Calls(), 10)
	s.LessOrEqual(s.submit.peak, 3)
}

func (s *SchedulerTestSuite) TestSuccessNeverAttemptedAgain() {
	s.solo = true
	s.submit.result = succeedAll
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "220", 328228, court.Solo), // overlaps the double once held
		}
	}
	s.cfg.Concurrency = 1
	sched := s.newScheduler()

	for i := 0; i < 3; i++ {
		_, err := sched.Cycle(context.Background())
		s.NoError(err)
	}
	s.Equal([]string{"2025-05-26/220/328228/2h"}, s.submit.Calls())
	s.Equal(3, s.source.Calls())

	st := sched.Status()
	s.Len(st.Acquired, 1)
	s.Equal("http://pay/220", st.Acquired[0].Receipt)
	s.EqualValues(1, st.Attempts["success"])
	s.EqualValues(1, s.counter("scheduler.acquired", nil))
	s.Equal([]string{"Court order created"}, s.notifier.Titles())
}

func (s *SchedulerTestSuite) TestExhaustedRetriesSkipsAndPollingResumes() {
	s.submit.result = func(court.Slot, int) (court.Result, error) {
		return court.Result{}, internaltypes.Transient(errors.New("502"))
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{slotOf(d, "220", 328228, court.Double)}
	}
	sched := s.newScheduler()

	done, err := sched.Cycle(context.Background())
	s.NoError(err)
	s.False(done)
	s.Len(s.submit.Calls(), 3) // 1 + max-retries

	_, err = sched.Cycle(context.Background())
	s.NoError(err)
	s.Len(s.submit.Calls(), 6)
	s.EqualValues(2, s.counter("scheduler.attempts", map[string]string{"outcome": "exhausted"}))
	s.Zero(sched.Status().InFlight)
}

func (s *SchedulerTestSuite) TestTransientThenSuccess() {
	s.submit.result = func(sl court.Slot, call int) (court.Result, error) {
		if call == 1 {
			return court.Result{}, &internaltypes.RateLimitError{Msg: "slow down"}
		}
		return succeedAll(sl, call)
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{slotOf(d, "220", 328228, court.Double)}
	}
	sched := s.newScheduler()

	_, err := sched.Cycle(context.Background())
	s.NoError(err)
	s.Len(s.submit.Calls(), 2)
	s.Equal(1, len(sched.Status().Acquired))
	s.Equal(2, sched.Status().Recent[0].Tries)
}

func (s *SchedulerTestSuite) TestFetchErrorIsLoggedAndNextDayPolled() {
	s.cfg.Days = []int{0, 1}
	s.source.err = func(off int) error {
		if off == 0 {
			return internaltypes.Transient(errors.New("timeout"))
		}
		return nil
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{slotOf(d, "220", 328228, court.Double)}
	}

	_, err := s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Equal([]string{"2025-05-27/220/328228/2h"}, s.submit.Calls())
	s.EqualValues(1, s.counter("scheduler.poll_errors", nil))
}

func (s *SchedulerTestSuite) TestAuthErrorFromSubmitIsFatal() {
	s.cfg.Concurrency = 1
	s.submit.result = func(court.Slot, int) (court.Result, error) {
		return court.Result{}, fmt.Errorf("submit: %w", internaltypes.ErrAuth)
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "221", 328228, court.Double),
		}
	}

	err := s.newScheduler().Run(context.Background())
	s.ErrorIs(err, internaltypes.ErrAuth)
	s.Len(s.submit.Calls(), 1)
}

func (s *SchedulerTestSuite) TestAuthErrorFromFetchIsFatal() {
	s.source.err = func(int) error { return internaltypes.ErrAuth }

	err := s.newScheduler().Run(context.Background())
	s.ErrorIs(err, internaltypes.ErrAuth)
	s.Empty(s.submit.Calls())
}

func (s *SchedulerTestSuite) TestRegimeChangeStopsDispatch() {
	s.clock.t = time.Date(2025, 5, 26, 7, 29, 59, 0, time.Local)
	s.cfg.Concurrency = 1
	s.submit.result = func(court.Slot, int) (court.Result, error) {
		s.clock.Advance(2 * time.Second) // now 07:30:01, normal regime
		return court.RejectedBy("taken"), nil
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "221", 328228, court.Double),
			slotOf(d, "220", 328230, court.Double),
		}
	}

	_, err := s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Len(s.submit.Calls(), 1)
}

func (s *SchedulerTestSuite) TestCycleIntoDormantSleepsUntilWake() {
	s.clock.t = time.Date(2025, 5, 26, 23, 59, 59, 0, time.Local)
	s.submit.result = func(court.Slot, int) (court.Result, error) {
		s.clock.Advance(2 * time.Second) // now 00:00:01, dormant
		return court.RejectedBy("taken"), nil
	}
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{slotOf(d, "220", 328228, court.Double)}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.clock.onSleep = func(int) { cancel() }

	err := s.newScheduler().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Len(s.submit.Calls(), 1)
	s.Equal([]time.Duration{6*time.Hour + 54*time.Minute + 59*time.Second}, s.clock.slept)
}

func (s *SchedulerTestSuite) TestSameSlotNeverInFlightTwice() {
	s.submit.hold = 20 * time.Millisecond
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "220", 328228, court.Double),
		}
	}

	_, err := s.newScheduler().Cycle(context.Background())
	s.NoError(err)
	s.Equal([]string{"2025-05-26/220/328228/2h"}, s.submit.Calls())
	s.Equal(1, s.submit.peak)
}

func (s *SchedulerTestSuite) TestDormantMakesNoCalls() {
	s.clock.t = time.Date(2025, 5, 26, 3, 0, 0, 0, time.Local)
	ctx, cancel := context.WithCancel(context.Background())
	s.clock.onSleep = func(int) { cancel() }

	err := s.newScheduler().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Zero(s.source.Calls())
	s.Empty(s.submit.Calls())
	s.Equal([]time.Duration{3*time.Hour + 55*time.Minute}, s.clock.slept)
}

func (s *SchedulerTestSuite) TestEagerUsesEagerDaysAndCadence() {
	s.clock.t = time.Date(2025, 5, 26, 7, 5, 0, 0, time.Local)
	s.cfg.EagerDays = []int{2}
	ctx, cancel := context.WithCancel(context.Background())
	s.clock.onSleep = func(int) { cancel() }

	err := s.newScheduler().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Equal([]int{2}, s.source.calls)
	s.Equal([]time.Duration{time.Minute}, s.clock.slept)
}

func (s *SchedulerTestSuite) TestMaxAcquisitionsEndsRun() {
	s.cfg.MaxAcquisitions = 1
	s.cfg.Concurrency = 1
	s.submit.result = succeedAll
	s.source.slots = func(d string, _ int) []court.Slot {
		return []court.Slot{
			slotOf(d, "220", 328228, court.Double),
			slotOf(d, "221", 328228, court.Double),
		}
	}

	err := s.newScheduler().Run(context.Background())
	s.NoError(err)
	s.Len(s.submit.Calls(), 1)
	s.Equal([]string{"Court order created", "Run ended: 1 slot(s) acquired"}, s.notifier.Titles())
}

func (s *SchedulerTestSuite) TestRunKeepsPollingAtCadence() {
	ctx, cancel := context.WithCancel(context.Background())
	s.clock.onSleep = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	err := s.newScheduler().Run(ctx)
	s.ErrorIs(err, context.Canceled)
	s.Equal(3, s.source.Calls())
	s.Equal([]time.Duration{10 * time.Minute, 10 * time.Minute, 10 * time.Minute}, s.clock.slept)
}

func (s *SchedulerTestSuite) TestPollDelayCappedAtBoundary() {
	sched := s.newScheduler()
	at := func(h, m, sec int) time.Time { return time.Date(2025, 5, 26, h, m, sec, 0, time.Local) }

	s.Equal(time.Minute, sched.pollDelay(modeclock.Eager, at(6, 56, 0)))
	s.Equal(30*time.Second, sched.pollDelay(modeclock.Eager, at(6, 59, 30)))
	s.Equal(5*time.Minute, sched.pollDelay(modeclock.Normal, at(23, 55, 0)))
	s.Equal(10*time.Minute, sched.pollDelay(modeclock.Normal, at(12, 0, 0)))
}

func (s *SchedulerTestSuite) TestDormantDelayHasFloor() {
	sched := s.newScheduler()
	at := time.Date(2025, 5, 26, 6, 54, 59, 900_000_000, time.Local)
	s.Equal(time.Second, sched.dormantDelay(at))
}

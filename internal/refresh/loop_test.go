package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"cryptowatch/internal/coordinator"
	"cryptowatch/internal/fetcher"
	"cryptowatch/internal/snapshot"
	"cryptowatch/internal/testutil"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scriptedScheduler returns a prepared result set per cycle and advances a
// fake clock by the matching duration.
type scriptedScheduler struct {
	items     []fetcher.Item
	cycles    [][]fetcher.Result[int]
	durations []time.Duration
	clock     *time.Time
	calls     int
	onRun     func()
}

func (s *scriptedScheduler) Len() int { return len(s.items) }

func (s *scriptedScheduler) RunCycle(ctx context.Context) []fetcher.Result[int] {
	i := s.calls
	s.calls++
	if s.clock != nil && i < len(s.durations) {
		*s.clock = s.clock.Add(s.durations[i])
	}
	if s.onRun != nil {
		s.onRun()
	}
	if i < len(s.cycles) {
		return s.cycles[i]
	}
	return nil
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateFetching:  "fetching",
		StateMerging:   "merging",
		StatePublished: "published",
		State(42):      "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

func TestDelay(t *testing.T) {
	tests := []struct {
		target, elapsed, want time.Duration
	}{
		{1000 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond},
		{1000 * time.Millisecond, 1500 * time.Millisecond, 0},
		{1000 * time.Millisecond, 1000 * time.Millisecond, 0},
		{50 * time.Millisecond, 0, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := Delay(tt.target, tt.elapsed); got != tt.want {
			t.Errorf("Delay(%v, %v) = %v, want %v", tt.target, tt.elapsed, got, tt.want)
		}
	}
}

func TestRun_Cadence(t *testing.T) {
	a := testutil.Item("A")
	clock := time.Unix(1700000000, 0)
	sched := &scriptedScheduler{
		items:     []fetcher.Item{a},
		durations: []time.Duration{200 * time.Millisecond, 1500 * time.Millisecond},
		clock:     &clock,
	}
	store := snapshot.NewStore(snapshot.Initial[int]("", sched.items))

	l := New(Config{Name: "test", Interval: time.Second}, sched, store, discard)
	l.now = func() time.Time { return clock }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	if len(delays) != 2 {
		t.Fatalf("recorded %d sleeps, want 2", len(delays))
	}
	if delays[0] != 800*time.Millisecond {
		t.Errorf("sleep after 200ms cycle = %v, want 800ms", delays[0])
	}
	if delays[1] != 0 {
		t.Errorf("sleep after 1500ms cycle = %v, want 0", delays[1])
	}

	s := store.Current()
	if s.Cycle != 2 {
		t.Errorf("Cycle = %d, want 2", s.Cycle)
	}
	if s.CycleDuration != 1500*time.Millisecond {
		t.Errorf("CycleDuration = %v, want 1.5s", s.CycleDuration)
	}
}

func TestRunOnce_Scenario(t *testing.T) {
	a, b, c := testutil.Item("A"), testutil.Item("B"), testutil.Item("C")
	now := time.Now()
	failure := fetcher.NewNetworkError(errors.New("connection reset"))

	sched := &scriptedScheduler{
		items: []fetcher.Item{a, b, c},
		cycles: [][]fetcher.Result[int]{
			{fetcher.Success(a, 100, now), fetcher.Failure[int](b, failure, now), fetcher.Success(c, 50, now)},
			{fetcher.Success(a, 105, now), fetcher.Success(b, 20, now), fetcher.Failure[int](c, failure, now)},
		},
	}
	store := snapshot.NewStore(snapshot.Initial[int]("inst", sched.items))

	var observed []uint64
	obs := ObserverFunc[int](func(ctx context.Context, s *snapshot.Snapshot[int]) {
		observed = append(observed, s.Cycle)
	})

	l := New(Config{Name: "test", Interval: time.Second}, sched, store, discard, obs)

	s1, err := l.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if s1.Cycle != 1 || store.Current() != s1 {
		t.Fatalf("cycle 1 not published: %+v", s1)
	}
	if rec, _ := s1.Record(b.Key()); rec.HasValue || !rec.Stale {
		t.Errorf("cycle 1: B = %+v, want no value, failed", rec)
	}

	s2, err := l.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	want := map[string]int{a.Key(): 105, b.Key(): 20, c.Key(): 50}
	for key, v := range want {
		rec, _ := s2.Record(key)
		if rec.Value != v {
			t.Errorf("cycle 2: %s = %d, want %d", key, rec.Value, v)
		}
	}
	if rec, _ := s2.Record(c.Key()); !rec.Stale {
		t.Error("cycle 2: C should be marked failed")
	}
	if s2.Cycle != 2 || s2.Instance != "inst" {
		t.Errorf("cycle 2: Cycle=%d Instance=%q", s2.Cycle, s2.Instance)
	}

	if l.State() != StatePublished {
		t.Errorf("State() = %v, want published", l.State())
	}
	if l.Cycles() != 2 {
		t.Errorf("Cycles() = %d, want 2", l.Cycles())
	}
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("observer saw cycles %v, want [1 2]", observed)
	}
}

func TestRunOnce_CancelledMidCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := &scriptedScheduler{
		items: []fetcher.Item{testutil.Item("A")},
		onRun: cancel,
	}
	store := snapshot.NewStore(snapshot.Initial[int]("", sched.items))
	l := New(Config{Name: "test", Interval: time.Second}, sched, store, discard)

	if _, err := l.RunOnce(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("RunOnce() error = %v, want context.Canceled", err)
	}
	if store.Current().Cycle != 0 {
		t.Error("a cancelled cycle was published")
	}
}

func TestRun_NoItemsContinues(t *testing.T) {
	sched := &scriptedScheduler{}
	store := snapshot.NewStore[int](nil)
	l := New(Config{Name: "empty", Interval: 3 * time.Second}, sched, store, discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	l.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	for i, d := range sleeps {
		if d != 3*time.Second {
			t.Errorf("sleep %d = %v, want full interval", i, d)
		}
	}
	if sched.calls != 0 {
		t.Errorf("RunCycle called %d times with no items", sched.calls)
	}
}

// Real coordinator, real timer: cycles run back to back without overlapping
// and the loop stops promptly on cancellation.
func TestRun_WithCoordinator(t *testing.T) {
	var inFlight, overlaps atomic.Int32
	var calls atomic.Int64

	f := &testutil.MockFetcher[int]{
		FetchFunc: func(ctx context.Context) (int, error) {
			if inFlight.Add(1) > 1 {
				overlaps.Add(1)
			}
			defer inFlight.Add(-1)
			n := calls.Add(1)
			time.Sleep(2 * time.Millisecond)
			return int(n), nil
		},
		ItemValue: testutil.Item("A"),
	}

	coord := coordinator.New([]fetcher.Fetcher[int]{f}, coordinator.Options{Workers: 1, Timeout: time.Second}, discard)
	store := snapshot.NewStore(snapshot.Initial[int]("", coord.Items()))
	l := New(Config{Name: "live", Interval: 5 * time.Millisecond, Window: 5}, coord, store, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for store.Current().Cycle < 5 {
		select {
		case <-deadline:
			t.Fatal("loop did not publish 5 cycles in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if overlaps.Load() != 0 {
		t.Errorf("observed %d overlapping cycles", overlaps.Load())
	}
	s := store.Current()
	if s.EffectiveRate <= 0 {
		t.Errorf("EffectiveRate = %v, want > 0", s.EffectiveRate)
	}
	if rec := s.Records[0]; rec.Value != int(s.Cycle) {
		t.Errorf("record value %d does not match cycle %d", rec.Value, s.Cycle)
	}
}

package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edaniels/golog"

	"powertool-go/drivers/pmbus"
	"powertool-go/drivers/pmbus/pmbustest"
	"powertool-go/errcode"
)

// fakeClock advances only when the loop sleeps or a job says so.
type fakeClock struct {
	t     time.Time
	slept []time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) sleep(_ context.Context, d time.Duration) bool {
	c.slept = append(c.slept, d)
	c.t = c.t.Add(d)
	return true
}

type funcJob func(ctx context.Context, rec *Record) error

func (f funcJob) Name() string                              { return "func" }
func (f funcJob) Do(ctx context.Context, rec *Record) error { return f(ctx, rec) }

type memSink struct {
	recs    []Record
	flushed int
	err     error
}

func (s *memSink) Write(r Record) error {
	if s.err != nil {
		return s.err
	}
	s.recs = append(s.recs, r)
	return nil
}
func (s *memSink) Flush() error { s.flushed++; return nil }

func newLoop(t *testing.T, cfg Config, job Job, sink Sink) (*Loop, *fakeClock) {
	t.Helper()
	cfg.Logger = golog.NewTestLogger(t)
	l := New(cfg, job, sink)
	clk := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l.now = clk.now
	l.sleep = clk.sleep
	return l, clk
}

func TestAbortAfterElevenAttempts(t *testing.T) {
	nack := errors.New("nack")
	dev := pmbustest.New(pmbus.AddressDefault)
	dev.FailAll(nack)
	bus := pmbus.New(dev, pmbus.Config{})
	job := &RailJob{Bus: bus, Rails: []Rail{{Name: "TSP_CORE", Page: 0}}}
	sink := &memSink{}
	l, _ := newLoop(t, Config{Interval: 100 * time.Millisecond}, job, sink)

	sum, err := l.Run(context.Background())
	if !errors.Is(err, ErrAborted) || !errors.Is(err, nack) {
		t.Fatalf("err=%v", err)
	}
	if errcode.Of(err) != errcode.TooManyErrors {
		t.Fatalf("code=%q", errcode.Of(err))
	}
	if sum.State != Aborted || l.State() != Aborted {
		t.Fatalf("state=%v", sum.State)
	}
	if sum.Attempts != 11 || sum.Errors != 11 || sum.Samples != 0 {
		t.Fatalf("summary=%+v", sum)
	}
	// Each attempt is the VOUT_MODE fallback read plus the failing READ_VOUT.
	if dev.Calls() != 22 {
		t.Fatalf("transport calls=%d want 22", dev.Calls())
	}
	if sink.flushed != 1 || len(sink.recs) != 0 {
		t.Fatalf("sink=%+v", sink)
	}
}

func TestMaxErrorsCeiling(t *testing.T) {
	fail := funcJob(func(context.Context, *Record) error { return errors.New("x") })
	l, _ := newLoop(t, Config{MaxErrors: 2}, fail, nil)
	sum, err := l.Run(context.Background())
	if err == nil || sum.Attempts != 3 {
		t.Fatalf("attempts=%d err=%v", sum.Attempts, err)
	}
}

func TestCadenceAndDuration(t *testing.T) {
	var clk *fakeClock
	job := funcJob(func(context.Context, *Record) error {
		clk.t = clk.t.Add(30 * time.Millisecond)
		return nil
	})
	sink := &memSink{}
	l, c := newLoop(t, Config{Interval: 100 * time.Millisecond, Duration: time.Second}, job, sink)
	clk = c

	sum, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.State != Completed || sum.Samples != 10 || sum.Overruns != 0 {
		t.Fatalf("summary=%+v", sum)
	}
	for i, d := range c.slept {
		if d != 70*time.Millisecond {
			t.Fatalf("sleep %d=%v want 70ms", i, d)
		}
	}
	for i, r := range sink.recs {
		if r.SampleNum != i+1 || r.Elapsed != time.Duration(i)*100*time.Millisecond {
			t.Fatalf("record %d: num=%d elapsed=%v", i, r.SampleNum, r.Elapsed)
		}
	}
	if sum.Rate != 10 {
		t.Fatalf("rate=%v", sum.Rate)
	}
}

func TestOverrunDoesNotCatchUp(t *testing.T) {
	var clk *fakeClock
	job := funcJob(func(context.Context, *Record) error {
		clk.t = clk.t.Add(300 * time.Millisecond)
		return nil
	})
	sink := &memSink{}
	l, c := newLoop(t, Config{Interval: 100 * time.Millisecond, Duration: time.Second}, job, sink)
	clk = c

	sum, err := l.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Attempts != 4 || sum.Overruns != 4 || len(c.slept) != 0 {
		t.Fatalf("summary=%+v slept=%v", sum, c.slept)
	}
	for i, r := range sink.recs {
		if r.SampleNum != i+1 {
			t.Fatalf("record %d has sample_num %d", i, r.SampleNum)
		}
	}
}

func TestCancelCompletesAndFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	job := funcJob(func(context.Context, *Record) error {
		n++
		if n == 3 {
			cancel()
		}
		return nil
	})
	sink := &memSink{}
	l, _ := newLoop(t, Config{Interval: 10 * time.Millisecond}, job, sink)

	sum, err := l.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.State != Completed || sum.Samples != 3 || len(sink.recs) != 3 || sink.flushed != 1 {
		t.Fatalf("summary=%+v sink=%d flushed=%d", sum, len(sink.recs), sink.flushed)
	}
}

func TestSinkErrorCounts(t *testing.T) {
	ok := funcJob(func(context.Context, *Record) error { return nil })
	sink := &memSink{err: errors.New("disk full")}
	l, _ := newLoop(t, Config{MaxErrors: 1}, ok, sink)
	sum, err := l.Run(context.Background())
	if !errors.Is(err, ErrAborted) || sum.Errors != 2 || sum.Samples != 0 {
		t.Fatalf("summary=%+v err=%v", sum, err)
	}
}

func TestRunOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l, _ := newLoop(t, Config{}, funcJob(func(context.Context, *Record) error { return nil }), nil)
	if _, err := l.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := l.Run(ctx); !errors.Is(err, ErrStarted) {
		t.Fatalf("second Run: %v", err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Running: "running", Completed: "completed", Aborted: "aborted"} {
		if s.String() != want {
			t.Fatalf("%d: %s", s, s)
		}
	}
}

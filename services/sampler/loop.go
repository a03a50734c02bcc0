// Package sampler runs a job at a fixed cadence and forwards each result
// to a sink, counting failures until a ceiling is exceeded.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edaniels/golog"

	"powertool-go/errcode"
)

const (
	DefaultMaxErrors     = 10
	DefaultProgressEvery = 50
)

type State uint8

const (
	Idle State = iota
	Running
	Completed
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// ErrAborted is returned by Run when the error ceiling was exceeded.
var ErrAborted = errcode.New(errcode.TooManyErrors, "sampler", "too many errors", nil)

// ErrStarted is returned when Run is called on a loop that already ran.
var ErrStarted = errors.New("sampler: loop already started")

type Config struct {
	Interval      time.Duration // target period; 0 runs back to back
	Duration      time.Duration // 0 runs until cancelled
	MaxErrors     int           // abort once errors exceed this; 0 selects 10
	ProgressEvery int           // progress log period in samples; 0 selects 50
	Logger        golog.Logger
}

// Job performs one attempt and fills rec.
type Job interface {
	Name() string
	Do(ctx context.Context, rec *Record) error
}

// Sink receives successful records in order.
type Sink interface {
	Write(rec Record) error
	Flush() error
}

// Summary is the outcome of Run.
type Summary struct {
	State    State
	Attempts int
	Samples  int
	Errors   int
	Overruns int
	Duration time.Duration
	Rate     float64 // samples per second
	LastErr  error
}

type Loop struct {
	cfg  Config
	job  Job
	sink Sink
	log  golog.Logger

	mu    sync.Mutex
	state State

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New builds an idle loop. sink may be nil.
func New(cfg Config, job Job, sink Sink) *Loop {
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMaxErrors
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	log := cfg.Logger
	if log == nil {
		log = golog.NewDevelopmentLogger("sampler")
	}
	return &Loop{cfg: cfg, job: job, sink: sink, log: log, now: time.Now, sleep: sleepCtx}
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run drives the job until the duration elapses, ctx is cancelled or the
// error ceiling is exceeded. Cancellation is checked between attempts; an
// attempt in flight is never interrupted. Run returns nil on Completed and
// an error wrapping ErrAborted and the last failure on Aborted.
func (l *Loop) Run(ctx context.Context) (Summary, error) {
	l.mu.Lock()
	if l.state != Idle {
		l.mu.Unlock()
		return Summary{State: l.state}, ErrStarted
	}
	l.state = Running
	l.mu.Unlock()

	var sum Summary
	start := l.now()
	l.log.Infow("sampling started", "job", l.job.Name(), "interval", l.cfg.Interval,
		"duration", l.cfg.Duration, "max_errors", l.cfg.MaxErrors)

	for {
		if ctx.Err() != nil {
			l.log.Infow("sampling stopped", "job", l.job.Name(), "reason", ctx.Err())
			return l.finish(&sum, start, Completed), nil
		}
		tick := l.now()
		elapsed := tick.Sub(start)
		if l.cfg.Duration > 0 && elapsed >= l.cfg.Duration {
			return l.finish(&sum, start, Completed), nil
		}

		sum.Attempts++
		rec := Record{Timestamp: tick, Elapsed: elapsed, SampleNum: sum.Attempts}
		err := l.job.Do(ctx, &rec)
		if err == nil && l.sink != nil {
			if werr := l.sink.Write(rec); werr != nil {
				err = fmt.Errorf("sink: %w", werr)
			}
		}

		if err != nil {
			sum.Errors++
			sum.LastErr = err
			l.log.Warnw("sample failed", "sample", rec.SampleNum, "errors", sum.Errors,
				"code", errcode.Of(err), "error", err)
			if sum.Errors > l.cfg.MaxErrors {
				out := l.finish(&sum, start, Aborted)
				return out, fmt.Errorf("%w: %d errors in %d attempts: %w", ErrAborted, sum.Errors, sum.Attempts, err)
			}
		} else {
			sum.Samples++
			if sum.Samples%l.cfg.ProgressEvery == 0 {
				l.log.Infow("progress", "samples", sum.Samples, "errors", sum.Errors,
					"elapsed", elapsed.Round(time.Millisecond))
			}
		}

		spent := l.now().Sub(tick)
		if spent > l.cfg.Interval {
			if l.cfg.Interval > 0 {
				sum.Overruns++
				l.log.Warnw("tick overran interval", "sample", rec.SampleNum,
					"took", spent.Round(time.Millisecond), "interval", l.cfg.Interval)
			}
			continue
		}
		l.sleep(ctx, l.cfg.Interval-spent)
	}
}

func (l *Loop) finish(sum *Summary, start time.Time, st State) Summary {
	if l.sink != nil {
		if err := l.sink.Flush(); err != nil {
			l.log.Errorw("sink flush failed", "error", err)
		}
	}
	sum.State = st
	sum.Duration = l.now().Sub(start)
	if s := sum.Duration.Seconds(); s > 0 {
		sum.Rate = float64(sum.Samples) / s
	}
	l.setState(st)

	kv := []interface{}{"job", l.job.Name(), "state", st, "attempts", sum.Attempts,
		"samples", sum.Samples, "errors", sum.Errors, "overruns", sum.Overruns,
		"duration", sum.Duration.Round(time.Millisecond), "rate", fmt.Sprintf("%.2f/s", sum.Rate)}
	if st == Aborted {
		l.log.Errorw("sampling aborted", append(kv, "last_error", sum.LastErr)...)
	} else {
		l.log.Infow("sampling completed", kv...)
	}
	return *sum
}

// sleepCtx reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

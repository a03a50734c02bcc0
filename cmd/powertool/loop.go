package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"powertool-go/drivers/pmbus"
	"powertool-go/errcode"
	"powertool-go/services/config"
	"powertool-go/services/sampler"
	"powertool-go/services/session"
	"powertool-go/x/ramp"
)

// loopFlags are shared by the continuous commands and override the
// configuration only when given on the command line.
type loopFlags struct {
	fs        *flag.FlagSet
	interval  time.Duration
	duration  time.Duration
	maxErrors int
	csvDir    string
	redis     string
	quiet     bool
}

func addLoopFlags(fs *flag.FlagSet) *loopFlags {
	lf := &loopFlags{fs: fs}
	fs.DurationVar(&lf.interval, "interval", 0, "sample period")
	fs.DurationVar(&lf.duration, "duration", 0, "run time; 0 runs until interrupted")
	fs.IntVar(&lf.maxErrors, "max-errors", 0, "abort once errors exceed this, at least 1")
	fs.StringVar(&lf.csvDir, "csv", "", "CSV output directory")
	fs.StringVar(&lf.redis, "redis", "", "redis address for live values")
	fs.BoolVar(&lf.quiet, "quiet", false, "no console progress")
	return lf
}

func (lf *loopFlags) apply(c *config.Config) error {
	var err error
	lf.fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interval":
			if lf.interval <= 0 {
				err = errcode.New(errcode.InvalidParams, "loop", "-interval must be positive", nil)
			}
			c.Loop.Interval = lf.interval
		case "duration":
			if lf.duration < 0 {
				err = errcode.New(errcode.InvalidParams, "loop", "-duration must not be negative", nil)
			}
			c.Loop.Duration = lf.duration
		case "max-errors":
			if lf.maxErrors < 1 {
				err = errcode.New(errcode.InvalidParams, "loop", "-max-errors must be at least 1", nil)
			}
			c.Loop.MaxErrors = lf.maxErrors
		case "csv":
			c.Sinks.CSVDir = lf.csvDir
		case "redis":
			c.Sinks.Redis.Addr = lf.redis
		}
	})
	return err
}

func runLoop(ctx context.Context, s *session.Session, lf *loopFlags, prefix string, job sampler.Job) error {
	if err := lf.apply(s.Cfg); err != nil {
		return err
	}
	sinks, err := s.Sinks(prefix, !lf.quiet)
	if err != nil {
		return err
	}
	defer sinks.Close()

	sum, err := sampler.New(s.LoopConfig(), job, sinks).Run(ctx)
	fmt.Printf("%s: %s after %v, %d samples, %d errors, %d overruns, %.2f samples/s\n",
		job.Name(), sum.State, sum.Duration.Round(time.Millisecond), sum.Samples, sum.Errors, sum.Overruns, sum.Rate)
	if sum.LastErr != nil && err == nil {
		fmt.Printf("last error [%s]: %v\n", errcode.Of(sum.LastErr), sum.LastErr)
	}
	return err
}

func runLog(ctx context.Context, s *session.Session, args []string) error {
	fs := newFlags("log")
	railNames := fs.String("rail", "", "comma-separated rails; empty logs every rail")
	phases := fs.Bool("phases", false, "include phase currents")
	dieTemp := fs.Bool("die-temp", false, "include READ_DIE_TEMP")
	lf := addLoopFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	rails, err := s.Rails(splitList(*railNames)...)
	if err != nil {
		return err
	}
	opts := s.Reader.Options()
	if *phases {
		opts.Phases, opts.LoopPhases = true, true
	}
	if *dieTemp {
		opts.DieTemp = true
	}
	job := &sampler.RailJob{Bus: s.Bus, Reader: pmbus.NewReader(opts), Rails: rails}
	return runLoop(ctx, s, lf, "telemetry", job)
}

func runLogCmd(ctx context.Context, s *session.Session, args []string) error {
	fs := newFlags("logcmd")
	cmdName := fs.String("cmd", "", "named command or register")
	railName := fs.String("rail", "", "rail name or page")
	width := fs.Int("width", 2, "register width when -cmd is a raw register")
	lf := addLoopFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *cmdName == "" {
		return errcode.New(errcode.InvalidParams, "logcmd", "-cmd is required", nil)
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}

	var job sampler.Job
	if c, ok := pmbus.LookupCommand(*cmdName); ok {
		job = &sampler.CommandJob{Bus: s.Bus, Rail: rail, Command: c, Mode: s.Cfg.DieTempMode()}
	} else {
		reg, err := parseRegister(*cmdName)
		if err != nil {
			return errcode.New(errcode.UnknownCommand, "logcmd", *cmdName, nil)
		}
		job = &sampler.RegisterJob{Bus: s.Bus, Rail: rail, Reg: reg, Width: *width}
	}
	prefix := strings.ToLower(strings.NewReplacer("@", "_", " ", "_").Replace(job.Name()))
	return runLoop(ctx, s, lf, prefix, job)
}

func runTest(ctx context.Context, s *session.Session, args []string) error {
	fs := newFlags("test")
	railName := fs.String("rail", "", "rail name or page")
	targets := fs.String("targets", "", "comma-separated voltages, cycled each tick")
	from := fs.Float64("from", 0, "sweep start in V, used with -to")
	to := fs.Float64("to", 0, "sweep end in V")
	steps := fs.Int("steps", 10, "sweep steps between -from and -to")
	triangle := fs.Bool("triangle", false, "sweep back down before repeating")
	verify := fs.Bool("verify", true, "read VOUT back after each write")
	lf := addLoopFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}
	var volts []float64
	for _, t := range splitList(*targets) {
		v, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return errcode.New(errcode.InvalidParams, "test", "target "+t, err)
		}
		volts = append(volts, v)
	}
	if len(volts) == 0 && *to > 0 {
		if *triangle {
			volts = ramp.Triangle(*from, *to, *steps)
		} else {
			volts = ramp.Linear(*from, *to, *steps)
		}
	}
	if len(volts) == 0 {
		return errcode.New(errcode.InvalidParams, "test", "-targets or -from/-to is required", nil)
	}
	env := s.Commander.Envelope()
	for _, v := range volts {
		if v < env.Min || v > env.Max {
			return errcode.New(errcode.OutOfRange, "test", fmt.Sprintf("target %.3f V outside [%.3f, %.3f]", v, env.Min, env.Max), nil)
		}
	}
	job := &sampler.VoltageJob{Bus: s.Bus, Commander: s.Commander, Rail: rail, Targets: volts}
	if *verify {
		job.Verify = s.Cfg.Device.VerifyDelay
	}
	return runLoop(ctx, s, lf, "vtest", job)
}

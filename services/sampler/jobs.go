package sampler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"powertool-go/drivers/pmbus"
)

// Record is one successful attempt. Exactly one of Rails, Command,
// Register or Setpoint is set, depending on the job.
type Record struct {
	Timestamp time.Time
	Elapsed   time.Duration
	SampleNum int // attempt number, 1-based

	Rails    []RailSample
	Command  *CommandSample
	Register *RegisterSample
	Setpoint *SetpointSample
}

// Kind names the populated payload.
func (r *Record) Kind() string {
	switch {
	case r.Rails != nil:
		return "rails"
	case r.Command != nil:
		return "command"
	case r.Register != nil:
		return "register"
	case r.Setpoint != nil:
		return "setpoint"
	}
	return "empty"
}

// Rail names a page.
type Rail struct {
	Name string
	Page uint8
}

type RailSample struct {
	Rail string
	pmbus.Sample
}

type CommandSample struct {
	Rail string
	pmbus.Value
}

type RegisterSample struct {
	Rail  string
	Page  uint8
	Reg   pmbus.Register
	Width int
	Raw   uint16
}

type SetpointSample struct {
	Rail string
	pmbus.Setpoint
	Readback    float64 // V; NaN when not verified
	ReadbackErr error
}

// RailJob reads full telemetry for each rail per tick.
type RailJob struct {
	Bus    *pmbus.Bus
	Reader *pmbus.Reader
	Rails  []Rail
}

func (j *RailJob) Name() string {
	names := make([]string, len(j.Rails))
	for i, r := range j.Rails {
		names[i] = r.Name
	}
	return "rails(" + strings.Join(names, ",") + ")"
}

func (j *RailJob) Do(_ context.Context, rec *Record) error {
	if len(j.Rails) == 0 {
		return errors.New("rail job: no rails")
	}
	rd := j.Reader
	if rd == nil {
		rd = pmbus.NewReader(pmbus.ReadOptions{})
	}
	out := make([]RailSample, 0, len(j.Rails))
	for _, r := range j.Rails {
		s, err := rd.ReadRail(j.Bus, r.Page)
		if err != nil {
			return fmt.Errorf("rail %s: %w", r.Name, err)
		}
		out = append(out, RailSample{Rail: r.Name, Sample: s})
	}
	rec.Rails = out
	return nil
}

// CommandJob reads one named command on one rail per tick.
type CommandJob struct {
	Bus     *pmbus.Bus
	Rail    Rail
	Command pmbus.Command
	Mode    pmbus.DieTempMode
}

func (j *CommandJob) Name() string { return j.Command.Name + "@" + j.Rail.Name }

func (j *CommandJob) Do(_ context.Context, rec *Record) error {
	v, err := pmbus.ReadCommand(j.Bus, j.Rail.Page, j.Command, j.Mode)
	if err != nil {
		return err
	}
	rec.Command = &CommandSample{Rail: j.Rail.Name, Value: v}
	return nil
}

// RegisterJob reads one raw register per tick.
type RegisterJob struct {
	Bus   *pmbus.Bus
	Rail  Rail
	Reg   pmbus.Register
	Width int // 1 or 2; ignored for extended registers
}

func (j *RegisterJob) Name() string { return j.Reg.String() + "@" + j.Rail.Name }

func (j *RegisterJob) Do(_ context.Context, rec *Record) error {
	var (
		raw uint16
		err error
	)
	width := j.Width
	if j.Reg.Space == pmbus.Extended {
		width = 2
		raw, err = j.Bus.ReadExtended(j.Reg.Value)
	} else {
		raw, err = j.Bus.ReadRaw(j.Rail.Page, j.Reg, width)
	}
	if err != nil {
		return &pmbus.ReadError{Page: int(j.Rail.Page), Register: j.Reg, Err: err}
	}
	rec.Register = &RegisterSample{Rail: j.Rail.Name, Page: j.Rail.Page, Reg: j.Reg, Width: width, Raw: raw}
	return nil
}

// VoltageJob writes the next target of Targets each tick, cycling, and
// optionally reads VOUT back after Verify.
type VoltageJob struct {
	Bus       *pmbus.Bus
	Commander *pmbus.Commander
	Rail      Rail
	Targets   []float64
	Verify    time.Duration // 0 skips the readback

	next  int
	sleep func(ctx context.Context, d time.Duration) bool
}

func (j *VoltageJob) Name() string { return "vout@" + j.Rail.Name }

func (j *VoltageJob) Do(ctx context.Context, rec *Record) error {
	if len(j.Targets) == 0 {
		return errors.New("voltage job: no targets")
	}
	target := j.Targets[j.next%len(j.Targets)]
	j.next++
	sp, err := j.Commander.SetVoltage(j.Bus, j.Rail.Page, target)
	if err != nil {
		return err
	}
	out := &SetpointSample{Rail: j.Rail.Name, Setpoint: sp, Readback: math.NaN()}
	if j.Verify > 0 {
		sleep := j.sleep
		if sleep == nil {
			sleep = sleepCtx
		}
		sleep(ctx, j.Verify)
		v, _, rerr := pmbus.ReadVout(j.Bus, j.Rail.Page)
		if rerr != nil {
			out.ReadbackErr = rerr
			rec.Setpoint = out
			return rerr
		}
		out.Readback = v
	}
	rec.Setpoint = out
	return nil
}

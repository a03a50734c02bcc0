package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"powertool-go/drivers/pmbus"
	"powertool-go/errcode"
	"powertool-go/services/session"
)

// verifyTolerance is the readback error accepted after a setpoint write, in V.
const verifyTolerance = 0.02

func runSet(ctx context.Context, s *session.Session, args []string) error {
	fs := newFlags("set")
	railName := fs.String("rail", "", "rail name or page")
	volts := fs.Float64("v", math.NaN(), "target voltage")
	linear16 := fs.Bool("linear16", false, "encode VOUT_COMMAND as Linear16 instead of a VID code")
	noVerify := fs.Bool("no-verify", false, "skip the READ_VOUT check")
	if err := parse(fs, args); err != nil {
		return err
	}
	if math.IsNaN(*volts) {
		return errcode.New(errcode.InvalidParams, "set", "-v is required", nil)
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}

	expected := *volts
	if *linear16 {
		code, exp, err := s.Commander.SetVoltageLinear16(s.Bus, rail.Page, *volts)
		if err != nil {
			return err
		}
		expected = pmbus.DecodeLinear16(code, exp.Exp)
		fmt.Printf("%s VOUT_COMMAND <- 0x%04X (linear16, exp %d, %.4f V)\n", rail.Name, code, exp.Exp, expected)
	} else {
		sp, err := s.Commander.SetVoltage(s.Bus, rail.Page, *volts)
		if err != nil {
			return err
		}
		expected = sp.Expected
		fmt.Printf("%s VOUT_COMMAND <- %d (0x%03X), step %.4g mV, expected %.4f V\n",
			rail.Name, sp.Code, sp.Code, sp.Step*1000, sp.Expected)
	}
	if *noVerify {
		return nil
	}

	if d := s.Cfg.Device.VerifyDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	v, _, err := pmbus.ReadVout(s.Bus, rail.Page)
	if err != nil {
		return err
	}
	fmt.Printf("%s READ_VOUT %.4f V\n", rail.Name, v)
	if math.Abs(v-expected) > verifyTolerance {
		s.Log.Warnw("output did not reach setpoint", "rail", rail.Name, "expected", expected, "read", v)
	}
	return nil
}

func runClear(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("clear")
	railName := fs.String("rail", "", "rail name or page; empty clears every rail")
	if err := parse(fs, args); err != nil {
		return err
	}
	var names []string
	if *railName != "" {
		names = []string{*railName}
	}
	rails, err := s.Rails(names...)
	if err != nil {
		return err
	}
	for _, r := range rails {
		if err := pmbus.ClearFaults(s.Bus, r.Page); err != nil {
			return fmt.Errorf("rail %s: %w", r.Name, err)
		}
		fmt.Printf("%s faults cleared\n", r.Name)
	}
	return nil
}

func runOCWarn(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("ocwarn")
	railName := fs.String("rail", "", "rail name or page")
	set := fs.Float64("set", math.NaN(), "new limit in A")
	if err := parse(fs, args); err != nil {
		return err
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}
	if !math.IsNaN(*set) {
		code, err := pmbus.SetIoutOCWarnLimit(s.Bus, rail.Page, *set)
		if err != nil {
			return err
		}
		fmt.Printf("%s IOUT_OC_WARN_LIMIT <- %d\n", rail.Name, code)
	}
	scale, err := pmbus.IoutScale(s.Bus, rail.Page)
	if err != nil {
		return err
	}
	amps, err := pmbus.IoutOCWarnLimit(s.Bus, rail.Page)
	if err != nil {
		return err
	}
	fmt.Printf("%s IOUT_OC_WARN_LIMIT %.0f A (scale %d, %.0f A/LSB)\n", rail.Name, amps, scale, pmbus.OCWarnLSB(scale))
	return nil
}

func runPhases(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("phases")
	loop1 := fs.Int("loop1", -1, "active loop-1 phases to write")
	loop2 := fs.Int("loop2", -1, "active loop-2 phases to write")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *loop1 >= 0 || *loop2 >= 0 {
		if *loop1 < 0 || *loop2 < 0 || *loop1 > 0xFF || *loop2 > 0xFF {
			return errcode.New(errcode.InvalidParams, "phases", "-loop1 and -loop2 go together, 0..255", nil)
		}
		if err := pmbus.SetLoop1Phases(s.Bus, uint8(*loop1), uint8(*loop2)); err != nil {
			return err
		}
	}
	l1, l2, err := pmbus.Loop1Phases(s.Bus)
	if err != nil {
		return err
	}
	fmt.Printf("loop1 %d phases, loop2 %d phases\n", l1, l2)
	cur, err := pmbus.ReadPhaseCurrents(s.Bus)
	if err != nil {
		return err
	}
	for i, c := range cur {
		fmt.Printf("  PHASE%-2d %3d\n", i+1, c)
	}
	return nil
}

func runTune(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("tune")
	railName := fs.String("rail", "", "rail name or page")
	freq := fs.Int("freq", -1, "FREQUENCY_SWITCH raw value")
	loadline := fs.Float64("loadline", math.NaN(), "VOUT_DROOP in mOhm")
	voffset := fs.Float64("voffset", math.NaN(), "VOUT offset in mV")
	if err := parse(fs, args); err != nil {
		return err
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}
	done := false
	if *freq >= 0 {
		if *freq > math.MaxUint16 {
			return errcode.New(errcode.OutOfRange, "tune", "-freq exceeds 16 bits", nil)
		}
		if err := pmbus.SetSwitchFrequency(s.Bus, rail.Page, uint16(*freq)); err != nil {
			return err
		}
		fmt.Printf("%s FREQUENCY_SWITCH <- %d\n", rail.Name, *freq)
		done = true
	}
	if !math.IsNaN(*loadline) {
		code, err := pmbus.SetLoadLine(s.Bus, rail.Page, *loadline)
		if err != nil {
			return err
		}
		fmt.Printf("%s VOUT_DROOP <- %d (%.4f mOhm)\n", rail.Name, code, float64(code)*pmbus.LoadLineLSB)
		done = true
	}
	if !math.IsNaN(*voffset) {
		code, err := pmbus.SetVoutOffset(s.Bus, *voffset)
		if err != nil {
			return err
		}
		fmt.Printf("VOUT_OFFSET <- %d (%.2f mV)\n", code, float64(code)*pmbus.VoutOffsetLSB)
		done = true
	}
	if !done {
		return errcode.New(errcode.InvalidParams, "tune", "nothing to do", nil)
	}
	return nil
}

package pmbus

import (
	"errors"
	"math"
	"testing"

	"powertool-go/drivers/pmbus/pmbustest"
	"powertool-go/errcode"
)

func TestSetVoltageCode7(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	dev.Set(1, 0x29, 7<<10)
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{AllOnesPages: []uint8{0}})

	sp, err := c.SetVoltage(b, 1, 0.6)
	if err != nil {
		t.Fatalf("SetVoltage: %v", err)
	}
	if sp.Code != 614 || dev.Get(1, 0x21) != 614 {
		t.Fatalf("code=%d device=%d want 614", sp.Code, dev.Get(1, 0x21))
	}
	if math.Abs(sp.Expected-0.6) >= 0.001 || sp.Step != 0.0009765625 {
		t.Fatalf("setpoint=%+v", sp)
	}
}

func TestSetVoltageAllOnesQuirk(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	dev.Set(0, 0x29, 0xFFFF).Set(1, 0x29, 0xFFFF)
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{AllOnesPages: []uint8{0}})

	sp, err := c.SetVoltage(b, 0, 1.0)
	if err != nil {
		t.Fatalf("SetVoltage page 0: %v", err)
	}
	if sp.Step != 0.00025 || sp.Code != 4000 {
		t.Fatalf("quirk rail: %+v", sp)
	}

	sp, err = c.SetVoltage(b, 1, 1.0)
	if err != nil {
		t.Fatalf("SetVoltage page 1: %v", err)
	}
	if sp.Code != 1024 {
		t.Fatalf("plain rail with unset register should use code 7 step: %+v", sp)
	}
	if dev.Get(1, 0x21)&0xF000 != 0 {
		t.Fatalf("upper bits of VOUT_COMMAND must be zero")
	}
}

func TestSetVoltageOutOfRange(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{})

	for _, v := range []float64{0.29, 3.31, -1, math.NaN()} {
		_, err := c.SetVoltage(b, 0, v)
		var ce *CommandError
		if !errors.As(err, &ce) || !ce.OutOfRange() {
			t.Fatalf("%v: expected out-of-range CommandError, got %v", v, err)
		}
		if !errors.Is(err, ErrOutOfRange) || errcode.Of(err) != errcode.OutOfRange {
			t.Fatalf("%v: not matchable as out of range: %v", v, err)
		}
	}
	if dev.Calls() != 0 {
		t.Fatalf("range check must precede bus traffic, got %d calls", dev.Calls())
	}
}

func TestSetVoltageBusError(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	dev.Set(0, 0x29, 4<<10)
	dev.FailCommand(0x21, errors.New("nack"))
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{})

	_, err := c.SetVoltage(b, 0, 1.2)
	var ce *CommandError
	if !errors.As(err, &ce) || ce.OutOfRange() || ce.Bus == nil {
		t.Fatalf("expected bus CommandError, got %v", err)
	}
	if ce.Bus.Reg != VOUT_COMMAND || errcode.Of(err) != errcode.Transport {
		t.Fatalf("CommandError=%v code=%s", ce, errcode.Of(err))
	}
	if errors.Is(err, ErrOutOfRange) {
		t.Fatalf("bus failure must not match ErrOutOfRange")
	}
}

func TestReadSetpoint(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	dev.Set(1, 0x29, 7<<10).Set(1, 0x21, 0xF000|1024)
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{})

	sp, err := c.ReadSetpoint(b, 1)
	if err != nil {
		t.Fatalf("ReadSetpoint: %v", err)
	}
	if sp.Code != 1024 || sp.Expected != 1.0 {
		t.Fatalf("setpoint=%+v", sp)
	}
}

func TestSetVoltageLinear16(t *testing.T) {
	dev := pmbustest.New(AddressDefault)
	dev.Set(0, 0x20, 0x16)
	b := New(dev, Config{})
	c := NewCommander(CommanderConfig{Envelope: Envelope{Min: 0.5, Max: 1.5}})

	m, exp, err := c.SetVoltageLinear16(b, 0, 0.75)
	if err != nil || m != 768 || exp.Exp != -10 || dev.Get(0, 0x21) != 768 {
		t.Fatalf("SetVoltageLinear16=%d %+v %v", m, exp, err)
	}
	if _, _, err := c.SetVoltageLinear16(b, 0, 2.0); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("custom envelope not applied: %v", err)
	}
}

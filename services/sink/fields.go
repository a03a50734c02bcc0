// Package sink writes sampler records to files, redis and the console.
package sink

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"powertool-go/services/sampler"
)

// Sink consumes records from a sampler loop.
type Sink interface {
	Write(rec sampler.Record) error
	Flush() error
	Close() error
}

// Field is one named value of a record, already formatted.
type Field struct {
	Key   string // <rail>.<name>
	Value string
}

func hex16(v uint16) string { return fmt.Sprintf("0x%04X", v) }
func hex8(v uint8) string   { return fmt.Sprintf("0x%02X", v) }
func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// Fields flattens rec in a stable order. Records of the same kind from the
// same job produce the same keys.
func Fields(rec sampler.Record) []Field {
	var out []Field
	add := func(rail, name, v string) {
		out = append(out, Field{Key: rail + "." + name, Value: v})
	}

	for _, r := range rec.Rails {
		s := r.Sample
		add(r.Rail, "vout_raw", hex16(s.VoutRaw))
		add(r.Rail, "vout_exp", strconv.Itoa(int(s.VoutExp.Exp)))
		add(r.Rail, "vout_exp_src", s.VoutExp.Source.String())
		add(r.Rail, "vout", fixed(s.Vout, 4))
		add(r.Rail, "iout_raw", hex16(s.IoutRaw))
		add(r.Rail, "iout", fixed(s.Iout, 3))
		add(r.Rail, "temp_raw", hex16(s.TempRaw))
		add(r.Rail, "temp", fixed(s.Temp, 2))
		add(r.Rail, "duty", fixed(s.Duty, 2))
		add(r.Rail, "iin", fixed(s.Iin, 3))
		add(r.Rail, "pin", fixed(s.Pin, 2))
		add(r.Rail, "pout", fixed(s.Pout, 2))
		add(r.Rail, "iout_peak", fixed(s.IoutPeak, 3))
		add(r.Rail, "temp_peak", fixed(s.TempPeak, 2))
		add(r.Rail, "status_byte", hex8(s.StatusByte))
		add(r.Rail, "status_word", hex16(s.StatusWord))
		add(r.Rail, "status_vout", hex8(s.StatusVout))
		add(r.Rail, "status_iout", hex8(s.StatusIout))
		add(r.Rail, "status_input", hex8(s.StatusInput))
		add(r.Rail, "status_temp", hex8(s.StatusTemp))
		add(r.Rail, "status_mfr", hex8(s.StatusMfr))
		if s.HasDieTemp {
			add(r.Rail, "die_temp_raw", hex16(s.DieTempRaw))
			add(r.Rail, "die_temp", fixed(s.DieTemp, 2))
		}
		if s.HasLoopPhases {
			add(r.Rail, "loop1_phases", strconv.Itoa(int(s.LoopPhases>>8)))
			add(r.Rail, "loop2_phases", strconv.Itoa(int(s.LoopPhases&0xFF)))
		}
		for i, p := range s.Phases {
			add(r.Rail, "phase"+strconv.Itoa(i+1), strconv.Itoa(int(p)))
		}
	}

	if c := rec.Command; c != nil {
		name := strings.ToLower(c.Command.Name)
		add(c.Rail, name+"_raw", hex16(c.Raw))
		add(c.Rail, name, strconv.FormatFloat(c.Value.Value, 'f', -1, 64))
		if c.Exp != nil {
			add(c.Rail, "vout_exp", strconv.Itoa(int(c.Exp.Exp)))
		}
	}

	if r := rec.Register; r != nil {
		name := strings.ToLower(r.Reg.String())
		if r.Width == 1 {
			add(r.Rail, name+"_hex", hex8(uint8(r.Raw)))
		} else {
			add(r.Rail, name+"_hex", hex16(r.Raw))
		}
		add(r.Rail, name+"_dec", strconv.Itoa(int(r.Raw)))
	}

	if sp := rec.Setpoint; sp != nil {
		add(sp.Rail, "target", fixed(sp.Target, 4))
		add(sp.Rail, "vid_res", hex16(sp.VIDRes))
		add(sp.Rail, "step", strconv.FormatFloat(sp.Step, 'g', -1, 64))
		add(sp.Rail, "code", strconv.Itoa(int(sp.Code)))
		add(sp.Rail, "expected", fixed(sp.Expected, 4))
		readback := ""
		if sp.ReadbackErr == nil && !math.IsNaN(sp.Readback) {
			readback = fixed(sp.Readback, 4)
		}
		add(sp.Rail, "readback", readback)
	}
	return out
}

// Summary renders rec as a short human-readable line.
func Summary(rec sampler.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d", rec.SampleNum)
	for _, r := range rec.Rails {
		fmt.Fprintf(&b, " %s: %.4fV %.2fA %.1fC", r.Rail, r.Vout, r.Iout, r.Temp)
		if n := len(r.Faults()); n > 0 {
			fmt.Fprintf(&b, " (%d faults)", n)
		}
	}
	if c := rec.Command; c != nil {
		fmt.Fprintf(&b, " %s %s: %s %s", c.Rail, c.Command.Name,
			strconv.FormatFloat(c.Value.Value, 'f', -1, 64), c.Command.Unit)
	}
	if r := rec.Register; r != nil {
		fmt.Fprintf(&b, " %s %s: %s", r.Rail, r.Reg, hex16(r.Raw))
	}
	if sp := rec.Setpoint; sp != nil {
		fmt.Fprintf(&b, " %s: set %.4fV code %d", sp.Rail, sp.Target, sp.Code)
		if sp.ReadbackErr == nil && !math.IsNaN(sp.Readback) {
			fmt.Fprintf(&b, " read %.4fV", sp.Readback)
		}
	}
	return b.String()
}

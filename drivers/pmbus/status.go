package pmbus

import (
	"fmt"
	"strings"
)

// Severity of an active status bit.
type Severity uint8

const (
	SeverityFault Severity = iota + 1
	SeverityWarning
	// SeverityReserved bits are decoded but never reported as active.
	SeverityReserved
)

func (s Severity) String() string {
	switch s {
	case SeverityFault:
		return "FAULT"
	case SeverityWarning:
		return "WARN"
	case SeverityReserved:
		return "RESERVED"
	}
	return "UNKNOWN"
}

// Bit describes one status bit.
type Bit struct {
	Pos      uint8
	Name     string
	Desc     string
	Severity Severity
}

// Table is the fixed bit layout of one status register, most significant
// bit first.
type Table struct {
	Register Register
	Width    uint8 // 8 or 16
	Bits     []Bit
}

// Flag is a decoded bit.
type Flag struct {
	Bit
	Active bool
}

// Flags is a fully decoded status register. Reserved bits are included.
type Flags struct {
	Register Register
	Raw      uint16
	Width    uint8
	Bits     []Flag
}

// ActiveFault is a set, non-reserved bit.
type ActiveFault struct {
	Register Register
	Name     string
	Desc     string
	Severity Severity
}

func (a ActiveFault) String() string {
	return a.Register.String() + "." + a.Name + "(" + a.Severity.String() + ")"
}

// ---------------- Tables ----------------

func fault(pos uint8, name, desc string) Bit { return Bit{pos, name, desc, SeverityFault} }
func warn(pos uint8, name, desc string) Bit  { return Bit{pos, name, desc, SeverityWarning} }
func rsvd(pos uint8) Bit {
	return Bit{pos, fmt.Sprintf("RESERVED_%d", pos), "Reserved", SeverityReserved}
}

var wordBits = []Bit{
	fault(15, "VOUT", "VOUT fault/warning"),
	fault(14, "IOUT", "IOUT fault/warning"),
	fault(13, "INPUT", "Input voltage/current fault/warning"),
	fault(12, "MFR_SPECIFIC", "Manufacturer specific fault"),
	fault(11, "POWER_GOOD_N", "Power Good not active"),
	rsvd(10),
	rsvd(9),
	fault(8, "WATCH_DOG_OVF", "Watchdog timer overflow"),
	fault(7, "NVM_BUSY", "NVM busy"),
	fault(6, "OFF", "Output is off"),
	fault(5, "VOUT_OV_FAULT", "VOUT overvoltage fault"),
	fault(4, "IOUT_OC_FAULT", "IOUT overcurrent fault"),
	fault(3, "VIN_UV_FAULT", "VIN undervoltage fault"),
	fault(2, "TEMPERATURE", "Over-temperature fault/warning"),
	fault(1, "CML", "Communication fault"),
	fault(0, "OTHER_FAULT", "Other fault"),
}

var (
	StatusWordTable = Table{STATUS_WORD, 16, wordBits}
	// STATUS_BYTE mirrors the low byte of STATUS_WORD.
	StatusByteTable = Table{STATUS_BYTE, 8, wordBits[8:]}

	StatusVoutTable = Table{STATUS_VOUT, 8, []Bit{
		rsvd(7), rsvd(6), rsvd(5), rsvd(4), rsvd(3), rsvd(2),
		fault(1, "LINE_FLOAT", "Line float protection fault"),
		fault(0, "VOUT_SHORT", "VOUT short fault"),
	}}

	StatusIoutTable = Table{STATUS_IOUT, 8, []Bit{
		fault(7, "IOUT_OC_FAULT", "Output overcurrent fault"),
		fault(6, "OCP_UV_FAULT", "Overcurrent and undervoltage dual fault"),
		warn(5, "IOUT_OC_WARN", "Output overcurrent warning"),
		rsvd(4), rsvd(3), rsvd(2), rsvd(1), rsvd(0),
	}}

	StatusInputTable = Table{STATUS_INPUT, 8, []Bit{
		fault(7, "VIN_OV_FAULT", "Input overvoltage fault"),
		warn(6, "VIN_OV_WARN", "Input overvoltage warning"),
		warn(5, "VIN_UV_WARN", "Input undervoltage warning"),
		fault(4, "VIN_UV_FAULT", "Input undervoltage fault"),
		fault(3, "UNIT_OFF_LOW_VIN", "Unit off for insufficient input voltage"),
		fault(2, "IIN_OC_FAULT", "Input overcurrent fault"),
		warn(1, "IIN_OC_WARN", "Input overcurrent warning"),
		warn(0, "PIN_OP_WARN", "Input overpower warning"),
	}}

	StatusTemperatureTable = Table{STATUS_TEMPERATURE, 8, []Bit{
		fault(7, "OT_FAULT", "Overtemperature fault"),
		warn(6, "OT_WARN", "Overtemperature warning"),
		warn(5, "UT_WARN", "Undertemperature warning"),
		fault(4, "UT_FAULT", "Undertemperature fault"),
		rsvd(3), rsvd(2), rsvd(1), rsvd(0),
	}}
)

// ---------------- Decoding ----------------

// Decode maps raw onto the table. Bits above the table width are ignored.
func (t *Table) Decode(raw uint16) Flags {
	if t.Width == 8 {
		raw &= 0x00FF
	}
	f := Flags{Register: t.Register, Raw: raw, Width: t.Width, Bits: make([]Flag, len(t.Bits))}
	for i, b := range t.Bits {
		f.Bits[i] = Flag{Bit: b, Active: raw>>b.Pos&1 == 1}
	}
	return f
}

func DecodeStatusWord(raw uint16) Flags       { return StatusWordTable.Decode(raw) }
func DecodeStatusByte(raw uint8) Flags        { return StatusByteTable.Decode(uint16(raw)) }
func DecodeStatusVout(raw uint8) Flags        { return StatusVoutTable.Decode(uint16(raw)) }
func DecodeStatusIout(raw uint8) Flags        { return StatusIoutTable.Decode(uint16(raw)) }
func DecodeStatusInput(raw uint8) Flags       { return StatusInputTable.Decode(uint16(raw)) }
func DecodeStatusTemperature(raw uint8) Flags { return StatusTemperatureTable.Decode(uint16(raw)) }

// Active returns the set, non-reserved bits of f.
func (f Flags) Active() []ActiveFault {
	var out []ActiveFault
	for _, b := range f.Bits {
		if b.Active && b.Severity != SeverityReserved {
			out = append(out, ActiveFault{Register: f.Register, Name: b.Name, Desc: b.Desc, Severity: b.Severity})
		}
	}
	return out
}

// Lookup returns the decoded bit with the given name.
func (f Flags) Lookup(name string) (Flag, bool) {
	for _, b := range f.Bits {
		if b.Name == name {
			return b, true
		}
	}
	return Flag{}, false
}

// Summarize concatenates the active bits of every register given.
func Summarize(flags ...Flags) []ActiveFault {
	var out []ActiveFault
	for _, f := range flags {
		out = append(out, f.Active()...)
	}
	return out
}

// Format renders f for a terminal. With showAll every non-reserved bit is
// listed, otherwise only active ones.
func (f Flags) Format(showAll bool) string {
	var sb strings.Builder
	if f.Width == 16 {
		fmt.Fprintf(&sb, "%s: 0x%04X", f.Register, f.Raw)
	} else {
		fmt.Fprintf(&sb, "%s: 0x%02X", f.Register, f.Raw)
	}
	if len(f.Active()) == 0 && !showAll {
		sb.WriteString("\n  no faults")
		return sb.String()
	}
	for _, b := range f.Bits {
		if b.Severity == SeverityReserved || !(showAll || b.Active) {
			continue
		}
		state := "OK"
		if b.Active {
			state = b.Severity.String()
		}
		fmt.Fprintf(&sb, "\n  %-16s : %-5s - %s", b.Name, state, b.Desc)
	}
	return sb.String()
}

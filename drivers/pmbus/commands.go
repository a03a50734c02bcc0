package pmbus

import (
	"sort"
	"strings"
)

// Format says how a named command's raw value is converted.
type Format uint8

const (
	FormatRaw Format = iota
	FormatLinear11
	FormatLinear16 // READ_VOUT style, exponent from VOUT_MODE
	FormatPercent  // READ_DUTY
	FormatDieTemp
	FormatExponent // VOUT_MODE
	FormatOCWarn   // IOUT_OC_WARN_LIMIT in amperes
)

// Command is one entry of the single-read command table.
type Command struct {
	Name   string
	Reg    Register
	Width  int
	Format Format
	Unit   string
}

var commandList = []Command{
	{"READ_VOUT", READ_VOUT, 2, FormatLinear16, "V"},
	{"READ_IOUT", READ_IOUT, 2, FormatLinear11, "A"},
	{"READ_TEMPERATURE_1", READ_TEMPERATURE_1, 2, FormatLinear11, "°C"},
	{"READ_DIE_TEMP", READ_DIE_TEMP, 2, FormatDieTemp, "°C"},
	{"READ_DUTY", READ_DUTY, 2, FormatPercent, "%"},
	{"READ_IIN", READ_IIN, 2, FormatLinear11, "A"},
	{"READ_PIN", READ_PIN, 2, FormatLinear11, "W"},
	{"READ_POUT", READ_POUT, 2, FormatLinear11, "W"},
	{"MFR_IOUT_PEAK", MFR_IOUT_PEAK, 2, FormatLinear11, "A"},
	{"MFR_TEMP_PEAK", MFR_TEMP_PEAK, 2, FormatLinear11, "°C"},
	{"STATUS_BYTE", STATUS_BYTE, 1, FormatRaw, ""},
	{"STATUS_WORD", STATUS_WORD, 2, FormatRaw, ""},
	{"STATUS_VOUT", STATUS_VOUT, 1, FormatRaw, ""},
	{"STATUS_IOUT", STATUS_IOUT, 1, FormatRaw, ""},
	{"STATUS_INPUT", STATUS_INPUT, 1, FormatRaw, ""},
	{"STATUS_TEMPERATURE", STATUS_TEMPERATURE, 1, FormatRaw, ""},
	{"STATUS_MFR_SPECIFIC", STATUS_MFR_SPECIFIC, 1, FormatRaw, ""},
	{"VOUT_MODE", VOUT_MODE, 1, FormatExponent, ""},
	{"VOUT_COMMAND", VOUT_COMMAND, 2, FormatRaw, ""},
	{"MFR_VID_RES_R1", MFR_VID_RES_R1, 2, FormatRaw, ""},
	{"MFR_VR_CONFIG", MFR_VR_CONFIG, 2, FormatRaw, ""},
	{"IOUT_OC_WARN_LIMIT", IOUT_OC_WARN_LIMIT, 2, FormatOCWarn, "A"},
}

var commandAliases = map[string]string{
	"VOUT":     "READ_VOUT",
	"IOUT":     "READ_IOUT",
	"TEMP":     "READ_TEMPERATURE_1",
	"DIE_TEMP": "READ_DIE_TEMP",
	"DUTY":     "READ_DUTY",
	"STATUS":   "STATUS_WORD",
}

// LookupCommand resolves a command name or alias, case-insensitively.
func LookupCommand(name string) (Command, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if a, ok := commandAliases[n]; ok {
		n = a
	}
	for _, c := range commandList {
		if c.Name == n {
			return c, true
		}
	}
	return Command{}, false
}

// CommandNames lists the table names and aliases, sorted.
func CommandNames() []string {
	out := make([]string, 0, len(commandList)+len(commandAliases))
	for _, c := range commandList {
		out = append(out, c.Name)
	}
	for a := range commandAliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Value is the result of a single named read.
type Value struct {
	Command Command
	Page    uint8
	Raw     uint16
	Value   float64 // converted; equal to Raw for FormatRaw
	Exp     *VoutExponent
}

// ReadCommand performs one named read and converts it.
func ReadCommand(b *Bus, page uint8, c Command, mode DieTempMode) (Value, error) {
	v := Value{Command: c, Page: page}
	var exp VoutExponent
	if c.Format == FormatLinear16 {
		exp = ReadVoutExponent(b, page)
		v.Exp = &exp
	}
	raw, err := b.ReadRaw(page, c.Reg, c.Width)
	if err != nil {
		return Value{}, &ReadError{Page: int(page), Register: c.Reg, Err: err}
	}
	v.Raw = raw
	switch c.Format {
	case FormatLinear11:
		v.Value = DecodeLinear11(raw)
	case FormatLinear16:
		v.Value = DecodeLinear16(raw, exp.Exp)
	case FormatPercent:
		v.Value = DecodeDuty(raw)
	case FormatDieTemp:
		v.Value = DecodeDieTemp(raw, mode)
	case FormatExponent:
		v.Value = float64(DecodeVoutMode(uint8(raw)))
	case FormatOCWarn:
		scale, err := IoutScale(b, page)
		if err != nil {
			return Value{}, &ReadError{Page: int(page), Register: MFR_VR_CONFIG, Err: err}
		}
		v.Value = float64(raw&0xFF) * OCWarnLSB(scale)
	default:
		v.Value = float64(raw)
	}
	return v, nil
}

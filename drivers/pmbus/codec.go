package pmbus

import (
	"math"

	"golang.org/x/exp/constraints"
)

// ---------------- Generic helpers ----------------

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TwosComplement interprets the low bits of raw as a signed value.
func TwosComplement(raw uint32, bits uint8) int32 {
	if bits == 0 || bits > 32 {
		return int32(raw)
	}
	mask := uint32(1<<bits - 1)
	if bits == 32 {
		mask = math.MaxUint32
	}
	v := raw & mask
	if v&(1<<(bits-1)) != 0 {
		return int32(int64(v) - int64(1)<<bits)
	}
	return int32(v)
}

// ---------------- Linear11 ----------------

// DecodeLinear11 returns mantissa × 2^exponent with a 5-bit exponent in
// bits 15:11 and an 11-bit mantissa in bits 10:0, both two's complement.
func DecodeLinear11(raw uint16) float64 {
	exp := TwosComplement(uint32(raw>>11)&0x1F, 5)
	man := TwosComplement(uint32(raw)&0x7FF, 11)
	return math.Ldexp(float64(man), int(exp))
}

// EncodeLinear11 returns the encoding of v with the smallest exponent whose
// mantissa fits. Values that cannot be represented return ErrOutOfRange.
func EncodeLinear11(v float64) (uint16, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrOutOfRange
	}
	for exp := -16; exp <= 15; exp++ {
		m := math.Round(math.Ldexp(v, -exp))
		if m >= -1024 && m <= 1023 {
			return uint16(exp&0x1F)<<11 | uint16(int16(m))&0x7FF, nil
		}
	}
	return 0, ErrOutOfRange
}

// ---------------- Linear16 ----------------

// DefaultVoutExponent is applied when VOUT_MODE cannot be read or reports 0.
const DefaultVoutExponent int8 = -10

// DecodeLinear16 returns raw × 2^exp with an unsigned mantissa.
func DecodeLinear16(raw uint16, exp int8) float64 {
	return math.Ldexp(float64(raw), int(exp))
}

// EncodeLinear16 truncates v / 2^exp into an unsigned 16-bit mantissa.
func EncodeLinear16(v float64, exp int8) uint16 {
	m := math.Trunc(math.Ldexp(v, -int(exp)))
	if math.IsNaN(m) {
		return 0
	}
	return uint16(clamp(m, 0, math.MaxUint16))
}

// DecodeVoutMode extracts the 5-bit two's-complement exponent of VOUT_MODE.
func DecodeVoutMode(b uint8) int8 {
	return int8(TwosComplement(uint32(b)&0x1F, 5))
}

// ---------------- VID ----------------

// MaxVIDCode is the largest 12-bit VOUT_COMMAND code.
const MaxVIDCode uint16 = 0x0FFF

// VoltageToVIDCode returns floor(v / step) clamped to [0, MaxVIDCode].
func VoltageToVIDCode(v, step float64) uint16 {
	if step <= 0 || math.IsNaN(v) || math.IsNaN(step) {
		return 0
	}
	c := math.Floor(v / step)
	return uint16(clamp(c, 0, float64(MaxVIDCode)))
}

// VIDCodeToVoltage returns code × step.
func VIDCodeToVoltage(code uint16, step float64) float64 {
	return float64(code) * step
}

// ---------------- Die temperature and duty ----------------

// DieTempMode selects how READ_DIE_TEMP is scaled.
type DieTempMode uint8

const (
	// DieTempLinear reports 1 °C per LSB.
	DieTempLinear DieTempMode = iota + 1
	// DieTempCalibrated applies ((raw × 1.5625) − 747) / −1.9.
	DieTempCalibrated
)

func (m DieTempMode) String() string {
	switch m {
	case DieTempLinear:
		return "linear"
	case DieTempCalibrated:
		return "calibrated"
	}
	return "unknown"
}

// ParseDieTempMode accepts "linear" and "calibrated".
func ParseDieTempMode(s string) (DieTempMode, bool) {
	switch s {
	case "linear":
		return DieTempLinear, true
	case "calibrated":
		return DieTempCalibrated, true
	}
	return 0, false
}

// DecodeDieTemp converts a READ_DIE_TEMP word in °C. Any mode other than
// DieTempCalibrated decodes linearly.
func DecodeDieTemp(raw uint16, mode DieTempMode) float64 {
	if mode == DieTempCalibrated {
		return (float64(raw)*1.5625 - 747.0) / -1.9
	}
	return float64(raw)
}

// DecodeDuty converts READ_DUTY to percent (0.25 %/LSB).
func DecodeDuty(raw uint16) float64 { return float64(raw) * 0.25 }

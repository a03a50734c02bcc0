package pmbus

import (
	"math"
	"math/rand"
	"testing"
)

func TestTwosComplement(t *testing.T) {
	cases := []struct {
		raw  uint32
		bits uint8
		want int32
	}{
		{0x00, 5, 0},
		{0x0F, 5, 15},
		{0x10, 5, -16},
		{0x16, 5, -10},
		{0x1F, 5, -1},
		{0x3FF, 11, 1023},
		{0x400, 11, -1024},
		{0x7FF, 11, -1},
		{0xFFFF, 16, -1},
		{0x25, 5, 5}, // bits above the width are ignored
	}
	for _, c := range cases {
		if got := TwosComplement(c.raw, c.bits); got != c.want {
			t.Fatalf("TwosComplement(0x%X,%d)=%d want %d", c.raw, c.bits, got, c.want)
		}
	}
}

func TestDecodeVoutMode(t *testing.T) {
	for _, b := range []uint8{0x36, 0x16, 0xF6} {
		if got := DecodeVoutMode(b); got != -10 {
			t.Fatalf("DecodeVoutMode(0x%02X)=%d want -10", b, got)
		}
	}
	if got := DecodeVoutMode(0x0C); got != 12 {
		t.Fatalf("DecodeVoutMode(0x0C)=%d want 12", got)
	}
}

func TestDecodeLinear11Known(t *testing.T) {
	cases := map[uint16]float64{
		0x0000: 0,
		0xF064: 25,          // exp -2, mantissa 100
		0xD3FF: 1023.0 / 64, // exp -6, mantissa 1023
		0x07FF: -1,          // exp 0, mantissa -1
		0x7BFF: 1023 * 32768,
		0x8400: -1024.0 / 65536,
	}
	for raw, want := range cases {
		if got := DecodeLinear11(raw); got != want {
			t.Fatalf("DecodeLinear11(0x%04X)=%v want %v", raw, got, want)
		}
	}
}

func TestLinear11RoundTripAll(t *testing.T) {
	for raw := 0; raw <= 0xFFFF; raw++ {
		v := DecodeLinear11(uint16(raw))
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("raw 0x%04X decoded to non-finite %v", raw, v)
		}
		if again := DecodeLinear11(uint16(raw)); again != v {
			t.Fatalf("raw 0x%04X not deterministic: %v vs %v", raw, v, again)
		}
		enc, err := EncodeLinear11(v)
		if err != nil {
			t.Fatalf("EncodeLinear11(%v): %v", v, err)
		}
		if got := DecodeLinear11(enc); got != v {
			t.Fatalf("round trip 0x%04X: %v -> 0x%04X -> %v", raw, v, enc, got)
		}
	}
}

func TestEncodeLinear11Unrepresentable(t *testing.T) {
	for _, v := range []float64{1024 * 65536, math.Inf(1), math.NaN()} {
		if _, err := EncodeLinear11(v); err == nil {
			t.Fatalf("EncodeLinear11(%v) should fail", v)
		}
	}
}

func TestLinear16(t *testing.T) {
	if got := DecodeLinear16(0x2A00, -10); got != 10.5 {
		t.Fatalf("DecodeLinear16(0x2A00,-10)=%v want 10.5", got)
	}
	if got := EncodeLinear16(0.75, -10); got != 768 {
		t.Fatalf("EncodeLinear16(0.75,-10)=%d want 768", got)
	}
	if got := EncodeLinear16(-1, -10); got != 0 {
		t.Fatalf("negative should clamp to 0, got %d", got)
	}
	if got := EncodeLinear16(1e9, -10); got != math.MaxUint16 {
		t.Fatalf("large should clamp to 0xFFFF, got %d", got)
	}
}

func TestVIDStep(t *testing.T) {
	if got, want := VIDStepVolts(7, false), 1000.0/1024/1000; got != want {
		t.Fatalf("code 7: %v want %v", got, want)
	}
	if got := VIDStepVolts(0, false); got != 0.00625 {
		t.Fatalf("code 0: %v want 0.00625", got)
	}
	if got := VIDStepVolts(7, true); got != 0.25/1000 {
		t.Fatalf("all-ones: %v want 0.00025", got)
	}
	if got := VIDStepVolts(4, false); got != 0.001 {
		t.Fatalf("code 4: %v want 0.001", got)
	}

	q := DefaultVIDQuirks
	if got := q.StepFromRegister(0xFFFF, true); got != 0.00025 {
		t.Fatalf("unset register on quirk rail: %v", got)
	}
	if got := q.StepFromRegister(0xFFFF, false); got != 1000.0/1024/1000 {
		t.Fatalf("unset register on plain rail: %v", got)
	}
	if got := q.StepFromRegister(0x1C00, true); got != 1000.0/1024/1000 {
		t.Fatalf("code 7 on quirk rail, not all-ones: %v", got)
	}

	custom := DefaultVIDQuirks
	custom.Code7MV = 0
	if got := custom.StepVolts(7, false); got != 1.0/1024/1000 {
		t.Fatalf("quirk table without code-7 override: %v", got)
	}
}

func TestVIDCodeConversion(t *testing.T) {
	step := 1000.0 / 1024 / 1000
	if got := VoltageToVIDCode(0.6, step); got != 614 {
		t.Fatalf("VoltageToVIDCode(0.6)=%d want 614", got)
	}
	v := VIDCodeToVoltage(614, 0.0009765625)
	if math.Abs(v-0.599609375) > 1e-12 || math.Abs(v-0.6) >= 0.001 {
		t.Fatalf("VIDCodeToVoltage(614)=%v", v)
	}
	if got := VoltageToVIDCode(-1, step); got != 0 {
		t.Fatalf("negative voltage: %d", got)
	}
	if got := VoltageToVIDCode(1, 0); got != 0 {
		t.Fatalf("zero step: %d", got)
	}
}

func TestVoltageToVIDCodeClamps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	steps := DefaultVIDQuirks.StepsMV
	for i := 0; i < 20000; i++ {
		v := rng.Float64() * 1000
		step := steps[rng.Intn(len(steps))] / 1000
		if c := VoltageToVIDCode(v, step); c > MaxVIDCode {
			t.Fatalf("VoltageToVIDCode(%v,%v)=0x%X exceeds 12 bits", v, step, c)
		}
	}
	for _, v := range []float64{1000, math.Inf(1), math.NaN(), math.MaxFloat64} {
		if c := VoltageToVIDCode(v, 1.0/1024/1000); c > MaxVIDCode {
			t.Fatalf("VoltageToVIDCode(%v)=0x%X exceeds 12 bits", v, c)
		}
	}
}

func TestDieTempAndDuty(t *testing.T) {
	if got := DecodeDieTemp(45, DieTempLinear); got != 45 {
		t.Fatalf("linear: %v", got)
	}
	// 352 * 1.5625 = 550, (550 - 747) / -1.9 = 103.68...
	if got, want := DecodeDieTemp(352, DieTempCalibrated), 197/1.9; math.Abs(got-want) > 1e-9 {
		t.Fatalf("calibrated: %v want %v", got, want)
	}
	if got := DecodeDieTemp(37, DieTempMode(9)); got != 37 {
		t.Fatalf("unknown mode should decode linearly, got %v", got)
	}
	if got := DecodeDuty(200); got != 50 {
		t.Fatalf("duty: %v", got)
	}
	if m, ok := ParseDieTempMode("calibrated"); !ok || m != DieTempCalibrated {
		t.Fatalf("ParseDieTempMode")
	}
}

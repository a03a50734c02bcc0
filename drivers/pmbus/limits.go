package pmbus

import "math"

// ---------------- Faults and configuration writes ----------------

// ClearFaults sends CLEAR_FAULTS on page.
func ClearFaults(b *Bus, page uint8) error {
	return b.SendCommand(page, CLEAR_FAULTS)
}

// IoutScale returns IOUT_SCALE_BIT_A, bits 2:0 of MFR_VR_CONFIG.
func IoutScale(b *Bus, page uint8) (uint8, error) {
	v, err := b.ReadWord(page, MFR_VR_CONFIG)
	if err != nil {
		return 0, err
	}
	return uint8(v & 0x07), nil
}

// OCWarnLSB is the IOUT_OC_WARN_LIMIT resolution in amperes for a scale.
func OCWarnLSB(scale uint8) float64 { return 8 * float64(scale) }

// IoutOCWarnLimit returns the overcurrent warning limit in amperes.
func IoutOCWarnLimit(b *Bus, page uint8) (float64, error) {
	raw, err := b.ReadWord(page, IOUT_OC_WARN_LIMIT)
	if err != nil {
		return 0, err
	}
	scale, err := IoutScale(b, page)
	if err != nil {
		return 0, err
	}
	return float64(raw&0xFF) * OCWarnLSB(scale), nil
}

// SetIoutOCWarnLimit writes the overcurrent warning limit. The register
// holds an 8-bit count of 8 × IOUT_SCALE_BIT_A amperes.
func SetIoutOCWarnLimit(b *Bus, page uint8, amps float64) (uint16, error) {
	const op = "set_iout_oc_warn_limit"
	if amps < 0 || math.IsNaN(amps) {
		return 0, outOfRange(op, amps, 0, math.Inf(1))
	}
	scale, err := IoutScale(b, page)
	if err != nil {
		return 0, commandBusError(op, err)
	}
	lsb := OCWarnLSB(scale)
	if lsb == 0 {
		return 0, commandBusError(op, ErrIoutScaleZero)
	}
	raw := math.Floor(amps / lsb)
	if raw > 255 {
		return 0, outOfRange(op, amps, 0, 255*lsb)
	}
	if err := b.WriteWord(page, IOUT_OC_WARN_LIMIT, uint16(raw)); err != nil {
		return 0, commandBusError(op, err)
	}
	return uint16(raw), nil
}

// SetSwitchFrequency writes FREQUENCY_SWITCH.
func SetSwitchFrequency(b *Bus, page uint8, value uint16) error {
	if err := b.WriteWord(page, FREQUENCY_SWITCH, value); err != nil {
		return commandBusError("set_switch_frequency", err)
	}
	return nil
}

// LoadLineLSB is the VOUT_DROOP resolution in mΩ.
const LoadLineLSB = 0.0195

// SetLoadLine writes VOUT_DROOP for a load line in mΩ and returns the code.
func SetLoadLine(b *Bus, page uint8, mohm float64) (uint16, error) {
	const op = "set_load_line"
	code := math.Trunc(mohm / LoadLineLSB)
	if !(code >= 0 && code <= math.MaxUint16) {
		return 0, outOfRange(op, mohm, 0, math.MaxUint16*LoadLineLSB)
	}
	if err := b.WriteWord(page, VOUT_DROOP, uint16(code)); err != nil {
		return 0, commandBusError(op, err)
	}
	return uint16(code), nil
}

// ---------------- Extended configuration ----------------

// Loop1Phases returns the active phase counts of loop 1 and loop 2.
func Loop1Phases(b *Bus) (loop1, loop2 uint8, err error) {
	v, err := b.ReadExtended(extLoopPhases)
	if err != nil {
		return 0, 0, err
	}
	return uint8(v >> 8), uint8(v), nil
}

// SetLoop1Phases writes loop1 << 8 | loop2 to the phase configuration.
func SetLoop1Phases(b *Bus, loop1, loop2 uint8) error {
	if loop1 > PhaseCount {
		return outOfRange("set_loop1_phases", float64(loop1), 0, PhaseCount)
	}
	if err := b.WriteExtended(extLoopPhases, uint16(loop1)<<8|uint16(loop2)); err != nil {
		return commandBusError("set_loop1_phases", err)
	}
	return nil
}

// VoutOffsetLSB is the VOUT_OFFSET resolution in mV.
const VoutOffsetLSB = 6.25

// SetVoutOffset writes a signed output offset in mV and returns the code.
func SetVoutOffset(b *Bus, mv float64) (int16, error) {
	const op = "set_vout_offset"
	code := math.Trunc(mv / VoutOffsetLSB)
	if !(code >= math.MinInt16 && code <= math.MaxInt16) {
		return 0, outOfRange(op, mv, math.MinInt16*VoutOffsetLSB, math.MaxInt16*VoutOffsetLSB)
	}
	if err := b.WriteExtended(extVoutOffset, uint16(int16(code))); err != nil {
		return 0, commandBusError(op, err)
	}
	return int16(code), nil
}

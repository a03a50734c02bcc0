package pmbus

// VIDQuirks is the per-device-revision calibration that turns the
// MFR_VID_RES_R1 resolution field into a VID step. It is data: swap it
// when a board revision reports different steps.
type VIDQuirks struct {
	// StepsMV is indexed by bits 12:10 of MFR_VID_RES_R1.
	StepsMV [8]float64
	// Code7MV, when non-zero, replaces StepsMV[7].
	Code7MV float64
	// AllOnesMV is used when the register reads 0xFFFF on a rail that
	// carries the all-ones quirk.
	AllOnesMV float64
}

// DefaultVIDQuirks matches the controller revision this tool ships for.
var DefaultVIDQuirks = VIDQuirks{
	StepsMV:   [8]float64{6.25, 5.0, 2.5, 2.0, 1.0, 1.0 / 256, 1.0 / 512, 1.0 / 1024},
	Code7MV:   1000.0 / 1024,
	AllOnesMV: 0.25,
}

// VIDResUnset is the value of an uninitialised MFR_VID_RES_R1.
const VIDResUnset uint16 = 0xFFFF

// ResolutionCode extracts the step selector from MFR_VID_RES_R1.
func ResolutionCode(vidRes uint16) uint8 { return uint8(vidRes>>10) & 0x07 }

// StepVolts returns the VID step in volts for a resolution code. When
// allOnes is set the AllOnesMV step wins.
func (q VIDQuirks) StepVolts(code uint8, allOnes bool) float64 {
	if allOnes && q.AllOnesMV > 0 {
		return q.AllOnesMV / 1000
	}
	code &= 0x07
	if code == 7 && q.Code7MV > 0 {
		return q.Code7MV / 1000
	}
	return q.StepsMV[code] / 1000
}

// StepFromRegister applies the quirks to a raw MFR_VID_RES_R1 value.
// quirkRail says whether the rail carries the all-ones quirk.
func (q VIDQuirks) StepFromRegister(vidRes uint16, quirkRail bool) float64 {
	return q.StepVolts(ResolutionCode(vidRes), quirkRail && vidRes == VIDResUnset)
}

// VIDStepVolts is StepVolts with DefaultVIDQuirks.
func VIDStepVolts(code uint8, quirkAllOnes bool) float64 {
	return DefaultVIDQuirks.StepVolts(code, quirkAllOnes)
}

package pmbus

import "fmt"

// Space selects how a register is reached.
type Space uint8

const (
	// Standard registers are 8-bit PMBus command codes.
	Standard Space = iota
	// Extended registers are 16-bit addresses reached through MFR_REG_ACCESS.
	Extended
)

// Register is a register address in one of the two spaces.
// Standard values never exceed 0xFF.
type Register struct {
	Space Space
	Value uint16
}

// Std returns the standard register for command code c.
func Std(c uint8) Register { return Register{Space: Standard, Value: uint16(c)} }

// Ext returns the extended register at a.
func Ext(a uint16) Register { return Register{Space: Extended, Value: a} }

func (r Register) String() string {
	if n, ok := registerNames[r]; ok {
		return n
	}
	if r.Space == Extended {
		return fmt.Sprintf("EXT_0x%04X", r.Value)
	}
	return fmt.Sprintf("0x%02X", r.Value)
}

// Name returns the symbolic name of r, or "" if it has none.
func (r Register) Name() string { return registerNames[r] }

// AddressDefault is the controller address observed on the boards this
// tool targets.
const AddressDefault uint16 = 0x5C

// Standard PMBus command codes.
const (
	cmdPage              uint8 = 0x00
	cmdOperation         uint8 = 0x01
	cmdClearFaults       uint8 = 0x03
	cmdVoutMode          uint8 = 0x20
	cmdVoutCommand       uint8 = 0x21
	cmdVoutDroop         uint8 = 0x28
	cmdMfrVIDResR1       uint8 = 0x29
	cmdFrequencySwitch   uint8 = 0x33
	cmdIoutOCWarnLimit   uint8 = 0x4A
	cmdMfrVRConfig       uint8 = 0x67
	cmdStatusByte        uint8 = 0x78
	cmdStatusWord        uint8 = 0x79
	cmdStatusVout        uint8 = 0x7A
	cmdStatusIout        uint8 = 0x7B
	cmdStatusInput       uint8 = 0x7C
	cmdStatusTemperature uint8 = 0x7D
	cmdStatusMfrSpecific uint8 = 0x80
	cmdReadIin           uint8 = 0x89
	cmdReadVout          uint8 = 0x8B
	cmdReadIout          uint8 = 0x8C
	cmdReadTemperature1  uint8 = 0x8D
	cmdReadDieTemp       uint8 = 0x8E
	cmdReadDuty          uint8 = 0x94
	cmdReadPout          uint8 = 0x96
	cmdReadPin           uint8 = 0x97
	cmdMfrTempPeak       uint8 = 0xD1
	cmdMfrIoutPeak       uint8 = 0xD7
	cmdMfrRegAccess      uint8 = 0xD8
)

var (
	PAGE                = Std(cmdPage)
	OPERATION           = Std(cmdOperation)
	CLEAR_FAULTS        = Std(cmdClearFaults)
	VOUT_MODE           = Std(cmdVoutMode)
	VOUT_COMMAND        = Std(cmdVoutCommand)
	VOUT_DROOP          = Std(cmdVoutDroop)
	MFR_VID_RES_R1      = Std(cmdMfrVIDResR1)
	FREQUENCY_SWITCH    = Std(cmdFrequencySwitch)
	IOUT_OC_WARN_LIMIT  = Std(cmdIoutOCWarnLimit)
	MFR_VR_CONFIG       = Std(cmdMfrVRConfig)
	STATUS_BYTE         = Std(cmdStatusByte)
	STATUS_WORD         = Std(cmdStatusWord)
	STATUS_VOUT         = Std(cmdStatusVout)
	STATUS_IOUT         = Std(cmdStatusIout)
	STATUS_INPUT        = Std(cmdStatusInput)
	STATUS_TEMPERATURE  = Std(cmdStatusTemperature)
	STATUS_MFR_SPECIFIC = Std(cmdStatusMfrSpecific)
	READ_IIN            = Std(cmdReadIin)
	READ_VOUT           = Std(cmdReadVout)
	READ_IOUT           = Std(cmdReadIout)
	READ_TEMPERATURE_1  = Std(cmdReadTemperature1)
	READ_DIE_TEMP       = Std(cmdReadDieTemp)
	READ_DUTY           = Std(cmdReadDuty)
	READ_POUT           = Std(cmdReadPout)
	READ_PIN            = Std(cmdReadPin)
	MFR_TEMP_PEAK       = Std(cmdMfrTempPeak)
	MFR_IOUT_PEAK       = Std(cmdMfrIoutPeak)
	MFR_REG_ACCESS      = Std(cmdMfrRegAccess)
)

// Extended (indirect) registers.
const (
	extPhase1Current uint16 = 0x0C00 // PHASE1..PHASE16 at 0x0C00..0x0C0F
	extVoutOffset    uint16 = 0x0023
	extLoopPhases    uint16 = 0x0E00 // Loop1_active / Phase_active
)

// PhaseCount is the number of phase-current channels.
const PhaseCount = 16

var (
	VOUT_OFFSET  = Ext(extVoutOffset)
	LOOP1_ACTIVE = Ext(extLoopPhases)
)

// PhaseCurrent returns the extended register of phase n (1..16).
func PhaseCurrent(n int) Register { return Ext(extPhase1Current + uint16(n-1)) }

var registerNames = func() map[Register]string {
	m := map[Register]string{
		PAGE:                "PAGE",
		OPERATION:           "OPERATION",
		CLEAR_FAULTS:        "CLEAR_FAULTS",
		VOUT_MODE:           "VOUT_MODE",
		VOUT_COMMAND:        "VOUT_COMMAND",
		VOUT_DROOP:          "VOUT_DROOP",
		MFR_VID_RES_R1:      "MFR_VID_RES_R1",
		FREQUENCY_SWITCH:    "FREQUENCY_SWITCH",
		IOUT_OC_WARN_LIMIT:  "IOUT_OC_WARN_LIMIT",
		MFR_VR_CONFIG:       "MFR_VR_CONFIG",
		STATUS_BYTE:         "STATUS_BYTE",
		STATUS_WORD:         "STATUS_WORD",
		STATUS_VOUT:         "STATUS_VOUT",
		STATUS_IOUT:         "STATUS_IOUT",
		STATUS_INPUT:        "STATUS_INPUT",
		STATUS_TEMPERATURE:  "STATUS_TEMPERATURE",
		STATUS_MFR_SPECIFIC: "STATUS_MFR_SPECIFIC",
		READ_IIN:            "READ_IIN",
		READ_VOUT:           "READ_VOUT",
		READ_IOUT:           "READ_IOUT",
		READ_TEMPERATURE_1:  "READ_TEMPERATURE_1",
		READ_DIE_TEMP:       "READ_DIE_TEMP",
		READ_DUTY:           "READ_DUTY",
		READ_POUT:           "READ_POUT",
		READ_PIN:            "READ_PIN",
		MFR_TEMP_PEAK:       "MFR_TEMP_PEAK",
		MFR_IOUT_PEAK:       "MFR_IOUT_PEAK",
		MFR_REG_ACCESS:      "MFR_REG_ACCESS",
		VOUT_OFFSET:         "VOUT_OFFSET",
		LOOP1_ACTIVE:        "LOOP1_ACTIVE",
	}
	for n := 1; n <= PhaseCount; n++ {
		m[PhaseCurrent(n)] = fmt.Sprintf("PHASE%d_CURRENT", n)
	}
	return m
}()

// LookupRegister resolves a symbolic register name.
func LookupRegister(name string) (Register, bool) {
	for r, n := range registerNames {
		if n == name {
			return r, true
		}
	}
	return Register{}, false
}

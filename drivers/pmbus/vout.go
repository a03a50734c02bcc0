package pmbus

// Envelope is the policy range accepted by SetVoltage.
type Envelope struct {
	Min, Max float64 // V
}

// DefaultEnvelope is the safe range observed for the controller.
var DefaultEnvelope = Envelope{Min: 0.3, Max: 3.3}

func (e Envelope) contains(v float64) bool { return v >= e.Min && v <= e.Max }

// CommanderConfig configures a Commander. Zero values take defaults.
type CommanderConfig struct {
	Envelope Envelope
	Quirks   *VIDQuirks
	// AllOnesPages lists the rails whose unset MFR_VID_RES_R1 selects the
	// all-ones step.
	AllOnesPages []uint8
}

// Commander writes VID-coded VOUT_COMMAND setpoints.
type Commander struct {
	env     Envelope
	quirks  VIDQuirks
	allOnes map[uint8]bool
}

func NewCommander(cfg CommanderConfig) *Commander {
	env := cfg.Envelope
	if env.Min == 0 && env.Max == 0 {
		env = DefaultEnvelope
	}
	q := DefaultVIDQuirks
	if cfg.Quirks != nil {
		q = *cfg.Quirks
	}
	c := &Commander{env: env, quirks: q, allOnes: make(map[uint8]bool, len(cfg.AllOnesPages))}
	for _, p := range cfg.AllOnesPages {
		c.allOnes[p] = true
	}
	return c
}

// Envelope returns the configured policy range.
func (c *Commander) Envelope() Envelope { return c.env }

// Setpoint describes a written or read VOUT_COMMAND.
type Setpoint struct {
	Page     uint8
	Target   float64 // requested V; 0 for reads
	VIDRes   uint16  // raw MFR_VID_RES_R1
	Step     float64 // V per LSB
	Code     uint16
	Expected float64 // Code × Step
}

// Step reads MFR_VID_RES_R1 for page and returns the VID step in volts.
func (c *Commander) Step(b *Bus, page uint8) (float64, uint16, error) {
	res, err := b.ReadWord(page, MFR_VID_RES_R1)
	if err != nil {
		return 0, 0, err
	}
	return c.quirks.StepFromRegister(res, c.allOnes[page]), res, nil
}

// SetVoltage writes the VID code for volts to VOUT_COMMAND. Targets outside
// the envelope are rejected before any bus traffic. No read-back is done.
func (c *Commander) SetVoltage(b *Bus, page uint8, volts float64) (Setpoint, error) {
	const op = "set_voltage"
	if !c.env.contains(volts) {
		return Setpoint{}, outOfRange(op, volts, c.env.Min, c.env.Max)
	}
	step, res, err := c.Step(b, page)
	if err != nil {
		return Setpoint{}, commandBusError(op, err)
	}
	code := VoltageToVIDCode(volts, step) & MaxVIDCode
	if err := b.WriteWord(page, VOUT_COMMAND, code); err != nil {
		return Setpoint{}, commandBusError(op, err)
	}
	return Setpoint{
		Page:     page,
		Target:   volts,
		VIDRes:   res,
		Step:     step,
		Code:     code,
		Expected: VIDCodeToVoltage(code, step),
	}, nil
}

// ReadSetpoint reads VOUT_COMMAND and decodes it with the current step.
func (c *Commander) ReadSetpoint(b *Bus, page uint8) (Setpoint, error) {
	step, res, err := c.Step(b, page)
	if err != nil {
		return Setpoint{}, err
	}
	raw, err := b.ReadWord(page, VOUT_COMMAND)
	if err != nil {
		return Setpoint{}, err
	}
	code := raw & MaxVIDCode
	return Setpoint{Page: page, VIDRes: res, Step: step, Code: code, Expected: VIDCodeToVoltage(code, step)}, nil
}

// SetVoltageLinear16 writes VOUT_COMMAND in Linear16 format using the
// rail's VOUT_MODE exponent. It shares the envelope check of SetVoltage.
func (c *Commander) SetVoltageLinear16(b *Bus, page uint8, volts float64) (uint16, VoutExponent, error) {
	const op = "set_voltage_linear16"
	if !c.env.contains(volts) {
		return 0, VoutExponent{}, outOfRange(op, volts, c.env.Min, c.env.Max)
	}
	exp := ReadVoutExponent(b, page)
	m := EncodeLinear16(volts, exp.Exp)
	if err := b.WriteWord(page, VOUT_COMMAND, m); err != nil {
		return 0, exp, commandBusError(op, err)
	}
	return m, exp, nil
}

package pmbus

import "errors"

// ExpSource records where the VOUT exponent came from.
type ExpSource uint8

const (
	ExpFromDevice ExpSource = iota + 1
	// ExpDefaultZero: VOUT_MODE read fine but reported exponent 0.
	ExpDefaultZero
	// ExpDefaultUnreadable: VOUT_MODE could not be read.
	ExpDefaultUnreadable
)

func (s ExpSource) String() string {
	switch s {
	case ExpFromDevice:
		return "device"
	case ExpDefaultZero:
		return "default_zero"
	case ExpDefaultUnreadable:
		return "default_unreadable"
	}
	return "unknown"
}

// VoutExponent is the resolved Linear16 exponent for one rail.
type VoutExponent struct {
	Exp    int8
	Source ExpSource
	Err    error // set when Source is ExpDefaultUnreadable
}

// ReadVoutExponent reads VOUT_MODE and applies the documented fallback.
// It never fails; a read failure is reported through Source and Err.
func ReadVoutExponent(b *Bus, page uint8) VoutExponent {
	m, err := b.ReadByteReg(page, VOUT_MODE)
	if err != nil {
		return VoutExponent{Exp: DefaultVoutExponent, Source: ExpDefaultUnreadable, Err: err}
	}
	e := DecodeVoutMode(m)
	if e == 0 {
		return VoutExponent{Exp: DefaultVoutExponent, Source: ExpDefaultZero}
	}
	return VoutExponent{Exp: e, Source: ExpFromDevice}
}

// ReadVout returns the rail output voltage and the exponent used.
func ReadVout(b *Bus, page uint8) (float64, VoutExponent, error) {
	exp := ReadVoutExponent(b, page)
	raw, err := b.ReadWord(page, READ_VOUT)
	if err != nil {
		return 0, exp, &ReadError{Page: int(page), Register: READ_VOUT, Err: err}
	}
	return DecodeLinear16(raw, exp.Exp), exp, nil
}

// ---------------- Sample ----------------

// Sample is one rail's readings at one instant. It is built fresh per poll
// and not modified afterwards.
type Sample struct {
	Page uint8

	VoutRaw uint16
	VoutExp VoutExponent
	Vout    float64 // V

	IoutRaw  uint16
	Iout     float64 // A
	TempRaw  uint16
	Temp     float64 // °C
	DutyRaw  uint16
	Duty     float64 // %
	Iin      float64 // A
	Pin      float64 // W
	Pout     float64 // W
	IoutPeak float64 // A
	TempPeak float64 // °C

	StatusByte  uint8
	StatusWord  uint16
	StatusVout  uint8
	StatusIout  uint8
	StatusInput uint8
	StatusTemp  uint8
	StatusMfr   uint8

	HasDieTemp bool
	DieTempRaw uint16
	DieTemp    float64 // °C

	HasLoopPhases bool
	LoopPhases    uint16 // ext 0x0E00: loop-1 phases << 8 | loop-2 phases

	// Phases holds the masked phase-current bytes; empty in basic mode.
	Phases []uint8
}

// Status decodes the status registers of s.
func (s *Sample) Status() []Flags {
	return []Flags{
		DecodeStatusWord(s.StatusWord),
		DecodeStatusVout(s.StatusVout),
		DecodeStatusIout(s.StatusIout),
		DecodeStatusInput(s.StatusInput),
		DecodeStatusTemperature(s.StatusTemp),
	}
}

// Faults returns the active faults across the decoded status registers.
func (s *Sample) Faults() []ActiveFault { return Summarize(s.Status()...) }

// ---------------- Reader ----------------

type ReadOptions struct {
	// Phases reads the 16 phase-current extended registers. Off is the
	// "basic" mode for latency-sensitive callers.
	Phases bool
	// LoopPhases reads the loop phase configuration (ext 0x0E00).
	LoopPhases bool
	// DieTemp reads READ_DIE_TEMP using DieTempMode.
	DieTemp     bool
	DieTempMode DieTempMode
}

// FullRead reads everything a rail exposes.
var FullRead = ReadOptions{Phases: true, LoopPhases: true}

// Reader performs composite rail reads.
type Reader struct {
	opts ReadOptions
}

func NewReader(opts ReadOptions) *Reader {
	if opts.DieTemp && opts.DieTempMode == 0 {
		opts.DieTempMode = DieTempLinear
	}
	return &Reader{opts: opts}
}

// Options returns the options the reader was built with.
func (r *Reader) Options() ReadOptions { return r.opts }

// ReadRail reads page with FullRead.
func ReadRail(b *Bus, page uint8) (Sample, error) {
	return NewReader(FullRead).ReadRail(b, page)
}

// railRead accumulates the first failure so the sequence stays linear.
type railRead struct {
	b    *Bus
	page uint8
	err  error
}

func (rr *railRead) word(reg Register) uint16 {
	if rr.err != nil {
		return 0
	}
	v, err := rr.b.ReadWord(rr.page, reg)
	if err != nil {
		rr.err = &ReadError{Page: int(rr.page), Register: reg, Err: err}
	}
	return v
}

func (rr *railRead) u8(reg Register) uint8 {
	if rr.err != nil {
		return 0
	}
	v, err := rr.b.ReadByteReg(rr.page, reg)
	if err != nil {
		rr.err = &ReadError{Page: int(rr.page), Register: reg, Err: err}
	}
	return v
}

func (rr *railRead) ext(reg Register) uint16 {
	if rr.err != nil {
		return 0
	}
	v, err := rr.b.ReadExtended(reg.Value)
	if err != nil {
		rr.err = &ReadError{Page: int(rr.page), Register: reg, Err: err}
	}
	return v
}

func (rr *railRead) linear11(reg Register) float64 { return DecodeLinear11(rr.word(reg)) }

// ReadRail performs the full telemetry sequence for page. If any sub-read
// fails the call fails with a *ReadError naming the register; no partial
// sample is returned.
func (r *Reader) ReadRail(b *Bus, page uint8) (Sample, error) {
	s := Sample{Page: page}
	rr := &railRead{b: b, page: page}

	s.VoutExp = ReadVoutExponent(b, page)
	s.VoutRaw = rr.word(READ_VOUT)
	s.Vout = DecodeLinear16(s.VoutRaw, s.VoutExp.Exp)

	s.IoutRaw = rr.word(READ_IOUT)
	s.Iout = DecodeLinear11(s.IoutRaw)
	s.TempRaw = rr.word(READ_TEMPERATURE_1)
	s.Temp = DecodeLinear11(s.TempRaw)
	s.DutyRaw = rr.word(READ_DUTY)
	s.Duty = DecodeDuty(s.DutyRaw)
	s.Iin = rr.linear11(READ_IIN)
	s.Pin = rr.linear11(READ_PIN)
	s.Pout = rr.linear11(READ_POUT)
	s.IoutPeak = rr.linear11(MFR_IOUT_PEAK)
	s.TempPeak = rr.linear11(MFR_TEMP_PEAK)

	s.StatusByte = rr.u8(STATUS_BYTE)
	s.StatusWord = rr.word(STATUS_WORD)
	s.StatusVout = rr.u8(STATUS_VOUT)
	s.StatusIout = rr.u8(STATUS_IOUT)
	s.StatusInput = rr.u8(STATUS_INPUT)
	s.StatusTemp = rr.u8(STATUS_TEMPERATURE)
	s.StatusMfr = rr.u8(STATUS_MFR_SPECIFIC)

	if r.opts.DieTemp {
		s.HasDieTemp = true
		s.DieTempRaw = rr.word(READ_DIE_TEMP)
		s.DieTemp = DecodeDieTemp(s.DieTempRaw, r.opts.DieTempMode)
	}
	if r.opts.LoopPhases {
		s.HasLoopPhases = true
		s.LoopPhases = rr.ext(LOOP1_ACTIVE)
	}
	if r.opts.Phases {
		s.Phases = make([]uint8, PhaseCount)
		for i := range s.Phases {
			s.Phases[i] = uint8(rr.ext(PhaseCurrent(i+1)) & 0xFF)
		}
	}

	if rr.err != nil {
		return Sample{}, rr.err
	}
	return s, nil
}

// ReadPhaseCurrents reads the 16 phase-current channels, each masked to a byte.
func ReadPhaseCurrents(b *Bus) ([]uint8, error) {
	out := make([]uint8, PhaseCount)
	for i := range out {
		v, err := b.ReadExtended(PhaseCurrent(i + 1).Value)
		if err != nil {
			return nil, &ReadError{Page: -1, Register: PhaseCurrent(i + 1), Err: err}
		}
		out[i] = uint8(v & 0xFF)
	}
	return out, nil
}

// IsReadError reports whether err is a composite-read failure and returns
// the failing register.
func IsReadError(err error) (Register, bool) {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Register, true
	}
	return Register{}, false
}

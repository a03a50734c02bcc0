package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"powertool-go/drivers/pmbus"
	"powertool-go/errcode"
	"powertool-go/services/sampler"
	"powertool-go/services/session"
)

// pickRail resolves name, defaulting to the first configured rail.
func pickRail(s *session.Session, name string) (sampler.Rail, error) {
	if name == "" {
		rails, _ := s.Rails()
		return rails[0], nil
	}
	return s.Rail(name)
}

func runRead(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("read")
	railName := fs.String("rail", "", "rail name or page; empty reads every rail")
	cmdName := fs.String("cmd", "", "single named command instead of the full sequence")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *cmdName != "" {
		c, ok := pmbus.LookupCommand(*cmdName)
		if !ok {
			return errcode.New(errcode.UnknownCommand, "read", fmt.Sprintf("%q (have %s)", *cmdName, strings.Join(pmbus.CommandNames(), ", ")), nil)
		}
		rail, err := pickRail(s, *railName)
		if err != nil {
			return err
		}
		v, err := pmbus.ReadCommand(s.Bus, rail.Page, c, s.Cfg.DieTempMode())
		if err != nil {
			return err
		}
		printValue(rail, v)
		return nil
	}

	var names []string
	if *railName != "" {
		names = []string{*railName}
	}
	rails, err := s.Rails(names...)
	if err != nil {
		return err
	}
	for _, r := range rails {
		sample, err := s.Reader.ReadRail(s.Bus, r.Page)
		if err != nil {
			return fmt.Errorf("rail %s: %w", r.Name, err)
		}
		printSample(r, &sample)
	}
	return nil
}

func printValue(r sampler.Rail, v pmbus.Value) {
	c := v.Command
	switch c.Format {
	case pmbus.FormatRaw:
		if c.Width == 1 {
			fmt.Printf("%s %s: 0x%02X\n", r.Name, c.Name, v.Raw)
		} else {
			fmt.Printf("%s %s: 0x%04X\n", r.Name, c.Name, v.Raw)
		}
	default:
		fmt.Printf("%s %s: %s %s (raw 0x%04X)\n", r.Name, c.Name,
			strconv.FormatFloat(v.Value, 'f', -1, 64), c.Unit, v.Raw)
	}
	if v.Exp != nil && v.Exp.Source != pmbus.ExpFromDevice {
		fmt.Printf("  VOUT exponent %d (%s)\n", v.Exp.Exp, v.Exp.Source)
	}
}

func printSample(r sampler.Rail, s *pmbus.Sample) {
	fmt.Printf("%s (page %d)\n", r.Name, r.Page)
	fmt.Printf("  VOUT      %8.4f V   raw 0x%04X exp %d (%s)\n", s.Vout, s.VoutRaw, s.VoutExp.Exp, s.VoutExp.Source)
	fmt.Printf("  IOUT      %8.3f A   raw 0x%04X\n", s.Iout, s.IoutRaw)
	fmt.Printf("  TEMP      %8.2f C   raw 0x%04X\n", s.Temp, s.TempRaw)
	if s.HasDieTemp {
		fmt.Printf("  DIE TEMP  %8.2f C   raw 0x%04X\n", s.DieTemp, s.DieTempRaw)
	}
	fmt.Printf("  DUTY      %8.2f %%\n", s.Duty)
	fmt.Printf("  IIN       %8.3f A\n", s.Iin)
	fmt.Printf("  PIN       %8.2f W\n", s.Pin)
	fmt.Printf("  POUT      %8.2f W\n", s.Pout)
	fmt.Printf("  IOUT PEAK %8.3f A\n", s.IoutPeak)
	fmt.Printf("  TEMP PEAK %8.2f C\n", s.TempPeak)
	if s.HasLoopPhases {
		fmt.Printf("  PHASES    loop1 %d loop2 %d\n", s.LoopPhases>>8, s.LoopPhases&0xFF)
	}
	if len(s.Phases) > 0 {
		parts := make([]string, len(s.Phases))
		for i, p := range s.Phases {
			parts[i] = strconv.Itoa(int(p))
		}
		fmt.Printf("  PHASE I   %s\n", strings.Join(parts, " "))
	}
	faults := s.Faults()
	if len(faults) == 0 {
		fmt.Println("  STATUS    no faults")
		return
	}
	for _, f := range faults {
		fmt.Printf("  STATUS    %s %s: %s\n", f.Register, f.Name, f.Desc)
	}
}

func runStatus(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("status")
	railName := fs.String("rail", "", "rail name or page; empty reads every rail")
	all := fs.Bool("all", false, "show inactive bits too")
	if err := parse(fs, args); err != nil {
		return err
	}
	var names []string
	if *railName != "" {
		names = []string{*railName}
	}
	rails, err := s.Rails(names...)
	if err != nil {
		return err
	}
	for _, r := range rails {
		flags, mfr, err := readStatus(s.Bus, r.Page)
		if err != nil {
			return fmt.Errorf("rail %s: %w", r.Name, err)
		}
		fmt.Printf("%s (page %d)\n", r.Name, r.Page)
		for _, f := range flags {
			fmt.Println(indent(f.Format(*all)))
		}
		fmt.Printf("  STATUS_MFR_SPECIFIC: 0x%02X\n", mfr)
	}
	return nil
}

func readStatus(b *pmbus.Bus, page uint8) ([]pmbus.Flags, uint8, error) {
	word, err := b.ReadWord(page, pmbus.STATUS_WORD)
	if err != nil {
		return nil, 0, &pmbus.ReadError{Page: int(page), Register: pmbus.STATUS_WORD, Err: err}
	}
	out := []pmbus.Flags{pmbus.DecodeStatusWord(word)}
	bytes := []struct {
		reg    pmbus.Register
		decode func(uint8) pmbus.Flags
	}{
		{pmbus.STATUS_VOUT, pmbus.DecodeStatusVout},
		{pmbus.STATUS_IOUT, pmbus.DecodeStatusIout},
		{pmbus.STATUS_INPUT, pmbus.DecodeStatusInput},
		{pmbus.STATUS_TEMPERATURE, pmbus.DecodeStatusTemperature},
	}
	for _, sb := range bytes {
		v, err := b.ReadByteReg(page, sb.reg)
		if err != nil {
			return nil, 0, &pmbus.ReadError{Page: int(page), Register: sb.reg, Err: err}
		}
		out = append(out, sb.decode(v))
	}
	mfr, err := b.ReadByteReg(page, pmbus.STATUS_MFR_SPECIFIC)
	if err != nil {
		return nil, 0, &pmbus.ReadError{Page: int(page), Register: pmbus.STATUS_MFR_SPECIFIC, Err: err}
	}
	return out, mfr, nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}

// parseRegister accepts a register name, 0xNN for a standard command or
// 0xNNNN / EXT_0xNNNN for an extended address.
func parseRegister(s string) (pmbus.Register, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if r, ok := pmbus.LookupRegister(s); ok {
		return r, nil
	}
	ext := strings.HasPrefix(s, "EXT_")
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "EXT_"), 0, 16)
	if err != nil {
		return pmbus.Register{}, errcode.New(errcode.InvalidParams, "register", fmt.Sprintf("%q", s), nil)
	}
	if ext || v > 0xFF {
		return pmbus.Ext(uint16(v)), nil
	}
	return pmbus.Std(uint8(v)), nil
}

func runReg(_ context.Context, s *session.Session, args []string) error {
	fs := newFlags("reg")
	regName := fs.String("r", "", "register name, 0xNN or EXT_0xNNNN")
	railName := fs.String("rail", "", "rail name or page")
	width := fs.Int("width", 2, "1 or 2 bytes (standard registers)")
	write := fs.String("write", "", "value to write instead of reading")
	if err := parse(fs, args); err != nil {
		return err
	}
	reg, err := parseRegister(*regName)
	if err != nil {
		return err
	}
	rail, err := pickRail(s, *railName)
	if err != nil {
		return err
	}

	if *write != "" {
		v, err := strconv.ParseUint(*write, 0, 16)
		if err != nil {
			return errcode.New(errcode.InvalidParams, "reg", "write value", err)
		}
		switch {
		case reg.Space == pmbus.Extended:
			err = s.Bus.WriteExtended(reg.Value, uint16(v))
		case *width == 1:
			err = s.Bus.WriteByteReg(rail.Page, reg, uint8(v))
		default:
			err = s.Bus.WriteWord(rail.Page, reg, uint16(v))
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s <- 0x%04X\n", rail.Name, reg, v)
		return nil
	}

	var raw uint16
	if reg.Space == pmbus.Extended {
		raw, err = s.Bus.ReadExtended(reg.Value)
	} else {
		raw, err = s.Bus.ReadRaw(rail.Page, reg, *width)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %s: 0x%04X (%d)\n", rail.Name, reg, raw, raw)
	return nil
}

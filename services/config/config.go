package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"powertool-go/drivers/pmbus"
)

// -----------------------------------------------------------------------------
// Transport kinds
// -----------------------------------------------------------------------------

const (
	TransportAdapter = "adapter"
	TransportSerial  = "serial"
	TransportPCIe    = "pcie"
)

// EmbeddedConfigLookup allows overriding how default profiles are resolved.
var EmbeddedConfigLookup = func(profile string) ([]byte, bool) {
	b, ok := embeddedConfigs[profile]
	return b, ok
}

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

type Config struct {
	Profile   string    `yaml:"-"`
	Transport Transport `yaml:"transport"`
	Device    Device    `yaml:"device"`
	Rails     []Rail    `yaml:"rails"`
	Loop      Loop      `yaml:"loop"`
	Sinks     Sinks     `yaml:"sinks"`
}

type Transport struct {
	Kind    string  `yaml:"kind"`
	Trace   bool    `yaml:"trace"`
	Adapter Adapter `yaml:"adapter"`
	Serial  Serial  `yaml:"serial"`
	PCIe    PCIe    `yaml:"pcie"`
}

type Adapter struct {
	Bus      string `yaml:"bus"` // i2creg name; "" picks the first bus
	SpeedKHz int    `yaml:"speed_khz"`
}

type Serial struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type PCIe struct {
	Tool     string        `yaml:"tool"`
	Device   string        `yaml:"device"`
	Bus      int           `yaml:"bus"` // < 0 omits -b
	Timeout  time.Duration `yaml:"timeout"`
	JSONPath string        `yaml:"json_path"`
}

type Device struct {
	Address        uint16        `yaml:"address"`
	PageSettle     time.Duration `yaml:"page_settle"`
	WriteSettle    time.Duration `yaml:"write_settle"`
	ExtendedSettle time.Duration `yaml:"extended_settle"`
	VerifyDelay    time.Duration `yaml:"verify_delay"`
	DieTempMode    string        `yaml:"die_temp_mode"`
	Envelope       Envelope      `yaml:"envelope"`
	VID            VID           `yaml:"vid"`
}

type Envelope struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// VID overrides the VID quirk table; empty fields keep the defaults.
type VID struct {
	StepsMV   []float64 `yaml:"steps_mv"`
	Code7MV   *float64  `yaml:"code7_mv"`
	AllOnesMV *float64  `yaml:"all_ones_mv"`
}

type Rail struct {
	Name string `yaml:"name"`
	Page uint8  `yaml:"page"`
	// AllOnesQuirk selects the all-ones VID step when MFR_VID_RES_R1 is unset.
	AllOnesQuirk bool `yaml:"all_ones_quirk"`
}

type Loop struct {
	Interval      time.Duration `yaml:"interval"`
	Duration      time.Duration `yaml:"duration"`
	MaxErrors     int           `yaml:"max_errors"`
	ProgressEvery int           `yaml:"progress_every"`
	Phases        bool          `yaml:"phases"`
	LoopPhases    bool          `yaml:"loop_phases"`
	DieTemp       bool          `yaml:"die_temp"`
}

type Sinks struct {
	CSVDir string `yaml:"csv_dir"`
	Redis  Redis  `yaml:"redis"`
}

type Redis struct {
	Addr    string `yaml:"addr"` // "" disables the sink
	Hash    string `yaml:"hash"`
	Channel string `yaml:"channel"`
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// Default returns the embedded profile.
func Default(profile string) (*Config, error) {
	raw, ok := EmbeddedConfigLookup(profile)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for profile: " + profile)
	}
	c := &Config{Profile: profile}
	if err := yaml.UnmarshalStrict(raw, c); err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile, err)
	}
	return c, nil
}

// Parse overlays b on the named profile and validates the result.
func Parse(b []byte, profile string) (*Config, error) {
	c, err := Default(profile)
	if err != nil {
		return nil, err
	}
	if len(b) > 0 {
		// Rails are replaced, not merged.
		var probe struct {
			Rails []Rail `yaml:"rails"`
		}
		if err := yaml.Unmarshal(b, &probe); err == nil && probe.Rails != nil {
			c.Rails = nil
		}
		if err := yaml.UnmarshalStrict(b, c); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads path (optional) on top of profile.
func Load(path, profile string) (*Config, error) {
	var b []byte
	if path != "" {
		var err error
		if b, err = os.ReadFile(path); err != nil {
			return nil, err
		}
	}
	c, err := Parse(b, profile)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------------

var (
	ErrTransportKind = errors.New("transport.kind must be adapter, serial or pcie")
	ErrAddress       = errors.New("device.address must be a 7-bit address")
	ErrNoRails       = errors.New("at least one rail is required")
	ErrEnvelope      = errors.New("device.envelope min must be below max")
	ErrDieTempMode   = errors.New("device.die_temp_mode must be linear or calibrated")
	ErrVIDSteps      = errors.New("device.vid.steps_mv needs exactly 8 entries")
	ErrLoop          = errors.New("loop.interval must be positive and loop.max_errors at least 1")
)

func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportAdapter, TransportSerial, TransportPCIe:
	default:
		return ErrTransportKind
	}
	if c.Device.Address == 0 || c.Device.Address > 0x7F {
		return ErrAddress
	}
	if len(c.Rails) == 0 {
		return ErrNoRails
	}
	seen := map[string]bool{}
	for _, r := range c.Rails {
		n := strings.ToUpper(r.Name)
		if n == "" || seen[n] {
			return fmt.Errorf("rail name %q empty or duplicated", r.Name)
		}
		seen[n] = true
	}
	if c.Device.Envelope.Min >= c.Device.Envelope.Max {
		return ErrEnvelope
	}
	if _, ok := pmbus.ParseDieTempMode(c.Device.DieTempMode); !ok {
		return ErrDieTempMode
	}
	if n := len(c.Device.VID.StepsMV); n != 0 && n != 8 {
		return ErrVIDSteps
	}
	if c.Loop.Interval <= 0 || c.Loop.MaxErrors < 1 {
		return ErrLoop
	}
	return nil
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// Rail resolves a rail by name (case-insensitive) or by page number.
func (c *Config) Rail(name string) (Rail, bool) {
	for _, r := range c.Rails {
		if strings.EqualFold(r.Name, name) || fmt.Sprint(r.Page) == name {
			return r, true
		}
	}
	return Rail{}, false
}

// RailNames lists configured rail names in order.
func (c *Config) RailNames() []string {
	out := make([]string, len(c.Rails))
	for i, r := range c.Rails {
		out[i] = r.Name
	}
	return out
}

func (c *Config) BusConfig() pmbus.Config {
	return pmbus.Config{
		Address:        c.Device.Address,
		PageSettle:     c.Device.PageSettle,
		WriteSettle:    c.Device.WriteSettle,
		ExtendedSettle: c.Device.ExtendedSettle,
	}
}

func (c *Config) DieTempMode() pmbus.DieTempMode {
	m, _ := pmbus.ParseDieTempMode(c.Device.DieTempMode)
	return m
}

// Quirks returns the VID quirk table with overrides applied.
func (c *Config) Quirks() pmbus.VIDQuirks {
	q := pmbus.DefaultVIDQuirks
	v := c.Device.VID
	if len(v.StepsMV) == len(q.StepsMV) {
		copy(q.StepsMV[:], v.StepsMV)
	}
	if v.Code7MV != nil {
		q.Code7MV = *v.Code7MV
	}
	if v.AllOnesMV != nil {
		q.AllOnesMV = *v.AllOnesMV
	}
	return q
}

func (c *Config) CommanderConfig() pmbus.CommanderConfig {
	q := c.Quirks()
	cc := pmbus.CommanderConfig{
		Envelope: pmbus.Envelope{Min: c.Device.Envelope.Min, Max: c.Device.Envelope.Max},
		Quirks:   &q,
	}
	for _, r := range c.Rails {
		if r.AllOnesQuirk {
			cc.AllOnesPages = append(cc.AllOnesPages, r.Page)
		}
	}
	return cc
}

func (c *Config) ReadOptions() pmbus.ReadOptions {
	return pmbus.ReadOptions{
		Phases:      c.Loop.Phases,
		LoopPhases:  c.Loop.LoopPhases,
		DieTemp:     c.Loop.DieTemp,
		DieTempMode: c.DieTempMode(),
	}
}

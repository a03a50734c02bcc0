// Package session opens the configured transport, wraps it in a PMBus
// register bus and hands out the components a command needs.
package session

import (
	"fmt"
	"time"

	"github.com/edaniels/golog"
	uuid "github.com/satori/go.uuid"
	"tinygo.org/x/drivers"

	"powertool-go/drivers/pmbus"
	"powertool-go/drivers/transport"
	"powertool-go/drivers/transport/adapter"
	"powertool-go/drivers/transport/pcietool"
	"powertool-go/drivers/transport/serialtun"
	"powertool-go/errcode"
	"powertool-go/services/config"
	"powertool-go/services/sampler"
	"powertool-go/services/sink"
)

// Opener builds the raw transport for cfg.
type Opener func(cfg *config.Config, log golog.Logger) (drivers.I2C, error)

type Session struct {
	ID      string
	Started time.Time
	Cfg     *config.Config
	Log     golog.Logger

	Bus       *pmbus.Bus
	Reader    *pmbus.Reader
	Commander *pmbus.Commander
}

// Open opens the transport named by cfg.Transport.Kind.
func Open(cfg *config.Config, log golog.Logger) (*Session, error) {
	return OpenWith(cfg, log, OpenTransport)
}

// OpenWith is Open with a caller-supplied transport opener.
func OpenWith(cfg *config.Config, log golog.Logger, open Opener) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errcode.New(errcode.InvalidParams, "session", "config", err)
	}
	id := uuid.NewV4().String()
	log = log.With("session", id[:8])

	tr, err := open(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Transport.Trace {
		tr = transport.Trace(tr, log.Named("i2c"))
	}
	s := &Session{
		ID:        id,
		Started:   time.Now(),
		Cfg:       cfg,
		Log:       log,
		Bus:       pmbus.New(tr, cfg.BusConfig()),
		Reader:    pmbus.NewReader(cfg.ReadOptions()),
		Commander: pmbus.NewCommander(cfg.CommanderConfig()),
	}
	log.Infow("session opened", "profile", cfg.Profile, "transport", cfg.Transport.Kind,
		"address", fmt.Sprintf("0x%02X", s.Bus.Address()), "rails", cfg.RailNames())
	return s, nil
}

// OpenTransport is the default Opener.
func OpenTransport(cfg *config.Config, log golog.Logger) (drivers.I2C, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportAdapter:
		a, err := adapter.Open(adapter.Config{Bus: t.Adapter.Bus, SpeedKHz: t.Adapter.SpeedKHz})
		if err != nil {
			return nil, err
		}
		return a, nil
	case config.TransportSerial:
		tun := serialtun.New(serialtun.Config{
			Port:        t.Serial.Port,
			Baud:        t.Serial.Baud,
			ReadTimeout: t.Serial.ReadTimeout,
			Logger:      log,
		})
		if err := tun.Open(); err != nil {
			return nil, err
		}
		return tun, nil
	case config.TransportPCIe:
		tool, err := pcietool.New(pcietool.Config{
			Tool:     t.PCIe.Tool,
			Device:   t.PCIe.Device,
			Bus:      t.PCIe.Bus,
			Timeout:  t.PCIe.Timeout,
			JSONPath: t.PCIe.JSONPath,
		}, nil)
		if err != nil {
			return nil, err
		}
		return tool, nil
	}
	return nil, errcode.New(errcode.Unsupported, "session", "transport "+t.Kind, nil)
}

// Rail resolves a configured rail by name or page.
func (s *Session) Rail(name string) (sampler.Rail, error) {
	r, ok := s.Cfg.Rail(name)
	if !ok {
		return sampler.Rail{}, errcode.New(errcode.UnknownRail, "session", fmt.Sprintf("%q (have %v)", name, s.Cfg.RailNames()), nil)
	}
	return sampler.Rail{Name: r.Name, Page: r.Page}, nil
}

// Rails resolves names; no names selects every configured rail.
func (s *Session) Rails(names ...string) ([]sampler.Rail, error) {
	if len(names) == 0 {
		out := make([]sampler.Rail, len(s.Cfg.Rails))
		for i, r := range s.Cfg.Rails {
			out[i] = sampler.Rail{Name: r.Name, Page: r.Page}
		}
		return out, nil
	}
	out := make([]sampler.Rail, 0, len(names))
	for _, n := range names {
		r, err := s.Rail(n)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// LoopConfig returns the sampler settings from the configuration.
func (s *Session) LoopConfig() sampler.Config {
	l := s.Cfg.Loop
	return sampler.Config{
		Interval:      l.Interval,
		Duration:      l.Duration,
		MaxErrors:     l.MaxErrors,
		ProgressEvery: l.ProgressEvery,
		Logger:        s.Log.Named("sampler"),
	}
}

// Sinks builds the configured sinks. The CSV file and the redis hash are
// tagged with the session ID.
func (s *Session) Sinks(prefix string, console bool) (sink.Multi, error) {
	var out sink.Multi
	every := s.Cfg.Loop.ProgressEvery
	if dir := s.Cfg.Sinks.CSVDir; dir != "" {
		c, err := sink.CreateCSV(dir, prefix, s.ID, every, s.Started)
		if err != nil {
			return nil, fmt.Errorf("csv sink: %w", err)
		}
		s.Log.Infow("logging to csv", "path", c.Path())
		out = append(out, c)
	}
	if r := s.Cfg.Sinks.Redis; r.Addr != "" {
		hash := r.Hash
		if hash == "" {
			hash = "powertool"
		}
		rs, err := sink.DialRedis(r.Addr, hash+":"+s.ID[:8], r.Channel)
		if err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		out = append(out, rs)
	}
	if console {
		out = append(out, sink.NewConsole(s.Log.Named("progress"), every))
	}
	return out, nil
}

func (s *Session) Close() error {
	err := s.Bus.Close()
	s.Log.Infow("session closed", "elapsed", time.Since(s.Started).Round(time.Millisecond))
	return err
}

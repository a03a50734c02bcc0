package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	uuid "github.com/satori/go.uuid"
	"tinygo.org/x/drivers"

	"powertool-go/drivers/pmbus"
	"powertool-go/drivers/pmbus/pmbustest"
	"powertool-go/errcode"
	"powertool-go/services/config"
)

func openFake(t *testing.T, mutate func(*config.Config)) (*Session, *pmbustest.Device) {
	t.Helper()
	cfg, err := config.Default(config.TransportAdapter)
	if err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	dev := pmbustest.New(pmbus.AddressDefault)
	s, err := OpenWith(cfg, golog.NewTestLogger(t), func(*config.Config, golog.Logger) (drivers.I2C, error) {
		return dev, nil
	})
	if err != nil {
		t.Fatalf("OpenWith: %v", err)
	}
	return s, dev
}

func TestOpenWiresBus(t *testing.T) {
	s, dev := openFake(t, func(c *config.Config) { c.Transport.Trace = true })
	if _, err := uuid.FromString(s.ID); err != nil {
		t.Fatalf("session id %q: %v", s.ID, err)
	}
	dev.Set(1, 0x20, 0x16).Set(1, 0x8B, 0x0200)
	v, _, err := pmbus.ReadVout(s.Bus, 1)
	if err != nil || v != 0.5 {
		t.Fatalf("ReadVout through traced bus: %v %v", v, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !dev.Closed() {
		t.Fatalf("transport not closed through tracer")
	}
}

func TestRails(t *testing.T) {
	s, _ := openFake(t, nil)
	all, err := s.Rails()
	if err != nil || len(all) != 2 || all[0].Name != "TSP_CORE" || all[1].Page != 1 {
		t.Fatalf("rails=%v err=%v", all, err)
	}
	r, err := s.Rail("tsp_c2c")
	if err != nil || r.Page != 1 {
		t.Fatalf("rail=%v err=%v", r, err)
	}
	if _, err := s.Rails("TSP_CORE", "VDDQ"); errcode.Of(err) != errcode.UnknownRail {
		t.Fatalf("unknown rail err=%v", err)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg, _ := config.Default(config.TransportSerial)
	cfg.Rails = nil
	called := false
	_, err := OpenWith(cfg, golog.NewTestLogger(t), func(*config.Config, golog.Logger) (drivers.I2C, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, config.ErrNoRails) || errcode.Of(err) != errcode.InvalidParams || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestUnsupportedTransport(t *testing.T) {
	cfg := &config.Config{Transport: config.Transport{Kind: "mcp2221"}}
	if _, err := OpenTransport(cfg, nil); errcode.Of(err) != errcode.Unsupported {
		t.Fatalf("err=%v", err)
	}
}

func TestSinksFromConfig(t *testing.T) {
	dir := t.TempDir()
	s, _ := openFake(t, func(c *config.Config) { c.Sinks.CSVDir = dir })
	m, err := s.Sinks("telemetry", true)
	if err != nil {
		t.Fatalf("Sinks: %v", err)
	}
	if len(m) != 2 {
		t.Fatalf("sinks=%d want csv+console", len(m))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "telemetry_*_"+s.ID[:8]+".csv"))
	if len(files) != 1 {
		entries, _ := os.ReadDir(dir)
		t.Fatalf("csv files=%v dir=%v", files, entries)
	}

	lc := s.LoopConfig()
	if lc.Interval != s.Cfg.Loop.Interval || lc.Logger == nil {
		t.Fatalf("loop config=%+v", lc)
	}
}

// Package adapter drives a USB-to-I2C adapter exposed by the host as a
// Linux i2c-dev bus, through periph.io.
package adapter

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"powertool-go/drivers/transport"
)

type Config struct {
	Bus      string // i2creg name or path; "" opens the first registered bus
	SpeedKHz int    // 0 leaves the bus speed untouched
}

// Adapter is a drivers.I2C over a periph bus.
type Adapter struct {
	mu     sync.Mutex
	bus    i2c.BusCloser
	closed bool
}

var (
	hostOnce sync.Once
	hostErr  error
)

// Open initialises the periph host drivers once and opens cfg.Bus.
func Open(cfg Config) (*Adapter, error) {
	hostOnce.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, fmt.Errorf("adapter: host init: %w", hostErr)
	}
	b, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("adapter: open %q: %w", cfg.Bus, err)
	}
	if cfg.SpeedKHz > 0 {
		if err := b.SetSpeed(physic.Frequency(cfg.SpeedKHz) * physic.KiloHertz); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("adapter: set speed %d kHz: %w", cfg.SpeedKHz, err)
		}
	}
	return New(b), nil
}

// New wraps an already opened bus.
func New(b i2c.BusCloser) *Adapter { return &Adapter{bus: b} }

func (a *Adapter) String() string { return "adapter(" + a.bus.String() + ")" }

func (a *Adapter) Tx(addr uint16, w, r []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return transport.ErrClosed
	}
	return a.bus.Tx(addr, w, r)
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.bus.Close()
}

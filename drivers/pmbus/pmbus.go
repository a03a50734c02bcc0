// Package pmbus is the register-access and numeric-codec layer for a
// multi-rail PMBus voltage-regulator controller.
//
// Notes:
// • Every page-scoped access writes PAGE first; the last page written is
//   kept for diagnostics only.
// • Words are little-endian on the wire (data-low then data-high).
// • Extended registers are reached with one combined transaction through
//   MFR_REG_ACCESS (0xD8): [0xD8, addr-lo, addr-hi] then the data.
// • Codecs are pure; only Bus does I/O. Nothing here retries.
// • A Bus is not safe for concurrent use; callers hold it exclusively.

package pmbus

import (
	"io"
	"time"

	"tinygo.org/x/drivers"
)

// ---------------- Types and configuration ----------------

type Config struct {
	Address uint16 // 7-bit; 0 selects AddressDefault

	// Settle delays slept by the bus itself. Zero disables each one.
	PageSettle     time.Duration // after a PAGE write
	WriteSettle    time.Duration // after a data write
	ExtendedSettle time.Duration // before an extended transaction
}

// Bus owns a transport and performs PMBus paged and extended accesses on it.
type Bus struct {
	i2c  drivers.I2C
	addr uint16
	cfg  Config

	lastPage  uint8
	pageValid bool

	sleep func(time.Duration)

	// Fixed buffers to avoid per-call heap allocations.
	w [5]byte
	r [2]byte
}

func New(i2c drivers.I2C, cfg Config) *Bus {
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	return &Bus{
		i2c:   i2c,
		addr:  cfg.Address,
		cfg:   cfg,
		sleep: time.Sleep,
	}
}

// Address returns the 7-bit device address.
func (b *Bus) Address() uint16 { return b.addr }

// LastPage reports the last page written. It is never consulted by the
// bus itself.
func (b *Bus) LastPage() (uint8, bool) { return b.lastPage, b.pageValid }

// Close releases the transport if it can be closed.
func (b *Bus) Close() error {
	b.pageValid = false
	if c, ok := b.i2c.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (b *Bus) settle(d time.Duration) {
	if d > 0 {
		b.sleep(d)
	}
}

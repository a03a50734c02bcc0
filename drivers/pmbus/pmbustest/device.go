// Package pmbustest provides a scripted PMBus controller that satisfies the
// drivers.I2C transport contract, for tests.
package pmbustest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"powertool-go/drivers/transport"
	"tinygo.org/x/drivers"
)

var ErrNack = errors.New("pmbustest: address nack")

const (
	cmdPage        = 0x00
	cmdClearFaults = 0x03
	cmdRegAccess   = 0xD8
)

// Tx is one logged transaction.
type Tx struct {
	Addr uint16
	Page uint8 // page selected when the transaction ran
	W    []byte
	N    int // bytes requested
}

// Device simulates a paged controller with an extended register space.
// Unset registers read as zero.
type Device struct {
	mu sync.Mutex

	addr  uint16
	page  uint8
	regs  map[uint8]map[uint8]uint16
	ext   map[uint16]uint16
	fail  map[uint8]error
	short map[uint8]bool

	failAll error
	delay   time.Duration
	closed  bool
	log     []Tx
}

var _ drivers.I2C = (*Device)(nil)

func New(addr uint16) *Device {
	return &Device{
		addr:  addr,
		regs:  map[uint8]map[uint8]uint16{},
		ext:   map[uint16]uint16{},
		fail:  map[uint8]error{},
		short: map[uint8]bool{},
	}
}

// Set stores a register value for page.
func (d *Device) Set(page, cmd uint8, v uint16) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.regs[page] == nil {
		d.regs[page] = map[uint8]uint16{}
	}
	d.regs[page][cmd] = v
	return d
}

// Get returns a register value for page.
func (d *Device) Get(page, cmd uint8) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[page][cmd]
}

func (d *Device) SetExt(addr, v uint16) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ext[addr] = v
	return d
}

func (d *Device) Ext(addr uint16) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ext[addr]
}

// FailCommand makes every transaction starting with cmd return err.
func (d *Device) FailCommand(cmd uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[cmd] = err
}

// ShortRead makes reads of cmd return one byte fewer than requested.
func (d *Device) ShortRead(cmd uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.short[cmd] = true
}

// FailAll makes every transaction fail with err; nil restores normal operation.
func (d *Device) FailAll(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAll = err
}

// SetDelay adds latency to every transaction.
func (d *Device) SetDelay(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = t
}

// Page returns the currently selected page.
func (d *Device) Page() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

// Log returns a copy of the transaction log.
func (d *Device) Log() []Tx {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Tx(nil), d.log...)
}

// Calls returns the number of transactions attempted.
func (d *Device) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.log)
}

// Reset clears the transaction log.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	delay := d.delay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, Tx{Addr: addr, Page: d.page, W: append([]byte(nil), w...), N: len(r)})

	if d.closed {
		return transport.ErrClosed
	}
	if d.failAll != nil {
		return d.failAll
	}
	if addr != d.addr {
		return ErrNack
	}
	if len(w) == 0 {
		return fmt.Errorf("pmbustest: empty write")
	}
	cmd := w[0]
	if err := d.fail[cmd]; err != nil {
		return err
	}

	switch {
	case cmd == cmdRegAccess:
		return d.extended(w, r)
	case len(r) > 0:
		v := d.regs[d.page][cmd]
		n := len(r)
		if d.short[cmd] {
			n--
		}
		for i := 0; i < n && i < 2; i++ {
			r[i] = byte(v >> (8 * i))
		}
		if n < len(r) {
			return fmt.Errorf("pmbustest: cmd 0x%02X: %w", cmd, transport.ErrShortRead)
		}
	case cmd == cmdPage && len(w) == 2:
		d.page = w[1]
	case len(w) == 1:
		if cmd == cmdClearFaults {
			d.clearFaults()
		}
	case len(w) == 2:
		d.store(cmd, uint16(w[1]))
	case len(w) == 3:
		d.store(cmd, uint16(w[1])|uint16(w[2])<<8)
	default:
		return fmt.Errorf("pmbustest: unsupported write of %d bytes", len(w))
	}
	return nil
}

func (d *Device) extended(w, r []byte) error {
	if len(w) < 3 {
		return fmt.Errorf("pmbustest: extended access needs an address")
	}
	a := uint16(w[1]) | uint16(w[2])<<8
	if len(w) == 5 {
		d.ext[a] = uint16(w[3]) | uint16(w[4])<<8
	}
	if len(r) > 0 {
		v := d.ext[a]
		for i := 0; i < len(r) && i < 2; i++ {
			r[i] = byte(v >> (8 * i))
		}
	}
	return nil
}

func (d *Device) store(cmd uint8, v uint16) {
	if d.regs[d.page] == nil {
		d.regs[d.page] = map[uint8]uint16{}
	}
	d.regs[d.page][cmd] = v
}

func (d *Device) clearFaults() {
	for _, c := range []uint8{0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x80} {
		delete(d.regs[d.page], c)
	}
}

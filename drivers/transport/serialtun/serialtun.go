// Package serialtun tunnels I2C transactions to a remote microcontroller
// over a serial line.
//
// Each transaction is one request line and one reply line:
//
//	R <addr> <write-hex> <n>   write, then read n bytes
//	W <addr> <write-hex>       write only
//	OK [<read-hex>]
//	ERR <text>
//
// Addresses are two hex digits. A failed write or read on the port closes
// it; the next Tx reopens it, no earlier than the backoff allows. The
// tunnel never repeats a transaction on its own.
package serialtun

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/jpillora/backoff"
	"go.bug.st/serial"

	"powertool-go/drivers/transport"
)

// Port is the part of serial.Port the tunnel uses.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens the serial port.
type Opener func() (Port, error)

type Config struct {
	Port        string
	Baud        int           // 0 selects 115200
	ReadTimeout time.Duration // per reply; 0 selects 2s
	Open        Opener        // nil opens Port with go.bug.st/serial
	Logger      golog.Logger
}

// ErrRemote is wrapped by errors reported by the far end.
var ErrRemote = errors.New("remote error")

type Tunnel struct {
	mu   sync.Mutex
	cfg  Config
	open Opener
	log  golog.Logger

	port    Port
	pending []byte

	bo       *backoff.Backoff
	nextOpen time.Time
	now      func() time.Time
	sleep    func(time.Duration)
}

func New(cfg Config) *Tunnel {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 2 * time.Second
	}
	t := &Tunnel{
		cfg:   cfg,
		open:  cfg.Open,
		log:   cfg.Logger,
		bo:    &backoff.Backoff{Min: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: false},
		now:   time.Now,
		sleep: time.Sleep,
	}
	if t.open == nil {
		t.open = func() (Port, error) {
			return serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.Baud})
		}
	}
	return t
}

// Open opens the port eagerly so configuration errors surface early.
func (t *Tunnel) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensure()
}

func (t *Tunnel) String() string { return "serial(" + t.cfg.Port + ")" }

func (t *Tunnel) Tx(addr uint16, w, r []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensure(); err != nil {
		return err
	}

	var req string
	if len(r) > 0 {
		req = fmt.Sprintf("R %02X %X %d\n", addr, w, len(r))
	} else {
		req = fmt.Sprintf("W %02X %X\n", addr, w)
	}
	if _, err := io.WriteString(t.port, req); err != nil {
		t.drop(err)
		return fmt.Errorf("serialtun: write: %w", err)
	}
	line, err := t.readLine()
	if err != nil {
		t.drop(err)
		return err
	}
	t.bo.Reset()
	return parseReply(line, r)
}

func (t *Tunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	return err
}

// ---------------- Connection management ----------------

func (t *Tunnel) ensure() error {
	if t.port != nil {
		return nil
	}
	if wait := t.nextOpen.Sub(t.now()); wait > 0 {
		t.sleep(wait)
	}
	p, err := t.open()
	if err != nil {
		t.nextOpen = t.now().Add(t.bo.Duration())
		return fmt.Errorf("serialtun: open %s: %w", t.cfg.Port, err)
	}
	if err := p.SetReadTimeout(t.cfg.ReadTimeout / 10); err != nil {
		_ = p.Close()
		return fmt.Errorf("serialtun: set read timeout: %w", err)
	}
	t.port = p
	t.pending = t.pending[:0]
	return nil
}

func (t *Tunnel) drop(cause error) {
	if t.port != nil {
		_ = t.port.Close()
		t.port = nil
	}
	d := t.bo.Duration()
	t.nextOpen = t.now().Add(d)
	if t.log != nil {
		t.log.Warnw("serial tunnel dropped", "port", t.cfg.Port, "error", cause, "reopen_in", d)
	}
}

func (t *Tunnel) readLine() (string, error) {
	deadline := t.now().Add(t.cfg.ReadTimeout)
	var buf [64]byte
	for {
		if i := bytes.IndexByte(t.pending, '\n'); i >= 0 {
			line := string(t.pending[:i])
			t.pending = append(t.pending[:0], t.pending[i+1:]...)
			return strings.TrimSpace(line), nil
		}
		if !t.now().Before(deadline) {
			return "", fmt.Errorf("serialtun: no reply after %v: %w", t.cfg.ReadTimeout, transport.ErrTimeout)
		}
		n, err := t.port.Read(buf[:])
		if err != nil {
			return "", fmt.Errorf("serialtun: read: %w", err)
		}
		t.pending = append(t.pending, buf[:n]...)
	}
}

// ---------------- Protocol ----------------

func parseReply(line string, r []byte) error {
	switch {
	case line == "OK" || strings.HasPrefix(line, "OK "):
		data, err := hex.DecodeString(strings.TrimSpace(strings.TrimPrefix(line, "OK")))
		if err != nil {
			return fmt.Errorf("serialtun: bad reply %q: %w", line, err)
		}
		n := copy(r, data)
		if n < len(r) {
			return fmt.Errorf("serialtun: got %d of %d bytes: %w", n, len(r), transport.ErrShortRead)
		}
		return nil
	case strings.HasPrefix(line, "ERR"):
		return fmt.Errorf("serialtun: %w: %s", ErrRemote, strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	}
	return fmt.Errorf("serialtun: unexpected reply %q", line)
}

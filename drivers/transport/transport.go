// Package transport holds what the physical I2C backends share: the
// sentinel errors the PMBus register layer recognises and a tracing
// decorator.
//
// A backend is any tinygo.org/x/drivers.I2C. Tx(addr, w, r) performs one
// combined transaction against a 7-bit address: write w, then read len(r)
// bytes. Backends report a response with fewer bytes than requested by
// returning an error that wraps ErrShortRead.
package transport

import (
	"errors"
	"io"
	"time"

	"github.com/edaniels/golog"
	"tinygo.org/x/drivers"
)

var (
	ErrShortRead = errors.New("short read")
	ErrTimeout   = errors.New("transport timeout")
	ErrClosed    = errors.New("transport closed")
)

// Tracer wraps a backend and logs every transaction at debug level.
type Tracer struct {
	next drivers.I2C
	log  golog.Logger
}

// Trace returns next wrapped in a Tracer. It returns next unchanged when
// log is nil.
func Trace(next drivers.I2C, log golog.Logger) drivers.I2C {
	if log == nil {
		return next
	}
	return &Tracer{next: next, log: log}
}

func (t *Tracer) Tx(addr uint16, w, r []byte) error {
	start := time.Now()
	err := t.next.Tx(addr, w, r)
	if err != nil {
		t.log.Debugw("i2c tx", "addr", addr, "w", w, "n", len(r), "took", time.Since(start), "error", err)
		return err
	}
	t.log.Debugw("i2c tx", "addr", addr, "w", w, "r", r, "took", time.Since(start))
	return nil
}

// Close closes the wrapped backend if it can be closed.
func (t *Tracer) Close() error {
	if c, ok := t.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package transport

import (
	"errors"
	"testing"

	"github.com/edaniels/golog"
	"tinygo.org/x/drivers"
)

type echoI2C struct {
	calls  int
	closed bool
	err    error
}

var _ drivers.I2C = (*echoI2C)(nil)

func (e *echoI2C) Tx(addr uint16, w, r []byte) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	for i := range r {
		r[i] = byte(i + 1)
	}
	return nil
}

func (e *echoI2C) Close() error { e.closed = true; return nil }

func TestTraceNilLoggerPassthrough(t *testing.T) {
	e := &echoI2C{}
	if got := Trace(e, nil); got != drivers.I2C(e) {
		t.Fatalf("Trace with nil logger should return the backend itself")
	}
}

func TestTraceForwardsAndCloses(t *testing.T) {
	e := &echoI2C{}
	tr := Trace(e, golog.NewTestLogger(t))
	r := make([]byte, 2)
	if err := tr.Tx(0x5C, []byte{0x8B}, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if r[0] != 1 || r[1] != 2 || e.calls != 1 {
		t.Fatalf("Tx not forwarded: r=%v calls=%d", r, e.calls)
	}

	e.err = ErrShortRead
	if err := tr.Tx(0x5C, []byte{0x8B}, r); !errors.Is(err, ErrShortRead) {
		t.Fatalf("error not forwarded: %v", err)
	}

	if err := tr.(*Tracer).Close(); err != nil || !e.closed {
		t.Fatalf("Close not forwarded: err=%v closed=%v", err, e.closed)
	}
}

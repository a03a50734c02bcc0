package adapter

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"powertool-go/drivers/transport"
)

type fakeBus struct {
	addr   uint16
	w      []byte
	closed int
}

var (
	_ i2c.BusCloser = (*fakeBus)(nil)
	_ drivers.I2C   = (*Adapter)(nil)
)

func (f *fakeBus) String() string                  { return "fake" }
func (f *fakeBus) SetSpeed(physic.Frequency) error { return nil }
func (f *fakeBus) Close() error                    { f.closed++; return nil }
func (f *fakeBus) Tx(addr uint16, w, r []byte) error {
	f.addr = addr
	f.w = append([]byte(nil), w...)
	for i := range r {
		r[i] = 0xA0 + byte(i)
	}
	return nil
}

func TestTxDelegates(t *testing.T) {
	fb := &fakeBus{}
	a := New(fb)
	r := make([]byte, 2)
	if err := a.Tx(0x5C, []byte{0xD8, 0x00, 0x0C}, r); err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if fb.addr != 0x5C || !bytes.Equal(fb.w, []byte{0xD8, 0x00, 0x0C}) || r[0] != 0xA0 || r[1] != 0xA1 {
		t.Fatalf("delegation: addr=0x%X w=% X r=% X", fb.addr, fb.w, r)
	}
	if a.String() != "adapter(fake)" {
		t.Fatalf("String=%s", a.String())
	}
}

func TestCloseOnce(t *testing.T) {
	fb := &fakeBus{}
	a := New(fb)
	_ = a.Close()
	_ = a.Close()
	if fb.closed != 1 {
		t.Fatalf("bus closed %d times", fb.closed)
	}
	if err := a.Tx(0x5C, []byte{0}, nil); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Tx after close: %v", err)
	}
}

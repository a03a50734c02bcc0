package pmbus

import (
	"errors"
	"fmt"

	"powertool-go/drivers/transport"
	"powertool-go/errcode"
)

// BusErrorKind classifies a register-level failure.
type BusErrorKind uint8

const (
	// KindTransport is an I/O failure reported by the backend.
	KindTransport BusErrorKind = iota + 1
	// KindShortRead is a response with fewer bytes than requested.
	KindShortRead
)

func (k BusErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindShortRead:
		return "short read"
	}
	return "unknown"
}

// BusError is returned by every Bus operation that fails.
type BusError struct {
	Op   string // "set_page", "read_word", ...
	Page int    // -1 when the operation is not page-scoped
	Reg  Register
	Kind BusErrorKind
	Err  error
}

func (e *BusError) Error() string {
	s := "pmbus " + e.Op
	if e.Page >= 0 {
		s += fmt.Sprintf(" page %d", e.Page)
	}
	s += " " + e.Reg.String() + ": " + e.Kind.String()
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Code() errcode.Code {
	if e.Kind == KindShortRead {
		return errcode.ShortRead
	}
	if errors.Is(e.Err, transport.ErrTimeout) {
		return errcode.Timeout
	}
	return errcode.Transport
}

// ReadError names the sub-read that failed during a composite read.
type ReadError struct {
	Page     int
	Register Register
	Err      error
}

func (e *ReadError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("read %s: %v", e.Register, e.Err)
	}
	return fmt.Sprintf("read rail page %d: %s: %v", e.Page, e.Register, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Code() errcode.Code { return errcode.Of(e.Err) }

// ErrOutOfRange is matched by errors.Is for every policy rejection.
var ErrOutOfRange = errors.New("value outside permitted range")

// CommandError is returned by write-side operations. Exactly one of
// Bus and the range fields is meaningful.
type CommandError struct {
	Op    string
	Value float64
	Min   float64
	Max   float64
	Bus   *BusError // nil for range rejections
	cause error
}

func outOfRange(op string, v, lo, hi float64) *CommandError {
	return &CommandError{Op: op, Value: v, Min: lo, Max: hi}
}

func commandBusError(op string, err error) error {
	var be *BusError
	if errors.As(err, &be) {
		return &CommandError{Op: op, Bus: be}
	}
	return &CommandError{Op: op, cause: err}
}

// OutOfRange reports whether the command was rejected before any I/O.
func (e *CommandError) OutOfRange() bool { return e.Bus == nil && e.cause == nil }

func (e *CommandError) Error() string {
	switch {
	case e.Bus != nil:
		return e.Op + ": " + e.Bus.Error()
	case e.cause != nil:
		return e.Op + ": " + e.cause.Error()
	}
	return fmt.Sprintf("%s: %g outside [%g, %g]", e.Op, e.Value, e.Min, e.Max)
}

func (e *CommandError) Unwrap() error {
	switch {
	case e.Bus != nil:
		return e.Bus
	case e.cause != nil:
		return e.cause
	}
	return ErrOutOfRange
}

func (e *CommandError) Code() errcode.Code {
	if e.OutOfRange() {
		return errcode.OutOfRange
	}
	return errcode.Of(e.Unwrap())
}

var (
	ErrIoutScaleZero = errors.New("IOUT scale is zero")
	ErrBadWidth      = errors.New("register width must be 1 or 2")
	ErrNotStandard   = errors.New("extended register used as a standard command")
	ErrUnknownCmd    = errors.New("unknown command")
)

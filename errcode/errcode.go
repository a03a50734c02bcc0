package errcode

import "errors"

// Code is a stable, log-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	Timeout        Code = "timeout"

	Transport  Code = "transport"
	ShortRead  Code = "short_read"
	OutOfRange Code = "out_of_range"

	UnknownRail    Code = "unknown_rail"
	UnknownCommand Code = "unknown_command"
	TooManyErrors  Code = "too_many_errors"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New returns an *E for op with code c and an optional cause.
func New(c Code, op, msg string, cause error) error {
	return &E{C: c, Op: op, Msg: msg, Err: cause}
}

type coder interface{ Code() Code }

// Of extracts the outermost Code from an error chain, defaulting to Error.
// For joined errors the first branch is followed.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	for e := err; e != nil; e = unwrap(e) {
		if c, ok := e.(Code); ok {
			return c
		}
		if x, ok := e.(coder); ok {
			return x.Code()
		}
	}
	return Error
}

func unwrap(err error) error {
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		if errs := m.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
		return nil
	}
	return errors.Unwrap(err)
}

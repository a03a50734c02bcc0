package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/edaniels/golog"
	"github.com/mattn/go-isatty"

	"powertool-go/services/sampler"
)

// Console logs every Nth record and, on a terminal, keeps a one-line
// progress meter up to date.
type Console struct {
	log   golog.Logger
	every int
	out   io.Writer
	tty   bool
	n     int
	dirty bool
}

// NewConsole writes the meter to stderr when it is a terminal.
func NewConsole(log golog.Logger, every int) *Console {
	fd := os.Stderr.Fd()
	tty := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	return newConsole(log, every, os.Stderr, tty)
}

func newConsole(log golog.Logger, every int, out io.Writer, tty bool) *Console {
	if every <= 0 {
		every = sampler.DefaultProgressEvery
	}
	return &Console{log: log, every: every, out: out, tty: tty}
}

func (c *Console) Write(rec sampler.Record) error {
	c.n++
	line := Summary(rec)
	if c.tty {
		fmt.Fprintf(c.out, "\r\033[K%s", line)
		c.dirty = true
	}
	if c.n == 1 || c.n%c.every == 0 {
		c.endLine()
		c.log.Infow("sample", "num", rec.SampleNum, "elapsed", rec.Elapsed.Seconds(), "summary", line)
	}
	return nil
}

func (c *Console) endLine() {
	if c.dirty {
		fmt.Fprintln(c.out)
		c.dirty = false
	}
}

func (c *Console) Flush() error {
	c.endLine()
	return nil
}

func (c *Console) Close() error { return c.Flush() }

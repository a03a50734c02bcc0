// Package pcietool reaches a PCIe-attached I2C bridge by running an
// external register tool once per transaction.
//
// Reads:  -d <pcie> -a <addr> -r <reg> -t pmbus -l <n> --reg-addr-len <k> [-b <bus>] -j <json>
// Writes: -d <pcie> -a <addr> -r <cmd> -t pmbus [-b <bus>] -w <value> --write-len <n> --reg-addr-len 1
//
// For reads the bytes of w form the register address, first byte most
// significant, so [0xD8, lo, hi] becomes -r 0xD8LOHI --reg-addr-len 3. For
// writes the data bytes after the command form the value, least
// significant first, matching their order on the wire.
package pcietool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"powertool-go/drivers/transport"
)

type Config struct {
	Tool     string        // command line; split like a shell would
	Device   string        // PCIe address, e.g. 0000:c1:00.0
	Bus      int           // < 0 omits -b
	Timeout  time.Duration // per invocation; 0 selects 5s
	JSONPath string        // where the tool writes read results
}

// Runner executes the tool and returns stdout.
type Runner func(ctx context.Context, name string, args []string) (stdout []byte, err error)

type Tool struct {
	cfg  Config
	argv []string
	run  Runner
}

// New parses cfg.Tool. A nil run executes the binary with os/exec.
func New(cfg Config, run Runner) (*Tool, error) {
	argv, err := shlex.Split(cfg.Tool)
	if err != nil {
		return nil, fmt.Errorf("pcietool: tool %q: %w", cfg.Tool, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("pcietool: empty tool command")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.JSONPath == "" {
		cfg.JSONPath = "/tmp/i2c_read.json"
	}
	if run == nil {
		run = execRunner
	}
	return &Tool{cfg: cfg, argv: argv, run: run}, nil
}

func (t *Tool) String() string { return "pcie(" + t.cfg.Device + ")" }

func (t *Tool) Tx(addr uint16, w, r []byte) error {
	if len(w) == 0 {
		return errors.New("pcietool: empty write")
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
	defer cancel()
	if len(r) == 0 {
		_, err := t.invoke(ctx, t.writeArgs(addr, w))
		return err
	}

	_ = os.Remove(t.cfg.JSONPath)
	out, err := t.invoke(ctx, t.readArgs(addr, w, len(r)))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(t.cfg.JSONPath)
	if err != nil {
		data = nil
	}
	v, n, err := parseResult(data, out, len(r))
	if err != nil {
		return err
	}
	for i := range r {
		r[i] = byte(v >> (8 * i))
	}
	if n < len(r) {
		return fmt.Errorf("pcietool: tool returned %d of %d bytes: %w", n, len(r), transport.ErrShortRead)
	}
	return nil
}

// ---------------- Argument construction ----------------

func (t *Tool) common(addr uint16, reg uint64) []string {
	return []string{
		"-d", t.cfg.Device,
		"-a", strconv.Itoa(int(addr)),
		"-r", strconv.FormatUint(reg, 10),
		"-t", "pmbus",
	}
}

func (t *Tool) busArgs() []string {
	if t.cfg.Bus < 0 {
		return nil
	}
	return []string{"-b", strconv.Itoa(t.cfg.Bus)}
}

func (t *Tool) readArgs(addr uint16, w []byte, n int) []string {
	var reg uint64
	for _, b := range w {
		reg = reg<<8 | uint64(b)
	}
	args := t.common(addr, reg)
	args = append(args, "-l", strconv.Itoa(n), "--reg-addr-len", strconv.Itoa(len(w)))
	args = append(args, t.busArgs()...)
	return append(args, "-j", t.cfg.JSONPath)
}

func (t *Tool) writeArgs(addr uint16, w []byte) []string {
	var val uint64
	for i, b := range w[1:] {
		val |= uint64(b) << (8 * i)
	}
	args := t.common(addr, uint64(w[0]))
	args = append(args, t.busArgs()...)
	return append(args,
		"-w", strconv.FormatUint(val, 10),
		"--write-len", strconv.Itoa(len(w)-1),
		"--reg-addr-len", "1",
	)
}

// ---------------- Execution ----------------

func (t *Tool) invoke(ctx context.Context, args []string) ([]byte, error) {
	full := append(append([]string(nil), t.argv[1:]...), args...)
	out, err := t.run(ctx, t.argv[0], full)
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("pcietool: %s timed out after %v: %w", t.argv[0], t.cfg.Timeout, transport.ErrTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("pcietool: %s %s: %w", t.argv[0], strings.Join(args, " "), err)
	}
	return out, nil
}

func execRunner(ctx context.Context, name string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// ---------------- Result parsing ----------------

var (
	hexRe = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	decRe = regexp.MustCompile(`\d+`)
)

// parseResult returns the value and how many bytes it is known to carry.
// A scalar result is assumed to carry all n bytes.
func parseResult(js, stdout []byte, n int) (uint64, int, error) {
	if len(bytes.TrimSpace(js)) > 0 {
		var obj struct {
			Value *uint64 `json:"value"`
		}
		if err := json.Unmarshal(js, &obj); err == nil && obj.Value != nil {
			return *obj.Value, n, nil
		}
		var list []uint8
		if err := json.Unmarshal(js, &list); err == nil && len(list) > 0 {
			var v uint64
			for i, b := range list {
				if i < 8 {
					v |= uint64(b) << (8 * i)
				}
			}
			return v, len(list), nil
		}
	}
	s := strings.TrimSpace(string(stdout))
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, n, nil
	}
	if m := hexRe.FindString(s); m != "" {
		v, err := strconv.ParseUint(m[2:], 16, 64)
		if err == nil {
			return v, n, nil
		}
	}
	if m := decRe.FindString(s); m != "" {
		v, err := strconv.ParseUint(m, 10, 64)
		if err == nil {
			return v, n, nil
		}
	}
	return 0, 0, fmt.Errorf("pcietool: cannot parse tool output %q", s)
}

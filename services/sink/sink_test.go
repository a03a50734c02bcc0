package sink

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/garyburd/redigo/redis"

	"powertool-go/drivers/pmbus"
	"powertool-go/services/sampler"
)

var (
	_ Sink         = (*CSV)(nil)
	_ Sink         = (*Redis)(nil)
	_ Sink         = (*Console)(nil)
	_ Sink         = Multi(nil)
	_ sampler.Sink = Multi(nil)
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func railRecord(n int, vout float64) sampler.Record {
	s := pmbus.Sample{Page: 0, VoutRaw: uint16(vout * 1024), Vout: vout, Iout: 12.5, Temp: 45,
		VoutExp: pmbus.VoutExponent{Exp: -10, Source: pmbus.ExpFromDevice}, StatusWord: 0x0040}
	return sampler.Record{
		Timestamp: t0.Add(time.Duration(n) * time.Second),
		Elapsed:   time.Duration(n-1) * time.Second,
		SampleNum: n,
		Rails:     []sampler.RailSample{{Rail: "TSP_CORE", Sample: s}},
	}
}

func TestFieldsRail(t *testing.T) {
	f := Fields(railRecord(1, 0.8))
	got := map[string]string{}
	for _, x := range f {
		got[x.Key] = x.Value
	}
	want := map[string]string{
		"TSP_CORE.vout":         "0.8000",
		"TSP_CORE.vout_raw":     "0x0333",
		"TSP_CORE.vout_exp":     "-10",
		"TSP_CORE.vout_exp_src": "device",
		"TSP_CORE.iout":         "12.500",
		"TSP_CORE.status_word":  "0x0040",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s=%q want %q", k, got[k], v)
		}
	}
	if f[0].Key != "TSP_CORE.vout_raw" {
		t.Fatalf("order changed: first key %s", f[0].Key)
	}
	if _, ok := got["TSP_CORE.phase1"]; ok {
		t.Fatalf("phase columns without phase data")
	}
}

func TestFieldsSetpoint(t *testing.T) {
	rec := sampler.Record{SampleNum: 1, Setpoint: &sampler.SetpointSample{
		Rail:     "TSP_C2C",
		Setpoint: pmbus.Setpoint{Page: 1, Target: 0.6, Code: 614, Step: 0.0009765625, Expected: 0.5996},
		Readback: math.NaN(),
	}}
	for _, f := range Fields(rec) {
		if f.Key == "TSP_C2C.readback" && f.Value != "" {
			t.Fatalf("unverified readback rendered as %q", f.Value)
		}
		if f.Key == "TSP_C2C.code" && f.Value != "614" {
			t.Fatalf("code=%q", f.Value)
		}
	}
	if s := Summary(rec); s != "#1 TSP_C2C: set 0.6000V code 614" {
		t.Fatalf("summary=%q", s)
	}
}

func TestCSVHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf, 0)
	for i := 1; i <= 3; i++ {
		if err := s.Write(railRecord(i, 0.8)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 4 || s.Rows() != 3 {
		t.Fatalf("rows=%d", len(rows))
	}
	if strings.Join(rows[0][:4], ",") != "timestamp,elapsed_s,sample_num,TSP_CORE.vout_raw" {
		t.Fatalf("header=%v", rows[0][:4])
	}
	if rows[3][2] != "3" || rows[3][1] != "2.000" || rows[3][0] != "2024-03-01T12:00:03Z" {
		t.Fatalf("last row=%v", rows[3][:3])
	}
}

func TestCSVExtraKeysDropped(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSV(&buf, 1)
	_ = s.Write(railRecord(1, 0.8))
	rec := railRecord(2, 0.9)
	rec.Rails[0].Phases = []uint8{1, 2}
	if err := s.Write(rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	rows, _ := csv.NewReader(&buf).ReadAll()
	if len(rows) != 3 || len(rows[2]) != len(rows[0]) {
		t.Fatalf("rows=%v", rows)
	}
}

func TestCreateCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	s, err := CreateCSV(dir, "telemetry", "0123456789abcdef", 10, t0)
	if err != nil {
		t.Fatalf("CreateCSV: %v", err)
	}
	if filepath.Base(s.Path()) != "telemetry_20240301_120000_01234567.csv" {
		t.Fatalf("path=%s", s.Path())
	}
	_ = s.Write(railRecord(1, 1.0))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(s.Path())
	if err != nil || !strings.Contains(string(b), "TSP_CORE.vout") {
		t.Fatalf("file: %v %q", err, b)
	}
}

// fakeConn records pipelined commands.
type fakeConn struct {
	sent    [][]interface{}
	doErr   error
	flushed int
	closed  bool
}

var _ redis.Conn = (*fakeConn)(nil)

func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) Err() error   { return nil }
func (c *fakeConn) Send(cmd string, args ...interface{}) error {
	c.sent = append(c.sent, append([]interface{}{cmd}, args...))
	return nil
}
func (c *fakeConn) Flush() error                  { c.flushed++; return nil }
func (c *fakeConn) Receive() (interface{}, error) { return nil, nil }
func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	if cmd != "" {
		c.sent = append(c.sent, append([]interface{}{cmd}, args...))
	}
	return nil, c.doErr
}

func TestRedisHashAndPublish(t *testing.T) {
	c := &fakeConn{}
	s := NewRedis(c, "powertool-1234", "powertool")
	if err := s.Write(railRecord(7, 0.8)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(c.sent) != 2 || c.sent[0][0] != "HMSET" || c.sent[1][0] != "PUBLISH" {
		t.Fatalf("sent=%v", c.sent)
	}
	hm := c.sent[0]
	if hm[1] != "powertool-1234" || hm[2] != "sample_num" || hm[3] != 7 {
		t.Fatalf("HMSET prefix=%v", hm[:4])
	}
	if (len(hm)-4)%2 != 0 {
		t.Fatalf("HMSET args not paired: %d", len(hm))
	}
	msg := c.sent[1][2].(string)
	if !strings.Contains(msg, "TSP_CORE.vout: 0.8000\n") {
		t.Fatalf("publish=%q", msg)
	}

	c.doErr = errors.New("READONLY")
	if err := s.Write(railRecord(8, 0.8)); err == nil {
		t.Fatalf("reply error swallowed")
	}
	_ = s.Close()
	if !c.closed {
		t.Fatalf("conn not closed")
	}
}

func TestRedisWithoutChannel(t *testing.T) {
	c := &fakeConn{}
	s := NewRedis(c, "", "")
	_ = s.Write(railRecord(1, 0.8))
	if len(c.sent) != 1 || c.sent[0][1] != "powertool" {
		t.Fatalf("sent=%v", c.sent)
	}
}

func TestConsoleMeter(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(golog.NewTestLogger(t), 2, &out, true)
	for i := 1; i <= 3; i++ {
		_ = c.Write(railRecord(i, 0.8))
	}
	_ = c.Close()
	s := out.String()
	if strings.Count(s, "\r\033[K") != 3 || !strings.HasSuffix(s, "\n") {
		t.Fatalf("meter output %q", s)
	}

	out.Reset()
	c = newConsole(golog.NewTestLogger(t), 2, &out, false)
	_ = c.Write(railRecord(1, 0.8))
	_ = c.Close()
	if out.Len() != 0 {
		t.Fatalf("non-terminal output %q", out.String())
	}
}

type errSink struct {
	err             error
	writes, flushes int
}

func (s *errSink) Write(sampler.Record) error { s.writes++; return s.err }
func (s *errSink) Flush() error               { s.flushes++; return s.err }
func (s *errSink) Close() error               { return nil }

func TestMultiReachesAll(t *testing.T) {
	a := &errSink{err: errors.New("a")}
	b := &errSink{}
	m := Multi{a, b}
	if err := m.Write(railRecord(1, 0.8)); err == nil || err.Error() != "a" {
		t.Fatalf("Write err=%v", err)
	}
	if err := m.Flush(); err == nil {
		t.Fatalf("Flush err=nil")
	}
	if b.writes != 1 || b.flushes != 1 {
		t.Fatalf("second sink skipped: %+v", b)
	}
}

package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"powertool-go/services/sampler"
)

// CSV writes one row per record. The header is taken from the first
// record; later records are mapped onto it by key and unknown keys are
// dropped.
type CSV struct {
	w          *csv.Writer
	c          io.Closer
	header     []string
	index      map[string]int
	rows       int
	flushEvery int
	path       string
}

// NewCSV writes to w. flushEvery <= 0 flushes only on Flush and Close. If
// w is an io.Closer it is closed by Close.
func NewCSV(w io.Writer, flushEvery int) *CSV {
	s := &CSV{w: csv.NewWriter(w), flushEvery: flushEvery}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateCSV creates <dir>/<prefix>_<time>_<session>.csv.
func CreateCSV(dir, prefix, session string, flushEvery int, now time.Time) (*CSV, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if len(session) > 8 {
		session = session[:8]
	}
	name := fmt.Sprintf("%s_%s_%s.csv", prefix, now.Format("20060102_150405"), session)
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := NewCSV(f, flushEvery)
	s.path = path
	return s, nil
}

// Path is the file name for sinks made by CreateCSV.
func (s *CSV) Path() string { return s.path }

// Rows is the number of data rows written.
func (s *CSV) Rows() int { return s.rows }

func (s *CSV) Write(rec sampler.Record) error {
	fields := Fields(rec)
	if s.header == nil {
		s.header = make([]string, 0, len(fields)+3)
		s.header = append(s.header, "timestamp", "elapsed_s", "sample_num")
		s.index = make(map[string]int, len(fields))
		for _, f := range fields {
			s.index[f.Key] = len(s.header)
			s.header = append(s.header, f.Key)
		}
		if err := s.w.Write(s.header); err != nil {
			return err
		}
	}

	row := make([]string, len(s.header))
	row[0] = rec.Timestamp.Format(time.RFC3339Nano)
	row[1] = strconv.FormatFloat(rec.Elapsed.Seconds(), 'f', 3, 64)
	row[2] = strconv.Itoa(rec.SampleNum)
	for _, f := range fields {
		if i, ok := s.index[f.Key]; ok {
			row[i] = f.Value
		}
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.rows++
	if s.flushEvery > 0 && s.rows%s.flushEvery == 0 {
		return s.Flush()
	}
	return nil
}

func (s *CSV) Flush() error {
	s.w.Flush()
	return s.w.Error()
}

func (s *CSV) Close() error {
	err := s.Flush()
	if s.c != nil {
		if cerr := s.c.Close(); err == nil {
			err = cerr
		}
		s.c = nil
	}
	return err
}

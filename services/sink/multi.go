package sink

import "powertool-go/services/sampler"

// Multi fans records out to several sinks. Every sink sees every call;
// the first error is returned.
type Multi []Sink

func (m Multi) Write(rec sampler.Record) error {
	var first error
	for _, s := range m {
		if err := s.Write(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Flush() error {
	var first error
	for _, s := range m {
		if err := s.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package metrics

// MultiSink fans records out to several sinks, returning the first
// error encountered.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordSamples(samples []Sample) error {
	for _, s := range m.sinks {
		if err := s.RecordSamples(samples); err != nil {
			return err
		}
	}
	return nil
}

// RecordLimit forwards to sinks that record limits.
func (m *MultiSink) RecordLimit(u LimitUpdate) error {
	for _, s := range m.sinks {
		if rec, ok := s.(LimitRecorder); ok {
			if err := rec.RecordLimit(u); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnection forwards to sinks that record connection changes.
func (m *MultiSink) RecordConnection(u ConnectionUpdate) error {
	for _, s := range m.sinks {
		if rec, ok := s.(ConnectionRecorder); ok {
			if err := rec.RecordConnection(u); err != nil {
				return err
			}
		}
	}
	return nil
}

package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evsim/cpsim/core/factory"
)

type recordingSink struct {
	samples []Sample
	limits  []LimitUpdate
	err     error
}

func (r *recordingSink) RecordSamples(s []Sample) error {
	r.samples = append(r.samples, s...)
	return r.err
}

func (r *recordingSink) RecordLimit(u LimitUpdate) error {
	r.limits = append(r.limits, u)
	return r.err
}

type plainSink struct{ calls int }

func (p *plainSink) RecordSamples([]Sample) error {
	p.calls++
	return nil
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &plainSink{}
	m := NewMultiSink(a, b)

	require.NoError(t, m.RecordSamples([]Sample{{ConnectorID: 1, Measurand: "Voltage", Value: 230}}))
	assert.Len(t, a.samples, 1)
	assert.Equal(t, 1, b.calls)

	// Limit records only reach sinks that implement LimitRecorder.
	power := 7400.0
	require.NoError(t, m.RecordLimit(LimitUpdate{ConnectorID: 1, PowerW: &power}))
	assert.Len(t, a.limits, 1)
}

func TestMultiSinkStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingSink{err: boom}
	b := &plainSink{}
	m := NewMultiSink(a, b)

	assert.ErrorIs(t, m.RecordSamples(nil), boom)
	assert.Equal(t, 0, b.calls)
}

func TestNewSink(t *testing.T) {
	s, err := NewSink(nil)
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)

	require.NoError(t, RegisterSink("test-recording", func(map[string]any) (Sink, error) {
		return &recordingSink{}, nil
	}))

	s, err = NewSink([]factory.ModuleConfig{{Type: "test-recording"}})
	require.NoError(t, err)
	assert.IsType(t, &recordingSink{}, s)

	_, err = NewSink([]factory.ModuleConfig{{Type: "nope"}})
	assert.Error(t, err)
}

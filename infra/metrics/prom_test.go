package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/evsim/cpsim/core/metrics"
)

func TestPromSinkRecordSamples(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	err = sink.RecordSamples([]coremetrics.Sample{
		{ConnectorID: 1, Measurand: "Power.Active.Import", Value: 7400, Unit: "W", Time: time.Now()},
		{ConnectorID: 1, Measurand: "Current.Import", Phase: "L1", Value: 32, Unit: "A", Time: time.Now()},
	})
	require.NoError(t, err)

	expected := `
# HELP cpsim_meter_value Last sampled meter reading per connector and measurand
# TYPE cpsim_meter_value gauge
cpsim_meter_value{connector="1",measurand="Current.Import",phase="L1",unit="A"} 32
cpsim_meter_value{connector="1",measurand="Power.Active.Import",phase="",unit="W"} 7400
`
	require.NoError(t, testutil.CollectAndCompare(sink.meterValue, strings.NewReader(expected)))
	assert.InDelta(t, 2, testutil.ToFloat64(sink.samples.WithLabelValues("1")), 0.01)
}

func TestPromSinkRecordLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	power := 11000.0
	require.NoError(t, sink.RecordLimit(coremetrics.LimitUpdate{ConnectorID: 2, PowerW: &power, Time: time.Now()}))
	assert.InDelta(t, 11000, testutil.ToFloat64(sink.limitPower.WithLabelValues("2")), 0.01)

	// Lifting the restriction drops the series.
	require.NoError(t, sink.RecordLimit(coremetrics.LimitUpdate{ConnectorID: 2, Time: time.Now()}))
	assert.Equal(t, 0, testutil.CollectAndCount(sink.limitPower))
}

func TestPromSinkRecordConnection(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordConnection(coremetrics.ConnectionUpdate{State: "Connected", Time: time.Now()}))
	assert.InDelta(t, 1, testutil.ToFloat64(sink.connected), 0.01)

	require.NoError(t, sink.RecordConnection(coremetrics.ConnectionUpdate{State: "Disconnected", Time: time.Now()}))
	assert.InDelta(t, 0, testutil.ToFloat64(sink.connected), 0.01)
	assert.InDelta(t, 1, testutil.ToFloat64(sink.transitions.WithLabelValues("Connected")), 0.01)
}

func TestPromSinkReregisterReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordSamples([]coremetrics.Sample{{ConnectorID: 1, Measurand: "Voltage", Value: 230, Unit: "V"}}))
	assert.InDelta(t, 230, testutil.ToFloat64(second.meterValue.WithLabelValues("1", "Voltage", "", "V")), 0.01)
}

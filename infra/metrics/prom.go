package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/evsim/cpsim/core/metrics"
)

// PromSink exposes meter readings Prometheus metrics.
type PromSink struct {
	meterValue  *prometheus.GaugeVec
	samples     *prometheus.CounterVec
	limitPower  *prometheus.GaugeVec
	limitAmps   *prometheus.GaugeVec
	connected   prometheus.Gauge
	transitions *prometheus.CounterVec
}

// NewPromSink registers simulator metrics on the default Prometheus
// registerer. The HTTP endpoint is served separately, see StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	meterValue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpsim_meter_value",
		Help: "Last sampled meter reading per connector and measurand",
	}, []string{"connector", "measurand", "phase", "unit"})
	samples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cpsim_meter_samples_total",
		Help: "Total number of meter samples emitted",
	}, []string{"connector"})
	limitPower := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpsim_charging_limit_watts",
		Help: "Effective charging power limit per connector",
	}, []string{"connector"})
	limitAmps := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cpsim_charging_limit_amperes",
		Help: "Effective charging current limit per connector",
	}, []string{"connector"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpsim_connected",
		Help: "Whether the charge point currently holds a central system connection",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cpsim_connection_transitions_total",
		Help: "Connection state transitions by target state",
	}, []string{"state"})

	if err := reg.Register(meterValue); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			meterValue = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(samples); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			samples = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(limitPower); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			limitPower = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(limitAmps); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			limitAmps = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(connected); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			connected = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(transitions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			transitions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		meterValue:  meterValue,
		samples:     samples,
		limitPower:  limitPower,
		limitAmps:   limitAmps,
		connected:   connected,
		transitions: transitions,
	}, nil
}

// RecordSamples updates the per-measurand gauges and the sample counter.
func (s *PromSink) RecordSamples(samples []coremetrics.Sample) error {
	for _, r := range samples {
		connector := strconv.Itoa(r.ConnectorID)
		s.meterValue.WithLabelValues(connector, r.Measurand, r.Phase, r.Unit).Set(r.Value)
		s.samples.WithLabelValues(connector).Inc()
	}
	return nil
}

// RecordLimit reflects a recomputed effective limit. A connector with
// no restriction drops its limit series.
func (s *PromSink) RecordLimit(u coremetrics.LimitUpdate) error {
	connector := strconv.Itoa(u.ConnectorID)
	if u.PowerW != nil {
		s.limitPower.WithLabelValues(connector).Set(*u.PowerW)
	} else {
		s.limitPower.DeleteLabelValues(connector)
	}
	if u.CurrentA != nil {
		s.limitAmps.WithLabelValues(connector).Set(*u.CurrentA)
	} else {
		s.limitAmps.DeleteLabelValues(connector)
	}
	return nil
}

// RecordConnection tracks supervisor transitions.
func (s *PromSink) RecordConnection(u coremetrics.ConnectionUpdate) error {
	if u.State == "Connected" {
		s.connected.Set(1)
	} else {
		s.connected.Set(0)
	}
	s.transitions.WithLabelValues(u.State).Inc()
	return nil
}

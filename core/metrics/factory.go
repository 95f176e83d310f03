package metrics

import "github.com/evsim/cpsim/core/factory"

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterSink adds a sink constructor under a type name. Infra
// packages register themselves at init time.
func RegisterSink(name string, c factory.Constructor[Sink]) error {
	return sinkRegistry.Register(name, c)
}

// NewSink builds a sink from configuration. No configuration yields a
// NopSink; several entries are fanned out through a MultiSink.
func NewSink(cfgs []factory.ModuleConfig) (Sink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

package metrics

import "github.com/kilianp07/gridmarket/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSinks creates the configured sinks. An empty configuration yields
// a single NopSink.
func NewMetricsSinks(cfgs []factory.ModuleConfig) ([]MetricsSink, error) {
	if len(cfgs) == 0 {
		return []MetricsSink{NopSink{}}, nil
	}
	return sinkRegistry.CreateAll(cfgs)
}

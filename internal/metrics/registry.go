package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register возвращает уже зарегистрированный коллектор с тем же описанием,
// поэтому NewOutboxMetrics и NewAllocationMetrics можно вызывать повторно.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("metrics: %v", err))
	}
	existing, ok := dup.ExistingCollector.(T)
	if !ok {
		panic(fmt.Sprintf("metrics: collector registered with type %T, want %T", dup.ExistingCollector, collector))
	}
	return existing
}

func registererOrDefault(registerer prometheus.Registerer) prometheus.Registerer {
	if registerer == nil {
		return prometheus.DefaultRegisterer
	}
	return registerer
}

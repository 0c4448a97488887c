package circuitbreaker

import (
	"moviweb/pkg/metrics"

	"go.uber.org/zap"
)

// ObserveStateChanges returns an OnStateChange hook that logs transitions and
// exports the current state as a gauge.
func ObserveStateChanges(logger *zap.Logger) func(name string, from, to State) {
	return func(name string, from, to State) {
		logger.Warn("Circuit breaker state transition",
			zap.String("breaker", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}

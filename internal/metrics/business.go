// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics owns the Prometheus collectors exported by chronod.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	timerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chrono_timer_transitions_total",
		Help: "Engine state transitions by timer kind and action",
	}, []string{"kind", "action"}) // action=start|pause|resume|stop|reset|lap|complete|recover

	sessionsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chrono_sessions_recorded_total",
		Help: "Session persistence attempts by outcome",
	}, []string{"result"}) // result=persisted|failed|circuit_open|dropped_full|dropped_closed|skipped_anonymous

	recorderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chrono_recorder_queue_depth",
		Help: "Sessions waiting to be written to the session store",
	})

	recoveryOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chrono_recovery_ops_total",
		Help: "Recovery store operations by backend, operation and outcome",
	}, []string{"backend", "op", "result"})

	enginesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chrono_engines_active",
		Help: "Number of per-principal engines held by the registry",
	})

	eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chrono_event_subscribers",
		Help: "Open server-sent event streams",
	})

	configReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chrono_config_reloads_total",
		Help: "Configuration reload attempts by outcome",
	}, []string{"result"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chrono_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state label)",
	}, []string{"name", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chrono_circuit_breaker_trips_total",
		Help: "Circuit breaker trips by reason",
	}, []string{"name", "reason"})
)

var breakerStates = []string{"closed", "open", "half-open"}

// RecordTimerTransition counts an engine transition.
func RecordTimerTransition(kind, action string) {
	timerTransitions.WithLabelValues(kind, action).Inc()
}

// RecordSession counts a session persistence outcome.
func RecordSession(result string) {
	sessionsRecorded.WithLabelValues(result).Inc()
}

// SetRecorderQueueDepth publishes the recorder backlog.
func SetRecorderQueueDepth(n int) {
	recorderQueueDepth.Set(float64(n))
}

// RecordRecoveryOp counts a recovery store call.
func RecordRecoveryOp(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	recoveryOps.WithLabelValues(backend, op, result).Inc()
}

// SetActiveEngines publishes the registry size.
func SetActiveEngines(n int) {
	enginesActive.Set(float64(n))
}

// EventSubscriberOpened increments the open SSE stream gauge.
func EventSubscriberOpened() { eventSubscribers.Inc() }

// EventSubscriberClosed decrements the open SSE stream gauge.
func EventSubscriberClosed() { eventSubscribers.Dec() }

// RecordConfigReload counts a configuration reload outcome.
func RecordConfigReload(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	configReloads.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState marks state as the active state of breaker name.
func SetCircuitBreakerState(name, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a breaker opening.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}

// Package metrics exports reconciler outcomes as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"recreo/reconcile"
)

// Observer implements reconcile.Observer.
type Observer struct {
	registry *prometheus.Registry

	started  *prometheus.CounterVec
	settled  *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
}

// NewObserver registers the mutation collectors on a fresh registry.
func NewObserver(namespace string) *Observer {
	if namespace == "" {
		namespace = "recreo"
	}

	o := &Observer{registry: prometheus.NewRegistry()}

	o.started = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutations",
			Name:      "started_total",
			Help:      "Mutations applied optimistically",
		},
		[]string{"entity", "op"},
	)

	o.settled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutations",
			Name:      "settled_total",
			Help:      "Mutations settled by outcome (confirmed, rolled_back, discarded)",
		},
		[]string{"entity", "op", "outcome"},
	)

	o.inFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mutations",
			Name:      "in_flight",
			Help:      "Mutations waiting for a gateway response",
		},
		[]string{"entity"},
	)

	o.registry.MustRegister(o.started, o.settled, o.inFlight)
	return o
}

// Registry returns the Prometheus registry.
func (o *Observer) Registry() *prometheus.Registry {
	return o.registry
}

func (o *Observer) MutationStarted(entity string, op reconcile.Op) {
	o.started.WithLabelValues(entity, string(op)).Inc()
	o.inFlight.WithLabelValues(entity).Inc()
}

func (o *Observer) MutationSettled(entity string, op reconcile.Op, outcome reconcile.Outcome) {
	o.settled.WithLabelValues(entity, string(op), string(outcome)).Inc()
	o.inFlight.WithLabelValues(entity).Dec()
}

// Summary flattens every sample into "name{labels}" -> value, for logging.
func (o *Observer) Summary() (map[string]float64, error) {
	families, err := o.registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName() + "{"
			for i, lp := range m.GetLabel() {
				if i > 0 {
					key += ","
				}
				key += lp.GetName() + "=" + lp.GetValue()
			}
			key += "}"
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}

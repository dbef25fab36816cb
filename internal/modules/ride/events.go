// README: Ride event fan-out (broker publisher) and transition metrics.
package ride

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Publisher receives every committed ride event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Broker is a topic-style message sink such as an AMQP exchange.
type Broker interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// BrokerPublisher encodes events as JSON under routing key "ride.<to-status>".
type BrokerPublisher struct {
	broker Broker
}

func NewBrokerPublisher(b Broker) *BrokerPublisher {
	return &BrokerPublisher{broker: b}
}

func (p *BrokerPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ride event: %w", err)
	}
	return p.broker.Publish(ctx, RoutingKey(e), body)
}

func RoutingKey(e Event) string {
	if e.From == e.To {
		return "ride.claimed"
	}
	return "ride." + string(e.To)
}

type Metrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ride_transitions_total",
			Help: "Committed ride status transitions.",
		}, []string{"from", "to"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ride_operation_failures_total",
			Help: "Rejected ride operations by error code.",
		}, []string{"operation", "code"}),
	}
	if reg != nil {
		reg.MustRegister(m.transitions, m.failures)
	}
	return m
}

func (m *Metrics) transition(from, to Status) {
	if m == nil {
		return
	}
	f := string(from)
	if from == StatusNone {
		f = "none"
	}
	m.transitions.WithLabelValues(f, string(to)).Inc()
}

func (m *Metrics) failure(op string, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, code).Inc()
}

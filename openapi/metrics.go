package openapi

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts requests made by operation tools.
type Metrics struct {
	requests *prometheus.CounterVec
}

// NewMetrics creates the toolset metrics and registers them with reg. A nil
// reg leaves the collector unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openapi",
			Name:      "tool_requests_total",
			Help:      "HTTP requests made by OpenAPI tools, by operation and status code.",
		}, []string{"operation", "code"}),
	}
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.requests); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		m.requests = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return m, nil
}

func (m *Metrics) observe(operation, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, code).Inc()
}

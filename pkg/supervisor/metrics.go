package supervisor

import (
	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	state            prometheus.Gauge
	reauthentication prometheus.Counter
	connectFailures  prometheus.Counter
	dropped          prometheus.Counter
}

// NewMetrics registers the connection collectors. A nil registerer disables them.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	if registerer == nil {
		return nil, nil
	}

	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cncbridge",
			Subsystem: "stream",
			Name:      "state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reauthenticating",
		}),
		reauthentication: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "stream",
			Name:      "reauthentications_total",
			Help:      "Token refreshes triggered by stream authorization errors",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "stream",
			Name:      "connect_failures_total",
			Help:      "Stream connection attempts that failed",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cncbridge",
			Subsystem: "stream",
			Name:      "events_ignored_total",
			Help:      "Stream events ignored because the connection was not established",
		}),
	}
	for _, collector := range []prometheus.Collector{m.state, m.reauthentication, m.connectFailures, m.dropped} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordState(state entities.ConnectionState) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

func (m *Metrics) recordReauthentication() {
	if m == nil {
		return
	}
	m.reauthentication.Inc()
}

func (m *Metrics) recordConnectFailure() {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
}

func (m *Metrics) recordIgnored() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

package bridge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// StateReporter exposes the stream connection state.
type StateReporter interface {
	State() entities.ConnectionState
	DroppedEvents() uint64
}

type healthResponse struct {
	Stream        string `json:"stream"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

// NewMetricsServer serves /metrics from gatherer and /health from reporter.
// /health answers 503 until the stream is connected.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, reporter StateReporter) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		state := reporter.State()
		w.Header().Set("Content-Type", "application/json")
		if state != entities.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(healthResponse{Stream: state.String(), DroppedEvents: reporter.DroppedEvents()})
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
}

package server

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/dProof/lib/store"
	"github.com/ValentinKolb/dProof/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"net/http"
	"time"
)

// Metric names follow the prometheus conventions, labels are rendered into the name
// the way VictoriaMetrics/metrics expects them.
const (
	metricRequests = "dproof_requests_total"
	metricDuration = "dproof_request_duration_seconds"
	metricTotal    = "dproof_registered_documents"
)

// resultLabel classifies a response for the request counter
func resultLabel(resp *common.Message) string {
	if resp == nil {
		return "error"
	}
	switch resp.Code {
	case store.RetCSuccess:
		if resp.MsgType == common.MsgTError {
			return "error"
		}
		return "ok"
	case store.RetCDuplicateRegistration:
		return "duplicate"
	default:
		return "error"
	}
}

// observeRequest records one handled request
func observeRequest(shardID uint64, msgType common.MessageType, resp *common.Message, start time.Time) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`%s{shard="%d",type=%q,result=%q}`,
		metricRequests, shardID, msgType.String(), resultLabel(resp))).Inc()
	metrics.GetOrCreateHistogram(fmt.Sprintf(`%s{shard="%d",type=%q}`,
		metricDuration, shardID, msgType.String())).UpdateDuration(start)
}

// registerStatsGauge exposes the document counter of a registry as gauge
func registerStatsGauge(shardID uint64, s store.IStore) {
	metrics.GetOrCreateGauge(fmt.Sprintf(`%s{shard="%d"}`, metricTotal, shardID), func() float64 {
		stats, err := s.GetStats()
		if err != nil {
			return 0
		}
		return float64(stats.TotalDocuments)
	})
}

// serveMetrics serves the prometheus metrics on the given endpoint until the server fails
func serveMetrics(endpoint string) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	Logger.Infof("Serving metrics on %s/metrics", endpoint)
	if err := http.ListenAndServe(endpoint, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		Logger.Errorf("Metrics server stopped: %v", err)
	}
}

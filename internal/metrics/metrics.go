package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FranksOps/trendhound/internal/store"
)

var (
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendhound_fetches_total",
			Help: "Total number of upstream fetches executed",
		},
		[]string{"source", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trendhound_fetch_duration_seconds",
			Help:    "Duration of upstream fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	KeywordsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendhound_keywords_collected_total",
			Help: "Raw keywords collected from upstreams, before deduplication",
		},
		[]string{"source"},
	)

	KeywordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendhound_keywords_written_total",
			Help: "Keyword records written to the store",
		},
		[]string{"outcome"},
	)

	EstimatedMetrics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trendhound_estimated_metrics_total",
			Help: "Metrics synthesized because no upstream signal was available",
		},
		[]string{"metric"},
	)
)

// RecordFetch updates the fetch counters for one source round trip.
func RecordFetch(source string, count int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	FetchesTotal.WithLabelValues(source, status).Inc()
	FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
	if count > 0 {
		KeywordsCollected.WithLabelValues(source).Add(float64(count))
	}
}

// RecordWrite updates the write counters from one batch's stats.
func RecordWrite(stats store.UpsertStats) {
	KeywordsWritten.WithLabelValues("inserted").Add(float64(len(stats.InsertedKeywords)))
	KeywordsWritten.WithLabelValues("updated").Add(float64(len(stats.UpdatedKeywords)))
	KeywordsWritten.WithLabelValues("error").Add(float64(stats.ErrorCount))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

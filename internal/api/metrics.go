package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	streamsLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streams_loaded_total",
		Help: "Total number of sensor streams constructed",
	})

	duplicateRowsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_rows_dropped_total",
		Help: "Total number of rows dropped for sharing a timestamp",
	})

	gridPointsTrimmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_points_trimmed_total",
		Help: "Total number of grid points the gap fill could not reach",
	})

	distributionsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "distributions_computed_total",
		Help: "Total number of window density estimates",
	})

	insufficientWindows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "insufficient_windows_total",
		Help: "Total number of windows too small or flat for a density estimate",
	})

	statisticsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "statistics_cache_hits_total",
		Help: "Total number of statistics served from Redis",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records request counts and latency per route template so
// sensor ids do not become label values.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		requestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

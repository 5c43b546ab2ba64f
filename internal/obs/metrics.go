// Package obs exposes Prometheus metrics for the API and the worker.
package obs

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	appInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "campaignd",
			Subsystem: "app",
			Name:      "info",
			Help:      "Static app info for deployment verification.",
		},
		[]string{"service", "version"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaignd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campaignd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	campaignsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaignd",
			Subsystem: "worker",
			Name:      "campaigns_total",
			Help:      "Total campaigns processed by terminal result.",
		},
		[]string{"result"},
	)
	campaignDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "campaignd",
			Subsystem: "worker",
			Name:      "campaign_duration_seconds",
			Help:      "Campaign processing duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "campaignd",
			Subsystem: "worker",
			Name:      "retries_total",
			Help:      "Total retry attempts across all campaigns.",
		},
	)
	archiveUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "campaignd",
			Subsystem: "archive",
			Name:      "uploads_total",
			Help:      "Total archive upload runs by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		appInfo,
		httpRequestsTotal,
		httpRequestDuration,
		campaignsProcessedTotal,
		campaignDuration,
		retriesTotal,
		archiveUploadsTotal,
	)
}

// SetAppInfo publishes the service name and version gauge.
func SetAppInfo(service string) {
	svc := strings.TrimSpace(service)
	if svc == "" {
		svc = "campaignd"
	}
	ver := strings.TrimSpace(os.Getenv("APP_VERSION"))
	if ver == "" {
		ver = "dev"
	}
	appInfo.WithLabelValues(svc, ver).Set(1)
}

// Handler serves the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }

// MetricsMiddleware records request count and latency per normalized route.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := normalizeRouteLabel(r.URL.Path)
		code := strconv.Itoa(rec.code)
		httpRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.code = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RecordCampaign tracks one terminal processing outcome.
func RecordCampaign(start time.Time, err error) {
	result := "completed"
	if err != nil {
		result = "error"
	}
	campaignsProcessedTotal.WithLabelValues(result).Inc()
	campaignDuration.Observe(time.Since(start).Seconds())
}

// RecordRetry counts a single retry attempt.
func RecordRetry() { retriesTotal.Inc() }

// RecordArchiveUpload tracks one archive run.
func RecordArchiveUpload(uploaded bool) {
	result := "succeeded"
	if !uploaded {
		result = "partial"
	}
	archiveUploadsTotal.WithLabelValues(result).Inc()
}

// normalizeRouteLabel collapses id segments so metric cardinality stays low.
// /api/campaigns/{id} and its subresources map onto pattern labels.
func normalizeRouteLabel(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return "/"
	}
	if strings.HasPrefix(p, "/api/campaigns/") {
		rest := strings.TrimPrefix(p, "/api/campaigns/")
		parts := strings.Split(rest, "/")
		if len(parts) == 1 {
			return "/api/campaigns/:id"
		}
		return "/api/campaigns/:id/" + strings.Join(parts[1:], "/")
	}
	if strings.HasPrefix(p, "/api/images/") {
		rest := strings.TrimPrefix(p, "/api/images/")
		if strings.HasSuffix(rest, "/thumbnail") {
			return "/api/images/:filename/thumbnail"
		}
		return "/api/images/:filename"
	}
	if strings.HasPrefix(p, "/storage/") {
		return "/storage/*"
	}
	return p
}

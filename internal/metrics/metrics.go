// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values shared by callers.
const (
	ResultSent   = "sent"
	ResultFailed = "failed"

	PanelCreated   = "created"
	PanelEdited    = "edited"
	PanelSkipped   = "skipped"
	PanelFailed    = "failed"
	PanelCoalesced = "coalesced"

	PushOK       = "ok"
	PushRejected = "rejected"
)

var (
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_notifications_total",
		Help: "Channel notifications by kind and delivery result",
	}, []string{"kind", "result"})

	DirectAlerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_direct_alerts_total",
		Help: "Direct member alerts by delivery result",
	}, []string{"result"})

	PanelWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_panel_writes_total",
		Help: "Panel render outcomes",
	}, []string{"op"})

	PushRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_push_requests_total",
		Help: "Push payloads by outcome",
	}, []string{"result"})

	SidecarFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_sidecar_failures_total",
		Help: "Failed sidecar reads by classification",
	}, []string{"class"})

	PollPassSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsewatch_poll_pass_seconds",
		Help:    "Duration of one reconciliation pass for one entity",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

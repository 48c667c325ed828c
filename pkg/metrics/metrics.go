package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/amoylab/redsess/internal/common/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publish outcomes recorded by PublishDone
const (
	PublishSent       = "sent"
	PublishSuppressed = "suppressed"
	PublishFailed     = "failed"
)

// Delivery outcomes recorded by Delivered
const (
	DeliveryOK          = "ok"
	DeliveryDecodeError = "decode_error"
)

// Metrics holds the prometheus collectors for the session store and its HTTP surface.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry   *prometheus.Registry
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
	httpInfl   *prometheus.GaugeVec
	opCnt      *prometheus.CounterVec
	opDur      *prometheus.HistogramVec
	publishCnt *prometheus.CounterVec
	deliverCnt *prometheus.CounterVec
	channels   prometheus.Gauge
	events     *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	opCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "operations_total"}, []string{"op", "status"})
	opDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Subsystem: "session", Name: "operation_duration_seconds", Buckets: cfg.Buckets}, []string{"op"})
	publishCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "publishes_total"}, []string{"result"})
	deliverCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "deliveries_total"}, []string{"result"})
	channels := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Subsystem: "session", Name: "channel_subscriptions"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Subsystem: "session", Name: "lifecycle_events_total"}, []string{"event"})
	r.MustRegister(opCnt, opDur, publishCnt, deliverCnt, channels, events)

	return &Metrics{
		registry:   r,
		httpReqCnt: httpReqCnt,
		httpDur:    httpDur,
		httpInfl:   httpInfl,
		opCnt:      opCnt,
		opDur:      opDur,
		publishCnt: publishCnt,
		deliverCnt: deliverCnt,
		channels:   channels,
		events:     events,
	}
}

// OpDone records one store operation
func (m *Metrics) OpDone(op string, since time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.opCnt.WithLabelValues(op, status).Inc()
	m.opDur.WithLabelValues(op).Observe(time.Since(since).Seconds())
}

func (m *Metrics) PublishDone(result string) {
	if m == nil {
		return
	}
	m.publishCnt.WithLabelValues(result).Inc()
}

func (m *Metrics) Delivered(result string) {
	if m == nil {
		return
	}
	m.deliverCnt.WithLabelValues(result).Inc()
}

// SetChannels reports the number of live backend channel subscriptions
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channels.Set(float64(n))
}

func (m *Metrics) LifecycleEvent(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

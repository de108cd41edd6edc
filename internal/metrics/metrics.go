package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks connection and message counters. Atomics mirror the
// Prometheus collectors so the JSON surfaces can read the same figures
// without scraping the registry.
type Metrics struct {
	start time.Time

	connections       atomic.Int64
	messagesDelivered atomic.Int64
	messagesQueued    atomic.Int64
	messagesEvicted   atomic.Int64
	messagesExpired   atomic.Int64

	connGauge     prometheus.Gauge
	deliveredCtr  prometheus.Counter
	queuedCtr     prometheus.Counter
	evictedCtr    prometheus.Counter
	expiredCtr    prometheus.Counter
	queuedGauge   prometheus.GaugeFunc
	framesInCtr   prometheus.Counter
	framesDropCtr prometheus.Counter
}

// New builds the collectors and registers them with reg. queuedMessages
// reports the current offline queue depth; it is sampled on scrape.
func New(reg prometheus.Registerer, queuedMessages func() float64) *Metrics {
	m := &Metrics{
		start: time.Now(),
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Currently authenticated WebSocket sessions.",
		}),
		deliveredCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Envelopes forwarded live to an online recipient.",
		}),
		queuedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_queued_total",
			Help: "Envelopes stored for offline delivery.",
		}),
		evictedCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_evicted_total",
			Help: "Envelopes head-dropped from a full recipient queue.",
		}),
		expiredCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_expired_total",
			Help: "Envelopes discarded after exceeding retention.",
		}),
		framesInCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_received_total",
			Help: "Inbound WebSocket frames parsed.",
		}),
		framesDropCtr: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_rejected_total",
			Help: "Inbound frames rejected by validation.",
		}),
		queuedGauge: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_queued_messages",
			Help: "Envelopes currently waiting in offline queues.",
		}, queuedMessages),
	}
	reg.MustRegister(
		m.connGauge, m.deliveredCtr, m.queuedCtr, m.evictedCtr,
		m.expiredCtr, m.framesInCtr, m.framesDropCtr, m.queuedGauge,
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	m.connections.Add(1)
	m.connGauge.Inc()
}

func (m *Metrics) ConnectionClosed() {
	m.connections.Add(-1)
	m.connGauge.Dec()
}

func (m *Metrics) MessageDelivered() {
	m.messagesDelivered.Add(1)
	m.deliveredCtr.Inc()
}

func (m *Metrics) MessageQueued() {
	m.messagesQueued.Add(1)
	m.queuedCtr.Inc()
}

func (m *Metrics) MessagesEvicted(n int) {
	if n <= 0 {
		return
	}
	m.messagesEvicted.Add(int64(n))
	m.evictedCtr.Add(float64(n))
}

func (m *Metrics) MessagesExpired(n int) {
	if n <= 0 {
		return
	}
	m.messagesExpired.Add(int64(n))
	m.expiredCtr.Add(float64(n))
}

func (m *Metrics) FrameReceived() { m.framesInCtr.Inc() }
func (m *Metrics) FrameRejected() { m.framesDropCtr.Inc() }

func (m *Metrics) Connections() int64 { return m.connections.Load() }
func (m *Metrics) Delivered() int64   { return m.messagesDelivered.Load() }
func (m *Metrics) Queued() int64      { return m.messagesQueued.Load() }
func (m *Metrics) Evicted() int64     { return m.messagesEvicted.Load() }
func (m *Metrics) Expired() int64     { return m.messagesExpired.Load() }

// Uptime returns time since construction.
func (m *Metrics) Uptime() time.Duration { return time.Since(m.start) }

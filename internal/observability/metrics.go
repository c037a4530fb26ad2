package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	bytesRead = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "bytes_read_total",
			Help:      "Bytes read from the byte source.",
		},
		[]string{"source"},
	)
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Records decoded and forwarded.",
		},
		[]string{"source", "severity"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "decode_errors_total",
			Help:      "Frames or lines discarded because they failed to decode.",
		},
		[]string{"source", "reason"},
	)
	resyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "resyncs_total",
			Help:      "Forced buffer advances after a stalled frame.",
		},
		[]string{"source"},
	)
	resyncDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "resync_dropped_bytes_total",
			Help:      "Bytes dropped by forced buffer advances.",
		},
		[]string{"source"},
	)
	bufferedBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "gesk",
			Subsystem: "ingest",
			Name:      "buffered_bytes",
			Help:      "Bytes held by the decoder waiting for more data.",
		},
		[]string{"source"},
	)
	sessionStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "session",
			Name:      "starts_total",
			Help:      "Sessions opened by the supervisor.",
		},
		[]string{"source"},
	)
	sinkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Failed sink writes.",
		},
		[]string{"sink"},
	)
	tailSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "http",
			Name:      "tail_sessions_total",
			Help:      "Websocket live-tail handshakes by outcome.",
		},
		[]string{"outcome"},
	)
	tailSessionSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gesk",
			Subsystem: "http",
			Name:      "tail_session_seconds",
			Help:      "Lifetime of upgraded live-tail sessions.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gesk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			bytesRead, recordsTotal, decodeErrors, resyncs, resyncDropped,
			bufferedBytes, sessionStarts, sinkErrors, tailSessions, tailSessionSeconds,
			httpRequests, httpDuration,
		)
	})
}

func RecordBytesRead(source string, n int) {
	RegisterMetrics()
	bytesRead.WithLabelValues(source).Add(float64(n))
}

func RecordRecord(source, severity string) {
	RegisterMetrics()
	recordsTotal.WithLabelValues(source, severity).Inc()
}

func RecordDecodeError(source, reason string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(source, reason).Inc()
}

func RecordResync(source string, dropped int) {
	RegisterMetrics()
	resyncs.WithLabelValues(source).Inc()
	resyncDropped.WithLabelValues(source).Add(float64(dropped))
}

func SetBuffered(source string, n int) {
	RegisterMetrics()
	bufferedBytes.WithLabelValues(source).Set(float64(n))
}

func RecordSessionStart(source string) {
	RegisterMetrics()
	sessionStarts.WithLabelValues(source).Inc()
}

func RecordSinkError(sink string) {
	RegisterMetrics()
	sinkErrors.WithLabelValues(sink).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordTailSession counts a websocket handshake; upgraded sessions also
// record how long they stayed open.
func RecordTailSession(upgraded bool, lifetime time.Duration) {
	RegisterMetrics()
	if !upgraded {
		tailSessions.WithLabelValues("rejected").Inc()
		return
	}
	tailSessions.WithLabelValues("upgraded").Inc()
	tailSessionSeconds.Observe(lifetime.Seconds())
}

package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/reckoning/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reckoning"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"realm", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"realm", "method", "path", "status"},
	)

	framesEncoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "frames_encoded_total",
			Help:      "Frames encoded by opcode.",
		},
		[]string{"opcode"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "frames_decoded_total",
			Help:      "Frames decoded by opcode.",
		},
		[]string{"opcode"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "frame_bytes_total",
			Help:      "Bytes in encoded and decoded frames.",
		},
		[]string{"direction"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "frames_rejected_total",
			Help:      "Frames discarded during decode.",
		},
		[]string{"opcode", "reason"},
	)
	bytesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "bytes_skipped_total",
			Help:      "Input bytes discarded while resynchronising.",
		},
	)

	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Connected sessions.",
		},
		[]string{"transport"},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Closed sessions by reason.",
		},
		[]string{"transport", "reason"},
	)
	outboxDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "outbox_dropped_total",
			Help:      "World updates dropped for slow sessions.",
		},
	)

	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "tick_duration_seconds",
			Help:      "Simulation tick duration in seconds.",
			Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05},
		},
	)
	tickEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "events_total",
			Help:      "Events applied by the simulation.",
		},
	)
	entities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "entities",
			Help:      "Live entities.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			framesEncoded, framesDecoded, frameBytes, framesRejected, bytesSkipped,
			sessionsActive, sessionsClosed, outboxDropped,
			tickDuration, tickEvents, entities,
		)
	})
}

func RecordHTTPRequest(realm, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(realm, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(realm, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionOpened(transport string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(transport).Inc()
}

func RecordSessionClosed(transport, reason string) {
	RegisterMetrics()
	sessionsActive.WithLabelValues(transport).Dec()
	sessionsClosed.WithLabelValues(transport, reason).Inc()
}

func RecordOutboxDrop() {
	RegisterMetrics()
	outboxDropped.Inc()
}

// CodecMetrics implements codec.Observer.
type CodecMetrics struct{}

func NewCodecMetrics() CodecMetrics {
	RegisterMetrics()
	return CodecMetrics{}
}

func (CodecMetrics) FrameEncoded(opcode protocol.Opcode, frameLen int) {
	framesEncoded.WithLabelValues(opcode.String()).Inc()
	frameBytes.WithLabelValues("out").Add(float64(frameLen))
}

func (CodecMetrics) FrameDecoded(opcode protocol.Opcode, frameLen int) {
	framesDecoded.WithLabelValues(opcode.String()).Inc()
	frameBytes.WithLabelValues("in").Add(float64(frameLen))
}

func (CodecMetrics) FrameRejected(opcode protocol.Opcode, err error) {
	framesRejected.WithLabelValues(opcode.String(), RejectReason(err)).Inc()
}

func (CodecMetrics) BytesSkipped(n int) {
	bytesSkipped.Add(float64(n))
}

// RejectReason maps a decode error to a metric label.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidOpcode):
		return "invalid_opcode"
	case errors.Is(err, protocol.ErrBadData):
		return "bad_data"
	default:
		return "other"
	}
}

// SimulationMetrics implements simulation.Observer.
type SimulationMetrics struct{}

func NewSimulationMetrics() SimulationMetrics {
	RegisterMetrics()
	return SimulationMetrics{}
}

func (SimulationMetrics) TickCompleted(duration time.Duration, events, live, _ int) {
	tickDuration.Observe(duration.Seconds())
	tickEvents.Add(float64(events))
	entities.Set(float64(live))
}

package observability

import (
	"strconv"
	"sync"

	"github.com/danmuck/lcsf/internal/protocol"
	"github.com/danmuck/lcsf/internal/protocol/core"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsf",
			Subsystem: "receive",
			Name:      "frames_total",
			Help:      "Inbound frames handed to the stack.",
		},
		[]string{"node"},
	)
	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lcsf",
			Subsystem: "wire",
			Name:      "frame_bytes",
			Help:      "Size of frames crossing the stack boundary.",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 12),
		},
		[]string{"node", "direction"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsf",
			Subsystem: "receive",
			Name:      "rejected_total",
			Help:      "Inbound frames rejected, by error kind.",
		},
		[]string{"node", "kind"},
	)
	commandsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsf",
			Subsystem: "receive",
			Name:      "commands_total",
			Help:      "Validated commands dispatched to handlers.",
		},
		[]string{"node", "protocol", "command"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsf",
			Subsystem: "send",
			Name:      "frames_total",
			Help:      "Frames handed to the send callback.",
		},
		[]string{"node"},
	)
	errorsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lcsf",
			Subsystem: "send",
			Name:      "error_commands_total",
			Help:      "Error commands generated about rejected frames.",
		},
		[]string{"node", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesReceived, frameBytes, framesRejected, commandsDispatched, framesSent, errorsGenerated)
	})
}

// StackMetrics records core events under a node label.
type StackMetrics struct {
	node string
}

var _ core.Observer = (*StackMetrics)(nil)

// NewStackMetrics registers the collectors on first use.
func NewStackMetrics(node string) *StackMetrics {
	RegisterMetrics()
	return &StackMetrics{node: node}
}

func (m *StackMetrics) FrameReceived(size int) {
	framesReceived.WithLabelValues(m.node).Inc()
	frameBytes.WithLabelValues(m.node, "in").Observe(float64(size))
}

func (m *StackMetrics) FrameRejected(kind protocol.ErrorKind) {
	framesRejected.WithLabelValues(m.node, kind.String()).Inc()
}

func (m *StackMetrics) CommandDispatched(protocolID, commandID uint16) {
	commandsDispatched.WithLabelValues(m.node, strconv.Itoa(int(protocolID)), strconv.Itoa(int(commandID))).Inc()
}

func (m *StackMetrics) FrameSent(size int) {
	framesSent.WithLabelValues(m.node).Inc()
	frameBytes.WithLabelValues(m.node, "out").Observe(float64(size))
}

func (m *StackMetrics) ErrorGenerated(kind protocol.ErrorKind) {
	errorsGenerated.WithLabelValues(m.node, kind.String()).Inc()
}

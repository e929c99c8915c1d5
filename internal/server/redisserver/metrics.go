package redisserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// Command results.
const (
	resultOK      = "ok"
	resultError   = "error"
	resultQueued  = "queued"
	resultLimited = "limited"
)

// EXEC abort reasons.
const (
	abortWatch      = "watch"
	abortQueueError = "queue_error"
)

// metrics is nil-safe; a server without registered metrics records nothing.
type metrics struct {
	commands    *prometheus.CounterVec
	execAborts  *prometheus.CounterVec
	connections prometheus.Gauge
}

// RegisterMetrics registers the server metrics with reg. Call it before Start.
func (s *Server) RegisterMetrics(reg prometheus.Registerer) *Server {
	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmap",
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands processed, by command and result",
		}, []string{"command", "result"}),
		execAborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rmap",
			Subsystem: "server",
			Name:      "exec_aborted_total",
			Help:      "EXEC calls that applied nothing, by reason",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rmap",
			Subsystem: "server",
			Name:      "connections",
			Help:      "Open client connections",
		}),
	}
	reg.MustRegister(m.commands, m.execAborts, m.connections)
	s.metrics = m
	return s
}

func resultOf(v resp.Value) string {
	if v.Kind == resp.KindError {
		return resultError
	}
	return resultOK
}

func (m *metrics) command(name, result string) {
	if m == nil {
		return
	}
	if _, ok := commands[name]; !ok {
		name = "unknown"
	}
	m.commands.WithLabelValues(name, result).Inc()
}

func (m *metrics) execAborted(reason string) {
	if m == nil {
		return
	}
	m.execAborts.WithLabelValues(reason).Inc()
}

func (m *metrics) connOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *metrics) connClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

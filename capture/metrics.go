package capture

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the capture Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Packets       *prometheus.CounterVec
	Bytes         *prometheus.CounterVec
	ReadErrors    *prometheus.CounterVec
	Sends         *prometheus.CounterVec
	SendErrors    *prometheus.CounterVec
	FilterUpdates *prometheus.CounterVec
	OpenSessions  *prometheus.GaugeVec
}

// NewMetrics creates the collectors. Register them with Register or by
// handing the Metrics to a registry as a prometheus.Collector.
func NewMetrics() *Metrics {
	return &Metrics{
		Packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_captured_packets_total",
			Help: "Total number of packets handed to the consumer",
		}, []string{"interface"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_captured_bytes_total",
			Help: "Total number of captured bytes handed to the consumer",
		}, []string{"interface"}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_read_errors_total",
			Help: "Total number of failed reads in the dispatch loop",
		}, []string{"interface", "fatal"}),
		Sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_sent_packets_total",
			Help: "Total number of injected packets",
		}, []string{"interface"}),
		SendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_send_errors_total",
			Help: "Total number of rejected injections",
		}, []string{"interface"}),
		FilterUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcapbridge_filter_updates_total",
			Help: "Total number of filter changes by result",
		}, []string{"interface", "result"}),
		OpenSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pcapbridge_open_sessions",
			Help: "Number of sessions holding a live capture handle",
		}, []string{"interface"}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.Packets.Describe(ch)
	m.Bytes.Describe(ch)
	m.ReadErrors.Describe(ch)
	m.Sends.Describe(ch)
	m.SendErrors.Describe(ch)
	m.FilterUpdates.Describe(ch)
	m.OpenSessions.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.Packets.Collect(ch)
	m.Bytes.Collect(ch)
	m.ReadErrors.Collect(ch)
	m.Sends.Collect(ch)
	m.SendErrors.Collect(ch)
	m.FilterUpdates.Collect(ch)
	m.OpenSessions.Collect(ch)
}

// Register registers m with reg, prometheus.DefaultRegisterer when reg is nil.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return reg.Register(m)
}

func (m *Metrics) captured(iface string, n int) {
	if m == nil {
		return
	}
	m.Packets.WithLabelValues(iface).Inc()
	m.Bytes.WithLabelValues(iface).Add(float64(n))
}

func (m *Metrics) readError(iface string, fatal bool) {
	if m == nil {
		return
	}
	m.ReadErrors.WithLabelValues(iface, strconv.FormatBool(fatal)).Inc()
}

func (m *Metrics) sent(iface string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SendErrors.WithLabelValues(iface).Inc()
		return
	}
	m.Sends.WithLabelValues(iface).Inc()
}

func (m *Metrics) filterUpdate(iface string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if fe, ok := err.(*FilterError); ok {
		result = fe.Stage.String() + "_error"
	} else if err != nil {
		result = "error"
	}
	m.FilterUpdates.WithLabelValues(iface, result).Inc()
}

func (m *Metrics) opened(iface string, delta float64) {
	if m == nil {
		return
	}
	m.OpenSessions.WithLabelValues(iface).Add(delta)
}

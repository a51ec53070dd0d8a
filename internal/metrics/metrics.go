// Package metrics exposes the Prometheus collectors workers and the REST
// poller update, enriching the ambient stack with observability the teacher
// repo didn't need but the rest of the example pack uses heavily.
//
// Grounded on original_source/bothan-lib/src/metrics/{websocket,rest}.rs for
// the set of series to expose; instrumented with prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConnectionResult labels a websocket connection attempt's outcome.
type ConnectionResult string

const (
	ConnectionSuccess ConnectionResult = "success"
	ConnectionFailed  ConnectionResult = "failed"
)

// MessageType labels an inbound websocket message's kind.
type MessageType string

const (
	MessageAssetInfo MessageType = "asset_info"
	MessagePing      MessageType = "ping"
	MessageUnused    MessageType = "unused"
)

// PollingResult labels a REST poll attempt's outcome.
type PollingResult string

const (
	PollingSuccess PollingResult = "success"
	PollingFailed  PollingResult = "failed"
	PollingTimeout PollingResult = "timeout"
)

// WebsocketMetrics is the per-source collector set for the websocket driver.
type WebsocketMetrics struct {
	source             string
	connectionsTotal   *prometheus.CounterVec
	connectionDuration *prometheus.HistogramVec
	messagesTotal      *prometheus.CounterVec
}

func NewWebsocketMetrics(reg prometheus.Registerer, source string) *WebsocketMetrics {
	m := &WebsocketMetrics{
		source: source,
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalserver_worker_connections_total",
			Help: "Total websocket connection attempts by outcome.",
		}, []string{"source", "result"}),
		connectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "signalserver_worker_connection_duration_seconds",
			Help: "Time spent establishing a websocket connection.",
		}, []string{"source", "result"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalserver_worker_messages_total",
			Help: "Total websocket messages received by type.",
		}, []string{"source", "type"}),
	}
	reg.MustRegister(m.connectionsTotal, m.connectionDuration, m.messagesTotal)
	return m
}

func (m *WebsocketMetrics) IncrementConnections(result ConnectionResult) {
	m.connectionsTotal.WithLabelValues(m.source, string(result)).Inc()
}

func (m *WebsocketMetrics) RecordConnectionDuration(seconds float64, result ConnectionResult) {
	m.connectionDuration.WithLabelValues(m.source, string(result)).Observe(seconds)
}

func (m *WebsocketMetrics) IncrementMessages(msgType MessageType) {
	m.messagesTotal.WithLabelValues(m.source, string(msgType)).Inc()
}

// RestMetrics is the per-source collector set for the REST poller.
type RestMetrics struct {
	source          string
	pollDuration    *prometheus.HistogramVec
	pollResultTotal *prometheus.CounterVec
}

func NewRestMetrics(reg prometheus.Registerer, source string) *RestMetrics {
	m := &RestMetrics{
		source: source,
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "signalserver_worker_rest_poll_duration_seconds",
			Help: "Time spent on one REST polling round.",
		}, []string{"source", "result"}),
		pollResultTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalserver_worker_rest_poll_total",
			Help: "Total REST polling rounds by outcome.",
		}, []string{"source", "result"}),
	}
	reg.MustRegister(m.pollDuration, m.pollResultTotal)
	return m
}

func (m *RestMetrics) UpdatePolling(seconds float64, result PollingResult) {
	m.pollDuration.WithLabelValues(m.source, string(result)).Observe(seconds)
	m.pollResultTotal.WithLabelValues(m.source, string(result)).Inc()
}

package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of occupied user slots",
	})

	TableSlots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_table_slots",
		Help: "Current capacity of the connection table",
	})

	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Client events dispatched by code",
	}, []string{"code"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_event_processing_seconds",
		Help:    "Time to dispatch each client event code",
		Buckets: prometheus.DefBuckets,
	}, []string{"code"})

	OversizedPayloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_oversized_payloads_total",
		Help: "Frames rejected because their declared content was too long",
	})

	DroppedRelays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_relays_total",
		Help: "Relay deliveries skipped because the recipient was not writable",
	})

	RejectedConnections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_rejected_connections_total",
		Help: "Connections turned away because the table could not grow",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(TableSlots)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(OversizedPayloads)
	prometheus.MustRegister(DroppedRelays)
	prometheus.MustRegister(RejectedConnections)
}

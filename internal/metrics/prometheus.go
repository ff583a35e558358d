package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratagem_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stratagem_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stratagem_ws_connections_active",
		Help: "Number of open websocket connections",
	})

	ChatEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratagem_chat_events_total",
		Help: "Chat events dispatched, by event type",
	}, []string{"type"})

	TurnsFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratagem_turns_finalized_total",
		Help: "Assistant turns finalized",
	})

	MessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratagem_messages_total",
		Help: "Total messages processed",
	})

	StrategyUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stratagem_strategy_updates_total",
		Help: "Strategy graph mutations applied",
	})

	WDKRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stratagem_wdk_requests_total",
		Help: "Requests issued to the WDK service API",
	}, []string{"status"})

	WDKRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stratagem_wdk_request_duration_seconds",
		Help:    "WDK service request duration",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})
)

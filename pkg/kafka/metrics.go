package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Publish outcomes.
const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	publishedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcart_kafka_published_messages_total",
			Help: "Kafka publish attempts by topic and result.",
		},
		[]string{"topic", "result"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopcart_kafka_publish_duration_seconds",
			Help:    "Time spent writing one event to the brokers.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"topic"},
	)
)

// observePublish records one publish attempt that started at start.
func observePublish(topic string, start time.Time, err error) {
	publishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	result := resultOK
	if err != nil {
		result = resultError
	}
	publishedMessages.WithLabelValues(topic, result).Inc()
}

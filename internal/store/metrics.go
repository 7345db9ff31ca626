package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcart_mutations_total",
			Help: "Total number of cart mutations applied in memory",
		},
		[]string{"op"},
	)

	persistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcart_persist_failures_total",
			Help: "Total number of mutations whose state could not be written to storage",
		},
		[]string{"op"},
	)

	loadRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopcart_load_recoveries_total",
			Help: "Total number of loads that fell back to an empty cart",
		},
		[]string{"reason"},
	)

	cartLines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopcart_lines",
			Help: "Number of lines currently held by the cart store",
		},
	)
)

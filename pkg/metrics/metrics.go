// Package metrics declares the prometheus collectors of the dashboard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "porto_climate_fetch_requests_total",
		Help: "Data endpoint fetches by source and outcome",
	}, []string{"source", "outcome"})
	FetchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "porto_climate_fetch_duration_ms",
		Help:    "Data endpoint fetch duration in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"source"})
	EntityCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "porto_climate_entities",
		Help: "Records currently held by the map surface",
	}, []string{"kind"})
	LayerTogglesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "porto_climate_layer_toggles_total",
		Help: "Layer visibility changes by layer and new state",
	}, []string{"layer", "visible"})
	ControlActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "porto_climate_control_actions_total",
		Help: "Control panel actions by control kind",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(FetchRequestsTotal)
	prometheus.MustRegister(FetchDurationMs)
	prometheus.MustRegister(EntityCount)
	prometheus.MustRegister(LayerTogglesTotal)
	prometheus.MustRegister(ControlActionsTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

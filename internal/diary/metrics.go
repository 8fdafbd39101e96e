package diary

import "github.com/prometheus/client_golang/prometheus"

// Forecast result labels.
const (
	resultOK           = "ok"
	resultInsufficient = "insufficient"
	resultError        = "error"
)

var (
	forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleepcast_forecasts_total",
			Help: "Forecast computations by result.",
		},
		[]string{"result"},
	)
	forecastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sleepcast_forecast_duration_seconds",
			Help:    "Time to aggregate the diary, estimate the cycle and evaluate the table.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)
	periodsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sleepcast_periods_recorded_total",
			Help: "Diary events recorded, by kind (sleep, wake, period, import).",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(forecastsTotal)
	prometheus.MustRegister(forecastDuration)
	prometheus.MustRegister(periodsRecorded)
}

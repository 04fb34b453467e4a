package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus series the service exports.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec

	SurveySteps       *prometheus.CounterVec
	SurveyCompletions prometheus.Counter
	SurveyVolume      prometheus.Histogram

	Reviews        *prometheus.CounterVec
	ReviewInterval *prometheus.HistogramVec
	LeechesFlagged prometheus.Counter

	Grants   *prometheus.CounterVec
	LevelUps prometheus.Counter
	Spends   *prometheus.CounterVec

	SnapshotSenses prometheus.Gauge
}

// NewMetrics builds the registry with all WordMine series registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wordmine_http_request_duration_seconds",
				Help:    "HTTP request duration by route, method and status",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"route", "method", "status"},
		),

		SurveySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmine_survey_steps_total",
				Help: "Survey steps processed by outcome",
			},
			[]string{"status"},
		),
		SurveyCompletions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordmine_survey_completions_total",
				Help: "Completed survey sessions",
			},
		),
		SurveyVolume: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wordmine_survey_volume",
				Help:    "Estimated vocabulary volume at completion",
				Buckets: []float64{500, 1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000},
			},
		),

		Reviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmine_reviews_total",
				Help: "Processed reviews by algorithm and rating",
			},
			[]string{"algorithm", "rating"},
		),
		ReviewInterval: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wordmine_review_interval_days",
				Help:    "Scheduled interval after each review",
				Buckets: []float64{1, 3, 7, 14, 30, 60, 120, 180, 365, 730},
			},
			[]string{"algorithm"},
		),
		LeechesFlagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordmine_leeches_flagged_total",
				Help: "Cards newly flagged as leeches",
			},
		),

		Grants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmine_currency_grants_total",
				Help: "Currency amounts granted by currency and source",
			},
			[]string{"currency", "source"},
		),
		LevelUps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wordmine_level_ups_total",
				Help: "Level crossings settled by the economy",
			},
		),
		Spends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordmine_currency_spends_total",
				Help: "Spend attempts by result",
			},
			[]string{"result"},
		),

		SnapshotSenses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordmine_snapshot_senses",
				Help: "Senses loaded from the vocabulary snapshot",
			},
		),
	}

	m.registry.MustRegister(
		m.RequestDuration,
		m.SurveySteps, m.SurveyCompletions, m.SurveyVolume,
		m.Reviews, m.ReviewInterval, m.LeechesFlagged,
		m.Grants, m.LevelUps, m.Spends,
		m.SnapshotSenses,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

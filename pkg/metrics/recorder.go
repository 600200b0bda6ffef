package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder handles metrics recording and exposure.
type Recorder struct {
	// API metrics
	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec

	// Calculation metrics
	calcCounter *prometheus.CounterVec
	calcLatency *prometheus.HistogramVec
	varGauge    *prometheus.GaugeVec
	cvarGauge   *prometheus.GaugeVec

	// Scenario metrics
	scenarioRunCounter *prometheus.CounterVec

	// Limits metrics
	limitCheckCounter *prometheus.CounterVec
	limitStatusGauge  *prometheus.GaugeVec
	openBreachGauge   *prometheus.GaugeVec
	transitionCounter *prometheus.CounterVec
}

// NewRecorder creates and registers all engine metrics.
func NewRecorder() *Recorder {
	return &Recorder{
		apiRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_api_requests_total",
				Help: "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskd_api_latency_seconds",
				Help:    "API request latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method", "path"},
		),
		calcCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_calculations_total",
				Help: "The total number of risk calculations by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		calcLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskd_calculation_latency_seconds",
				Help:    "Risk calculation latency distribution",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"method"},
		),
		varGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskd_portfolio_var",
				Help: "Last computed Value at Risk per portfolio and model",
			},
			[]string{"portfolio", "model"},
		),
		cvarGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskd_portfolio_cvar",
				Help: "Last computed CVaR per portfolio and model",
			},
			[]string{"portfolio", "model"},
		),
		scenarioRunCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_scenario_runs_total",
				Help: "The total number of scenario and stress runs by type",
			},
			[]string{"type"},
		),
		limitCheckCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_limit_checks_total",
				Help: "The total number of limit check cycles",
			},
			[]string{"portfolio"},
		),
		limitStatusGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskd_limits_by_status",
				Help: "Number of limits in each status after the last check",
			},
			[]string{"portfolio", "status"},
		),
		openBreachGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskd_open_breaches",
				Help: "Number of open breaches per portfolio",
			},
			[]string{"portfolio"},
		),
		transitionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskd_limit_transitions_total",
				Help: "The total number of limit status transitions",
			},
			[]string{"from", "to"},
		),
	}
}

// RecordAPIRequest records an API request with its latency.
func (r *Recorder) RecordAPIRequest(method, path string, status int, duration time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, statusLabel(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCalculation records one risk calculation.
func (r *Recorder) RecordCalculation(method string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.calcCounter.WithLabelValues(method, outcome).Inc()
	r.calcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRiskMetrics publishes the headline numbers of a calculation.
func (r *Recorder) RecordRiskMetrics(portfolioID, modelID string, valueAtRisk, cvar float64) {
	r.varGauge.WithLabelValues(portfolioID, modelID).Set(valueAtRisk)
	r.cvarGauge.WithLabelValues(portfolioID, modelID).Set(cvar)
}

// RecordScenarioRun records one scenario, Monte Carlo or stress run.
func (r *Recorder) RecordScenarioRun(runType string) {
	r.scenarioRunCounter.WithLabelValues(runType).Inc()
}

// RecordLimitCheck records the outcome of one check cycle.
func (r *Recorder) RecordLimitCheck(portfolioID string, active, warning, breached int) {
	r.limitCheckCounter.WithLabelValues(portfolioID).Inc()
	r.limitStatusGauge.WithLabelValues(portfolioID, "active").Set(float64(active))
	r.limitStatusGauge.WithLabelValues(portfolioID, "warning").Set(float64(warning))
	r.limitStatusGauge.WithLabelValues(portfolioID, "breached").Set(float64(breached))
}

// RecordOpenBreaches publishes the open breach count for a portfolio.
func (r *Recorder) RecordOpenBreaches(portfolioID string, count int) {
	r.openBreachGauge.WithLabelValues(portfolioID).Set(float64(count))
}

// RecordTransition records a limit status transition.
func (r *Recorder) RecordTransition(from, to string) {
	r.transitionCounter.WithLabelValues(from, to).Inc()
}

func statusLabel(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/okmerge/internal/logfields"
)

const metricNamespace = "okmerge"

const (
	listedMetricName        = "pull_requests_listed_total"
	eligibleMetricName      = "pull_requests_eligible_total"
	mergesMetricName        = "merges_total"
	branchUpdatesMetricName = "branch_updates_total"
	runsMetricName          = "runs_total"
)

const statusLabel = "status"

// Metrics records prometheus metrics about orchestrator runs.
// All methods can be called on a nil *Metrics, they do nothing then.
type Metrics struct {
	logger        *zap.Logger
	listed        prometheus.Counter
	eligible      prometheus.Counter
	merges        prometheus.Counter
	branchUpdates prometheus.Counter
	runs          *prometheus.CounterVec
}

// NewMetrics creates the orchestrator metrics and registers them at reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		logger: zap.L().Named(loggerName).Named("metrics"),
		listed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      listedMetricName,
				Help:      "count of listed open pull requests",
			},
		),
		eligible: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      eligibleMetricName,
				Help:      "count of pull requests that passed the label filter",
			},
		),
		merges: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      mergesMetricName,
				Help:      "count of merged pull requests",
			},
		),
		branchUpdates: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      branchUpdatesMetricName,
				Help:      "count of pull request branches that were updated with their base branch",
			},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of orchestrator runs by result",
			},
			[]string{statusLabel},
		),
	}
}

func (m *Metrics) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *Metrics) ListedAdd(cnt int) {
	if m == nil {
		return
	}

	m.listed.Add(float64(cnt))
}

func (m *Metrics) EligibleAdd(cnt int) {
	if m == nil {
		return
	}

	m.eligible.Add(float64(cnt))
}

func (m *Metrics) MergesInc() {
	if m == nil {
		return
	}

	m.merges.Inc()
}

func (m *Metrics) BranchUpdatesInc() {
	if m == nil {
		return
	}

	m.branchUpdates.Inc()
}

func (m *Metrics) RunsInc(status string) {
	if m == nil {
		return
	}

	cnt, err := m.runs.GetMetricWith(prometheus.Labels{statusLabel: status})
	if err != nil {
		m.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
}

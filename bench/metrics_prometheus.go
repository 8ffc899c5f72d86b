package bench

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	runsCompleted      *prometheus.CounterVec
	runsFailed         *prometheus.CounterVec
	benchmarks         *prometheus.CounterVec
	verifyChecks       *prometheus.CounterVec
	interruptsReceived *prometheus.CounterVec
}

var (
	runLabelKeys       = []string{labelMode, labelDevice, labelSegment}
	verifyLabelKeys    = []string{labelDevice, labelSegment, labelStatus}
	interruptLabelKeys = []string{labelChannel, labelSegment}
)

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rdmabench_runs_completed_total",
			Help:        "Number of benchmark repetitions that completed",
			ConstLabels: opts.ConstLabels,
		}, runLabelKeys),
		runsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rdmabench_runs_failed_total",
			Help:        "Number of benchmark repetitions that failed",
			ConstLabels: opts.ConstLabels,
		}, runLabelKeys),
		benchmarks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rdmabench_benchmarks_total",
			Help:        "Number of benchmark invocations executed",
			ConstLabels: opts.ConstLabels,
		}, runLabelKeys),
		verifyChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rdmabench_verify_checks_total",
			Help:        "Number of full-buffer comparisons by outcome",
			ConstLabels: opts.ConstLabels,
		}, verifyLabelKeys),
		interruptsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rdmabench_interrupts_received_total",
			Help:        "Number of validation interrupts delivered to the server",
			ConstLabels: opts.ConstLabels,
		}, interruptLabelKeys),
	}

	var err error
	if p.runsCompleted, err = registerCounterVec(reg, p.runsCompleted); err != nil {
		return nil, err
	}
	if p.runsFailed, err = registerCounterVec(reg, p.runsFailed); err != nil {
		return nil, err
	}
	if p.benchmarks, err = registerCounterVec(reg, p.benchmarks); err != nil {
		return nil, err
	}
	if p.verifyChecks, err = registerCounterVec(reg, p.verifyChecks); err != nil {
		return nil, err
	}
	if p.interruptsReceived, err = registerCounterVec(reg, p.interruptsReceived); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *PrometheusMetrics) RunCompleted(attrs map[string]string) {
	p.runsCompleted.With(labels(attrs, runLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) RunFailed(attrs map[string]string) {
	p.runsFailed.With(labels(attrs, runLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) BenchmarkCompleted(attrs map[string]string) {
	p.benchmarks.With(labels(attrs, runLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) VerifyChecked(matched bool, attrs map[string]string) {
	labs := labels(attrs, verifyLabelKeys...)
	if matched {
		labs[labelStatus] = "matched"
	} else {
		labs[labelStatus] = "mismatched"
	}
	p.verifyChecks.With(labs).Inc()
}

func (p *PrometheusMetrics) InterruptReceived(attrs map[string]string) {
	p.interruptsReceived.With(labels(attrs, interruptLabelKeys...)).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}

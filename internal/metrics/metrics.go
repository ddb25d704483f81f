package metrics

import (
	"net/http"

	"reflow_oven/internal/reflow"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "reflow_oven"

var allStages = []reflow.Stage{
	reflow.StageIdle,
	reflow.StagePreheat,
	reflow.StageSoak,
	reflow.StageReflow,
	reflow.StageCooling,
	reflow.StageDone,
	reflow.StageAborted,
	reflow.StageFaulted,
}

// Metrics holds the controller's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TemperatureC prometheus.Gauge
	SensorFault  prometheus.Gauge
	Duty         prometheus.Gauge
	Stage        *prometheus.GaugeVec

	RunsTotal    *prometheus.CounterVec
	FaultsTotal  *prometheus.CounterVec
	TickOverruns prometheus.Counter
	TickDuration prometheus.Histogram

	CalibrationComplete prometheus.Gauge
	CalibrationRuns     prometheus.Gauge
}

// New creates and registers all collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.TemperatureC = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "temperature_celsius",
		Help:      "Filtered oven temperature",
	})
	m.SensorFault = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sensor_fault",
		Help:      "1 while the filtered temperature carries a sensor fault",
	})
	m.Duty = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heater_duty_ratio",
		Help:      "Heater duty commanded on the last tick",
	})
	m.Stage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage",
			Help:      "1 for the controller's current stage, 0 otherwise",
		},
		[]string{"stage"},
	)

	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished reflow runs by outcome",
		},
		[]string{"outcome"},
	)
	m.FaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Faulted runs by reason",
		},
		[]string{"reason"},
	)
	m.TickOverruns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tick_overruns_total",
		Help:      "Control ticks that took longer than the tick interval",
	})
	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Time spent in one control tick",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})

	m.CalibrationComplete = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calibration_complete",
		Help:      "1 once learning has converged",
	})
	m.CalibrationRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "calibration_runs",
		Help:      "Runs evaluated by calibration",
	})

	registry.MustRegister(
		m.TemperatureC,
		m.SensorFault,
		m.Duty,
		m.Stage,
		m.RunsTotal,
		m.FaultsTotal,
		m.TickOverruns,
		m.TickDuration,
		m.CalibrationComplete,
		m.CalibrationRuns,
	)
	return m
}

// Registry returns the registry holding the controller metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSnapshot records the gauges of one control tick.
func (m *Metrics) ObserveSnapshot(snap reflow.Snapshot) {
	if m == nil {
		return
	}
	if !snap.Temp.Fault || snap.Temp.Samples > 0 {
		m.TemperatureC.Set(snap.Temp.ValueC)
	}
	m.SensorFault.Set(boolFloat(snap.Temp.Fault))
	m.Duty.Set(snap.Command.Duty)
	for _, s := range allStages {
		m.Stage.WithLabelValues(string(s)).Set(boolFloat(s == snap.State.Stage))
	}
}

// ObserveTick records how long a tick took and whether it overran.
func (m *Metrics) ObserveTick(seconds float64, overrun bool) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(seconds)
	if overrun {
		m.TickOverruns.Inc()
	}
}

// RunFinished counts a finished run and, for faulted runs, its reason.
func (m *Metrics) RunFinished(outcome reflow.RunOutcome, reason reflow.FaultReason) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome == reflow.OutcomeFaulted {
		m.FaultsTotal.WithLabelValues(string(reason)).Inc()
	}
}

// ObserveCalibration mirrors learning progress.
func (m *Metrics) ObserveCalibration(st reflow.CalibrationState) {
	if m == nil {
		return
	}
	m.CalibrationComplete.Set(boolFloat(st.Complete))
	m.CalibrationRuns.Set(float64(st.Runs))
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

package dispatch

import "github.com/prometheus/client_golang/prometheus"

const metricPrefix = "gsend_dispatch_"

// Metrics exports worker activity to prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	commands prometheus.Counter
	runs     *prometheus.CounterVec
	running  prometheus.Gauge
	progress prometheus.Gauge
}

// NewMetrics creates and registers the dispatch collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "commands_sent_total",
			Help: "Commands accepted by the controller link",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "runs_total",
			Help: "Finished runs by outcome",
		}, []string{"outcome"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "running",
			Help: "1 while a batch is being sent",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "progress_ratio",
			Help: "Completed fraction of the current batch",
		}),
	}
	reg.MustRegister(m.commands, m.runs, m.running, m.progress)
	return m
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.running.Set(1)
	m.progress.Set(0)
}

func (m *Metrics) sent(completed, total int) {
	if m == nil {
		return
	}
	m.commands.Inc()
	if total > 0 {
		m.progress.Set(float64(completed) / float64(total))
	}
}

func (m *Metrics) finished(o Outcome) {
	if m == nil {
		return
	}
	m.running.Set(0)
	m.runs.WithLabelValues(o.State.String()).Inc()
}

package ov2680

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors updated by a device. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	bursts        prometheus.Counter
	bytesWritten  prometheus.Counter
	retries       prometheus.Counter
	busErrors     prometheus.Counter
	modeSwitches  *prometheus.CounterVec
	clampedValues *prometheus.CounterVec
	streaming     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		bursts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "bus_bursts_total",
			Help:      "Burst write transactions completed on the register bus",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "bus_bytes_written_total",
			Help:      "Register bytes written on the bus",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "bus_retries_total",
			Help:      "Burst writes retried after a transport failure",
		}),
		busErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "bus_errors_total",
			Help:      "Burst writes that failed after all retries",
		}),
		modeSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "mode_switches_total",
			Help:      "Resolution mode programs applied, by mode",
		}, []string{"mode"}),
		clampedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ov2680",
			Name:      "clamped_controls_total",
			Help:      "Control requests clamped to the hardware range, by control",
		}, []string{"control"}),
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ov2680",
			Name:      "streaming",
			Help:      "1 while the sensor is streaming",
		}),
	}

	collectors := []prometheus.Collector{m.bursts, m.bytesWritten, m.retries, m.busErrors, m.modeSwitches, m.clampedValues, m.streaming}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) burst(n int) {
	if m == nil {
		return
	}
	m.bursts.Inc()
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) busError() {
	if m == nil {
		return
	}
	m.busErrors.Inc()
}

func (m *Metrics) modeSwitch(desc string) {
	if m == nil {
		return
	}
	m.modeSwitches.WithLabelValues(desc).Inc()
}

func (m *Metrics) clamped(control string) {
	if m == nil {
		return
	}
	m.clampedValues.WithLabelValues(control).Inc()
}

func (m *Metrics) setStreaming(on bool) {
	if m == nil {
		return
	}
	if on {
		m.streaming.Set(1)
	} else {
		m.streaming.Set(0)
	}
}

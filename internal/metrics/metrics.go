// Package metrics counts parsed spectra and fits of a specfit run.
// Metrics live on a private registry and can be written in the
// Prometheus text format for the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Collector holds the metrics of one run
type Collector struct {
	registry   *prometheus.Registry
	parsed     *prometheus.CounterVec
	fits       *prometheus.CounterVec
	duration   prometheus.Histogram
	references prometheus.Gauge
}

// New creates a Collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		parsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "specfit_spectra_parsed_total",
			Help: "Number of JDX spectra parsed, by result.",
		}, []string{"result"}),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "specfit_fits_total",
			Help: "Number of least squares fits, by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "specfit_fit_duration_seconds",
			Help:    "Time spent per fit.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 10, 7),
		}),
		references: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "specfit_reference_spectra",
			Help: "Number of reference spectra in the fit engine.",
		}),
	}
	c.registry.MustRegister(c.parsed, c.fits, c.duration, c.references)
	return c
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// SpectrumParsed counts one parse attempt
func (c *Collector) SpectrumParsed(err error) {
	c.parsed.WithLabelValues(result(err)).Inc()
}

// FitDone counts one fit and records its duration
func (c *Collector) FitDone(d time.Duration, err error) {
	c.fits.WithLabelValues(result(err)).Inc()
	if err == nil {
		c.duration.Observe(d.Seconds())
	}
}

// SetReferences records the number of reference spectra
func (c *Collector) SetReferences(n int) {
	c.references.Set(float64(n))
}

// Registry returns the registry holding the metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes all metrics to path in the text exposition format
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

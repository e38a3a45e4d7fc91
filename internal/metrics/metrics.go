// Package metrics records chart rendering and schema validation activity.
//
// The collectors live in a dedicated registry rather than the global one so
// that a test run can dump exactly what it did into a text file for CI.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var (
	Registry = prometheus.NewRegistry()

	rendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chart_renders_total",
			Help: "Total number of chart renders by renderer and result",
		},
		[]string{"renderer", "result"},
	)

	renderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chart_render_duration_seconds",
			Help:    "Time spent rendering the chart",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"renderer"},
	)

	renderedObjects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chart_rendered_objects_total",
			Help: "Total number of Kubernetes objects produced by renders",
		},
	)

	schemaFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_fetches_total",
			Help: "Total number of schema lookups by source (cache, remote)",
		},
		[]string{"source"},
	)

	validationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_validations_total",
			Help: "Total number of object validations by kind and result",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	Registry.MustRegister(rendersTotal, renderDuration, renderedObjects, schemaFetchesTotal, validationsTotal)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveRender records a render attempt.
func ObserveRender(renderer string, started time.Time, err error) {
	rendersTotal.WithLabelValues(renderer, result(err)).Inc()
	renderDuration.WithLabelValues(renderer).Observe(time.Since(started).Seconds())
}

// AddRenderedObjects counts objects returned by a render.
func AddRenderedObjects(n int) {
	renderedObjects.Add(float64(n))
}

// ObserveSchemaFetch records where a schema came from.
func ObserveSchemaFetch(source string) {
	schemaFetchesTotal.WithLabelValues(source).Inc()
}

// ObserveValidation records an object validation.
func ObserveValidation(kind string, err error) {
	validationsTotal.WithLabelValues(kind, result(err)).Inc()
}

// WriteFile writes the registry in the Prometheus text format.
func WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// CounterValue reads the current value of a labelled counter.
func CounterValue(vec *prometheus.CounterVec, labels ...string) (float64, error) {
	m, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0, err
	}
	pb := &dto.Metric{}
	if err := m.Write(pb); err != nil {
		return 0, err
	}
	if pb.Counter == nil || pb.Counter.Value == nil {
		return 0, nil
	}
	return pb.Counter.GetValue(), nil
}

// Renders returns the number of renders recorded for renderer and result.
func Renders(renderer, res string) float64 {
	v, _ := CounterValue(rendersTotal, renderer, res)
	return v
}

// Validations returns the number of validations recorded for kind and result.
func Validations(kind, res string) float64 {
	v, _ := CounterValue(validationsTotal, kind, res)
	return v
}

// SchemaFetches returns the number of schema lookups served from source.
func SchemaFetches(source string) float64 {
	v, _ := CounterValue(schemaFetchesTotal, source)
	return v
}

package testhelpers

import (
	"fmt"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// GetMetricValue parses metrics in the Prometheus text format and returns the
// value of the sample of metricName whose labels include every pair in labels.
//
// Example usage:
//
//	content := "chart_renders_total{renderer=\"engine\",result=\"success\"} 3"
//	value, err := GetMetricValue(content, "chart_renders_total", map[string]string{"renderer": "engine"})
//	// value will be 3
func GetMetricValue(metricsContent, metricName string, labels map[string]string) (float64, error) {
	parser := expfmt.NewTextParser(model.LegacyValidation)
	metricFamilies, err := parser.TextToMetricFamilies(strings.NewReader(metricsContent))
	if err != nil {
		return 0, fmt.Errorf("failed to parse metrics: %w", err)
	}

	metricFamily, found := metricFamilies[metricName]
	if !found {
		return 0, fmt.Errorf("metric %s not found", metricName)
	}

	for _, metric := range metricFamily.Metric {
		if !hasLabels(metric, labels) {
			continue
		}
		switch metricFamily.GetType() {
		case dto.MetricType_COUNTER:
			return metric.Counter.GetValue(), nil
		case dto.MetricType_GAUGE:
			return metric.Gauge.GetValue(), nil
		case dto.MetricType_UNTYPED:
			return metric.Untyped.GetValue(), nil
		case dto.MetricType_HISTOGRAM:
			return float64(metric.Histogram.GetSampleCount()), nil
		default:
			return 0, fmt.Errorf("unsupported metric type: %s", metricFamily.GetType())
		}
	}
	return 0, fmt.Errorf("metric %s with labels %v not found", metricName, labels)
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, label := range metric.Label {
		if want, ok := labels[label.GetName()]; ok && want == label.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

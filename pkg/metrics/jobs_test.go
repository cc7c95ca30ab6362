package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewJobMetrics(reg)
	m.ObserveDuration("profile-repair", 250*time.Millisecond)
	m.IncSuccess("profile-repair")
	m.IncFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_job_success_total", map[string]string{"job": "profile-repair"}); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "maintenance_job_failure_total", map[string]string{"job": "unknown"}); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "maintenance_job_duration_seconds", "job", "profile-repair"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got < 0.25 {
		t.Fatalf("expected duration sum >= 0.25, got %f", got)
	}
}

func TestJobMetricsNilSafe(t *testing.T) {
	var m *JobMetrics
	m.ObserveDuration("x", time.Second)
	m.IncSuccess("x")
	m.IncFailure("x")
	NewJobMetrics(nil).IncSuccess("x")
}

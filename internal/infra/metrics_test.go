package infra

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRecordsJobLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.JobCreated("remove_background")
	m.JobCreated("remove_background")
	m.JobFinished("remove_background", "completed", 1500*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	if values["maestro_jobs_created_total"] != 2 {
		t.Fatalf("created = %v, want 2", values["maestro_jobs_created_total"])
	}
	if values["maestro_jobs_finished_total"] != 1 {
		t.Fatalf("finished = %v, want 1", values["maestro_jobs_finished_total"])
	}
	if values["maestro_job_duration_seconds"] != 1 {
		t.Fatalf("duration samples = %v, want 1", values["maestro_job_duration_seconds"])
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.JobCreated("x")
	m.JobFinished("x", "failed", time.Second)
}

func TestMetricsOperationLabelIsBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	for i := 0; i < 500; i++ {
		op := fmt.Sprintf("junk_op_%d", i)
		m.JobCreated(op)
		m.JobFinished(op, "failed", time.Millisecond)
	}
	m.JobCreated("remove_bg")
	m.JobCreated("Remove_Background")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		labels := map[string]bool{}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "operation" {
					labels[lp.GetValue()] = true
				}
			}
		}
		if len(mf.GetMetric()) > 2 {
			t.Fatalf("%s has %d series", mf.GetName(), len(mf.GetMetric()))
		}
		if mf.GetName() == "maestro_jobs_created_total" && (!labels["unknown"] || !labels["remove_background"]) {
			t.Fatalf("unexpected operation labels %v", labels)
		}
	}
}

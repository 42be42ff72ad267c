package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/usn-result-scraper/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms follow the event stream.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	jobID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{JobID: jobID, TS: now, Stage: progress.StageJobStart, Year: "24"},
		{JobID: jobID, TS: now, Stage: progress.StageProbe, Branch: "CS", USN: "1DS24CS001", Outcome: "found", Dur: 200 * time.Millisecond},
		{JobID: jobID, TS: now, Stage: progress.StageSaved, Branch: "CS", USN: "1DS24CS001", Path: "p"},
		{JobID: jobID, TS: now, Stage: progress.StageProbe, Branch: "CS", USN: "1DS24CS002", Outcome: "not_found"},
		{JobID: jobID, TS: now, Stage: progress.StageBranchDone, Branch: "CS"},
		{JobID: jobID, TS: now.Add(15 * time.Second), Stage: progress.StageJobDone, Dur: 15 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.probes.WithLabelValues("CS", "found")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.probes.WithLabelValues("CS", "not_found")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.artifactsSaved.WithLabelValues("CS")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.branchesScanned))
	require.Equal(t, 1, testutil.CollectAndCount(sink.probeDuration, "scraper_probe_duration_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "scraper_job_runtime_seconds"))
}

// TestPrometheusSinkRunningGauge tracks concurrent and canceled jobs.
func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	a := progress.UUIDToBytes(uuid.New())
	b := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: a, TS: now, Stage: progress.StageJobStart},
		{JobID: a, TS: now, Stage: progress.StageJobStart},
		{JobID: b, TS: now, Stage: progress.StageJobStart},
	}))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: a, TS: now, Stage: progress.StageJobCanceled},
		{JobID: a, TS: now, Stage: progress.StageJobCanceled},
		{JobID: b, TS: now, Stage: progress.StageJobError, Note: "boom"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("canceled")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("error")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	// Reset Prometheus registry to avoid duplicate registration
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector := NewCollector()

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.tasksGenerated, "tasksGenerated counter should be initialized")
	assert.NotNil(t, collector.tasksSent, "tasksSent counter should be initialized")
	assert.NotNil(t, collector.tasksProcessed, "tasksProcessed counter should be initialized")
	assert.NotNil(t, collector.tasksCommitted, "tasksCommitted counter should be initialized")
	assert.NotNil(t, collector.resultsDiscarded, "resultsDiscarded counter should be initialized")
	assert.NotNil(t, collector.resultsError, "resultsError counter should be initialized")
	assert.NotNil(t, collector.taskLatency, "taskLatency histogram should be initialized")
	assert.NotNil(t, collector.pendingTasks, "pendingTasks gauge should be initialized")
	assert.NotNil(t, collector.workersKnown, "workersKnown gauge should be initialized")
}

func TestRecordGenerated(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			collector.RecordGenerated()
		}
	})
}

func TestRecordSent(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		for i := 0; i < 10; i++ {
			collector.RecordSent()
		}
	})
}

func TestRecordCommitted(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	for _, latency := range []float64{0.001, 0.01, 0.1, 1.0, 5.0} {
		assert.NotPanics(t, func() {
			collector.RecordCommitted(latency)
		}, "RecordCommitted should not panic with latency %f", latency)
	}
}

func TestRecordDiscardedAndError(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordDiscarded()
		collector.RecordResultError()
	})
}

func TestUpdateQueueStats(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	testCases := []struct {
		name    string
		pending int
		workers int
	}{
		{"zero values", 0, 0},
		{"normal values", 10, 5},
		{"high pending", 100, 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				collector.UpdateQueueStats(tc.pending, tc.workers)
			})
		})
	}
}

func TestConcurrentMetricUpdates(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	done := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		go func() {
			collector.RecordGenerated()
			collector.RecordSent()
			collector.RecordCommitted(0.1)
			collector.UpdateQueueStats(10, 5)
			done <- true
		}()
	}
	for i := 0; i < 100; i++ {
		<-done
	}
}

func TestCollectorIsolation(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()

	collector1 := NewCollector()
	require.NotNil(t, collector1)

	// A second collector in the same process reuses the same metric
	// names, which Prometheus rejects as a duplicate registration.
	assert.Panics(t, func() {
		NewCollector()
	}, "creating a second collector should panic due to duplicate registration")
}

func TestTaskLifecycleSequence(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	collector := NewCollector()

	assert.NotPanics(t, func() {
		collector.RecordGenerated()
		collector.UpdateQueueStats(1, 1)

		collector.RecordSent()
		collector.UpdateQueueStats(1, 1)

		collector.RecordCommitted(0.5)
		collector.UpdateQueueStats(0, 1)
	})
}

func TestRegistrySetAndLast(t *testing.T) {
	reg := NewRegistry(4)

	reg.SetInt("tasks_generated", 1)
	reg.SetInt("tasks_generated", 2)
	reg.SetDouble("task_time", 0.25)
	reg.SetString("phase", "RUNNING")

	last, ok := reg.Last("tasks_generated")
	require.True(t, ok)
	assert.Equal(t, int64(2), last.Value)
	assert.Equal(t, KindInt, last.Kind)

	_, ok = reg.Last("does_not_exist")
	assert.False(t, ok)
}

func TestRegistryHistoryWraps(t *testing.T) {
	reg := NewRegistry(3)

	for i := int64(0); i < 5; i++ {
		reg.SetInt("counter", i)
	}

	hist, ok := reg.History("counter")
	require.True(t, ok)
	require.Len(t, hist, 3)
	// Ring capacity 3 retains only the last 3 of 5 pushes: 2, 3, 4.
	assert.Equal(t, int64(2), hist[0].Value)
	assert.Equal(t, int64(4), hist[2].Value)
}

func TestRegistryListJSON(t *testing.T) {
	reg := NewRegistry(2)
	reg.SetInt("a", 1)
	reg.SetString("b", "x")

	names := reg.List()
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	data, err := reg.ListJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "metrics")
}

package parklot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector_Counters(t *testing.T) {
	m := newMetricsCollector()
	m.observeTask(1000)
	m.observeTask(3000)
	m.observeTask(2000)
	m.tasksStolen.Add(2)
	m.tasksOverflowed.Add(5)
	m.idleParks.Add(1)

	s := m.snapshot()
	assert.Equal(t, uint64(3), s.TasksExecuted)
	assert.Equal(t, uint64(2), s.TasksStolen)
	assert.Equal(t, uint64(5), s.TasksOverflowed)
	assert.Equal(t, uint64(1), s.IdleParks)
	assert.Equal(t, 3*time.Microsecond, s.LatencyMax)
	assert.Equal(t, 2*time.Microsecond, s.LatencyP50)
}

func TestMetricsCollector_MaxIsMonotonic(t *testing.T) {
	m := newMetricsCollector()
	m.observeTask(5000)
	m.observeTask(100)
	assert.Equal(t, 5*time.Microsecond, m.snapshot().LatencyMax)
}

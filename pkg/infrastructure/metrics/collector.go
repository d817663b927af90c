// Package metrics provides metrics collection for the agent runtime.
package metrics

import (
	"time"
)

// Collector defines the interface for collecting runtime metrics.
type Collector interface {
	// RecordRun records a completed question run.
	RecordRun(status string, iterations int, duration time.Duration)

	// RecordToolInvocation records one tool call.
	RecordToolInvocation(tool string, duration time.Duration, success bool)

	// RecordValidation records a validator verdict.
	RecordValidation(allowed bool)

	// RecordQueryExecution records one SQL statement execution.
	RecordQueryExecution(duration time.Duration, success bool)

	// RecordLeaseAcquisition records how long a caller waited for a lease.
	RecordLeaseAcquisition(wait time.Duration)

	// IncrementPoolExhaustion counts acquire-timeout failures.
	IncrementPoolExhaustion()

	// UpdateActiveLeases records the number of leases currently held.
	UpdateActiveLeases(count int)

	// StartTimer starts a timer for measuring duration.
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	// Stop stops the timer and returns the duration in seconds.
	Stop() float64
}

// NoOpCollector is a no-op implementation of Collector.
type NoOpCollector struct{}

// NewNoOpCollector creates a new no-op collector.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

// RecordRun does nothing.
func (n *NoOpCollector) RecordRun(status string, iterations int, duration time.Duration) {}

// RecordToolInvocation does nothing.
func (n *NoOpCollector) RecordToolInvocation(tool string, duration time.Duration, success bool) {}

// RecordValidation does nothing.
func (n *NoOpCollector) RecordValidation(allowed bool) {}

// RecordQueryExecution does nothing.
func (n *NoOpCollector) RecordQueryExecution(duration time.Duration, success bool) {}

// RecordLeaseAcquisition does nothing.
func (n *NoOpCollector) RecordLeaseAcquisition(wait time.Duration) {}

// IncrementPoolExhaustion does nothing.
func (n *NoOpCollector) IncrementPoolExhaustion() {}

// UpdateActiveLeases does nothing.
func (n *NoOpCollector) UpdateActiveLeases(count int) {}

// StartTimer returns a no-op timer.
func (n *NoOpCollector) StartTimer(name string) Timer {
	return &noOpTimer{start: time.Now()}
}

// noOpTimer is a no-op implementation of Timer.
type noOpTimer struct {
	start time.Time
}

// Stop returns the elapsed time in seconds.
func (t *noOpTimer) Stop() float64 {
	return time.Since(t.start).Seconds()
}

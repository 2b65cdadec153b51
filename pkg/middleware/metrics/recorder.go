// Package metrics provides metrics recording for completion calls and readings.
package metrics

import "time"

// Recorder defines the interface for recording completion and reading metrics.
type Recorder interface {
	// ObserveRequest records metrics for a finished completion call.
	ObserveRequest(model, stage string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)

	// ObserveReading records how a reading ended (completed, fallback, error, cancelled).
	ObserveReading(spread, outcome string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {
	// No-op
}

// ObserveReading does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveReading(_, _ string) {
	// No-op
}

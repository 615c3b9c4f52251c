package metrics

import "time"

// ResultLabel enumerates run outcome categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// Recorder defines observability hooks for export runs. All methods must be
// safe to call concurrently.
type Recorder interface {
	ObserveStageDuration(corpus, stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome ResultLabel)
	IncFetch(corpus string, success bool)
	SetInFlight(corpus string, n int)
	IncPropagated(corpus, rule string, n int)
	IncRendered(corpus, kind string, success bool)
	IncDeleted(corpus string)
	IncLinkMiss(corpus string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)                   {}
func (NoopRecorder) IncRunOutcome(ResultLabel)                          {}
func (NoopRecorder) IncFetch(string, bool)                              {}
func (NoopRecorder) SetInFlight(string, int)                            {}
func (NoopRecorder) IncPropagated(string, string, int)                  {}
func (NoopRecorder) IncRendered(string, string, bool)                   {}
func (NoopRecorder) IncDeleted(string)                                  {}
func (NoopRecorder) IncLinkMiss(string)                                 {}

package metrics

import (
	"testing"
	"time"
)

func TestNoopRecorderSatisfiesInterface(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("CXF", "render", time.Second)
	r.IncPropagated("CXF", "children", 1)
	r.IncRunOutcome(ResultWarning)
}

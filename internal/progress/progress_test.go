package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlainReporter_FormatsStageAndCounts(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainReporter(&buf)

	r.Update(Event{Stage: StageTraining, Current: 3, Total: 10, Message: "iterating"})
	assert.Contains(t, buf.String(), "[TRAIN] 3/10 iterating")
}

func TestPlainReporter_CompleteSummarizesRun(t *testing.T) {
	var buf bytes.Buffer
	r := NewPlainReporter(&buf)

	r.Complete(CompletionStats{GroupTimestamp: 42, VectorCount: 1000, PartitionCount: 8, Duration: 2 * time.Second})
	assert.Contains(t, buf.String(), "ts=42")
	assert.Contains(t, buf.String(), "vectors=1000")
	assert.Contains(t, buf.String(), "partitions=8")
}

func TestStage_IconsAreDistinct(t *testing.T) {
	seen := map[string]bool{}
	for s := StageSampling; s <= StagePublish; s++ {
		icon := s.Icon()
		assert.False(t, seen[icon], "duplicate icon %s", icon)
		seen[icon] = true
	}
}

func TestNoopReporter_DoesNotPanic(t *testing.T) {
	var r Reporter = NoopReporter{}
	r.Update(Event{Stage: StageSampling})
	r.Complete(CompletionStats{})
}

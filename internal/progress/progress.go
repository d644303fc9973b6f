// Package progress renders ingestion pipeline progress: a rich
// bubbletea TUI on a terminal, plain line-oriented output otherwise.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage identifies one of the five ingestion pipeline stages.
type Stage int

const (
	StageSampling Stage = iota
	StageTraining
	StageAssignment
	StageShuffleWrite
	StagePublish
)

func (s Stage) String() string {
	switch s {
	case StageSampling:
		return "Sampling"
	case StageTraining:
		return "Training"
	case StageAssignment:
		return "Assignment"
	case StageShuffleWrite:
		return "ShuffleWrite"
	case StagePublish:
		return "Publish"
	default:
		return "Unknown"
	}
}

// Icon is the short label used by the plain renderer.
func (s Stage) Icon() string {
	switch s {
	case StageSampling:
		return "SAMPLE"
	case StageTraining:
		return "TRAIN"
	case StageAssignment:
		return "ASSIGN"
	case StageShuffleWrite:
		return "SHUFFLE"
	case StagePublish:
		return "PUBLISH"
	default:
		return "???"
	}
}

// Event reports progress within the current stage.
type Event struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// CompletionStats summarizes a finished ingestion run.
type CompletionStats struct {
	GroupTimestamp uint64
	VectorCount    int
	PartitionCount int
	Duration       time.Duration
}

// Reporter is the interface internal/ingest drives during Pipeline.Run.
// A nil Reporter is valid: NoopReporter{} is the zero-cost default.
type Reporter interface {
	Update(event Event)
	Complete(stats CompletionStats)
}

// NoopReporter discards every event.
type NoopReporter struct{}

func (NoopReporter) Update(Event)              {}
func (NoopReporter) Complete(CompletionStats)  {}

// NewAuto picks PlainReporter for non-TTY output (pipes, CI logs) and
// TUIReporter for an interactive terminal, mirroring the teacher's
// isatty-gated renderer selection.
func NewAuto(out io.Writer) Reporter {
	if f, ok := out.(interface{ Fd() uintptr }); ok && isatty.IsTerminal(f.Fd()) {
		return NewTUIReporter(out)
	}
	return NewPlainReporter(out)
}

// PlainReporter writes one line per update, suitable for piped/CI output.
type PlainReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainReporter builds a PlainReporter writing to out.
func NewPlainReporter(out io.Writer) *PlainReporter {
	return &PlainReporter{out: out}
}

func (r *PlainReporter) Update(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Total > 0 {
		fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, event.Message)
	} else {
		fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	}
}

func (r *PlainReporter) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "Complete: ts=%d vectors=%d partitions=%d in %s\n",
		stats.GroupTimestamp, stats.VectorCount, stats.PartitionCount, stats.Duration.Round(100*time.Millisecond))
}

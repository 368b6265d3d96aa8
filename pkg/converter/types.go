package converter

import "github.com/stackvity/book-converter/pkg/converter/extension"

// Status defines the processing states of a job during a run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCached     Status = "cached"
)

// OnErrorMode decides what a failed job does to the run.
type OnErrorMode string

const (
	// OnErrorContinue reports failed jobs and still succeeds.
	OnErrorContinue OnErrorMode = "continue"
	// OnErrorFail finishes the run, then fails it with ErrJobsFailed.
	OnErrorFail OnErrorMode = "fail"
	// OnErrorStop cancels the run on the first failed job.
	OnErrorStop OnErrorMode = "stop"
)

// Valid reports whether m is a known mode.
func (m OnErrorMode) Valid() bool {
	switch m {
	case OnErrorContinue, OnErrorFail, OnErrorStop:
		return true
	}
	return false
}

// OutputFormat defines the format of the summary printed when the TUI is off.
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// JobKind is the kind of document a job converts.
type JobKind string

const (
	JobSection  JobKind = "section"
	JobPage     JobKind = "page"
	JobFragment JobKind = "fragment"
)

// Job is one unit of conversion work. Jobs are values; the queue holds copies.
type Job struct {
	Kind     JobKind
	Language string
	// ID is the section id (slash separated directory path below the
	// language root) or the page/fragment name.
	ID string
	// RelPath is the source path relative to the source root, slash separated.
	RelPath    string
	SourcePath string
	DestPath   string
	// Seq is the position of the job in the queueing order of the run.
	Seq int
	// Worker is the id of the worker processing the job. The producer
	// leaves it zero.
	Worker int
}

// File returns the view of the job handed to extension hooks.
func (j Job) File() extension.File {
	return extension.File{
		Path:       j.RelPath,
		SourcePath: j.SourcePath,
		OutputPath: j.DestPath,
		Language:   j.Language,
		ID:         j.ID,
		Kind:       string(j.Kind),
		Seq:        j.Seq,
		Worker:     j.Worker,
	}
}

// State is the lifecycle state of an Engine.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCancelling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCancelling:
		return "cancelling"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

package events

import "time"

// Kind discriminates events.
type Kind string

const (
	KindProgress Kind = "progress"
	KindResult   Kind = "result"
	KindLog      Kind = "log"
	KindError    Kind = "error"
	KindUnknown  Kind = "unknown"
	KindComplete Kind = "complete"
)

// Stream names the origin of an event.
type Stream string

const (
	StreamStdout     Stream = "stdout"
	StreamStderr     Stream = "stderr"
	StreamSupervisor Stream = "supervisor"
)

// CompletionSource records how a completion was detected.
type CompletionSource string

const (
	// SourceStructured is a {"type":"complete"} record from the worker.
	SourceStructured CompletionSource = "structured"
	// SourceHeuristic is a marker phrase found in free-text output.
	SourceHeuristic CompletionSource = "heuristic"
	// SourceSynthetic is derived by the supervisor from the exit code.
	SourceSynthetic CompletionSource = "synthetic"
)

// Progress reports batch advancement.
type Progress struct {
	Current int
	Total   int
	Item    string
	Phase   string
	Message string
	// percent is set when the worker reports one directly.
	percent float64
}

// Percent returns completion in [0,100], or -1 when unknown.
func (p Progress) Percent() float64 {
	if p.percent > 0 {
		return min(p.percent, 100)
	}
	if p.Total <= 0 {
		return -1
	}
	pct := float64(p.Current) / float64(p.Total) * 100
	return max(0, min(pct, 100))
}

// Result reports one finished work item.
type Result struct {
	ID      string
	Success bool
	Message string
	Output  string
}

// Completion is the terminal signal of a run.
type Completion struct {
	Success bool
	// ExitCode is the worker's exit status. It is known for completions
	// published at exit (synthetic and heuristic) and is -1 otherwise.
	ExitCode int
	Source   CompletionSource
	Message  string
}

// Event is one parsed record. Seq is assigned by the status bus.
type Event struct {
	Kind   Kind
	Seq    uint64
	Time   time.Time
	Stream Stream
	RunID  string
	// Type is the discriminator as the worker wrote it.
	Type    string
	Message string
	Raw     string

	Progress   *Progress
	Result     *Result
	Completion *Completion
}

// IsSuccessfulResult reports whether the event marks an item as done.
func (e Event) IsSuccessfulResult() bool {
	return e.Kind == KindResult && e.Result != nil && e.Result.Success && e.Result.ID != ""
}

package catalog

// Phase is the lifecycle position of a package.
type Phase string

const (
	// PhaseFetched is the initial phase: known remotely, not installed.
	PhaseFetched     Phase = "fetched"
	PhaseDownloading Phase = "downloading"
	PhaseExtracting  Phase = "extracting"
	// PhaseInstalled and PhaseErrored are terminal; only a fresh install
	// attempt leaves them, re-entering at PhaseDownloading.
	PhaseInstalled Phase = "installed"
	PhaseErrored   Phase = "errored"
)

// ProgressIndeterminate marks a phase that cannot report numeric progress.
const ProgressIndeterminate = -1.0

// State pairs a phase with its progress. Progress is a 0..100 percentage
// for downloading and extracting; a negative value means the phase is
// running but cannot report how far along it is.
type State struct {
	Phase    Phase   `json:"phase"`
	Progress float64 `json:"progress,omitempty"`
}

// NewState returns the initial state for a freshly fetched package.
func NewState() State {
	return State{Phase: PhaseFetched}
}

// InstalledState returns the terminal state carried by installed registry
// entries.
func InstalledState() State {
	return State{Phase: PhaseInstalled, Progress: 100}
}

// Determinate reports whether the state carries a usable progress value.
func (s State) Determinate() bool {
	return s.Progress >= 0
}

// EventKind names one install pipeline notification.
type EventKind string

const (
	EventStarted             EventKind = "started"
	EventDownloadProgress    EventKind = "download-progress"
	EventFinishedDownloading EventKind = "finished-downloading"
	EventExtractionProgress  EventKind = "extraction-progress"
	EventFinishedExtracting  EventKind = "finished-extracting"
	EventFinishedInstalling  EventKind = "finished-installing"
	EventErrored             EventKind = "errored"
)

// Event is one notification emitted by an install pipeline. Exactly one
// started event opens an attempt and exactly one errored or
// finished-installing event closes it. Progress values within a phase are
// non-decreasing but may repeat.
type Event struct {
	Kind     EventKind
	Progress float64
	Err      error
}

// Apply returns the state after ev. The finished-downloading and
// finished-extracting kinds are transition points between phases, not
// phases themselves, so they leave the state untouched.
func (s State) Apply(ev Event) State {
	switch ev.Kind {
	case EventStarted:
		return State{Phase: PhaseDownloading, Progress: 0}
	case EventDownloadProgress:
		return State{Phase: PhaseDownloading, Progress: ev.Progress}
	case EventExtractionProgress:
		return State{Phase: PhaseExtracting, Progress: ev.Progress}
	case EventFinishedInstalling:
		return InstalledState()
	case EventErrored:
		return State{Phase: PhaseErrored}
	case EventFinishedDownloading, EventFinishedExtracting:
		return s
	}
	return s
}

package strategy

// EventType distinguishes progress from terminal events.
type EventType int

const (
	EventProgress EventType = iota
	EventSuccess
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventSuccess:
		return "success"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one report from a Strategy about a single file.
type Event struct {
	Type     EventType
	Progress float64 // percentage, for EventProgress
	FileID   string  // for EventSuccess
	Err      error   // for EventError
}

// Progress reports pct percent transferred.
func Progress(pct float64) Event {
	return Event{Type: EventProgress, Progress: pct}
}

// Succeeded reports completion with the identifier assigned to the file.
func Succeeded(fileID string) Event {
	return Event{Type: EventSuccess, FileID: fileID}
}

// Failed reports a failed upload.
func Failed(err error) Event {
	return Event{Type: EventError, Err: err}
}

// Terminal reports whether e ends the upload.
func (e Event) Terminal() bool {
	return e.Type == EventSuccess || e.Type == EventError
}

package domain

// Event is one message on a run's Event Bus. The type-specific fields sit
// flat on the struct; Type discriminates which ones are set.
type Event struct {
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id"`
	Total     int       `json:"total,omitempty"`
	Msg       string    `json:"msg,omitempty"`
	Done      int       `json:"done,omitempty"`
	CostSoFar float64   `json:"cost_so_far,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Started builds a Started event.
func Started(runID string, total int) Event {
	return Event{Type: EventTypeStarted, RunID: runID, Total: total}
}

// Log builds a Log event.
func Log(runID, msg string) Event {
	return Event{Type: EventTypeLog, RunID: runID, Msg: msg}
}

// Progress builds a Progress event.
func Progress(runID string, done, total int, costSoFar float64) Event {
	return Event{Type: EventTypeProgress, RunID: runID, Done: done, Total: total, CostSoFar: costSoFar}
}

// Finished builds a Finished event.
func Finished(runID string) Event {
	return Event{Type: EventTypeFinished, RunID: runID}
}

// Failed builds a Failed event.
func Failed(runID, errMsg string) Event {
	return Event{Type: EventTypeFailed, RunID: runID, Error: errMsg}
}

// IsTerminal reports whether the event ends a run's stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventTypeFinished || e.Type == EventTypeFailed
}

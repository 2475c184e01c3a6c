package sim

import "fmt"

// EventKind classifies what happened on the simulated bus.
type EventKind string

// Event kinds.
const (
	EventSetup      EventKind = "setup"
	EventOut        EventKind = "out"
	EventIn         EventKind = "in"
	EventStall      EventKind = "stall"
	EventStageStart EventKind = "stage-start"
	EventStageEnd   EventKind = "stage-end"
	EventReset      EventKind = "reset"
	EventSpeed      EventKind = "speed"
	EventSuspend    EventKind = "suspend"
	EventResume     EventKind = "resume"
	EventVBus       EventKind = "vbus"
	EventError      EventKind = "error"
)

// Event is one entry of the bus log. Host events are logged when they
// are injected; device events when the controller commits them.
type Event struct {
	Seq  int
	Kind EventKind
	EP   int
	Data []byte
	Note string
}

// String returns a one-line description of the event.
func (e Event) String() string {
	s := fmt.Sprintf("#%d %s ep%d", e.Seq, e.Kind, e.EP)
	if len(e.Data) > 0 {
		s += fmt.Sprintf(" [% X]", e.Data)
	}
	if e.Note != "" {
		s += " " + e.Note
	}
	return s
}

func (s *Sim) log(kind EventKind, ep int, data []byte, note string) {
	e := Event{Seq: len(s.events), Kind: kind, EP: ep, Note: note}
	if len(data) > 0 {
		e.Data = append([]byte(nil), data...)
	}
	s.events = append(s.events, e)
}

// Events returns a copy of the bus log.
func (s *Sim) Events() []Event {
	return append([]Event(nil), s.events...)
}

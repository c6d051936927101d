package domain

// EventKind tags the variants of Event.
type EventKind string

const (
	EventOutcome  EventKind = "outcome"
	EventTerminal EventKind = "terminal"
)

// Event is a progress record in a run's log. The set of variants is closed:
// OutcomeEvent and TerminalEvent.
type Event interface {
	Sequence() uint64
	Kind() EventKind
	Run() string
	isEvent()
}

// OutcomeEvent announces that one target finished processing.
type OutcomeEvent struct {
	Seq     uint64
	RunID   string
	Outcome Outcome
}

func (e OutcomeEvent) Sequence() uint64 { return e.Seq }
func (e OutcomeEvent) Kind() EventKind  { return EventOutcome }
func (e OutcomeEvent) Run() string      { return e.RunID }
func (OutcomeEvent) isEvent()           {}

// TerminalEvent is the last event of every run.
type TerminalEvent struct {
	Seq       uint64
	RunID     string
	State     RunState
	Totals    Totals
	Cancelled bool
	Error     string
}

func (e TerminalEvent) Sequence() uint64 { return e.Seq }
func (e TerminalEvent) Kind() EventKind  { return EventTerminal }
func (e TerminalEvent) Run() string      { return e.RunID }
func (TerminalEvent) isEvent()           {}

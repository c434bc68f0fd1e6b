// Package runner executes user code and streams the process output back
// to the owning session, either through a local pseudo-terminal or the
// remote Piston API.
package runner

// Event types delivered to the client. Every execute request produces
// zero or more output events and exactly one execution_complete.
const (
	EventOutput   = "output"
	EventComplete = "execution_complete"
	EventError    = "error"
)

// Event is one message streamed back to the session.
type Event struct {
	Type     string
	Data     string
	ExitCode *int
}

// Emitter delivers events to the client, in call order.
type Emitter func(Event)

// Request is one execute call from a client.
type Request struct {
	Language string
	Code     string
	FileName string
	Command  string
	Mode     string
}

// Proc is a running foreground process attached to a session: input is
// forwarded to it verbatim, and it can be killed on teardown.
type Proc interface {
	Write(data string) error
	Kill() error
}

// Session is the slice of session state the runners need: identity plus
// the attached-process slot managed by the supervisor.
type Session interface {
	ID() string
	// Attach records p as the session's foreground process along with the
	// cleanup to run if the session is torn down while p is alive.
	Attach(p Proc, cleanup func())
	// Detach clears the foreground slot after p exits. A stale detach
	// (the slot now holds a replacement process) must leave the slot
	// untouched, so callers pass the process they own.
	Detach(p Proc)
}

func output(emit Emitter, data string) {
	emit(Event{Type: EventOutput, Data: data})
}

func complete(emit Emitter, exitCode *int) {
	emit(Event{Type: EventComplete, ExitCode: exitCode})
}

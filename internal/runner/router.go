package runner

import (
	"context"
	"fmt"

	"github.com/michaelbrown/runbox/internal/language"
)

// Execution modes. Legacy clients may still send "docker" or "piston";
// both map onto remote.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
	ModeAuto   = "auto"
)

// ecosystemLanguages default to local mode: the host can install missing
// dependencies into the persistent package cache on demand, which the
// stateless remote API cannot.
var ecosystemLanguages = map[string]bool{
	"python":     true,
	"javascript": true,
	"typescript": true,
	"java":       true,
}

// Shell handles raw terminal commands for a session. Implemented by the
// terminal manager; its output flows over the session's terminal events.
type Shell interface {
	RunCommand(sessionID, command string)
}

// Router validates execute requests and dispatches them to the local or
// remote runner. It guarantees the completion invariant on every
// validation path; the runners guarantee it past dispatch.
type Router struct {
	Registry    *language.Registry
	Local       *Local
	Remote      *Piston
	Shell       Shell
	DefaultMode string
}

// ResolveMode maps a request's mode override (or its absence) onto local
// or remote.
func (r *Router) ResolveMode(requested, lang string) string {
	mode := requested
	if mode == "" || mode == ModeAuto {
		mode = r.DefaultMode
	}
	switch mode {
	case ModeLocal:
		return ModeLocal
	case ModeRemote, "docker", "piston":
		return ModeRemote
	default:
		// Auto (or unrecognized) falls back to the dependency heuristic.
		if ecosystemLanguages[lang] {
			return ModeLocal
		}
		return ModeRemote
	}
}

// Execute runs one request for the session, streaming events to emit.
func (r *Router) Execute(ctx context.Context, sess Session, req Request, emit Emitter) {
	if req.Language == language.Terminal {
		// The remote sandbox has no concept of a standalone shell
		// session; terminal commands always run locally.
		if req.Command == "" {
			emit(Event{Type: EventError, Data: "missing required field: command"})
			complete(emit, nil)
			return
		}
		if r.Shell == nil {
			emit(Event{Type: EventError, Data: "terminal execution is not available"})
			complete(emit, nil)
			return
		}
		r.Shell.RunCommand(sess.ID(), req.Command)
		complete(emit, nil)
		return
	}

	if req.Language == "" || req.Code == "" || req.FileName == "" {
		emit(Event{Type: EventError, Data: "missing required fields: language, code, fileName"})
		complete(emit, nil)
		return
	}

	desc, err := r.Registry.Lookup(req.Language)
	if err != nil {
		output(emit, fmt.Sprintf("Error: unsupported language: %s\n", req.Language))
		complete(emit, nil)
		return
	}

	switch r.ResolveMode(req.Mode, req.Language) {
	case ModeLocal:
		r.Local.Run(ctx, sess, desc, req.Code, req.FileName, emit)
	default:
		r.Remote.Run(ctx, desc, req.Code, req.FileName, emit)
	}
}

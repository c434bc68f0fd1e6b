package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/michaelbrown/runbox/internal/runner"
	"github.com/michaelbrown/runbox/internal/storage"
)

// wsIncoming is a message from the client.
type wsIncoming struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Command  string `json:"command,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Data     string `json:"data,omitempty"`
	Path     string `json:"path,omitempty"`
	NewPath  string `json:"newPath,omitempty"`
	Content  string `json:"content,omitempty"`
}

// wsOutgoing is a message to the client.
type wsOutgoing struct {
	Type     string `json:"type"`
	Data     string `json:"data,omitempty"`
	ExitCode *int   `json:"exitCode,omitempty"`
	Cwd      string `json:"cwd,omitempty"`
	Busy     *bool  `json:"busy,omitempty"`
	Path     string `json:"path,omitempty"`
	Content  string `json:"content,omitempty"`
	Files    any    `json:"files,omitempty"`
}

// wsConn wraps a websocket connection with a write mutex; events arrive
// from the read loop, runner goroutines, and the terminal manager.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("websocket write error: %v", err)
	}
}

func (s *Server) upgrader() websocket.Upgrader {
	allowed := s.cfg.Server.AllowedOrigins
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, a := range allowed {
				if a == "*" || a == origin {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	sessionID := uuid.New().String()
	userID := r.URL.Query().Get("user")
	if userID == "" {
		userID = sessionID
	}

	sess := s.sessions.GetOrCreate(sessionID, userID)
	wc := &wsConn{conn: conn}

	s.connMu.Lock()
	s.conns[sessionID] = wc
	s.connMu.Unlock()

	log.Printf("session %s connected (user %s)", sessionID, userID)

	// Disconnect tears everything down: running process, terminal shell,
	// workspace.
	defer func() {
		log.Printf("session %s disconnected", sessionID)
		s.connMu.Lock()
		delete(s.conns, sessionID)
		s.connMu.Unlock()
		s.sessions.Remove(sessionID)
		s.terminals.Close(sessionID)
	}()

	for {
		var msg wsIncoming
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Printf("websocket read error: %v", err)
			return
		}

		s.dispatch(r.Context(), sess, wc, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, sess *Session, wc *wsConn, msg wsIncoming) {
	switch msg.Type {
	case "execute":
		req := runner.Request{
			Language: msg.Language,
			Code:     msg.Code,
			FileName: msg.FileName,
			Command:  msg.Command,
			Mode:     msg.Mode,
		}
		// Runs in its own goroutine so the read loop keeps serving input
		// events while the program runs.
		go s.runner.Execute(context.Background(), sess, req, func(ev runner.Event) {
			switch ev.Type {
			case runner.EventOutput:
				wc.writeJSON(wsOutgoing{Type: "output", Data: ev.Data})
			case runner.EventComplete:
				wc.writeJSON(wsOutgoing{Type: "execution_complete", ExitCode: ev.ExitCode})
			case runner.EventError:
				wc.writeJSON(wsOutgoing{Type: "error", Data: ev.Data})
			}
		})

	case "input":
		if err := sess.Forward(msg.Data); err != nil {
			log.Printf("session %s: input dropped: %v", sess.ID(), err)
		}

	case "kill":
		sess.Kill()

	case "terminal:init":
		if err := s.terminals.Init(sess.ID(), s.terminalRoot(sess.UserID())); err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
		}

	case "terminal:input":
		s.terminals.HandleInput(sess.ID(), msg.Data)

	case "files:list":
		nodes, err := s.store.List(ctx, sess.UserID())
		if err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "files:list", Files: storage.BuildTree(nodes)})

	case "file:read":
		content, err := s.store.Read(ctx, sess.UserID(), msg.Path)
		if err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "file:content", Path: msg.Path, Content: content})

	case "file:save":
		if err := s.store.Save(ctx, sess.UserID(), msg.Path, msg.Content); err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "file:saved", Path: msg.Path})

	case "file:mkdir":
		if err := s.store.Mkdir(ctx, sess.UserID(), msg.Path); err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "file:created", Path: msg.Path})

	case "file:delete":
		if err := s.store.Delete(ctx, sess.UserID(), msg.Path); err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "file:deleted", Path: msg.Path})

	case "file:rename":
		if err := s.store.Rename(ctx, sess.UserID(), msg.Path, msg.NewPath); err != nil {
			wc.writeJSON(wsOutgoing{Type: "error", Data: err.Error()})
			return
		}
		wc.writeJSON(wsOutgoing{Type: "file:renamed", Path: msg.NewPath})

	default:
		wc.writeJSON(wsOutgoing{Type: "error", Data: "unknown message type: " + msg.Type})
	}
}

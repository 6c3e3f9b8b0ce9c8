package enrich

import (
	"sync"

	"github.com/google/uuid"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// Progress is published after each record is decided.
type Progress struct {
	SessionID  string             `json:"session_id"`
	Position   int                `json:"position"`
	Total      int                `json:"total"`
	Identifier string             `json:"identifier"`
	Decision   model.DecisionKind `json:"decision"`
	Done       int                `json:"done"`
}

// Session owns the progress channel of a single batch run. It is created by
// the caller, handed to Runner.Run, and closed when the run returns.
type Session struct {
	ID     string
	Events chan Progress

	mu     sync.Mutex
	done   int
	closed bool
}

// NewSession creates a session whose channel buffers up to buffer events.
// Events that do not fit are dropped rather than blocking the run.
func NewSession(buffer int) *Session {
	if buffer < 0 {
		buffer = 0
	}
	return &Session{
		ID:     uuid.NewString(),
		Events: make(chan Progress, buffer),
	}
}

func (s *Session) publish(p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.done++
	p.SessionID = s.ID
	p.Done = s.done
	select {
	case s.Events <- p:
	default:
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Events)
	}
}

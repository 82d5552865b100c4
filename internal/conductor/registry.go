package conductor

import (
	"io"
	"log/slog"
	"sort"
	"sync"
)

// session is one registry entry. The stdin pipe is either held here or checked
// out to exactly one writer.
type session struct {
	proc       process
	stdin      io.WriteCloser
	checkedOut bool
	status     Status
}

// Registry maps agent IDs to their running sessions. All methods are safe for
// concurrent use; a *Registry is shared between the command handlers and the
// runners it spawns.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	logger   *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*session),
		logger:   logger,
	}
}

// Insert installs a session for agentID, terminating any session it replaces.
// On a closed registry the new session is terminated instead and Insert
// reports false.
func (r *Registry) Insert(agentID string, proc process, stdin io.WriteCloser, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.terminate(agentID, &session{proc: proc, stdin: stdin, status: status})
		return false
	}
	if old, ok := r.sessions[agentID]; ok {
		delete(r.sessions, agentID)
		r.logger.Info("replacing running session", "agent_id", agentID, "pid", old.proc.Pid())
		r.terminate(agentID, old)
	}
	r.sessions[agentID] = &session{proc: proc, stdin: stdin, status: status}
	return true
}

// TakeStdin checks the session's stdin out for writing. It reports false when
// there is no session or another writer holds the pipe.
func (r *Registry) TakeStdin(agentID string) (io.WriteCloser, bool) {
	return r.takeStdin(agentID, nil)
}

func (r *Registry) takeStdin(agentID string, owner process) (io.WriteCloser, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[agentID]
	if !ok || s.checkedOut || (owner != nil && s.proc != owner) {
		return nil, false
	}
	s.checkedOut = true
	return s.stdin, true
}

// ReturnStdin hands a checked-out pipe back. If the session it came from is
// gone the pipe is closed instead.
func (r *Registry) ReturnStdin(agentID string, stdin io.WriteCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[agentID]; ok && s.checkedOut && s.stdin == stdin {
		s.checkedOut = false
		return
	}
	stdin.Close()
}

// Kill removes the session and kills and reaps its child. Unknown IDs are a
// no-op.
func (r *Registry) Kill(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[agentID]; ok {
		delete(r.sessions, agentID)
		r.terminate(agentID, s)
	}
}

// release removes the session only if it still belongs to proc.
func (r *Registry) release(agentID string, proc process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[agentID]; ok && s.proc == proc {
		delete(r.sessions, agentID)
		r.terminate(agentID, s)
	}
}

// IsAlive reports whether agentID has a running child that can accept input.
// A session whose child has exited is removed.
func (r *Registry) IsAlive(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[agentID]
	if !ok || s.checkedOut {
		return false
	}
	exited, err := s.proc.Exited()
	if err != nil {
		return false
	}
	if exited {
		delete(r.sessions, agentID)
		r.terminate(agentID, s)
		return false
	}
	return true
}

// SetStatus overwrites the session's status. Unknown IDs are a no-op.
func (r *Registry) SetStatus(agentID string, status Status) {
	r.setStatus(agentID, nil, status)
}

func (r *Registry) setStatus(agentID string, owner process, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[agentID]; ok && (owner == nil || s.proc == owner) {
		s.status = status
	}
}

// Status returns the session's status and whether the session exists.
func (r *Registry) Status(agentID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[agentID]
	if !ok {
		return 0, false
	}
	return s.status, true
}

// List returns a snapshot of all sessions ordered by agent ID.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for id, s := range r.sessions {
		infos = append(infos, SessionInfo{AgentID: id, Status: s.status, PID: s.proc.Pid()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].AgentID < infos[j].AgentID })
	return infos
}

// KillAll terminates every session.
func (r *Registry) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killAllLocked()
}

// Close is KillAll for shutdown: later inserts fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.killAllLocked()
}

func (r *Registry) killAllLocked() {
	for id, s := range r.sessions {
		delete(r.sessions, id)
		r.terminate(id, s)
	}
}

// terminate closes the session's stdin unless a writer holds it, then kills
// and reaps the child. Callers hold r.mu and have already unlinked s.
func (r *Registry) terminate(agentID string, s *session) {
	if !s.checkedOut {
		s.stdin.Close()
	}
	if err := s.proc.Kill(); err != nil {
		r.logger.Warn("failed to kill claude process", "agent_id", agentID, "pid", s.proc.Pid(), "error", err)
	}
}

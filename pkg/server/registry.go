package server

import (
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/chatrelay/pkg/model"
)

// Registry tracks active client sessions keyed by username. It is shared by
// the dispatch loop and the heartbeat monitor, so every access holds the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session // username -> session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*model.Session),
	}
}

// Register inserts a session for the username, replacing any existing one.
// A replaced session's old socket is simply orphaned; it ages out via the
// heartbeat timeout.
func (r *Registry) Register(username string, addr *net.UDPAddr, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[username] = &model.Session{
		Username:      username,
		Addr:          addr,
		Channel:       channel,
		LastHeartbeat: time.Now(),
	}
}

// Lookup returns a copy of the session for username, if one is active.
func (r *Registry) Lookup(username string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[username]
	if !ok {
		return model.Session{}, false
	}
	return *s, true
}

// UpdateChannel points the session at a new channel. Reports whether the
// session exists.
func (r *Registry) UpdateChannel(username, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	if !ok {
		return false
	}
	s.Channel = channel
	return true
}

// Heartbeat refreshes the session's liveness timestamp. Reports whether the
// session exists.
func (r *Registry) Heartbeat(username string, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	if !ok {
		return false
	}
	s.LastHeartbeat = at
	return true
}

// Remove deletes the session for username.
func (r *Registry) Remove(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, username)
}

// Evict removes the session only if its last heartbeat is still before
// cutoff, and returns a copy of the removed session. A heartbeat that lands
// between the monitor's snapshot and this call keeps the session alive.
func (r *Registry) Evict(username string, cutoff time.Time) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[username]
	if !ok || !s.LastHeartbeat.Before(cutoff) {
		return model.Session{}, false
	}
	delete(r.sessions, username)
	return *s, true
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time copy of all sessions.
func (r *Registry) Snapshot() []model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, *s)
	}
	return result
}

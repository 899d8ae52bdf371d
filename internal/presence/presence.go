// Package presence owns the client-identity registry backing link stealing:
// which session currently holds each logical client id.
package presence

import (
	"errors"
	"sync"
)

var ErrIdentityTaken = errors.New("presence: client identity already bound")

// Handle is the minimal view of a session the registry needs.
type Handle interface {
	ID() int32
	ForceClose(reason string)
}

// Registry maps client identity to the owning session. Safe for concurrent
// use by every connection goroutine.
type Registry struct {
	mu       sync.RWMutex
	byClient map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{byClient: make(map[string]Handle)}
}

// Bind claims clientID for h and reports whether an existing holder was
// displaced. If another session holds the identity and steal is true, the
// previous holder is force-closed; if steal is false the bind fails with
// ErrIdentityTaken and the existing session keeps the identity.
func (r *Registry) Bind(clientID string, h Handle, steal bool) (bool, error) {
	if clientID == "" {
		return false, nil
	}
	r.mu.Lock()
	prev, held := r.byClient[clientID]
	displacing := held && prev.ID() != h.ID()
	if displacing && !steal {
		r.mu.Unlock()
		return false, ErrIdentityTaken
	}
	r.byClient[clientID] = h
	r.mu.Unlock()

	if displacing {
		prev.ForceClose("link stolen by new connection")
	}
	return displacing, nil
}

// Release drops the binding, but only if h still holds it; a session stolen
// from must not unbind its thief on the way out.
func (r *Registry) Release(clientID string, h Handle) {
	if clientID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byClient[clientID]; ok && cur.ID() == h.ID() {
		delete(r.byClient, clientID)
	}
}

// Lookup returns the session currently bound to clientID.
func (r *Registry) Lookup(clientID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byClient[clientID]
	return h, ok
}

// Len reports how many identities are bound.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byClient)
}

// Package presence tracks which users have a live push connection on this instance.
package presence

import (
	"sort"
	"sync"

	"github.com/karthikraju391/go-chat-sync-server/models"
)

// Conn is a live connection handle. Implementations must be comparable
// (pointer receivers) since the registry matches handles by identity.
type Conn interface {
	Push(event models.LifecycleEvent) error
}

// Registry maps a user id to its current connection.
// The zero value is not usable, use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	users  map[string]Conn // user -> current connection
	owners map[Conn]string // connection -> user it is registered for
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]Conn),
		owners: make(map[Conn]string),
	}
}

// Register installs conn as the connection of userID, superseding any previous one.
// The superseded connection is not closed here. A connection registered again
// under another user id leaves its previous user offline.
func (r *Registry) Register(userID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previousUser, ok := r.owners[conn]; ok && previousUser != userID {
		delete(r.users, previousUser)
	}
	if previous, ok := r.users[userID]; ok && previous != conn {
		delete(r.owners, previous)
	}
	r.users[userID] = conn
	r.owners[conn] = userID
}

// Unregister removes the mapping whose current value is exactly conn.
// A late disconnect of a superseded connection is a no-op, so it never evicts
// the newer connection of the same user.
func (r *Registry) Unregister(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[conn]
	if !ok {
		return "", false
	}
	delete(r.owners, conn)
	if r.users[userID] == conn {
		delete(r.users, userID)
	}
	return userID, true
}

// Lookup returns the current connection of userID. The handle may already be
// dead by the time it is used.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.users[userID]
	return conn, ok
}

// Online returns the sorted ids of connected users.
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

/*
Package chat contains the core logic for presence tracking, message routing,
and the per-connection session loops.

This file defines the Registry, the single source of truth for which
usernames are currently reachable. All operations are atomic; the lock is
held only for the map operation itself, never across an enqueue.
*/
package chat

import (
	"errors"
	"sort"
	"sync"
)

// ErrAlreadyPresent is returned by Bind when the username already has a live binding.
var ErrAlreadyPresent = errors.New("username already bound")

// Outbound is the enqueue side of one connection's mailbox. The Registry
// holds it only to enqueue, never to drain; the owning connection's writer
// loop is the sole consumer.
type Outbound interface {
	// Enqueue queues a frame for delivery without blocking. It reports
	// false when the frame was dropped because the mailbox is full or closed.
	Enqueue(message []byte) bool
}

// Entry is one live presence binding.
type Entry struct {
	Username string
	ImageID  int64
	Out      Outbound
}

// Registry maps usernames to their connection's outbound mailbox.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Bind adds a presence binding. A username can hold at most one binding;
// a second Bind fails with ErrAlreadyPresent and leaves the first untouched.
func (r *Registry) Bind(username string, imageID int64, out Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[username]; exists {
		return ErrAlreadyPresent
	}

	r.entries[username] = Entry{
		Username: username,
		ImageID:  imageID,
		Out:      out,
	}

	return nil
}

// Unbind removes the binding for username. Unbinding an absent username is
// a no-op; the return value reports whether a binding was actually removed.
func (r *Registry) Unbind(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[username]; !exists {
		return false
	}

	delete(r.entries, username)
	return true
}

// Lookup returns the outbound mailbox bound to username.
func (r *Registry) Lookup(username string) (Outbound, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[username]
	if !ok {
		return nil, false
	}
	return entry.Out, true
}

// IsPresent reports whether username currently has a binding.
func (r *Registry) IsPresent(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[username]
	return ok
}

// Snapshot returns a copy of all current bindings, ordered by image id.
// Callers fan out to the copy after the lock is released.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ImageID < entries[j].ImageID
	})

	return entries
}

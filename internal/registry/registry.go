// Package registry tracks the live set of source units, keyed by path.
package registry

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/vbsb/internal/apperr"
	"github.com/starford/vbsb/internal/models"
)

// NotFoundError is returned when removing a unit that is not tracked.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: cannot remove %s: %v", e.Path, apperr.ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return apperr.ErrNotFound }

// Registry holds at most one unit per path and remembers insertion order.
//
// Writes come from the pipeline only; the mutex exists for the status API and
// MCP readers.
type Registry struct {
	mu    sync.RWMutex
	units *orderedmap.OrderedMap[string, models.Unit]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{units: orderedmap.New[string, models.Unit]()}
}

// Add tracks u. Adding a path that is already tracked replaces the stored
// unit but keeps its position.
func (r *Registry) Add(u models.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units.Set(u.Path, u)
}

// Remove stops tracking the unit with u's path.
func (r *Registry) Remove(u models.Unit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units.Delete(u.Path); !ok {
		return &NotFoundError{Path: u.Path}
	}
	return nil
}

// Get returns the unit tracked at path.
func (r *Registry) Get(path string) (models.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.units.Get(path)
}

// Len returns the number of tracked units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.units.Len()
}

// Units returns a snapshot of all tracked units in insertion order.
func (r *Registry) Units() []models.Unit {
	return r.collect(func(models.Unit) bool { return true })
}

// NonTest returns the tracked units that belong in the bundle.
func (r *Registry) NonTest() []models.Unit {
	return r.collect(func(u models.Unit) bool { return !u.IsTest })
}

func (r *Registry) collect(keep func(models.Unit) bool) []models.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Unit, 0, r.units.Len())
	for pair := r.units.Oldest(); pair != nil; pair = pair.Next() {
		if keep(pair.Value) {
			out = append(out, pair.Value)
		}
	}
	return out
}

package modelreg

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Status describes the served model. Retraining is a stub: it bumps the
// patch version and records who asked; actual training happens offline.
type Status struct {
	Name        string     `json:"name"`
	Version     string     `json:"version"`
	LastTrained *time.Time `json:"last_trained,omitempty"`
	TrainedBy   string     `json:"trained_by,omitempty"`
	SamplesUsed int        `json:"samples_used"`
	Notes       string     `json:"notes,omitempty"`
}

// Registry owns the model status. Guarded by a mutex instead of living as a
// package-level singleton so handlers receive it by injection.
type Registry struct {
	mu     sync.Mutex
	status Status
}

// New creates a registry for one named model version.
func New(name, version string) *Registry {
	return &Registry{status: Status{Name: name, Version: version}}
}

// Status returns a snapshot of the current model status.
func (r *Registry) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Retrain bumps the patch version and records the request metadata.
func (r *Registry) Retrain(by string, samples int, notes string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	r.status.Version = bumpPatch(r.status.Version)
	r.status.LastTrained = &now
	r.status.TrainedBy = by
	r.status.SamplesUsed = samples
	r.status.Notes = notes
	return r.status
}

// bumpPatch increments the last numeric component of a version like
// "v0.0.1". Unparsable versions get a ".1" appended.
func bumpPatch(version string) string {
	parts := strings.Split(version, ".")
	last := parts[len(parts)-1]
	n, err := strconv.Atoi(last)
	if err != nil {
		return version + ".1"
	}
	parts[len(parts)-1] = strconv.Itoa(n + 1)
	return strings.Join(parts, ".")
}

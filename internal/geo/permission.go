package geo

import (
	"context"
	"log"
	"sync"
)

// PermissionGate tracks the device's location-permission state and notifies
// listeners on transitions. The platform may grant or revoke permission
// outside the app's control (OS settings), so the gate is the single source
// of truth the tracker consults before and during a session.
type PermissionGate struct {
	mu        sync.RWMutex
	state     PermissionState
	querier   PermissionQuerier // nil when the provider can't be queried
	listeners map[int]func(PermissionState)
	nextID    int
}

// NewPermissionGate creates a gate for the given provider. If the provider
// cannot report permission state, the gate defaults to "prompt" and discovers
// the real state from the sampler's error channel.
func NewPermissionGate(provider Provider) *PermissionGate {
	g := &PermissionGate{
		state:     PermissionPrompt,
		listeners: make(map[int]func(PermissionState)),
	}
	if q, ok := provider.(PermissionQuerier); ok {
		g.querier = q
	}
	return g
}

// Check queries the current permission state without prompting the user
func (g *PermissionGate) Check(ctx context.Context) PermissionState {
	if g.querier == nil {
		return g.State()
	}

	state, err := g.querier.QueryPermission(ctx)
	if err != nil {
		log.Printf("⚠️  Permission query failed: %v (assuming %s)", err, g.State())
		return g.State()
	}

	g.set(state)
	return state
}

// State returns the last known permission state
func (g *PermissionGate) State() PermissionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// OnChange registers a callback for permission transitions. The returned
// cancel function is honored exactly once; further calls are no-ops.
func (g *PermissionGate) OnChange(fn func(PermissionState)) (cancel func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = fn
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// ReportGranted records a successful position fix as proof of granted
// permission. No-op if the state is already granted.
func (g *PermissionGate) ReportGranted() {
	g.set(PermissionGranted)
}

// ReportDenied records a PermissionDenied error from the provider.
// Listeners are invoked synchronously so an active tracker stops before
// any further sample is honored.
func (g *PermissionGate) ReportDenied() {
	g.set(PermissionDenied)
}

func (g *PermissionGate) set(state PermissionState) {
	g.mu.Lock()
	if g.state == state {
		g.mu.Unlock()
		return
	}
	old := g.state
	g.state = state

	// Snapshot listeners so callbacks run without holding the lock
	fns := make([]func(PermissionState), 0, len(g.listeners))
	for _, fn := range g.listeners {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	log.Printf("🔐 Location permission: %s → %s", old, state)
	for _, fn := range fns {
		fn(state)
	}
}

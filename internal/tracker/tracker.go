package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"deliveryboy-agent/internal/geo"
)

// State is the tracking session lifecycle state
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
)

// Config holds the sync-policy tuning knobs. The defaults are a
// battery/bandwidth tradeoff carried over from the mobile client.
type Config struct {
	// SyncInterval forces a server sync after this much time since the
	// last one, even if the worker barely moved
	SyncInterval time.Duration

	// SyncDistanceMeters forces a sync once the worker moved this far
	// from the previous sample
	SyncDistanceMeters float64

	// HistoryLimit caps the in-memory sample history (newest first)
	HistoryLimit int
}

// DefaultConfig returns the production sync policy
func DefaultConfig() Config {
	return Config{
		SyncInterval:       30 * time.Second,
		SyncDistanceMeters: 50.0,
		HistoryLimit:       50,
	}
}

// Tracker owns the tracking session: it pulls samples from the sampler,
// maintains the last-known position and a bounded history, and pushes
// qualifying updates to the server through the Syncer.
type Tracker struct {
	sampler *geo.Sampler
	syncer  Syncer
	cfg     Config
	now     func() time.Time

	mu            sync.RWMutex
	state         State
	lastSample    *geo.PositionSample
	history       []geo.PositionSample // newest first
	lastSyncAt    time.Time            // zero = never synced
	lastError     string
	lastSyncError string
	sub           geo.Subscription
	generation    int
}

// Snapshot is a read-only view of the session for the status API
type Snapshot struct {
	State         State               `json:"state"`
	LastSample    *geo.PositionSample `json:"last_sample,omitempty"`
	HistorySize   int                 `json:"history_size"`
	LastSyncAt    *time.Time          `json:"last_sync_at,omitempty"`
	LastError     string              `json:"last_error,omitempty"`
	LastSyncError string              `json:"last_sync_error,omitempty"`
}

// New creates an idle tracker
func New(sampler *geo.Sampler, syncer Syncer, cfg Config) *Tracker {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Tracker{
		sampler: sampler,
		syncer:  syncer,
		cfg:     cfg,
		now:     time.Now,
		state:   StateIdle,
	}
}

// Start begins a tracking session. No-op if a session is already running.
// A single high-accuracy fix is requested first so permission prompts
// surface deterministically and a broken provider fails fast; only on
// success does the continuous watch begin.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateIdle {
		t.mu.Unlock()
		return nil
	}
	t.state = StateStarting
	t.lastError = ""
	gen := t.generation
	t.mu.Unlock()

	log.Println("📍 Starting location tracking (initial high-accuracy fix)...")

	sample, err := t.sampler.GetOnce(ctx, true)
	if err != nil {
		t.mu.Lock()
		if gen == t.generation {
			t.state = StateIdle
			t.lastError = err.Error()
		}
		t.mu.Unlock()
		log.Printf("❌ Location tracking failed to start: %v", err)
		return err
	}

	t.handleSample(gen, sample)

	sub, err := t.sampler.Watch(
		true,
		func(s geo.PositionSample) { t.handleSample(gen, s) },
		func(e error) { t.handleWatchError(gen, e) },
	)
	if err != nil {
		t.mu.Lock()
		if gen == t.generation {
			t.state = StateIdle
			t.lastError = err.Error()
		}
		t.mu.Unlock()
		log.Printf("❌ Location watch failed to start: %v", err)
		return err
	}

	t.mu.Lock()
	if gen != t.generation {
		// Stopped while the watch was being established
		t.mu.Unlock()
		sub.Cancel()
		return nil
	}
	t.state = StateActive
	t.sub = sub
	t.mu.Unlock()

	log.Println("✅ Location tracking active")
	return nil
}

// Stop ends the session and cancels the watch subscription. Idempotent,
// safe to call multiple times. Last sample and history are retained for
// display purposes.
func (t *Tracker) Stop() {
	t.mu.Lock()
	t.generation++
	sub := t.sub
	t.sub = nil
	wasRunning := t.state != StateIdle
	t.state = StateIdle
	t.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if wasRunning {
		log.Println("🛑 Location tracking stopped")
	}
}

// PermissionRevoked is wired to the permission gate: a transition to denied
// while a session is running stops the tracker immediately and records a
// user-visible error
func (t *Tracker) PermissionRevoked() {
	t.mu.RLock()
	running := t.state != StateIdle
	t.mu.RUnlock()
	if !running {
		return
	}

	log.Println("❌ Location permission revoked while tracking - stopping")
	t.Stop()

	t.mu.Lock()
	t.lastError = "Location permission denied"
	t.mu.Unlock()
}

// handleSample runs for every incoming fix, in delivery order. Late
// callbacks from a cancelled subscription carry a stale generation and
// are dropped.
func (t *Tracker) handleSample(gen int, sample geo.PositionSample) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return
	}

	prev := t.lastSample
	s := sample
	t.lastSample = &s

	// Sliding window, newest first
	t.history = append([]geo.PositionSample{s}, t.history...)
	if len(t.history) > t.cfg.HistoryLimit {
		t.history = t.history[:t.cfg.HistoryLimit]
	}

	shouldSync := t.shouldSyncLocked(prev, s)
	if shouldSync {
		t.lastSyncAt = t.now()
	}
	t.mu.Unlock()

	if shouldSync {
		go t.syncPosition(s)
	}
}

// shouldSyncLocked implements the hybrid time/distance throttle: sync when
// no sync has happened yet, when the sync interval elapsed, or when the
// worker moved beyond the distance threshold
func (t *Tracker) shouldSyncLocked(prev *geo.PositionSample, s geo.PositionSample) bool {
	if t.lastSyncAt.IsZero() {
		return true
	}
	if t.now().Sub(t.lastSyncAt) > t.cfg.SyncInterval {
		return true
	}
	if prev != nil {
		distance := HaversineMeters(prev.Latitude, prev.Longitude, s.Latitude, s.Longitude)
		if distance > t.cfg.SyncDistanceMeters {
			return true
		}
	}
	return false
}

// syncPosition pushes one sample to the server. Fire-and-forget: a failure
// is logged and the tracker waits for the next qualifying sample.
func (t *Tracker) syncPosition(s geo.PositionSample) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := t.syncer.SyncPosition(ctx, s); err != nil {
		log.Printf("⚠️  Location sync failed: %v (will retry on next qualifying sample)", err)
		t.mu.Lock()
		t.lastSyncError = err.Error()
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	t.lastSyncError = ""
	t.mu.Unlock()
}

func (t *Tracker) handleWatchError(gen int, err error) {
	t.mu.RLock()
	stale := gen != t.generation
	t.mu.RUnlock()
	if stale {
		return
	}

	if errors.Is(err, geo.ErrPermissionDenied) {
		t.PermissionRevoked()
		return
	}

	// Transient: stay subscribed, surface the condition
	log.Printf("⚠️  Position watch error: %v (continuing)", err)
	t.mu.Lock()
	t.lastError = err.Error()
	t.mu.Unlock()
}

// State returns the current lifecycle state
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LastSample returns the most recent fix, or nil before the first one
func (t *Tracker) LastSample() *geo.PositionSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastSample == nil {
		return nil
	}
	s := *t.lastSample
	return &s
}

// History returns a copy of the bounded sample history, newest first
func (t *Tracker) History() []geo.PositionSample {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]geo.PositionSample, len(t.history))
	copy(out, t.history)
	return out
}

// Snapshot returns the session view for the status API
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		State:         t.state,
		HistorySize:   len(t.history),
		LastError:     t.lastError,
		LastSyncError: t.lastSyncError,
	}
	if t.lastSample != nil {
		s := *t.lastSample
		snap.LastSample = &s
	}
	if !t.lastSyncAt.IsZero() {
		at := t.lastSyncAt
		snap.LastSyncAt = &at
	}
	return snap
}

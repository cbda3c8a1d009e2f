package agent

import (
	"context"
	"log"
	"sync"

	"deliveryboy-agent/internal/channel"
	"deliveryboy-agent/internal/geo"
	"deliveryboy-agent/internal/notify"
	"deliveryboy-agent/internal/tracker"
)

// Agent wires the device-state core together: the permission gate guards the
// tracker, the event channel feeds the dedup/present pipeline, and select
// event kinds trigger the host app's data refresh. All collaborators are
// injected at construction - nothing is discovered globally.
type Agent struct {
	gate      *geo.PermissionGate
	tracker   *tracker.Tracker
	channel   *channel.Channel
	deduper   *notify.Deduper
	presenter *notify.Presenter
	refresher notify.RefreshScheduler

	mu             sync.Mutex
	trackerStarted bool // one-shot latch per authenticated session
	gateCancel     func()
}

// Status is the combined snapshot served by the local status API
type Status struct {
	Permission       geo.PermissionState `json:"permission"`
	ChannelConnected bool                `json:"channel_connected"`
	Tracker          tracker.Snapshot    `json:"tracker"`
	Dedup            notify.DedupStats   `json:"dedup"`
	Toasts           []notify.Toast      `json:"toasts"`
}

// New assembles the agent and subscribes it to the channel and the gate
func New(
	gate *geo.PermissionGate,
	trk *tracker.Tracker,
	ch *channel.Channel,
	deduper *notify.Deduper,
	presenter *notify.Presenter,
	refresher notify.RefreshScheduler,
) *Agent {
	a := &Agent{
		gate:      gate,
		tracker:   trk,
		channel:   ch,
		deduper:   deduper,
		presenter: presenter,
		refresher: refresher,
	}

	ch.Subscribe(a.handleEvent)

	// Permission loss while tracking stops the tracker synchronously -
	// no tracker keeps running behind a denied permission
	a.gateCancel = gate.OnChange(func(state geo.PermissionState) {
		if state == geo.PermissionDenied {
			trk.PermissionRevoked()
		}
	})

	return a
}

// Authenticated begins an authenticated session: the channel reconnects
// under the new identity and the tracker is started at most once, and only
// if permission is already granted
func (a *Agent) Authenticated(ctx context.Context, token string) error {
	userID, err := SubjectFromToken(token)
	if err != nil {
		log.Printf("❌ Cannot start session: %v", err)
		return err
	}

	log.Printf("👤 Authenticated session for user %s", userID)

	a.mu.Lock()
	a.trackerStarted = false // fresh latch for the new session
	a.mu.Unlock()

	a.channel.UpdateCredentials(ctx, token, userID)
	a.maybeStartTracker(ctx)
	return nil
}

// maybeStartTracker consumes the one-shot latch when permission allows.
// Repeated calls never restart an already-started tracker.
func (a *Agent) maybeStartTracker(ctx context.Context) {
	a.mu.Lock()
	if a.trackerStarted {
		a.mu.Unlock()
		return
	}
	if a.gate.Check(ctx) != geo.PermissionGranted {
		a.mu.Unlock()
		log.Println("⚠️  Location permission not granted, tracking not auto-started")
		return
	}
	a.trackerStarted = true
	a.mu.Unlock()

	go func() {
		if err := a.tracker.Start(ctx); err != nil {
			log.Printf("❌ Tracker auto-start failed: %v", err)
		}
	}()
}

// handleEvent is the notification pipeline: dedup, present, and trigger a
// data refresh for order-related kinds. Events arrive in channel delivery
// order, so among duplicates the first arrival wins.
func (a *Agent) handleEvent(ev channel.NotificationEvent) {
	if !a.deduper.Offer(ev) {
		log.Printf("🔁 Duplicate suppressed: [%s] %s", ev.Kind, ev.Title)
		return
	}

	a.presenter.Present(ev)

	switch ev.Kind {
	case channel.KindNewOrder, channel.KindStatusUpdate, channel.KindOrderCancelled:
		a.refresher.ScheduleRefresh()
	}
}

// InjectEvent feeds a raw wire event into the pipeline, bypassing the
// socket. Used by the local diagnostics endpoint.
func (a *Agent) InjectEvent(name string, data map[string]interface{}) {
	a.handleEvent(channel.Translate(name, data))
}

// Tracker exposes the tracker for the status handlers
func (a *Agent) Tracker() *tracker.Tracker {
	return a.tracker
}

// Presenter exposes the presenter for the status handlers
func (a *Agent) Presenter() *notify.Presenter {
	return a.presenter
}

// Snapshot returns the combined agent status
func (a *Agent) Snapshot() Status {
	return Status{
		Permission:       a.gate.State(),
		ChannelConnected: a.channel.Connected(),
		Tracker:          a.tracker.Snapshot(),
		Dedup:            a.deduper.Stats(),
		Toasts:           a.presenter.Active(),
	}
}

// Shutdown tears the session down: channel closed, tracking stopped,
// gate listener cancelled. Idempotent.
func (a *Agent) Shutdown() {
	a.channel.Close()
	a.tracker.Stop()
	if a.gateCancel != nil {
		a.gateCancel()
	}
	log.Println("🛑 Agent shut down")
}

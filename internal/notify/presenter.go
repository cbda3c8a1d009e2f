package notify

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliveryboy-agent/internal/channel"
)

// Navigator routes user interaction with a toast back to application
// navigation. The host app supplies the implementation.
type Navigator interface {
	NavigateToOrders()
	NavigateToOrder(orderID string)
}

// NativeSender mirrors an event to an OS-level notification surface.
// NativeNotifier is the production implementation.
type NativeSender interface {
	Notify(title, body string, data map[string]string)
}

// Toast is one presented entry in the queue
type Toast struct {
	ID          string                    `json:"id"`
	Event       channel.NotificationEvent `json:"event"`
	PresentedAt time.Time                 `json:"presented_at"`
}

type toastEntry struct {
	toast Toast
	timer *time.Timer
}

// Presenter renders a bounded, time-limited queue of transient alerts.
// Newest first, at most `limit` entries; each entry auto-dismisses after
// `ttl` on its own timer, independent of later duplicate suppressions.
type Presenter struct {
	mu        sync.Mutex
	toasts    []*toastEntry // newest first
	limit     int
	ttl       time.Duration
	navigator Navigator
	native    NativeSender // optional, best-effort
}

// NewPresenter creates a presenter. navigator and native may be nil.
func NewPresenter(limit int, ttl time.Duration, navigator Navigator, native NativeSender) *Presenter {
	if limit <= 0 {
		limit = 5
	}
	return &Presenter{
		limit:     limit,
		ttl:       ttl,
		navigator: navigator,
		native:    native,
	}
}

// Present enqueues the event at the front of the queue, truncating to the
// limit (oldest dropped), and schedules the entry's auto-dismiss. Returns
// the toast entry id.
func (p *Presenter) Present(ev channel.NotificationEvent) string {
	id := uuid.NewString()

	p.mu.Lock()
	entry := &toastEntry{
		toast: Toast{
			ID:          id,
			Event:       ev,
			PresentedAt: time.Now(),
		},
	}
	p.toasts = append([]*toastEntry{entry}, p.toasts...)

	// Oldest out first when the queue overflows
	for len(p.toasts) > p.limit {
		evicted := p.toasts[len(p.toasts)-1]
		p.toasts = p.toasts[:len(p.toasts)-1]
		if evicted.timer != nil {
			evicted.timer.Stop()
		}
	}

	entry.timer = time.AfterFunc(p.ttl, func() { p.Dismiss(id) })
	p.mu.Unlock()

	log.Printf("🔔 Toast: [%s] %s - %s", ev.Kind, ev.Title, ev.Message)

	// Native notification is best-effort and asynchronous: a slow send
	// must not hold up event delivery behind this Present call
	if p.native != nil {
		go p.native.Notify(ev.Title, ev.Message, map[string]string{
			"kind": string(ev.Kind),
		})
	}

	return id
}

// Dismiss removes the entry immediately. Used by the auto-dismiss timer,
// user-initiated close and click-through. Idempotent.
func (p *Presenter) Dismiss(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, entry := range p.toasts {
		if entry.toast.ID == id {
			if entry.timer != nil {
				entry.timer.Stop()
			}
			p.toasts = append(p.toasts[:i], p.toasts[i+1:]...)
			return
		}
	}
}

// Action performs kind-specific navigation for a clicked toast, then
// dismisses it
func (p *Presenter) Action(id string) {
	p.mu.Lock()
	var ev *channel.NotificationEvent
	for _, entry := range p.toasts {
		if entry.toast.ID == id {
			e := entry.toast.Event
			ev = &e
			break
		}
	}
	p.mu.Unlock()

	if ev == nil {
		return
	}

	if p.navigator != nil {
		switch ev.Kind {
		case channel.KindNewOrder:
			p.navigator.NavigateToOrders()
		case channel.KindStatusUpdate:
			if orderID, ok := ev.OrderID(); ok {
				p.navigator.NavigateToOrder(orderID)
			} else {
				p.navigator.NavigateToOrders()
			}
		}
	}

	p.Dismiss(id)
}

// Active returns a snapshot of the current queue, newest first
func (p *Presenter) Active() []Toast {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Toast, len(p.toasts))
	for i, entry := range p.toasts {
		out[i] = entry.toast
	}
	return out
}

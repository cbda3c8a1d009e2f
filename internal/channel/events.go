package channel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a server push for the notification pipeline
type Kind string

const (
	KindNewOrder       Kind = "new_order"
	KindStatusUpdate   Kind = "status_update"
	KindOrderCancelled Kind = "order_cancelled"
	KindGeneric        Kind = "generic"
)

// NotificationEvent is the uniform notification record produced from a
// server push. Read-only after creation. The nominal ID is not stable
// across redelivery - the deduper derives the true identity.
type NotificationEvent struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// OrderID returns the order identifier from the payload, if present
func (e NotificationEvent) OrderID() (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	id, ok := e.Payload["orderId"].(string)
	return id, ok && id != ""
}

// Wire event names pushed by the server
const (
	eventNewDeliveryAssignment = "newDeliveryAssignment"
	eventOrderStatusUpdate     = "orderStatusUpdate"
	eventOrderCancelled        = "orderCancelled"
)

// outboundMessage is the client→server wire shape
type outboundMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// inboundMessage is the server→client wire shape
type inboundMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// Translate converts a server push into a NotificationEvent. Unknown event
// names map to the generic kind so nothing the server sends is silently lost.
func Translate(name string, data map[string]interface{}) NotificationEvent {
	ev := NotificationEvent{
		ID:        uuid.NewString(),
		Kind:      KindGeneric,
		Title:     name,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if id, ok := data["id"].(string); ok && id != "" {
		ev.ID = id
	}

	orderID, _ := data["orderId"].(string)

	switch name {
	case eventNewDeliveryAssignment:
		ev.Kind = KindNewOrder
		ev.Title = "New Delivery Assignment"
		ev.Message = fmt.Sprintf("Order %s has been assigned to you", orderID)

	case eventOrderStatusUpdate:
		status, _ := data["status"].(string)
		ev.Kind = KindStatusUpdate
		ev.Title = "Order Update"
		ev.Message = fmt.Sprintf("Order %s is now %s", orderID, status)

	case eventOrderCancelled:
		ev.Kind = KindOrderCancelled
		ev.Title = "Order Cancelled"
		ev.Message = fmt.Sprintf("Order %s was cancelled", orderID)

	default:
		if msg, ok := data["message"].(string); ok {
			ev.Message = msg
		}
	}

	return ev
}

package handlers

import (
	"encoding/json"
	"net/http"

	"deliveryboy-agent/internal/agent"
	"deliveryboy-agent/pkg/utils"
)

// Health is the liveness probe for the local status API
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}
}

// GetStatus returns the combined agent snapshot
// GET /status
func GetStatus(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.JSON(w, http.StatusOK, a.Snapshot())
	}
}

// GetTrackerStatus returns the tracking session view, including the
// bounded sample history
// GET /status/tracker
func GetTrackerStatus(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trk := a.Tracker()
		utils.JSON(w, http.StatusOK, map[string]interface{}{
			"session": trk.Snapshot(),
			"history": trk.History(),
		})
	}
}

// GetNotificationStatus returns the active toasts
// GET /status/notifications
func GetNotificationStatus(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.JSON(w, http.StatusOK, a.Presenter().Active())
	}
}

// simulateEventRequest mirrors the wire shape of a server push
type simulateEventRequest struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// SimulateEvent injects a wire event into the notification pipeline,
// bypassing the socket. Field-diagnostics aid.
// POST /simulate/event
func SimulateEvent(a *agent.Agent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req simulateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Event == "" {
			utils.Error(w, http.StatusBadRequest, "event is required")
			return
		}

		a.InjectEvent(req.Event, req.Data)
		utils.JSON(w, http.StatusOK, map[string]string{"status": "injected"})
	}
}

package geo

import (
	"time"
)

// PermissionState mirrors the platform's location-permission states
type PermissionState string

const (
	PermissionPrompt  PermissionState = "prompt"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// PositionSample represents a single GPS fix from the positioning provider.
// Immutable once created - consumers copy it, never mutate it.
type PositionSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`                 // GPS accuracy in meters
	Altitude   *float64  `json:"altitude,omitempty"`       // Meters above sea level
	Heading    *float64  `json:"heading,omitempty"`        // Direction of travel (0-360 degrees)
	Speed      *float64  `json:"speed,omitempty"`          // Speed in m/s
	CapturedAt time.Time `json:"captured_at"`
}

// Age returns how old the sample is relative to now
func (s PositionSample) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

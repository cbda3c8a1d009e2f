package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// Config collects every tunable of the agent. The sync thresholds and
// notification windows are deliberate knobs, not hard invariants - the
// defaults carry the original battery/bandwidth tradeoff.
type Config struct {
	// ServerURL is the delivery API base, e.g. https://api.example.com/api/delivery
	ServerURL string

	// SocketURL is the event channel endpoint, e.g. wss://api.example.com/ws
	SocketURL string

	// AuthToken is the opaque bearer token for this session
	AuthToken string

	// Port for the local status API
	Port string

	// Location sync policy
	SyncInterval       time.Duration
	SyncDistanceMeters float64
	HistoryLimit       int

	// Notification pipeline
	DedupTTL        time.Duration
	ToastTTL        time.Duration
	ToastLimit      int
	RefreshDebounce time.Duration

	// Replay provider (no GPS hardware): a JSON route file and the tick
	// interval between fixes
	RouteFile      string
	ReplayInterval time.Duration

	// Native notifications (optional)
	FCMCredentialsFile   string
	FCMCredentialsBase64 string
	FCMDeviceToken       string
}

// Load reads configuration from the environment with logged defaults
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:            os.Getenv("SERVER_URL"),
		SocketURL:            os.Getenv("SOCKET_URL"),
		AuthToken:            os.Getenv("APP_AUTH_TOKEN"),
		Port:                 envString("PORT", "8090"),
		SyncInterval:         envDuration("SYNC_INTERVAL", 30*time.Second),
		SyncDistanceMeters:   envFloat("SYNC_DISTANCE_METERS", 50.0),
		HistoryLimit:         envInt("HISTORY_LIMIT", 50),
		DedupTTL:             envDuration("DEDUP_TTL", 30*time.Second),
		ToastTTL:             envDuration("TOAST_TTL", 5*time.Second),
		ToastLimit:           envInt("TOAST_LIMIT", 5),
		RefreshDebounce:      envDuration("REFRESH_DEBOUNCE", time.Second),
		RouteFile:            os.Getenv("ROUTE_FILE"),
		ReplayInterval:       envDuration("REPLAY_INTERVAL", 5*time.Second),
		FCMCredentialsFile:   os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		FCMCredentialsBase64: os.Getenv("FIREBASE_CREDENTIALS_BASE64"),
		FCMDeviceToken:       os.Getenv("FCM_DEVICE_TOKEN"),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("SERVER_URL environment variable is required")
	}
	if cfg.SocketURL == "" {
		return nil, fmt.Errorf("SOCKET_URL environment variable is required")
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("APP_AUTH_TOKEN environment variable is required")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %g", key, v, fallback)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"deliveryboy-agent/internal/agent"
	"deliveryboy-agent/internal/channel"
	"deliveryboy-agent/internal/config"
	"deliveryboy-agent/internal/geo"
	"deliveryboy-agent/internal/handlers"
	"deliveryboy-agent/internal/notify"
	"deliveryboy-agent/internal/tracker"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 DELIVERY FIELD AGENT STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Load .env file
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Configuration invalid")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Configuration loaded")

	// Positioning provider: a scripted route file, or a single static point
	provider, err := buildProvider(cfg)
	if err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Positioning provider unavailable")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}
	log.Println("✅ Positioning provider ready")

	// Native notifications are optional: a failed init disables them,
	// toast presentation still proceeds
	var native *notify.NativeNotifier
	if cfg.FCMCredentialsBase64 != "" {
		native, err = notify.NewNativeNotifierFromBase64(cfg.FCMCredentialsBase64, cfg.FCMDeviceToken)
		if err != nil {
			log.Printf("⚠️  Failed to initialize native notifications from base64: %v (disabled)", err)
			native = nil
		} else {
			log.Println("✅ Native notifications initialized from base64 credentials")
		}
	} else if cfg.FCMCredentialsFile != "" {
		native, err = notify.NewNativeNotifier(cfg.FCMCredentialsFile, cfg.FCMDeviceToken)
		if err != nil {
			log.Printf("⚠️  Failed to initialize native notifications from file: %v (disabled)", err)
			native = nil
		} else {
			log.Println("✅ Native notifications initialized from file")
		}
	} else {
		log.Println("⚠️  No Firebase credentials configured, native notifications disabled")
	}

	// Assemble the core
	gate := geo.NewPermissionGate(provider)
	sampler := geo.NewSampler(provider, gate, geo.DefaultSamplerConfig())

	syncClient := tracker.NewSyncClient(cfg.ServerURL, cfg.AuthToken)
	trk := tracker.New(sampler, syncClient, tracker.Config{
		SyncInterval:       cfg.SyncInterval,
		SyncDistanceMeters: cfg.SyncDistanceMeters,
		HistoryLimit:       cfg.HistoryLimit,
	})

	ch := channel.New(channel.Config{
		URL:       cfg.SocketURL,
		Reconnect: channel.DefaultReconnectPolicy(),
	})

	deduper := notify.NewDeduper(cfg.DedupTTL)
	presenter := notify.NewPresenter(cfg.ToastLimit, cfg.ToastTTL, logNavigator{}, native)
	refresher := notify.NewDebouncedRefresher(cfg.RefreshDebounce, func() {
		log.Println("🔄 Data refresh triggered (orders/earnings re-fetch)")
	})

	app := agent.New(gate, trk, ch, deduper, presenter, refresher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Authenticated(ctx, cfg.AuthToken); err != nil {
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Println("❌ FATAL ERROR: Session could not be started")
		log.Printf("   Error: %v", err)
		log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		log.Fatal(err)
	}

	// Local status API for the host UI
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handlers.Health())
	r.Get("/status", handlers.GetStatus(app))
	r.Get("/status/tracker", handlers.GetTrackerStatus(app))
	r.Get("/status/notifications", handlers.GetNotificationStatus(app))
	r.Post("/simulate/event", handlers.SimulateEvent(app))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Println("═══════════════════════════════════════════════════════════════════")
		log.Println("✅ ALL INITIALIZATION COMPLETE")
		log.Printf("🚀 Status API on http://localhost:%s", cfg.Port)
		log.Println("═══════════════════════════════════════════════════════════════════")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Status API failed: %v", err)
		}
	}()

	// Run until interrupted
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("🛑 Shutting down...")
	app.Shutdown()
	server.Shutdown(context.Background())
}

// buildProvider selects the positioning provider from configuration
func buildProvider(cfg *config.Config) (geo.Provider, error) {
	if cfg.RouteFile != "" {
		return geo.NewReplayProviderFromFile(cfg.RouteFile, cfg.ReplayInterval)
	}

	// Fallback: a stationary point (useful for bench runs)
	lat := envFloatOr("START_LAT", 12.9716)
	lng := envFloatOr("START_LNG", 77.5946)
	log.Printf("⚠️  ROUTE_FILE not set, using stationary provider at %.4f,%.4f", lat, lng)
	return geo.NewReplayProvider([]geo.PositionSample{
		{Latitude: lat, Longitude: lng, Accuracy: 10},
	}, cfg.ReplayInterval), nil
}

func envFloatOr(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// logNavigator is the default Navigator: the host UI is out of process, so
// navigation intents are logged for it to pick up via the status API
type logNavigator struct{}

func (logNavigator) NavigateToOrders() {
	log.Println("🧭 Navigate: orders list")
}

func (logNavigator) NavigateToOrder(orderID string) {
	log.Printf("🧭 Navigate: order %s", orderID)
}

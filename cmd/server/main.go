// Package main is the entry point for the planner calendar server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"

	"github.com/planner-dashboard/backend/internal/api"
	"github.com/planner-dashboard/backend/internal/caldav"
	"github.com/planner-dashboard/backend/internal/calendar"
	"github.com/planner-dashboard/backend/internal/config"
	"github.com/planner-dashboard/backend/internal/storage"
	"github.com/planner-dashboard/backend/internal/storage/models"
	"github.com/planner-dashboard/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "planner.yaml",
		Usage:   "Path to the YAML config file (created with defaults if missing)",
		EnvVars: []string{"PLANNER_CONFIG"},
	}

	app := &cli.App{
		Name:    "planner",
		Usage:   "Calendar event engine with views, upcoming list and reminders.",
		Version: version,
		Flags:   []cli.Flag{configFlag},
		Action:  serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP server and reminder scheduler (default).",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "Apply pending database migrations and exit.",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					db, err := storage.NewDB(cfg.DatabasePath())
					if err != nil {
						return fmt.Errorf("opening database: %w", err)
					}
					defer db.Close()

					ran, err := storage.RunMigrations(c.Context, db)
					if err != nil {
						return err
					}
					log.Printf("Applied %d migrations", len(ran))
					return nil
				},
			},
			{
				Name:  "health-check",
				Usage: "Query /api/health of a running server and exit non-zero if unhealthy.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Server address; defaults to the configured listen address"},
				},
				Action: func(c *cli.Context) error {
					addr := c.String("addr")
					if addr == "" {
						cfg, err := config.Load(c.String("config"))
						if err != nil {
							return err
						}
						addr = cfg.Listen
					}
					return runHealthCheck(c.Context, addr)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Planner failed: %v", err)
	}
}

func serve(c *cli.Context) error {
	ctx := c.Context

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	log.Printf("Starting planner (version: %s, timezone: %s)...", version, loc)

	// Initialize database
	db, err := storage.NewDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ran, err := storage.RunMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Println("Database migrations complete")

	eventRepo := storage.NewEventRepository(db)
	settingsRepo := storage.NewSettingsRepository(db)
	feedRepo := storage.NewFeedRepository(db)

	if len(ran) > 0 && cfg.UpcomingCount != models.DefaultUpcomingCount {
		if err := seedSettings(ctx, settingsRepo, cfg.UpcomingCount); err != nil {
			log.Printf("Warning: Failed to apply configured upcoming count: %v", err)
		}
	}

	// Initialize WebSocket hub
	hub := websocket.NewHub()
	go hub.Run()
	broadcaster := websocket.NewEventBroadcaster(hub)

	// Load events and attach write-through observers
	clock := calendar.RealClock{}
	store := calendar.NewStore(clock)
	saved, err := eventRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}
	store.Init(saved)
	store.AddObserver(eventRepo)
	store.AddObserver(broadcaster)
	log.Printf("Loaded %d events", len(saved))

	if cfg.CalDAV.Enabled() {
		publisher, err := caldav.NewPublisher(caldav.Config{
			Endpoint:     cfg.CalDAV.URL,
			Username:     cfg.CalDAV.Username,
			Password:     cfg.CalDAV.Password,
			CalendarPath: cfg.CalDAV.CalendarPath,
			Location:     loc,
		}, clock)
		if err != nil {
			return err
		}
		if err := publisher.Verify(ctx); err != nil {
			log.Printf("Warning: CalDAV calendar not reachable: %v", err)
		}
		if n, err := publisher.Sync(ctx, store.List()); err != nil {
			log.Printf("Warning: Failed to publish events to CalDAV: %v", err)
		} else {
			log.Printf("Published %d events to CalDAV", n)
		}
		store.AddObserver(publisher)
	}

	if cfg.SeedDemo {
		today := models.DateOf(clock.Now().In(loc))
		if n := calendar.SeedDemo(ctx, store, today); n > 0 {
			log.Printf("Seeded %d demo events", n)
		}
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := calendar.NewMetrics(registry)

	// Reminder scheduler
	scheduler := calendar.NewReminderScheduler(store, clock, calendar.SchedulerConfig{
		TickInterval: time.Duration(cfg.TickInterval),
		RetireAfter:  time.Duration(cfg.RetireAfter),
		Location:     loc,
	}, metrics,
		websocket.NewNotifier(hub),
		calendar.NewEmailNotifier(log.Default()),
	)
	scheduler.OnFired(broadcaster.BroadcastReminderFired)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting reminder scheduler: %w", err)
	}
	defer scheduler.Stop()

	// Feed subscriptions
	importer := calendar.NewImporter(loc, cfg.ImportHorizonDays, clock)
	feedSyncer := calendar.NewFeedSyncer(feedRepo, store, importer)
	feedSyncer.OnSynced(broadcaster.BroadcastFeedSynced)
	if err := feedSyncer.Start(ctx, time.Duration(cfg.FeedCheckInterval)); err != nil {
		log.Printf("Warning: Failed to start feed syncer: %v", err)
	}
	defer feedSyncer.Stop()

	router := api.NewRouter(db, hub, cfg.StaticDir, api.Services{
		Store:      store,
		Scheduler:  scheduler,
		Importer:   importer,
		Settings:   settingsRepo,
		Clock:      clock,
		Location:   loc,
		Gatherer:   registry,
		Feeds:      feedRepo,
		FeedSyncer: feedSyncer,
	})

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", cfg.Listen)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Println("Shutting down server...")
	feedSyncer.Stop()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

func seedSettings(ctx context.Context, repo *storage.SettingsRepository, upcoming int) error {
	prefs, err := repo.Get(ctx)
	if err != nil {
		return err
	}
	prefs.UpcomingCount = upcoming
	return repo.Update(ctx, prefs)
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(ctx context.Context, addr string) error {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/health", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

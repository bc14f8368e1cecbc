package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskscope/scheduler/internal/api"
	"github.com/taskscope/scheduler/internal/config"
	"github.com/taskscope/scheduler/internal/control"
	"github.com/taskscope/scheduler/internal/middleware"
	"github.com/taskscope/scheduler/internal/settingsprovider"
	"github.com/taskscope/scheduler/internal/storage"
	"github.com/taskscope/scheduler/internal/tasks"
	"github.com/taskscope/scheduler/internal/tenanthost"

	_ "github.com/taskscope/scheduler/docs" // swagger docs
)

// @title Multi-Tenant Task Scheduler API
// @version 1.0
// @description Control-plane API for a multi-tenant background task scheduler: per-tenant cron settings, run-state inspection, history, and operator commands.

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter your JWT token with the `Bearer ` prefix, e.g. "Bearer eyJhbGci..."

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description Enter your API key

func main() {
	cfg := config.Load()

	log.Println("connecting to database...")
	db, err := storage.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("running migrations...")
	if err := db.RunMigrations(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	userRepo := storage.NewUserRepository(db)
	settingsRepo := storage.NewSettingsRepository(db)
	seenRepo := storage.NewSeenItemRepository(db)

	ctx := context.Background()
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminEmail != "" && adminPassword != "" {
		admin, err := userRepo.CreateAdmin(ctx, adminEmail, adminPassword, "Admin")
		if err != nil {
			log.Printf("warning: failed to create admin user: %v", err)
		} else {
			log.Printf("admin user ready: %s", admin.Email)
		}
	}

	host, tenantID := buildDemoHost(cfg, seenRepo, settingsRepo)

	sched := control.New(host, control.Config{
		PollingTime:    cfg.Scheduler.PollingTime,
		MinIdleTime:    cfg.Scheduler.MinIdleTime,
		MaxParallelism: cfg.Scheduler.MaxParallelism,
	})

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go func() {
		if err := sched.Run(schedCtx); err != nil && schedCtx.Err() == nil {
			log.Printf("control loop stopped: %v", err)
		}
	}()
	log.Printf("scheduler started for demo tenant %q", tenantID)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, userRepo)
	handler := api.NewHandler(userRepo, settingsRepo, sched, authMiddleware)
	router := api.NewRouter(handler, authMiddleware)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	cancelSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}

// buildDemoHost wires a single in-memory tenant running the bundled RSS
// poller and webhook notifier, as a worked example of the tenanthost.Host
// contract. A production deployment replaces this with a Host backed by
// its own tenant directory.
func buildDemoHost(cfg *config.Config, seenRepo *storage.SeenItemRepository, settingsRepo *storage.SettingsRepository) (tenanthost.Host, string) {
	const tenantID = "demo"

	notifier := tasks.NewWebhookNotifier("notify", cfg.Notify.DefaultWebhook, cfg.Notify.RateLimitMs)
	poller := tasks.NewRSSPoller("rss-hackernews", []string{"https://hnrss.org/frontpage"}, "*/10 * * * *", seenRepo, notifier)

	dbProvider := settingsprovider.NewDatabase(settingsRepo, tenantID)
	staticProvider := settingsprovider.NewStatic("*/10 * * * *", cfg.Notify.DefaultWebhook != "")

	host := tenanthost.NewMemoryHost()
	host.AddTenant(tenantID,
		[]tenanthost.Task{poller, notifier},
		[]tenanthost.SettingsProvider{dbProvider, staticProvider},
	)
	return host, tenantID
}

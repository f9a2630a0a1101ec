package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focustimer/internal/config"
	"focustimer/internal/db"
	"focustimer/internal/effects"
	"focustimer/internal/handler"
	"focustimer/internal/reminder"
	"focustimer/internal/repository"
	"focustimer/internal/router"
	"focustimer/internal/service"
	"focustimer/internal/timer"
)

func main() {
	loader := config.NewLoader(os.Getenv("CONFIG_FILE"))
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.Migrations(cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}
	if err := db.RunMigrations(database, migrations); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)

	var scheduler effects.Scheduler
	if cfg.Reminder.BaseURL != "" {
		scheduler = reminder.NewHTTPClient(cfg.Reminder.BaseURL, cfg.Reminder.Token, &http.Client{Timeout: cfg.Reminder.Timeout})
		log.Printf("reminders scheduled via %s", cfg.Reminder.BaseURL)
	}

	registry := timer.NewRegistry(timer.RegistryOptions{
		Store:           repository.NewKVRepository(database),
		Sink:            sessionRepo,
		Scheduler:       scheduler,
		ReminderTimeout: cfg.Reminder.Timeout,
		Defaults:        cfg.Timer.Defaults,
		TickInterval:    cfg.Timer.TickInterval,
		StartHidden:     cfg.Timer.StartHidden,
	})
	defer registry.Close()

	loader.Watch(func(next config.Config) {
		if err := registry.SetDefaults(next.Timer.Defaults); err != nil {
			log.Printf("warning: apply reloaded timer defaults: %v", err)
			return
		}
		log.Printf("timer defaults reloaded: %+v", next.Timer.Defaults)
	})

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.TokenTTL)
	timerService := service.NewTimerService(registry, sessionRepo)

	engine := router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewTimerHandler(timerService),
		cfg.CORSOrigins,
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("focus timer listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	// Close the registry first so event streams end and shutdown does not
	// wait on them.
	registry.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"newsmith/api"
	"newsmith/app"
	"newsmith/config"
)

func main() {
	_ = godotenv.Load()

	port := flag.String("port", "", "HTTP API port (overrides PORT)")
	cronSpec := flag.String("cron", "", "cron schedule for automated runs (overrides CRON_SPEC)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *cronSpec != "" {
		cfg.CronSpec = *cronSpec
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	defer application.Close()

	if err := application.StartConsumer(ctx); err != nil {
		log.Fatalf("task consumer: %v", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.CronSpec, func() {
		report, err := application.Coordinator.Run(context.Background())
		if err != nil {
			log.Printf("❌ Scheduled run failed: %v", err)
			return
		}
		log.Printf("✅ Scheduled run %s: %d published, %d skipped of %d",
			report.RunID, report.Processed, report.Skipped, report.Total)
	}); err != nil {
		log.Fatalf("cron schedule %q: %v", cfg.CronSpec, err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(application.Coordinator, cfg.TaskSecret).Router(),
	}
	go func() {
		log.Printf("🤖 newsmith listening on :%s (cron %q)", cfg.Port, cfg.CronSpec)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// runonce executes a single synchronous pipeline cycle and prints the
// resulting report. Useful for cron-from-outside setups and manual testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"newsmith/app"
	"newsmith/config"
)

func main() {
	_ = godotenv.Load()

	topK := flag.Int("top", 0, "number of items to take through the pipeline (overrides TOP_K)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *topK > 0 {
		cfg.TopK = *topK
	}
	// A one-shot run always processes inline, even when a queue is configured.
	cfg.KafkaBrokers = nil
	cfg.TaskEndpoint = ""

	ctx := context.Background()
	application, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("wiring: %v", err)
	}
	defer application.Close()

	report, err := application.Coordinator.Run(ctx)
	if err != nil {
		log.Printf("❌ Run failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s finished in %s\n", report.RunID, report.EndedAt.Sub(report.StartedAt).Round(time.Second))
	fmt.Printf("  published: %d\n", report.Processed)
	fmt.Printf("  skipped:   %d\n", report.Skipped)
	fmt.Printf("  total:     %d\n", report.Total)
}

// Command ingest runs a single ingestion cycle and prints its summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"BarFeed/internal/di"
	"BarFeed/internal/domain/models"
	domrepo "BarFeed/internal/domain/repository"
	"BarFeed/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ingestion, cleanup, err := di.InitializeIngestion(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	run, err := ingestion.RunIngestion(ctx)
	stop()
	cleanup()

	if errors.Is(err, domrepo.ErrRunInProgress) {
		fmt.Println("another ingestion run is in progress, nothing to do")
		return
	}
	if run != nil {
		printSummary(run)
	}
	if err != nil {
		log.Printf("ingestion failed: %v", err)
		os.Exit(1)
	}
}

func printSummary(run *models.RunAudit) {
	fmt.Printf("run %s (%s)\n", run.ID, run.Symbol)
	fmt.Printf("  primary  %-10s ok=%-5t fetched=%d\n", run.ProviderPrimary, run.PrimaryOK, run.PrimaryFetched)
	fmt.Printf("  fallback %-10s ok=%-5t fetched=%d\n", run.ProviderFallback, run.FallbackOK, run.FallbackFetched)
	fmt.Printf("  saved=%d gaps_filled=%d outliers_rejected=%d\n", run.BarsSaved, run.GapsFilled, run.OutliersRejected)
	if run.Notes != "" {
		fmt.Printf("  notes: %s\n", run.Notes)
	}
}

// Command healthcheck prints the pipeline status and exits 1 when it is degraded.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"BarFeed/internal/di"
	"BarFeed/internal/domain/models"
	"BarFeed/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv %s: %v", *envFile, err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	status, cleanup, err := di.InitializeStatus(cfg)
	if err != nil {
		log.Fatalf("initialization failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	st, err := status.Status(ctx)
	cancel()
	cleanup()
	if err != nil {
		log.Fatalf("status evaluation failed: %v", err)
	}

	lastRun := "never"
	if st.LastRun != nil && st.LastRun.FinishedAt != nil {
		lastRun = st.LastRun.FinishedAt.Format(time.RFC3339)
	}
	lastBar := "none"
	if st.LastBarTime != nil {
		lastBar = st.LastBarTime.Format(time.RFC3339)
	}
	freshness := "n/a"
	if st.Health.SecondsSinceLastBar != nil {
		freshness = fmt.Sprintf("%ds", *st.Health.SecondsSinceLastBar)
	}

	fmt.Printf("symbol:            %s\n", st.Symbol)
	fmt.Printf("market:            %s\n", st.Health.MarketState)
	fmt.Printf("last run finished: %s\n", lastRun)
	fmt.Printf("last bar:          %s\n", lastBar)
	fmt.Printf("bar freshness:     %s (threshold %ds)\n", freshness, st.Health.FreshnessSeconds)
	fmt.Printf("bars in last 60m:  %d (min %d)\n", st.BarsInLast60m, st.Health.MinBarsIn60Minutes)
	fmt.Printf("status:            %s\n", st.Health.Status)

	if st.Health.Status == models.StatusDegraded {
		os.Exit(1)
	}
}

// Command usage-report prints aggregate and per-day statistics from the
// usage store. It reads the same DATABASE_URL the daemon writes to.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/storage"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/usage"
)

func main() {
	var (
		driver   = flag.String("driver", envOr("DATABASE_DRIVER", storage.DriverPostgres), "database driver, postgres or sqlite")
		dsn      = flag.String("database", os.Getenv("DATABASE_URL"), "database connection string")
		userID   = flag.String("user", "", "filter by user id")
		session  = flag.String("session", "", "filter by session id")
		provider = flag.String("provider", "", "filter by provider")
		model    = flag.String("model", "", "filter by model")
		days     = flag.Int("days", 7, "trailing window in days")
		since    = flag.String("since", "", "statistics lower bound (YYYY-MM-DD or RFC 3339), overrides -days")
	)
	flag.Parse()

	if *dsn == "" {
		fmt.Fprintf(os.Stderr, "ERROR: set DATABASE_URL or pass -database\n")
		os.Exit(1)
	}
	if *days <= 0 {
		fmt.Fprintf(os.Stderr, "ERROR: -days must be positive\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.Open(storage.DefaultConfig(*driver, *dsn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := usage.NewSQLUsageStore(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to open usage store: %v\n", err)
		os.Exit(1)
	}

	filter := usage.StatsFilter{
		UserID:    *userID,
		SessionID: *session,
		Provider:  *provider,
		Model:     *model,
	}

	window := fmt.Sprintf("last %d days", *days)
	if *since != "" {
		bound, err := parseSince(*since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: invalid -since value: %v\n", err)
			os.Exit(1)
		}
		filter.Since = &bound
		window = "since " + bound.Format("2006-01-02")
	} else {
		bound := time.Now().UTC().AddDate(0, 0, -*days)
		filter.Since = &bound
	}

	stats, err := store.Statistics(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to query statistics: %v\n", err)
		os.Exit(1)
	}

	daily, err := store.DailyUsage(ctx, *days, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to query daily usage: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Usage statistics (%s)\n\n", window)
	fmt.Printf("  Requests:       %d (%d ok, %d failed)\n",
		stats.TotalRequests, stats.SuccessfulRequests, stats.FailedRequests)
	fmt.Printf("  Tokens:         %d prompt, %d completion, %d total\n",
		stats.TotalPromptTokens, stats.TotalCompletionTokens, stats.TotalTokens)
	fmt.Printf("  Total cost:     $%s\n", stats.TotalCost.StringFixed(4))
	fmt.Printf("  Avg latency:    %.1f ms\n", stats.AverageLatencyMS)
	fmt.Printf("  Cache hit rate: %.1f%%\n", stats.CacheHitRate)

	if len(daily) == 0 {
		fmt.Println("\nNo usage in the window.")
		return
	}

	fmt.Println("\nDaily usage")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tREQUESTS\tTOKENS\tCOST")
	for _, day := range daily {
		fmt.Fprintf(w, "%s\t%d\t%d\t$%s\n", day.Date, day.Requests, day.Tokens, day.Cost.StringFixed(4))
	}
	w.Flush()
}

func parseSince(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// README: Smoke and load runner; executes HTTP/DB/Redis checks against a running API and prints results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"campusride/internal/config"
)

func main() {
	cfg, err := config.LoadBench()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	bindFlags(&cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	results := NewRunner(cfg).RunAll(ctx)

	counts := map[string]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("\n%d checks: PASS=%d FAIL=%d SKIP=%d\n",
		len(results), counts[statusPass], counts[statusFail], counts[statusSkip])

	if counts[statusFail] > 0 || (cfg.Strict && counts[statusSkip] > 0) {
		os.Exit(1)
	}
}

// bindFlags lets flags override the environment.
func bindFlags(cfg *config.BenchConfig) {
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "API base URL")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "Postgres DSN; empty skips DB checks")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address; empty skips Redis checks")
	flag.StringVar(&cfg.MigrationPath, "migration", cfg.MigrationPath, "schema file to apply and check")
	flag.BoolVar(&cfg.ApplyMigration, "apply-migration", cfg.ApplyMigration, "apply the schema before checking tables")
	flag.BoolVar(&cfg.Strict, "strict", cfg.Strict, "treat skipped checks as failures")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "deadline for the whole run")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "parallel requests in race and load checks")
	flag.DurationVar(&cfg.Duration, "duration", cfg.Duration, "length of each load check")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
}

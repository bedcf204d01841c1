// README: Smoke checks for environment, schema, ride lifecycle, claim races and quote throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"campusride/internal/config"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"

	gate    = "12.970000,77.590000"
	library = "13.015000,77.590000"
)

type Runner struct {
	cfg   config.BenchConfig
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	// run tags driver and rider IDs so repeated runs against one server do not collide.
	run string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

type rideView struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	DriverID string `json:"driver_id"`
	OTP      string `json:"otp"`
	Billing  struct {
		Status string `json:"status"`
	} `json:"billing"`
}

func NewRunner(cfg config.BenchConfig) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		run:   strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer func() { _ = r.redis.Close() }()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) id(prefix string) string {
	return prefix + "-" + r.run
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			status, _, latency, err := r.do(ctx, http.MethodGet, "/health", nil)
			return expect(status, latency, err, http.StatusOK)
		}},
		{Name: "API: create ride (missing fields -> 400)", Run: func(ctx context.Context, r *Runner) Result {
			status, _, latency, err := r.do(ctx, http.MethodPost, "/api/rides", map[string]any{})
			return expect(status, latency, err, http.StatusBadRequest)
		}},
		{Name: "API: unknown vehicle class -> 400", Run: func(ctx context.Context, r *Runner) Result {
			status, _, latency, err := r.do(ctx, http.MethodPost, "/api/fares/quote", map[string]any{"vehicle_class": "jet", "distance_km": 3})
			return expect(status, latency, err, http.StatusBadRequest)
		}},
		{Name: "Lifecycle: book, start, complete, rate", Run: lifecycle},
		{Name: "Lifecycle: cancel releases driver", Run: cancelReleases},
		{Name: "Concurrency: one driver, many rides", Run: claimRace},
		{Name: "Perf: quote throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, "/api/fares/quote", map[string]any{
				"vehicle_class": "auto", "pickup": gate, "dropoff": library,
			})
		}},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("%d tables", len(tables))}
}

func lifecycle(ctx context.Context, r *Runner) Result {
	start := time.Now()
	driverID := r.id("bench-cab")
	if status, body, _, err := r.do(ctx, http.MethodPost, "/api/drivers", map[string]any{
		"id": driverID, "vehicle_class": "cab", "location": gate, "rating": 4,
	}); err != nil || status != http.StatusCreated {
		return failed("register driver", status, body, err)
	}

	var ride rideView
	status, body, _, err := r.do(ctx, http.MethodPost, "/api/rides", map[string]any{
		"rider_id": r.id("bench-rider"), "vehicle_class": "cab", "pickup": gate, "dropoff": library,
	})
	if err != nil || status != http.StatusCreated || json.Unmarshal(body, &ride) != nil {
		return failed("create ride", status, body, err)
	}
	if ride.State != "accepted" {
		return Result{Status: statusFail, Note: "ride not matched: " + ride.State}
	}

	base := "/api/rides/" + ride.ID
	steps := []struct {
		path string
		body map[string]any
	}{
		{base + "/start", map[string]any{"driver_id": ride.DriverID, "otp": ride.OTP}},
		{base + "/complete", map[string]any{"driver_id": ride.DriverID}},
		{base + "/rate", map[string]any{"rider_id": r.id("bench-rider"), "rating": 5}},
	}
	for _, s := range steps {
		status, body, _, err := r.do(ctx, http.MethodPost, s.path, s.body)
		if err != nil || status != http.StatusOK {
			return failed(s.path, status, body, err)
		}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func cancelReleases(ctx context.Context, r *Runner) Result {
	driverID := r.id("bench-toto")
	riderID := r.id("bench-rider2")
	if status, body, _, err := r.do(ctx, http.MethodPost, "/api/drivers", map[string]any{
		"id": driverID, "vehicle_class": "toto", "location": gate,
	}); err != nil || status != http.StatusCreated {
		return failed("register driver", status, body, err)
	}
	var ride rideView
	status, body, _, err := r.do(ctx, http.MethodPost, "/api/rides", map[string]any{
		"rider_id": riderID, "vehicle_class": "toto", "pickup": gate, "dropoff": library,
	})
	if err != nil || status != http.StatusCreated || json.Unmarshal(body, &ride) != nil {
		return failed("create ride", status, body, err)
	}
	if status, body, _, err := r.do(ctx, http.MethodPost, "/api/rides/"+ride.ID+"/cancel", map[string]any{
		"actor_type": "rider", "actor_id": riderID, "reason": "bench",
	}); err != nil || status != http.StatusOK {
		return failed("cancel", status, body, err)
	}

	var d struct {
		Available bool `json:"available"`
	}
	status, body, _, err = r.do(ctx, http.MethodGet, "/api/drivers/"+driverID, nil)
	if err != nil || status != http.StatusOK || json.Unmarshal(body, &d) != nil {
		return failed("get driver", status, body, err)
	}
	if !d.Available {
		return Result{Status: statusFail, Note: "driver still held after cancel"}
	}
	return Result{Status: statusPass}
}

// claimRace books rides while no moto driver exists, then matches them all at once against
// a single driver. Exactly one match may win.
func claimRace(ctx context.Context, r *Runner) Result {
	ids := make([]string, 0, r.cfg.Concurrency)
	for i := 0; i < r.cfg.Concurrency; i++ {
		var ride rideView
		status, body, _, err := r.do(ctx, http.MethodPost, "/api/rides", map[string]any{
			"rider_id": r.id(fmt.Sprintf("bench-race-%d", i)), "vehicle_class": "moto", "pickup": gate, "dropoff": library,
		})
		if err != nil || status != http.StatusCreated || json.Unmarshal(body, &ride) != nil {
			return failed("create ride", status, body, err)
		}
		if ride.State != "pending" {
			return Result{Status: statusSkip, Note: "a moto driver is already online"}
		}
		ids = append(ids, ride.ID)
	}
	if status, body, _, err := r.do(ctx, http.MethodPost, "/api/drivers", map[string]any{
		"id": r.id("bench-moto"), "vehicle_class": "moto", "location": gate,
	}); err != nil || status != http.StatusCreated {
		return failed("register driver", status, body, err)
	}

	var won, lost atomic.Int32
	startc := make(chan struct{})
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-startc
			status, _, _, err := r.do(ctx, http.MethodPost, "/api/rides/"+id+"/match", nil)
			switch {
			case err != nil:
			case status == http.StatusOK:
				won.Add(1)
			case status == http.StatusServiceUnavailable:
				lost.Add(1)
			}
		}(id)
	}
	close(startc)
	wg.Wait()

	note := fmt.Sprintf("won=%d lost=%d", won.Load(), lost.Load())
	if won.Load() != 1 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.do(ctx, http.MethodPost, path, payload)
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) do(ctx context.Context, method, path string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), err
}

func expect(status int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func failed(step string, status int, body []byte, err error) Result {
	if err != nil {
		return Result{Status: statusFail, Note: step + ": " + err.Error()}
	}
	return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d body=%s", step, status, bytes.TrimSpace(body))}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

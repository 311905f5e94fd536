// README: Smoke cases: environment, schema, public endpoints, ride flow, concurrency, and load.
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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

// Nairobi CBD and Westlands.
var (
	pickup  = map[string]float64{"lat": -1.2864, "lng": 36.8172}
	dropoff = map[string]float64{"lat": -1.2676, "lng": 36.8108}
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// Filled in by earlier cases.
	driverIDs []string
	rideID    string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

// RunAll runs every case in order, handing each result to done as it
// finishes. Later cases reuse ids created by earlier ones.
func (r *Runner) RunAll(ctx context.Context, done func(Result)) {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	for _, tc := range r.cases() {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		done(res)
	}
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: statusFail, Note: "redis not configured"}
				}
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: apply (optional)",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: statusSkip, Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				b, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, stmt := range splitSQL(string(b)) {
					if _, err := r.db.Exec(ctx, stmt); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
				}
				return Result{Status: statusPass}
			},
		},
		{
			Name: "Migration: tables exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: statusFail, Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				for _, t := range tables {
					var ok bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&ok)
					if err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					if !ok {
						return Result{Status: statusFail, Note: "missing table: " + t}
					}
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},

		expectCase("API: health", http.MethodGet, "/health", "", nil, http.StatusOK),
		expectCase("API: metrics exposed", http.MethodGet, "/metrics", "", nil, http.StatusOK),
		expectCase("API: missing bearer -> 401", http.MethodGet, "/api/rides/active", "", nil, http.StatusUnauthorized),
		{
			Name: "Webhook: malformed body still acknowledged",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, latency, err := r.call(ctx, http.MethodPost, "/payment/status", "", "Body=not+json")
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if status != http.StatusOK || string(body) != "success" {
					return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%q", status, body)}
				}
				return Result{Status: statusPass, Latency: latency}
			},
		},

		{
			Name: "Account: register customer",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" {
					return Result{Status: statusSkip, Note: "no customer token"}
				}
				return r.register(ctx, r.cfg.CustomerToken, "bench-customer", false)
			},
		},
		{
			Name: "Account: register drivers",
			Run: func(ctx context.Context, r *Runner) Result {
				if len(r.cfg.DriverTokens) == 0 {
					return Result{Status: statusSkip, Note: "no driver tokens"}
				}
				for i, tok := range r.cfg.DriverTokens {
					if res := r.register(ctx, tok, fmt.Sprintf("bench-driver-%d", i), true); res.Status != statusPass {
						return res
					}
					var me struct {
						ID string `json:"id"`
					}
					if err := r.getJSON(ctx, "/api/accounts/me", tok, &me); err != nil {
						return Result{Status: statusFail, Note: err.Error()}
					}
					r.driverIDs = append(r.driverIDs, me.ID)
				}
				return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", len(r.driverIDs))}
			},
		},
		{
			Name: "Location: driver sample",
			Run: func(ctx context.Context, r *Runner) Result {
				if len(r.cfg.DriverTokens) == 0 {
					return Result{Status: statusSkip, Note: "no driver tokens"}
				}
				return r.expect(ctx, http.MethodPost, "/api/location", r.cfg.DriverTokens[0], pickup, http.StatusCreated)
			},
		},
		{
			Name: "Location: invalid coords -> 400",
			Run: func(ctx context.Context, r *Runner) Result {
				if len(r.cfg.DriverTokens) == 0 {
					return Result{Status: statusSkip, Note: "no driver tokens"}
				}
				return r.expect(ctx, http.MethodPost, "/api/location", r.cfg.DriverTokens[0],
					map[string]float64{"lat": 123, "lng": 456}, http.StatusBadRequest)
			},
		},
		{
			Name: "Drivers: nearby search",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" {
					return Result{Status: statusSkip, Note: "no customer token"}
				}
				path := fmt.Sprintf("/api/drivers/nearby?lat=%f&lng=%f", pickup["lat"], pickup["lng"])
				return r.expect(ctx, http.MethodGet, path, r.cfg.CustomerToken, nil, http.StatusOK)
			},
		},
		{
			Name: "Ride: create with driver auto-requests",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" || len(r.driverIDs) == 0 {
					return Result{Status: statusSkip, Note: "needs customer and driver tokens"}
				}
				status, body, latency, err := r.call(ctx, http.MethodPost, "/api/rides", r.cfg.CustomerToken, map[string]any{
					"driver_id":      r.driverIDs[0],
					"origin":         pickup,
					"destination":    dropoff,
					"payment_method": "cash",
				})
				if err != nil {
					return Result{Status: statusFail, Note: err.Error()}
				}
				if status != http.StatusCreated {
					return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, body)}
				}
				var ride struct {
					ID    string `json:"id"`
					State string `json:"state"`
				}
				_ = json.Unmarshal(body, &ride)
				r.rideID = ride.ID
				if ride.State != "requested" {
					return Result{Status: statusFail, Latency: latency, Note: "state=" + ride.State}
				}
				return Result{Status: statusPass, Latency: latency, Note: "ride=" + ride.ID}
			},
		},
		{
			Name: "Ride: second active ride -> 409",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides", r.cfg.CustomerToken, map[string]any{"origin": pickup}, http.StatusConflict)
			},
		},
		{
			Name: "Ride: allowed events listed",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return r.expect(ctx, http.MethodGet, "/api/rides/"+r.rideID+"/events", r.cfg.CustomerToken, nil, http.StatusOK)
			},
		},
		{
			Name: "Concurrency: multi accept same ride",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return concurrentAccept(ctx, r)
			},
		},
		{
			Name: "Ride: customer cancels",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/transitions/cancel", r.cfg.CustomerToken, nil, http.StatusOK)
			},
		},
		{
			Name: "Ride: canceled cannot be accepted -> 409",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: statusSkip, Note: "no ride"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/transitions/accept", r.cfg.DriverTokens[0], nil, http.StatusConflict)
			},
		},

		{
			Name: "Errors: client report recorded",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.cfg.CustomerToken == "" {
					return Result{Status: statusSkip, Note: "no customer token"}
				}
				return r.expect(ctx, http.MethodPost, "/api/errors", r.cfg.CustomerToken,
					map[string]string{"level": "info", "message": "bench run"}, http.StatusCreated)
			},
		},

		{
			Name: "Perf: location sample throughput",
			Run: func(ctx context.Context, r *Runner) Result {
				if len(r.cfg.DriverTokens) == 0 {
					return Result{Status: statusSkip, Note: "no driver tokens"}
				}
				return perfLoad(ctx, r, "/api/location", r.cfg.DriverTokens[0], pickup)
			},
		},
	}
}

func expectCase(name, method, path, token string, body any, want int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, method, path, token, body, want)
		},
	}
}

func (r *Runner) expect(ctx context.Context, method, path, token string, body any, want int) Result {
	status, resp, latency, err := r.call(ctx, method, path, token, body)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d body=%s", status, want, truncate(resp))}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

// register treats an existing account as success so the runner can be rerun.
func (r *Runner) register(ctx context.Context, token, username string, driver bool) Result {
	status, resp, latency, err := r.call(ctx, http.MethodPost, "/api/accounts", token, map[string]any{
		"username":  username,
		"phone":     "254700000000",
		"is_driver": driver,
	})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != http.StatusCreated && status != http.StatusConflict {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", status, truncate(resp))}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func (r *Runner) getJSON(ctx context.Context, path, token string, out any) error {
	status, body, _, err := r.call(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: status=%d", path, status)
	}
	return json.Unmarshal(body, out)
}

// call sends body as JSON unless it is a string, which is sent form encoded.
func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
		contentType = "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, time.Since(start), err
}

// concurrentAccept races every driver token on the same ride. Exactly one
// accept may win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if len(r.cfg.DriverTokens) < 2 {
		return Result{Status: statusSkip, Note: "needs at least two driver tokens"}
	}
	path := "/api/rides/" + r.rideID + "/transitions/accept"
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
		lost int
	)
	for _, tok := range r.cfg.DriverTokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			status, _, _, err := r.call(ctx, http.MethodPost, path, tok, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case status == http.StatusOK:
				succ++
			case status == http.StatusConflict:
				lost++
			}
		}(tok)
	}
	wg.Wait()

	note := fmt.Sprintf("success=%d conflict=%d", succ, lost)
	if succ == 1 {
		return Result{Status: statusPass, Note: note}
	}
	return Result{Status: statusFail, Note: note}
}

func perfLoad(ctx context.Context, r *Runner, path, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, http.MethodPost, path, token, payload)
				mu.Lock()
				if err != nil || status >= 500 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
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
	cleaned := strings.Join(filtered, "\n")
	parts := strings.Split(cleaned, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

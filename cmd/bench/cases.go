// README: Runner checks: environment, schema, ride flow, accept race and throughput.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/infra"
	"ridehail/migrations"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var (
	almatyOrigin      = "43.2025,76.8921"
	almatyDestination = "43.20917,76.76028"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	tokens *infra.JWTVerifier
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

func NewRunner(cfg Config) *Runner {
	r := &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
	if cfg.JWTSecret != "" {
		r.tokens = infra.NewJWTVerifier(cfg.JWTSecret)
	}
	return r
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
		defer r.redis.Close()
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

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Schema: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "Ride: full lifecycle", Run: authed(checkLifecycle)},
		{Name: "Ride: invalid coordinate -> 400", Run: authed(checkInvalidCoordinate)},
		{Name: "Ride: cancel without reason -> 400", Run: authed(checkCancelNeedsReason)},
		{Name: "Presence: parked driver discoverable", Run: authed(checkParking)},
		{Name: "Concurrency: multi accept same ride", Run: authed(checkAcceptRace)},
		{Name: "Perf: price quote throughput", Run: authed(checkPriceThroughput)},
	}
}

func authed(fn func(ctx context.Context, r *Runner) Result) func(ctx context.Context, r *Runner) Result {
	return func(ctx context.Context, r *Runner) Result {
		if r.tokens == nil {
			return Result{Status: statusSkip, Note: "jwt-secret not set"}
		}
		return fn(ctx, r)
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

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	sql, err := migrations.FS.ReadFile("0001_init.sql")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, m := range createTableRe.FindAllStringSubmatch(string(sql), -1) {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", m[1],
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + m[1]}
		}
	}
	return Result{Status: statusPass}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	start := time.Now()
	status, _, err := r.do(ctx, "", "", http.MethodGet, "/health", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, http.StatusOK, time.Since(start))
}

func checkLifecycle(ctx context.Context, r *Runner) Result {
	start := time.Now()
	passenger, driver := "bench-p-"+uuid.NewString(), "bench-d-"+uuid.NewString()
	rideID, err := r.requestRide(ctx, passenger)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	steps := []struct {
		path string
		body any
		want string
	}{
		{"/api/rides/accept", map[string]any{"rideId": rideID}, "driver_assigned"},
		{"/api/rides/" + rideID + "/start", nil, "in_progress"},
		{"/api/rides/" + rideID + "/onsite", nil, "on_site"},
		{"/api/rides/" + rideID + "/complete", nil, "completed"},
	}
	for _, s := range steps {
		status, body, err := r.do(ctx, driver, "driver", http.MethodPost, s.path, s.body)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if got := rideStatus(body); status != http.StatusOK || got != s.want {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d ride=%s", s.path, status, got)}
		}
	}
	status, _, err := r.do(ctx, passenger, "passenger", http.MethodPost, "/api/rides/"+rideID+"/cancel",
		map[string]any{"cancellationReason": "too late"})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, http.StatusBadRequest, time.Since(start))
}

func checkInvalidCoordinate(ctx context.Context, r *Runner) Result {
	status, _, err := r.do(ctx, "bench-p", "passenger", http.MethodPost, "/api/rides/request",
		map[string]any{"origin": "123,456", "destination": almatyDestination})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, http.StatusBadRequest, 0)
}

func checkCancelNeedsReason(ctx context.Context, r *Runner) Result {
	passenger := "bench-p-" + uuid.NewString()
	rideID, err := r.requestRide(ctx, passenger)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	status, _, err := r.do(ctx, passenger, "passenger", http.MethodPost, "/api/rides/"+rideID+"/cancel", map[string]any{})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return expect(status, http.StatusBadRequest, 0)
}

func checkParking(ctx context.Context, r *Runner) Result {
	driver := "bench-d-" + uuid.NewString()
	spot := map[string]any{"latitude": 43.2025, "longitude": 76.8921}
	for _, path := range []string{"/api/line/activate", "/api/rides/parking/activate"} {
		status, _, err := r.do(ctx, driver, "driver", http.MethodPost, path, spot)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if status != http.StatusOK {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s: status=%d", path, status)}
		}
	}
	defer r.do(context.WithoutCancel(ctx), driver, "driver", http.MethodPost, "/api/line/deactivate", nil)

	start := time.Now()
	req, err := r.newRequest(ctx, "bench-p", "passenger", http.MethodGet, "/api/rides/parking?latitude=43.2030&longitude=76.8925&radius=1", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	var hits []struct {
		DriverID string `json:"driverId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, h := range hits {
		if h.DriverID == driver {
			return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("hits=%d", len(hits))}
		}
	}
	return Result{Status: statusFail, Note: "driver not in nearby results"}
}

// checkAcceptRace has Concurrency drivers accept one ride at once. Exactly
// one must win; the rest must see ALREADY_ASSIGNED.
func checkAcceptRace(ctx context.Context, r *Runner) Result {
	rideID, err := r.requestRide(ctx, "bench-p-"+uuid.NewString())
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	var won, lost, other atomic.Int64
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(driver string) {
			defer wg.Done()
			<-start
			status, body, err := r.do(ctx, driver, "driver", http.MethodPost, "/api/rides/accept", map[string]any{"rideId": rideID})
			switch {
			case err == nil && status == http.StatusOK:
				won.Add(1)
			case err == nil && body["code"] == "ALREADY_ASSIGNED":
				lost.Add(1)
			default:
				other.Add(1)
			}
		}(fmt.Sprintf("bench-d-%d-%s", i, uuid.NewString()))
	}
	began := time.Now()
	close(start)
	wg.Wait()

	note := fmt.Sprintf("success=%d already_assigned=%d other=%d", won.Load(), lost.Load(), other.Load())
	if won.Load() != 1 || other.Load() != 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Latency: time.Since(began), Note: note}
}

func checkPriceThroughput(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	body := map[string]any{"origin": almatyOrigin, "destination": almatyDestination}
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.do(ctx, uid, "passenger", http.MethodPost, "/api/rides/price", body)
				if err != nil || status != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}(fmt.Sprintf("bench-perf-%d", i))
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) requestRide(ctx context.Context, passenger string) (string, error) {
	status, body, err := r.do(ctx, passenger, "passenger", http.MethodPost, "/api/rides/request",
		map[string]any{"origin": almatyOrigin, "destination": almatyDestination, "city": "almaty"})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("request ride: status=%d body=%v", status, body)
	}
	ride, _ := body["ride"].(map[string]any)
	id, _ := ride["id"].(string)
	if id == "" {
		return "", fmt.Errorf("request ride: no id in %v", body)
	}
	return id, nil
}

func (r *Runner) newRequest(ctx context.Context, uid, role, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		token, err := r.tokens.Sign(uid, role)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (r *Runner) do(ctx context.Context, uid, role, method, path string, body any) (int, map[string]any, error) {
	req, err := r.newRequest(ctx, uid, role, method, path, body)
	if err != nil {
		return 0, nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out, nil
}

func rideStatus(body map[string]any) string {
	ride, _ := body["ride"].(map[string]any)
	s, _ := ride["status"].(string)
	return s
}

func expect(got, want int, latency time.Duration) Result {
	note := fmt.Sprintf("status=%d", got)
	if got != want {
		return Result{Status: statusFail, Latency: latency, Note: note + fmt.Sprintf(" want=%d", want)}
	}
	return Result{Status: statusPass, Latency: latency, Note: note}
}

// README: Bench cases; environment checks, one client/driver ride lifecycle, a cancel race and throughput checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridebook/internal/infra"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// flow carries ids and tokens between lifecycle steps.
	flow flowState
}

type flowState struct {
	clientToken string
	driverToken string
	driverID    string
	rideID      string
	pickupOTP   string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

// envelope mirrors the API response body.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var (
	pickup = map[string]any{"address": "Connaught Place", "lat": 28.6315, "lng": 77.2167}
	drop   = map[string]any{"address": "India Gate", "lat": 28.6129, "lng": 77.2295}
)

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "migrate the database up before running",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if err := infra.MigrateUp(r.cfg.MigrationsDir, r.cfg.DSN); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "every table of the up migrations exists",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationsDir)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "API: health",
			Focus: "server answers",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodGet, base+"/health", "", nil)
				return expect(status, latency, err, http.StatusOK)
			},
		},

		// Auth
		{
			Name:  "Auth: client signup with emailed OTP",
			Focus: "signup + verify-otp issues a session",
			Run: func(ctx context.Context, r *Runner) Result {
				token, _, res := r.signup(ctx, base, "client")
				r.flow.clientToken = token
				return res
			},
		},
		{
			Name:  "Auth: driver signup with emailed OTP",
			Focus: "signup + verify-otp issues a session",
			Run: func(ctx context.Context, r *Runner) Result {
				token, id, res := r.signup(ctx, base, "driver")
				r.flow.driverToken = token
				r.flow.driverID = id
				return res
			},
		},
		{
			Name:  "Auth: approve driver KYC",
			Focus: "drivers are only matched once approved",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil || r.flow.driverID == "" {
					return Result{Status: "SKIP", Note: "needs db and a driver"}
				}
				_, err := r.db.Exec(ctx, `
					INSERT INTO driver_kyc (driver_id, status) VALUES ($1, 'approved')
					ON CONFLICT (driver_id) DO UPDATE SET status = 'approved', updated_at = NOW()`,
					r.flow.driverID)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Auth: missing token -> 401",
			Focus: "protected routes require a bearer token",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodGet, base+"/api/auth/me", "", nil)
				return expect(status, latency, err, http.StatusUnauthorized)
			},
		},

		// Ride lifecycle
		{
			Name:  "Driver: go online at pickup",
			Focus: "online drivers enter the geo index",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPost, base+"/api/driver/toggle-status", r.flow.driverToken, map[string]any{
					"isOnline": true,
					"lat":      pickup["lat"],
					"lng":      pickup["lng"],
				})
				return expect(status, latency, err, http.StatusOK)
			},
		},
		{
			Name:  "Ride: request (missing fields -> 400)",
			Focus: "validation before pricing",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPost, base+"/api/rides", r.flow.clientToken, map[string]any{})
				return expect(status, latency, err, http.StatusBadRequest)
			},
		},
		{
			Name:  "Ride: client requests ride",
			Focus: "ride is priced and a driver assigned",
			Run: func(ctx context.Context, r *Runner) Result {
				status, env, latency, err := r.call(ctx, http.MethodPost, base+"/api/rides", r.flow.clientToken, rideRequest())
				res := expect(status, latency, err, http.StatusCreated)
				if res.Status != "PASS" {
					return res
				}
				var ride struct {
					ID       string  `json:"id"`
					OTP      string  `json:"otp"`
					DriverID *string `json:"driverId"`
				}
				if err := json.Unmarshal(env.Data, &ride); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				r.flow.rideID = ride.ID
				r.flow.pickupOTP = ride.OTP
				if ride.DriverID == nil {
					res.Note = "no driver assigned: " + env.Message
				}
				return res
			},
		},
		driverStep(base, "Driver: accept request", http.MethodPut, "/api/driver/ride/%s/accept", nil, http.StatusOK),
		{
			Name:  "Ride: client on driver route -> 403",
			Focus: "role guard",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPut, base+"/api/rides/"+r.flow.rideID+"/arrived", r.flow.clientToken, nil)
				return expect(status, latency, err, http.StatusForbidden)
			},
		},
		driverStep(base, "Driver: mark arrived", http.MethodPut, "/api/rides/%s/arrived", nil, http.StatusOK),
		driverStep(base, "Driver: wrong pickup OTP -> 400", http.MethodPut, "/api/rides/%s/verify-otp", map[string]any{"otp": "xxxx"}, http.StatusBadRequest),
		{
			Name:  "Driver: verify pickup OTP",
			Focus: "ride starts on the client's code",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPut, base+"/api/rides/"+r.flow.rideID+"/verify-otp", r.flow.driverToken, map[string]any{"otp": r.flow.pickupOTP})
				return expect(status, latency, err, http.StatusOK)
			},
		},
		{
			Name:  "Location: driver reports position",
			Focus: "snapshot stored and broadcast",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPost, base+"/api/driver/location", r.flow.driverToken, map[string]any{
					"rideId": r.flow.rideID,
					"lat":    drop["lat"],
					"lng":    drop["lng"],
				})
				return expect(status, latency, err, http.StatusOK)
			},
		},
		{
			Name:  "Location: client reads trail",
			Focus: "history scoped to the ride's participants",
			Run: func(ctx context.Context, r *Runner) Result {
				status, env, latency, err := r.call(ctx, http.MethodGet, base+"/api/rides/"+r.flow.rideID+"/locations", r.flow.clientToken, nil)
				res := expect(status, latency, err, http.StatusOK)
				if res.Status != "PASS" {
					return res
				}
				var trail []json.RawMessage
				if err := json.Unmarshal(env.Data, &trail); err != nil || len(trail) == 0 {
					return Result{Status: "FAIL", Latency: latency, Note: "empty trail"}
				}
				return res
			},
		},
		driverStep(base, "Driver: payment received", http.MethodPost, "/api/rides/%s/payment-received", nil, http.StatusOK),
		driverStep(base, "Driver: complete ride", http.MethodPost, "/api/rides/%s/complete", nil, http.StatusOK),
		{
			Name:  "Ride: completed is terminal",
			Focus: "cancel after completion is rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				status, _, latency, err := r.call(ctx, http.MethodPut, base+"/api/rides/"+r.flow.rideID+"/cancel", r.flow.clientToken, nil)
				return expect(status, latency, err, http.StatusBadRequest)
			},
		},

		// Concurrency
		{
			Name:  "Concurrency: parallel cancels of one ride",
			Focus: "exactly one cancellation wins",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentCancel(ctx, r, base)
			},
		},

		// Performance
		{
			Name:  "Perf: health throughput",
			Focus: "router and middleware overhead",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, base+"/health", "")
			},
		},
		{
			Name:  "Perf: ride read throughput",
			Focus: "authenticated reads hit postgres",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.flow.rideID == "" {
					return Result{Status: "SKIP", Note: "no ride"}
				}
				return perfLoad(ctx, r, http.MethodGet, base+"/api/rides/"+r.flow.rideID, r.flow.clientToken)
			},
		},
	}
}

func rideRequest() map[string]any {
	return map[string]any{
		"bookingType":    "distance_based",
		"pickupLocation": pickup,
		"dropLocation":   drop,
		"rideType":       "one-way",
		"distanceKm":     3.2,
		"paymentMode":    "pay_after_ride",
	}
}

// driverStep hits a ride-scoped driver route; path takes the ride id.
func driverStep(base, name, method, path string, body any, want int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "driver lifecycle",
		Run: func(ctx context.Context, r *Runner) Result {
			if r.flow.rideID == "" {
				return Result{Status: "SKIP", Note: "no ride"}
			}
			status, _, latency, err := r.call(ctx, method, base+fmt.Sprintf(path, r.flow.rideID), r.flow.driverToken, body)
			return expect(status, latency, err, want)
		},
	}
}

// signup registers a fresh account, reading the emailed code back from Redis.
func (r *Runner) signup(ctx context.Context, base, role string) (string, string, Result) {
	if r.redis == nil {
		return "", "", Result{Status: "SKIP", Note: "redis needed to read the OTP"}
	}
	email := fmt.Sprintf("bench-%s-%s@example.com", role, uuid.NewString()[:8])
	status, _, _, err := r.call(ctx, http.MethodPost, base+"/api/auth/signup", "", map[string]any{"email": email})
	if res := expect(status, 0, err, http.StatusOK); res.Status != "PASS" {
		return "", "", res
	}
	code, err := r.redis.HGet(ctx, "otp:email:"+email, "code").Result()
	if err != nil {
		return "", "", Result{Status: "FAIL", Note: "otp lookup: " + err.Error()}
	}

	status, env, latency, err := r.call(ctx, http.MethodPost, base+"/api/auth/verify-otp", "", map[string]any{
		"name":     "Bench " + role,
		"email":    email,
		"mobile":   "9999999999",
		"password": "bench-secret",
		"role":     role,
		"otp":      code,
	})
	res := expect(status, latency, err, http.StatusOK)
	if res.Status != "PASS" {
		return "", "", res
	}
	var sess struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		return "", "", Result{Status: "FAIL", Note: err.Error()}
	}

	_, me, _, err := r.call(ctx, http.MethodGet, base+"/api/auth/me", sess.Token, nil)
	if err != nil {
		return "", "", Result{Status: "FAIL", Note: err.Error()}
	}
	var profile struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(me.Data, &profile)
	return sess.Token, profile.ID, res
}

func (r *Runner) call(ctx context.Context, method, url, token string, body any) (int, envelope, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, envelope{}, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, envelope{}, 0, err
	}
	defer resp.Body.Close()
	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env, time.Since(start), nil
}

func expect(status int, latency time.Duration, err error, want int) Result {
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	note := fmt.Sprintf("status=%d", status)
	if status == want {
		return Result{Status: "PASS", Latency: latency, Note: note}
	}
	if status == http.StatusNotFound || status == http.StatusNotImplemented {
		return Result{Status: "PENDING", Latency: latency, Note: note}
	}
	return Result{Status: "FAIL", Latency: latency, Note: note}
}

func concurrentCancel(ctx context.Context, r *Runner, base string) Result {
	if r.flow.clientToken == "" {
		return Result{Status: "SKIP", Note: "no client session"}
	}
	status, env, _, err := r.call(ctx, http.MethodPost, base+"/api/rides", r.flow.clientToken, rideRequest())
	if res := expect(status, 0, err, http.StatusCreated); res.Status != "PASS" {
		return res
	}
	var ride struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &ride); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		succ int
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, _, err := r.call(ctx, http.MethodPut, base+"/api/rides/"+ride.ID+"/cancel", r.flow.clientToken, nil)
			if err != nil {
				return
			}
			if status == http.StatusOK {
				mu.Lock()
				succ++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succ == 1 {
		return Result{Status: "PASS", Note: fmt.Sprintf("success=%d", succ)}
	}
	return Result{Status: "FAIL", Note: fmt.Sprintf("success=%d", succ)}
}

func perfLoad(ctx context.Context, r *Runner, method, url, token string) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count int64
	var errCount int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, _, err := r.call(ctx, method, url, token, nil)
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
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

var createTableRe = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		for _, m := range createTableRe.FindAllStringSubmatch(string(b), -1) {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}

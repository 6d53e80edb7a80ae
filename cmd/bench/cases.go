// README: Smoke and load cases for the itinerary, chat and location APIs plus DB/Redis checks.
package main

import (
	"bufio"
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

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
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

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 90 * time.Second},
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
			Focus: "itinerary archive reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
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
			Focus: "transcript store reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
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
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the migration file exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
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
		httpCaseMethod("API: health", http.MethodGet, base+"/health", nil, []int{200}, nil),

		// Itinerary
		httpCase("Itinerary: missing destination -> 400", base+"/api/itineraries", map[string]any{
			"planner_id": "bench",
			"days":       3,
		}, []int{400}, nil),
		httpCase("Itinerary: unknown vibe -> 400", base+"/api/itineraries", map[string]any{
			"planner_id":  "bench",
			"destination": "Lisbon",
			"vibe":        "Rave",
		}, []int{400}, nil),
		httpCase("Itinerary: too many days -> 400", base+"/api/itineraries", map[string]any{
			"planner_id":  "bench",
			"destination": "Lisbon",
			"days":        30,
		}, []int{400}, nil),
		httpCaseMethod("Itinerary: current for unknown planner -> 404", http.MethodGet,
			base+fmt.Sprintf("/api/itineraries/current?planner_id=bench_%d", time.Now().UnixNano()), nil, []int{404}, nil),
		httpCaseMethod("Itinerary: history", http.MethodGet, base+"/api/itineraries/history?limit=5", nil, []int{200}, []int{501}),
		httpCaseMethod("Itinerary: allowance", http.MethodGet, base+"/api/itineraries/allowance?planner_id=bench", nil, []int{200}, []int{501}),
		{
			Name:  "Itinerary: generate (live model)",
			Focus: "structured generation end to end",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.LiveModel {
					return Result{Status: "SKIP", Note: "live=false"}
				}
				return r.generateItinerary(ctx, base)
			},
		},

		// Chat
		httpCase("Chat: create conversation", base+"/api/chat/conversations", nil, []int{201}, nil),
		{
			Name:  "Chat: empty message -> 400",
			Focus: "validation before any remote call",
			Run: func(ctx context.Context, r *Runner) Result {
				id, err := r.createConversation(ctx, base)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return r.expectStatus(ctx, http.MethodPost, base+"/api/chat/conversations/"+id+"/messages", map[string]any{"text": " "}, 400)
			},
		},
		httpCase("Chat: unknown conversation -> 404", base+"/api/chat/conversations/missing/messages", map[string]any{
			"text": "hello",
		}, []int{404}, nil),
		{
			Name:  "Chat: streamed turn (live model)",
			Focus: "SSE snapshots end with done",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.LiveModel {
					return Result{Status: "SKIP", Note: "live=false"}
				}
				return r.streamTurn(ctx, base)
			},
		},
		{
			Name:  "Chat: transcript persisted in Redis",
			Focus: "conversation survives restart",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				id, err := r.createConversation(ctx, base)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				n, err := r.redis.Exists(ctx, "travelflow:conversation:"+id).Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if n != 1 {
					return Result{Status: "FAIL", Note: "transcript key missing"}
				}
				return Result{Status: "PASS"}
			},
		},

		// Location
		{
			Name:  "Location: denial recorded",
			Focus: "denial never errors",
			Run: func(ctx context.Context, r *Runner) Result {
				id, err := r.createConversation(ctx, base)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return r.expectStatus(ctx, http.MethodPost, base+"/api/chat/conversations/"+id+"/location", map[string]any{
					"granted": false,
					"reason":  "User denied Geolocation",
				}, 200)
			},
		},
		{
			Name:  "Location: invalid coords -> 400",
			Focus: "coordinates validated",
			Run: func(ctx context.Context, r *Runner) Result {
				id, err := r.createConversation(ctx, base)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return r.expectStatus(ctx, http.MethodPost, base+"/api/chat/conversations/"+id+"/location", map[string]any{
					"granted":   true,
					"latitude":  123.0,
					"longitude": 456.0,
				}, 400)
			},
		},

		manualCase("Chat: overlapping send -> 409", "send twice while the first response streams"),
		manualCase("Chat: client disconnect keeps turn", "close the SSE connection mid-stream, then list messages"),
		manualCase("Error: Gemini key revoked -> 502", "rotate the key and generate an itinerary"),

		// Performance
		{
			Name:  "Perf: health throughput",
			Focus: "router and middleware overhead",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodGet, base+"/health", nil)
			},
		},
		{
			Name:  "Perf: create conversation throughput",
			Focus: "transcript store writes",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, http.MethodPost, base+"/api/chat/conversations", nil)
			},
		},
	}
}

func (r *Runner) newRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)
	}
	return req, nil
}

func (r *Runner) expectStatus(ctx context.Context, method, url string, body any, want int) Result {
	req, err := r.newRequest(ctx, method, url, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	latency := time.Since(start)
	if resp.StatusCode != want {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
}

func (r *Runner) createConversation(ctx context.Context, base string) (string, error) {
	req, err := r.newRequest(ctx, http.MethodPost, base+"/api/chat/conversations", nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create conversation: status=%d", resp.StatusCode)
	}
	var conv struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (r *Runner) generateItinerary(ctx context.Context, base string) Result {
	req, err := r.newRequest(ctx, http.MethodPost, base+"/api/itineraries", map[string]any{
		"planner_id":  "bench",
		"destination": "Lisbon",
		"days":        2,
		"vibe":        "Foodie",
		"interests":   "pastries, viewpoints",
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if resp.StatusCode != http.StatusCreated {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	var plan struct {
		Itinerary struct {
			Days []struct {
				Day int `json:"day"`
			} `json:"itinerary"`
		} `json:"itinerary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return Result{Status: "FAIL", Latency: latency, Note: err.Error()}
	}
	for i, d := range plan.Itinerary.Days {
		if d.Day != i+1 {
			return Result{Status: "FAIL", Latency: latency, Note: "days out of sequence"}
		}
	}
	return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("days=%d", len(plan.Itinerary.Days))}
}

// streamTurn sends one message and reads the event stream to its terminal event.
func (r *Runner) streamTurn(ctx context.Context, base string) Result {
	id, err := r.createConversation(ctx, base)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	req, err := r.newRequest(ctx, http.MethodPost, base+"/api/chat/conversations/"+id+"/messages", map[string]any{
		"text": "Suggest one cafe for breakfast in Lisbon.",
	})
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: "FAIL", Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}

	var firstChunk time.Duration
	snapshots := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		event, ok := strings.CutPrefix(scanner.Text(), "event:")
		if !ok {
			continue
		}
		switch strings.TrimSpace(event) {
		case "message":
			if snapshots == 0 {
				firstChunk = time.Since(start)
			}
			snapshots++
		case "done":
			return Result{Status: "PASS", Latency: time.Since(start), Note: fmt.Sprintf("first=%s snapshots=%d", firstChunk, snapshots)}
		case "error":
			return Result{Status: "FAIL", Latency: time.Since(start), Note: "turn failed"}
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	return Result{Status: "FAIL", Note: "stream ended without a terminal event"}
}

func httpCase(name, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, okStatuses, pendingStatuses)
}

func httpCaseMethod(name, method, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			req, err := r.newRequest(ctx, method, url, body)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			start := time.Now()
			resp, err := r.httpc.Do(req)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			latency := time.Since(start)

			if contains(okStatuses, resp.StatusCode) {
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			if contains(pendingStatuses, resp.StatusCode) {
				return Result{Status: "PENDING", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
			}
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

func perfLoad(ctx context.Context, r *Runner, method, url string, payload any) Result {
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
				req, err := r.newRequest(ctx, method, url, payload)
				if err != nil {
					return
				}
				resp, err := r.httpc.Do(req)
				if err != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				mu.Lock()
				count++
				if resp.StatusCode >= 400 {
					errCount++
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

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
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

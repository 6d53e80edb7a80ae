// README: Handler tests over a gin test router with fake model providers.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/iterator"

	"travelflow/internal/ai"
	"travelflow/internal/http/handlers"
	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/itinerary"
	"travelflow/internal/modules/location"
	"travelflow/internal/types"
)

// stubPlanner is a test double for ai.ItineraryPlanner.
type stubPlanner struct {
	it  *ai.Itinerary
	err error
}

func (s *stubPlanner) PlanItinerary(_ context.Context, _ ai.TripRequest) (*ai.Itinerary, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.it
	return &cp, nil
}

// stubSessions is a test double for ai.SessionFactory.
type stubSessions struct {
	chunks []string
	gate   chan struct{}
}

func (s *stubSessions) NewSession(_ context.Context, _ *types.Point) (ai.ChatSession, error) {
	return s, nil
}

func (s *stubSessions) SendMessageStream(ctx context.Context, _ string) (ai.ChunkStream, error) {
	return &stubStream{ctx: ctx, chunks: s.chunks, gate: s.gate}, nil
}

type stubStream struct {
	ctx    context.Context
	chunks []string
	gate   chan struct{}
}

func (s *stubStream) Next() (ai.StreamChunk, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-s.ctx.Done():
			return ai.StreamChunk{}, s.ctx.Err()
		}
	}
	if len(s.chunks) == 0 {
		return ai.StreamChunk{}, iterator.Done
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return ai.StreamChunk{Text: c}, nil
}

func (s *stubStream) Close() error { return nil }

// closeNotifyingRecorder lets gin's Stream run against a recorder.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool { return r.closed }

type testEnv struct {
	router  *gin.Engine
	planner *stubPlanner
}

func sampleItinerary() *ai.Itinerary {
	return &ai.Itinerary{
		Destination: "Lisbon",
		Duration:    "1 Day",
		Days: []ai.ItineraryDay{{
			Day:   1,
			Theme: "Old town",
			Activities: []ai.ItineraryActivity{
				{Time: "9:00 AM", Activity: "Breakfast", Description: "Pastries.", Location: "Manteigaria"},
			},
		}},
	}
}

func buildTestRouter(sessions *stubSessions) *testEnv {
	gin.SetMode(gin.TestMode)
	planner := &stubPlanner{it: sampleItinerary()}
	itinerarySvc := itinerary.NewService(planner, itinerary.Options{})
	chatSvc := chat.NewService(sessions, chat.Options{})
	locationSvc := location.NewService(chatSvc, nil)

	r := gin.New()
	ih := handlers.NewItineraryHandler(itinerarySvc)
	r.POST("/api/itineraries", ih.Generate)
	r.GET("/api/itineraries/current", ih.Current)
	r.DELETE("/api/itineraries/current", ih.Reset)
	r.GET("/api/itineraries/history", ih.History)
	r.GET("/api/itineraries/allowance", ih.Allowance)

	ch := handlers.NewChatHandler(chatSvc, locationSvc)
	r.POST("/api/chat/conversations", ch.Create)
	r.GET("/api/chat/conversations/:id/messages", ch.Messages)
	r.POST("/api/chat/conversations/:id/messages", ch.Send)
	r.POST("/api/chat/conversations/:id/stop", ch.Stop)

	lh := handlers.NewLocationHandler(chatSvc, locationSvc)
	r.POST("/api/chat/conversations/:id/location", lh.Report)
	r.GET("/api/chat/conversations/:id/location", lh.Status)
	return &testEnv{router: r, planner: planner}
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)
	return w.ResponseRecorder
}

func createConversation(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := doRequest(r, http.MethodPost, "/api/chat/conversations", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create conversation: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID       string              `json:"id"`
		Messages []chat.Message      `json:"messages"`
		Location location.Permission `json:"location"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != chat.WelcomeMessageID {
		t.Fatalf("expected welcome message, got %+v", resp.Messages)
	}
	if resp.Location.State != location.PermissionUnknown {
		t.Fatalf("expected unknown location state, got %q", resp.Location.State)
	}
	return resp.ID
}

func TestGenerateItinerary(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	w := doRequest(env.router, http.MethodPost, "/api/itineraries", map[string]any{
		"planner_id":  "p1",
		"destination": "Lisbon",
		"days":        1,
		"vibe":        "foodie",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(env.router, http.MethodGet, "/api/itineraries/current?planner_id=p1", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Manteigaria") {
		t.Errorf("expected current itinerary, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGenerateItineraryFailureKeepsCurrent(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	body := map[string]any{"planner_id": "p1", "destination": "Lisbon", "days": 1, "vibe": "Relaxed"}
	if w := doRequest(env.router, http.MethodPost, "/api/itineraries", body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	env.planner.err = &ai.GenerationError{Op: "decode", Err: errors.New("bad json")}
	w := doRequest(env.router, http.MethodPost, "/api/itineraries", body)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "Failed to generate itinerary. Please try again." {
		t.Errorf("unexpected error body %q", resp["error"])
	}

	w = doRequest(env.router, http.MethodGet, "/api/itineraries/current?planner_id=p1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected previous itinerary to remain, got %d", w.Code)
	}
}

func TestItineraryBadRequests(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing destination", http.MethodPost, "/api/itineraries", map[string]any{"planner_id": "p1", "days": 2}, http.StatusBadRequest},
		{"too many days", http.MethodPost, "/api/itineraries", map[string]any{"planner_id": "p1", "destination": "Rome", "days": 30}, http.StatusBadRequest},
		{"unknown vibe", http.MethodPost, "/api/itineraries", map[string]any{"planner_id": "p1", "destination": "Rome", "vibe": "Rave"}, http.StatusBadRequest},
		{"current without planner", http.MethodGet, "/api/itineraries/current", nil, http.StatusBadRequest},
		{"current unknown planner", http.MethodGet, "/api/itineraries/current?planner_id=nobody", nil, http.StatusNotFound},
		{"history without archive", http.MethodGet, "/api/itineraries/history", nil, http.StatusNotImplemented},
		{"history bad limit", http.MethodGet, "/api/itineraries/history?limit=x", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(env.router, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestResetItinerary(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	body := map[string]any{"planner_id": "p1", "destination": "Lisbon"}
	if w := doRequest(env.router, http.MethodPost, "/api/itineraries", body); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodDelete, "/api/itineraries/current?planner_id=p1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodGet, "/api/itineraries/current?planner_id=p1", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after reset, got %d", w.Code)
	}
}

func TestSendMessageStreamsEvents(t *testing.T) {
	env := buildTestRouter(&stubSessions{chunks: []string{"Hel", "lo", "!"}})
	id := createConversation(t, env.router)

	w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/messages", map[string]string{"text": "Hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("expected event stream, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event:user") || !strings.Contains(body, "event:done") {
		t.Errorf("missing user or done event: %s", body)
	}
	if !strings.Contains(body, `"Hello!"`) {
		t.Errorf("expected final text in done event: %s", body)
	}

	w = doRequest(env.router, http.MethodGet, "/api/chat/conversations/"+id+"/messages", nil)
	var conv struct {
		Messages []chat.Message `json:"messages"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &conv)
	if len(conv.Messages) != 3 || conv.Messages[2].Text != "Hello!" {
		t.Errorf("unexpected transcript: %+v", conv.Messages)
	}
}

// sseEvents splits an event-stream body into (event, data) pairs.
func sseEvents(body string) [][2]string {
	var out [][2]string
	for _, block := range strings.Split(body, "\n\n") {
		var name, data string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimPrefix(line, "data:")
			}
		}
		if name != "" {
			out = append(out, [2]string{name, data})
		}
	}
	return out
}

// TestSendMessageFinalSnapshotPrecedesDone verifies the last message event
// carries the full text even when the turn ends before the stream is read.
func TestSendMessageFinalSnapshotPrecedesDone(t *testing.T) {
	for i := 0; i < 20; i++ {
		env := buildTestRouter(&stubSessions{chunks: []string{"Hel", "lo", "!"}})
		id := createConversation(t, env.router)

		w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/messages", map[string]string{"text": "Hi"})
		events := sseEvents(w.Body.String())
		if len(events) < 3 || events[len(events)-1][0] != "done" {
			t.Fatalf("expected events ending in done, got %v", events)
		}
		last := events[len(events)-2]
		if last[0] != "message" || !strings.Contains(last[1], `"Hello!"`) {
			t.Fatalf("expected final message snapshot before done, got %v", last)
		}
	}
}

func TestSendMessageErrors(t *testing.T) {
	gate := make(chan struct{})
	env := buildTestRouter(&stubSessions{gate: gate})
	id := createConversation(t, env.router)

	if w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/messages", map[string]string{"text": "  "}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty text, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/missing/messages", map[string]string{"text": "hi"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown conversation, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodGet, "/api/chat/conversations/missing/messages", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown conversation, got %d", w.Code)
	}

	// stopping the gated turn ends its stream with an error event
	stopped := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		stopped <- doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/messages", map[string]string{"text": "hi"})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := doRequest(env.router, http.MethodGet, "/api/chat/conversations/"+id+"/messages", nil)
		if strings.Contains(w.Body.String(), `"streaming":true`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("turn never started streaming")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/messages", map[string]string{"text": "again"}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 while a turn is in flight, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/"+id+"/stop", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"stopped":true`) {
		t.Errorf("expected stop to succeed, got %d: %s", w.Code, w.Body.String())
	}
	w := <-stopped
	if !strings.Contains(w.Body.String(), "event:error") || !strings.Contains(w.Body.String(), chat.ErrorMessageText) {
		t.Errorf("expected error event with error message: %s", w.Body.String())
	}
}

func TestReportLocation(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	id := createConversation(t, env.router)
	path := "/api/chat/conversations/" + id + "/location"

	w := doRequest(env.router, http.MethodPost, path, map[string]any{"granted": false, "reason": "User denied Geolocation"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"denied"`) {
		t.Errorf("expected denial recorded, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(env.router, http.MethodPost, path, map[string]any{"granted": true, "latitude": 38.72, "longitude": -9.14})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"state":"granted"`) {
		t.Errorf("expected grant recorded, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(env.router, http.MethodGet, "/api/chat/conversations/"+id+"/messages", nil)
	if !strings.Contains(w.Body.String(), `"state":"granted"`) {
		t.Errorf("expected location state with conversation: %s", w.Body.String())
	}

	if w := doRequest(env.router, http.MethodPost, path, map[string]any{"granted": true, "latitude": 120.0, "longitude": 0.0}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid coordinates, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodPost, "/api/chat/conversations/missing/location", map[string]any{"granted": false}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown conversation, got %d", w.Code)
	}
}

func TestAllowanceWithoutQuota(t *testing.T) {
	env := buildTestRouter(&stubSessions{})
	if w := doRequest(env.router, http.MethodGet, "/api/itineraries/allowance", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without planner_id, got %d", w.Code)
	}
	if w := doRequest(env.router, http.MethodGet, "/api/itineraries/allowance?planner_id=p1", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501 without a configured allowance, got %d", w.Code)
	}
}

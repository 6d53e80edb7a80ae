package ai

import (
	"errors"
	"net/url"
	"testing"

	"google.golang.org/api/iterator"

	googlegenai "google.golang.org/genai"

	"travelflow/internal/types"
)

func TestChatConfigWithoutLocation(t *testing.T) {
	cfg := chatConfig(nil, 0)
	if cfg.ToolConfig != nil {
		t.Errorf("expected no retrieval config without a location, got %+v", cfg.ToolConfig)
	}
	if len(cfg.Tools) != 2 || cfg.Tools[0].GoogleSearch == nil || cfg.Tools[1].GoogleMaps == nil {
		t.Fatalf("expected search and maps tools, got %+v", cfg.Tools)
	}
	if cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != chatSystemInstruction {
		t.Errorf("system instruction not set")
	}
	if cfg.Temperature != nil {
		t.Errorf("expected default temperature, got %v", *cfg.Temperature)
	}
}

func TestChatConfigWithLocation(t *testing.T) {
	cfg := chatConfig(&types.Point{Lat: 35.0116, Lng: 135.7681}, 0.7)
	if cfg.ToolConfig == nil || cfg.ToolConfig.RetrievalConfig == nil || cfg.ToolConfig.RetrievalConfig.LatLng == nil {
		t.Fatalf("expected lat/lng retrieval config")
	}
	ll := cfg.ToolConfig.RetrievalConfig.LatLng
	if *ll.Latitude != 35.0116 || *ll.Longitude != 135.7681 {
		t.Errorf("unexpected lat/lng %v,%v", *ll.Latitude, *ll.Longitude)
	}
	if len(cfg.Tools) != 2 {
		t.Errorf("tools must stay enabled with a location, got %d", len(cfg.Tools))
	}
}

func TestChunkFromResponse(t *testing.T) {
	resp := &googlegenai.GenerateContentResponse{
		Candidates: []*googlegenai.Candidate{{
			Content: &googlegenai.Content{Parts: []*googlegenai.Part{
				{Text: "thinking...", Thought: true},
				{Text: "Hel"},
				{Text: "lo"},
			}},
			GroundingMetadata: &googlegenai.GroundingMetadata{GroundingChunks: []*googlegenai.GroundingChunk{
				{Web: &googlegenai.GroundingChunkWeb{URI: "https://a.example", Title: "A"}},
				{RetrievedContext: &googlegenai.GroundingChunkRetrievedContext{}},
				{Maps: &googlegenai.GroundingChunkMaps{
					URI:     "https://maps.example/p",
					Title:   "Cafe",
					PlaceID: "places/123",
					PlaceAnswerSources: &googlegenai.GroundingChunkMapsPlaceAnswerSources{
						ReviewSnippets: []*googlegenai.GroundingChunkMapsPlaceAnswerSourcesReviewSnippet{{
							Review:            "Lovely",
							AuthorAttribution: &googlegenai.GroundingChunkMapsPlaceAnswerSourcesAuthorAttribution{DisplayName: "Ana"},
						}},
					},
				}},
			}},
		}},
	}

	chunk := chunkFromResponse(resp)
	if chunk.Text != "Hello" {
		t.Errorf("expected text Hello, got %q", chunk.Text)
	}
	if len(chunk.Grounding) != 2 {
		t.Fatalf("expected 2 grounding chunks, got %d", len(chunk.Grounding))
	}
	if w, ok := chunk.Grounding[0].(WebSource); !ok || w.URI != "https://a.example" {
		t.Errorf("expected web source first, got %#v", chunk.Grounding[0])
	}
	p, ok := chunk.Grounding[1].(PlaceSource)
	if !ok {
		t.Fatalf("expected place source second, got %#v", chunk.Grounding[1])
	}
	if p.PlaceID != "places/123" || len(p.ReviewSnippets) != 1 || p.ReviewSnippets[0].Author != "Ana" {
		t.Errorf("unexpected place source %+v", p)
	}
}

func TestChunkFromResponseEmpty(t *testing.T) {
	if c := chunkFromResponse(nil); c.Text != "" || c.Grounding != nil {
		t.Errorf("expected zero chunk, got %+v", c)
	}
	if c := chunkFromResponse(&googlegenai.GenerateContentResponse{}); c.Text != "" || c.Grounding != nil {
		t.Errorf("expected zero chunk, got %+v", c)
	}
}

// pulled builds a chunk stream over a fixed sequence of responses and errors.
func pulled(steps ...func() (*googlegenai.GenerateContentResponse, error)) *geminiChunkStream {
	i := 0
	return &geminiChunkStream{
		next: func() (*googlegenai.GenerateContentResponse, error, bool) {
			if i >= len(steps) {
				return nil, nil, false
			}
			resp, err := steps[i]()
			i++
			return resp, err, true
		},
		stop: func() {},
	}
}

func textResponse(text string) func() (*googlegenai.GenerateContentResponse, error) {
	return func() (*googlegenai.GenerateContentResponse, error) {
		return &googlegenai.GenerateContentResponse{Candidates: []*googlegenai.Candidate{{
			Content: &googlegenai.Content{Parts: []*googlegenai.Part{{Text: text}}},
		}}}, nil
	}
}

func failure(err error) func() (*googlegenai.GenerateContentResponse, error) {
	return func() (*googlegenai.GenerateContentResponse, error) { return nil, err }
}

func TestPrimeRejectedRequestFailsOpen(t *testing.T) {
	cases := []error{
		googlegenai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"},
		&url.Error{Op: "Post", URL: "https://example.invalid", Err: errors.New("connection refused")},
	}
	for _, cause := range cases {
		st := pulled(failure(cause))
		if err := st.prime(); err == nil {
			t.Errorf("expected open failure for %v", cause)
		}
	}
}

func TestPrimeFirstChunkFailureIsDeliveredByNext(t *testing.T) {
	cause := errors.New("malformed event")
	st := pulled(failure(cause))
	if err := st.prime(); err != nil {
		t.Fatalf("expected the stream to open, got %v", err)
	}
	if _, err := st.Next(); !errors.Is(err, cause) {
		t.Fatalf("expected first-chunk error from Next, got %v", err)
	}
	if _, err := st.Next(); !errors.Is(err, iterator.Done) {
		t.Errorf("expected iterator.Done after the failure, got %v", err)
	}
}

func TestPrimeKeepsFirstChunk(t *testing.T) {
	st := pulled(textResponse("Hel"), textResponse("lo"))
	if err := st.prime(); err != nil {
		t.Fatalf("prime: %v", err)
	}
	var got string
	for {
		chunk, err := st.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got += chunk.Text
	}
	if got != "Hello" {
		t.Errorf("expected Hello, got %q", got)
	}
}

package ai

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTripRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  TripRequest
		want error
	}{
		{"valid", TripRequest{Destination: "Kyoto", Days: 3, Vibe: VibeCultural}, nil},
		{"valid lowercase vibe", TripRequest{Destination: "Kyoto", Days: 3, Vibe: "foodie"}, nil},
		{"blank destination", TripRequest{Destination: "  ", Days: 3, Vibe: VibeCultural}, ErrMissingDestination},
		{"zero days", TripRequest{Destination: "Kyoto", Days: 0, Vibe: VibeCultural}, ErrInvalidDays},
		{"too many days", TripRequest{Destination: "Kyoto", Days: MaxTripDays + 1, Vibe: VibeCultural}, ErrInvalidDays},
		{"unknown vibe", TripRequest{Destination: "Kyoto", Days: 3, Vibe: "Party"}, ErrInvalidVibe},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.req.Validate(); got != tc.want {
				t.Errorf("Validate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseVibe(t *testing.T) {
	for _, v := range Vibes {
		got, ok := ParseVibe(strings.ToUpper(string(v)))
		if !ok || got != v {
			t.Errorf("ParseVibe(%q) = %q, %v", strings.ToUpper(string(v)), got, ok)
		}
	}
	if _, ok := ParseVibe("Nightlife"); ok {
		t.Error("expected Nightlife to be rejected")
	}
}

func TestGroundingWireForm(t *testing.T) {
	chunks := []GroundingChunk{
		WebSource{URI: "https://example.com/kyoto", Title: "Kyoto guide"},
		PlaceSource{URI: "https://maps.google.com/?cid=1", Title: "Nishiki Market", ReviewSnippets: []ReviewSnippet{{Review: "Great food"}}},
	}
	b, err := json.Marshal(chunks)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(b)
	if !strings.Contains(body, `{"web":{"uri":"https://example.com/kyoto","title":"Kyoto guide"}}`) {
		t.Errorf("web chunk not tagged: %s", body)
	}
	if !strings.Contains(body, `{"maps":{"uri":"https://maps.google.com/?cid=1","title":"Nishiki Market"`) {
		t.Errorf("maps chunk not tagged: %s", body)
	}

	var decoded GroundingList
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(decoded))
	}
	switch c := decoded[1].(type) {
	case PlaceSource:
		if c.ReviewSnippets[0].Review != "Great food" {
			t.Errorf("review snippet lost: %+v", c)
		}
	default:
		t.Errorf("expected PlaceSource, got %T", c)
	}
}

func TestGroundingListRejectsAmbiguousChunk(t *testing.T) {
	var l GroundingList
	if err := json.Unmarshal([]byte(`[{"web":{"uri":"a"},"maps":{"uri":"b"}}]`), &l); err == nil {
		t.Error("expected error for chunk with both variants")
	}
	if err := json.Unmarshal([]byte(`[{}]`), &l); err == nil {
		t.Error("expected error for chunk with no variant")
	}
}

package ai

import (
	"encoding/json"
	"errors"
)

// GroundingChunk is a citation attached to a chat response. The set of
// implementations is closed: WebSource and PlaceSource.
type GroundingChunk interface {
	groundingChunk()
	SourceURI() string
}

// WebSource is a web page used to ground a response.
type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// PlaceSource is a map place used to ground a response.
type PlaceSource struct {
	URI            string          `json:"uri"`
	Title          string          `json:"title"`
	PlaceID        string          `json:"placeId,omitempty"`
	ReviewSnippets []ReviewSnippet `json:"reviewSnippets,omitempty"`
}

type ReviewSnippet struct {
	Review        string `json:"review,omitempty"`
	Author        string `json:"author,omitempty"`
	GoogleMapsURI string `json:"googleMapsUri,omitempty"`
}

func (WebSource) groundingChunk()   {}
func (PlaceSource) groundingChunk() {}

func (w WebSource) SourceURI() string   { return w.URI }
func (p PlaceSource) SourceURI() string { return p.URI }

// groundingEnvelope is the wire form: exactly one of web or maps is set.
type groundingEnvelope struct {
	Web  *WebSource   `json:"web,omitempty"`
	Maps *PlaceSource `json:"maps,omitempty"`
}

func (w WebSource) MarshalJSON() ([]byte, error) {
	type plain WebSource
	return json.Marshal(struct {
		Web plain `json:"web"`
	}{plain(w)})
}

func (p PlaceSource) MarshalJSON() ([]byte, error) {
	type plain PlaceSource
	return json.Marshal(struct {
		Maps plain `json:"maps"`
	}{plain(p)})
}

// GroundingList decodes the tagged wire form back into concrete chunks.
type GroundingList []GroundingChunk

func (l *GroundingList) UnmarshalJSON(data []byte) error {
	var raw []groundingEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(GroundingList, 0, len(raw))
	for _, env := range raw {
		switch {
		case env.Web != nil && env.Maps == nil:
			out = append(out, *env.Web)
		case env.Maps != nil && env.Web == nil:
			out = append(out, *env.Maps)
		default:
			return errors.New("grounding chunk must carry exactly one of web or maps")
		}
	}
	*l = out
	return nil
}

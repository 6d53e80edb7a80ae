package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strings"

	"google.golang.org/api/iterator"
	googlegenai "google.golang.org/genai"

	"travelflow/internal/types"
)

const chatSystemInstruction = "You are an expert, friendly travel agent helping users plan trips, find places, and check local information. Be concise but helpful. Use the map tool to find specific locations when asked."

// GeminiChatFactory implements SessionFactory on the Gemini chats API with
// Google Search and Google Maps grounding enabled.
type GeminiChatFactory struct {
	client      *googlegenai.Client
	model       string
	temperature float32
}

func NewGeminiChatFactory(ctx context.Context, cfg GeminiConfig) (*GeminiChatFactory, error) {
	client, err := googlegenai.NewClient(ctx, &googlegenai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: googlegenai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini chat client: %w", err)
	}
	return &GeminiChatFactory{client: client, model: cfg.model(), temperature: cfg.Temperature}, nil
}

// NewSession creates a fresh remote conversation. History is kept by the chat handle.
func (f *GeminiChatFactory) NewSession(ctx context.Context, loc *types.Point) (ChatSession, error) {
	chat, err := f.client.Chats.Create(ctx, f.model, chatConfig(loc, f.temperature), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat session: %w", err)
	}
	return &geminiChatSession{chat: chat}, nil
}

func chatConfig(loc *types.Point, temperature float32) *googlegenai.GenerateContentConfig {
	cfg := &googlegenai.GenerateContentConfig{
		SystemInstruction: googlegenai.NewContentFromText(chatSystemInstruction, googlegenai.RoleUser),
		Tools: []*googlegenai.Tool{
			{GoogleSearch: &googlegenai.GoogleSearch{}},
			{GoogleMaps: &googlegenai.GoogleMaps{}},
		},
	}
	if temperature > 0 {
		cfg.Temperature = googlegenai.Ptr(temperature)
	}
	if loc != nil {
		cfg.ToolConfig = &googlegenai.ToolConfig{
			RetrievalConfig: &googlegenai.RetrievalConfig{
				LatLng: &googlegenai.LatLng{
					Latitude:  googlegenai.Ptr(loc.Lat),
					Longitude: googlegenai.Ptr(loc.Lng),
				},
			},
		}
	}
	return cfg
}

type geminiChatSession struct {
	chat *googlegenai.Chat
}

// SendMessageStream sends text and waits for the first response. Only a
// request the API refused or never received fails the open; any other error
// on the first response is delivered by Next, like a mid-stream failure.
func (s *geminiChatSession) SendMessageStream(ctx context.Context, text string) (ChunkStream, error) {
	next, stop := iter.Pull2(s.chat.SendMessageStream(ctx, googlegenai.Part{Text: text}))
	st := &geminiChunkStream{next: next, stop: stop}
	if err := st.prime(); err != nil {
		stop()
		return nil, err
	}
	return st, nil
}

type geminiChunkStream struct {
	next       func() (*googlegenai.GenerateContentResponse, error, bool)
	stop       func()
	pending    *StreamChunk
	pendingErr error
	done       bool
}

func (s *geminiChunkStream) prime() error {
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return nil
	}
	if err != nil {
		if requestRejected(err) {
			return err
		}
		s.pendingErr = err
		s.done = true
		return nil
	}
	chunk := chunkFromResponse(resp)
	s.pending = &chunk
	return nil
}

// requestRejected reports whether err means the request was never accepted:
// an API error status or a transport failure.
func requestRejected(err error) bool {
	var apiErr googlegenai.APIError
	var urlErr *url.Error
	return errors.As(err, &apiErr) || errors.As(err, &urlErr)
}

func (s *geminiChunkStream) Next() (StreamChunk, error) {
	if s.pendingErr != nil {
		err := s.pendingErr
		s.pendingErr = nil
		return StreamChunk{}, err
	}
	if s.pending != nil {
		chunk := *s.pending
		s.pending = nil
		return chunk, nil
	}
	if s.done {
		return StreamChunk{}, iterator.Done
	}
	resp, err, ok := s.next()
	if !ok {
		s.done = true
		return StreamChunk{}, iterator.Done
	}
	if err != nil {
		s.done = true
		return StreamChunk{}, err
	}
	return chunkFromResponse(resp), nil
}

func (s *geminiChunkStream) Close() error {
	s.done = true
	s.stop()
	return nil
}

// chunkFromResponse reads the first candidate: visible text parts in order
// and web/maps grounding chunks. Thought parts and other chunk kinds are dropped.
func chunkFromResponse(resp *googlegenai.GenerateContentResponse) StreamChunk {
	var chunk StreamChunk
	if resp == nil || len(resp.Candidates) == 0 {
		return chunk
	}
	cand := resp.Candidates[0]

	if cand.Content != nil {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		chunk.Text = text.String()
	}

	if cand.GroundingMetadata != nil {
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if src, ok := groundingFromSDK(gc); ok {
				chunk.Grounding = append(chunk.Grounding, src)
			}
		}
	}
	return chunk
}

func groundingFromSDK(gc *googlegenai.GroundingChunk) (GroundingChunk, bool) {
	switch {
	case gc == nil:
		return nil, false
	case gc.Web != nil:
		return WebSource{URI: gc.Web.URI, Title: gc.Web.Title}, true
	case gc.Maps != nil:
		place := PlaceSource{URI: gc.Maps.URI, Title: gc.Maps.Title, PlaceID: gc.Maps.PlaceID}
		if srcs := gc.Maps.PlaceAnswerSources; srcs != nil {
			for _, rs := range srcs.ReviewSnippets {
				if rs == nil {
					continue
				}
				snippet := ReviewSnippet{Review: rs.Review, GoogleMapsURI: rs.GoogleMapsURI}
				if rs.AuthorAttribution != nil {
					snippet.Author = rs.AuthorAttribution.DisplayName
				}
				place.ReviewSnippets = append(place.ReviewSnippets, snippet)
			}
		}
		return place, true
	default:
		return nil, false
	}
}

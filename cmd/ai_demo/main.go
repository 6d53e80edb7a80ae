package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/iterator"

	"travelflow/internal/ai"
	"travelflow/internal/config"
	"travelflow/internal/log"
	"travelflow/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err := log.Init(cfg.Log.Level, "console"); err != nil {
		log.Fatal("logger init", err)
	}
	defer log.Sync()
	if err != nil {
		log.Fatal("config load", err)
	}

	ctx := context.Background()
	geminiCfg := ai.GeminiConfig{APIKey: cfg.AI.GeminiKey, Model: cfg.AI.Model}

	provider, err := ai.NewGeminiProvider(ctx, geminiCfg)
	if err != nil {
		log.Fatal("Failed to initialize AI provider", err)
	}
	defer provider.Close()

	req := ai.TripRequest{Destination: "Lisbon", Days: 2, Vibe: ai.VibeFoodie, Interests: "pastries, tiles, viewpoints"}
	fmt.Printf("Planning: %d days in %s (%s)\n", req.Days, req.Destination, req.Vibe)

	it, err := provider.PlanItinerary(ctx, req)
	if err != nil {
		log.Fatal("Error planning itinerary", err)
	}
	out, _ := json.MarshalIndent(it, "", "  ")
	fmt.Println(string(out))

	factory, err := ai.NewGeminiChatFactory(ctx, geminiCfg)
	if err != nil {
		log.Fatal("Failed to initialize chat", err)
	}
	// Simulated context
	session, err := factory.NewSession(ctx, &types.Point{Lat: 38.7139, Lng: -9.1334})
	if err != nil {
		log.Fatal("Failed to open chat session", err)
	}

	userMessage := "Where can I get the best pastel de nata near me?"
	if len(os.Args) > 1 {
		userMessage = strings.Join(os.Args[1:], " ")
	}
	fmt.Printf("User: %s\nAI: ", userMessage)

	stream, err := session.SendMessageStream(ctx, userMessage)
	if err != nil {
		log.Fatal("Error sending message", err)
	}
	defer stream.Close()

	var sources []ai.GroundingChunk
	for {
		chunk, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			log.Fatal("Stream failed", err)
		}
		fmt.Print(chunk.Text)
		sources = append(sources, chunk.Grounding...)
	}
	fmt.Println()
	for _, src := range sources {
		fmt.Printf("  source: %s\n", src.SourceURI())
	}
}

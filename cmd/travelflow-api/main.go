// README: Entry point; loads config, wires services and optional stores, serves HTTP until signalled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"travelflow/internal/ai"
	"travelflow/internal/config"
	httptransport "travelflow/internal/http"
	"travelflow/internal/infra"
	"travelflow/internal/log"
	"travelflow/internal/maps"
	"travelflow/internal/modules/aiusage"
	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/itinerary"
	"travelflow/internal/modules/location"
)

const connectTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err := log.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal("logger init", err)
	}
	defer log.Sync()
	if err != nil {
		log.Fatal("config load", err)
	}
	gin.SetMode(cfg.HTTP.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	geminiCfg := ai.GeminiConfig{
		APIKey:      cfg.AI.GeminiKey,
		Model:       cfg.AI.Model,
		Temperature: float32(cfg.AI.Temperature),
	}
	planner, err := ai.NewGeminiProvider(ctx, geminiCfg)
	if err != nil {
		log.Fatal("gemini provider init", err)
	}
	defer planner.Close()

	sessions, err := ai.NewGeminiChatFactory(ctx, geminiCfg)
	if err != nil {
		log.Fatal("gemini chat init", err)
	}

	itineraryOpts := itinerary.Options{Timeout: cfg.AI.GenerationTimeout}
	if cfg.DB.DSN != "" {
		dbCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		dbPool, err := infra.NewDB(dbCtx, cfg.DB.DSN)
		cancel()
		if err != nil {
			log.Fatal("postgres init", err)
		}
		defer dbPool.Close()
		itineraryOpts.Store = itinerary.NewStore(dbPool)
		itineraryOpts.Quota = aiusage.NewService(aiusage.NewStore(dbPool, cfg.DB.MonthlyGenerations))
		log.Infow("itinerary archive enabled", "monthly_generations", cfg.DB.MonthlyGenerations)
	}
	if cfg.Maps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal("maps client init", err)
		}
		itineraryOpts.Places = maps.NewPlacesService(mapsClient, cfg.Maps.Language)
		itineraryOpts.Routes = maps.NewRouteService(mapsClient, cfg.Maps.Language)
		log.Info("place enrichment enabled")
	}
	itinerarySvc := itinerary.NewService(planner, itineraryOpts)

	policy, err := chat.ParseOverlapPolicy(cfg.Chat.OverlapPolicy)
	if err != nil {
		log.Fatal("chat overlap policy", err)
	}
	chatOpts := chat.Options{
		Overlap:     policy,
		IdleTTL:     cfg.Chat.TranscriptTTL,
		MaxMessages: cfg.Chat.MaxMessages,
	}
	var permissions location.Store = location.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		redisCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		redisClient, err := infra.NewRedis(redisCtx, cfg.Redis.Addr)
		cancel()
		if err != nil {
			log.Fatal("redis init", err)
		}
		defer redisClient.Close()
		chatOpts.Store = chat.NewRedisStore(redisClient, cfg.Chat.TranscriptTTL, cfg.Chat.MaxMessages)
		permissions = location.NewRedisStore(redisClient, cfg.Chat.TranscriptTTL)
		log.Info("redis transcript store enabled")
	}
	chatOpts.Locations = location.StoreBias{Store: permissions}
	chatSvc := chat.NewService(sessions, chatOpts)
	locationSvc := location.NewService(chatSvc, permissions)

	server := httptransport.NewServer(cfg.HTTP.Addr, httptransport.ServerDeps{
		Itinerary: itinerarySvc,
		Chat:      chatSvc,
		Location:  locationSvc,
		APIToken:  cfg.HTTP.APIToken,
	})
	if err := server.Run(ctx); err != nil {
		log.Fatal("http server", err)
	}
}

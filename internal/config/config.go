// README: Config loader; env-driven via viper with defaults for HTTP, Gemini, storage, and logging.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredential is a ConfigurationError: the service cannot run without a Gemini key.
var ErrMissingCredential = errors.New("GEMINI_API_KEY environment variable not set")

// ConfigurationError reports a fatal startup misconfiguration.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type Config struct {
	HTTP struct {
		Addr     string
		GinMode  string
		APIToken string
	}
	AI struct {
		GeminiKey         string
		Model             string
		Temperature       float64
		GenerationTimeout time.Duration
	}
	Chat struct {
		OverlapPolicy string
		TranscriptTTL time.Duration
		MaxMessages   int
	}
	Maps struct {
		APIKey   string
		Language string
	}
	DB struct {
		DSN string
		// MonthlyGenerations is the per-planner allowance metered when the DB is configured.
		MonthlyGenerations int
	}
	Redis struct {
		Addr string
	}
	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment. A missing Gemini key is
// returned as a *ConfigurationError wrapping ErrMissingCredential.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	cfg.HTTP.Addr = v.GetString("TRAVELFLOW_HTTP_ADDR")
	cfg.HTTP.GinMode = v.GetString("TRAVELFLOW_GIN_MODE")
	cfg.HTTP.APIToken = v.GetString("TRAVELFLOW_API_TOKEN")
	cfg.AI.GeminiKey = strings.TrimSpace(v.GetString("GEMINI_API_KEY"))
	cfg.AI.Model = v.GetString("TRAVELFLOW_GEMINI_MODEL")
	cfg.AI.Temperature = v.GetFloat64("TRAVELFLOW_GEMINI_TEMPERATURE")
	cfg.AI.GenerationTimeout = v.GetDuration("TRAVELFLOW_GENERATION_TIMEOUT")
	cfg.Chat.OverlapPolicy = strings.ToLower(v.GetString("TRAVELFLOW_CHAT_OVERLAP_POLICY"))
	cfg.Chat.TranscriptTTL = v.GetDuration("TRAVELFLOW_TRANSCRIPT_TTL")
	cfg.Chat.MaxMessages = v.GetInt("TRAVELFLOW_TRANSCRIPT_MAX_MESSAGES")
	cfg.Maps.APIKey = v.GetString("GOOGLE_MAPS_API_KEY")
	cfg.Maps.Language = v.GetString("TRAVELFLOW_MAPS_LANGUAGE")
	cfg.DB.DSN = v.GetString("TRAVELFLOW_DB_DSN")
	cfg.DB.MonthlyGenerations = v.GetInt("TRAVELFLOW_MONTHLY_GENERATIONS")
	cfg.Redis.Addr = v.GetString("TRAVELFLOW_REDIS_ADDR")
	cfg.Log.Level = v.GetString("TRAVELFLOW_LOG_LEVEL")
	cfg.Log.Format = v.GetString("TRAVELFLOW_LOG_FORMAT")

	if cfg.AI.GeminiKey == "" {
		return cfg, &ConfigurationError{Key: "GEMINI_API_KEY", Err: ErrMissingCredential}
	}
	switch cfg.Chat.OverlapPolicy {
	case "reject", "cancel":
	default:
		return cfg, &ConfigurationError{
			Key: "TRAVELFLOW_CHAT_OVERLAP_POLICY",
			Err: fmt.Errorf("unknown policy %q (want reject or cancel)", cfg.Chat.OverlapPolicy),
		}
	}
	if cfg.AI.GenerationTimeout <= 0 {
		return cfg, &ConfigurationError{Key: "TRAVELFLOW_GENERATION_TIMEOUT", Err: errors.New("must be positive")}
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TRAVELFLOW_HTTP_ADDR", ":8080")
	v.SetDefault("TRAVELFLOW_GIN_MODE", "release")
	v.SetDefault("TRAVELFLOW_GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("TRAVELFLOW_GEMINI_TEMPERATURE", 0.4)
	v.SetDefault("TRAVELFLOW_GENERATION_TIMEOUT", 60*time.Second)
	v.SetDefault("TRAVELFLOW_CHAT_OVERLAP_POLICY", "reject")
	v.SetDefault("TRAVELFLOW_TRANSCRIPT_TTL", 7*24*time.Hour)
	v.SetDefault("TRAVELFLOW_TRANSCRIPT_MAX_MESSAGES", 200)
	v.SetDefault("TRAVELFLOW_MONTHLY_GENERATIONS", 100)
	v.SetDefault("TRAVELFLOW_LOG_LEVEL", "info")
	v.SetDefault("TRAVELFLOW_LOG_FORMAT", "json")
}

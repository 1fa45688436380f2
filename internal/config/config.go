package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = "8080"
	defaultFrontendOrigin     = "http://localhost:7860"
	defaultFanarBaseURL       = "https://api.fanar.qa/v1"
	defaultFanarChatModel     = "Fanar"
	defaultFanarRAGModel      = "Islamic-RAG"
	defaultMaxTokens          = 2048
	defaultSynthesisMaxTokens = 2000
	defaultTavilyBaseURL      = "https://api.tavily.com"
	defaultTavilyMaxResults   = 3
	defaultTavilySearchDepth  = "advanced"
	defaultToolConcurrency    = 4
	defaultPreferredSources   = "islamqa,islamweb,sunnah,quran,tafsir,dorar,islamonline,shamela"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	LogFormat      string
	FrontendOrigin string
	AllowedOrigins []string

	FanarAPIKey              string
	FanarBaseURL             string
	FanarChatModel           string
	FanarRAGModel            string
	MaxTokensDefault         int
	MaxTokensStaged          int
	MaxTokensRAG             int
	SynthesisStagedMaxTokens int
	PreferredSources         []string
	StagedModeDefault        bool
	ParallelToolsDefault     bool
	ToolConcurrency          int
	TavilyAPIKey             string
	TavilyBaseURL            string
	TavilyMaxResults         int
	TavilySearchDepth        string
	TavilyMinInterval        time.Duration
	DatabaseURL              string
	DatabaseAuthToken        string
	AuthRequired             bool
	GoogleClientID           string
	AllowedGoogleEmails      map[string]struct{}
	InsecureSkipGoogleVerify bool
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

// QueryLogEnabled reports whether answered queries are written to the audit log.
func (c Config) QueryLogEnabled() bool {
	return c.DatabaseURL != ""
}

// LoadEnvFiles overlays .env and .env.local onto the process environment when
// they exist and returns the files that were applied.
func LoadEnvFiles() ([]string, error) {
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Overload(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

func Load() (Config, error) {
	cfg := Config{
		Port:                     envOrDefault("PORT", defaultPort),
		Environment:              envOrDefault("APP_ENV", "development"),
		LogLevel:                 strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:                strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
		FrontendOrigin:           envOrDefault("FRONTEND_ORIGIN", defaultFrontendOrigin),
		FanarAPIKey:              strings.TrimSpace(os.Getenv("FANAR_API_KEY")),
		FanarBaseURL:             strings.TrimRight(envOrDefault("FANAR_BASE_URL", defaultFanarBaseURL), "/"),
		FanarChatModel:           envOrDefault("FANAR_CHAT_MODEL", defaultFanarChatModel),
		FanarRAGModel:            envOrDefault("FANAR_RAG_MODEL", defaultFanarRAGModel),
		MaxTokensDefault:         intOrDefault("MAX_TOKENS_DEFAULT", defaultMaxTokens),
		MaxTokensStaged:          intOrDefault("MAX_TOKENS_STAGED", defaultMaxTokens),
		MaxTokensRAG:             intOrDefault("MAX_TOKENS_RAG", defaultMaxTokens),
		SynthesisStagedMaxTokens: intOrDefault("SYNTHESIS_STAGED_MAX_TOKENS", defaultSynthesisMaxTokens),
		StagedModeDefault:        boolOrDefault("STAGED_MODE_DEFAULT", false),
		ParallelToolsDefault:     boolOrDefault("PARALLEL_TOOLS", false),
		ToolConcurrency:          intOrDefault("TOOL_CONCURRENCY", defaultToolConcurrency),
		TavilyAPIKey:             strings.TrimSpace(os.Getenv("TAVILY_API_KEY")),
		TavilyBaseURL:            strings.TrimRight(envOrDefault("TAVILY_BASE_URL", defaultTavilyBaseURL), "/"),
		TavilyMaxResults:         intOrDefault("TAVILY_MAX_RESULTS", defaultTavilyMaxResults),
		TavilySearchDepth:        envOrDefault("TAVILY_SEARCH_DEPTH", defaultTavilySearchDepth),
		TavilyMinInterval:        time.Duration(intOrDefault("TAVILY_MIN_INTERVAL_MS", 0)) * time.Millisecond,
		DatabaseURL:              strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DatabaseAuthToken:        strings.TrimSpace(os.Getenv("DATABASE_AUTH_TOKEN")),
		AuthRequired:             boolOrDefault("AUTH_REQUIRED", false),
		GoogleClientID:           strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		InsecureSkipGoogleVerify: boolOrDefault("AUTH_INSECURE_SKIP_GOOGLE_VERIFY", false),
	}

	cfg.PreferredSources = parseList(strings.ToLower(envOrDefault("PREFERRED_SOURCES", defaultPreferredSources)))
	cfg.AllowedGoogleEmails = parseEmailSet(os.Getenv("ALLOWED_GOOGLE_EMAILS"))

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.FrontendOrigin+",http://localhost:5173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.FanarAPIKey == "" {
		return Config{}, errors.New("FANAR_API_KEY is required")
	}
	if cfg.MaxTokensDefault <= 0 || cfg.MaxTokensStaged <= 0 || cfg.MaxTokensRAG <= 0 {
		return Config{}, errors.New("MAX_TOKENS_* values must be > 0")
	}
	if cfg.TavilyMaxResults <= 0 {
		return Config{}, errors.New("TAVILY_MAX_RESULTS must be > 0")
	}
	if cfg.ToolConcurrency < 1 {
		cfg.ToolConcurrency = 1
	}
	if strings.HasPrefix(cfg.DatabaseURL, "libsql://") && cfg.DatabaseAuthToken == "" {
		return Config{}, errors.New("DATABASE_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.AuthRequired && !cfg.InsecureSkipGoogleVerify && cfg.GoogleClientID == "" {
		return Config{}, errors.New("GOOGLE_CLIENT_ID is required when AUTH_REQUIRED=true")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseEmailSet(raw string) map[string]struct{} {
	emails := parseList(raw)
	out := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		out[strings.ToLower(email)] = struct{}{}
	}
	return out
}

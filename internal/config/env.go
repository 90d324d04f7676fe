package config

import (
    "errors"
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ProviderConfig holds credential, model and endpoint for one vision provider.
type ProviderConfig struct {
    APIKey  string
    Model   string
    BaseURL string // empty means the public endpoint
    Timeout time.Duration
}

// ProvidersConfig selects the primary provider and configures both.
type ProvidersConfig struct {
    Primary string // "openai"|"gemini"
    OpenAI  ProviderConfig
    Gemini  ProviderConfig
}

// ServerConfig defines the HTTP surface.
type ServerConfig struct {
    Port         string
    MaxUploadMB  int
    MaxInflight  int // concurrent analyses per inference chain
}

// StoreConfig defines where analysis status records live.
type StoreConfig struct {
    RedisURL string // empty keeps records in memory
    TTL      time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging        LoggingConfig
    Axiom          AxiomConfig
    Providers      ProvidersConfig
    RequestTimeout time.Duration
    Server         ServerConfig
    Store          StoreConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/comesano.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_comesano",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.RequestTimeout = parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second)

    cfg.Providers = ProvidersConfig{
        Primary: strings.ToLower(strings.TrimSpace(getEnv("PRIMARY_PROVIDER", "openai"))),
        OpenAI:  providerFromEnv("OPENAI", "gpt-4.1-mini", cfg.RequestTimeout),
        Gemini:  providerFromEnv("GEMINI", "gemini-2.0-flash", cfg.RequestTimeout),
    }

    cfg.Server = ServerConfig{
        Port:        getEnv("PORT", "8080"),
        MaxUploadMB: parseInt(getEnv("MAX_UPLOAD_MB", "10"), 10),
        MaxInflight: parseInt(getEnv("MAX_INFLIGHT", "4"), 4),
    }

    cfg.Store = StoreConfig{
        RedisURL: getEnv("REDIS_URL", ""),
        TTL:      parseDuration(getEnv("ANALYSIS_TTL", "24h"), 24*time.Hour),
    }

    return cfg
}

// Validate reports settings the inference chain cannot run with.
// An unknown primary provider is not an error: it falls back to OpenAI.
func (c Config) Validate() error {
    var problems []string
    if c.Providers.OpenAI.APIKey == "" && c.Providers.Gemini.APIKey == "" {
        problems = append(problems, "neither OPENAI_API_KEY nor GEMINI_API_KEY is set")
    }
    if c.Server.MaxUploadMB <= 0 {
        problems = append(problems, "MAX_UPLOAD_MB must be positive")
    }
    if c.Server.MaxInflight <= 0 {
        problems = append(problems, "MAX_INFLIGHT must be positive")
    }
    if len(problems) == 0 { return nil }
    return errors.New("config: " + strings.Join(problems, "; "))
}

// providerFromEnv reads <PREFIX>_API_KEY, _MODEL, _BASE_URL and _TIMEOUT.
func providerFromEnv(prefix, model string, timeout time.Duration) ProviderConfig {
    p := ProviderConfig{
        APIKey:  strings.TrimSpace(os.Getenv(prefix + "_API_KEY")),
        Model:   getEnv(prefix+"_MODEL", model),
        BaseURL: getEnv(prefix+"_BASE_URL", ""),
        Timeout: parseDuration(os.Getenv(prefix+"_TIMEOUT"), timeout),
    }
    if p.Timeout <= 0 { p.Timeout = timeout }
    return p
}

func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

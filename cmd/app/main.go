package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/comesano/internal/config"
    "github.com/local/comesano/internal/dispatcher"
    "github.com/local/comesano/internal/imagecheck"
    "github.com/local/comesano/internal/limiter"
    logpkg "github.com/local/comesano/internal/logger"
    "github.com/local/comesano/internal/metrics"
    "github.com/local/comesano/internal/server"
    "github.com/local/comesano/internal/statuscheck"
    "github.com/local/comesano/internal/store"
)

func main() {
    // .env is optional; real environment wins
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.FromConfig(cfg))
    defer logpkg.Close()
    metrics.Init()
    if err := cfg.Validate(); err != nil {
        log.Warn().Err(err).Msg("configuration incomplete")
    }

    // Status store
    var status store.StatusStore
    var pinger statuscheck.RedisPinger
    if cfg.Store.RedisURL != "" {
        rs, err := store.NewRedisStatus(cfg.Store.RedisURL, cfg.Store.TTL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        status, pinger = rs, rs
    } else {
        log.Warn().Msg("REDIS_URL not set, analysis status kept in memory")
        status = store.NewMemoryStatus(cfg.Store.TTL)
    }
    defer status.Close()

    // Inference chain
    client := dispatcher.FromConfig(cfg.Providers)
    chain := dispatcher.Describe(client)
    log.Info().Str("primary", cfg.Providers.Primary).Str("inference", chain).Msg("inference client ready")

    checker := statuscheck.New(statuscheck.Options{
        Redis:         pinger,
        OpenAIKey:     cfg.Providers.OpenAI.APIKey,
        GeminiKey:     cfg.Providers.Gemini.APIKey,
        OpenAIBaseURL: cfg.Providers.OpenAI.BaseURL,
        GeminiBaseURL: cfg.Providers.Gemini.BaseURL,
        Primary:       cfg.Providers.Primary,
        Inference:     chain,
    })

    srv := server.New(server.Config{MaxUploadMB: cfg.Server.MaxUploadMB}, server.Dependencies{
        Client:  client,
        Status:  status,
        Images:  imagecheck.New(),
        Checker: checker,
        Slots:   limiter.New(cfg.Server.MaxInflight),
    })
    defer srv.Close()
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)

    port := cfg.Server.Port
    httpSrv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    go func() {
        log.Info().Msgf("HTTP server listening on :%s", port)
        if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(ctx)
    fmt.Println("shutdown complete")
}

package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strings"
    "sync"
    "time"
)

const (
    defaultOpenAIBase = "https://api.openai.com"
    defaultGeminiBase = "https://generativelanguage.googleapis.com"
    maxMessageLen     = 120
)

// RedisPinger is satisfied by the Redis-backed status store.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// Options configures the Checker.
type Options struct {
    Redis         RedisPinger // nil means records are kept in memory
    HTTPClient    *http.Client
    OpenAIKey     string
    GeminiKey     string
    OpenAIBaseURL string
    GeminiBaseURL string
    Primary       string
    Inference     string // description of the active client chain
}

// Status is the outcome of one readiness probe.
type Status struct {
    OK        bool   `json:"ok"`
    Message   string `json:"message"`
    LatencyMS int64  `json:"latency_ms,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis     Status    `json:"redis"`
    OpenAI    Status    `json:"openai"`
    Gemini    Status    `json:"gemini"`
    Primary   string    `json:"primary"`
    Inference string    `json:"inference"`
    CheckedAt time.Time `json:"checked_at"`
}

// Checker probes Redis and the model listing endpoint of each provider.
type Checker struct {
    opts   Options
    client *http.Client
}

func New(opts Options) *Checker {
    opts.OpenAIKey = strings.TrimSpace(opts.OpenAIKey)
    opts.GeminiKey = strings.TrimSpace(opts.GeminiKey)
    opts.OpenAIBaseURL = normalizeBase(opts.OpenAIBaseURL, defaultOpenAIBase)
    opts.GeminiBaseURL = normalizeBase(opts.GeminiBaseURL, defaultGeminiBase)
    client := opts.HTTPClient
    if client == nil { client = &http.Client{Timeout: 5 * time.Second} }
    return &Checker{opts: opts, client: client}
}

// Summary runs every probe concurrently and returns the snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    out := Summary{Primary: c.opts.Primary, Inference: c.opts.Inference, CheckedAt: time.Now().UTC()}
    var wg sync.WaitGroup
    run := func(dst *Status, fn func(context.Context) Status) {
        wg.Add(1)
        go func() {
            defer wg.Done()
            start := time.Now()
            *dst = fn(ctx)
            if dst.OK { dst.LatencyMS = time.Since(start).Milliseconds() }
        }()
    }
    run(&out.Redis, c.redisStatus)
    run(&out.OpenAI, c.openAIStatus)
    run(&out.Gemini, c.geminiStatus)
    wg.Wait()
    return out
}

func (c *Checker) redisStatus(ctx context.Context) Status {
    if c.opts.Redis == nil {
        return Status{OK: true, Message: "Not configured (in-memory)"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.opts.Redis.Ping(ctx); err != nil {
        return failed(err)
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) openAIStatus(ctx context.Context) Status {
    return c.listModels(ctx, c.opts.OpenAIKey, func(key string) (string, http.Header) {
        h := http.Header{}
        h.Set("Authorization", "Bearer "+key)
        return c.opts.OpenAIBaseURL + "/v1/models?limit=1", h
    })
}

func (c *Checker) geminiStatus(ctx context.Context) Status {
    return c.listModels(ctx, c.opts.GeminiKey, func(key string) (string, http.Header) {
        return c.opts.GeminiBaseURL + "/v1beta/models?pageSize=1&key=" + url.QueryEscape(key), nil
    })
}

// listModels issues an authenticated GET built by target. The returned
// message never contains the query string, where Gemini carries its key.
func (c *Checker) listModels(ctx context.Context, key string, target func(string) (string, http.Header)) Status {
    if key == "" {
        return Status{Message: "API key missing"}
    }
    endpoint, header := target(key)
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
    if err != nil {
        return Status{Message: "invalid base URL"}
    }
    for k, v := range header { req.Header[k] = v }

    resp, err := c.client.Do(req)
    if err != nil {
        var uerr *url.Error
        if errors.As(err, &uerr) {
            uerr.URL = req.URL.Scheme + "://" + req.URL.Host + req.URL.Path
        }
        return failed(err)
    }
    defer resp.Body.Close()
    if resp.StatusCode >= http.StatusBadRequest {
        return Status{Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }
    return Status{OK: true, Message: "Available"}
}

func normalizeBase(v, fallback string) string {
    v = strings.TrimRight(strings.TrimSpace(v), "/")
    if v == "" { return fallback }
    return v
}

func failed(err error) Status {
    var timeout interface{ Timeout() bool }
    if errors.As(err, &timeout) && timeout.Timeout() {
        return Status{Message: "timeout"}
    }
    msg := err.Error()
    if len(msg) > maxMessageLen { msg = msg[:maxMessageLen] }
    return Status{Message: msg}
}

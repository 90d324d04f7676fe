package ai

import (
    "context"
    "fmt"
    "net/http"
    "strings"
    "time"
)

// Provider identifies a vision-language vendor.
type Provider string

const (
    OpenAI Provider = "openai"
    Gemini Provider = "gemini"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{OpenAI, Gemini}

// ParseProvider accepts the canonical names case-insensitively.
func ParseProvider(s string) (Provider, error) {
    switch Provider(strings.ToLower(strings.TrimSpace(s))) {
    case OpenAI:
        return OpenAI, nil
    case Gemini:
        return Gemini, nil
    }
    return "", fmt.Errorf("unknown provider %q", s)
}

// Other returns the alternative provider.
func (p Provider) Other() Provider {
    if p == Gemini { return OpenAI }
    return Gemini
}

func (p Provider) String() string { return string(p) }

// Client owns one provider's wire format. AnalyzeImage sends a base64 JPEG
// and a prompt in exactly one request and returns the model's raw text.
type Client interface {
    Provider() Provider
    Model() string
    AnalyzeImage(ctx context.Context, imageBase64, prompt string) (string, error)
}

const defaultTimeout = 60 * time.Second

type options struct {
    httpClient *http.Client
    baseURL    string
    timeout    time.Duration
}

// Option customizes a provider client.
type Option func(*options)

// WithHTTPClient overrides the default HTTP client. Its own timeout is kept.
func WithHTTPClient(client *http.Client) Option {
    return func(o *options) {
        if client != nil { o.httpClient = client }
    }
}

// WithBaseURL points the client at another host, e.g. a proxy or a test server.
func WithBaseURL(base string) Option {
    return func(o *options) {
        if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" { o.baseURL = base }
    }
}

// WithTimeout sets the request timeout of the default HTTP client (60s when unset).
func WithTimeout(d time.Duration) Option {
    return func(o *options) {
        if d > 0 { o.timeout = d }
    }
}

func buildOptions(defaultBase string, opts []Option) options {
    o := options{baseURL: defaultBase, timeout: defaultTimeout}
    for _, opt := range opts {
        if opt != nil { opt(&o) }
    }
    if o.httpClient == nil {
        o.httpClient = &http.Client{Timeout: o.timeout}
    }
    return o
}

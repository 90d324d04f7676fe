package logger

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    jsoniter "github.com/json-iterator/go"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"

    "github.com/local/comesano/internal/config"
)

const (
    service        = "comesano"
    redacted       = "REDACTED"
    axiomBatchSize = 200
    axiomQueueSize = 1000
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options defines logger initialization parameters.
type Options struct {
    Level      string
    Pretty     bool
    File       string // empty disables the rotating file
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
    Console    io.Writer // defaults to os.Stdout
    Secrets    []string  // masked in every sink, e.g. provider API keys

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

// FromConfig maps the logging and Axiom sections of cfg to Options.
// Provider keys are registered as secrets.
func FromConfig(cfg config.Config) Options {
    return Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        Secrets:      []string{cfg.Providers.OpenAI.APIKey, cfg.Providers.Gemini.APIKey},
        SendToAxiom:  cfg.Axiom.Send,
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    }
}

var (
    global zerolog.Logger
    sink   *axiomSink
)

// Init installs the global logger. Lines fan out to the rotating file, the
// console and, when enabled, Axiom; secrets are masked before any of them.
func Init(opts Options) error {
    Close()

    sinks, err := buildSinks(opts)
    if err != nil { return err }

    lvl, perr := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
    if perr != nil || opts.Level == "" { lvl = zerolog.InfoLevel }

    zerolog.TimeFieldFormat = time.RFC3339
    out := newRedactor(io.MultiWriter(sinks...), opts.Secrets)
    global = zerolog.New(out).Level(lvl).With().Timestamp().Str("service", service).Logger()
    log.Logger = global
    return nil
}

func buildSinks(opts Options) ([]io.Writer, error) {
    var sinks []io.Writer
    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return nil, fmt.Errorf("create logs dir: %w", err)
        }
        sinks = append(sinks, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }

    console := opts.Console
    if console == nil { console = os.Stdout }
    if opts.Pretty {
        console = zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
    }
    sinks = append(sinks, console)

    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        s, err := newAxiomSink(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            sink = s
            sinks = append(sinks, s)
        }
    }
    return sinks, nil
}

// Close flushes and stops the Axiom sink, if any.
func Close() {
    if sink != nil {
        sink.close()
        sink = nil
    }
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// redactor replaces every configured secret in a log line.
type redactor struct {
    next    io.Writer
    secrets [][]byte
}

func newRedactor(next io.Writer, secrets []string) io.Writer {
    r := &redactor{next: next}
    for _, s := range secrets {
        // very short values would mask ordinary text
        if s = strings.TrimSpace(s); len(s) >= 8 {
            r.secrets = append(r.secrets, []byte(s))
        }
    }
    if len(r.secrets) == 0 { return next }
    return r
}

func (r *redactor) Write(p []byte) (int, error) {
    line := p
    for _, s := range r.secrets {
        if bytes.Contains(line, s) {
            line = bytes.ReplaceAll(line, s, []byte(redacted))
        }
    }
    if _, err := r.next.Write(line); err != nil { return 0, err }
    return len(p), nil
}

// axiomSink batches info-and-above lines and ships them to Axiom.
type axiomSink struct {
    client  *axiom.Client
    dataset string
    events  chan axiom.Event
    dropped atomic.Int64
    done    sync.WaitGroup
    cancel  context.CancelFunc
}

func newAxiomSink(token, orgID, dataset string, flushEvery time.Duration) (*axiomSink, error) {
    if dataset == "" { dataset = "dev_" + service }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    client, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }

    ctx, cancel := context.WithCancel(context.Background())
    s := &axiomSink{client: client, dataset: dataset, events: make(chan axiom.Event, axiomQueueSize), cancel: cancel}
    s.done.Add(1)
    go s.run(ctx, flushEvery)
    return s, nil
}

func (s *axiomSink) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(bytes.TrimSpace(p)), "level": "info"}
    }
    switch ev["level"] {
    case "debug", "trace":
        return len(p), nil
    }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    select {
    case s.events <- axiom.Event(ev):
    default:
        s.dropped.Add(1)
    }
    return len(p), nil
}

func (s *axiomSink) run(ctx context.Context, flushEvery time.Duration) {
    defer s.done.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()

    batch := make([]axiom.Event, 0, axiomBatchSize)
    flush := func() {
        if len(batch) == 0 { return }
        fctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if _, err := s.client.IngestEvents(fctx, s.dataset, batch); err != nil {
            fmt.Fprintf(os.Stderr, "axiom ingest failed (%d events): %v\n", len(batch), err)
        }
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-ctx.Done():
            // drain what is already queued
            for {
                select {
                case ev := <-s.events:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-s.events:
            if batch = append(batch, ev); len(batch) >= axiomBatchSize { flush() }
        }
    }
}

func (s *axiomSink) close() {
    s.cancel()
    s.done.Wait()
    if n := s.dropped.Load(); n > 0 {
        fmt.Fprintf(os.Stderr, "axiom: dropped %d log events (queue full)\n", n)
    }
}

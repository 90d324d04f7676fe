package server

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    jsoniter "github.com/json-iterator/go"
    "github.com/rs/zerolog/log"

    "github.com/local/comesano/internal/ai"
    "github.com/local/comesano/internal/countdown"
    "github.com/local/comesano/internal/dispatcher"
    "github.com/local/comesano/internal/imagecheck"
    "github.com/local/comesano/internal/limiter"
    "github.com/local/comesano/internal/metrics"
    "github.com/local/comesano/internal/nutrition"
    "github.com/local/comesano/internal/session"
    "github.com/local/comesano/internal/statuscheck"
    "github.com/local/comesano/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSession is used when a request carries no session parameter.
const DefaultSession = "default"

// Dependencies wires the server to the inference chain and its supporting stores.
type Dependencies struct {
    Client  dispatcher.Inferrer
    Status  store.StatusStore
    Images  *imagecheck.Detector
    Checker *statuscheck.Checker // nil disables /providers
    Slots   *limiter.Slots       // nil means unlimited
}

// Config holds HTTP-level limits.
type Config struct {
    MaxUploadMB int
    SessionIdle time.Duration // idle sessions older than this are dropped
}

type sessionEntry struct {
    analyzer *session.Analyzer
    lastUsed time.Time
}

// Server exposes photo analysis over HTTP, one Analyzer per session.
type Server struct {
    cfg  Config
    deps Dependencies

    mu       sync.Mutex
    sessions map[string]*sessionEntry
    now      func() time.Time
}

func New(cfg Config, deps Dependencies) *Server {
    if cfg.MaxUploadMB <= 0 { cfg.MaxUploadMB = 10 }
    if cfg.SessionIdle <= 0 { cfg.SessionIdle = time.Hour }
    if deps.Images == nil { deps.Images = imagecheck.New() }
    if deps.Status == nil { deps.Status = store.NewMemoryStatus(24 * time.Hour) }
    return &Server{cfg: cfg, deps: deps, sessions: map[string]*sessionEntry{}, now: time.Now}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/analyze", s.handleAnalyze)
    mux.HandleFunc("/retry", s.handleRetry)
    mux.HandleFunc("/countdown", s.handleCountdown)
    mux.HandleFunc("/analysis/", s.handleAnalysis)
    if s.deps.Checker != nil {
        mux.HandleFunc("/providers", s.handleProviders)
    }
    mux.Handle("/metrics", metrics.Handler())
}

// Close cancels every session countdown.
func (s *Server) Close() {
    s.mu.Lock()
    defer s.mu.Unlock()
    for id, e := range s.sessions {
        e.analyzer.Close()
        delete(s.sessions, id)
    }
}

type analyzeResp struct {
    AnalysisID  string                `json:"analysis_id"`
    Status      string                `json:"status"`
    Result      *nutrition.Result     `json:"result,omitempty"`
    Totals      *nutrition.PerServing `json:"totals,omitempty"`
    Message     string                `json:"message,omitempty"`
    RateLimited bool                  `json:"rate_limited"`
    RetryIn     int                   `json:"retry_in_seconds,omitempty"`
}

type errorResp struct {
    Error   string `json:"error"`
    Message string `json:"message"`
    RetryIn int    `json:"retry_in_seconds,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    sessionID := sessionParam(r)

    limit := int64(s.cfg.MaxUploadMB) << 20
    r.Body = http.MaxBytesReader(w, r.Body, limit)
    if err := r.ParseMultipartForm(limit); err != nil {
        var tooLarge *http.MaxBytesError
        if errors.As(err, &tooLarge) {
            http.Error(w, fmt.Sprintf("upload exceeds %d MB", s.cfg.MaxUploadMB), http.StatusRequestEntityTooLarge); return
        }
        http.Error(w, "invalid multipart form", http.StatusBadRequest); return
    }
    file, _, err := r.FormFile("image")
    if err != nil { http.Error(w, "missing image", http.StatusBadRequest); return }
    defer file.Close()
    raw, err := io.ReadAll(file)
    if err != nil { http.Error(w, "read failed", http.StatusBadRequest); return }
    if len(raw) == 0 { http.Error(w, "empty image", http.StatusBadRequest); return }

    img, info, err := s.deps.Images.Normalize(raw)
    if err != nil {
        var unsupported *imagecheck.UnsupportedError
        if errors.As(err, &unsupported) {
            http.Error(w, unsupported.Error(), http.StatusUnsupportedMediaType); return
        }
        http.Error(w, "cannot decode image", http.StatusBadRequest); return
    }
    instruction := r.FormValue("instruction")

    a := s.analyzer(sessionID)
    if a.Busy() {
        writeError(w, http.StatusConflict, "busy", session.ErrBusy, 0); return
    }
    log.Info().
        Str("session", sessionID).
        Str("mime", info.MIMEType).
        Int("bytes", len(img)).
        Bool("instruction", strings.TrimSpace(instruction) != "").
        Msg("analysis requested")

    s.execute(w, r, sessionID, a, false, func(ctx context.Context) (nutrition.Result, error) {
        return a.Analyze(ctx, img, instruction)
    })
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    sessionID := sessionParam(r)
    a := s.lookup(sessionID)
    if a == nil || !a.HasPrevious() {
        writeError(w, http.StatusNotFound, "no_previous_request", session.ErrNoPreviousRequest, 0); return
    }
    if a.Busy() {
        writeError(w, http.StatusConflict, "busy", session.ErrBusy, 0); return
    }
    if snap := a.Countdown(); snap.State == countdown.Counting {
        cooling := &session.CoolingDownError{Remaining: snap.Remaining}
        w.Header().Set("Retry-After", strconv.Itoa(snap.Remaining))
        writeError(w, http.StatusTooManyRequests, "cooling_down", cooling, snap.Remaining); return
    }
    s.execute(w, r, sessionID, a, true, a.Retry)
}

// execute runs one analysis under a limiter slot and records its lifecycle.
func (s *Server) execute(w http.ResponseWriter, r *http.Request, sessionID string, a *session.Analyzer, retry bool, run func(context.Context) (nutrition.Result, error)) {
    chain := dispatcher.Describe(s.deps.Client)
    release := func() {}
    if s.deps.Slots != nil {
        var ok bool
        release, ok = s.deps.Slots.Allow(chain)
        if !ok {
            w.Header().Set("Retry-After", "1")
            http.Error(w, "too many analyses in progress", http.StatusServiceUnavailable); return
        }
    }
    defer release()

    id := uuid.NewString()
    ctx := context.WithoutCancel(r.Context())
    start := s.now()
    rec := store.Record{ID: id, Session: sessionID, Status: store.StatusRunning, Client: chain, Retry: retry, Start: &start}
    s.saveRecord(ctx, rec)

    result, err := run(r.Context())

    end := s.now()
    rec.End = &end
    resp := analyzeResp{AnalysisID: id}
    code := http.StatusOK
    if err != nil {
        rec.Status = store.StatusFailed
        rec.ErrorKind = errorKind(err)
        rec.Message = session.UserMessage(err)
        resp.Status = store.StatusFailed
        resp.Message = rec.Message
        code = statusFor(err)
        if ai.IsRateLimited(err) {
            resp.RateLimited = true
            if snap := a.Countdown(); snap.State == countdown.Counting {
                resp.RetryIn, rec.RetryIn = snap.Remaining, snap.Remaining
                w.Header().Set("Retry-After", strconv.Itoa(snap.Remaining))
            }
        }
    } else {
        totals := result.TotalNutrition()
        rec.Status = store.StatusDone
        rec.FoodItems = len(result.FoodItems)
        rec.ShoppingItems = len(result.ShoppingList)
        resp.Status = store.StatusDone
        resp.Result = &result
        resp.Totals = &totals
    }
    s.saveRecord(ctx, rec)

    log.Info().
        Str("analysis_id", id).
        Str("session", sessionID).
        Str("status", rec.Status).
        Str("error_kind", rec.ErrorKind).
        Bool("retry", retry).
        Dur("duration", end.Sub(start)).
        Msg("analysis finished")

    writeJSON(w, code, resp)
}

func (s *Server) handleCountdown(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    snap := countdown.Snapshot{State: countdown.Idle}
    if a := s.lookup(sessionParam(r)); a != nil {
        snap = a.Countdown()
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "state":             snap.State.String(),
        "remaining_seconds": snap.Remaining,
    })
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/analysis/")
    if id == "" { http.Error(w, "missing analysis id", http.StatusBadRequest); return }
    rec, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    writeJSON(w, http.StatusOK, s.deps.Checker.Summary(r.Context()))
}

// analyzer returns the session's Analyzer, creating it on first use.
func (s *Server) analyzer(id string) *session.Analyzer {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    if e, ok := s.sessions[id]; ok {
        e.lastUsed = now
        return e.analyzer
    }
    s.evictIdleLocked(now)
    a := session.NewAnalyzer(s.deps.Client, nil)
    s.sessions[id] = &sessionEntry{analyzer: a, lastUsed: now}
    return a
}

func (s *Server) lookup(id string) *session.Analyzer {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.sessions[id]
    if !ok { return nil }
    e.lastUsed = s.now()
    return e.analyzer
}

func (s *Server) evictIdleLocked(now time.Time) {
    for id, e := range s.sessions {
        if now.Sub(e.lastUsed) < s.cfg.SessionIdle || e.analyzer.Busy() { continue }
        e.analyzer.Close()
        delete(s.sessions, id)
        log.Debug().Str("session", id).Msg("dropped idle session")
    }
}

func (s *Server) saveRecord(ctx context.Context, rec store.Record) {
    if err := s.deps.Status.Set(ctx, rec); err != nil {
        log.Warn().Err(err).Str("analysis_id", rec.ID).Msg("failed to save analysis status")
    }
}

func sessionParam(r *http.Request) string {
    if id := strings.TrimSpace(r.URL.Query().Get("session")); id != "" { return id }
    return DefaultSession
}

func errorKind(err error) string {
    switch {
    case errors.Is(err, session.ErrBusy):
        return "busy"
    case errors.Is(err, session.ErrNoPreviousRequest):
        return "no_previous_request"
    }
    var cooling *session.CoolingDownError
    if errors.As(err, &cooling) { return "cooling_down" }
    return ai.Kind(err)
}

func statusFor(err error) int {
    var cooling *session.CoolingDownError
    switch {
    case errors.Is(err, session.ErrBusy):
        return http.StatusConflict
    case errors.Is(err, session.ErrNoPreviousRequest):
        return http.StatusNotFound
    case errors.As(err, &cooling), ai.IsRateLimited(err):
        return http.StatusTooManyRequests
    case ai.Kind(err) == ai.KindTimeout:
        return http.StatusGatewayTimeout
    }
    return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, code int, kind string, err error, retryIn int) {
    writeJSON(w, code, errorResp{Error: kind, Message: session.UserMessage(err), RetryIn: retryIn})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

package server

import (
    "bytes"
    "context"
    "image"
    "image/color"
    "image/jpeg"
    "io"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/local/comesano/internal/ai"
    "github.com/local/comesano/internal/limiter"
    "github.com/local/comesano/internal/nutrition"
    "github.com/local/comesano/internal/store"
)

type fakeInferrer struct {
    mu      sync.Mutex
    err     error
    calls   int
    entered chan struct{}
    release chan struct{}
}

func (f *fakeInferrer) String() string { return "fake/model" }

func (f *fakeInferrer) InferNutrition(_ context.Context, _ []byte, instruction string) (nutrition.Result, error) {
    if f.entered != nil {
        f.entered <- struct{}{}
    }
    if f.release != nil {
        <-f.release
    }
    f.mu.Lock()
    defer f.mu.Unlock()
    f.calls++
    if f.err != nil {
        return nutrition.Result{}, f.err
    }
    r := nutrition.Empty("instrucción: " + instruction)
    r.FoodItems = []nutrition.FoodItem{{Name: "Ensalada", Nutrition: nutrition.PerServing{Calories: 120, ProteinGrams: 3}, Source: "ai"}}
    return r, nil
}

func (f *fakeInferrer) callCount() int {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.calls
}

func (f *fakeInferrer) setErr(err error) {
    f.mu.Lock()
    f.err = err
    f.mu.Unlock()
}

func jpegBytes(t *testing.T) []byte {
    t.Helper()
    img := image.NewRGBA(image.Rect(0, 0, 4, 4))
    for x := 0; x < 4; x++ {
        for y := 0; y < 4; y++ {
            img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
        }
    }
    var buf bytes.Buffer
    if err := jpeg.Encode(&buf, img, nil); err != nil {
        t.Fatalf("encode jpeg: %v", err)
    }
    return buf.Bytes()
}

func multipartBody(t *testing.T, field string, data []byte, instruction string) (*bytes.Buffer, string) {
    t.Helper()
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    if data != nil {
        fw, err := mw.CreateFormFile(field, "photo.jpg")
        if err != nil {
            t.Fatal(err)
        }
        _, _ = fw.Write(data)
    }
    if instruction != "" {
        _ = mw.WriteField("instruction", instruction)
    }
    _ = mw.Close()
    return &buf, mw.FormDataContentType()
}

func newTestServer(t *testing.T, inf *fakeInferrer, slots *limiter.Slots) (*Server, *httptest.Server, *store.MemoryStatus) {
    t.Helper()
    st := store.NewMemoryStatus(time.Hour)
    srv := New(Config{MaxUploadMB: 1}, Dependencies{Client: inf, Status: st, Slots: slots})
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)
    ts := httptest.NewServer(mux)
    t.Cleanup(func() {
        ts.Close()
        srv.Close()
    })
    return srv, ts, st
}

func postAnalyze(t *testing.T, ts *httptest.Server, sessionID string, data []byte, instruction string) (*http.Response, analyzeResp) {
    t.Helper()
    body, ct := multipartBody(t, "image", data, instruction)
    resp, err := http.Post(ts.URL+"/analyze?session="+sessionID, ct, body)
    if err != nil {
        t.Fatalf("post: %v", err)
    }
    defer resp.Body.Close()
    var out analyzeResp
    raw, _ := io.ReadAll(resp.Body)
    if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
        if err := json.Unmarshal(raw, &out); err != nil {
            t.Fatalf("decode %s: %v", raw, err)
        }
    }
    return resp, out
}

func TestHealth(t *testing.T) {
    _, ts, _ := newTestServer(t, &fakeInferrer{}, nil)
    resp, err := http.Get(ts.URL + "/health")
    if err != nil {
        t.Fatal(err)
    }
    defer resp.Body.Close()
    b, _ := io.ReadAll(resp.Body)
    if resp.StatusCode != http.StatusOK || string(b) != "ok" {
        t.Fatalf("unexpected health response %d %q", resp.StatusCode, b)
    }
}

func TestAnalyzeSuccessRecordsStatus(t *testing.T) {
    inf := &fakeInferrer{}
    _, ts, st := newTestServer(t, inf, nil)

    resp, out := postAnalyze(t, ts, "s1", jpegBytes(t), "sin sal")
    if resp.StatusCode != http.StatusOK {
        t.Fatalf("status = %d", resp.StatusCode)
    }
    if out.Status != store.StatusDone || out.Result == nil || len(out.Result.FoodItems) != 1 {
        t.Fatalf("unexpected response %+v", out)
    }
    if out.Result.Notes != "instrucción: sin sal" {
        t.Fatalf("instruction not forwarded: %q", out.Result.Notes)
    }
    if out.Totals == nil || out.Totals.Calories != 120 {
        t.Fatalf("unexpected totals %+v", out.Totals)
    }

    rec, ok, err := st.Get(context.Background(), out.AnalysisID)
    if err != nil || !ok {
        t.Fatalf("record missing: ok=%v err=%v", ok, err)
    }
    if rec.Status != store.StatusDone || rec.Session != "s1" || rec.FoodItems != 1 || rec.Client != "fake/model" {
        t.Fatalf("unexpected record %+v", rec)
    }
    if rec.Start == nil || rec.End == nil {
        t.Fatal("expected start and end times")
    }

    got, err := http.Get(ts.URL + "/analysis/" + out.AnalysisID)
    if err != nil {
        t.Fatal(err)
    }
    defer got.Body.Close()
    var fetched store.Record
    if err := json.NewDecoder(got.Body).Decode(&fetched); err != nil {
        t.Fatal(err)
    }
    if fetched.ID != out.AnalysisID || fetched.Status != store.StatusDone {
        t.Fatalf("unexpected fetched record %+v", fetched)
    }
}

func TestAnalyzeRejectsBadUploads(t *testing.T) {
    _, ts, _ := newTestServer(t, &fakeInferrer{}, nil)

    resp, _ := postAnalyze(t, ts, "s", []byte("just some plain text, not a photo"), "")
    if resp.StatusCode != http.StatusUnsupportedMediaType {
        t.Fatalf("text upload status = %d, want 415", resp.StatusCode)
    }

    resp, _ = postAnalyze(t, ts, "s", nil, "")
    if resp.StatusCode != http.StatusBadRequest {
        t.Fatalf("missing image status = %d, want 400", resp.StatusCode)
    }

    get, err := http.Get(ts.URL + "/analyze")
    if err != nil {
        t.Fatal(err)
    }
    get.Body.Close()
    if get.StatusCode != http.StatusMethodNotAllowed {
        t.Fatalf("GET /analyze status = %d", get.StatusCode)
    }
}

func TestRateLimitStartsCountdownAndBlocksRetry(t *testing.T) {
    inf := &fakeInferrer{err: &ai.InvalidResponseError{Provider: ai.OpenAI, StatusCode: 429, Message: "Rate limit reached. Please retry in 12.4s."}}
    _, ts, st := newTestServer(t, inf, nil)

    resp, out := postAnalyze(t, ts, "rl", jpegBytes(t), "")
    if resp.StatusCode != http.StatusTooManyRequests {
        t.Fatalf("status = %d, want 429", resp.StatusCode)
    }
    if !out.RateLimited || out.RetryIn <= 0 || out.RetryIn > 12 {
        t.Fatalf("unexpected outcome %+v", out)
    }
    if resp.Header.Get("Retry-After") == "" {
        t.Fatal("expected Retry-After header")
    }
    rec, ok, _ := st.Get(context.Background(), out.AnalysisID)
    if !ok || rec.Status != store.StatusFailed || rec.ErrorKind != ai.KindRateLimited {
        t.Fatalf("unexpected record %+v", rec)
    }

    cd, err := http.Get(ts.URL + "/countdown?session=rl")
    if err != nil {
        t.Fatal(err)
    }
    var snap struct {
        State     string `json:"state"`
        Remaining int    `json:"remaining_seconds"`
    }
    _ = json.NewDecoder(cd.Body).Decode(&snap)
    cd.Body.Close()
    if snap.State != "counting" || snap.Remaining <= 0 {
        t.Fatalf("unexpected countdown %+v", snap)
    }

    retry, err := http.Post(ts.URL+"/retry?session=rl", "application/json", nil)
    if err != nil {
        t.Fatal(err)
    }
    retry.Body.Close()
    if retry.StatusCode != http.StatusTooManyRequests || retry.Header.Get("Retry-After") == "" {
        t.Fatalf("retry during countdown: status %d", retry.StatusCode)
    }
    if n := inf.callCount(); n != 1 {
        t.Fatalf("retry during countdown must not call the client, calls=%d", n)
    }
}

func TestRetryReplaysLastRequest(t *testing.T) {
    inf := &fakeInferrer{err: &ai.MissingContentError{Provider: ai.Gemini}}
    _, ts, _ := newTestServer(t, inf, nil)

    resp, out := postAnalyze(t, ts, "r", jpegBytes(t), "cena")
    if resp.StatusCode != http.StatusBadGateway || out.Status != store.StatusFailed || out.RateLimited {
        t.Fatalf("unexpected first outcome %d %+v", resp.StatusCode, out)
    }
    if !strings.Contains(out.Message, "Gemini") {
        t.Fatalf("message should name the provider: %q", out.Message)
    }

    inf.setErr(nil)
    retry, err := http.Post(ts.URL+"/retry?session=r", "application/json", nil)
    if err != nil {
        t.Fatal(err)
    }
    defer retry.Body.Close()
    var again analyzeResp
    _ = json.NewDecoder(retry.Body).Decode(&again)
    if retry.StatusCode != http.StatusOK || again.Result == nil || again.Result.Notes != "instrucción: cena" {
        t.Fatalf("unexpected retry outcome %d %+v", retry.StatusCode, again)
    }
}

func TestRetryWithoutPreviousRequest(t *testing.T) {
    _, ts, _ := newTestServer(t, &fakeInferrer{}, nil)
    resp, err := http.Post(ts.URL+"/retry?session=nobody", "application/json", nil)
    if err != nil {
        t.Fatal(err)
    }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound {
        t.Fatalf("status = %d, want 404", resp.StatusCode)
    }
}

func TestBusySessionAndSlotLimit(t *testing.T) {
    inf := &fakeInferrer{entered: make(chan struct{}, 4), release: make(chan struct{})}
    _, ts, _ := newTestServer(t, inf, limiter.New(1))
    img := jpegBytes(t)

    done := make(chan int, 1)
    body, ct := multipartBody(t, "image", img, "")
    go func() {
        resp, err := http.Post(ts.URL+"/analyze?session=a", ct, body)
        if err != nil {
            done <- 0
            return
        }
        resp.Body.Close()
        done <- resp.StatusCode
    }()
    select {
    case <-inf.entered:
    case <-time.After(5 * time.Second):
        t.Fatal("first analysis never reached the client")
    }

    resp, _ := postAnalyze(t, ts, "a", img, "")
    if resp.StatusCode != http.StatusConflict {
        t.Fatalf("same session status = %d, want 409", resp.StatusCode)
    }
    resp, _ = postAnalyze(t, ts, "b", img, "")
    if resp.StatusCode != http.StatusServiceUnavailable {
        t.Fatalf("other session status = %d, want 503", resp.StatusCode)
    }

    close(inf.release)
    if code := <-done; code != http.StatusOK {
        t.Fatalf("first analysis status = %d", code)
    }
}

func TestCountdownUnknownSessionIsIdle(t *testing.T) {
    _, ts, _ := newTestServer(t, &fakeInferrer{}, nil)
    resp, err := http.Get(ts.URL + "/countdown?session=ghost")
    if err != nil {
        t.Fatal(err)
    }
    defer resp.Body.Close()
    var snap map[string]any
    _ = json.NewDecoder(resp.Body).Decode(&snap)
    if snap["state"] != "idle" || snap["remaining_seconds"] != float64(0) {
        t.Fatalf("unexpected snapshot %+v", snap)
    }
}

func TestIdleSessionsAreEvicted(t *testing.T) {
    srv := New(Config{SessionIdle: time.Minute}, Dependencies{Client: &fakeInferrer{}})
    defer srv.Close()
    now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
    srv.now = func() time.Time { return now }

    srv.analyzer("old")
    now = now.Add(2 * time.Minute)
    srv.analyzer("new")
    if srv.lookup("old") != nil {
        t.Fatal("expected idle session to be evicted")
    }
    if srv.lookup("new") == nil {
        t.Fatal("expected fresh session to be kept")
    }
}

func TestAnalysisNotFound(t *testing.T) {
    _, ts, _ := newTestServer(t, &fakeInferrer{}, nil)
    resp, err := http.Get(ts.URL + "/analysis/" + "missing-id")
    if err != nil {
        t.Fatal(err)
    }
    resp.Body.Close()
    if resp.StatusCode != http.StatusNotFound {
        t.Fatalf("status = %d, want 404", resp.StatusCode)
    }
}

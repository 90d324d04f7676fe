package ai

import (
    "context"
    "errors"
    "io"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    "github.com/tidwall/gjson"

    "github.com/local/comesano/internal/prompt"
)

func TestOpenAIRequestShape(t *testing.T) {
    var gotBody []byte
    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodPost {
            t.Fatalf("method = %s, want POST", r.Method)
        }
        if r.URL.Path != "/v1/responses" {
            t.Fatalf("path = %s, want /v1/responses", r.URL.Path)
        }
        if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
            t.Fatalf("authorization = %q", got)
        }
        if got := r.Header.Get("Content-Type"); got != "application/json" {
            t.Fatalf("content type = %q", got)
        }
        gotBody, _ = io.ReadAll(r.Body)
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{"output_text":"{\"foodItems\":[]}"}`))
    }))
    defer server.Close()

    client := NewOpenAIClient(" sk-test ", "gpt-4.1-mini", WithBaseURL(server.URL))
    text, err := client.AnalyzeImage(context.Background(), "QUJD", "describe")
    if err != nil {
        t.Fatalf("AnalyzeImage returned error: %v", err)
    }
    if text != `{"foodItems":[]}` {
        t.Fatalf("text = %q", text)
    }

    checks := map[string]string{
        "model":                       "gpt-4.1-mini",
        "input.#":                     "2",
        "input.0.role":                "system",
        "input.0.content.0.type":      "input_text",
        "input.0.content.0.text":      prompt.SystemInstruction,
        "input.1.role":                "user",
        "input.1.content.0.type":      "input_text",
        "input.1.content.0.text":      "describe",
        "input.1.content.1.type":      "input_image",
        "input.1.content.1.image_url": "data:image/jpeg;base64,QUJD",
    }
    for path, want := range checks {
        if got := gjson.GetBytes(gotBody, path).String(); got != want {
            t.Fatalf("%s = %q, want %q (body %s)", path, got, want, gotBody)
        }
    }
}

func TestOpenAIEmptyPromptKeepsTextField(t *testing.T) {
    var gotBody []byte
    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        gotBody, _ = io.ReadAll(r.Body)
        _, _ = w.Write([]byte(`{"output":[{"content":[{"text":"{}"}]}]}`))
    }))
    defer server.Close()

    client := NewOpenAIClient("k", "", WithBaseURL(server.URL))
    if _, err := client.AnalyzeImage(context.Background(), "QUJD", ""); err != nil {
        t.Fatalf("AnalyzeImage returned error: %v", err)
    }
    text := gjson.GetBytes(gotBody, "input.1.content.0.text")
    if !text.Exists() || text.String() != "" {
        t.Fatalf("expected empty text field to be sent, body %s", gotBody)
    }
    if model := gjson.GetBytes(gotBody, "model").String(); model != DefaultOpenAIModel {
        t.Fatalf("model = %q, want default", model)
    }
}

func TestOpenAIEnvelopeFallsBackToOutputContent(t *testing.T) {
    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        _, _ = w.Write([]byte(`{"output_text":"  ","output":[{"content":null},{"content":[{"text":""},{"text":"first"}]},{"content":[{"text":"second"}]}]}`))
    }))
    defer server.Close()

    text, err := NewOpenAIClient("k", "m", WithBaseURL(server.URL)).AnalyzeImage(context.Background(), "QUJD", "p")
    if err != nil {
        t.Fatalf("AnalyzeImage returned error: %v", err)
    }
    if text != "first" {
        t.Fatalf("text = %q, want first", text)
    }
}

func TestOpenAIMissingContent(t *testing.T) {
    for name, body := range map[string]string{
        "no text":      `{"output":[{"content":[{"text":""}]}]}`,
        "empty object": `{}`,
        "not json":     `<html>ok</html>`,
    } {
        t.Run(name, func(t *testing.T) {
            server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
                _, _ = w.Write([]byte(body))
            }))
            defer server.Close()

            _, err := NewOpenAIClient("k", "m", WithBaseURL(server.URL)).AnalyzeImage(context.Background(), "QUJD", "p")
            var mc *MissingContentError
            if !errors.As(err, &mc) || mc.Provider != OpenAI {
                t.Fatalf("expected MissingContentError, got %v", err)
            }
        })
    }
}

func TestOpenAIErrorStatus(t *testing.T) {
    cases := []struct {
        name    string
        status  int
        body    string
        message string
    }{
        {"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached. Please retry in 5s."}}`, "Rate limit reached. Please retry in 5s."},
        {"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "bad key"},
        {"undecodable", http.StatusBadGateway, `upstream down`, "unexpected HTTP status 502"},
        {"no message", http.StatusInternalServerError, `{"error":{}}`, "unexpected HTTP status 500"},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
                w.WriteHeader(tc.status)
                _, _ = w.Write([]byte(tc.body))
            }))
            defer server.Close()

            _, err := NewOpenAIClient("k", "m", WithBaseURL(server.URL)).AnalyzeImage(context.Background(), "QUJD", "p")
            var ire *InvalidResponseError
            if !errors.As(err, &ire) {
                t.Fatalf("expected InvalidResponseError, got %v", err)
            }
            if ire.Provider != OpenAI || ire.StatusCode != tc.status || ire.Message != tc.message {
                t.Fatalf("unexpected error %+v", ire)
            }
            if IsRateLimited(err) != (tc.status == http.StatusTooManyRequests) {
                t.Fatalf("IsRateLimited mismatch for %d", tc.status)
            }
        })
    }
}

func TestOpenAIMissingKeyMakesNoRequest(t *testing.T) {
    var hits int32
    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        atomic.AddInt32(&hits, 1)
    }))
    defer server.Close()

    _, err := NewOpenAIClient("   ", "m", WithBaseURL(server.URL)).AnalyzeImage(context.Background(), "QUJD", "p")
    var mk *MissingAPIKeyError
    if !errors.As(err, &mk) || mk.Provider != OpenAI {
        t.Fatalf("expected MissingAPIKeyError, got %v", err)
    }
    if atomic.LoadInt32(&hits) != 0 {
        t.Fatalf("expected no request, got %d", hits)
    }
}

func TestOpenAITimeout(t *testing.T) {
    release := make(chan struct{})
    server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        select {
        case <-release:
        case <-r.Context().Done():
        }
    }))
    defer server.Close()
    defer close(release)

    _, err := NewOpenAIClient("k", "m", WithBaseURL(server.URL), WithTimeout(50*time.Millisecond)).
        AnalyzeImage(context.Background(), "QUJD", "p")
    if err == nil {
        t.Fatal("expected timeout error")
    }
    if Kind(err) != KindTimeout {
        t.Fatalf("Kind = %s, want %s (%v)", Kind(err), KindTimeout, err)
    }
}

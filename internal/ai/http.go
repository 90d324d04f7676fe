package ai

import (
    "bytes"
    "context"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"
    "time"

    jsoniter "github.com/json-iterator/go"
    "github.com/rs/zerolog/log"
    "github.com/tidwall/gjson"

    mpkg "github.com/local/comesano/internal/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxResponseBytes = 8 << 20

// call is one outbound POST. logURL is the endpoint with any credential removed.
type call struct {
    provider Provider
    model    string
    endpoint string
    logURL   string
    header   http.Header
    payload  any
}

// post sends the request and returns the body of a 2xx response.
// Non-2xx statuses become *InvalidResponseError.
func post(ctx context.Context, client *http.Client, c call) ([]byte, error) {
    encoded, err := json.Marshal(c.payload)
    if err != nil {
        return nil, fmt.Errorf("%s request: encode body: %w", c.provider, err)
    }
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
    if err != nil {
        return nil, fmt.Errorf("%s request: new request: %w", c.provider, redact(err, c.logURL))
    }
    for k, vs := range c.header {
        for _, v := range vs { req.Header.Add(k, v) }
    }
    req.Header.Set("Content-Type", "application/json")

    resp, err := client.Do(req)
    if err != nil {
        return nil, fmt.Errorf("%s request: %w", c.provider, redact(err, c.logURL))
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
    if err != nil {
        return nil, fmt.Errorf("%s request: read body: %w", c.provider, err)
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return nil, &InvalidResponseError{
            Provider:   c.provider,
            StatusCode: resp.StatusCode,
            Message:    errorMessage(body, resp.StatusCode),
        }
    }
    return body, nil
}

// errorMessage reads {"error":{"message":...}} and falls back to a generic text.
func errorMessage(body []byte, status int) string {
    if msg := strings.TrimSpace(gjson.GetBytes(body, "error.message").String()); msg != "" {
        return msg
    }
    return fmt.Sprintf("unexpected HTTP status %d", status)
}

// redact hides the request URL of transport errors, which may embed a key.
func redact(err error, logURL string) error {
    var uerr *url.Error
    if errors.As(err, &uerr) {
        uerr.URL = logURL
    }
    return err
}

// observe records metrics and a log line for one provider call.
func observe(provider Provider, model string, start time.Time, err error) {
    dur := time.Since(start)
    result := Kind(err)
    mpkg.ObserveProvider(string(provider), model, result, dur)
    if err != nil {
        log.Warn().
            Str("provider", string(provider)).
            Str("model", model).
            Dur("duration", dur).
            Str("result", result).
            Err(err).
            Msg("AI provider call failed")
        return
    }
    log.Debug().
        Str("provider", string(provider)).
        Str("model", model).
        Dur("duration", dur).
        Msg("AI provider call success")
}

// firstNonEmpty returns the first value that is not blank after trimming.
func firstNonEmpty(values ...string) string {
    for _, value := range values {
        if strings.TrimSpace(value) != "" {
            return value
        }
    }
    return ""
}

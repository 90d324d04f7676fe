package ai

import (
    "fmt"
    "unicode/utf8"
)

// MaxRawTextRunes bounds the model output kept on an InvalidPayloadError.
const MaxRawTextRunes = 500

// MissingAPIKeyError is returned before any network call when no credential is configured.
type MissingAPIKeyError struct {
    Provider Provider
}

func (e *MissingAPIKeyError) Error() string {
    return fmt.Sprintf("%s: missing API key", e.Provider)
}

// InvalidResponseError represents a non-2xx HTTP status from the provider.
type InvalidResponseError struct {
    Provider   Provider
    StatusCode int
    Message    string
}

func (e *InvalidResponseError) Error() string {
    return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// MissingContentError means a 2xx envelope carried no usable text.
type MissingContentError struct {
    Provider Provider
}

func (e *MissingContentError) Error() string {
    return fmt.Sprintf("%s: response contained no text", e.Provider)
}

// InvalidPayloadError means the model text held no decodable JSON object.
type InvalidPayloadError struct {
    Provider Provider
    RawText  string
    Err      error
}

func (e *InvalidPayloadError) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("%s: invalid payload: %v (raw=%q)", e.Provider, e.Err, e.RawText)
    }
    return fmt.Sprintf("%s: invalid payload (raw=%q)", e.Provider, e.RawText)
}

func (e *InvalidPayloadError) Unwrap() error { return e.Err }

// NewInvalidPayload truncates raw to MaxRawTextRunes.
func NewInvalidPayload(provider Provider, raw string, err error) *InvalidPayloadError {
    return &InvalidPayloadError{Provider: provider, RawText: Truncate(raw, MaxRawTextRunes), Err: err}
}

// Truncate cuts s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
    if utf8.RuneCountInString(s) <= n { return s }
    runes := []rune(s)
    return string(runes[:n]) + "…"
}

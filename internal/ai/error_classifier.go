package ai

import (
    "context"
    "errors"
    "net/http"
    "strings"
)

// Error kinds used as metric labels and status records.
const (
    KindNone            = "success"
    KindMissingAPIKey   = "missing_api_key"
    KindRateLimited     = "rate_limited"
    KindInvalidResponse = "invalid_response"
    KindMissingContent  = "missing_content"
    KindInvalidPayload  = "invalid_payload"
    KindTimeout         = "timeout"
    KindTransport       = "transport"
)

// IsRateLimited reports whether err is an InvalidResponseError with HTTP 429.
// It is the only failure eligible for provider fallback.
func IsRateLimited(err error) bool {
    var ire *InvalidResponseError
    return errors.As(err, &ire) && ire.StatusCode == http.StatusTooManyRequests
}

// ProviderOf returns the provider carried by a typed error.
func ProviderOf(err error) (Provider, bool) {
    var (
        mk *MissingAPIKeyError
        ir *InvalidResponseError
        mc *MissingContentError
        ip *InvalidPayloadError
    )
    switch {
    case errors.As(err, &mk):
        return mk.Provider, true
    case errors.As(err, &ir):
        return ir.Provider, true
    case errors.As(err, &mc):
        return mc.Provider, true
    case errors.As(err, &ip):
        return ip.Provider, true
    }
    return "", false
}

// Kind classifies err into one of the Kind constants.
func Kind(err error) string {
    if err == nil { return KindNone }
    var (
        mk *MissingAPIKeyError
        ir *InvalidResponseError
        mc *MissingContentError
        ip *InvalidPayloadError
    )
    switch {
    case errors.As(err, &mk):
        return KindMissingAPIKey
    case IsRateLimited(err):
        return KindRateLimited
    case errors.As(err, &ir):
        return KindInvalidResponse
    case errors.As(err, &mc):
        return KindMissingContent
    case errors.As(err, &ip):
        return KindInvalidPayload
    case isTimeoutError(err):
        return KindTimeout
    }
    return KindTransport
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
    if err == nil {
        return false
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    errStr := strings.ToLower(err.Error())
    return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

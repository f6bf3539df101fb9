package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"resty.dev/v3"
)

const (
	// Retry waits are kept short because the per-fetch timeout bounds the
	// total time a fetch may spend, retries included.
	defaultRetryWaitTime    = 200 * time.Millisecond
	defaultRetryMaxWaitTime = 2 * time.Second

	// defaultRequestTimeout caps a single attempt when the caller's context
	// has no deadline.
	defaultRequestTimeout = 15 * time.Second
)

// ClientOptions configures NewHTTPClient.
type ClientOptions struct {
	BaseURL string
	// Retries is the number of additional attempts; zero disables retrying.
	Retries int
	// Source is attached to retry log lines.
	Source string
	Logger *slog.Logger
}

// NewHTTPClient creates an HTTP client for one upstream API with bounded
// retries and exponential backoff with jitter.
func NewHTTPClient(opts ClientOptions) *resty.Client {
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "cryptowatch/1.0")

	if opts.Retries <= 0 {
		return client.SetRetryCount(0)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Source != "" {
		logger = logger.With("source", opts.Source)
	}

	return client.
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		DisableRetryDefaultConditions().
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook(logger))
}

// DecodeJSON unmarshals the body of a successful response into v. Bodies
// are decoded here rather than through resty's SetResult so that a
// malformed payload surfaces as a parse error instead of a transport one.
func DecodeJSON(resp *resty.Response, v any) error {
	if err := json.Unmarshal(resp.Bytes(), v); err != nil {
		return NewParseError("malformed response body", err)
	}
	return nil
}

// retryCondition retries transport failures, 408, 429 and 5xx except 501.
// 418 is Binance's ban answer to ignored 429s and is never retried, and
// nothing is retried once the caller's context is done or when the body
// could not be decoded.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		if isDecodeError(err) {
			return false
		}
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if r == nil {
		return false
	}

	switch code := r.StatusCode(); {
	case code == http.StatusNotImplemented:
		return false
	case code >= 500:
		return true
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	default:
		return false
	}
}

func retryHook(logger *slog.Logger) resty.RetryHookFunc {
	return func(r *resty.Response, err error) {
		if err != nil {
			logger.Debug("retrying request due to error",
				"url", r.Request.URL,
				"attempt", r.Request.Attempt,
				"error", err.Error())
			return
		}

		logger.Debug("retrying request due to status code",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"status_code", r.StatusCode())
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

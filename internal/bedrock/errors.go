package bedrock

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
)

// ProviderError wraps a Bedrock API failure with its error code and
// HTTP status so callers and the retry strategy can classify it after
// wrapping.
type ProviderError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bedrock api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("bedrock api error: %s", e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// HTTPStatusCode reports the HTTP status of the failed call, zero if
// unknown.
func (e *ProviderError) HTTPStatusCode() int { return e.Status }

// RateLimitError indicates the provider throttled the request.
// RetryAfter carries the server-supplied delay when one was sent.
type RateLimitError struct {
	ProviderError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("bedrock rate limited: %s", e.Message)
}

// RetryAfterHint returns the provider-supplied retry delay, zero if
// none was sent.
func (e *RateLimitError) RetryAfterHint() time.Duration { return e.RetryAfter }

// UnavailableError indicates the model cannot serve requests right now.
type UnavailableError struct {
	ProviderError
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("bedrock model unavailable: %s", e.Message)
}

// ValidationError indicates the request itself was rejected. Requests
// that fail validation never succeed on retry.
type ValidationError struct {
	ProviderError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bedrock rejected request: %s", e.Message)
}

// Classify converts SDK errors into typed errors. Transport errors
// with no API error code pass through unchanged; the retry strategy
// still recognizes those by message.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	status := 0
	var retryAfter time.Duration
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
		if header := respErr.Response.Header.Get("Retry-After"); header != "" {
			if secs, perr := strconv.Atoi(header); perr == nil && secs > 0 {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
	}

	base := ProviderError{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.ErrorMessage(),
		Status:  status,
		Err:     err,
	}

	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return &RateLimitError{ProviderError: base, RetryAfter: retryAfter}
	case "ServiceUnavailableException":
		return &UnavailableError{ProviderError: base}
	case "ValidationException":
		return &ValidationError{ProviderError: base}
	}
	if status == http.StatusTooManyRequests {
		return &RateLimitError{ProviderError: base, RetryAfter: retryAfter}
	}
	return &base
}

// errorLabel maps an error to a short metric label.
func errorLabel(err error) string {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return "throttled"
	}
	var ua *UnavailableError
	if errors.As(err, &ua) {
		return "unavailable"
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return "api_error"
	}
	return "transport"
}

package inference

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned by NewOpenAI without a key. Compatible
	// servers may run without one.
	ErrNoAPIKey = errors.New("inference: API key required")

	ErrNoModel   = errors.New("inference: model required")
	ErrNoBaseURL = errors.New("inference: base URL required")

	// ErrNoProviders is returned by NewChain without providers.
	ErrNoProviders = errors.New("inference: no providers")

	// ErrStreamClosed is returned by Recv after the final chunk.
	ErrStreamClosed = errors.New("inference: stream closed")
)

// APIError is an error response from an endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// Retryable reports rate limiting and server errors.
func (e *APIError) Retryable() bool {
	return retryableStatus(e.StatusCode)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ProviderError tags a transport or decoding failure with its provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects the failure of every provider in a Chain, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "inference chain: no errors recorded"
	case 1:
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("inference chain: all %d providers failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error {
	return e.Errors
}

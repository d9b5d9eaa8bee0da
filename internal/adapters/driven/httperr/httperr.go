// Package httperr converts non-success HTTP responses from AI providers
// into *domain.ProviderError values.
package httperr

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/ragbot/internal/core/domain"
)

// maxBody bounds how much of an error body is kept.
const maxBody = 4 << 10

// FromResponse builds a ProviderError from resp. The body is read and
// truncated but not closed.
func FromResponse(provider string, resp *http.Response) *domain.ProviderError {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	text := strings.TrimSpace(string(body))
	if err != nil {
		text = "failed to read response"
	}
	return &domain.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		RetryAfter: RetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		Body:       text,
	}
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// FromOpenAI maps errors returned by the go-openai client. Errors that carry
// no HTTP status are returned unchanged.
func FromOpenAI(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.ProviderError{
			Provider:   provider,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := strings.TrimSpace(string(reqErr.Body))
		if len(body) > maxBody {
			body = body[:maxBody]
		}
		if body == "" && reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &domain.ProviderError{
			Provider:   provider,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       body,
		}
	}
	return err
}

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/heraldbot/herald/internal/provider"
)

// apiErrorBody mirrors the JSON error envelope the Anthropic API
// returns alongside non-2xx statuses.
type apiErrorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// mapError translates SDK errors into herald's provider sentinels so
// the chain can decide between failover, backoff, and giving up.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	// Cancellation is the caller's doing, not the provider's.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("anthropic: %w", err)
	}

	switch apiErr.StatusCode {
	case 429:
		return fmt.Errorf("%w: anthropic (status 429)", provider.ErrRateLimit)
	case 401, 403:
		return fmt.Errorf("%w: anthropic (status %d)", provider.ErrAuthentication, apiErr.StatusCode)
	case 529, 500, 502, 503:
		return fmt.Errorf("%w: anthropic (status %d)", provider.ErrProviderDown, apiErr.StatusCode)
	case 400:
		if isContextLengthError(apiErr) {
			return fmt.Errorf("%w: anthropic (status 400)", provider.ErrContextLength)
		}
		return fmt.Errorf("anthropic: %w", apiErr)
	default:
		return fmt.Errorf("anthropic: %w", apiErr)
	}
}

// isContextLengthError inspects a 400 response for the context-window
// signature. The API has no dedicated status for it, so this parses
// the error body and falls back to a raw substring check.
func isContextLengthError(apiErr *sdkanthropic.Error) bool {
	var body apiErrorBody
	if err := json.Unmarshal([]byte(apiErr.RawJSON()), &body); err == nil {
		if body.Error.Type == "invalid_request_error" {
			msg := strings.ToLower(body.Error.Message)
			for _, marker := range []string{"context length", "too many tokens", "token limit"} {
				if strings.Contains(msg, marker) {
					return true
				}
			}
		}
		return false
	}

	raw := strings.ToLower(apiErr.Error())
	return strings.Contains(raw, "context length") || strings.Contains(raw, "too many tokens")
}

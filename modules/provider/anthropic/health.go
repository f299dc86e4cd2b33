package anthropic

import (
	"context"
	"fmt"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
)

// HealthCheck sends a one-token request to verify the API key and
// model are usable. The chain calls this when deciding whether to
// revive a provider that was marked down.
func (a *Anthropic) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return fmt.Errorf("anthropic: not provisioned")
	}

	_, err := a.client.Messages.New(ctx, sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(a.config.Model),
		MaxTokens: 1,
		Messages: []sdkanthropic.MessageParam{
			sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock("hi")),
		},
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

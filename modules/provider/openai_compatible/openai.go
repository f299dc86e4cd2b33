// Package openaicompat provides an OpenAI-compatible LLM provider module.
// It works with any API that implements the OpenAI chat completions
// interface (OpenRouter, Mistral, Groq, DeepSeek, Ollama, vLLM, LiteLLM)
// via a configurable base_url.
package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/heraldbot/herald/internal/core"
	"github.com/heraldbot/herald/internal/provider"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Interface guards.
var (
	_ core.Module            = (*Provider)(nil)
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
	_ provider.ChainMember   = (*Provider)(nil)
)

// Provider is the provider.openai_compatible module.
type Provider struct {
	config Config
	client *http.Client
	auth   *provider.AuthProfile
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai_compatible",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.logger = ctx.Logger

	if err := p.config.parse(); err != nil {
		return err
	}

	keys := p.config.resolveKeys()
	if len(keys) > 0 {
		auth, err := provider.NewAuthProfile(keys...)
		if err != nil {
			return fmt.Errorf("provider.openai_compatible: %w", err)
		}
		p.auth = auth
	}

	// A response-header timeout instead of a global client timeout:
	// a global timeout would kill long-running SSE streams, and
	// per-request contexts already handle cancellation.
	p.client = &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: p.config.timeout,
		},
	}

	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// ChainEntry implements provider.ChainMember. The chain rotates the
// same auth profile doRequest reads, so rotation on rate limits takes
// effect on the next request.
func (p *Provider) ChainEntry() provider.ChainEntry {
	roles := make([]provider.Role, 0, len(p.config.FallbackFor))
	for _, r := range p.config.FallbackFor {
		role, _ := provider.ParseRole(r)
		roles = append(roles, role)
	}
	return provider.ChainEntry{
		Name:        p.config.Name,
		Provider:    p,
		Role:        p.config.role,
		Auth:        p.auth,
		FallbackFor: roles,
	}
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	oaiReq := buildRequest(p.config.Model, p.config.MaxTokens, req, false)

	resp, err := p.doRequest(ctx, oaiReq)
	if err != nil {
		return provider.CompletionResponse{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, handleErrorResponse(resp)
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return parseResponse(oaiResp), nil
}

// Stream implements provider.Provider.
func (p *Provider) Stream(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
	oaiReq := buildRequest(p.config.Model, p.config.MaxTokens, req, true)

	resp, err := p.doRequest(ctx, oaiReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		return nil, handleErrorResponse(resp)
	}

	// 1 MiB line buffer: a single SSE line can carry long tool call
	// arguments.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	ch := make(chan provider.StreamChunk, streamBufferSize)
	go func() {
		defer close(ch)
		defer resp.Body.Close() //nolint:errcheck // best-effort close
		p.readSSE(ctx, scanner, ch)
	}()

	return ch, nil
}

// ContextWindowSize implements provider.Provider.
func (p *Provider) ContextWindowSize() int {
	return p.config.ContextWindow
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker.
// It probes the /models endpoint to check provider availability.
func (p *Provider) HealthCheck(ctx context.Context) error {
	endpoint := p.config.BaseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: health check returned HTTP %d", provider.ErrProviderDown, resp.StatusCode)
	}

	return nil
}

// setHeaders applies auth and custom headers to an outgoing request.
func (p *Provider) setHeaders(req *http.Request) {
	if p.auth != nil {
		req.Header.Set("Authorization", "Bearer "+p.auth.CurrentKey())
	}
	for k, v := range p.config.Headers {
		req.Header.Set(k, v)
	}
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("provider.openai_compatible: %s is required", field)
}

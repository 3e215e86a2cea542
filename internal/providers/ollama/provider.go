// internal/providers/ollama/provider.go
// Package ollama provides an Embedder and Generator backed by an Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
)

// Provider implements providers.Embedder, providers.Generator and providers.ModelChecker
// for a single model on a single Ollama host.
type Provider struct {
	client  *api.Client
	host    appconfig.Host
	model   string
	timeout time.Duration
	stream  bool
}

// New constructs a Provider for model on host, configured with the application's request timeout.
func New(cfg *appconfig.Config, host appconfig.Host, model string) (*Provider, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(host.URL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: invalid url %q for host %s", host.URL, hostIdentifier(host))
	}
	timeout := cfg.RequestTimeout()
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{ForceAttemptHTTP2: false},
	}
	return &Provider{
		client:  api.NewClient(base, httpClient),
		host:    host,
		model:   model,
		timeout: timeout,
		stream:  cfg.StreamEnabled(),
	}, nil
}

// Model returns the model this provider talks to.
func (p *Provider) Model() string {
	return p.model
}

// Embed requests one embedding per text through /api/embed.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hostID := hostIdentifier(p.host)
	logging.LogRequest("out", hostID, p.model, map[string]any{"endpoint": "/api/embed", "inputs": len(texts)})

	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, p.wrapError("embed", err)
	}
	logging.LogRequest("in", hostID, p.model, map[string]any{"endpoint": "/api/embed", "embeddings": len(resp.Embeddings)})

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, received %d vectors", providers.ErrEmbeddingCount, len(texts), len(resp.Embeddings))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("ollama: empty embedding for input %d", i)
		}
	}
	return resp.Embeddings, nil
}

// Generate runs /api/generate, forwarding fragments to callbacks.OnChunk as they arrive.
func (p *Provider) Generate(ctx context.Context, req providers.GenerateRequest, callbacks providers.StreamCallbacks) (providers.GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stream := p.stream && callbacks.OnChunk != nil
	genReq := &api.GenerateRequest{
		Model:   p.model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: buildOptions(p.host.Parameters),
	}
	hostID := hostIdentifier(p.host)
	logging.LogRequest("out", hostID, p.model, genReq)

	var text strings.Builder
	var final api.GenerateResponse
	err := p.client.Generate(ctx, genReq, func(resp api.GenerateResponse) error {
		text.WriteString(resp.Response)
		if callbacks.OnChunk != nil && resp.Response != "" {
			if err := callbacks.OnChunk(resp.Response); err != nil {
				return err
			}
		}
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return providers.GenerateResult{}, p.wrapError("generate", err)
	}
	logging.LogRequest("in", hostID, p.model, map[string]any{
		"done_reason":       final.DoneReason,
		"prompt_eval_count": final.PromptEvalCount,
		"eval_count":        final.EvalCount,
		"total_duration":    final.TotalDuration.String(),
	})

	modelName := final.Model
	if modelName == "" {
		modelName = p.model
	}
	return providers.GenerateResult{
		Model:           modelName,
		Text:            text.String(),
		PromptEvalCount: final.PromptEvalCount,
		EvalCount:       final.EvalCount,
		TotalDuration:   final.TotalDuration,
	}, nil
}

// EnsureModelReady confirms the host knows model via /api/show.
func (p *Provider) EnsureModelReady(ctx context.Context, model string) error {
	if strings.TrimSpace(model) == "" {
		model = p.model
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logging.LogRequest("out", hostIdentifier(p.host), model, map[string]string{"endpoint": "/api/show"})
	if _, err := p.client.Show(ctx, &api.ShowRequest{Model: model}); err != nil {
		return p.wrapError("show "+model, err)
	}
	return nil
}

// wrapError classifies client errors into the provider error taxonomy.
func (p *Provider) wrapError(op string, err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("ollama %s on %s: %w: %s", op, hostIdentifier(p.host), providers.ErrModelNotFound, statusErr.ErrorMessage)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("ollama %s on %s: %w: %w", op, hostIdentifier(p.host), providers.ErrProviderUnavailable, err)
}

// internal/providers/openai/provider.go
// Package openai provides an Embedder and Generator for OpenAI-compatible endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/providers"
)

// Provider implements providers.Embedder, providers.Generator and providers.ModelChecker
// for a single model on an OpenAI-compatible host.
type Provider struct {
	client  *openai.Client
	host    appconfig.Host
	model   string
	timeout time.Duration
	stream  bool
}

// New constructs a Provider. The API key comes from the host entry or OPENAI_API_KEY.
func New(cfg *appconfig.Config, host appconfig.Host, model string) (*Provider, error) {
	apiKey := strings.TrimSpace(host.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: host %s has no apiKey and OPENAI_API_KEY is not set", hostIdentifier(host))
	}

	timeout := cfg.RequestTimeout()
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(host.URL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)

	return &Provider{
		client:  &client,
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

// Embed requests one embedding per text. Results are reordered by their index.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	hostID := hostIdentifier(p.host)
	logging.LogRequest("out", hostID, p.model, map[string]any{"endpoint": "embeddings", "inputs": len(texts)})

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          openai.EmbeddingModel(p.model),
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, p.wrapError("embeddings", p.model, err)
	}
	logging.LogRequest("in", hostID, p.model, map[string]any{"endpoint": "embeddings", "embeddings": len(resp.Data)})

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d texts, received %d vectors", providers.ErrEmbeddingCount, len(texts), len(resp.Data))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vectors := make([][]float32, len(data))
	for i, item := range data {
		if int(item.Index) != i {
			return nil, fmt.Errorf("openai: embedding index %d out of range", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Generate runs a chat completion with the system instruction and the assembled prompt.
func (p *Provider) Generate(ctx context.Context, req providers.GenerateRequest, callbacks providers.StreamCallbacks) (providers.GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := p.buildParams(req)
	hostID := hostIdentifier(p.host)
	logging.LogRequest("out", hostID, p.model, map[string]any{"endpoint": "chat/completions", "system": req.System, "prompt": req.Prompt})

	start := time.Now()
	if !p.stream || callbacks.OnChunk == nil {
		completion, err := p.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return providers.GenerateResult{}, p.wrapError("chat completion", p.model, err)
		}
		text := ""
		if len(completion.Choices) > 0 {
			text = completion.Choices[0].Message.Content
		}
		if callbacks.OnChunk != nil && text != "" {
			if err := callbacks.OnChunk(text); err != nil {
				return providers.GenerateResult{}, err
			}
		}
		return p.result(completion.Model, text, int(completion.Usage.PromptTokens), int(completion.Usage.CompletionTokens), time.Since(start)), nil
	}

	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var text strings.Builder
	var model string
	var promptTokens, completionTokens int
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			promptTokens = int(chunk.Usage.PromptTokens)
			completionTokens = int(chunk.Usage.CompletionTokens)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		text.WriteString(delta)
		if err := callbacks.OnChunk(delta); err != nil {
			return providers.GenerateResult{}, err
		}
	}
	if err := stream.Err(); err != nil {
		return providers.GenerateResult{}, p.wrapError("chat completion stream", p.model, err)
	}
	logging.LogRequest("in", hostID, p.model, map[string]any{"prompt_tokens": promptTokens, "completion_tokens": completionTokens})
	return p.result(model, text.String(), promptTokens, completionTokens, time.Since(start)), nil
}

// EnsureModelReady confirms the model is listed by the host.
func (p *Provider) EnsureModelReady(ctx context.Context, model string) error {
	if strings.TrimSpace(model) == "" {
		model = p.model
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logging.LogRequest("out", hostIdentifier(p.host), model, map[string]string{"endpoint": "models/" + model})
	if _, err := p.client.Models.Get(ctx, model); err != nil {
		return p.wrapError("get model", model, err)
	}
	return nil
}

func (p *Provider) buildParams(req providers.GenerateRequest) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	}
	hp := p.host.Parameters
	if hp.Temperature != nil {
		params.Temperature = openai.Float(*hp.Temperature)
	}
	if hp.TopP != nil {
		params.TopP = openai.Float(*hp.TopP)
	}
	if hp.Seed != nil {
		params.Seed = openai.Int(int64(*hp.Seed))
	}
	return params
}

func (p *Provider) result(model, text string, promptTokens, completionTokens int, elapsed time.Duration) providers.GenerateResult {
	if model == "" {
		model = p.model
	}
	return providers.GenerateResult{
		Model:           model,
		Text:            text,
		PromptEvalCount: promptTokens,
		EvalCount:       completionTokens,
		TotalDuration:   elapsed,
	}
}

// wrapError maps err from an operation on model to the provider sentinel errors.
func (p *Provider) wrapError(op, model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("openai %s on %s: %w: %s", op, hostIdentifier(p.host), providers.ErrModelNotFound, model)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("openai %s on %s: %w: %w", op, hostIdentifier(p.host), providers.ErrProviderUnavailable, err)
}

func hostIdentifier(host appconfig.Host) string {
	if name := strings.TrimSpace(host.Name); name != "" {
		return name
	}
	if url := strings.TrimSpace(host.URL); url != "" {
		return url
	}
	return "openai-host"
}

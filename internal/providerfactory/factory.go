// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/metrics"
	"github.com/mwiater/docqa/internal/providers"
	"github.com/mwiater/docqa/internal/providers/ollama"
	"github.com/mwiater/docqa/internal/providers/openai"
)

// backend is the full capability set every provider implementation offers.
type backend interface {
	providers.Embedder
	providers.Generator
	providers.ModelChecker
}

// NewEmbedder builds the embedding provider for the configured embedding host and model.
// When aggregator is non-nil the provider is wrapped with metrics collection.
func NewEmbedder(cfg *appconfig.Config, aggregator *metrics.Aggregator) (providers.Embedder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}
	b, err := newBackend(cfg, cfg.EmbeddingHost, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if aggregator != nil {
		return metrics.NewEmbedder(b, aggregator), nil
	}
	return b, nil
}

// NewGenerator builds the generation provider for the configured generation host and model.
// When aggregator is non-nil the provider is wrapped with metrics collection.
func NewGenerator(cfg *appconfig.Config, aggregator *metrics.Aggregator) (providers.Generator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}
	b, err := newBackend(cfg, cfg.GenerationHost, cfg.GenerationModel)
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}
	if aggregator != nil {
		return metrics.NewGenerator(b, aggregator), nil
	}
	return b, nil
}

func newBackend(cfg *appconfig.Config, hostName, model string) (backend, error) {
	host, err := cfg.Host(hostName)
	if err != nil {
		return nil, err
	}
	switch host.Type {
	case appconfig.HostTypeOllama, "":
		logging.LogEvent("Using ollama host %s for model %s", host.Name, model)
		return ollama.New(cfg, host, model)
	case appconfig.HostTypeOpenAI:
		logging.LogEvent("Using openai host %s for model %s", host.Name, model)
		return openai.New(cfg, host, model)
	default:
		return nil, fmt.Errorf("host %q has unsupported type %q", host.Name, host.Type)
	}
}

// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultIndexPath is the directory the vector index is persisted to.
	DefaultIndexPath = "docqa_index"
	// DefaultIndexBackend is the storage engine used for the vector index.
	DefaultIndexBackend = "chromem"
	// DefaultCollection names the collection holding the document's chunks.
	DefaultCollection = "document"
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the number of characters shared by consecutive chunks.
	DefaultChunkOverlap = 100
	// DefaultTopK is the number of chunks retrieved per question.
	DefaultTopK = 4
	// DefaultContextBudget is the maximum rendered prompt length in characters.
	DefaultContextBudget = 12000
	// UnlimitedContextBudget disables prompt trimming.
	UnlimitedContextBudget = -1
	// DefaultEmbedBatchSize is the number of chunks sent per embedding request.
	DefaultEmbedBatchSize = 32
	// DefaultEmbeddingModel is the embedding model used when none is configured.
	DefaultEmbeddingModel = "nomic-embed-text"
	// DefaultGenerationModel is the generation model used when none is configured.
	DefaultGenerationModel = "llama3"
	// DefaultHostName names the host synthesized when the config lists none.
	DefaultHostName = "local"
	// DefaultHostURL is the address of a local Ollama server.
	DefaultHostURL = "http://localhost:11434"
	// defaultRequestTimeout is the default timeout for provider requests.
	defaultRequestTimeout = 600 * time.Second
	// defaultLogFile is used when no log file is configured.
	defaultLogFile = "docqa.log"
)

// Supported host types.
const (
	HostTypeOllama = "ollama"
	HostTypeOpenAI = "openai"
)

// Config represents the top-level application configuration.
type Config struct {
	Document        string `json:"document" mapstructure:"document"`
	IndexPath       string `json:"indexPath" mapstructure:"indexPath"`
	IndexBackend    string `json:"indexBackend" mapstructure:"indexBackend"`
	Collection      string `json:"collection" mapstructure:"collection"`
	ChunkSize       int    `json:"chunkSize" mapstructure:"chunkSize"`
	ChunkOverlap    int    `json:"chunkOverlap" mapstructure:"chunkOverlap"`
	TopK            int    `json:"topK" mapstructure:"topK"`
	ContextBudget   int    `json:"contextBudget" mapstructure:"contextBudget"`
	EmbedBatchSize  int    `json:"embedBatchSize" mapstructure:"embedBatchSize"`
	Hosts           []Host `json:"hosts" mapstructure:"hosts"`
	EmbeddingHost   string `json:"embeddingHost" mapstructure:"embeddingHost"`
	EmbeddingModel  string `json:"embeddingModel" mapstructure:"embeddingModel"`
	GenerationHost  string `json:"generationHost" mapstructure:"generationHost"`
	GenerationModel string `json:"generationModel" mapstructure:"generationModel"`
	Stream          *bool  `json:"stream,omitempty" mapstructure:"stream"`
	TimeoutSeconds  int    `json:"timeout,omitempty" mapstructure:"timeout"`
	LogFile         string `json:"logFile,omitempty" mapstructure:"logFile"`
	Debug           bool   `json:"debug" mapstructure:"debug"`
	Metrics         bool   `json:"metrics" mapstructure:"metrics"`
	MetricsFile     string `json:"metricsFile,omitempty" mapstructure:"metricsFile"`
	ConfigPath      string `json:"-" mapstructure:"-"`
}

// Host represents a single server that can serve embedding or generation models.
type Host struct {
	Name       string     `json:"name" mapstructure:"name"`
	URL        string     `json:"url" mapstructure:"url"`
	Type       string     `json:"type" mapstructure:"type"`
	APIKey     string     `json:"apiKey,omitempty" mapstructure:"apiKey"`
	Parameters Parameters `json:"parameters" mapstructure:"parameters"`
}

// Parameters defines the generation options forwarded to the model.
type Parameters struct {
	Temperature   *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopK          *int     `json:"top_k,omitempty" mapstructure:"top_k"`
	TopP          *float64 `json:"top_p,omitempty" mapstructure:"top_p"`
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" mapstructure:"repeat_penalty"`
	NumCtx        *int     `json:"num_ctx,omitempty" mapstructure:"num_ctx"`
	Seed          *int     `json:"seed,omitempty" mapstructure:"seed"`
}

// Defaults returns a configuration populated with every default value.
func Defaults() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.IndexPath) == "" {
		c.IndexPath = DefaultIndexPath
	}
	if strings.TrimSpace(c.IndexBackend) == "" {
		c.IndexBackend = DefaultIndexBackend
	}
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = DefaultCollection
	}
	// An explicit chunkSize with no overlap means no overlap.
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = DefaultChunkOverlap
		}
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	// Zero means unset; UnlimitedContextBudget is kept as is.
	if c.ContextBudget == 0 {
		c.ContextBudget = DefaultContextBudget
	}
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}
	if len(c.Hosts) == 0 {
		c.Hosts = []Host{{Name: DefaultHostName, URL: DefaultHostURL, Type: HostTypeOllama}}
	}
	for i := range c.Hosts {
		if strings.TrimSpace(c.Hosts[i].Type) == "" {
			c.Hosts[i].Type = HostTypeOllama
		}
	}
	if strings.TrimSpace(c.EmbeddingHost) == "" {
		c.EmbeddingHost = c.Hosts[0].Name
	}
	if strings.TrimSpace(c.GenerationHost) == "" {
		c.GenerationHost = c.Hosts[0].Name
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if strings.TrimSpace(c.GenerationModel) == "" {
		c.GenerationModel = DefaultGenerationModel
	}
	if c.Stream == nil {
		stream := true
		c.Stream = &stream
	}
}

// Validate reports the first configuration problem that would prevent answering questions.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Document) == "" {
		return errors.New("document is required")
	}
	if strings.TrimSpace(c.IndexPath) == "" {
		return errors.New("indexPath is required")
	}
	switch c.IndexBackend {
	case "chromem", "jsonl":
	default:
		return fmt.Errorf("indexBackend %q is not supported (use chromem or jsonl)", c.IndexBackend)
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunkSize must be greater than zero")
	}
	if c.ChunkOverlap < 0 {
		return errors.New("chunkOverlap must be zero or greater")
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return errors.New("chunkOverlap must be smaller than chunkSize")
	}
	if c.TopK <= 0 {
		return errors.New("topK must be greater than zero")
	}
	if c.ContextBudget < UnlimitedContextBudget {
		return errors.New("contextBudget must be -1 (unlimited) or greater than zero")
	}
	for _, host := range c.Hosts {
		if strings.TrimSpace(host.Name) == "" {
			return errors.New("every host needs a name")
		}
		switch host.Type {
		case HostTypeOllama, HostTypeOpenAI:
		default:
			return fmt.Errorf("host %q has unsupported type %q", host.Name, host.Type)
		}
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return errors.New("embeddingModel is required")
	}
	if strings.TrimSpace(c.GenerationModel) == "" {
		return errors.New("generationModel is required")
	}
	if _, err := c.Host(c.EmbeddingHost); err != nil {
		return fmt.Errorf("embeddingHost: %w", err)
	}
	if _, err := c.Host(c.GenerationHost); err != nil {
		return fmt.Errorf("generationHost: %w", err)
	}
	return nil
}

// Host looks up a configured host by name.
func (c Config) Host(name string) (Host, error) {
	if strings.TrimSpace(name) == "" {
		return Host{}, errors.New("host name is empty")
	}
	for _, host := range c.Hosts {
		if host.Name == name {
			return host, nil
		}
	}
	return Host{}, fmt.Errorf("host %q not found in config hosts", name)
}

// RequestTimeout returns the timeout duration for provider requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// StreamEnabled reports whether answers are printed while they are generated.
func (c Config) StreamEnabled() bool {
	return c.Stream == nil || *c.Stream
}

// Load reads a JSON configuration file, validates it against the schema, and applies defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}
	if err := ValidateSchema(raw); err != nil {
		return Config{}, fmt.Errorf("config file %q: %w", path, err)
	}

	var config Config
	if err := json.Unmarshal(raw, &config); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", path, err)
	}
	config.ApplyDefaults()
	config.ConfigPath = path
	return config, nil
}

package appconfig

import (
	"fmt"
	"io"
	"strings"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	fmt.Fprintln(out, "Current configuration:")
	if cfg == nil {
		defaults := Defaults()
		cfg = &defaults
	}

	fmt.Fprintf(out, "  Document:         %s\n", valueOrUnset(cfg.Document))
	fmt.Fprintf(out, "  Index Path:       %s\n", cfg.IndexPath)
	fmt.Fprintf(out, "  Index Backend:    %s\n", cfg.IndexBackend)
	fmt.Fprintf(out, "  Collection:       %s\n", cfg.Collection)
	fmt.Fprintf(out, "  Chunk Size:       %d characters\n", cfg.ChunkSize)
	fmt.Fprintf(out, "  Chunk Overlap:    %d characters\n", cfg.ChunkOverlap)
	fmt.Fprintf(out, "  Top K:            %d\n", cfg.TopK)
	if cfg.ContextBudget < 0 {
		fmt.Fprintln(out, "  Context Budget:   unlimited")
	} else {
		fmt.Fprintf(out, "  Context Budget:   %d characters\n", cfg.ContextBudget)
	}
	fmt.Fprintf(out, "  Embed Batch Size: %d\n", cfg.EmbedBatchSize)
	fmt.Fprintf(out, "  Embedding:        %s on %s\n", cfg.EmbeddingModel, cfg.EmbeddingHost)
	fmt.Fprintf(out, "  Generation:       %s on %s\n", cfg.GenerationModel, cfg.GenerationHost)
	fmt.Fprintf(out, "  Streaming:        %v\n", cfg.StreamEnabled())
	fmt.Fprintf(out, "  Timeout:          %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Log File:         %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:            %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Metrics:          %v\n", cfg.Metrics)
	fmt.Fprintln(out, "  Hosts:")
	for _, host := range cfg.Hosts {
		fmt.Fprintf(out, "    - %s (%s) %s%s\n", host.Name, host.Type, host.URL, maskedKey(host.APIKey))
	}
}

// Redacted returns a copy of the configuration with API keys masked.
func (c Config) Redacted() Config {
	out := c
	out.Hosts = make([]Host, len(c.Hosts))
	for i, host := range c.Hosts {
		if host.APIKey != "" {
			host.APIKey = "****"
		}
		out.Hosts[i] = host
	}
	return out
}

func valueOrUnset(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(unset)"
	}
	return v
}

func maskedKey(key string) string {
	if key == "" {
		return ""
	}
	return " apiKey=****"
}

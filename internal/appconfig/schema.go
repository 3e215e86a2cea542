package appconfig

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema describes the JSON configuration file. Unknown keys are rejected.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "document":        {"type": "string"},
    "indexPath":       {"type": "string"},
    "indexBackend":    {"type": "string", "enum": ["chromem", "jsonl"]},
    "collection":      {"type": "string"},
    "chunkSize":       {"type": "integer", "minimum": 1},
    "chunkOverlap":    {"type": "integer", "minimum": 0},
    "topK":            {"type": "integer", "minimum": 1},
    "contextBudget":   {"type": "integer", "minimum": -1},
    "embedBatchSize":  {"type": "integer", "minimum": 1},
    "embeddingHost":   {"type": "string"},
    "embeddingModel":  {"type": "string"},
    "generationHost":  {"type": "string"},
    "generationModel": {"type": "string"},
    "stream":          {"type": "boolean"},
    "timeout":         {"type": "integer", "minimum": 0},
    "logFile":         {"type": "string"},
    "debug":           {"type": "boolean"},
    "metrics":         {"type": "boolean"},
    "metricsFile":     {"type": "string"},
    "hosts": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name"],
        "properties": {
          "name":   {"type": "string", "minLength": 1},
          "url":    {"type": "string"},
          "type":   {"type": "string", "enum": ["", "ollama", "openai"]},
          "apiKey": {"type": "string"},
          "parameters": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "temperature":    {"type": "number"},
              "top_k":          {"type": "integer"},
              "top_p":          {"type": "number"},
              "repeat_penalty": {"type": "number"},
              "num_ctx":        {"type": "integer"},
              "seed":           {"type": "integer"}
            }
          }
        }
      }
    }
  }
}`

// ValidateSchema checks a raw JSON configuration document against the config schema.
func ValidateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

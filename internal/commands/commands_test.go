package docqa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/document"
	"github.com/mwiater/docqa/internal/logging"
	"github.com/mwiater/docqa/internal/metrics"
	"github.com/mwiater/docqa/internal/providers"
)

var vocabulary = []string{"alice", "bob", "paris", "rome", "lives", "live", "where", "does", "in"}

// fakeProvider embeds by word counts over a fixed vocabulary and answers with a fixed text.
type fakeProvider struct {
	model      string
	answer     string
	missing    bool
	embedCalls int
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(vocabulary))
		for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) }) {
			for j, v := range vocabulary {
				if w == v {
					vec[j]++
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeProvider) Generate(_ context.Context, req providers.GenerateRequest, cb providers.StreamCallbacks) (providers.GenerateResult, error) {
	if cb.OnChunk != nil {
		if err := cb.OnChunk(f.answer); err != nil {
			return providers.GenerateResult{}, err
		}
	}
	return providers.GenerateResult{Model: f.model, Text: f.answer}, nil
}

func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) EnsureModelReady(_ context.Context, model string) error {
	if f.missing {
		return fmt.Errorf("%w: %s", providers.ErrModelNotFound, model)
	}
	return nil
}

type fixture struct {
	dir       string
	config    string
	indexDir  string
	logFile   string
	embedder  *fakeProvider
	generator *fakeProvider
}

func newFixture(t *testing.T, overrides map[string]any) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		config:    filepath.Join(dir, "config.json"),
		indexDir:  filepath.Join(dir, "index"),
		logFile:   filepath.Join(dir, "docqa.log"),
		embedder:  &fakeProvider{model: "fake-embed"},
		generator: &fakeProvider{model: "fake-gen", answer: "Alice lives in Paris."},
	}
	doc := filepath.Join(dir, "alice.txt")
	if err := os.WriteFile(doc, []byte("Alice lives in Paris. Bob lives in Rome."), 0o644); err != nil {
		t.Fatalf("write document: %v", err)
	}

	cfg := map[string]any{
		"document":     doc,
		"indexPath":    f.indexDir,
		"indexBackend": "jsonl",
		"chunkSize":    20,
		"chunkOverlap": 5,
		"hosts": []map[string]any{
			{"name": "local", "url": "http://localhost:11434", "type": "ollama"},
			{"name": "cloud", "url": "https://api.openai.com/v1", "type": "openai", "apiKey": "sk-secret-value"},
		},
	}
	for k, v := range overrides {
		cfg[k] = v
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(f.config, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	origEmbedder, origGenerator, origStdin := newEmbedder, newGenerator, stdin
	newEmbedder = func(*appconfig.Config, *metrics.Aggregator) (providers.Embedder, error) { return f.embedder, nil }
	newGenerator = func(*appconfig.Config, *metrics.Aggregator) (providers.Generator, error) { return f.generator, nil }
	t.Cleanup(func() {
		newEmbedder, newGenerator, stdin = origEmbedder, origGenerator, origStdin
		_ = logging.Close()
	})
	return f
}

func resetFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// run executes the root command with the fixture's config and log file.
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	b := new(bytes.Buffer)
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(append(args, "--config", f.config, "--logFile", f.logFile))
	err := rootCmd.Execute()
	return b.String(), err
}

// TestRootCmd verifies running the root command with an invalid subcommand reports an error.
func TestRootCmd(t *testing.T) {
	resetFlags(rootCmd)
	b := new(bytes.Buffer)
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)

	rootCmd.SetArgs([]string{"nonexistent"})
	_, err := rootCmd.ExecuteC()

	if err == nil {
		t.Error("Expected an error for a nonexistent command, but got none")
	}

	expected := "unknown command \"nonexistent\" for \"docqa\""
	if !strings.Contains(b.String(), expected) {
		t.Errorf("Expected output to contain '%s', but got '%s'", expected, b.String())
	}
}

func TestIndexBuildsThenReuses(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.run(t, "index")
	if err != nil {
		t.Fatalf("index: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 chunks (built: no index found)") {
		t.Fatalf("expected a fresh build, got:\n%s", out)
	}
	if f.embedder.embedCalls == 0 {
		t.Fatal("expected chunks to be embedded")
	}

	f.embedder.embedCalls = 0
	out, err = f.run(t, "index")
	if err != nil {
		t.Fatalf("second index: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3 chunks (reused)") {
		t.Fatalf("expected the index to be reused, got:\n%s", out)
	}
	if f.embedder.embedCalls != 0 {
		t.Fatalf("expected no embedding on reuse, got %d calls", f.embedder.embedCalls)
	}

	out, err = f.run(t, "index", "--rebuild")
	if err != nil {
		t.Fatalf("rebuild: %v\n%s", err, out)
	}
	if !strings.Contains(out, "built: rebuild requested") {
		t.Fatalf("expected a forced rebuild, got:\n%s", out)
	}
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.run(t, "ask", "Where", "does", "Alice", "live?")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	if strings.Count(out, "Alice lives in Paris.") != 1 {
		t.Fatalf("expected the answer once, got:\n%s", out)
	}
	if !strings.Contains(out, "Sources: page 1") {
		t.Fatalf("expected sources, got:\n%s", out)
	}
}

func TestAskWithoutStreaming(t *testing.T) {
	f := newFixture(t, map[string]any{"stream": false})

	out, err := f.run(t, "ask", "Where does Alice live?")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	if strings.Count(out, "Alice lives in Paris.") != 1 {
		t.Fatalf("expected the answer once, got:\n%s", out)
	}
}

func TestChatSession(t *testing.T) {
	f := newFixture(t, nil)
	stdin = strings.NewReader("Where does Alice live?\n  EXIT  \nnot asked\n")

	out, err := f.run(t, "chat")
	if err != nil {
		t.Fatalf("chat: %v\n%s", err, out)
	}
	for _, want := range []string{"alice.txt (3 chunks, fake-gen)", "Alice lives in Paris.", "Sources: page 1", "Goodbye."} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestPreviewDoesNotGenerate(t *testing.T) {
	f := newFixture(t, nil)
	f.generator.missing = true

	out, err := f.run(t, "preview", "Where does Alice live?")
	if err != nil {
		t.Fatalf("preview: %v\n%s", err, out)
	}
	for _, want := range []string{"[RAG] chunk 1", "id=p1-c0", "Question: Where does Alice live?"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestMissingGenerationModelFailsBeforeIndexing(t *testing.T) {
	f := newFixture(t, nil)
	f.generator.missing = true

	_, err := f.run(t, "ask", "Where does Alice live?")
	if !errors.Is(err, providers.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if _, statErr := os.Stat(f.indexDir); !os.IsNotExist(statErr) {
		t.Fatalf("expected no index to be built, stat err=%v", statErr)
	}
}

func TestMissingDocument(t *testing.T) {
	f := newFixture(t, map[string]any{"document": "does-not-exist.pdf"})

	_, err := f.run(t, "index")
	if !errors.Is(err, document.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestConfigSchemaRejectsUnknownKeys(t *testing.T) {
	f := newFixture(t, map[string]any{"pipelineMode": true})

	_, err := f.run(t, "show", "config")
	if err == nil || !strings.Contains(err.Error(), "pipelineMode") {
		t.Fatalf("expected a schema error naming the key, got %v", err)
	}
	if !strings.Contains(err.Error(), f.config) {
		t.Fatalf("expected the error to name the config file, got %v", err)
	}
}

func TestExplicitConfigMustExist(t *testing.T) {
	f := newFixture(t, nil)

	missing := filepath.Join(f.dir, "missing.json")
	resetFlags(rootCmd)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"show", "config", "--config", missing, "--logFile", f.logFile})
	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "failed to load config") {
		t.Fatalf("expected a missing explicit config to fail, got %v", err)
	}
}

func TestUnlimitedContextBudget(t *testing.T) {
	f := newFixture(t, map[string]any{"contextBudget": -1})

	out, err := f.run(t, "show", "config")
	if err != nil {
		t.Fatalf("show config: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Context Budget:   unlimited") {
		t.Fatalf("expected an unlimited budget in output:\n%s", out)
	}
	if cfg := GetConfig(); cfg == nil || cfg.ContextBudget != -1 {
		t.Fatalf("expected contextBudget -1 to survive defaults, got %+v", cfg)
	}
}

func TestShowConfigMergesFlagsAndEnv(t *testing.T) {
	f := newFixture(t, map[string]any{"topK": 3})
	t.Setenv("DOCQA_CONTEXTBUDGET", "777")

	out, err := f.run(t, "show", "config", "--chunkSize", "64", "--chunkOverlap", "8")
	if err != nil {
		t.Fatalf("show config: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Config file: " + f.config,
		"Top K:            3",
		"Chunk Size:       64 characters",
		"Chunk Overlap:    8 characters",
		"Context Budget:   777 characters",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sk-secret-value") {
		t.Fatalf("expected API key to be masked:\n%s", out)
	}

	cfg := GetConfig()
	if cfg == nil || cfg.ChunkSize != 64 || cfg.TopK != 3 || !cfg.StreamEnabled() {
		t.Fatalf("unexpected merged config: %+v", cfg)
	}
}

func TestShowConfigDump(t *testing.T) {
	f := newFixture(t, nil)

	out, err := f.run(t, "show", "config", "--dump")
	if err != nil {
		t.Fatalf("show config --dump: %v\n%s", err, out)
	}
	if !strings.Contains(out, "IndexBackend") || strings.Contains(out, "sk-secret-value") {
		t.Fatalf("unexpected dump output:\n%s", out)
	}
}

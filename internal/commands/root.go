// internal/commands/root.go
package docqa

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/docqa/internal/appconfig"
	"github.com/mwiater/docqa/internal/logging"
)

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"

	initLogging = logging.Init
)

var (
	boolKeys   = []string{"debug", "metrics", "stream"}
	intKeys    = []string{"chunkSize", "chunkOverlap", "topK", "contextBudget", "embedBatchSize", "timeout"}
	stringKeys = []string{"document", "indexPath", "indexBackend", "collection", "embeddingHost", "embeddingModel",
		"generationHost", "generationModel", "logFile", "metricsFile"}
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "docqa",
	Short:        "docqa answers questions about a single document using retrieval-augmented generation",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureConfigLoaded(cmd); err != nil {
			return err
		}

		// Flags the user did not set take the merged config value so flags and viper agree.
		for _, name := range boolKeys {
			if f := cmd.Flags().Lookup(name); f != nil && !f.Changed {
				_ = f.Value.Set(strconv.FormatBool(viper.GetBool(name)))
			}
		}

		var cfg appconfig.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.ApplyDefaults()
		cfg.ConfigPath = viper.ConfigFileUsed()
		currentConfig = &cfg

		if err := initLogging(cfg.LogFilePath(), cfg.Debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.LogEvent("docqa %s starting: %s", appVersion, cmd.CommandPath())
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	err := rootCmd.Execute()
	_ = logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	viper.SetEnvPrefix("DOCQA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("stream", true)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")

	flags.Bool("debug", false, "enable debug logging (also logs to stderr)")
	flags.Bool("metrics", false, "collect provider metrics and print a summary on exit")
	flags.Bool("stream", true, "print answers while they are generated")

	flags.StringP("document", "d", "", "path to the PDF or text document to answer questions about")
	flags.String("indexPath", "", "directory the vector index is persisted to")
	flags.String("indexBackend", "", "index storage backend: chromem or jsonl")
	flags.String("collection", "", "collection name inside the index")
	flags.String("embeddingHost", "", "name of the configured host used for embeddings")
	flags.String("embeddingModel", "", "embedding model name")
	flags.String("generationHost", "", "name of the configured host used for answers")
	flags.String("generationModel", "", "generation model name")
	flags.String("logFile", "", "path to the log file")
	flags.String("metricsFile", "", "persist metrics to this JSON file")

	flags.Int("chunkSize", 0, "maximum chunk length in characters")
	flags.Int("chunkOverlap", 0, "characters shared by consecutive chunks")
	flags.Int("topK", 0, "number of chunks retrieved per question")
	flags.Int("contextBudget", 0, "maximum prompt length in characters (-1 for unlimited)")
	flags.Int("embedBatchSize", 0, "chunks per embedding request")
	flags.Int("timeout", 0, "provider request timeout in seconds")

	for _, keys := range [][]string{boolKeys, intKeys, stringKeys} {
		for _, name := range keys {
			_ = viper.BindPFlag(name, flags.Lookup(name))
		}
	}
}

// ensureConfigLoaded validates and reads the config file. A missing default config file is
// not an error: flags, environment and defaults still apply.
func ensureConfigLoaded(cmd *cobra.Command) error {
	if strings.TrimSpace(cfgFile) == "" {
		return nil
	}
	if _, err := os.Stat(cfgFile); err != nil {
		if errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
			return nil
		}
		return fmt.Errorf("failed to load config: %w", err)
	}
	// JSON files go through the schema and a typed decode before viper merges them.
	if strings.EqualFold(filepath.Ext(cfgFile), ".json") {
		if _, err := appconfig.Load(cfgFile); err != nil {
			return err
		}
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

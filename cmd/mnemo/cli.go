package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dotsetgreg/mnemo/pkg/buffer"
	"github.com/dotsetgreg/mnemo/pkg/config"
	"github.com/dotsetgreg/mnemo/pkg/embedding"
	"github.com/dotsetgreg/mnemo/pkg/engine"
	"github.com/dotsetgreg/mnemo/pkg/memory"
	"github.com/dotsetgreg/mnemo/pkg/vector"
	"github.com/dotsetgreg/mnemo/pkg/vector/chromem"
)

var (
	configPath   string
	snapshotPath string
	formatFlag   string
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "mnemo",
		Short: "Session working memory with long-term semantic recall",
		Long: strings.TrimSpace(`mnemo is a memory engine for agent workloads.

It keeps per-session working memory (bounded buffers, runtime state,
TTL expiry), promotes important items into a vector-indexed long-term
store, and answers semantic recall queries against it.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println("mnemo " + formatVersion())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "~/.mnemo/config.json", "Config file path")
	root.PersistentFlags().StringVar(&snapshotPath, "data", "", "Long-term memory snapshot file (default: ~/.mnemo/longterm.jsonl)")
	root.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")

	root.AddCommand(newInitCommand())
	root.AddCommand(newAddCommand())
	root.AddCommand(newItemsCommand())
	root.AddCommand(newContextCommand())
	root.AddCommand(newStateCommand())
	root.AddCommand(newSummarizeCommand())
	root.AddCommand(newConsolidateCommand())
	root.AddCommand(newRememberCommand())
	root.AddCommand(newRecallCommand())
	root.AddCommand(newForgetCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newExportCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newClearCommand())

	return root
}

// bufferConfigs maps the config's buffer names onto strategy settings.
// Unknown names are ignored rather than failing startup.
func bufferConfigs(cfg *config.Config) map[buffer.Type]buffer.Config {
	out := make(map[buffer.Type]buffer.Config, len(cfg.WorkingMemory.Buffers))
	for _, name := range cfg.WorkingMemory.Buffers {
		t := buffer.Type(name)
		if !t.Valid() {
			fmt.Fprintf(os.Stderr, "warning: unknown buffer strategy %q ignored\n", name)
			continue
		}
		out[t] = buffer.Config{MaxSize: cfg.WorkingMemory.BufferMaxSize}
	}
	return out
}

func resolveSnapshotPath() string {
	if snapshotPath != "" {
		return snapshotPath
	}
	if env := os.Getenv("MNEMO_DATA"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo", "longterm.jsonl")
}

// openEngine assembles an engine from the config file and loads the
// long-term snapshot if one exists. The caller owns the returned close.
func openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	var embedder embedding.Provider
	switch cfg.LongTerm.Embedder {
	case config.EmbedderCharGram:
		embedder = embedding.NewCharGramProvider(cfg.LongTerm.Dimensions)
	default:
		embedder = embedding.NewHashProvider(cfg.LongTerm.Dimensions)
	}
	embedder = embedding.NewCachingProvider(embedder, cfg.LongTerm.EmbeddingCacheSize, 0)

	var store vector.Store
	if cfg.LongTerm.Index == config.IndexChromem {
		store, err = chromem.New(cfg.LongTerm.Dimensions, cfg.LongTerm.Capacity)
		if err != nil {
			return nil, nil, fmt.Errorf("open chromem store: %w", err)
		}
	}

	var memStorage memory.Storage
	if cfg.WorkingMemory.Storage == config.StorageSQLite {
		memStorage, err = memory.NewSQLiteStorage(cfg.ResolvedSQLitePath())
		if err != nil {
			return nil, nil, fmt.Errorf("open working-memory db: %w", err)
		}
	}

	engCfg := engine.Config{
		Memory: memory.Config{
			MaxItems:             cfg.WorkingMemory.MaxItems,
			TTL:                  cfg.TTL(),
			CompressionThreshold: cfg.WorkingMemory.CompressionThreshold,
			SweepInterval:        cfg.SweepInterval(),
			Buffers:              bufferConfigs(cfg),
		},
		Consolidation: memory.ConsolidatorConfig{
			ImportanceFloor:  cfg.Consolidation.ImportanceFloor,
			MinItems:         cfg.Consolidation.MinItems,
			MaxSummaryLength: cfg.Consolidation.MaxSummaryLength,
		},
		Index: vector.IndexConfig{
			Dimensions: cfg.LongTerm.Dimensions,
			Capacity:   cfg.LongTerm.Capacity,
		},
		RetrievalCacheSize: cfg.LongTerm.RetrievalCacheSize,
		RetrievalCacheTTL:  cfg.RetrievalCacheTTL(),
	}

	opts := []engine.Option{engine.WithEmbedder(embedder), engine.WithLogger(logger)}
	if store != nil {
		opts = append(opts, engine.WithStore(store))
	}
	if memStorage != nil {
		opts = append(opts, engine.WithMemoryStorage(memStorage))
	}

	eng, err := engine.New(engCfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	if err := loadSnapshot(cmd, eng); err != nil {
		_ = eng.Close()
		return nil, nil, err
	}
	closer := func() {
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: close engine: %v\n", err)
		}
	}
	return eng, closer, nil
}

func loadSnapshot(cmd *cobra.Command, eng *engine.Engine) error {
	f, err := os.Open(resolveSnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	if _, err := eng.Import(cmd.Context(), f); err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// saveSnapshot persists long-term memory after a mutating command.
func saveSnapshot(cmd *cobra.Command, eng *engine.Engine) error {
	path := resolveSnapshotPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := eng.Export(cmd.Context(), f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

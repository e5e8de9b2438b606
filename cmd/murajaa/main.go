// murajaa is a personal Modern Standard Arabic review engine: a spaced
// repetition scheduler, a sentence selector, and a background material
// pipeline behind one HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"murajaa/internal/arabic"
	"murajaa/internal/config"
	"murajaa/internal/importer"
	"murajaa/internal/llm"
	"murajaa/internal/pipeline"
	"murajaa/internal/review"
	"murajaa/internal/selector"
	"murajaa/internal/server"
	"murajaa/internal/srs"
	"murajaa/internal/store"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "murajaa",
	Short: "murajaa - personal Arabic vocabulary review engine",
	Long: `murajaa keeps a personal Modern Standard Arabic vocabulary under
spaced repetition: new words pass through a short Leitner phase, graduate
into an FSRS scheduler, and are reviewed inside generated sentences whose
material is kept stocked by a background LLM pipeline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the background material pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		params := schedulerParams()
		sel := selector.New(st, logger)
		disp := review.NewDispatcher(st, params, logger)
		srv := server.New(st, sel, disp, cfg, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(gctx) })

		if cfg.Pipeline.Enabled {
			chain := buildChain()
			if chain == nil {
				logger.Warn("material pipeline disabled: no LLM provider has an API key")
			} else {
				pl := pipeline.New(st, chain, sel, pipelineConfig(), logger)
				g.Go(func() error { return runPipelineLoop(gctx, pl) })
			}
		}

		err = g.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

var importCmd = &cobra.Command{
	Use:   "import [dir]",
	Short: "Import dictionary exports (roots.jsonl, lemmas.jsonl, function_words.yaml)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "data/import"
		if len(args) == 1 {
			dir = args[0]
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := importer.New(st, logger).Run(cmd.Context(), dir)
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("%-15s inserted=%-5d skipped=%-5d errors=%-3d (%s)\n",
				r.Phase, r.Inserted, r.Skipped, len(r.Errors), r.Duration.Round(time.Millisecond))
			for _, e := range r.Errors {
				fmt.Printf("  ! %s\n", e)
			}
		}
		return nil
	},
}

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run one material-pipeline pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		chain := buildChain()
		if chain == nil {
			return fmt.Errorf("no LLM provider has an API key configured")
		}
		sel := selector.New(st, logger)
		pl := pipeline.New(st, chain, sel, pipelineConfig(), logger)

		stats, err := pl.Run(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("active=%d retired=%d gaps=%d accepted=%d rejected=%d\n",
			stats.ActiveBefore, stats.Retired, stats.GapLemmas, stats.Accepted, stats.Rejected)
		return nil
	},
}

func openStore() (*store.Store, error) {
	fw := arabic.DefaultFunctionWords()
	if path := cfg.Database.FunctionWordsPath; path != "" {
		loaded, err := arabic.LoadFunctionWords(path)
		if err != nil {
			return nil, err
		}
		fw = loaded
	}
	return store.Open(cfg.Database.Path, fw)
}

func schedulerParams() srs.Params {
	params := srs.DefaultParams()
	if cfg.Scheduler.TargetRetention > 0 {
		params.TargetRetention = cfg.Scheduler.TargetRetention
	}
	if cfg.Scheduler.KnownStabilityDays > 0 {
		params.KnownStabilityDays = cfg.Scheduler.KnownStabilityDays
	}
	return params
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		MinSentences:         cfg.Pipeline.MinSentences,
		PipelineCap:          cfg.Pipeline.PipelineCap,
		MinShown:             cfg.Pipeline.MinShown,
		Workers:              cfg.Pipeline.Workers,
		MaxRetries:           cfg.Pipeline.MaxRetries,
		CandidatesPerRequest: cfg.Pipeline.CandidatesPer,
	}
}

// buildChain assembles the provider fallback chain from the configured
// order, skipping providers without keys. Returns nil when none remain.
func buildChain() llm.Client {
	timeout := cfg.GetLLMTimeout()
	var clients []llm.Client
	for _, name := range cfg.LLM.Providers {
		key := cfg.LLM.ConfiguredKey(name)
		if key == "" {
			continue
		}
		switch name {
		case "anthropic":
			c := llm.DefaultAnthropicConfig(key)
			c.Model = cfg.LLM.AnthropicModel
			c.Timeout = timeout
			clients = append(clients, llm.NewAnthropicClient(c))
		case "openai":
			c := llm.DefaultOpenAIConfig(key)
			c.Model = cfg.LLM.OpenAIModel
			c.Timeout = timeout
			clients = append(clients, llm.NewOpenAIClient(c))
		case "gemini":
			clients = append(clients, llm.NewGeminiClient(llm.GeminiConfig{
				APIKey:  key,
				Model:   cfg.LLM.GeminiModel,
				Timeout: timeout,
			}))
		}
	}
	if len(clients) == 0 {
		return nil
	}
	return llm.NewChain(logger, clients...)
}

// runPipelineLoop runs one pass immediately, then on every tick until the
// context ends. A failed pass is logged and the loop keeps going.
func runPipelineLoop(ctx context.Context, pl *pipeline.Pipeline) error {
	interval := cfg.GetPipelineInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := pl.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("pipeline pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	level := zapcore.InfoLevel
	if err := level.Set(lc.Level); err != nil && lc.Level != "" {
		return nil, fmt.Errorf("invalid log level %q", lc.Level)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if lc.File != "" {
		zc.OutputPaths = []string{lc.File}
	}
	return zc.Build()
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "murajaa.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(pipelineCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the co-investigator binary entry point.
// Co-investigator is a conversational biomedical research assistant:
// it plans literature research, executes one retrieval step per
// confirmed turn, and pauses on durable decision checkpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/shivam-kaushik/co-investigator/llm/providers"

	"github.com/shivam-kaushik/co-investigator/assistant"
	"github.com/shivam-kaushik/co-investigator/checkpoint"
	"github.com/shivam-kaushik/co-investigator/config"
	"github.com/shivam-kaushik/co-investigator/executor"
	"github.com/shivam-kaushik/co-investigator/httpapi"
	"github.com/shivam-kaushik/co-investigator/llm"
	"github.com/shivam-kaushik/co-investigator/model"
	"github.com/shivam-kaushik/co-investigator/planner"
	"github.com/shivam-kaushik/co-investigator/report"
	"github.com/shivam-kaushik/co-investigator/retriever"
	"github.com/shivam-kaushik/co-investigator/router"
	"github.com/shivam-kaushik/co-investigator/session"
	"github.com/shivam-kaushik/co-investigator/sources"
	"github.com/shivam-kaushik/co-investigator/sources/catalog"
	"github.com/shivam-kaushik/co-investigator/sources/webfetch"
	"github.com/shivam-kaushik/co-investigator/validator"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "co-investigator"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Conversational biomedical research assistant",
		Long: `Co-investigator plans literature research over OpenAlex, PubMed,
bioRxiv, ORKG, ClinGen, and local corpora, executing one retrieval
step per confirmed turn.

Sessions and decision checkpoints survive restarts in NATS JetStream;
every consequential decision pauses on a durable checkpoint until the
researcher picks an option.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Serve command (same as running the root command)
	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the research assistant server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel)
		},
	})

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel string) error {
	printBanner()

	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Connect to NATS
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	// Durable stores
	sessions, err := session.NewNATSStore(signalCtx, js)
	if err != nil {
		return fmt.Errorf("create session store: %w", err)
	}
	cpStore, err := checkpoint.NewNATSStore(signalCtx, js)
	if err != nil {
		return fmt.Errorf("create checkpoint store: %w", err)
	}

	// Model registry and LLM client
	registry, err := loadRegistry(cfg)
	if err != nil {
		return fmt.Errorf("load model registry: %w", err)
	}
	client := llm.NewClient(registry, llm.WithLogger(logger))

	// Source clients
	runner := buildRunner(signalCtx, cfg, logger)

	manager := checkpoint.NewManager(cpStore, sessions,
		checkpoint.NewOracleOptionGenerator(client, logger), logger)

	a := assistant.New(assistant.Deps{
		Sessions:    sessions,
		Router:      router.New(client, cfg.LLM.RouterThreshold, logger),
		Planner:     planner.New(client, runner.Tools(), logger),
		Executor: executor.New(runner, executor.Config{
			ConfirmEachStep: cfg.ConfirmEachStep(),
			HaltOnFailure:   cfg.HaltOnFailure(),
			TaskTimeout:     cfg.Executor.TaskTimeout,
		}, logger),
		Checkpoints: manager,
		Retriever:   retriever.New(client, logger),
		Validator:   validator.New(client, logger),
		Reports:     report.NewGenerator(client, logger),
		Sink:        report.NewSink(cfg.Report.OutputDir),
		Logger:      logger,
	})

	mux := http.NewServeMux()
	httpapi.NewServer(a, manager, cpStore, logger).RegisterHTTPHandlers("/v1", mux)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Co-investigator ready",
			"version", Version,
			"addr", cfg.Server.Addr,
			"nats_url", cfg.NATS.URL,
			"tools", strings.Join(runner.Tools(), ","))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	slog.Info("Shutdown complete")
	return nil
}

// loadConfig layers user and project config, then an explicit file if
// one was given on the command line.
func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.NewLoader(logger).Load()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadRegistry(cfg *config.Config) (*model.Registry, error) {
	if cfg.LLM.RegistryPath == "" {
		return model.NewDefaultRegistry(), nil
	}
	return model.LoadFromFile(cfg.LLM.RegistryPath)
}

// buildRunner registers every configured literature source on a task
// runner. The local catalog joins only when a corpus root is set.
func buildRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) *sources.Runner {
	var enricher *webfetch.Enricher
	if cfg.EnrichTopEvidence() {
		enricher = webfetch.NewEnricher(webfetch.NewFetcher(cfg.Sources.RequestTimeout, 0))
	}

	runner := sources.NewRunner(enricher, cfg.Sources.ResultLimit, logger)
	timeout := cfg.Sources.RequestTimeout
	runner.Register(sources.NewOpenAlex("", timeout))
	runner.Register(sources.NewPubMed("", cfg.Sources.PubMedAPIKey, timeout))
	runner.Register(sources.NewBioRxiv("", timeout))
	runner.Register(sources.NewORKG("", timeout))
	runner.Register(sources.NewClinGen("", timeout))

	if cfg.Sources.Catalog.Root != "" {
		cat := catalog.New(cfg.Sources.Catalog.Root, cfg.Sources.Catalog.Patterns, logger)
		if err := cat.Refresh(); err != nil {
			logger.Warn("Initial catalog scan failed", "root", cfg.Sources.Catalog.Root, "error", err)
		}
		runner.Register(cat)

		if cfg.CatalogWatch() {
			go func() {
				if err := cat.Watch(ctx); err != nil {
					logger.Warn("Catalog watcher stopped", "error", err)
				}
			}()
		}
	}

	return runner
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║         Co-Investigator v" + Version + "                ║")
	fmt.Println("║   Biomedical Research Assistant               ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ironsheep/image-gen-mcp/internal/config"
	"github.com/ironsheep/image-gen-mcp/internal/gemini"
	"github.com/ironsheep/image-gen-mcp/internal/logging"
	"github.com/ironsheep/image-gen-mcp/internal/metrics"
	"github.com/ironsheep/image-gen-mcp/internal/server"
	"github.com/ironsheep/image-gen-mcp/internal/storage"
	"go.uber.org/zap"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("image-gen-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	flags := flag.NewFlagSet("image-gen-mcp", flag.ExitOnError)
	transport := flags.String("transport", "", "stdio or http (overrides "+config.EnvTransport+")")
	addr := flags.String("addr", "", "listen address in http mode (overrides "+config.EnvHTTPAddr+")")
	configPath := flags.String("config", "", "YAML config file (overrides "+config.EnvConfigFile+")")
	_ = flags.Parse(os.Args[1:])

	if err := run(*configPath, *transport, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "image-gen-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, transport, addr string) error {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return err
	}
	if transport != "" {
		cfg.Transport = strings.ToLower(transport)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting image-gen-mcp",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", GitCommit),
		zap.String("transport", cfg.Transport),
		zap.String("save_dir", cfg.SaveDir),
		zap.Bool("auto_save", cfg.AutoSave),
		zap.Bool("api_key_set", cfg.APIKey != ""),
	)
	if cfg.APIKey == "" {
		logger.Warn("no API key configured; tool calls will fail until " + config.EnvAPIKey + " is set")
	}

	collector := newCollector(cfg.Transport)
	srv := server.New(
		gemini.NewClient(cfg, logger, gemini.WithMetrics(collector)),
		storage.NewResolver(cfg, logger),
		logger,
		server.WithVersion(Version),
		server.WithMetrics(collector),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-signalCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Transport == config.TransportHTTP {
		return srv.ListenAndServe(ctx, cfg.HTTPAddr)
	}

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, os.Stdin, os.Stdout) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// Stdin reads cannot be interrupted; in-flight calls see the cancelled context.
		return nil
	}
}

// newCollector returns a metrics collector only for transports that can serve
// it. A nil collector records nothing.
func newCollector(transport string) *metrics.Collector {
	if transport != config.TransportHTTP {
		return nil
	}
	return metrics.NewCollector()
}

func printHelp() {
	fmt.Println("image-gen-mcp - MCP server for Gemini image generation")
	fmt.Println()
	fmt.Println("Usage: image-gen-mcp [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v        Print version information")
	fmt.Println("  --help, -h           Print this help message")
	fmt.Println("  --transport MODE     stdio (default) or http")
	fmt.Println("  --addr ADDR          Listen address in http mode (default :8080)")
	fmt.Println("  --config FILE        YAML configuration file")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  " + config.EnvAPIKey + "=...            Gemini API key (required for tool calls)")
	fmt.Println("  " + config.EnvEndpoint + "=URL          Override the generateContent endpoint")
	fmt.Println("  " + config.EnvSaveDir + "=DIR        Directory for auto-saved images")
	fmt.Println("  " + config.EnvAutoSave + "=false     Only save when a path is requested")
	fmt.Println("  " + config.EnvTimeout + "=60s         Per-attempt provider timeout")
	fmt.Println("  " + config.EnvMaxRetries + "=3      Retries after the first attempt")
	fmt.Println("  " + config.EnvLogLevel + "=debug      Enable debug logging")
	fmt.Println()
	fmt.Println("A .env file in the working directory is read if present.")
	fmt.Println("In stdio mode the server communicates via MCP over stdin/stdout.")
	fmt.Println("In http mode Prometheus metrics are served at GET /metrics; stdio mode collects none.")
}

// Command voiden-pipeline sends one authored document through the request
// pipeline and prints the rendered response document as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/VoidenHQ/voiden-pipeline/internal/config"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/telemetry"
	"github.com/VoidenHQ/voiden-pipeline/internal/transport"
	"github.com/VoidenHQ/voiden-pipeline/internal/vault"
	"github.com/VoidenHQ/voiden-pipeline/pkg/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "voiden-pipeline:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config.yaml")
		docPath    = flag.String("doc", "", "path to the document JSON file (required)")
		envPath    = flag.String("env", "", "path to a KEY=value environment file")
		envName    = flag.String("env-name", "default", "name for the environment source")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *docPath == "" {
		return fmt.Errorf("-doc is required")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer("voiden-pipeline", logger)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer shutdown(context.Background())
	}

	env := vault.NewEnvironment()
	for _, f := range cfg.Environment.Files {
		if err := env.LoadFile(f.Name, f.Path); err != nil {
			return err
		}
	}
	if *envPath != "" {
		if err := env.LoadFile(*envName, *envPath); err != nil {
			return err
		}
		if err := env.Activate(*envName); err != nil {
			return err
		}
	} else if cfg.Environment.Active != "" {
		if err := env.Activate(cfg.Environment.Active); err != nil {
			return err
		}
	}
	if cfg.Environment.Watch && env.ActiveName() != "" {
		watcher, err := vault.WatchActive(env, logger)
		if err != nil {
			logger.Warn("environment watch disabled", slog.Any("error", err))
		} else {
			defer watcher.Close()
		}
	}

	process, err := vault.LoadProcessStore(cfg.Process.Path)
	if err != nil {
		return err
	}
	resolver := vault.NewResolver(env, process, logger)

	httpOpts := []transport.HTTPOption{
		transport.WithTimeout(cfg.Transport.TimeoutDuration()),
		transport.WithLogger(logger),
	}
	if cfg.Transport.DenyPrivateHosts {
		httpOpts = append(httpOpts, transport.WithSafeDialer())
	}

	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithResolver(resolver),
		pipeline.WithTransport("http", transport.NewHTTPTransport(httpOpts...)),
		pipeline.WithCancelGrace(cfg.Transport.CancelGraceDuration()),
	)

	doc, err := readDocument(*docPath)
	if err != nil {
		return err
	}

	result := p.Send(ctx, doc)
	if result.Err != nil {
		logger.Warn("execution ended with error", slog.Any("error", result.Err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.ResponseDocument)
}

func readDocument(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &doc, nil
}

// Package main is the entry point for the cartparse CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cartparse/internal/bedrock"
	"cartparse/internal/config"
	"cartparse/internal/pipeline"
	"cartparse/internal/telemetry"
)

const (
	exitError   = 1
	exitBlocked = 2
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	text := flag.String("text", "", "Grocery text to parse (defaults to arguments, then stdin)")
	query := flag.String("query", "", "Retrieve product catalog context for this query before parsing")
	health := flag.Bool("health", false, "Probe model connectivity and exit")
	listModels := flag.Bool("list-models", false, "List available foundation models and exit")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while processing")
	threshold := flag.Float64("threshold", 0, "Override the low-confidence threshold (0..1)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(exitError)
	}
	if *threshold > 0 && *threshold <= 1 {
		cfg.Extraction.UncertaintyThreshold = *threshold
	}

	setupLogging(cfg.Logging)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.Enabled {
		metrics = telemetry.NewMetrics(nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting cartparse",
		"model_id", cfg.Model.ModelID,
		"region", cfg.AWS.Region,
		"guardrail_configured", cfg.Guardrails.GuardrailID != "",
		"knowledge_base_configured", cfg.KnowledgeBase.KnowledgeBaseID != "",
	)

	client, err := bedrock.New(ctx, cfg, metrics)
	if err != nil {
		slog.Error("Failed to initialize Bedrock client", "error", err)
		os.Exit(exitError)
	}

	switch {
	case *health:
		os.Exit(runHealthCheck(ctx, client))
	case *listModels:
		os.Exit(runListModels(ctx, client))
	}

	if *metricsAddr != "" && metrics != nil {
		go serveMetrics(*metricsAddr)
	}

	input, err := resolveInput(*text, flag.Args(), os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reading input: %v\n", err)
		os.Exit(exitError)
	}
	if input == "" {
		fmt.Fprintln(os.Stderr, "no input text: pass -text, arguments, or pipe text on stdin")
		os.Exit(exitError)
	}

	svc := pipeline.NewService(client, cfg, metrics)

	var result *pipeline.Result
	if *query != "" {
		result, err = svc.ParseWithContext(ctx, input, *query)
	} else {
		result, err = svc.Parse(ctx, input)
	}
	if err != nil {
		slog.Error("Extraction failed", "error", err)
		os.Exit(exitError)
	}

	if err := writeJSON(os.Stdout, result); err != nil {
		slog.Error("Failed to encode result", "error", err)
		os.Exit(exitError)
	}
	if err := result.Err(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitBlocked)
	}
}

// loadConfig hard-fails on an unreadable explicit path but quietly
// falls back to defaults plus environment overrides otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadOrDefault(""), nil
}

func setupLogging(lc config.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Logs go to stderr; stdout carries the result JSON.
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(lc.Format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// resolveInput picks the grocery text: the -text flag wins, then
// positional arguments, then stdin when it is not a terminal.
func resolveInput(text string, args []string, stdin *os.File) (string, error) {
	if strings.TrimSpace(text) != "" {
		return strings.TrimSpace(text), nil
	}
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " ")), nil
	}

	info, err := stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func runHealthCheck(ctx context.Context, client *bedrock.Client) int {
	h := client.HealthCheck(ctx)
	if err := writeJSON(os.Stdout, h); err != nil {
		slog.Error("Failed to encode health status", "error", err)
		return exitError
	}
	if !h.Healthy {
		return exitError
	}
	return 0
}

func runListModels(ctx context.Context, client *bedrock.Client) int {
	models, err := client.ListModels(ctx)
	if err != nil {
		slog.Error("Failed to list models", "error", err)
		return exitError
	}
	if err := writeJSON(os.Stdout, models); err != nil {
		slog.Error("Failed to encode model list", "error", err)
		return exitError
	}
	return 0
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	slog.Info("Serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Metrics server error", "error", err)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

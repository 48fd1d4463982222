// Command hostline is the entry point for the hostline voice call server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/hostline-ai/hostline/internal/call"
	"github.com/hostline-ai/hostline/internal/config"
	"github.com/hostline-ai/hostline/internal/dialogue"
	"github.com/hostline-ai/hostline/internal/dialogue/history"
	"github.com/hostline-ai/hostline/internal/dialogue/llmbridge"
	"github.com/hostline-ai/hostline/internal/dialogue/retrieval"
	"github.com/hostline-ai/hostline/internal/health"
	"github.com/hostline-ai/hostline/internal/observe"
	"github.com/hostline-ai/hostline/internal/resilience"
	"github.com/hostline-ai/hostline/internal/server"
	"github.com/hostline-ai/hostline/pkg/provider/stt"
	sttspeechkit "github.com/hostline-ai/hostline/pkg/provider/stt/speechkit"
	"github.com/hostline-ai/hostline/pkg/provider/tts"
	ttsspeechkit "github.com/hostline-ai/hostline/pkg/provider/tts/speechkit"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "hostline: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "hostline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("hostline starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "hostline",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("telemetry init failed", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sttProv, err := buildSTT(cfg, reg)
	if err != nil {
		slog.Error("stt provider setup failed", "name", cfg.Providers.STT.Name, "err", err)
		return 1
	}
	ttsProv, err := buildTTS(cfg, reg)
	if err != nil {
		slog.Error("tts provider setup failed", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	llmBackend, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("llm backend setup failed", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}

	// ── Database (optional) ───────────────────────────────────────────────────
	var (
		pool      *pgxpool.Pool
		histStore *history.Store
		retriever *retrieval.Retriever
	)
	if cfg.Database.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			return 1
		}
		defer pool.Close()

		if cfg.Agent.PersistHistory {
			histStore = history.New(pool)
			if err := histStore.Migrate(ctx); err != nil {
				slog.Error("history schema migration failed", "err", err)
				return 1
			}
		}
		if cfg.Agent.UseRAG {
			embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
			if err != nil {
				slog.Error("embeddings provider setup failed", "name", cfg.Providers.Embeddings.Name, "err", err)
				return 1
			}
			retriever, err = retrieval.New(pool, embedder, retrieval.WithTopK(cfg.Agent.RAGTopK))
			if err != nil {
				slog.Error("retriever setup failed", "err", err)
				return 1
			}
			if err := retriever.Migrate(ctx); err != nil {
				slog.Error("knowledge base schema migration failed", "err", err)
				return 1
			}
		}
	}

	// ── Call registry ─────────────────────────────────────────────────────────
	regOpts := []call.RegistryOption{
		call.WithActiveGauge(activeGaugeRecorder(metrics)),
	}
	if cfg.Calls.EvictionGraceSeconds > 0 {
		regOpts = append(regOpts, call.WithEvictionGrace(time.Duration(cfg.Calls.EvictionGraceSeconds)*time.Second))
	}
	callRegistry := call.NewRegistry(regOpts...)

	// ── Bridge factory ────────────────────────────────────────────────────────
	bridgeFactory := newBridgeFactory(cfg, llmBackend, retriever, histStore, logger)

	// ── Health checks ─────────────────────────────────────────────────────────
	var checkers []health.Checker
	if pool != nil {
		checkers = append(checkers, health.Checker{Name: "database", Check: pool.Ping})
	}
	healthHandler := health.New(version, checkers...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(cfg, server.Deps{
		Registry: callRegistry,
		STT:      sttProv,
		TTS:      ttsProv,
		Bridge:   bridgeFactory,
		Health:   healthHandler,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		slog.Error("server setup failed", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
		return 0
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// hostline into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("speechkit", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttspeechkit.Option
		if entry.Model != "" {
			opts = append(opts, sttspeechkit.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, sttspeechkit.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttspeechkit.WithEndpoint(entry.BaseURL))
		}
		return sttspeechkit.New(entry.APIKey, entry.StringOption("folder_id"), opts...)
	})

	reg.RegisterTTS("speechkit", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsspeechkit.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsspeechkit.WithEndpoint(entry.BaseURL))
		}
		return ttsspeechkit.New(entry.APIKey, entry.StringOption("folder_id"), opts...)
	})

	// openai, anthropic and gemini share the key+URL option pattern; ollama
	// is a local server addressed via BaseURL only.
	for _, name := range []string{"openai", "anthropic", "gemini", "ollama"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (anyllmlib.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return llmbridge.NewBackend(name, opts...)
		})
	}

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (retrieval.Embedder, error) {
		var opts []retrieval.EmbedderOption
		if entry.BaseURL != "" {
			opts = append(opts, retrieval.WithBaseURL(entry.BaseURL))
		}
		return retrieval.NewOpenAIEmbedder(entry.APIKey, entry.Model, opts...)
	})
}

// buildSTT creates the transcription provider, wrapped in a failover chain
// when fallbacks are configured.
func buildSTT(cfg *config.Config, reg *config.Registry) (stt.Provider, error) {
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.STTFallbacks) == 0 {
		return primary, nil
	}
	chain := resilience.NewSTTChain(cfg.Providers.STT.Name, primary, resilience.BreakerConfig{})
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("stt fallback %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, p)
	}
	return chain, nil
}

// buildTTS creates the synthesis provider, wrapped in a failover chain when
// fallbacks are configured.
func buildTTS(cfg *config.Config, reg *config.Registry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, err
	}
	if len(cfg.Providers.TTSFallbacks) == 0 {
		return primary, nil
	}
	chain := resilience.NewTTSChain(cfg.Providers.TTS.Name, primary, resilience.BreakerConfig{})
	for _, entry := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("tts fallback %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, p)
	}
	return chain, nil
}

// newBridgeFactory builds a per-call dialogue bridge from the configured
// defaults, honouring the call's system prompt and RAG overrides.
func newBridgeFactory(cfg *config.Config, backend anyllmlib.Provider, retriever *retrieval.Retriever, histStore *history.Store, logger *slog.Logger) server.BridgeFactory {
	return func(opts call.StartOptions) (dialogue.Bridge, error) {
		bOpts := []llmbridge.Option{
			llmbridge.WithLogger(logger),
		}
		switch {
		case opts.SystemPrompt != "":
			bOpts = append(bOpts, llmbridge.WithSystemPrompt(opts.SystemPrompt))
		case cfg.Agent.SystemPrompt != "":
			bOpts = append(bOpts, llmbridge.WithSystemPrompt(cfg.Agent.SystemPrompt))
		default:
			bOpts = append(bOpts, llmbridge.WithPersona(cfg.Agent.Persona))
		}
		if cfg.Agent.Greeting != "" {
			bOpts = append(bOpts, llmbridge.WithGreeting(cfg.Agent.Greeting))
		}
		if cfg.Agent.Temperature > 0 {
			bOpts = append(bOpts, llmbridge.WithTemperature(cfg.Agent.Temperature))
		}
		if cfg.Agent.MaxTokens > 0 {
			bOpts = append(bOpts, llmbridge.WithMaxTokens(cfg.Agent.MaxTokens))
		}
		if cfg.Agent.MaxHistoryTurns > 0 {
			bOpts = append(bOpts, llmbridge.WithMaxTurns(cfg.Agent.MaxHistoryTurns))
		}
		if opts.UseRAG && retriever != nil {
			bOpts = append(bOpts, llmbridge.WithRetriever(retriever))
		}
		if histStore != nil {
			bOpts = append(bOpts, llmbridge.WithHistoryStore(histStore))
		}
		return llmbridge.New(backend, cfg.Providers.LLM.Model, bOpts...)
	}
}

// activeGaugeRecorder converts the registry's absolute call count into the
// deltas the OTel up-down counter expects.
func activeGaugeRecorder(metrics *observe.Metrics) func(int) {
	var (
		mu   sync.Mutex
		prev int
	)
	return func(active int) {
		mu.Lock()
		delta := active - prev
		prev = active
		mu.Unlock()
		metrics.ActiveCalls.Add(context.Background(), int64(delta))
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         hostline — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printFlag("Persona", cfg.Agent.Persona)
	printFlag("Voice", cfg.Agent.Voice)
	printFlag("RAG", onOff(cfg.Agent.UseRAG))
	printFlag("History", onOff(cfg.Agent.PersistHistory))
	if cfg.Server.ListenAddr != "" {
		printFlag("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printFlag(kind, value)
}

func printFlag(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

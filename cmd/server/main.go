package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slidecraft/orchestrator/internal/api"
	"github.com/slidecraft/orchestrator/internal/config"
	"github.com/slidecraft/orchestrator/internal/cvclient"
	"github.com/slidecraft/orchestrator/internal/engine"
	"github.com/slidecraft/orchestrator/internal/evidence"
	"github.com/slidecraft/orchestrator/internal/logger"
	"github.com/slidecraft/orchestrator/internal/quality"
	"github.com/slidecraft/orchestrator/internal/session"
	"github.com/slidecraft/orchestrator/internal/storage"
	"github.com/slidecraft/orchestrator/internal/telemetry"
	"github.com/slidecraft/orchestrator/internal/worker"
	"github.com/slidecraft/orchestrator/internal/workflowdef"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exit codes (§6): 0 clean shutdown, 1 fatal config error, 2 port in use,
// 3 evidence store unreachable on boot.
const (
	exitOK                  = 0
	exitConfigError         = 1
	exitPortInUse           = 2
	exitEvidenceUnreachable = 3
)

func main() {
	var (
		port      = flag.String("port", "", "server port (overrides PORT env)")
		workflow  = flag.String("workflow", "workflows/presentation.yaml", "path to the default workflow definition")
		jwtSecret = flag.String("trace-stream-secret", "", "HMAC secret gating GET /v1/workflow/{id}/trace/stream (overrides TRACE_STREAM_SECRET env)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(exitConfigError)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *jwtSecret == "" {
		*jwtSecret = os.Getenv("TRACE_STREAM_SECRET")
	}

	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("port", cfg.Port).Msg("starting presentation orchestrator")

	// An exporter-less provider still records span lifecycle (useful for
	// local development); operators wire a real exporter by registering
	// one here once a collector endpoint is available.
	tracerProvider := sdktrace.NewTracerProvider()
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tracerProvider)

	var stateStore *storage.StateStore
	if cfg.DatabaseDSN != "" {
		stateStore = storage.NewStateStore(cfg.DatabaseDSN)
	} else {
		log.Warn().Str("path", cfg.StateSQLitePath).Msg("DATABASE_DSN not set, falling back to a zero-config sqlite state store")
		sqliteStore, err := storage.NewSQLiteStateStore(cfg.StateSQLitePath)
		if err != nil {
			log.Error().Err(err).Msg("failed to open sqlite state store")
			os.Exit(exitConfigError)
		}
		stateStore = sqliteStore
	}
	defer stateStore.Close()

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bootCancel()
	if err := stateStore.InitSchema(bootCtx); err != nil {
		log.Error().Err(err).Msg("state store schema init failed")
		os.Exit(exitConfigError)
	}

	var evidenceStore *evidence.Store
	if cfg.EvidenceStoreURL != "" {
		evidenceStore = evidence.NewStore(cfg.EvidenceStoreURL, nil)
	} else {
		log.Warn().Str("path", cfg.EvidenceSQLitePath).Msg("EVIDENCE_STORE_URL not set, falling back to a zero-config sqlite evidence store")
		sqliteStore, err := evidence.NewSQLiteStore(cfg.EvidenceSQLitePath, nil)
		if err != nil {
			log.Error().Err(err).Msg("evidence store unreachable on boot")
			os.Exit(exitEvidenceUnreachable)
		}
		evidenceStore = sqliteStore
	}
	if err := evidenceStore.InitSchema(bootCtx); err != nil {
		log.Error().Err(err).Msg("evidence store unreachable on boot")
		os.Exit(exitEvidenceUnreachable)
	}
	defer evidenceStore.Close()

	transports := buildTransports(cfg, evidenceStore)
	breakerCfg := worker.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.CircuitRecoverySeconds) * time.Second,
	}
	workers := worker.NewClient(transports, breakerCfg, worker.DefaultRetryPolicy(), log)

	hub := api.NewHub(log)
	registry := api.NewTraceRegistry()
	eventLog := telemetry.NewLog()
	metrics := telemetry.NewMetrics(nil)
	sink := api.NewTraceSink(hub, telemetry.NewMultiSink(eventLog, metrics), registry)

	eng := engine.New(workers, sink, log)

	def, err := workflowdef.Load(*workflow, eng.MutationExists, eng.PredicateExists)
	if err != nil {
		log.Error().Err(err).Str("path", *workflow).Msg("failed to load workflow definition")
		os.Exit(exitConfigError)
	}
	log.Info().Str("workflow", def.Name).Str("version", def.Version).Msg("workflow definition loaded")

	sessions := session.NewManager(stateStore, session.BudgetDefaults{
		MaxTokens:    cfg.MaxTokensPerTrace,
		MaxWallClock: cfg.MaxWallClockPerTrace,
	})

	var auth api.Authenticator
	if *jwtSecret != "" {
		auth = api.NewJWTAuth(*jwtSecret)
		log.Info().Msg("trace stream authentication enabled")
	}

	srv := api.NewServer(def, eng, sessions, workers, evidenceStore, eventLog, hub, registry, auth, promhttp.Handler(), log)

	listener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		log.Error().Err(err).Str("port", cfg.Port).Msg("port already in use")
		os.Exit(exitPortInUse)
	}

	httpServer := &http.Server{
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", listener.Addr().String()).Msg("server listening")
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server failed")
			os.Exit(exitConfigError)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(exitConfigError)
	}

	log.Info().Msg("server exited gracefully")
	os.Exit(exitOK)
}

// buildTransports wires one worker.Transport per configured worker name:
// an HTTP transport for anything with an explicit WORKER_<NAME>_URL, an
// in-process OpenAI transport for the text-generation workers when an
// API key is configured, and the in-process evidence/quality adapters for
// the retrieval and quality-gate steps (§4.2 "transport is pluggable").
func buildTransports(cfg *config.Config, evidenceStore *evidence.Store) map[string]worker.Transport {
	transports := make(map[string]worker.Transport)

	if len(cfg.WorkerURLs) > 0 {
		httpTransport := worker.NewHTTPTransport(cfg.WorkerURLs)
		for name := range cfg.WorkerURLs {
			transports[name] = httpTransport
		}
	}

	if cfg.OpenAIAPIKey != "" {
		openaiTransport := worker.NewOpenAITransport(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		for _, name := range []string{"clarify", "outline", "research", "write-slide", "critique", "polish-notes", "design", "script"} {
			if _, exists := transports[name]; !exists {
				transports[name] = openaiTransport
			}
		}
	}

	if evidenceStore != nil {
		ragTransport := evidence.NewRAGTransport(evidenceStore)
		transports["rag-section"] = ragTransport
		transports["rag-presentation"] = ragTransport
	}

	cvClient := buildCVClient(cfg)
	gate := quality.NewGate(cvClient, quality.DefaultThresholds())
	transports["quality-gate"] = quality.NewGateTransport(gate)

	return transports
}

func buildCVClient(cfg *config.Config) cvclient.Client {
	if cfg.CVServiceURL == "" {
		return cvclient.NoOpClient{}
	}
	return cvclient.NewHTTPClient(cfg.CVServiceURL)
}

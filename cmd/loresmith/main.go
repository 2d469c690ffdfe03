// LoreSmith backend server: campaign authoring over an extracted knowledge
// graph, with per-user SSE notifications and asynchronous graph rebuilds.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/loresmith/loresmith/ent/file"
	"github.com/loresmith/loresmith/pkg/agent"
	"github.com/loresmith/loresmith/pkg/api"
	"github.com/loresmith/loresmith/pkg/config"
	"github.com/loresmith/loresmith/pkg/database"
	"github.com/loresmith/loresmith/pkg/extraction"
	"github.com/loresmith/loresmith/pkg/graph"
	"github.com/loresmith/loresmith/pkg/kv"
	"github.com/loresmith/loresmith/pkg/llm"
	"github.com/loresmith/loresmith/pkg/notifications"
	"github.com/loresmith/loresmith/pkg/rebuild"
	"github.com/loresmith/loresmith/pkg/services"
	"github.com/loresmith/loresmith/pkg/uploads"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func setupLogging() {
	level := slog.LevelInfo
	switch getEnv("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	setupLogging()
	gin.SetMode(getEnv("GIN_MODE", "release"))
	httpPort := getEnv("HTTP_PORT", "8080")
	podID := getEnv("POD_ID", "loresmith-0")

	slog.Info("Starting LoreSmith", "http_port", httpPort, "pod_id", podID)

	ctx := context.Background()

	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL, schema up to date")

	kvConfig, err := kv.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load redis config", "error", err)
		os.Exit(1)
	}
	store := kv.NewStore(kvConfig)
	if err := store.Ping(ctx); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()
	slog.Info("Connected to redis")

	// Services
	userSvc := services.NewUserService(dbClient.Client)
	campaignSvc := services.NewCampaignService(dbClient.Client)
	fileSvc := services.NewFileService(dbClient.Client)
	resourceSvc := services.NewResourceService(dbClient.Client)
	entitySvc := services.NewEntityService(dbClient.Client)
	shardSvc := services.NewShardService(dbClient.Client)
	communitySvc := services.NewCommunityService(dbClient.Client)
	changelogSvc := services.NewChangelogService(dbClient.Client, dbClient.DB())
	rebuildSvc := services.NewRebuildStatusService(dbClient.Client)
	assessmentSvc := services.NewAssessmentService(dbClient.Client)
	messageSvc := services.NewMessageService(dbClient.Client)
	telemetrySvc := services.NewTelemetryService(dbClient.Client)
	uploadMirror := services.NewUploadSessionService(dbClient.Client)
	slog.Info("Services initialized")

	// Notification hub
	hubManager := notifications.NewManager(store, cfg.Hub)
	publisher := notifications.NewPublisher(hubManager)

	// Upload-session actors, with the completion hook flipping the file
	// row and notifying the user.
	uploadStore := uploads.NewStore(store, 48*time.Hour)
	uploadMgr := uploads.NewManager(uploadStore,
		func(hookCtx context.Context, sess uploads.Session) {
			mirrorSession(hookCtx, uploadMirror, sess)
			if _, err := fileSvc.UpdateStatus(hookCtx, sess.OwnerID, sess.FileKey, file.StatusUploaded); err != nil {
				slog.Warn("Failed to flip file to uploaded",
					"file_key", sess.FileKey, "error", err)
			}
			publisher.PublishFileUploaded(sess.OwnerID, sess.FileKey, sess.Filename)
			publisher.PublishFileStatus(sess.OwnerID, sess.FileKey, string(file.StatusUploaded))
		},
		func(hookCtx context.Context, sess uploads.Session, reason string) {
			mirrorSession(hookCtx, uploadMirror, sess)
			if _, err := fileSvc.UpdateStatus(hookCtx, sess.OwnerID, sess.FileKey, file.StatusFailed); err != nil {
				slog.Warn("Failed to flip file to failed",
					"file_key", sess.FileKey, "error", err)
			}
			publisher.PublishFileUploadFailed(sess.OwnerID, sess.FileKey, reason)
		})
	defer uploadMgr.Shutdown()

	// LLM client: optional — summaries and routing degrade gracefully.
	var llmClient llm.Client
	anthropicClient, err := llm.NewAnthropicClient(cfg.LLM)
	switch {
	case err == nil:
		llmClient = anthropicClient
		slog.Info("LLM client ready", "model", cfg.LLM.Model)
	case errors.Is(err, llm.ErrNotConfigured):
		slog.Warn("No LLM API key; summaries and smart routing disabled")
	default:
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	// Rebuild orchestration
	recorder := rebuild.NewRecorder(changelogSvc, rebuildSvc,
		rebuild.NewImportanceReader(communitySvc), store, cfg.Rebuild)
	loader := graph.NewLoader(dbClient.Client, cfg.Graph)
	detector := graph.NewDetector(cfg.Graph)
	var summarizer *graph.Summarizer
	if llmClient != nil {
		summarizer = graph.NewSummarizer(dbClient.Client, llmClient, communitySvc, cfg.LLM)
	}
	orchestrator := rebuild.NewOrchestrator(dbClient.Client, loader, detector,
		communitySvc, changelogSvc, rebuildSvc, recorder, summarizer,
		publisher, telemetrySvc, cfg.Rebuild, cfg.Queue)
	overlayReader := rebuild.NewOverlayReader(changelogSvc)

	// Extraction pipeline
	searchClient := extraction.NewHTTPSearchClient(cfg.AISearch)
	projector := extraction.NewProjector(entitySvc)
	executor := extraction.NewExecutor(dbClient.Client, searchClient, shardSvc,
		projector, resourceSvc, recorder, publisher, cfg.Extraction, cfg.AISearch)
	extractionQueue := extraction.NewQueue(dbClient.Client)
	extractionPool := extraction.NewWorkerPool(podID, dbClient.Client, cfg.Queue, cfg.Extraction, executor)

	// Agents
	registry, err := agent.BuildRegistry(agent.ToolsetDeps{
		Campaigns: campaignSvc,
		Files:     fileSvc,
		Resources: resourceSvc,
		Entities:  entitySvc,
		Rebuilds:  rebuildSvc,
		Overlay:   overlayReader,
		Publisher: publisher,
	})
	if err != nil {
		slog.Error("Failed to build agent registry", "error", err)
		os.Exit(1)
	}
	router := agent.NewRouter(llmClient, registry)
	runtime := agent.NewRuntime(registry)

	// Background workers
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	extractionPool.Start(workerCtx)
	orchestrator.Start(workerCtx)

	// HTTP
	engine := gin.New()
	engine.Use(gin.Recovery())
	server := api.NewServer(api.Deps{
		Config:      cfg,
		DB:          dbClient,
		Store:       store,
		Users:       userSvc,
		Campaigns:   campaignSvc,
		Files:       fileSvc,
		Resources:   resourceSvc,
		Entities:    entitySvc,
		Shards:      shardSvc,
		Communities: communitySvc,
		Rebuilds:    rebuildSvc,
		Assessment:  assessmentSvc,
		Messages:    messageSvc,
		Hub:         hubManager,
		Publisher:   publisher,
		UploadMgr:   uploadMgr,
		Queue:       extractionQueue,
		Recorder:    recorder,
		Overlay:     overlayReader,
		Router:      router,
		Runtime:     runtime,
		Registry:    registry,
	})
	server.RegisterRoutes(engine)

	httpServer := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: stop accepting requests, drain workers, close hubs.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown signal received")

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}

	cancelWorkers()
	extractionPool.Stop()
	orchestrator.Stop()
	hubManager.Shutdown()
	slog.Info("Shutdown complete")
}

// mirrorSession copies actor state into the relational mirror row.
func mirrorSession(ctx context.Context, mirror *services.UploadSessionService, sess uploads.Session) {
	if err := mirror.Mirror(ctx, services.MirrorState{
		ID:            sess.ID,
		OwnerID:       sess.OwnerID,
		FileKey:       sess.FileKey,
		UploadID:      sess.UploadID,
		Filename:      sess.Filename,
		FileSize:      sess.FileSize,
		TotalParts:    sess.TotalParts,
		UploadedParts: sess.UploadedParts,
		Status:        sess.Status,
	}); err != nil {
		slog.Warn("Failed to mirror upload session",
			"upload_session_id", sess.ID, "error", err)
	}
}

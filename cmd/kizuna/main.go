// Package main is the kizuna CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kizuna/internal/analyze"
	"github.com/hyperjump/kizuna/internal/cli"
	"github.com/hyperjump/kizuna/internal/cluster"
	"github.com/hyperjump/kizuna/internal/config"
	"github.com/hyperjump/kizuna/internal/embedding"
	"github.com/hyperjump/kizuna/internal/fulltext"
	"github.com/hyperjump/kizuna/internal/influence"
	"github.com/hyperjump/kizuna/internal/jobs"
	"github.com/hyperjump/kizuna/internal/keyword"
	"github.com/hyperjump/kizuna/internal/models"
	"github.com/hyperjump/kizuna/internal/search"
	"github.com/hyperjump/kizuna/internal/server"
	"github.com/hyperjump/kizuna/internal/storage"
	"github.com/hyperjump/kizuna/internal/vector"
	"github.com/hyperjump/kizuna/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kizuna/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so "kizuna server" from the project dir uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "analyze":
		runAnalyze()
	case "rebuild":
		runRebuild()
	case "jobs":
		runJobs()
	case "reconstruct":
		runReconstruct()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kizuna version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	mock := fs.Bool("mock-embedder", false, "use the deterministic mock embedder instead of the ONNX model")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mock {
		cfg.Embedding.UseMock = true
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	queueCtx, queueCancel := context.WithCancel(context.Background())
	defer queueCancel()
	components.Queue.Start(queueCtx)

	srv := server.NewServer(
		components.Store,
		components.Engine,
		components.Queue,
		components.Orchestrator,
		components.Graph,
		components.Index,
		components.Text,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	components.Queue.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage when server is not running)")
	limit := fs.Int("limit", 0, "number of results (0 = server default)")
	category := fs.String("category", "", "restrict results to a category")
	keywordWeight := fs.Float64("keyword-weight", 0, "keyword merge weight (0 = default)")
	semanticWeight := fs.Float64("semantic-weight", 0, "semantic merge weight (0 = default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kizuna search [flags] <query>")
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: kizuna search [flags] <query>")
		os.Exit(1)
	}

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:          queryStr,
		Limit:          *limit,
		KeywordWeight:  *keywordWeight,
		SemanticWeight: *semanticWeight,
	}
	if *category != "" {
		searchQuery.Filters.Category = *category
	}

	if *serverURL != "" {
		// Use HTTP API when the server is running (avoids SQLite lock conflict).
		response, err := searchViaHTTP(*serverURL, searchQuery)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct storage access (when the server is not running).
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	response, err := components.Engine.Search(context.Background(), searchQuery)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kizuna analyze [flags] <note-id>")
		os.Exit(1)
	}
	noteID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	note, err := components.Store.GetNote(ctx, noteID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Note lookup failed: %v\n", err)
		os.Exit(1)
	}
	analyzer := analyze.NewAnalyzer(components.Store, components.Embedder, components.Index,
		components.Text, components.Graph, components.Engine.InvalidateIDF,
		cfg.Embedding.ModelName, cfg.Embedding.Version, logger)
	if err := analyzer.Analyze(ctx, models.AnalyzePayload{
		NoteID:    note.ID,
		UpdatedAt: note.UpdatedAt,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Analyze failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Note analyzed: %s\n", note.ID)
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	clusters := fs.Bool("clusters", false, "rebuild clusters instead of the vector index")
	_ = fs.Parse(os.Args[2:])

	endpoint := "/api/v1/index/rebuild"
	if *clusters {
		endpoint = "/api/v1/clusters/rebuild"
	}
	resp, err := http.Post(*serverURL+endpoint, "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Rebuild failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("job enqueued: %s\n", out["job_id"])
}

func runJobs() {
	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kizuna jobs [flags] <job-id>")
		os.Exit(1)
	}
	resp, err := http.Get(*serverURL + "/api/v1/jobs/" + fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Job lookup failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("job %s: %s (%s, progress %d%%)\n", job.ID, job.Status, job.Type, job.Progress)
	if job.Error != "" {
		fmt.Printf("error: %s\n", job.Error)
	}
}

func runReconstruct() {
	fs := flag.NewFlagSet("reconstruct", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(*serverURL+"/api/v1/reconstruct", "application/json", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Reconstruct failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var wf models.WorkflowStatus
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("workflow %s: %s\n", wf.ID, wf.Result)
	for _, step := range wf.Steps {
		line := fmt.Sprintf("  %-24s %s", step.Name, step.State)
		if step.Error != "" {
			line += "  (" + step.Error + ")"
		}
		fmt.Println(line)
	}
	if wf.ClusterJobID != "" {
		fmt.Printf("cluster rebuild job: %s\n", wf.ClusterJobID)
	}
}

// statusResponse aggregates counts shown by the status command.
type statusResponse struct {
	Notes      int64        `json:"notes"`
	Embeddings int64        `json:"embeddings"`
	Index      vector.Stats `json:"index"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	noteCount, err := components.Store.CountNotes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count notes failed: %v\n", err)
		os.Exit(1)
	}
	embCount, err := components.Store.CountEmbeddings(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count embeddings failed: %v\n", err)
		os.Exit(1)
	}
	status := statusResponse{
		Notes:      noteCount,
		Embeddings: embCount,
		Index:      components.Index.Stats(),
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("notes:       %d\n", status.Notes)
		fmt.Printf("embeddings:  %d\n", status.Embeddings)
		fmt.Printf("index:       %d live / %d tombstones (initialized: %t)\n",
			status.Index.Live, status.Index.Tombstones, status.Index.Initialized)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store        storage.Store
	Embedder     *embedding.Provider
	Index        *vector.Index
	Text         *fulltext.NoteIndex
	Engine       *search.Engine
	Graph        *influence.Graph
	Queue        *jobs.Queue
	Orchestrator *jobs.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Text != nil {
		_ = c.Text.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder := embedding.NewProvider(embedding.ProviderConfig{
		ModelPath:  cfg.Embedding.ModelPath,
		ModelName:  cfg.Embedding.ModelName,
		Version:    cfg.Embedding.Version,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
		UseMock:    cfg.Embedding.UseMock,
	}, logger)

	index := vector.NewIndex(vector.Config{
		Dimensions:     cfg.Embedding.Dimensions,
		Capacity:       cfg.Index.Capacity,
		M:              cfg.Index.M,
		EfConstruction: cfg.Index.EfConstruction,
		EfSearch:       cfg.Index.EfSearch,
	}, store, vector.WithLogger(logger))
	if err := index.Build(context.Background()); err != nil {
		logger.Warn("initial index build failed, linear scan fallback active", zap.Error(err))
	}

	text, err := fulltext.NewNoteIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize full-text index: %w", err)
	}

	tokenizer := &keyword.SimpleTokenizer{}
	idf := keyword.NewIDFCache(tokenizer)
	engine := search.NewEngine(store, embedder, index, tokenizer, idf, logger)

	graph := influence.NewGraph(store, nil, cfg.Influence.DecayRate, logger)

	worker := cluster.NewWorker(store, embedder, cfg.Embedding.ModelName, cfg.Embedding.Version, logger)
	analyzer := analyze.NewAnalyzer(store, embedder, index, text, graph, engine.InvalidateIDF,
		cfg.Embedding.ModelName, cfg.Embedding.Version, logger)

	queue := jobs.NewQueue(store, logger)
	queue.Register(models.JobAnalyze, func(ctx context.Context, payload models.JobPayload) (string, error) {
		return "", analyzer.Analyze(ctx, payload.(models.AnalyzePayload))
	})
	queue.Register(models.JobClusterRebuild, func(ctx context.Context, payload models.JobPayload) (string, error) {
		return "", worker.Rebuild(ctx, payload.(models.ClusterRebuildPayload))
	})
	queue.Register(models.JobIndexRebuild, func(ctx context.Context, payload models.JobPayload) (string, error) {
		return "", index.Build(ctx)
	})

	orchestrator := jobs.NewOrchestrator(store, embedder, text, index, graph, queue,
		cfg.Embedding.ModelName, cfg.Embedding.Version, logger)

	return &Components{
		Store:        store,
		Embedder:     embedder,
		Index:        index,
		Text:         text,
		Engine:       engine,
		Graph:        graph,
		Queue:        queue,
		Orchestrator: orchestrator,
	}, nil
}

func printUsage() {
	fmt.Println(`kizuna - personal knowledge base analysis engine

Usage:
  kizuna server [flags]            Start the HTTP server
  kizuna search [flags] <query>    Hybrid keyword + semantic search
  kizuna analyze [flags] <id>      Re-run the analysis pipeline for one note (direct storage)
  kizuna rebuild [flags]           Enqueue a vector index (or --clusters) rebuild on a running server
  kizuna jobs [flags] <id>         Show the status of a background job
  kizuna reconstruct [flags]       Run the full reconstruct workflow on a running server
  kizuna status [flags]            Show storage and index status
  kizuna version                   Show version
  kizuna help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kizuna/config.yaml)
  --debug            Enable debug logging
  --mock-embedder    Use the deterministic mock embedder instead of the ONNX model

Search Flags:
  --config string           Config file path (for direct storage mode)
  --server string           Server URL (default: http://localhost:8080). Use empty (--server "") for direct storage.
  --limit int               Number of results (0 = server default)
  --category string         Restrict results to a category
  --keyword-weight float    Keyword merge weight (0 = default 0.6)
  --semantic-weight float   Semantic merge weight (0 = default 0.4)
  --output string           Output format: text or json

Examples:
  kizuna server
  kizuna search "attention mechanisms"
  kizuna search --category research transformer notes
  kizuna search --output json "query"
  kizuna reconstruct
  kizuna status --output json`)
}

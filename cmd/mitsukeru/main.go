// Package main is the Mitsukeru CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hyperjump/mitsukeru/internal/cli"
	"github.com/hyperjump/mitsukeru/internal/config"
	"github.com/hyperjump/mitsukeru/internal/models"
	"github.com/hyperjump/mitsukeru/internal/server"
	"github.com/hyperjump/mitsukeru/internal/storage"
	"github.com/hyperjump/mitsukeru/internal/vector"
	"github.com/hyperjump/mitsukeru/internal/watcher"
	"github.com/hyperjump/mitsukeru/pkg/utils"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mitsukeru/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
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
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "status":
		runStatus()
	case "save":
		runSave()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("mitsukeru version %s\n", version)
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
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
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

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()

	var watchSvc server.WatchService
	var fileWatcher *watcher.Watcher
	if cfg.Watch.Enabled {
		idx := components.Indexer
		fileWatcher = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				resp, err := idx.IngestFile(watchCtx, path)
				if err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
					return
				}
				logger.Info("watch ingested video",
					zap.String("path", path),
					zap.String("video_id", resp.VideoID),
					zap.Int("segments", resp.SegmentsCount))
			},
			watcher.WithLogger(logger),
			watcher.WithExcludes(cfg.Storage.UploadDir),
		)
		if err := fileWatcher.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		fileWatcher.SyncExistingFiles()
		watchSvc = fileWatcher
	}

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		components.Files,
		components.Store,
		&cfg.Server,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if fileWatcher != nil {
		fileWatcher.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := components.SaveStore(cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector store save failed", zap.String("prefix", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	patterns := fs.String("pattern", "", "comma-separated doublestar patterns for directories (default from config)")
	quiet := fs.Bool("quiet", false, "disable the progress bar")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: mitsukeru ingest [flags] <video-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		pats := cfg.Ingest.Patterns
		if *patterns != "" {
			pats = splitPatterns(*patterns)
		}
		var progress func(processed, total int, currentFile string)
		if !*quiet {
			progress = newProgress()
		}
		n, err := components.Indexer.IndexDirectory(ctx, path, pats, progress)
		if saveErr := components.SaveStore(cfg.Storage.VectorIndexPath); saveErr != nil {
			fmt.Printf("Saving vector store failed: %v\n", saveErr)
		}
		fmt.Printf("Ingested %d video(s) from %s\n", n, path)
		if err != nil {
			fmt.Printf("Some videos failed:\n%v\n", err)
			os.Exit(1)
		}
		return
	}

	resp, err := components.Indexer.IngestFile(ctx, path)
	if saveErr := components.SaveStore(cfg.Storage.VectorIndexPath); saveErr != nil {
		fmt.Printf("Saving vector store failed: %v\n", saveErr)
	}
	if err != nil {
		fmt.Printf("Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Video processed: %s (%d segments)\n", resp.VideoID, resp.SegmentsCount)
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// newProgress returns an ingest progress callback drawing a progress bar sized on the first call.
func newProgress() func(processed, total int, currentFile string) {
	var (
		bar *progressbar.ProgressBar
		mu  sync.Mutex
	)
	return func(processed, total int, currentFile string) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}
		bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] %s", filepath.Base(currentFile)))
		_ = bar.Set(processed)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: mitsukeru search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Scores are squared L2 distances in semantic mode (lower is closer) and
relevance scores in keyword mode (higher is better).

Examples:
  mitsukeru search how plants make food
  mitsukeru search --video 3f2a... "light reactions"   # one video only
  mitsukeru search --mode keyword chlorophyll
  mitsukeru search --output json --top-k 10 photosynthesis
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// searchURL builds the GET /api/v1/search URL for query.
func searchURL(serverURL string, query *models.SearchQuery) string {
	v := url.Values{}
	v.Set("query", query.Query)
	if query.VideoID != "" {
		v.Set("video_id", query.VideoID)
	}
	if query.TopK > 0 {
		v.Set("top_k", strconv.Itoa(query.TopK))
	}
	if query.Mode != "" {
		v.Set("mode", string(query.Mode))
	}
	return strings.TrimRight(serverURL, "/") + "/api/v1/search?" + v.Encode()
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage when server is not running)")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	videoID := fs.String("video", "", "restrict results to one video ID")
	mode := fs.String("mode", "semantic", "search mode: semantic or keyword")
	outputFormat := fs.String("output", "text", "output format: text, compact (one result per line), or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	searchQuery := &models.SearchQuery{
		Query:   queryStr,
		VideoID: *videoID,
		TopK:    *topK,
		Mode:    models.SearchMode(*mode),
	}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the SQLite and Bleve locks while running.
		response, err = searchViaHTTP(*serverURL, searchQuery)
	} else {
		response, err = searchDirect(*configPath, searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(context.Background(), query)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	resp, err := http.Get(searchURL(serverURL, query))
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

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status *cli.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusDirect(configPath string) (*cli.Status, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewCLILogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return collectStatus(context.Background(), cfg, components)
}

func collectStatus(ctx context.Context, cfg *config.Config, c *Components) (*cli.Status, error) {
	videos, err := c.Storage.CountVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("count videos: %w", err)
	}
	segments, err := c.Storage.CountTranscriptSegments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count segments: %w", err)
	}
	status := &cli.Status{
		Videos:             videos,
		TranscriptSegments: segments,
		VectorStoreSize:    c.Store.Count(),
		VectorIndexType:    c.Store.Type(),
		Dimensions:         c.Store.Dimensions(),
	}
	if c.KeywordIndex != nil {
		if n, err := c.KeywordIndex.DocCount(); err == nil {
			status.KeywordDocs = n
		}
	}
	if n, err := storage.DiskUsageBytes(
		cfg.Storage.DatabasePath,
		cfg.Storage.UploadDir,
		cfg.Storage.BleveIndexPath,
		vector.IndexPath(cfg.Storage.VectorIndexPath),
		vector.MetadataPath(cfg.Storage.VectorIndexPath),
	); err == nil {
		status.DiskUsageBytes = n
	}
	return status, nil
}

// statusResponse is the part of GET /api/v1/status the CLI prints.
type statusResponse struct {
	Videos             int64 `json:"videos"`
	TranscriptSegments int64 `json:"transcript_segments"`
	VectorStoreSize    int   `json:"vector_store_size"`
	DiskUsageBytes     int64 `json:"disk_usage_bytes"`
	Config             struct {
		VectorIndexType     string `json:"vector_index_type"`
		EmbeddingDimensions int    `json:"embedding_dimensions"`
	} `json:"config"`
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &cli.Status{
		Videos:             s.Videos,
		TranscriptSegments: s.TranscriptSegments,
		VectorStoreSize:    s.VectorStoreSize,
		VectorIndexType:    s.Config.VectorIndexType,
		Dimensions:         s.Config.EmbeddingDimensions,
		DiskUsageBytes:     s.DiskUsageBytes,
	}, nil
}

func runSave() {
	fs := flag.NewFlagSet("save", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Post(strings.TrimRight(*serverURL, "/")+"/api/v1/index/save", "application/json", nil)
	if err != nil {
		fmt.Printf("Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Printf("Save failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var out struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	fmt.Printf("Vector store saved (%d entries)\n", out.Count)
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: mitsukeru watch <add|remove|list> [path]")
		fmt.Println("  mitsukeru watch add <path>     Add directory to watch")
		fmt.Println("  mitsukeru watch remove <path>  Remove directory from watch")
		fmt.Println("  mitsukeru watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	base := strings.TrimRight(*serverURL, "/") + "/api/v1/watch/directories"
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mitsukeru watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(base, "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: mitsukeru watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, base+"?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(base)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`mitsukeru - Semantic search over spoken video content

Usage:
  mitsukeru server [flags]                 Start the HTTP server
  mitsukeru ingest [flags] <video|dir>     Transcribe, embed and index videos
  mitsukeru search [flags] <query>         Find video moments
  mitsukeru status [flags]                 Show registry and index status
  mitsukeru save [flags]                   Ask the server to persist the vector store
  mitsukeru watch <add|remove|list>        Manage watched directories
  mitsukeru version                        Show version
  mitsukeru help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mitsukeru/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --pattern string   Comma-separated doublestar patterns (default from config ingest.patterns)
  --quiet            Disable the progress bar

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8000). Use --server "" for direct storage.
  --top-k int        Number of results (default from config)
  --video string     Restrict results to one video ID
  --mode string      semantic or keyword (default: semantic)
  --output string    text, compact or json (default: text)

Status Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL. Use --server "" for direct storage.
  --output string    text or json (default: text)

Examples:
  mitsukeru server
  mitsukeru ingest lecture.mp4
  mitsukeru ingest --pattern "**/*.mp4,**/*.mkv" ~/Videos
  mitsukeru search "how do plants make food"
  mitsukeru search --output json --video 3f2a... photosynthesis
  mitsukeru status --output json
  mitsukeru watch add ~/Videos`)
}

// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/moodmelody/internal/api/rest"
	"github.com/osa030/moodmelody/internal/app/capture"
	"github.com/osa030/moodmelody/internal/app/catalog"
	"github.com/osa030/moodmelody/internal/app/detector"
	"github.com/osa030/moodmelody/internal/app/mood"
	"github.com/osa030/moodmelody/internal/app/playback"
	"github.com/osa030/moodmelody/internal/app/session"
	"github.com/osa030/moodmelody/internal/domain/emotion"
	"github.com/osa030/moodmelody/internal/infra/config"
	"github.com/osa030/moodmelody/internal/infra/gemini"
	"github.com/osa030/moodmelody/internal/infra/inference"
	"github.com/osa030/moodmelody/internal/infra/logger"
	"github.com/osa030/moodmelody/internal/infra/media"
	"github.com/osa030/moodmelody/internal/infra/ollama"
	"github.com/osa030/moodmelody/internal/infra/store"
)

var (
	app        = kingpin.New("moodmelody-server", "Emotion-driven music player server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-catalog command
	listCatalogCmd = app.Command("list-catalog", "List the built-in playlists and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

// classifier is an emotion backend that also reports its call counters.
type classifier interface {
	detector.Classifier
	Metrics() inference.Metrics
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == listCatalogCmd.FullCommand() {
		printCatalog(catalog.Default())
		return
	}

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run wires every component and serves until a signal or a server error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	sess := session.NewStore(store.NewKVRepo(db))
	if err := sess.Load(ctx); err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	lib := catalog.Default()
	chain, err := catalog.NewProviderChainFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create catalog providers: %w", err)
	}
	if chain.Len() > 0 {
		lib = chain.Extend(ctx, lib)
	}

	var source capture.Source
	var push *capture.PushSource
	switch cfg.Camera.Source {
	case "snapshot":
		source = capture.NewSnapshotSource(cfg.Camera.SnapshotURL)
	default:
		push = capture.NewPushSource()
		source = push
	}
	capturer := capture.NewCapturer(source, capture.Config{
		MaxWidth:  cfg.Camera.Width,
		MaxHeight: cfg.Camera.Height,
		Quality:   cfg.Camera.Quality,
	})

	cls, err := newClassifier(cfg)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	det := detector.New(source, capturer, cls, detector.Config{
		Interval:    cfg.Detector.Interval,
		Cooldown:    cfg.Detector.Cooldown,
		Threshold:   cfg.Detector.Threshold,
		ScanTimeout: cfg.Inference.Timeout,
	})

	deck := media.NewDeck(media.Config{
		Offline:     cfg.Media.Offline,
		LoadTimeout: cfg.Media.LoadTimeout,
	})
	defer deck.Close()

	pb := playback.NewController(lib, deck, playback.Config{
		InitialEmotion: emotion.Neutral,
	})
	defer pb.Close()

	moodMgr := mood.NewManager(det, pb, sess, mood.Config{
		FeedbackTimeout: cfg.Mood.FeedbackTimeout,
		Metrics:         cls.Metrics,
	})
	moodMgr.Start(ctx)

	opts := []rest.Option{rest.WithAPIToken(cfg.Server.APIToken)}
	if push != nil {
		opts = append(opts, rest.WithPushSource(push))
	}
	handler := rest.NewHandler(moodMgr, lib, opts...)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: h2c.NewHandler(handler.Routes(), &http2.Server{}),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		moodMgr.Close()
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the mood manager first so event streams end before Shutdown waits on them
	moodMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

// newClassifier builds the configured inference backend.
func newClassifier(cfg *config.Config) (classifier, error) {
	switch cfg.Inference.Backend {
	case "ollama":
		return ollama.New(ollama.Config{
			BaseURL: cfg.Inference.Ollama.BaseURL,
			Model:   cfg.Inference.Ollama.Model,
			Timeout: cfg.Inference.Timeout,
		}), nil
	default:
		return gemini.New(gemini.Config{
			APIKey:  cfg.Inference.Gemini.APIKey,
			Model:   cfg.Inference.Gemini.Model,
			BaseURL: cfg.Inference.Gemini.BaseURL,
			Timeout: cfg.Inference.Timeout,
		})
	}
}

// printCatalog prints the built-in playlists.
func printCatalog(c *catalog.Catalog) {
	fmt.Println("Playlists:")
	for _, p := range c.Playlists() {
		fmt.Printf("  %-10s %-28s %d songs\n", p.Emotion, p.Title, len(p.Songs))
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/callscribe"
	"github.com/snarg/callscribe/internal/api"
	"github.com/snarg/callscribe/internal/audio"
	"github.com/snarg/callscribe/internal/config"
	"github.com/snarg/callscribe/internal/database"
	"github.com/snarg/callscribe/internal/dialogue"
	"github.com/snarg/callscribe/internal/events"
	"github.com/snarg/callscribe/internal/metrics"
	"github.com/snarg/callscribe/internal/mqttclient"
	"github.com/snarg/callscribe/internal/recording"
	"github.com/snarg/callscribe/internal/storage"
	"github.com/snarg/callscribe/internal/transcribe"
	"github.com/snarg/callscribe/internal/watch"
)

var version = "dev"

func main() {
	startTime := time.Now()

	flags, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "callscribe:", err)
		os.Exit(2)
	}
	if flags.version {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(flags.overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	log := newLogger(cfg, os.Stderr)
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("configuration rejected")
		os.Exit(2)
	}

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.WatchDir != "" {
		log.Info().Str("version", version).Str("watch_dir", cfg.WatchDir).Msg("callscribe starting")
		runWatch(ctx, cfg, log, startTime)
		return
	}

	if err := runOnce(ctx, cfg, flags, log); err != nil {
		log.Error().Err(err).Msg("conversion failed")
		stop()
		os.Exit(exitCode(err))
	}
}

// newLogger writes JSON to w, or a human-readable console format when
// LOG_FORMAT=console. Stdout is never used so "-output -" stays clean.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// exitCode maps a failed conversion onto the process exit status:
// 2 for rejected configuration, 3 for malformed recognizer output, 1 otherwise.
func exitCode(err error) int {
	var ce *dialogue.ConfigError
	var ie *dialogue.InputIntegrityError
	switch {
	case errors.As(err, &ce):
		return 2
	case errors.As(err, &ie):
		return 3
	default:
		return 1
	}
}

// runOnce converts a single recording (or a pair of segment files) and exits.
func runOnce(ctx context.Context, cfg *config.Config, flags cliFlags, log zerolog.Logger) error {
	if flags.input == "" {
		return errors.New("no input file given (use -input, or -watch DIR)")
	}

	in := recording.Input{Segmented: flags.segmented()}
	if in.Segmented {
		// Only the name is needed: it feeds speaker inference and the title.
		abs, err := filepath.Abs(flags.input)
		if err != nil {
			return err
		}
		in.AudioPath = abs
		if in.Left, err = transcribe.LoadSegments(flags.leftJSON, dialogue.Self); err != nil {
			return err
		}
		if in.Right, err = transcribe.LoadSegments(flags.rightJSON, dialogue.Other); err != nil {
			return err
		}
	} else {
		path, err := audio.ResolveInput(flags.input)
		if err != nil {
			return err
		}
		in.AudioPath = path
	}

	opts := processorOptions(cfg, log)
	if !in.Segmented {
		if !transcribe.CheckFFmpeg() {
			return errors.New("ffmpeg not found in PATH; it is required to split stereo recordings")
		}
		provider, err := newProvider(cfg)
		if err != nil {
			return err
		}
		opts.Provider = provider
	}

	toStdout := flags.output == "-"
	if !toStdout {
		outPath := flags.output
		if outPath == "" {
			outPath = audio.DefaultOutputPath(in.AudioPath, cfg.OutputDir)
		}
		outPath, err := filepath.Abs(outPath)
		if err != nil {
			return err
		}
		store, err := storage.New(cfg.S3, filepath.Dir(outPath), log)
		if err != nil {
			return err
		}
		opts.Store = store
		in.OutputKey = filepath.Base(outPath)
	}

	db, mqtt := connectOptional(ctx, cfg, log)
	if db != nil {
		defer db.Close()
		opts.Index = db
	}
	if mqtt != nil {
		defer mqtt.Close()
		opts.Notify = mqtt
	}

	out, err := recording.NewProcessor(opts).Process(ctx, in)
	if err != nil {
		return err
	}
	if toStdout {
		_, err = os.Stdout.Write(out.Body)
		return err
	}
	log.Info().
		Str("output", out.OutputPath).
		Str("other", out.Speakers.Map.Other).
		Int("lines", out.Stats.Lines).
		Msg("transcript written")
	return nil
}

// runWatch runs the inbox daemon until the context is cancelled.
func runWatch(ctx context.Context, cfg *config.Config, log zerolog.Logger, startTime time.Time) {
	if !transcribe.CheckFFmpeg() {
		log.Fatal().Msg("ffmpeg not found in PATH; it is required to split stereo recordings")
	}
	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure speech-to-text provider")
	}

	db, mqtt := connectOptional(ctx, cfg, log)

	// Storage
	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = cfg.WatchDir
	}
	storeLog := log.With().Str("component", "storage").Logger()
	store, err := storage.New(cfg.S3, outDir, storeLog)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize transcript storage")
	}
	var uploader *storage.AsyncUploader
	if tiered, ok := store.(*storage.TieredStore); ok {
		uploader = storage.NewAsyncUploader(tiered.S3Store(), 256, storeLog)
		uploader.Start(2)
		tiered.UseUploader(uploader)
	}

	// Recording pipeline
	bus := events.NewBus(256)
	opts := processorOptions(cfg, log)
	opts.Provider = provider
	opts.Store = store
	opts.KeyRoot = cfg.WatchDir
	opts.Notify = bus
	if db != nil {
		opts.Index = db
	}
	if mqtt != nil {
		opts.Notify = recording.FanOut(mqtt, bus)
	}
	// Jobs only come from the watcher, so it is set before OnDone can run.
	var watcher *watch.FileWatcher
	pool := recording.NewWorkerPool(recording.WorkerPoolOptions{
		Processor:  recording.NewProcessor(opts),
		Workers:    cfg.Workers,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		OnDone: func(job recording.Job, err error) {
			watcher.Release(job.AudioPath, err)
		},
		Log: log,
	})
	pool.Start()

	// Inbox watcher
	watcher = watch.New(watch.Options{
		Dir:      cfg.WatchDir,
		Backfill: cfg.WatchBackfill,
		Rescan:   cfg.WatchRescan,
		Queue:    pool,
		Done: func(ctx context.Context, audioPath string) bool {
			if store.Exists(ctx, audio.TranscriptKey(cfg.WatchDir, audioPath)) {
				return true
			}
			if db == nil {
				return false
			}
			done, err := db.HasTranscript(ctx, audioPath)
			return err == nil && done
		},
		Log: log.With().Str("component", "watcher").Logger(),
	})
	if err := watcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start inbox watcher")
	}

	// Metrics
	var pgPool *pgxpool.Pool
	if db != nil {
		pgPool = db.Pool
	}
	prometheus.MustRegister(metrics.NewCollector(pgPool, pool, watcher))

	// HTTP Server
	srvOpts := api.ServerOptions{
		Config:    cfg,
		Queue:     pool,
		Watcher:   watcher,
		Events:    bus,
		Version:   version,
		StartTime: startTime,
		Log:       log.With().Str("component", "http").Logger(),
	}
	if db != nil {
		srvOpts.Transcripts = db
		srvOpts.Database = db
	}
	if mqtt != nil {
		srvOpts.MQTT = mqtt
	}
	srv := api.NewServer(srvOpts)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	watcher.Stop()
	// Queued recordings are picked up again by the next backfill.
	pool.Abort()
	if uploader != nil {
		uploader.Stop()
	}
	if mqtt != nil {
		mqtt.Close()
	}
	if db != nil {
		db.Close()
	}

	log.Info().Msg("callscribe stopped")
}

func processorOptions(cfg *config.Config, log zerolog.Logger) recording.ProcessorOptions {
	// Validate has already accepted the name.
	normalizer, _ := transcribe.ParseNormalizer(cfg.Normalize)

	topts := transcribe.DefaultTranscribeOpts()
	topts.Language = cfg.WhisperLanguage
	topts.BeamSize = cfg.WhisperBeamSize
	topts.VadFilter = cfg.WhisperVAD
	topts.Prompt = cfg.WhisperPrompt
	topts.Hotwords = cfg.Hotwords

	return recording.ProcessorOptions{
		TranscribeOpts: topts,
		Split: transcribe.SplitOptions{
			SampleRate: cfg.SampleRate,
			Normalizer: normalizer,
			TmpDir:     cfg.TmpDir,
		},
		Segments: transcribe.SegmentOptions{
			SplitGap:   cfg.SplitGap,
			MinLogprob: cfg.MinLogprob,
		},
		OtherOn:         cfg.OtherOn,
		SelfName:        cfg.YouName,
		OtherName:       cfg.OtherName,
		MergeGap:        cfg.MergeGap,
		EventConfidence: cfg.EventConfidence,
		Headers:         cfg.LRCHeaders,
		Log:             log,
	}
}

func newProvider(cfg *config.Config) (transcribe.Provider, error) {
	switch cfg.STTProvider {
	case "whisper":
		return transcribe.NewWhisperClient(cfg.WhisperURL, cfg.WhisperModel, cfg.WhisperTimeout), nil
	case "elevenlabs":
		return transcribe.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.ElevenLabsModel, cfg.ElevenLabsKeyterms, cfg.WhisperTimeout), nil
	}
	return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.STTProvider)
}

// connectOptional opens the transcript index and the notification broker
// when configured. Either failing is logged and the feature stays off:
// the transcript file is the primary artifact.
func connectOptional(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*database.DB, *mqttclient.Client) {
	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		conn, err := database.Connect(ctx, cfg.DatabaseURL, cfg.Workers, dbLog)
		if err != nil {
			log.Warn().Err(err).Msg("transcript index unavailable")
		} else if err := conn.Init(ctx, callscribe.SchemaSQL); err != nil {
			log.Warn().Err(err).Msg("transcript index schema setup failed")
			conn.Close()
		} else {
			db = conn
		}
	}

	var mqtt *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		client, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("mqtt broker unavailable, notifications disabled")
		} else {
			mqtt = client
		}
	}
	return db, mqtt
}

// doorbell: unattended intercom agent.
// Answers SIP calls from the gate, talks to the visitor and opens the door
// for known faces spotted by the camera.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/teslashibe/go-doorbell/internal/clock"
	"github.com/teslashibe/go-doorbell/internal/config"
	"github.com/teslashibe/go-doorbell/internal/log"
	"github.com/teslashibe/go-doorbell/internal/proc"
	"github.com/teslashibe/go-doorbell/pkg/archive"
	"github.com/teslashibe/go-doorbell/pkg/audioroute"
	"github.com/teslashibe/go-doorbell/pkg/dialogue"
	"github.com/teslashibe/go-doorbell/pkg/events"
	"github.com/teslashibe/go-doorbell/pkg/faces"
	"github.com/teslashibe/go-doorbell/pkg/hub"
	"github.com/teslashibe/go-doorbell/pkg/notify"
	"github.com/teslashibe/go-doorbell/pkg/proximity"
	"github.com/teslashibe/go-doorbell/pkg/relay"
	"github.com/teslashibe/go-doorbell/pkg/schedule"
	"github.com/teslashibe/go-doorbell/pkg/session"
	"github.com/teslashibe/go-doorbell/pkg/stt"
	"github.com/teslashibe/go-doorbell/pkg/telephony/baresip"
	"github.com/teslashibe/go-doorbell/pkg/tts"
	"github.com/teslashibe/go-doorbell/pkg/vision"
	"github.com/teslashibe/go-doorbell/pkg/web"
)

var version = "1.0.0"

// shutdownTimeout bounds each shutdown step and the final join.
const shutdownTimeout = 5 * time.Second

type options struct {
	configPath     string
	logLevel       string
	noCamera       bool
	noAudioRouting bool
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	pflag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pflag.BoolVar(&opts.noCamera, "no-camera", false, "Disable the camera face-recognition path")
	pflag.BoolVar(&opts.noAudioRouting, "no-audio-routing", false, "Do not manage PulseAudio null sinks")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Dir); err != nil {
		return err
	}
	defer log.Close()
	logger := log.L()

	fmt.Println()
	fmt.Println("🔔 Doorbell v" + version)
	fmt.Printf("   Telephony: %s\n", cfg.Telephony.ControlAddr)
	fmt.Printf("   HTTP:      %s\n", cfg.HTTP.Addr)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	journal := events.NewJournal(events.DefaultCapacity, clk)
	feed := hub.New("events", logger)
	defer journal.Subscribe(feed.Publish)()

	door, err := relay.New(relay.Config{
		Scheme:   cfg.Doorbell.Scheme,
		Host:     cfg.Doorbell.Host,
		Port:     cfg.Doorbell.Port,
		User:     cfg.Doorbell.User,
		Password: cfg.Doorbell.Password,
		Timeout:  cfg.Doorbell.Timeout,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	notifier := buildNotifier(cfg, logger)

	piper, err := tts.NewPiper(
		tts.WithExecutable(cfg.Piper.Executable),
		tts.WithModel(cfg.Piper.Model),
		tts.WithSampleRate(cfg.Piper.SampleRate),
		tts.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("piper: %w", err)
	}
	defer piper.Close()
	speaker := tts.NewSpeaker(ctx, piper,
		tts.WithDevice(cfg.Audio.PlaybackSink),
		tts.WithSpeakerLogger(logger),
	)

	recognizer, err := stt.NewVosk(stt.VoskConfig{
		URL:        cfg.Vosk.URL,
		Device:     cfg.Audio.CaptureSink + ".monitor",
		SampleRate: cfg.Vosk.SampleRate,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("vosk: %w", err)
	}

	var (
		router session.AudioRouter
		coord  *audioroute.Coordinator
	)
	if cfg.Audio.Enabled && !opts.noAudioRouting {
		coord = audioroute.New(audioroute.Config{
			CaptureSink:  cfg.Audio.CaptureSink,
			PlaybackSink: cfg.Audio.PlaybackSink,
			StreamMatch:  cfg.Audio.StreamMatch,
			Attempts:     cfg.Audio.Attempts,
			Backoff:      cfg.Audio.Backoff,
			Runner:       proc.Exec{},
			Clock:        clk,
			Logger:       logger,
		})
		if err := coord.Setup(ctx); err != nil {
			return fmt.Errorf("audio routing: %w", err)
		}
		router = coord
		fmt.Printf("🔊 Audio routed through %s / %s\n", cfg.Audio.CaptureSink, cfg.Audio.PlaybackSink)
	}

	manager := session.NewManager(session.Config{
		Speaker:     speaker,
		Relay:       door,
		Notifier:    notifier,
		Recognizer:  recognizer,
		Router:      router,
		Clock:       clk,
		Scheduler:   schedule.New(clk),
		MaxDuration: cfg.Dialogue.MaxDuration,
		Phrases:     dialogue.PolishPhrases(),
		Timing:      dialogue.DefaultTiming(),
		Events:      journal,
		Logger:      logger,
	})

	watchdog := proximity.New(proximity.Config{
		Timeout:      cfg.Proximity.Timeout,
		PollInterval: cfg.Proximity.PollInterval,
		Clock:        clk,
		Events:       journal,
		Logger:       logger,
	})

	server := web.NewServer(web.Config{
		Addr:      cfg.HTTP.Addr,
		Proximity: watchdog,
		Calls:     manager,
		Journal:   journal,
		Hub:       feed,
		Logger:    logger,
	})

	phone := baresip.New(baresip.Config{
		Addr:   cfg.Telephony.ControlAddr,
		Stream: cfg.Audio.StreamMatch,
		Logger: logger,
	})

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("background loop stopped", "loop", name, "error", err)
				stop()
			}
		}()
	}

	spawn("hub", func(ctx context.Context) error { feed.Run(ctx); return nil })
	spawn("proximity", watchdog.Run)
	spawn("telephony", func(ctx context.Context) error { return phone.Run(ctx, manager.Handle) })

	cameraCtx, stopCamera := context.WithCancel(loopCtx)
	defer stopCamera()
	var cameraDone <-chan struct{}
	if cfg.Camera.URL != "" && !opts.noCamera {
		done, err := startCamera(cameraCtx, cfg, clk, watchdog, door, notifier, journal, logger)
		if err != nil {
			logger.Error("camera path disabled", "error", err)
		} else {
			cameraDone = done
			fmt.Println("📷 Face recognition armed")
		}
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	fmt.Println("✅ Ready. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("http server stopped", "error", err)
	}
	fmt.Println("\n👋 Shutting down...")

	stopCamera()
	if cameraDone != nil {
		select {
		case <-cameraDone:
		case <-time.After(shutdownTimeout):
			logger.Warn("camera loop did not stop in time")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("call shutdown", "error", err)
	}
	if coord != nil {
		if err := coord.Teardown(shutdownCtx); err != nil {
			logger.Warn("audio teardown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	stopLoops()
	joined := make(chan struct{})
	go func() { wg.Wait(); close(joined) }()
	select {
	case <-joined:
	case <-time.After(shutdownTimeout):
		logger.Warn("background loops did not stop in time")
	}
	speaker.Wait()
	return nil
}

// buildNotifier fans out to every configured channel.
func buildNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	var out notify.Multi
	if cfg.Pushover.User != "" {
		out = append(out, notify.NewPushover(cfg.Pushover.User, cfg.Pushover.Token, notify.WithPushoverLogger(logger)))
	}
	if cfg.Webhook.URL != "" {
		out = append(out, notify.NewWebhook(cfg.Webhook.URL, "doorbell"))
	}
	if len(out) == 0 {
		logger.Warn("no notification channel configured")
		return notify.Nop{}
	}
	return out
}

// buildArchive returns the stores that receive a copy of each clip, or nil.
func buildArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) archive.Store {
	var stores archive.Multi
	if cfg.Archive.Dir != "" {
		dir, err := archive.NewDir(cfg.Archive.Dir)
		if err != nil {
			logger.Error("archive directory disabled", "error", err)
		} else {
			stores = append(stores, dir)
		}
	}
	if s := cfg.Archive.S3; s.IsConfigured() {
		stores = append(stores, archive.NewS3(archive.S3Config{
			Bucket:          s.Bucket,
			Endpoint:        s.Endpoint,
			Region:          s.Region,
			Prefix:          s.Prefix,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
		}))
	}
	if d := cfg.Archive.Drive; d.IsConfigured() {
		drive, err := archive.NewDrive(ctx, d.CredentialsFile, d.FolderID)
		if err != nil {
			logger.Error("drive archive disabled", "error", err)
		} else {
			stores = append(stores, drive)
		}
	}
	if len(stores) == 0 {
		return nil
	}
	return stores
}

// startCamera opens the stream and models and runs the camera loop until
// ctx ends. The returned channel closes once everything is released.
func startCamera(
	ctx context.Context,
	cfg *config.Config,
	clk clock.Clock,
	watchdog *proximity.Watchdog,
	door relay.Pulser,
	notifier notify.Notifier,
	journal *events.Journal,
	logger *slog.Logger,
) (<-chan struct{}, error) {
	vcfg := vision.DefaultConfig()
	vcfg.DetectorModel = cfg.Faces.DetectorModel
	vcfg.RecognizerModel = cfg.Faces.RecognizerModel
	vcfg.KnownDir = cfg.Faces.KnownDir
	vcfg.MatchThreshold = cfg.Faces.MatchThreshold

	recognizer, err := vision.NewRecognizer(vcfg, logger)
	if err != nil {
		return nil, fmt.Errorf("face models: %w", err)
	}
	capture, err := vision.OpenCapture(cfg.Camera.URL, clk)
	if err != nil {
		recognizer.Close()
		return nil, err
	}

	responder := &faces.Responder{
		Relay:      door,
		Clips:      vision.ClipWriter{},
		Archive:    buildArchive(ctx, cfg, logger),
		Notifier:   notifier,
		StorageDir: cfg.Faces.StorageDir,
		FPS:        int(cfg.Camera.FPS),
		Title:      dialogue.PolishPhrases().NotificationTitle,
		Clock:      clk,
		Events:     journal,
		Logger:     logger,
	}
	filter := faces.NewFilter(faces.Config{
		Consensus:    cfg.Faces.Consensus,
		Window:       cfg.Faces.Window,
		Gap:          cfg.Faces.Gap,
		Cooldown:     cfg.Faces.Cooldown,
		BufferFrames: cfg.Faces.BufferFrames,
		Clock:        clk,
		Handler:      responder.Handle,
		Logger:       logger,
	})
	loop := vision.NewLoop(vision.LoopConfig{
		Source:   capture,
		Detector: recognizer,
		Presence: watchdog,
		Filter:   filter,
		Clock:    clk,
		Logger:   logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx)
		filter.Wait()
		capture.Close()
		recognizer.Close()
		frames, detections, failures := loop.Stats()
		logger.Info("camera stopped", "frames", frames, "detections", detections, "failures", failures)
	}()
	return done, nil
}

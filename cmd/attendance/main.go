package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/capture"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/pipeline"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/stream"
	"github.com/your-org/attendance/internal/vision"
	"github.com/your-org/attendance/pkg/dto"
)

// viewerBuffer is how many chunks a slow viewer may lag before frames are dropped.
const viewerBuffer = 2

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting attendance service",
		"port", cfg.Server.Port,
		"camera", cfg.Camera.Type,
		"cooldown", cfg.Attendance.Cooldown,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	faces, err := vision.NewONNX(cfg.Vision)
	if err != nil {
		slog.Error("init vision", "error", err)
		os.Exit(1)
	}
	defer faces.Close()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Attendance notifications go through NATS when configured so other
	// services can follow them; otherwise straight to the hub.
	var (
		notifier pipeline.Notifier = hub
		natsPing handlers.NATSPinger
	)
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create attendance consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeAttendance(ctx, "live-view", func(_ context.Context, ev dto.AttendanceResponse) error {
			hub.BroadcastAttendance(ev)
			return nil
		})
		if err != nil {
			slog.Warn("start attendance consumer, falling back to direct delivery", "error", err)
		} else {
			notifier = producer
		}
		natsPing = producer
	}

	cache := gallery.NewCache(db)
	go cache.Run(ctx, cfg.Gallery.RefreshInterval)

	encoder := stream.NewEncoder(cfg.Stream.Boundary, cfg.Stream.JPEGQuality)
	frames := stream.NewBroadcaster(viewerBuffer)

	p := pipeline.New(cfg.Attendance, cfg.Stream.JPEGQuality, pipeline.Deps{
		Vision:    faces,
		Gallery:   cache,
		Writer:    db,
		Snapshots: minioStore,
		Notifier:  notifier,
		Encoder:   encoder,
		Output:    frames,
	})

	runner := pipeline.NewRunner(p, func(ctx context.Context) (capture.Source, error) {
		return capture.Open(ctx, cfg.Camera)
	}, cfg.Camera.MaxRetries, frames.Close)

	router := api.NewRouter(api.RouterConfig{
		DB:          db,
		MinIO:       minioStore,
		NATS:        natsPing,
		Gallery:     cache,
		Frames:      frames,
		ContentType: encoder.ContentType(),
		Runner:      runner,
		Hub:         hub,
	})

	// No WriteTimeout: live view responses stay open for the lifetime of the stream.
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	pipelineErr := make(chan error, 1)
	go func() {
		pipelineErr <- runner.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
	case err := <-pipelineErr:
		if err != nil {
			slog.Error("capture pipeline failed", "error", err)
			exitCode = 1
			break
		}
		// source exhausted: keep the admin surface up until asked to stop
		slog.Info("capture finished, serving admin API until shutdown")
		<-quit
	}

	slog.Info("shutting down attendance service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// The frame loop must leave the ONNX sessions before the deferred
	// faces.Close and ort.DestroyEnvironment run.
	if err := runner.Wait(shutdownCtx); err != nil {
		slog.Error("capture pipeline did not stop in time, exiting without cleanup", "error", err)
		os.Exit(1)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("attendance service stopped")
	if exitCode != 0 {
		shutdownCancel()
		os.Exit(exitCode)
	}
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

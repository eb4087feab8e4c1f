package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/magnumstream/studio-agent/internal/api"
	"github.com/magnumstream/studio-agent/internal/archive"
	"github.com/magnumstream/studio-agent/internal/capture"
	"github.com/magnumstream/studio-agent/internal/companion"
	"github.com/magnumstream/studio-agent/internal/config"
	"github.com/magnumstream/studio-agent/internal/db"
	"github.com/magnumstream/studio-agent/internal/jobs"
	"github.com/magnumstream/studio-agent/internal/logging"
	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/playback"
	"github.com/magnumstream/studio-agent/internal/render"
	"github.com/magnumstream/studio-agent/internal/session"
	"github.com/magnumstream/studio-agent/internal/studio"
	"github.com/magnumstream/studio-agent/internal/template"
	"github.com/magnumstream/studio-agent/internal/ui"
	"github.com/magnumstream/studio-agent/internal/watcher"
)

const (
	probeCacheSize = 256
	probeCacheTTL  = 10 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// a .env next to the binary is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read .env: %w", err)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for _, dir := range []string{cfg.DataDir(), cfg.CapturesDir(), cfg.ProjectsDir(), cfg.TemplatesDir(), cfg.RenderDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting magnumstream studio agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := studio.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║              MAGNUMSTREAM STUDIO AGENT v%-17s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Projects:   %-45s ║\n", logging.SanitizePath(cfg.ProjectsDir()))
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	svc := studio.NewService(repo, template.Default(), cfg.ProjectsDir(), cfg.Location(), logger)
	sess := session.New(repo)
	store := capture.NewVideoStore(database.Conn(), cfg.CapturesDir(), sess, logging.WithComponent(logger, "capture"))
	recorders := capture.NewRecorderSet(nil, store)
	uploader := companion.NewHTTPClient(cfg.CompanionURL(), authToken, logging.WithComponent(logger, "companion"))

	var (
		ffmpeg  media.FFmpeg
		prober  api.Prober
		devices api.DeviceLister
		doctor  *media.CachedDoctor
	)
	cli, err := media.NewCLI(media.Config{
		FFmpegPath:  cfg.FFmpegPath(),
		FFprobePath: cfg.FFprobePath(),
		ClipTimeout: cfg.ClipTimeout(),
		Logger:      logger,
	})
	if err != nil {
		logger.Warn("ffmpeg unavailable, clip generation disabled", "error", err)
	} else {
		cached := media.NewCachedProber(cli, probeCacheSize, probeCacheTTL)
		ffmpeg, prober, devices = cached, cached, cli
		doctor = media.NewCachedDoctor(cli, logger)

		initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if caps, err := doctor.Refresh(initCtx); err != nil {
			logger.Warn("initial media probe failed", "error", err)
		} else {
			logger.Info("media tools detected",
				"ffmpeg", caps.FFmpeg.Version,
				"ffprobe", caps.FFprobe.Version,
			)
		}
		initCancel()
	}

	var publisher archive.Publisher = archive.NopPublisher{}
	if s3cfg := cfg.S3(); s3cfg.Enabled() {
		p, err := archive.NewS3Publisher(s3cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to configure archive: %w", err)
		}
		publisher = p
		logger.Info("deliverable archive enabled", "bucket", s3cfg.Bucket, "region", s3cfg.Region)
	}

	renderLog := logging.WithComponent(logger, "render")
	generator := render.NewGenerator(svc, ffmpeg, cfg.TemplateProject(), renderLog)
	wizard := render.NewWizard(generator, svc, publisher, renderLog)
	runner := jobs.NewRunner(repo, wizard, logging.WithComponent(logger, "jobs"))
	retention := jobs.NewRetention(jobs.RetentionConfig{
		ProjectsDir: cfg.ProjectsDir(),
		RenderDir:   cfg.RenderDir(),
		CapturesDir: cfg.CapturesDir(),
		Period:      cfg.RetentionPeriod(),
		Captures:    store,
		Logger:      logging.WithComponent(logger, "retention"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchLog := logging.WithComponent(logger, "watcher")
	tracker := watcher.NewRenderTracker(ctx, svc, watcher.DefaultSettle, watchLog)
	renders := watcher.NewFSWatcher(watchLog)
	renders.OnChange(tracker.Handle)
	if err := renders.Watch(ctx, cfg.RenderDir()); err != nil {
		logger.Warn("render folder not watched", "path", cfg.RenderDir(), "error", err)
	}

	var background errgroup.Group
	background.Go(func() error {
		runner.Start(ctx)
		return nil
	})
	background.Go(func() error {
		retention.Start(ctx)
		return nil
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		Version:        config.Version,
		Service:        svc,
		Repository:     repo,
		Session:        sess,
		Store:          store,
		Recorders:      recorders,
		Uploader:       uploader,
		Generator:      generator,
		Runner:         runner,
		Retention:      retention,
		Devices:        devices,
		Prober:         prober,
		Doctor:         doctor,
		PlaybackServer: playback.NewServer(logger),
		TemplatesDir:   cfg.TemplatesDir(),
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger,
		StartTime:      startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner:  runner,
			Logger:  logger,
			Addr:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()),
			OpenURL: openBrowser,
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run(ctx)
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := renders.Stop(); err != nil {
		logger.Error("failed to stop render watcher", "error", err)
	}
	tracker.Wait()
	background.Wait()

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo studio.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, api.AuthTokenKey)
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, api.AuthTokenKey, token); err != nil {
		return "", err
	}

	return token, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/magnumstream/studio-agent/internal/capture"
	"github.com/magnumstream/studio-agent/internal/companion"
	"github.com/magnumstream/studio-agent/internal/jobs"
	"github.com/magnumstream/studio-agent/internal/media"
	"github.com/magnumstream/studio-agent/internal/playback"
	"github.com/magnumstream/studio-agent/internal/render"
	"github.com/magnumstream/studio-agent/internal/session"
	"github.com/magnumstream/studio-agent/internal/studio"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// DeviceLister enumerates the cameras the workstation exposes.
type DeviceLister interface {
	ListDevices(ctx context.Context) ([]media.Device, error)
}

// Prober reads the real duration of an uploaded scene video.
type Prober interface {
	Probe(ctx context.Context, path string) (*media.ProbeResult, error)
}

// ServerConfig carries every collaborator the handlers use. Optional ones
// (Devices, Prober, Doctor, Runner, Retention) may be nil.
type ServerConfig struct {
	Port           int
	Version        string
	Service        *studio.Service
	Repository     studio.Repository
	Session        *session.Context
	Store          *capture.VideoStore
	Recorders      *capture.RecorderSet
	Uploader       companion.Uploader
	Generator      *render.Generator
	Runner         *jobs.Runner
	Retention      *jobs.Retention
	Devices        DeviceLister
	Prober         Prober
	Doctor         *media.CachedDoctor
	PlaybackServer *playback.Server
	TemplatesDir   string
	AllowedOrigins []string
	Logger         *slog.Logger
	StartTime      time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  0, // scene uploads are large
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

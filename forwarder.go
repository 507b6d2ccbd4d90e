package forwarder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lamht/forwarder/internal/config"
	"github.com/lamht/forwarder/internal/logger"
	"github.com/lamht/forwarder/internal/metrics"
	"github.com/lamht/forwarder/internal/pipeline"
	"github.com/lamht/forwarder/internal/publish"
	"github.com/lamht/forwarder/internal/publish/factory"
	"github.com/lamht/forwarder/internal/server"
	"github.com/lamht/forwarder/internal/supervisor"
	"github.com/lamht/forwarder/internal/tunnelurl"
)

// Re-export core types for external consumers.

type Config = config.Config

type Status = supervisor.Status

type Snapshot = pipeline.Snapshot

type Publisher = publish.Publisher

// LoadConfig reads the configuration from the environment and an optional
// TOML file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Options overrides the process-level collaborators of a Service.
type Options struct {
	// Logger replaces the logger built from Config.Log.
	Logger *slog.Logger
	// Stdout receives log records when Logger is nil. Defaults to os.Stdout.
	Stdout io.Writer
	// Stderr receives the tunnel's stderr. Defaults to os.Stderr.
	Stderr io.Writer
	// Publisher replaces the one built from Config.StoreURL.
	Publisher publish.PublishCloser
	// Registerer receives the metric collectors. Defaults to the global one.
	Registerer prometheus.Registerer
}

// Service runs the tunnel, watches its output and publishes the detected URL.
type Service struct {
	cfg     *Config
	log     *slog.Logger
	pub     publish.PublishCloser
	pipe    *pipeline.Pipeline
	sup     *supervisor.Supervisor
	srv     *http.Server
	closers []io.Closer
}

// New builds a Service from c. Nothing is started until Run.
func New(c *Config, opts Options) (*Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: c}

	s.log = opts.Logger
	if s.log == nil {
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		l, closer := logger.New(c.Log, stdout)
		s.log = l
		s.closers = append(s.closers, closer)
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if err := metrics.Register(reg); err != nil {
		return nil, err
	}

	extractor, err := tunnelurl.NewExtractor(c.URLPattern)
	if err != nil {
		return nil, err
	}

	s.pub = opts.Publisher
	if s.pub == nil {
		s.pub, err = factory.NewPublisherFromURL(c.StoreURL, c.Table, c.PublishTimeout)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	s.closers = append(s.closers, s.pub)
	s.pipe = pipeline.New(s.log, extractor, s.pub)

	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if w := c.StderrLog.Writer(); w != nil {
		stderr = io.MultiWriter(stderr, w)
		s.closers = append(s.closers, w)
	}
	s.sup = supervisor.New(c.TunnelSpec(), supervisor.Options{
		Logger: s.log,
		OnLine: s.pipe.HandleLine,
		Stderr: stderr,
	})

	if c.StatusListen != "" {
		var g prometheus.Gatherer
		if gg, ok := reg.(prometheus.Gatherer); ok {
			g = gg
		}
		s.srv = server.NewServer(c.StatusListen, server.NewRouter(s.pipe, s.sup, "", g))
	}
	return s, nil
}

// Run supervises the tunnel until ctx is cancelled. The status server, when
// configured, runs alongside and is shut down with it.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Forwarder starting",
		slog.String("forward", s.cfg.Forward),
		slog.String("table", s.cfg.Table),
		slog.String("status_listen", s.cfg.StatusListen))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sup.Run(gctx) })

	if s.srv != nil {
		g.Go(func() error {
			if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.srv.Shutdown(shutdownCtx)
		})
	}
	return g.Wait()
}

// HandleLine feeds one line of tunnel output into the pipeline.
func (s *Service) HandleLine(line string) { s.pipe.HandleLine(line) }

// Wait blocks until in-flight publishes have finished.
func (s *Service) Wait() { s.pipe.Wait() }

// Status returns the supervised tunnel state.
func (s *Service) Status() Status { return s.sup.Status() }

// Snapshot returns the publish state.
func (s *Service) Snapshot() Snapshot { return s.pipe.Snapshot() }

// Handler returns the status router for embedding in another server.
func (s *Service) Handler(basePath string) http.Handler {
	return server.NewRouter(s.pipe, s.sup, basePath, nil).Handler()
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.log }

// Close releases the publisher and log files.
func (s *Service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil && s.log != nil {
			s.log.Warn("close failed", slog.Any("error", err))
		}
	}
	s.closers = nil
}

// PublishOnce writes u to the configured store.
func PublishOnce(ctx context.Context, c *Config, u string) error {
	p, err := factory.NewPublisherFromURL(c.StoreURL, c.Table, c.PublishTimeout)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()
	return p.Publish(ctx, tunnelurl.TunnelURL(u))
}

// RegisterMetrics registers the forwarder collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

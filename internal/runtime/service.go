package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nvidia/fleet-state-controller/internal/logger"
)

const DefaultShutdownTimeout = 30 * time.Second

// AuxiliaryServer is implemented by HTTP servers running alongside the
// controllers (metrics scrape endpoint, health checks).
type AuxiliaryServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Port() int
}

// ControllerRunner is one controller's lifecycle loop (see
// internal/controller.Controller.Run). It must block until ctx is
// cancelled, finishing any in-flight iteration first, then return.
type ControllerRunner interface {
	Run(ctx context.Context) error
	ControllerType() string
}

// Service orchestrates startup of N controllers plus an optional metrics
// server, and coordinates their graceful shutdown.
type Service struct {
	shutdownTimeout time.Duration
	metricsServer   AuxiliaryServer
	serveOnce       sync.Once
	served          bool
}

func New(shutdownTimeout time.Duration) *Service {
	if shutdownTimeout == 0 {
		shutdownTimeout = DefaultShutdownTimeout
	}
	return &Service{shutdownTimeout: shutdownTimeout}
}

func (s *Service) SetShutdownTimeout(d time.Duration) {
	if d == 0 {
		d = DefaultShutdownTimeout
	}
	s.shutdownTimeout = d
}

// SetMetricsServer must be called before Serve().
func (s *Service) SetMetricsServer(server AuxiliaryServer) {
	if s.served {
		panic("cannot set metrics server after Serve() has been called")
	}
	s.metricsServer = server
	if server != nil {
		logger.Info("metrics server registered", "port", server.Port())
	}
}

// Serve starts every controller and blocks until ctx is cancelled or a
// controller returns a fatal (non-context) error.
func (s *Service) Serve(ctx context.Context, controllers []ControllerRunner) error {
	var err error
	s.serveOnce.Do(func() {
		s.served = true
		err = s.serve(ctx, controllers)
	})
	return err
}

func (s *Service) serve(ctx context.Context, controllers []ControllerRunner) error {
	logger.Info("starting fleet state controller runtime", "controllers", len(controllers))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, len(controllers)+1)

	var wg sync.WaitGroup
	for _, c := range controllers {
		wg.Add(1)
		go func(c ControllerRunner) {
			defer wg.Done()
			if err := c.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Error("controller exited with error", "controller_type", c.ControllerType(), "error", err)
				errChan <- fmt.Errorf("controller %s: %w", c.ControllerType(), err)
			}
		}(c)
	}

	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.Start(runCtx); err != nil {
				logger.Error("metrics server error", "error", err)
				errChan <- err
			}
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", "reason", ctx.Err())
		shutdownErr = ctx.Err()
	case err := <-errChan:
		logger.Error("runtime failing over to shutdown", "error", err)
		shutdownErr = err
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownTimeout):
		logger.Warn("timed out waiting for controllers to stop", "timeout", s.shutdownTimeout)
	}

	if s.metricsServer != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer stopCancel()
		if err := s.metricsServer.Stop(stopCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	logger.Info("fleet state controller runtime stopped")
	return shutdownErr
}

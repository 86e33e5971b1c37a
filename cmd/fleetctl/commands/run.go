package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nvidia/fleet-state-controller/internal/config"
	"github.com/nvidia/fleet-state-controller/internal/controller"
	"github.com/nvidia/fleet-state-controller/internal/logger"
	"github.com/nvidia/fleet-state-controller/internal/metrics"
	"github.com/nvidia/fleet-state-controller/internal/runtime"
	fleetstore "github.com/nvidia/fleet-state-controller/internal/store"
	"github.com/nvidia/fleet-state-controller/internal/telemetry"
	"github.com/nvidia/fleet-state-controller/internal/worklock"
	"github.com/nvidia/fleet-state-controller/pkg/fleet/managedhost"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fleet state controller",
	Long: `Run loads configuration, opens the store, registers every known
controller type, and serves until interrupted (SIGINT/SIGTERM).

Examples:
  fleetctl run
  fleetctl run --config /etc/fleetctl/config.yaml
  FLEETCTL_LOGGING_LEVEL=DEBUG fleetctl run`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "fleet-state-controller",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "fleet-state-controller",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	db, err := fleetstore.Open(fleetstore.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.AutoMigrate(managedhost.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate managed host tables: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open work-lock connection pool: %w", err)
	}
	defer pool.Close()

	lock := worklock.New(pool)
	journal := fleetstore.NewJournal(db)

	registry := prometheus.NewRegistry()
	var emitter metrics.Emitter = metrics.NoOp{}
	if cfg.Metrics.Enabled {
		emitter = metrics.NewPrometheus(registry, cfg.Metrics.FreshnessWindow)
	}

	iterationConfig := controller.Config{
		IterationTime:         cfg.Controller.IterationTime,
		MaxConcurrency:        int64(cfg.Controller.MaxConcurrency),
		MaxObjectHandlingTime: cfg.Controller.MaxObjectHandlingTime,
		LockLeaseTTL:          cfg.Controller.LockLeaseTTL,
	}

	hostController, err := managedhost.New(db, lock, journal, &unhealthyDPUClient{}, emitter, controller.NewHookBus(), iterationConfig)
	if err != nil {
		return fmt.Errorf("failed to build managed host controller: %w", err)
	}

	svc := runtime.New(cfg.ShutdownTimeout)
	if cfg.Metrics.Enabled {
		svc.SetMetricsServer(metrics.NewServer(cfg.Metrics.Port, registry))
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("fleet state controller starting",
		"database", "postgres", "metrics_enabled", cfg.Metrics.Enabled)

	err = svc.Serve(runCtx, []runtime.ControllerRunner{hostController})
	if err != nil && runCtx.Err() == nil {
		return fmt.Errorf("runtime exited with error: %w", err)
	}
	return nil
}

// unhealthyDPUClient is a placeholder DPUClient until this binary is
// wired to a real fleet inventory/DPU management API; every host stalls
// in Configuring (and reports via the SLA gauge) rather than silently
// reporting success it never verified.
type unhealthyDPUClient struct{}

func (*unhealthyDPUClient) ApplyConfig(ctx context.Context, dpuID, desiredVersion string) error {
	return nil
}

func (*unhealthyDPUClient) HealthCheck(ctx context.Context, dpuID string) (bool, string, error) {
	return false, "", nil
}

package main

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Azure/go-asyncstep"
	"github.com/Azure/go-asyncstep/diagnostics"
	"github.com/Azure/go-asyncstep/internal/config"
	"github.com/Azure/go-asyncstep/persist"
	"github.com/Azure/go-asyncstep/resource"
)

const (
	stepName         = "backup-resources"
	manifestKind     = persist.Kind("manifest")
	manifestFileName = "manifest.yaml"
	settingsFileName = "controller.yaml"
)

type backupStatus struct {
	Files  int
	Bytes  int64
	Failed []string
}

type manifestCategory struct {
	Name    string `yaml:"name"`
	Skipped bool   `yaml:"skipped,omitempty"`
	Files   int    `yaml:"files"`
	Dirs    int    `yaml:"dirs"`
	Bytes   int64  `yaml:"bytes"`
	Error   string `yaml:"error,omitempty"`
}

// manifest describes a backup, it is stored next to the copied resources.
type manifest struct {
	ExecutionID string             `yaml:"executionId"`
	Source      string             `yaml:"source"`
	CreatedAt   time.Time          `yaml:"createdAt"`
	Categories  []manifestCategory `yaml:"categories"`
}

func (manifest) Kind() persist.Kind { return manifestKind }

// controllerSettings records how the backup was bounded. It has no loader of
// its own and is stored with the generic encoding.
type controllerSettings struct {
	TimeoutMillis      int64  `yaml:"timeoutMillis"`
	PollIntervalMillis int64  `yaml:"pollIntervalMillis"`
	InterruptOnCancel  bool   `yaml:"interruptOnCancel"`
	PoolCapacity       int    `yaml:"poolCapacity"`
	PoolPolicy         string `yaml:"poolPolicy"`
}

func backupUnit(sync *resource.Synchronizer, persister *persist.Persister, cfg config.Config) asyncstep.UnitOfWork[backupStatus] {
	return func(ctx context.Context, _ asyncstep.JobContext) (*backupStatus, error) {
		summary := sync.Sync(ctx, cfg.Source, cfg.Target)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := manifest{
			ExecutionID: diagnostics.ExecutionID(ctx),
			Source:      cfg.Source,
			CreatedAt:   time.Now().UTC(),
		}
		status := &backupStatus{}
		for _, r := range summary.Categories {
			mc := manifestCategory{Name: r.Category, Skipped: r.Skipped, Files: r.Files, Dirs: r.Dirs, Bytes: r.Bytes}
			if r.Err != nil {
				mc.Error = r.Err.Error()
				status.Failed = append(status.Failed, r.Category)
			}
			m.Categories = append(m.Categories, mc)
			status.Files += r.Files
			status.Bytes += r.Bytes
		}

		if err := persister.Write(ctx, m, cfg.Target, manifestFileName); err != nil {
			return nil, err
		}
		settings := controllerSettings{
			TimeoutMillis:      cfg.TimeoutMillis,
			PollIntervalMillis: cfg.PollIntervalMillis,
			InterruptOnCancel:  cfg.InterruptOnCancel,
			PoolCapacity:       cfg.Pool.Capacity,
			PoolPolicy:         cfg.Pool.Policy,
		}
		if err := persister.Write(ctx, settings, cfg.Target, settingsFileName); err != nil {
			return nil, err
		}
		return status, nil
	}
}

// runBackup wires the controller for cfg and runs one backup step. Only
// configuration and startup failures are returned as errors, the step result
// is in the execution outcome.
func runBackup(ctx context.Context, cfg config.Config, jc asyncstep.JobContext, logger *logrus.Logger) (*asyncstep.Execution[backupStatus], error) {
	sinks := diagnostics.Multi{diagnostics.LogSink{Logger: logger}}
	if cfg.DiagnosticsDB != "" {
		store, err := diagnostics.NewSQLiteStore(cfg.DiagnosticsDB, logger)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	registry := prometheus.NewRegistry()
	metrics, err := asyncstep.NewMetrics(registry)
	if err != nil {
		return nil, err
	}
	if cfg.MetricsAddr != "" {
		srv := newMetricsServer(cfg.MetricsAddr, registry, logger)
		if err := srv.Start(); err != nil {
			return nil, err
		}
		defer srv.Shutdown(context.WithoutCancel(ctx))
	}

	pool, err := asyncstep.NewWorkerPool(cfg.Pool.Capacity, asyncstep.PoolPolicy(cfg.Pool.Policy))
	if err != nil {
		return nil, err
	}

	sync, err := resource.NewSynchronizer(resource.DefaultRegistry(),
		resource.WithDiagnostics(sinks),
		resource.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	loaders, err := persist.NewRegistry(persist.NewYAMLLoader[manifest](manifestKind, manifestFileName))
	if err != nil {
		return nil, err
	}
	persister := persist.NewPersister(loaders, sinks)

	options := []asyncstep.ControllerOptionPreparer{
		asyncstep.WithStepName(stepName),
		asyncstep.WithPollInterval(cfg.PollInterval()),
		asyncstep.WithWorkerPool(pool),
		asyncstep.WithDiagnostics(sinks),
		asyncstep.WithLogger(logger),
		asyncstep.WithMetrics(metrics),
		asyncstep.WithInterruptOnCancel(cfg.InterruptOnCancel),
	}

	controller, err := asyncstep.NewController(cfg.Timeout(), backupUnit(sync, persister, cfg), options...)
	if err != nil {
		return nil, err
	}

	return controller.Run(ctx, jc), nil
}

// outcomeError picks the error describing a failed outcome.
func outcomeError(o asyncstep.Outcome[backupStatus]) error {
	if o.Err != nil {
		return o.Err
	}
	return errors.New(string(o.Kind))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Azure/go-asyncstep"
	"github.com/Azure/go-asyncstep/internal/config"
)

var (
	cfg    config.Config
	logger *logrus.Logger

	flagConfigFilePath string // value of --config flag
)

func main() {
	runCmd.Flags().StringVar(&flagConfigFilePath, "config", "asyncstep.yaml", "Config file to load")

	// never print messages, main logs them
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("asyncstep failed")
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "asyncstep",
	Short:        "Runs a catalog backup step under a bounded async execution controller",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "run copies the data directory resources into the backup target",
	PreRunE: loadConfig,
	RunE:    doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version prints the build information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "asyncstep: version info not available")
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "asyncstep: %s\n", info.Main.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(cmd.OutOrStdout(), "commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(cmd.OutOrStdout(), "date:      %s\n", s.Value)
			}
		}
	},
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.LoadFile(flagConfigFilePath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", flagConfigFilePath, err)
	}
	logger = config.NewLogger(cmd.ErrOrStderr(), cfg.Log)
	return nil
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	job := asyncstep.NewJobState()
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	signalCtx, stopForwarding := context.WithCancel(ctx)
	defer stopForwarding()
	go forwardSignals(signalCtx, signals, job, logger)

	execution, err := runBackup(ctx, cfg, job, logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s in %s\n", execution.StepName, execution.ID, execution.Outcome.Kind, execution.Duration)
	if execution.Outcome.Failed() {
		return fmt.Errorf("backup did not succeed: %w", outcomeError(execution.Outcome))
	}
	return nil
}

// forwardSignals maps SIGINT to a cooperative stop and SIGTERM to a step
// termination request until ctx is done.
func forwardSignals(ctx context.Context, signals <-chan os.Signal, job *asyncstep.JobState, logger logrus.FieldLogger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			logger.WithField("signal", sig.String()).Warn("signal received")
			switch sig {
			case syscall.SIGINT:
				job.RequestStop()
			case syscall.SIGTERM:
				job.RequestTerminate("received " + sig.String())
			}
		}
	}
}

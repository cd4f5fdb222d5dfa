package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/camcore/cmd/devices"
	"github.com/tphakala/camcore/cmd/run"
	"github.com/tphakala/camcore/internal/buildinfo"
	"github.com/tphakala/camcore/internal/conf"
	"github.com/tphakala/camcore/internal/errors"
	"github.com/tphakala/camcore/internal/logger"
)

const sentryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "camcore",
		Short:         "camcore camera capture core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	runCmd := run.Command(settings)
	devicesCmd := devices.Command()
	versionCmd := versionCommand()

	rootCmd.AddCommand(runCmd, devicesCmd, versionCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version needs neither configuration nor logging
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		var (
			loaded *conf.Settings
			err    error
		)
		if configFile != "" {
			loaded, err = conf.LoadFrom(viper.GetViper(), configFile)
		} else {
			loaded, err = conf.Load()
		}
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initialize(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Sentry.Enabled {
			errors.FlushSentry(sentryFlushTimeout)
		}
		if central != nil {
			return central.Close()
		}
		return nil
	}

	return rootCmd
}

// initialize sets up logging and error telemetry from the loaded settings
func initialize(settings *conf.Settings) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	info := buildinfo.Current()
	log := central.Module("main")
	log.Info("starting camcore",
		logger.String("version", info.Version()),
		logger.String("build_date", info.BuildDate()))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, info.Release()); err != nil {
			log.Warn("error telemetry disabled", logger.Error(err))
		}
	}

	return central, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default searches ./ and $HOME/.config/camcore)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Current().String())
		},
	}
}

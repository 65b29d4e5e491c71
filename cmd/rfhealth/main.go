// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/mutker/rfhealth/internal/config"
	"codeberg.org/mutker/rfhealth/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rfhealth:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rfhealth",
		Short:         "Poll Redfish management controllers and normalize their hardware health",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "Configuration file (default $RFHEALTH_CONFIG or /etc/rfhealth/rfhealth.toml)")
	pf.String("log-level", string(config.DefaultLogLevel), "Log level: debug, info, warning, error")
	pf.Bool("debug", false, "Enable debugging mode")
	pf.Bool("verbose", false, "Enable verbose logging")
	pf.Int("pool-size", config.DefaultPoolSize, "Devices polled concurrently")
	pf.Duration("poll-timeout", config.DefaultPollTimeout, "Deadline for collecting one device")
	pf.Duration("request-timeout", config.DefaultRequestTimeout, "Deadline for one HTTP request")
	pf.String("auth-mode", config.DefaultAuthMode, "Authentication mode: session or basic")
	pf.String("env-file", "", "Env file with device secrets (default .env if present)")

	load := func(cmd *cobra.Command) (*app, error) {
		opts := []config.Option{config.WithFlags(cmd.Flags())}
		if configPath != "" {
			opts = append(opts, config.WithConfigFile(configPath))
		}

		cfg, err := config.Load(opts...)
		if err != nil {
			return nil, err
		}

		logger.Init(cfg.Level(), logger.IsService())
		logger.Debug().Str("file", cfg.ConfigFile).Int("devices", len(cfg.Devices)).Msg("Config loaded")

		return newApp(cfg, logger.Default(), cmd.OutOrStdout())
	}

	root.AddCommand(newPollCommand(load), newWatchCommand(load), newVersionCommand())

	return root
}

func newPollCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Poll every configured device once and print a summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return a.pollOnce(ctx)
		},
	}
}

func newWatchCommand(load func(*cobra.Command) (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll every configured device on an interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return a.watch(ctx)
		},
	}

	f := cmd.Flags()
	f.Duration("interval", config.DefaultInterval, "Interval between polling rounds")
	f.String("listen", "", "Serve the latest-state API on this address, e.g. :9100")
	f.String("pid-file", config.DefaultPIDFile, "PID file guarding against a second instance")

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rfhealth %s\n", version)
		},
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigs)

		select {
		case <-sigs:
			logger.Info().Msg("Received termination signal.")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

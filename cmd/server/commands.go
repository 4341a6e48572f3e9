package main

import (
	"context"
	"fmt"

	"github.com/imrenagi/go-pastefile/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

// NewRootCommand returns the daemon command with its maintenance subcommands.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:   "pastefile",
		Short: "Share files over HTTP with curl.",
		Long: `Pastefile stores uploaded files under their md5 and serves them back until
they expire. Several daemons may share the same metadata file.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"file of PASTEFILE_* variables loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "",
		"log level, overrides PASTEFILE_LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newSweepCommand(flags))
	rootCmd.AddCommand(newPurgeCommand(flags))
	return rootCmd
}

// setup loads the configuration, initializes the logger and builds the app.
func setup(ctx context.Context, flags *rootFlags) (server.Config, *server.App, error) {
	cfg, err := server.LoadConfig(flags.configPath)
	if err != nil {
		return server.Config{}, nil, err
	}
	level := cfg.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	_ = server.InitializeLogger(level)

	app, err := server.NewApp(ctx, cfg, afero.NewOsFs())
	if err != nil {
		return server.Config{}, nil, err
	}
	return cfg, app, nil
}

func newServeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, app, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Error().Err(err).Msg("failed to release resources")
				}
			}()

			srv := server.New(server.Opts{
				Config:  cfg,
				Files:   app.Files,
				Janitor: app.Files,
			})
			return srv.Run(ctx)
		},
	}
}

func newSweepCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove the files older than PASTEFILE_EXPIRE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, app, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := app.Files.ExpirySweep(ctx, cfg.ExpireDuration())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired file(s) removed\n", removed)
			return nil
		},
	}
}

func newPurgeCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop the records whose file no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, app, err := setup(ctx, flags)
			if err != nil {
				return err
			}
			defer app.Close()

			purged, err := app.Files.OrphanPurge(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d dangling record(s) purged\n", purged)
			return nil
		},
	}
}

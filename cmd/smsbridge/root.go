package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/spachava753/smsbridge/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type app struct {
	verbose bool
	format  string

	cfg    *config.Config
	logger zerolog.Logger
}

// newRootCmd creates the root smsbridge command with all subcommands attached.
func newRootCmd() *cobra.Command {
	a := &app{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   "smsbridge",
		Short: "Permissioned SMS command router",
		Long: "smsbridge reads, writes and sends SMS through a platform backend.\n" +
			"Every command passes the permission gate first and prints one response.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	cmd.SetVersionTemplate("smsbridge {{.Version}}\n")

	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.format, "format", formatJSON, "output format: json or yaml")

	cmd.AddCommand(
		newWriteCmd(a),
		newListCmd(a),
		newSendCmd(a),
		newPermissionsCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func (a *app) init(logOut io.Writer) error {
	switch a.format {
	case formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown format %q", a.format)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(logOut, cfg.LogFormat, cfg.LogLevel, a.verbose)
	return nil
}

func newLogger(out io.Writer, format string, level string, verbose bool) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(format, "json") {
		logger = zerolog.New(out).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return logger.Level(lvl)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the smsbridge version",
		Args:  cobra.NoArgs,
		// Skip config loading; version must work without a valid environment.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "smsbridge %s\n", version)
			return nil
		},
	}
}

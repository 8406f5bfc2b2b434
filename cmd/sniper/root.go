package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"solana-slot-sniper/internal/config"
)

// app carries what every subcommand shares after flag parsing.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sniper",
		Short:         "Slot-synchronized launch sniper",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setupLogging(); err != nil {
				return err
			}
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file (env SNIPER_* overrides)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	pf.BoolVar(&a.logJSON, "log-json", false, "emit JSON logs instead of console output")

	root.AddCommand(
		runCmd(a),
		replayCmd(a),
		simulateCmd(a),
		monitorCmd(a),
		analyzeCmd(a),
		ladderCmd(a),
		migrateCmd(a),
		configCmd(a),
	)
	return root
}

func (a *app) setupLogging() error {
	level, err := zerolog.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", a.logLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	if a.logJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

// logger returns the process logger tagged with the subcommand.
func (a *app) logger(cmd string) *zerolog.Logger {
	l := log.Logger.With().Str("cmd", cmd).Logger()
	return &l
}

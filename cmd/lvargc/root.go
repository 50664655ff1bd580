// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"latentgc/internal/config"
	"latentgc/internal/logging"
)

var (
	configPath string
	envFile    string
	verbosity  int
	quiet      bool
	logFormat  string

	// Set by the persistent pre-run
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lvargc",
	Short: "Latent VAR Granger causality from noisy multichannel recordings",
	Long: `lvargc fits a sparse latent vector autoregression to multichannel
observations through a known mixing matrix and tests every directed region
link with a reduced model. Deviances, biases and the fitted models are
stored in a compressed result file.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with LVARGC_ overrides")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all logs")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json); overrides the config")
}

// setup loads the configuration and builds the logger. A -v flag or --quiet
// takes precedence over the configured level.
func setup(cmd *cobra.Command, _ []string) error {
	c, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}
	cfg = c

	lc := cfg.Logging
	if logFormat != "" {
		lc.Format = logFormat
	}
	lc.Output = cmd.ErrOrStderr()
	if verbosity > 0 || quiet {
		logger = logging.NewLevel(lc, logging.LevelFromVerbosity(verbosity, quiet))
	} else {
		logger = logging.New(lc)
	}
	return nil
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-forum-auth/internal/config"
	"github.com/goliatone/go-forum-auth/internal/logging"
)

var (
	envFile     string
	flagAddr    string
	flagDBURL   string
	flagLogLvl  string
	flagLogFile string

	rootCmd = &cobra.Command{
		Use:   "forumauthd",
		Short: "Authentication service for the forum",
		Long: `
Usage: forumauthd <command> [options]

  forumauthd issues, validates and revokes the forum session tokens.

      $ forumauthd migrate --database-url=postgres://forum@localhost/forum
      $ forumauthd serve --addr=:8080
  `,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file, ignored when missing")
	rootCmd.PersistentFlags().StringVar(&flagDBURL, "database-url", "", "Database URL, overrides DATABASE_URL")
	rootCmd.PersistentFlags().StringVar(&flagLogLvl, "log-level", "", "Log level, overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&flagLogFile, "log-file", "", "Rotated log file, overrides LOG_FILE")

	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address, overrides HTTP_ADDRESS")

	rootCmd.AddCommand(serveCmd, migrateCmd, purgeCmd)
}

// loadConfig reads the environment and applies the command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("database-url") {
		cfg.DatabaseURL = flagDBURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLvl
	}
	if flags.Changed("log-file") {
		cfg.LogFile = flagLogFile
	}
	if flags.Changed("addr") {
		cfg.Address = flagAddr
	}

	return cfg, nil
}

func buildLogger(cfg *config.Config) *logging.ZerologLogger {
	lc := logging.DefaultConfig()
	lc.Level = cfg.LogLevel
	lc.Format = cfg.LogFormat
	lc.Environment = cfg.Environment
	if cfg.LogFile != "" {
		lc.File = &logging.FileConfig{
			Filename:   cfg.LogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
	}
	return logging.New(lc)
}

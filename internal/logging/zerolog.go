package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables rotated file output
type FileConfig struct {
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

type Config struct {
	Level string
	// Format is "console" for human readable output, anything else is JSON
	Format      string
	Environment string
	Outputs     []io.Writer
	File        *FileConfig
}

func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "console",
		Environment: "development",
		Outputs:     []io.Writer{os.Stdout},
	}
}

// ZerologLogger implements auth.Logger on top of zerolog
type ZerologLogger struct {
	logger     zerolog.Logger
	fileWriter *lumberjack.Logger
}

// New creates a ZerologLogger
func New(cfg *Config) *ZerologLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var writers []io.Writer
	var fileWriter *lumberjack.Logger

	if cfg.File != nil && cfg.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Filename), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
		} else {
			fileWriter = &lumberjack.Logger{
				Filename:   cfg.File.Filename,
				MaxSize:    cfg.File.MaxSize,
				MaxAge:     cfg.File.MaxAge,
				MaxBackups: cfg.File.MaxBackups,
				Compress:   cfg.File.Compress,
				LocalTime:  true,
			}
			writers = append(writers, fileWriter)
		}
	}

	for _, output := range cfg.Outputs {
		if cfg.Format == "console" && cfg.Environment != "production" {
			writers = append(writers, zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: "15:04:05",
			})
		} else {
			writers = append(writers, output)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(writer).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("module", "auth").
		Logger()

	return &ZerologLogger{
		logger:     logger,
		fileWriter: fileWriter,
	}
}

// ParseLevel maps a level name to zerolog, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *ZerologLogger) Debug(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Info(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warn(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Error(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

// With returns a child logger carrying a subsystem field
func (l *ZerologLogger) With(subsystem string) *ZerologLogger {
	return &ZerologLogger{
		logger:     l.logger.With().Str("subsystem", subsystem).Logger(),
		fileWriter: l.fileWriter,
	}
}

// Zerolog exposes the underlying logger, used for the fiber request log
func (l *ZerologLogger) Zerolog() zerolog.Logger {
	return l.logger
}

// Close flushes and closes the rotated file, if any
func (l *ZerologLogger) Close() error {
	if l.fileWriter != nil {
		return l.fileWriter.Close()
	}
	return nil
}

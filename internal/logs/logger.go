package logs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deskhost/deskhost/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log level constants
const (
	LogLevelTrace = "trace"
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// DefaultLogConfig returns default logging configuration
func DefaultLogConfig() *config.LogConfig {
	return &config.LogConfig{
		Level:         LogLevelInfo,
		EnableFile:    false,
		EnableConsole: true,
		Filename:      "main.log",
		MaxSize:       10, // 10MB
		MaxBackups:    5,
		MaxAge:        30, // days
		Compress:      true,
		JSONFormat:    false,
	}
}

// Redactor masks credentials in log output. Returned by SetupLogger so callers
// can register secrets resolved at runtime.
type Redactor interface {
	RegisterSecret(value string)
}

// SetupLogger creates a logger with file and console outputs based on configuration.
// Every core is wrapped in a redacting core.
func SetupLogger(cfg *config.LogConfig) (*zap.Logger, Redactor, error) {
	if cfg == nil {
		cfg = DefaultLogConfig()
	}

	level := ParseLevel(cfg.Level)

	var cores []zapcore.Core

	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(getConsoleEncoder(), zapcore.AddSync(os.Stderr), level))
	}

	if cfg.EnableFile {
		fileCore, err := createFileCore(cfg, level)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create file core: %w", err)
		}
		cores = append(cores, fileCore)
	}

	if len(cores) == 0 {
		return nil, nil, fmt.Errorf("no log outputs configured")
	}

	redacting := NewRedactingCore(zapcore.NewTee(cores...))

	return zap.New(redacting, zap.AddCaller()), redacting, nil
}

// SetupCommandLogger creates a logger for CLI subcommands. The host process
// defaults to INFO, one-shot commands to WARN.
func SetupCommandLogger(hostCommand bool, logLevel string, logToFile bool, logDir string) (*zap.Logger, Redactor, error) {
	level := LogLevelWarn
	if hostCommand {
		level = LogLevelInfo
	}
	if logLevel != "" {
		level = logLevel
	}

	cfg := DefaultLogConfig()
	cfg.Level = level
	cfg.EnableFile = logToFile
	cfg.LogDir = logDir

	return SetupLogger(cfg)
}

// ParseLevel maps a configured level name onto zap levels. Unknown names fall back to info.
func ParseLevel(name string) zapcore.Level {
	switch strings.ToLower(name) {
	case LogLevelTrace, LogLevelDebug:
		return zap.DebugLevel
	case LogLevelWarn:
		return zap.WarnLevel
	case LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// createFileCore creates a rotating file core
func createFileCore(cfg *config.LogConfig, level zapcore.Level) (zapcore.Core, error) {
	logFilePath, err := GetLogFilePathWithDir(cfg.LogDir, cfg.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to get log file path: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	encoder := getFileEncoder()
	if cfg.JSONFormat {
		encoder = getJSONEncoder()
	}

	return zapcore.NewCore(encoder, zapcore.AddSync(rotator), level), nil
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getFileEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	encoderConfig.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJSONEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

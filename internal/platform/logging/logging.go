// Package logging constructs the *zap.Logger shared by every component in
// this host, mirroring the reference corpus's pattern of injecting a single
// structured logger rather than routing through the standard library's log
// package.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's level, encoding, and static service field.
// Output always goes to stdout.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// JSON selects structured JSON output; otherwise a human-readable
	// console encoder is used.
	JSON bool
	// Service is attached to every log line as a static field.
	Service string
}

// DefaultConfig returns the development-friendly defaults: info level,
// console encoding.
func DefaultConfig() Config {
	return Config{Level: "info", JSON: false, Service: "functions-host"}
}

// New builds a *zap.Logger from cfg. An unrecognized Level falls back to
// info rather than failing startup, since a bad log-level value should
// never prevent the host from running.
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stdout)), level)
	logger := zap.New(core, zap.AddCaller())
	if cfg.Service != "" {
		logger = logger.With(zap.String("service", cfg.Service))
	}
	return logger, nil
}

// Must is New, panicking on error; used at host startup where a logger
// construction failure is unrecoverable anyway.
func Must(cfg Config) *zap.Logger {
	logger, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return logger
}

package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cnlog "github.com/prividentity/cryptonet-go/pkg/cryptonet/logging"
)

// Options selects the logger's level, encoding and optional file sink.
type Options struct {
	Level  string
	Format string // "json" or "console"

	// File, when set, receives a copy of every entry. It is rotated every
	// RotationTime and rotated files older than MaxAge are removed; File
	// itself is kept as a link to the current one.
	File         string
	RotationTime time.Duration
	MaxAge       time.Duration
}

// New builds a structured logger writing to stderr and, optionally, a
// rotating file.
func New(opts Options) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch opts.Format {
	case "", "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("logging: unknown format %q", opts.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	if opts.File != "" {
		w, err := rotating(opts)
		if err != nil {
			return nil, err
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(w), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func rotating(opts Options) (*rotatelogs.RotateLogs, error) {
	rotation := opts.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	w, err := rotatelogs.New(
		opts.File+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(opts.File),
		rotatelogs.WithRotationTime(rotation),
		rotatelogs.WithMaxAge(maxAge),
	)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
	}
	return w, nil
}

// WithOperation enriches the logger with operation and request identifiers.
func WithOperation(logger *zap.Logger, operation, requestID string) *zap.Logger {
	fields := []zap.Field{zap.String("operation", operation)}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	return logger.With(fields...)
}

// ForLibrary hands logger to the cryptonet wrapper.
func ForLibrary(logger *zap.Logger) cnlog.Logger {
	return cnlog.NewZap(logger.Named("cryptonet"))
}

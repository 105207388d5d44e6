// Package logger builds the zap logger used by the recordstore binaries.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the minimum level and the output format ("json" or
// "console").
type Config struct {
	Level  string
	Format string
}

// New creates a zap.Logger writing to stderr. Called once at startup; an
// unknown level falls back to info.
func New(cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if cfg.Format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	ws := zapcore.Lock(zapcore.AddSync(os.Stderr))
	core := zapcore.NewCore(enc, ws, level)
	return zap.New(core, zap.AddCaller()), nil
}

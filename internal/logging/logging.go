// Package logging builds the process logger: console output plus the
// per-router rotating log file.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openbmp/mrt2bmp/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Factory hands out subsystem loggers derived from one root logger, with
// optional per-subsystem level restrictions from configuration.
type Factory struct {
	root       *zap.Logger
	rootLevel  zapcore.Level
	subsystems map[string]zapcore.Level
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "debug":
		return zap.DebugLevel, nil
	case "info", "":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("logging: unknown level %q", s)
	}
}

// New builds the root logger. Output goes to stderr and to
// openbmp-mrt2bmp_<router>.log under the configured directory, rotated at
// max_size_mb with max_backups old files kept.
func New(cfg config.LoggingConfig, router string) (*Factory, error) {
	rootLevel, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)

	fileSink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, fmt.Sprintf("openbmp-mrt2bmp_%s.log", router)),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), rootLevel),
		zapcore.NewCore(enc, fileSink, rootLevel),
	)

	f := &Factory{
		root:       zap.New(core),
		rootLevel:  rootLevel,
		subsystems: make(map[string]zapcore.Level),
	}

	for name, lvl := range cfg.Subsystems {
		parsed, err := parseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("logging: subsystem %s: %w", name, err)
		}
		f.subsystems[name] = parsed
	}

	return f, nil
}

// Named returns the logger for a subsystem. A configured subsystem level
// above the root level restricts that subsystem's output; levels below the
// root cannot widen it (the sinks filter at the root level first).
func (f *Factory) Named(name string) *zap.Logger {
	l := f.root.Named(name)
	if lvl, ok := f.subsystems[name]; ok && lvl > f.rootLevel {
		l = l.WithOptions(zap.IncreaseLevel(lvl))
	}
	return l
}

// Root returns the undecorated root logger.
func (f *Factory) Root() *zap.Logger {
	return f.root
}

// Sync flushes buffered log entries.
func (f *Factory) Sync() {
	_ = f.root.Sync()
}

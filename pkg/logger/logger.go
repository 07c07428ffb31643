// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type SugarLogger struct {
	*zap.SugaredLogger
	conf  zap.Config
	mutex sync.RWMutex
}

type Config struct {
	Level         string
	OutputPath    []string
	ErrOutputPath []string
	Encoding      string
	Name          string
	// Rotation, when set, additionally writes every entry to a size-rotated file.
	Rotation *RotationConfig
}

// RotationConfig configures the rotated log file.
type RotationConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func New(c *Config, opts ...zap.Option) (*SugarLogger, error) {
	logLevel, err := getZapLogLevel(c.Level)
	if err != nil {
		return nil, err
	}

	logCfg := zap.Config{
		Encoding:         c.Encoding,
		Level:            zap.NewAtomicLevelAt(logLevel),
		OutputPaths:      c.OutputPath,
		ErrorOutputPaths: c.ErrOutputPath,
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",

			LevelKey:    "level",
			EncodeLevel: zapcore.CapitalLevelEncoder,

			TimeKey:    "time",
			EncodeTime: zapcore.ISO8601TimeEncoder,

			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}

	if len(c.Name) > 0 {
		logCfg.EncoderConfig.NameKey = "logger"
	}

	if c.Rotation != nil {
		rotated, err := rotatingCore(c.Rotation, &logCfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, rotated)
		}))
	}

	l, err := logCfg.Build(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error while creating a logger")
	}

	return &SugarLogger{
		SugaredLogger: l.Named(c.Name).Sugar(),
		conf:          logCfg,
	}, nil
}

func rotatingCore(r *RotationConfig, logCfg *zap.Config) (zapcore.Core, error) {
	if r.Filename == "" {
		return nil, errors.New("log rotation is enabled but no file name is specified")
	}
	if err := os.MkdirAll(filepath.Dir(r.Filename), 0755); err != nil {
		return nil, errors.Wrapf(err, "error while creating directory for log file %s", r.Filename)
	}

	var encoder zapcore.Encoder
	switch logCfg.Encoding {
	case "json":
		encoder = zapcore.NewJSONEncoder(logCfg.EncoderConfig)
	case "console":
		encoder = zapcore.NewConsoleEncoder(logCfg.EncoderConfig)
	default:
		return nil, errors.Errorf("unsupported encoding [%s] for a rotated log file", logCfg.Encoding)
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   r.Filename,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	})
	return zapcore.NewCore(encoder, writer, logCfg.Level), nil
}

func (l *SugarLogger) With(args ...interface{}) *SugarLogger {
	return &SugarLogger{
		SugaredLogger: l.SugaredLogger.With(args...),
		conf:          l.conf,
	}
}

func (l *SugarLogger) SetLogLevel(level string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	logLevel, err := getZapLogLevel(level)
	if err != nil {
		return err
	}

	l.conf.Level.SetLevel(logLevel)

	return nil
}

// levels maps configuration names to zap levels. "err" is accepted for older configurations.
var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"err":   zapcore.ErrorLevel,
	"error": zapcore.ErrorLevel,
	"panic": zapcore.PanicLevel,
}

func getZapLogLevel(level string) (zapcore.Level, error) {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l, nil
	}
	return zapcore.InfoLevel, errors.Errorf(
		"unrecognized log level [%s]. Only debug, info, warn, error, and panic log levels are supported",
		level,
	)
}

func (l *SugarLogger) Warning(v ...interface{}) {
	l.Warn(v...)
}

func (l *SugarLogger) Warningf(format string, v ...interface{}) {
	l.Warnf(format, v...)
}

// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0
package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var allMessages = []string{
	"debug message is logged",
	"info message is logged",
	"warning message is logged",
	"error message is logged",
}

func logStatements(l *SugarLogger) {
	l.Debug(allMessages[0])
	l.Info(allMessages[1])
	l.Warn(allMessages[2])
	l.Error(allMessages[3])
}

// enabledFrom returns the messages logged at or above the given index and those below it.
func enabledFrom(i int) ([]string, []string) {
	return allMessages[i:], allMessages[:i]
}

func requireLogged(t *testing.T, logFile string, expected, unexpected []string) {
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	for _, e := range expected {
		require.Contains(t, string(content), e)
	}
	for _, u := range unexpected {
		require.NotContains(t, string(content), u)
	}
}

func TestLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level      string
		firstShown int
	}{
		{level: "debug", firstShown: 0},
		{level: "info", firstShown: 1},
		{level: "warn", firstShown: 2},
		{level: "err", firstShown: 3},
		{level: "error", firstShown: 3},
		{level: "WARN", firstShown: 2},
		{level: "panic", firstShown: 4},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.level, func(t *testing.T) {
			t.Parallel()

			logFile := filepath.Join(t.TempDir(), tt.level+".txt")
			l, err := New(&Config{
				Level:         tt.level,
				OutputPath:    []string{logFile},
				ErrOutputPath: []string{logFile},
				Encoding:      "console",
			})
			require.NoError(t, err)

			logStatements(l)
			require.NoError(t, l.Sync())

			expected, unexpected := enabledFrom(tt.firstShown)
			requireLogged(t, logFile, expected, unexpected)
		})
	}
}

func TestDynamicLogger(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "dynamic.txt")
	l, err := New(&Config{
		Level:         "panic",
		OutputPath:    []string{logFile},
		ErrOutputPath: []string{logFile},
		Encoding:      "console",
	})
	require.NoError(t, err)

	logStatements(l)
	require.NoError(t, l.Sync())
	requireLogged(t, logFile, nil, allMessages)

	require.NoError(t, l.SetLogLevel("warn"))
	require.True(t, l.conf.Level.Enabled(zapcore.WarnLevel))
	require.False(t, l.conf.Level.Enabled(zapcore.InfoLevel))

	logStatements(l)
	require.NoError(t, l.Sync())
	expected, unexpected := enabledFrom(2)
	requireLogged(t, logFile, expected, unexpected)

	require.EqualError(t, l.SetLogLevel("verbose"), "unrecognized log level [verbose]. Only debug, info, warn, error, and panic log levels are supported")
}

func TestErrorPath(t *testing.T) {
	t.Parallel()

	t.Run("unknown level", func(t *testing.T) {
		l, err := New(&Config{Level: "unknown"})
		require.EqualError(t, err, "unrecognized log level [unknown]. Only debug, info, warn, error, and panic log levels are supported")
		require.Nil(t, l)
	})

	t.Run("no encoder", func(t *testing.T) {
		l, err := New(&Config{Level: "debug"})
		require.EqualError(t, err, "error while creating a logger: no encoder name specified")
		require.Nil(t, l)
	})

	t.Run("rotation without a file name", func(t *testing.T) {
		l, err := New(&Config{Level: "debug", Encoding: "console", Rotation: &RotationConfig{}})
		require.EqualError(t, err, "log rotation is enabled but no file name is specified")
		require.Nil(t, l)
	})

	t.Run("rotation with an unknown encoding", func(t *testing.T) {
		l, err := New(&Config{
			Level:    "debug",
			Encoding: "xml",
			Rotation: &RotationConfig{Filename: filepath.Join(t.TempDir(), "authd.log")},
		})
		require.EqualError(t, err, "unsupported encoding [xml] for a rotated log file")
		require.Nil(t, l)
	})
}

func TestLoggerWith(t *testing.T) {
	t.Parallel()

	logFile := filepath.Join(t.TempDir(), "with.txt")
	l, err := New(&Config{
		Level:         "info",
		OutputPath:    []string{logFile},
		ErrOutputPath: []string{logFile},
		Encoding:      "console",
	})
	require.NoError(t, err)

	l1 := l.With("requestID", "r-1")
	logStatements(l1)
	require.NoError(t, l1.Sync())

	requireLogged(t, logFile,
		[]string{
			"info message is logged\t{\"requestID\": \"r-1\"}",
			"error message is logged\t{\"requestID\": \"r-1\"}",
		},
		[]string{"debug message is logged"},
	)

	require.NoError(t, l1.SetLogLevel("debug"))
	require.True(t, l.conf.Level.Enabled(zapcore.DebugLevel), "derived loggers share the level")
}

func TestRotatedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rotated := filepath.Join(dir, "logs", "authd.log")
	l, err := New(&Config{
		Level:         "info",
		OutputPath:    []string{},
		ErrOutputPath: []string{"stderr"},
		Encoding:      "json",
		Name:          "authd",
		Rotation: &RotationConfig{
			Filename:   rotated,
			MaxSizeMB:  1,
			MaxBackups: 2,
		},
	})
	require.NoError(t, err)

	logStatements(l)
	require.NoError(t, l.Sync())

	expected, unexpected := enabledFrom(1)
	requireLogged(t, rotated, expected, unexpected)

	content, err := os.ReadFile(rotated)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(content), `"logger":"authd"`))
}

func TestSugarLogger_Hooks(t *testing.T) {
	tests := []struct {
		level         string
		expectedCount int
	}{
		{level: "debug", expectedCount: 4},
		{level: "info", expectedCount: 3},
		{level: "warn", expectedCount: 2},
		{level: "err", expectedCount: 1},
		{level: "panic", expectedCount: 0},
	}

	for _, tt := range tests {
		t.Run("hook-"+tt.level, func(t *testing.T) {
			var count int
			hook := func(entry zapcore.Entry) error {
				if strings.Contains(entry.Message, "is logged") {
					count++
				}
				return nil
			}

			l, err := New(
				&Config{
					Level:         tt.level,
					OutputPath:    []string{"stdout"},
					ErrOutputPath: []string{"stderr"},
					Encoding:      "console",
				},
				zap.Hooks(hook),
			)
			require.NoError(t, err)

			logStatements(l)
			require.Equal(t, tt.expectedCount, count)
		})
	}
}

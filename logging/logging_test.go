package logging

import (
	"os"
	"path/filepath"
	"testing"

	"veilleboard/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestOutputStandardStreams(t *testing.T) {
	assert.Equal(t, os.Stdout, Output(config.LoggingConfig{Output: "stdout"}))
	assert.Equal(t, os.Stdout, Output(config.LoggingConfig{Output: ""}))
	assert.Equal(t, os.Stderr, Output(config.LoggingConfig{Output: "STDERR"}))
}

func TestOutputFileIsRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "veille.log")
	w := Output(config.LoggingConfig{Output: path, MaxSizeMB: 5, MaxBackups: 2})

	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok, "expected a lumberjack writer, got %T", w)
	assert.Equal(t, path, lj.Filename)
	assert.Equal(t, 5, lj.MaxSize)
	assert.FileExists(t, path)
}

func TestOutputUnwritableFallsBackToStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "veille.log")
	assert.Equal(t, os.Stdout, Output(config.LoggingConfig{Output: path}))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	config.AppConfig = &config.Config{
		Logging: config.LoggingConfig{Level: "chatty", Format: "json", Output: "stderr"},
	}
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })

	InitLogger()

	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

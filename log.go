package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"gopkg.in/natefinch/lumberjack.v2"
)

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, "pagecast").CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, "pagecast.log"), nil
}

// setupLog routes logging to a rotating file so it does not draw over the
// TUI. The level is raised to debug by --debug.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	logFile, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		// log disabled
		return func() error { return nil }, nil
	}

	w := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.SetOutput(w)
	log.SetReportTimestamp(true)
	log.SetLevel(log.InfoLevel)
	return w.Close, nil
}

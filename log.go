package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/voxkit/internal/logging"
	gap "github.com/muesli/go-app-paths"
)

// logFile is the currently open log destination.
var logFile *os.File

func getLogFilePath() (string, error) {
	dir, err := gap.NewScope(gap.User, appName).CacheDir()
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return filepath.Join(dir, appName+".log"), nil
}

// setupLog sends the default logger to the log file in the user cache
// directory. Terminal output is left to the commands.
func setupLog() (func() error, error) {
	log.SetOutput(io.Discard)

	path, err := getLogFilePath()
	if err != nil {
		return nil, err
	}
	if err := redirectLog(path); err != nil {
		return nil, err
	}
	return func() error {
		if logFile == nil {
			return nil
		}
		return logFile.Close()
	}, nil
}

// redirectLog switches the default logger to path.
func redirectLog(path string) error {
	f, err := logging.OpenFile(path)
	if err != nil {
		return err //nolint:wrapcheck
	}
	log.SetDefault(logging.New(f, cfg.Log.Debug))
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	return nil
}

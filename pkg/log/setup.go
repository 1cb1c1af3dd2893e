package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB  = 2
	logFileMaxBackups = 2
)

// Setup builds the application logger. Output goes to stderr and, when file is
// set, to a size-rotated log file as well. An unknown level falls back to info
// and is reported as an error alongside the usable logger.
func Setup(level, file string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.InfoLevel)

	var levelErr error
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			levelErr = fmt.Errorf("invalid log level %q: %w", level, err)
		} else {
			logger.SetLevel(parsed)
		}
	}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return logger, fmt.Errorf("creating log directory for %s: %w", file, err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		}))
	}

	return logger, levelErr
}

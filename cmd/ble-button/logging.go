package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// newLogger builds the process logger for the given level name.
func newLogger(level string) (*logrus.Logger, error) {
	var lvl logrus.Level
	switch level {
	case "trace":
		lvl = logrus.TraceLevel
	case "debug":
		lvl = logrus.DebugLevel
	case "", "info":
		lvl = logrus.InfoLevel
	case "warn":
		lvl = logrus.WarnLevel
	case "error":
		lvl = logrus.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be trace, debug, info, warn, or error)", level)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

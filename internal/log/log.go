// Package log configures the process-wide logrus logger.
package log

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"vshark/internal/config"
)

var (
	mu     sync.RWMutex
	logger = logrus.New()
	closer io.Closer
)

// GetLogger returns the process logger.
func GetLogger() logrus.FieldLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init configures the process logger from cfg. Entries go to the rotated
// log file and, when console is not nil, to console as well. The terminal
// UI passes a nil console because it owns the screen.
func Init(cfg config.LogConfig, console io.Writer) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var formatter logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "json":
		formatter = &logrus.JSONFormatter{}
	case "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true, DisableColors: true}
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	var writers []io.Writer
	var file *lumberjack.Logger
	if cfg.File.Path != "" {
		file = createFileWriter(cfg.File)
		writers = append(writers, file)
	}
	if console != nil {
		writers = append(writers, console)
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(formatter)
	switch len(writers) {
	case 0:
		l.SetOutput(io.Discard)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	if file != nil {
		closer = file
	}
	logger = l
	return nil
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// createFileWriter creates a lumberjack file writer for log rotation.
func createFileWriter(fc config.LogFileConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,  // megabytes
		MaxBackups: fc.MaxBackups, // number of backups
		MaxAge:     fc.MaxAgeDays, // days
		Compress:   fc.Compress,
	}
}

package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// fileCloser holds the rotating file writer so Sync can flush it on exit.
var (
	fileCloser   io.Closer
	fileCloserMu sync.Mutex
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // output destination; nil means stdout (plus file when set)
	ServiceName string    // service name for log tagging
	File        string    // optional rotating log file path
	MaxSizeMB   int       // rotation threshold per file
	MaxBackups  int
	MaxAgeDays  int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "loaderd",
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  14,
	}
}

// New creates a new Logger with the given configuration.
// Parameters:
//   - cfg: logger configuration; nil uses DefaultConfig.
// Returns:
//   - *Logger: initialized logger instance.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	switch {
	case cfg.Output != nil:
		log.SetOutput(cfg.Output)
	case cfg.File != "":
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		fileCloserMu.Lock()
		fileCloser = fileWriter
		fileCloserMu.Unlock()
		log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	default:
		log.SetOutput(os.Stdout)
	}

	return &Logger{Entry: log.WithField("service", cfg.ServiceName)}
}

// Sync closes the rotating file writer, if one was configured.
// Call before program exit so buffered log data is not lost.
func Sync() error {
	fileCloserMu.Lock()
	defer fileCloserMu.Unlock()
	if fileCloser != nil {
		return fileCloser.Close()
	}
	return nil
}

// WithFields returns a new Logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a new Logger with a single additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a new Logger carrying the error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// Package logging provides config-driven categorized logging for EquiScore.
// Each category is a named zap logger sharing one core; categories can be
// switched off individually in the logging config. Before Initialize is
// called every logger is a no-op.
package logging

import (
	"fmt"
	"sync"

	"equiscore/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config, shutdown
	CategoryFeed    Category = "feed"    // XML parsing, flag table
	CategoryStore   Category = "store"   // Snapshot reloads
	CategoryWatcher Category = "watcher" // File system events
	CategoryHTTP    Category = "http"    // Requests, template rendering
	CategoryPush    Category = "push"    // SSE / WebSocket subscribers
)

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	base      = zap.NewNop()
	cfg       config.LoggingConfig
	configMu  sync.RWMutex

	nop = zap.NewNop().Sugar()
)

// Option adjusts Initialize.
type Option func(*options)

type options struct {
	noStderr bool
}

// WithoutStderr sends logs to the configured file only. Used when the
// terminal belongs to a full-screen UI.
func WithoutStderr() Option {
	return func(o *options) { o.noStderr = true }
}

// Initialize builds the shared zap core from the logging config.
// Should be called once at startup.
func Initialize(lc config.LoggingConfig, opts ...Option) error {
	zc, err := buildConfig(lc, opts...)
	if err != nil {
		return err
	}

	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	Use(l, lc)
	return nil
}

func buildConfig(lc config.LoggingConfig, opts ...Option) (zap.Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var zc zap.Config
	if lc.Format == "console" || lc.Format == "text" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level := lc.Level
	if level == "" {
		level = "info"
	}
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zc, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	zc.Level = atomic

	if o.noStderr {
		if lc.File == "" {
			return zc, fmt.Errorf("logging without stderr needs logging.file")
		}
		zc.OutputPaths = []string{lc.File}
		zc.ErrorOutputPaths = []string{lc.File}
		return zc, nil
	}

	zc.OutputPaths = []string{"stderr"}
	if lc.File != "" {
		zc.OutputPaths = append(zc.OutputPaths, lc.File)
	}
	return zc, nil
}

// Use installs an already built zap logger. Tests pass an observer core here.
func Use(l *zap.Logger, lc config.LoggingConfig) {
	configMu.Lock()
	base = l
	cfg = lc
	configMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Base returns the shared zap logger for callers that log typed fields.
func Base() *zap.Logger {
	configMu.RLock()
	defer configMu.RUnlock()
	return base
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return cfg.IsCategoryEnabled(string(category))
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: nop}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{
		category: category,
		sugar:    Base().Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Enabled reports whether entries at lvl would be written.
func (l *Logger) Enabled(lvl zapcore.Level) bool {
	return l.sugar.Desugar().Core().Enabled(lvl)
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	_ = Base().Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Feed logs to the feed category
func Feed(format string, args ...interface{}) {
	Get(CategoryFeed).Info(format, args...)
}

// FeedDebug logs debug to the feed category
func FeedDebug(format string, args ...interface{}) {
	Get(CategoryFeed).Debug(format, args...)
}

// Store logs to the store category
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// Watcher logs to the watcher category
func Watcher(format string, args ...interface{}) {
	Get(CategoryWatcher).Info(format, args...)
}

// WatcherDebug logs debug to the watcher category
func WatcherDebug(format string, args ...interface{}) {
	Get(CategoryWatcher).Debug(format, args...)
}

// HTTP logs to the http category
func HTTP(format string, args ...interface{}) {
	Get(CategoryHTTP).Info(format, args...)
}

// Push logs to the push category
func Push(format string, args ...interface{}) {
	Get(CategoryPush).Info(format, args...)
}

// PushDebug logs debug to the push category
func PushDebug(format string, args ...interface{}) {
	Get(CategoryPush).Debug(format, args...)
}

// Package logging provides config-driven categorized logging for pixelsense.
// Logs are written to <state-dir>/logs/ with a separate file per category.
// Logging is controlled by debug_mode in the process config - when false,
// no log files are created and every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot          Category = "boot"          // Startup/initialization
	CategoryPipeline      Category = "pipeline"      // End-to-end analysis runs
	CategoryOrchestrator  Category = "orchestrator"  // Wave scheduling, rounds, early exit
	CategoryWaves         Category = "waves"         // Individual wave execution
	CategoryScene         Category = "scene"         // Motion / scene / text-change detection
	CategoryFastPath      Category = "fastpath"      // Signature cache lookups
	CategoryStore         Category = "store"         // Durable signature store
	CategoryEscalation    Category = "escalation"    // LLM/OCR escalation decisions
	CategoryDiscriminator Category = "discriminator" // Scoring and effectiveness learning
	CategoryRules         Category = "rules"         // Contradiction rule kernel
	CategoryVision        Category = "vision"        // Vision LLM / OCR client calls
	CategoryConfig        Category = "config"        // Config loading and overrides
)

// Options controls logger construction. Mirrors config.LoggingConfig to
// avoid an import cycle with the config package.
type Options struct {
	DebugMode  bool
	Level      string          // debug|info|warn|error
	Categories map[string]bool // nil = all enabled
	JSONFormat bool
}

// Logger is a categorized logger. The zero value is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	opts     Options
	minLevel zapcore.Level
)

// Initialize sets up the logging directory and options. Call once at startup
// with the state directory. A no-op when debug mode is off.
func Initialize(stateDir string, o Options) error {
	if stateDir == "" {
		return fmt.Errorf("state directory required")
	}

	mu.Lock()
	opts = o
	logsDir = filepath.Join(stateDir, "logs")
	switch o.Level {
	case "debug":
		minLevel = zapcore.DebugLevel
	case "warn", "warning":
		minLevel = zapcore.WarnLevel
	case "error":
		minLevel = zapcore.ErrorLevel
	default:
		minLevel = zapcore.InfoLevel
	}
	loggers = make(map[Category]*Logger)
	mu.Unlock()

	if !o.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== pixelsense logging initialized ===")
	boot.Info("logs directory: %s", logsDir)
	boot.Info("level: %s json=%v", o.Level, o.JSONFormat)
	return nil
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()

	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	dir := logsDir
	mu.RUnlock()

	if dir == "" {
		return &Logger{category: category}
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// One file per category, date-prefixed for easy rotation.
	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(file)), minLevel)
	l := &Logger{
		category: category,
		sugar:    zap.New(core).Sugar().With("cat", string(category)),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger with additional structured context attached.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l == nil || l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// CloseAll flushes and drops all open loggers (call at shutdown).
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.sugar != nil {
			_ = l.sugar.Sync()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer measures an operation's duration and logs it on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation for performance logging.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed time at debug level.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	Get(t.category).Debug("%s took %s", t.op, time.Since(t.start))
}

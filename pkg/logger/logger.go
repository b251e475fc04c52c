package logger

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceIdKey is the context key carrying the request trace id (swap for
// an OpenTelemetry span id if one is ever wired in).
const TraceIdKey = "trace_id"

// Log is the process-wide logger instance.
var Log *zap.Logger

// Init sets up the logging component.
// serviceName: the current service's name (e.g. "watcher-service")
// level: log level (debug, info, warn, error)
func Init(serviceName string, level string) {
	InitWithFile(serviceName, level, "")
}

// InitWithFile sets up the logging component with an explicit log file
// path.
// serviceName: the current service's name (e.g. "watcher-service")
// level: log level (debug, info, warn, error)
// logFile: log file path; defaults to logs/{serviceName}.log when empty
func InitWithFile(serviceName string, level string, logFile string) {
	// 1. Parse the log level.
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel // default to Info
	}

	// 2. Configure the encoder (production builds always emit JSON).
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder   // time format: 2023-11-23T...
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder // level format: INFO, ERROR
	encoderConfig.MessageKey = "msg"

	// 3. Write to stdout and, optionally, a file.
	writeSyncers := []zapcore.WriteSyncer{
		zapcore.AddSync(os.Stdout), // container-standard console output
	}

	// 4. When a log file is given, tee to it too.
	if logFile == "" {
		// default log file path: logs/{serviceName}.log
		logFile = filepath.Join("logs", serviceName+".log")
	}

	// make sure the log directory exists
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// fall back to console-only on a directory creation failure
		_ = err
	} else {
		// open the log file in append mode
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			writeSyncers = append(writeSyncers, zapcore.AddSync(file))
		}
		// fall back to console-only on an open failure; never fatal
	}

	// 5. Fan out to both console and file.
	multiWriter := zapcore.NewMultiWriteSyncer(writeSyncers...)

	// 6. Build the core.
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig), // JSON is easy to ship to ELK
		multiWriter,
		zapLevel,
	)

	// 7. Build the logger.
	// AddCaller: attach file/line
	// AddCallerSkip: we wrap zap in one more layer, so skip 1 or every
	// caller line points at this file instead of the actual call site.
	Log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	// 8. Inject the global service-name field.
	Log = Log.With(zap.String("service", serviceName))
}

// ---------------------------------------------------------
// context-aware log wrappers
// ---------------------------------------------------------

// Info logs at Info level.
func Info(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Info(msg, fields...)
}

// Error logs at Error level.
func Error(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Error(msg, fields...)
}

// Warn logs at Warn level.
func Warn(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Warn(msg, fields...)
}

// Debug logs at Debug level.
func Debug(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Debug(msg, fields...)
}

// Fatal logs at Fatal level, then calls os.Exit via zap.
func Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	extractTrace(ctx, &fields)
	Log.Fatal(msg, fields...)
}

// extractTrace pulls the trace id out of ctx and appends it to fields.
func extractTrace(ctx context.Context, fields *[]zap.Field) {
	if ctx == nil {
		return
	}

	if traceID, ok := ctx.Value(TraceIdKey).(string); ok && traceID != "" {
		*fields = append(*fields, zap.String("trace_id", traceID))
	}
}

// Sync flushes the logger's write buffers; call from main's shutdown path.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

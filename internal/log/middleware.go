package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// GinMiddleware logs the start and end of each request and puts a request
// scoped logger into the request context. requestID may be nil.
func GinMiddleware(logger *Logger, requestID func(*gin.Context) string) gin.HandlerFunc {
	sl := NewStructuredLogger(logger)
	return func(c *gin.Context) {
		start := time.Now()

		reqLogger := logger.WithComponent(ComponentHTTP)
		if requestID != nil {
			if id := requestID(c); id != "" {
				reqLogger = reqLogger.With(FieldRequestID, id)
			}
		}
		ctx := WithContext(c.Request.Context(), reqLogger)
		c.Request = c.Request.WithContext(ctx)

		sl.LogHTTPStart(ctx, c)
		c.Next()
		sl.LogHTTPEnd(ctx, c, time.Since(start))
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogHTTPStart logs the start of an HTTP request
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, c *gin.Context) {
	fields := NewFields().
		WithHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, c.Request.UserAgent()).
		WithClientIP(c.ClientIP())

	FromContext(ctx).DebugContext(ctx, "HTTP request started", fields.ToSlice()...)
}

// LogHTTPEnd logs the completion of an HTTP request, at warn for 4xx and
// error for 5xx.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, c *gin.Context, d time.Duration) {
	status := c.Writer.Status()
	level := slog.LevelInfo
	if status >= 400 && status < 500 {
		level = slog.LevelWarn
	} else if status >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, "").
		WithHTTPResponse(status, d.Milliseconds(), status < 400).
		WithClientIP(c.ClientIP())
	if len(c.Errors) > 0 {
		fields[FieldError] = c.Errors.String()
	}

	FromContext(ctx).LogContext(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.WithComponent(component).ErrorContext(ctx, msg, allFields.ToSlice()...)
}

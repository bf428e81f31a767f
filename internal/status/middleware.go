package status

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/live/internal/metrics"
)

const correlationHeader = "X-Correlation-ID"

// RequestLogger creates a zerolog-based request logger middleware that also
// reports an API request metric per call.
func RequestLogger(logger zerolog.Logger, collector *metrics.Collector) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&requestLogFormatter{logger: logger, metrics: collector})
}

type requestLogFormatter struct {
	logger  zerolog.Logger
	metrics *metrics.Collector
}

func (f *requestLogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &requestLogEntry{
		logger:        f.logger,
		metrics:       f.metrics,
		correlationID: r.Header.Get(correlationHeader),
		method:        r.Method,
		url:           r.URL.Path,
		remoteAddr:    r.RemoteAddr,
	}
}

type requestLogEntry struct {
	logger        zerolog.Logger
	metrics       *metrics.Collector
	correlationID string
	method        string
	url           string
	remoteAddr    string
}

func (l *requestLogEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	level := zerolog.DebugLevel
	if status >= 400 && status < 500 {
		level = zerolog.WarnLevel
	} else if status >= 500 {
		level = zerolog.ErrorLevel
	}

	l.logger.WithLevel(level).
		Str("correlation_id", l.correlationID).
		Str("method", l.method).
		Str("url", l.url).
		Str("remote_addr", l.remoteAddr).
		Int("status", status).
		Int("bytes", bytes).
		Dur("elapsed", elapsed).
		Msg("Request completed")
	if l.metrics != nil {
		l.metrics.APIRequest(l.method, l.url, status, elapsed)
	}
}

func (l *requestLogEntry) Panic(v interface{}, stack []byte) {
	l.logger.Error().
		Str("correlation_id", l.correlationID).
		Str("method", l.method).
		Str("url", l.url).
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("Request panic")
}

// CorrelationID adds a correlation ID to requests if not present
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(correlationHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
			r.Header.Set(correlationHeader, correlationID)
		}
		w.Header().Set(correlationHeader, correlationID)
		next.ServeHTTP(w, r)
	})
}

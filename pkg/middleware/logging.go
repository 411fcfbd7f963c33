package middleware

import (
	"net/http"
	"time"

	"github.com/tickline/schedcore/pkg/logger"
)

// RequestLogger logs every request with method, path and duration
func RequestLogger(log *logger.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)

		log.Debug().
			Str("action", "http_request").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

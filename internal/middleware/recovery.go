package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/josh-kwaku/boma-settlement/internal/handler"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

func Recovery(next http.Handler) http.Handler {
	return recoverWith(next, func(w http.ResponseWriter) {
		handler.RespondAppError(w, handler.ErrInternalError, nil)
	})
}

// WebhookRecovery keeps the always-200 contract of gateway callbacks when a
// handler panics. The payment is picked up again by reconciliation.
func WebhookRecovery(next http.Handler) http.Handler {
	return recoverWith(next, func(w http.ResponseWriter) {
		handler.RespondSuccess(w, http.StatusOK, map[string]string{"status": "failed"})
	})
}

func recoverWith(next http.Handler, respond func(w http.ResponseWriter)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log := logging.FromContext(r.Context())
				log.Error("panic recovered",
					"error", err,
					"method", r.Method,
					"route", r.Pattern,
					"stack", string(debug.Stack()),
				)
				respond(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

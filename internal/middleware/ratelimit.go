package middleware

import (
	"fmt"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/josh-kwaku/boma-settlement/internal/auth"
	"github.com/josh-kwaku/boma-settlement/internal/handler"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

// NewRateLimitStore shares counters through Redis when a client is given and
// falls back to process memory otherwise.
func NewRateLimitStore(rdb *redis.Client) (limiter.Store, error) {
	if rdb == nil {
		return memory.NewStore(), nil
	}
	store, err := redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "ratelimit",
		MaxRetry: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("NewRateLimitStore: %w", err)
	}
	return store, nil
}

// RateLimit caps requests per caller. rate uses the limiter format, e.g. "100-M".
// Authenticated callers are keyed by user id, everyone else by remote address.
func RateLimit(store limiter.Store, rate string) (func(http.Handler) http.Handler, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("RateLimit: %w", err)
	}

	mw := stdlib.NewMiddleware(limiter.New(store, r),
		stdlib.WithKeyGetter(rateLimitKey),
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			logging.FromContext(r.Context()).Warn("rate limit reached", "key", rateLimitKey(r))
			handler.RespondAppError(w, handler.ErrRateLimited, nil)
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			logging.FromContext(r.Context()).Error("rate limiter store failed", "error", err)
			handler.RespondAppError(w, handler.ErrInternalError, nil)
		}),
	)
	return mw.Handler, nil
}

func rateLimitKey(r *http.Request) string {
	if a, ok := auth.ActorFromContext(r.Context()); ok {
		return "user:" + a.UserID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

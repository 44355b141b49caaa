package middleware

import (
	"fmt"
	"net/http"

	"github.com/Nzyazin/lnmo/internal/core/logger"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimit throttles requests per client IP. rate uses the limiter's
// formatted notation, e.g. "60-M".
func RateLimit(rate string, log logger.Logger) (func(http.Handler) http.Handler, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	instance := limiter.New(memory.NewStore(), parsed)
	mw := stdlib.NewMiddleware(instance,
		stdlib.WithLimitReachedHandler(func(w http.ResponseWriter, r *http.Request) {
			log.Warn("Rate limit exceeded",
				logger.StringField("path", r.URL.Path),
				logger.StringField("remote_addr", r.RemoteAddr),
				logger.Int64Field("limit", parsed.Limit))
			writeDanger(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
		}),
		stdlib.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("Failed to get rate limit context",
				logger.StringField("path", r.URL.Path),
				logger.ErrorField("error", err))
			writeDanger(w, http.StatusInternalServerError, "Internal server error during rate limit check")
		}),
	)

	return mw.Handler, nil
}

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/velmarket/gateway/pkg/http"
)

// GlobalRateLimit caps total request volume per client across the whole
// router. This is a coarse burst guard in front of the per-endpoint policy
// limiter, which tracks its own windows and block durations.
//
// The bucket key comes from the same trusted-proxy-aware resolver as the
// policy limiter, never from forwardable headers.
func GlobalRateLimit(requestLimit int, windowLength time.Duration, ipConfig *pkghttp.IPConfig) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, windowLength)
		}),
	)
}

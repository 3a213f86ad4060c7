package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/cassiopeia-dash/gateway/internal/logging"
)

// Recovery is the last line of defense: a panic anywhere below becomes an
// ok:false body with an internal-error code, delivered with transport
// status 200 like every other API failure. The request never crashes.
func Recovery(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				logger.Error(r.Context(), "panic while serving request",
					fmt.Errorf("%v", rec), map[string]any{
						"path":  r.URL.Path,
						"stack": string(debug.Stack()),
					})

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok":    false,
					"error": "internal error",
					"code":  http.StatusInternalServerError,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

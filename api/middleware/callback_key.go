package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/angelmondragon/threadline-backend/api/responses"
	pkgerrors "github.com/angelmondragon/threadline-backend/pkg/errors"
	"github.com/angelmondragon/threadline-backend/pkg/logger"
)

const callbackKeyHeader = "X-Callback-Key"

// CallbackKey guards the gateway callback with a shared key sent either as a
// header or as the "key" query parameter, since redirects cannot set headers.
// An empty key disables the check.
func CallbackKey(key string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := strings.TrimSpace(r.Header.Get(callbackKeyHeader))
			if presented == "" {
				presented = strings.TrimSpace(r.URL.Query().Get("key"))
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"net/http"
	"strconv"

	"github.com/workfin/finance-core/internal"
)

// Identity reads the acting user id from the X-Actor-ID header set by the
// upstream gateway and places it in the request context. Authentication
// itself happens before requests reach this service.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Actor-ID")
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		actorID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || actorID <= 0 {
			http.Error(w, `{"code":400,"message":"invalid X-Actor-ID header"}`, http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r.WithContext(internal.ContextWithActor(r.Context(), actorID)))
	})
}

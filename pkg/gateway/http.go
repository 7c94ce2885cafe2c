package gateway

import (
	"encoding/json"
	"net/http"
)

// HeaderAuthorization is the header the gateway reads and rewrites.
const HeaderAuthorization = "Authorization"

// Middleware returns HTTP middleware that applies c to every request.
//
// On reject it answers with the outcome's status and a JSON [ErrorBody];
// next is not called. On forward it replaces the Authorization header with
// the internal token, attaches the tenant to the request context and calls
// next.
//
// Example:
//
//	proxy := httputil.NewSingleHostReverseProxy(upstream)
//	http.ListenAndServe(":8000", gateway.Middleware(controller)(proxy))
func Middleware(c *Controller) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			out := c.Handle(r.Context(), r.Header.Get(HeaderAuthorization))
			if !out.Forward {
				writeRejection(w, out)
				return
			}

			r = r.WithContext(ContextWithTenant(r.Context(), out.TenantID))
			r.Header.Set(HeaderAuthorization, out.Authorization)
			next.ServeHTTP(w, r)
		})
	}
}

func writeRejection(w http.ResponseWriter, out Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(out.Status)
	_ = json.NewEncoder(w).Encode(out.Body)
}

package middleware

import (
	"net/http"
	"net/url"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, Authorization"
)

// CORS applies the cross-origin policy to every response, errors included.
// With no allowed origins any origin is accepted with "*"; otherwise the
// request origin is echoed back when it matches the list and rejected with
// 403 when it does not. Preflight requests are answered here with 200.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case len(allowedOrigins) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin == "":
			case isOriginAllowed(origin, allowedOrigins):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			default:
				http.Error(w, "Origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)

			if r.Method == http.MethodOptions {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"message":"OK"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed compares the origin's host against the allow-list entries,
// which may be bare hosts or full origins.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	hosts := make([]string, 0, len(allowedOrigins))
	for _, allowed := range allowedOrigins {
		if a, err := url.Parse(allowed); err == nil && a.Host != "" {
			allowed = a.Host
		}
		hosts = append(hosts, allowed)
	}
	return IsHostAllowed(u.Host, hosts)
}

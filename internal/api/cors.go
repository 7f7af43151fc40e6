package api

import (
	"net/http"
	"slices"
)

const corsDefaultMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// cors allows cross-origin requests with credentials. With no allowed
// origins configured every origin is accepted; the request origin is echoed
// because browsers reject "*" together with credentials. OPTIONS requests
// are answered with 204 without reaching next.
func cors(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (len(allowed) == 0 || slices.Contains(allowed, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				methods := r.Header.Get("Access-Control-Request-Method")
				if methods == "" {
					methods = corsDefaultMethods
				}
				h.Set("Access-Control-Allow-Methods", methods)
				if hdrs := r.Header.Get("Access-Control-Request-Headers"); hdrs != "" {
					h.Set("Access-Control-Allow-Headers", hdrs)
				} else {
					h.Set("Access-Control-Allow-Headers", "*")
				}
				h.Set("Access-Control-Max-Age", "600")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

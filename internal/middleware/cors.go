// Package middleware provides HTTP middleware shared by the control plane's
// handlers. Grounded on control_plane/middleware/cors.go.
package middleware

import "net/http"

// CORS allows the operator dashboard (served from a separate origin in
// development) to call the control plane's HTTP API and open its
// /stream/schedule WebSocket.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Idempotency-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"net/http"
	"strings"
)

// corsMethods mirrors the account route table; corsHeaders is what the API
// accepts: JSON bodies and bearer tokens.
const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type"
)

// CORS stamps Access-Control headers for origins on the allow list and
// answers preflight requests. A single "*" entry allows every origin.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(origin)] = struct{}{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			header := w.Header()
			switch {
			case allowAll:
				header.Set("Access-Control-Allow-Origin", "*")
				header.Set("Access-Control-Allow-Methods", corsMethods)
				header.Set("Access-Control-Allow-Headers", corsHeaders)
			default:
				if _, ok := allowed[strings.ToLower(origin)]; ok {
					header.Set("Access-Control-Allow-Origin", origin)
					header.Set("Access-Control-Allow-Credentials", "true")
					header.Set("Access-Control-Allow-Methods", corsMethods)
					header.Set("Access-Control-Allow-Headers", corsHeaders)
					header.Set("Vary", "Origin")
				}
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

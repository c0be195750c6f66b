package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/venuepay-backend/pkg/config"
)

var localOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS allows the admin dashboard and customer portal to call the API.
func CORS(cfg config.FrontendConfig) func(http.Handler) http.Handler {
	origins := append([]string{}, localOrigins...)
	for _, raw := range []string{cfg.DashboardURL, cfg.CustomerPortalURL} {
		if origin := strings.TrimRight(strings.TrimSpace(raw), "/"); origin != "" {
			origins = append(origins, origin)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}).Handler
}

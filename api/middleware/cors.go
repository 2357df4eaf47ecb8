package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/kolo-backend/pkg/config"
	"github.com/angelmondragon/kolo-backend/pkg/types"
)

var (
	productionOrigins = []string{"https://kolo.app", "https://www.kolo.app"}
	devOrigins        = []string{"http://localhost:3000", "http://localhost:5173"}
)

// CORS allows the web clients. KOLO_CORS_ALLOWED_ORIGINS replaces the
// built-in list; dev additionally admits the local frontends.
func CORS(app config.AppConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins(app),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, types.RequestIDHeader},
		ExposedHeaders:   []string{types.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}

func allowedOrigins(app config.AppConfig) []string {
	origins := productionOrigins
	if len(app.CORSOrigins) > 0 {
		origins = app.CORSOrigins
	}
	if app.IsDev() {
		origins = append(append([]string{}, origins...), devOrigins...)
	}
	return origins
}

package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/licensing-backend/internal/http/response"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
)

// RequireAdmin пропускает только запросы учётных записей с ролью ADMIN.
// Должен стоять после JWTMiddleware.
func RequireAdmin(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID, ok := IdentityFrom(r.Context())
			if !ok {
				log.Warn("identity missing in request context")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("identity missing"))
				return
			}

			if !models.Role(RoleFrom(r.Context())).IsAdmin() {
				log.Warn("admin role required", slog.String("identity_id", identityID))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("admin role required"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Package licensing собирает HTTP API сервиса лицензирования.
package licensing

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/demos"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/health"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/identities"
	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers/licenses"
	"github.com/magabrotheeeer/licensing-backend/internal/http/middlewarectx"
)

// Handlers содержит обработчики, подключаемые к маршрутизатору.
type Handlers struct {
	Identities *identities.Handler
	Licenses   *licenses.Handler
	Demos      *demos.Handler
	Health     *health.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, h Handlers, tokens middlewarectx.TokenParser, limiter *rate.Limiter) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/identities", h.Identities.Create)
		r.Post("/login", h.Identities.Login)
		r.Get("/identities/check", h.Identities.Check)
		r.Post("/demo/register", h.Demos.Register)

		// Проверки ключей вызываются клиентскими приложениями без токена
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
			r.Post("/licenses/activate", h.Licenses.Activate)
			r.Get("/licenses/{key}/validate", h.Licenses.Validate)
		})

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokens, logger))
			r.Get("/licenses", h.Licenses.List)
			r.Post("/licenses/{key}/deactivate", h.Licenses.Deactivate)
			r.Post("/licenses/{key}/reactivate", h.Licenses.Reactivate)
			r.Post("/licenses/{key}/transfer", h.Licenses.Transfer)
			r.Get("/licenses/{key}/usage", h.Licenses.Usage)
			r.Post("/demo/access", h.Demos.Access)
			r.Get("/demo/status", h.Demos.Status)

			// Административные операции
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireAdmin(logger))
				r.Post("/identities/{id}/sync", h.Identities.Sync)
				r.Post("/licenses", h.Licenses.Generate)
				r.Post("/licenses/{key}/revoke", h.Licenses.Revoke)
				r.Post("/demo/convert", h.Demos.Convert)
				r.Post("/demo/{id}/abandon", h.Demos.Abandon)
			})
		})
	})

	r.Handle("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}

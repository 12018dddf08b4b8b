// Package licenses реализует HTTP-обработчики жизненного цикла лицензий.
package licenses

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers"
	"github.com/magabrotheeeer/licensing-backend/internal/http/middlewarectx"
	"github.com/magabrotheeeer/licensing-backend/internal/http/response"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/license"
)

// Service описывает операции менеджера лицензий, нужные обработчикам.
type Service interface {
	Generate(ctx context.Context, ownerID, subscriptionID string, tier models.Tier, count int) ([]models.License, error)
	Activate(ctx context.Context, key string, device models.DeviceInfo, meta models.RequestMeta) (license.ActivationResult, error)
	Deactivate(ctx context.Context, key, ownerID, reason string, meta models.RequestMeta) (models.License, error)
	Reactivate(ctx context.Context, key, ownerID string, meta models.RequestMeta) (models.License, error)
	Transfer(ctx context.Context, key, ownerID, newOwnerEmail string) (models.License, error)
	Revoke(ctx context.Context, key, actorID, reason string) (models.License, error)
	Validate(ctx context.Context, key string) (license.ValidationResult, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.License, error)
	Usage(ctx context.Context, key, ownerID string) (license.UsageReport, error)
}

// GenerateRequest задаёт параметры выпуска лицензий.
type GenerateRequest struct {
	OwnerID        string      `json:"owner_id" validate:"required"`
	SubscriptionID string      `json:"subscription_id" validate:"required"`
	Tier           models.Tier `json:"tier" validate:"required,oneof=BASIC PRO ENTERPRISE"`
	Count          int         `json:"count" validate:"required,min=1,max=100"`
}

// ActivateRequest содержит ключ и сведения об устройстве.
type ActivateRequest struct {
	Key    string            `json:"key" validate:"required,max=64"`
	Device models.DeviceInfo `json:"device"`
}

// ReasonRequest содержит причину изменения состояния.
type ReasonRequest struct {
	Reason string `json:"reason" validate:"max=512"`
}

// RevokeRequest содержит причину отзыва.
type RevokeRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// TransferRequest — email нового владельца.
type TransferRequest struct {
	NewOwnerEmail string `json:"new_owner_email" validate:"required,email"`
}

// Handler обрабатывает запросы к лицензиям.
type Handler struct {
	log      *slog.Logger
	svc      Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	id, ok := middlewarectx.IdentityFrom(r.Context())
	if !ok {
		log.Warn("identity missing in request context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("identity missing"))
	}
	return id, ok
}

// Generate godoc
// @Summary Выпуск лицензий
// @Description Выпускает count лицензий тарифа для подписки владельца. Только для администраторов.
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body GenerateRequest true "Параметры выпуска"
// @Success 201 {object} response.Response{data=[]models.License}
// @Failure 404 {object} response.ErrorResponse "Владелец не найден"
// @Failure 409 {object} response.ErrorResponse "Коллизия ключа, повторите запрос"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /licenses [post]
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Generate")

	var req GenerateRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	licenses, err := h.svc.Generate(r.Context(), req.OwnerID, req.SubscriptionID, req.Tier, req.Count)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("licenses generated", slog.String("owner_id", req.OwnerID), slog.Int("count", len(licenses)))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(licenses))
}

// Activate godoc
// @Summary Активация лицензии
// @Description Привязывает лицензию к устройству и возвращает облачную конфигурацию.
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Param request body ActivateRequest true "Ключ и устройство"
// @Success 200 {object} response.Response{data=license.ActivationResult}
// @Failure 400 {object} response.ErrorResponse "Неверный формат ключа"
// @Failure 404 {object} response.ErrorResponse "Лицензия не найдена"
// @Failure 409 {object} response.ErrorResponse "Достигнут лимит активаций или лицензия заблокирована"
// @Failure 410 {object} response.ErrorResponse "Срок действия истёк"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Router /licenses/activate [post]
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Activate")

	var req ActivateRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	res, err := h.svc.Activate(r.Context(), req.Key, req.Device, handlers.Meta(r))
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("license activated", slog.String("license_id", res.License.ID))
	render.JSON(w, r, response.OKWithData(res))
}

// Validate godoc
// @Summary Проверка лицензии
// @Description Возвращает действительность лицензии без расхода активаций.
// @Tags Licenses
// @Produce  json
// @Param key path string true "Ключ лицензии"
// @Success 200 {object} response.Response{data=license.ValidationResult}
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Router /licenses/{key}/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Validate")

	res, err := h.svc.Validate(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Deactivate godoc
// @Summary Приостановка лицензии
// @Description Переводит активную лицензию владельца в SUSPENDED.
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param key path string true "Ключ лицензии"
// @Param request body ReasonRequest false "Причина"
// @Success 200 {object} response.Response{data=models.License}
// @Failure 403 {object} response.ErrorResponse "Лицензия принадлежит другой учётной записи"
// @Failure 409 {object} response.ErrorResponse "Недопустимое состояние"
// @Router /licenses/{key}/deactivate [post]
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Deactivate")

	ownerID, ok := h.caller(w, r, log)
	if !ok {
		return
	}
	var req ReasonRequest
	if r.ContentLength != 0 && !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	lic, err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "key"), ownerID, req.Reason, handlers.Meta(r))
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(lic))
}

// Reactivate godoc
// @Summary Возобновление лицензии
// @Description Переводит приостановленную лицензию владельца обратно в ACTIVE.
// @Tags Licenses
// @Produce  json
// @Security BearerAuth
// @Param key path string true "Ключ лицензии"
// @Success 200 {object} response.Response{data=models.License}
// @Failure 403 {object} response.ErrorResponse "Лицензия принадлежит другой учётной записи"
// @Failure 410 {object} response.ErrorResponse "Срок действия истёк"
// @Router /licenses/{key}/reactivate [post]
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Reactivate")

	ownerID, ok := h.caller(w, r, log)
	if !ok {
		return
	}

	lic, err := h.svc.Reactivate(r.Context(), chi.URLParam(r, "key"), ownerID, handlers.Meta(r))
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(lic))
}

// Transfer godoc
// @Summary Передача лицензии
// @Description Передаёт ENTERPRISE лицензию другой синхронизированной учётной записи.
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param key path string true "Ключ лицензии"
// @Param request body TransferRequest true "Новый владелец"
// @Success 200 {object} response.Response{data=models.License}
// @Failure 403 {object} response.ErrorResponse "Передача запрещена"
// @Failure 404 {object} response.ErrorResponse "Получатель не найден"
// @Router /licenses/{key}/transfer [post]
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Transfer")

	ownerID, ok := h.caller(w, r, log)
	if !ok {
		return
	}
	var req TransferRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	lic, err := h.svc.Transfer(r.Context(), chi.URLParam(r, "key"), ownerID, req.NewOwnerEmail)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("license transferred", slog.String("license_id", lic.ID), slog.String("new_owner_id", lic.OwnerID))
	render.JSON(w, r, response.OKWithData(lic))
}

// Revoke godoc
// @Summary Отзыв лицензии
// @Description Окончательно отзывает лицензию. Только для администраторов.
// @Tags Licenses
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param key path string true "Ключ лицензии"
// @Param request body RevokeRequest true "Причина"
// @Success 200 {object} response.Response{data=models.License}
// @Failure 404 {object} response.ErrorResponse "Лицензия не найдена"
// @Failure 409 {object} response.ErrorResponse "Лицензия уже отозвана"
// @Router /licenses/{key}/revoke [post]
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Revoke")

	actorID, ok := h.caller(w, r, log)
	if !ok {
		return
	}
	var req RevokeRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	lic, err := h.svc.Revoke(r.Context(), chi.URLParam(r, "key"), actorID, req.Reason)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("license revoked", slog.String("license_id", lic.ID), slog.String("actor_id", actorID))
	render.JSON(w, r, response.OKWithData(lic))
}

// List godoc
// @Summary Лицензии учётной записи
// @Tags Licenses
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]models.License}
// @Router /licenses [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.List")

	ownerID, ok := h.caller(w, r, log)
	if !ok {
		return
	}

	licenses, err := h.svc.ListByOwner(r.Context(), ownerID)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(licenses))
}

// Usage godoc
// @Summary История использования лицензии
// @Tags Licenses
// @Produce  json
// @Security BearerAuth
// @Param key path string true "Ключ лицензии"
// @Success 200 {object} response.Response{data=license.UsageReport}
// @Failure 403 {object} response.ErrorResponse "Нет доступа"
// @Router /licenses/{key}/usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.licenses.Usage")

	ownerID, ok := h.caller(w, r, log)
	if !ok {
		return
	}

	report, err := h.svc.Usage(r.Context(), chi.URLParam(r, "key"), ownerID)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(report))
}

// Package demos реализует HTTP-обработчики пробного периода.
package demos

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
	"github.com/magabrotheeeer/licensing-backend/internal/services/demo"
)

// Service описывает операции менеджера пробного периода, нужные обработчикам.
type Service interface {
	Register(ctx context.Context, in demo.RegisterInput) (demo.RegisterResult, error)
	CheckFeatureAccess(ctx context.Context, identityID, feature string) (demo.AccessResult, error)
	Convert(ctx context.Context, identityID, subscriptionID, source string) (models.DemoSession, error)
	Status(ctx context.Context, identityID string) (demo.StatusResult, error)
	Abandon(ctx context.Context, sessionID, reason, actorID string) (models.DemoSession, error)
}

// RegisterRequest содержит данные регистрации пробного аккаунта.
type RegisterRequest struct {
	Email       string            `json:"email" validate:"required,email,max=254"`
	Password    string            `json:"password" validate:"max=128"`
	DisplayName string            `json:"display_name" validate:"max=128"`
	Extensions  models.Extensions `json:"extensions,omitempty"`
}

// AccessRequest задаёт функцию, доступ к которой проверяется.
type AccessRequest struct {
	Feature string `json:"feature" validate:"required,max=128"`
}

// ConvertRequest содержит данные перехода на платную подписку.
type ConvertRequest struct {
	IdentityID     string `json:"identity_id" validate:"required"`
	SubscriptionID string `json:"subscription_id" validate:"required"`
	Source         string `json:"source" validate:"max=64"`
}

// AbandonRequest — причина отказа от пробного периода.
type AbandonRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

// Handler обрабатывает запросы пробного периода.
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

// Register godoc
// @Summary Регистрация пробного периода
// @Description Создаёт демо-учётную запись (или переиспользует существующую) и открывает пробную сессию.
// @Tags Demo
// @Accept  json
// @Produce  json
// @Param request body RegisterRequest true "Данные регистрации"
// @Success 201 {object} response.Response{data=demo.RegisterResult}
// @Failure 409 {object} response.ErrorResponse "Полный аккаунт или активная сессия"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /demo/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.demos.Register")

	var req RegisterRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	res, err := h.svc.Register(r.Context(), demo.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Extensions:  req.Extensions,
	})
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("demo registered", slog.String("identity_id", res.Identity.ID), slog.String("session_id", res.Session.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}

// Access godoc
// @Summary Проверка доступа к функции
// @Description Проверяет, доступна ли функция текущей учётной записи в пробном периоде.
// @Tags Demo
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body AccessRequest true "Функция"
// @Success 200 {object} response.Response{data=demo.AccessResult}
// @Router /demo/access [post]
func (h *Handler) Access(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.demos.Access")

	identityID, ok := h.caller(w, r, log)
	if !ok {
		return
	}
	var req AccessRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	res, err := h.svc.CheckFeatureAccess(r.Context(), identityID, req.Feature)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Status godoc
// @Summary Состояние пробного периода
// @Tags Demo
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=demo.StatusResult}
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Router /demo/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.demos.Status")

	identityID, ok := h.caller(w, r, log)
	if !ok {
		return
	}

	res, err := h.svc.Status(r.Context(), identityID)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Convert godoc
// @Summary Переход на подписку
// @Description Отмечает пробную сессию учётной записи как конвертированную. Только для администраторов.
// @Tags Demo
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body ConvertRequest true "Данные подписки"
// @Success 200 {object} response.Response{data=models.DemoSession}
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Router /demo/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.demos.Convert")

	var req ConvertRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	session, err := h.svc.Convert(r.Context(), req.IdentityID, req.SubscriptionID, req.Source)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("demo converted", slog.String("identity_id", req.IdentityID), slog.String("session_id", session.ID))
	render.JSON(w, r, response.OKWithData(session))
}

// Abandon godoc
// @Summary Отказ от пробного периода
// @Description Переводит активную сессию в ABANDONED. Только для администраторов.
// @Tags Demo
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID сессии"
// @Param request body AbandonRequest true "Причина"
// @Success 200 {object} response.Response{data=models.DemoSession}
// @Failure 404 {object} response.ErrorResponse "Сессия не найдена"
// @Failure 409 {object} response.ErrorResponse "Сессия не активна"
// @Router /demo/{id}/abandon [post]
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.demos.Abandon")

	actorID, ok := h.caller(w, r, log)
	if !ok {
		return
	}
	var req AbandonRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	session, err := h.svc.Abandon(r.Context(), chi.URLParam(r, "id"), req.Reason, actorID)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(session))
}

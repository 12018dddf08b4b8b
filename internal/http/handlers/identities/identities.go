// Package identities реализует HTTP-обработчики учётных записей: регистрацию,
// вход, проверку email и синхронизацию существующих записей.
package identities

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/licensing-backend/internal/http/handlers"
	"github.com/magabrotheeeer/licensing-backend/internal/http/response"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
)

// Service описывает операции синхронизатора, нужные обработчикам.
type Service interface {
	CreateSynchronizedIdentity(ctx context.Context, email, pass string, profile identity.Profile) (identity.Result, error)
	SynchronizeExisting(ctx context.Context, identityID string) (models.Identity, error)
	CheckGlobal(ctx context.Context, email string) (identity.CheckResult, error)
	Login(ctx context.Context, email, pass string) (models.Identity, error)
}

// TokenMaker выпускает токены доступа.
type TokenMaker interface {
	GenerateToken(identityID, email, role string) (string, error)
}

// CreateRequest содержит данные регистрации учётной записи.
type CreateRequest struct {
	Email       string            `json:"email" validate:"required,email,max=254"`
	Password    string            `json:"password" validate:"required,min=8,max=128"`
	DisplayName string            `json:"display_name" validate:"max=128"`
	Extensions  models.Extensions `json:"extensions,omitempty"`
}

// LoginRequest содержит учётные данные для входа.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse — токен доступа и учётная запись.
type LoginResponse struct {
	Token    string          `json:"token"`
	Identity models.Identity `json:"identity"`
}

// Handler обрабатывает запросы к учётным записям.
type Handler struct {
	log      *slog.Logger
	svc      Service
	tokens   TokenMaker
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, svc Service, tokens TokenMaker) *Handler {
	return &Handler{
		log:      log,
		svc:      svc,
		tokens:   tokens,
		validate: validator.New(),
	}
}

// Create godoc
// @Summary Регистрация учётной записи
// @Description Создаёт учётную запись одновременно у провайдера и в хранилище документов.
// @Tags Identities
// @Accept  json
// @Produce  json
// @Param request body CreateRequest true "Данные учётной записи"
// @Success 201 {object} response.Response{data=identity.Result}
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 409 {object} response.ErrorResponse "Email уже зарегистрирован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /identities [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.identities.Create")

	var req CreateRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	res, err := h.svc.CreateSynchronizedIdentity(r.Context(), req.Email, req.Password, identity.Profile{
		DisplayName: req.DisplayName,
		Role:        models.RoleUser,
		Extensions:  req.Extensions,
	})
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("identity created", slog.String("identity_id", res.Identity.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.OKWithData(res))
}

// Login godoc
// @Summary Вход
// @Description Проверяет пароль у провайдера и возвращает JWT токен.
// @Tags Identities
// @Accept  json
// @Produce  json
// @Param request body LoginRequest true "Учетные данные"
// @Success 200 {object} response.Response{data=LoginResponse}
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.identities.Login")

	var req LoginRequest
	if !handlers.DecodeAndValidate(w, r, log, h.validate, &req) {
		return
	}

	ident, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	token, err := h.tokens.GenerateToken(ident.ID, ident.Email, string(ident.Role))
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal error"))
		return
	}

	log.Info("login success", slog.String("identity_id", ident.ID))
	render.JSON(w, r, response.OKWithData(LoginResponse{Token: token, Identity: ident}))
}

// Check godoc
// @Summary Проверка email
// @Description Проверяет, свободен ли email у провайдера и в хранилище документов.
// @Tags Identities
// @Produce  json
// @Param email query string true "Email"
// @Success 200 {object} response.Response{data=identity.CheckResult}
// @Failure 400 {object} response.ErrorResponse "Email не указан"
// @Failure 422 {object} response.ErrorResponse "Некорректный email"
// @Router /identities/check [get]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.identities.Check")

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("email query parameter is required"))
		return
	}

	res, err := h.svc.CheckGlobal(r.Context(), email)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}
	render.JSON(w, r, response.OKWithData(res))
}

// Sync godoc
// @Summary Синхронизация учётной записи
// @Description Создаёт или привязывает аккаунт провайдера для документа без внешнего ID.
// @Tags Identities
// @Produce  json
// @Security BearerAuth
// @Param id path string true "ID учётной записи"
// @Success 200 {object} response.Response{data=models.Identity}
// @Failure 403 {object} response.ErrorResponse "Требуется роль администратора"
// @Failure 404 {object} response.ErrorResponse "Учётная запись не найдена"
// @Router /identities/{id}/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	log := handlers.Logger(h.log, r, "handlers.identities.Sync")

	id := chi.URLParam(r, "id")
	ident, err := h.svc.SynchronizeExisting(r.Context(), id)
	if err != nil {
		handlers.WriteError(w, r, log, err)
		return
	}

	log.Info("identity synchronized", slog.String("identity_id", ident.ID))
	render.JSON(w, r, response.OKWithData(ident))
}

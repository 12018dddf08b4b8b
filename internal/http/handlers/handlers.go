// Package handlers содержит общие части HTTP-обработчиков: разбор тела запроса,
// сопоставление доменных ошибок с HTTP статусами и сведения о запросе.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/licensing-backend/internal/http/response"
	"github.com/magabrotheeeer/licensing-backend/internal/lib/sl"
	"github.com/magabrotheeeer/licensing-backend/internal/models"
	"github.com/magabrotheeeer/licensing-backend/internal/services/demo"
	"github.com/magabrotheeeer/licensing-backend/internal/services/identity"
	"github.com/magabrotheeeer/licensing-backend/internal/services/license"
	"github.com/magabrotheeeer/licensing-backend/internal/storage"
)

const maxBodyBytes = 1 << 20

type statusRule struct {
	err    error
	status int
}

// Порядок важен: StateError истёкшей лицензии совпадает и с ErrExpired, и с ErrTerminalState.
var statusRules = []statusRule{
	{storage.ErrTransient, http.StatusServiceUnavailable},

	{identity.ErrInvalidEmail, http.StatusUnprocessableEntity},
	{identity.ErrWeakCredential, http.StatusUnprocessableEntity},
	{identity.ErrInvalidProfile, http.StatusUnprocessableEntity},
	{identity.ErrEmailConflict, http.StatusConflict},
	{identity.ErrInvalidCredentials, http.StatusUnauthorized},
	{identity.ErrNotFound, http.StatusNotFound},

	{license.ErrWrongFormat, http.StatusBadRequest},
	{license.ErrAccessDenied, http.StatusForbidden},
	{license.ErrNotFound, http.StatusNotFound},
	{license.ErrExpired, http.StatusGone},
	{license.ErrTerminalState, http.StatusConflict},
	{license.ErrActivationLimitReached, http.StatusConflict},
	{license.ErrNotTransferable, http.StatusForbidden},
	{license.ErrRecipientNotFound, http.StatusNotFound},
	{license.ErrRecipientNotSynchronized, http.StatusUnprocessableEntity},
	{license.ErrOwnerNotFound, http.StatusNotFound},
	{license.ErrOwnerNotSynchronized, http.StatusUnprocessableEntity},
	{license.ErrInvalidInput, http.StatusUnprocessableEntity},
	{license.ErrKeyConflict, http.StatusConflict},

	{demo.ErrAlreadyFullAccount, http.StatusConflict},
	{demo.ErrAlreadyActiveDemo, http.StatusConflict},
	{demo.ErrSessionNotFound, http.StatusNotFound},
	{demo.ErrInvalidInput, http.StatusUnprocessableEntity},
	{demo.ErrInvalidTransition, http.StatusConflict},
}

// StatusFor возвращает HTTP статус и публичное сообщение для ошибки сервиса.
// Для ошибок состояния сообщение называет само состояние.
func StatusFor(err error) (int, string) {
	for _, rule := range statusRules {
		if !errors.Is(err, rule.err) {
			continue
		}
		var licState *license.StateError
		if errors.As(err, &licState) {
			return rule.status, licState.Error()
		}
		var demoState *demo.StateError
		if errors.As(err, &demoState) {
			return rule.status, demoState.Error()
		}
		return rule.status, rule.err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// errorData возвращает подробности отказа для поля data ответа или nil.
func errorData(err error) map[string]any {
	var conflict *identity.ConflictError
	if errors.As(err, &conflict) {
		return map[string]any{"found_in": conflict.FoundIn}
	}
	var licState *license.StateError
	if errors.As(err, &licState) {
		return map[string]any{"status": string(licState.Status)}
	}
	var demoState *demo.StateError
	if errors.As(err, &demoState) {
		return map[string]any{"from": string(demoState.From), "to": string(demoState.To)}
	}
	return nil
}

// WriteError пишет ответ с ошибкой сервиса. Внутренние ошибки логируются как Error,
// доменные отказы как Info.
func WriteError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", sl.Err(err))
	} else {
		log.Info("request rejected", slog.Int("status", status), sl.Err(err))
	}

	render.Status(r, status)
	if data := errorData(err); data != nil && status < http.StatusInternalServerError {
		render.JSON(w, r, response.ErrorWithData(msg, data))
		return
	}
	render.JSON(w, r, response.Error(msg))
}

// DecodeAndValidate читает JSON тело запроса в dst и проверяет его валидатором.
// При ошибке ответ уже записан и возвращается false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		log.Warn("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Warn("validation failed", sl.Err(err))
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return false
		}
		log.Error("validator failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return false
	}
	return true
}

// Logger возвращает логгер запроса с op и request_id.
func Logger(log *slog.Logger, r *http.Request, op string) *slog.Logger {
	return log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)
}

// Meta собирает сведения о клиенте для журнала использования.
func Meta(r *http.Request) models.RequestMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return models.RequestMeta{
		IP:        ip,
		UserAgent: r.UserAgent(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

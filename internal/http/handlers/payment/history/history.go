// Package history HTTP-обработчик журнала платежей пользователя.
package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// Service читает журнал платежей.
type Service interface {
	History(ctx context.Context, userID string) ([]models.Payment, error)
}

// Handler обрабатывает GET /payments/history.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary История платежей
// @Description Платежи пользователя, новые сверху.
// @Tags Payments
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.Payment}
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /payments/history [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.history"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	payments, err := h.service.History(r.Context(), userID)
	if err != nil {
		log.Error("failed to list payments", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}
	if payments == nil {
		payments = []models.Payment{}
	}

	render.JSON(w, r, response.StatusOKWithData(payments))
}

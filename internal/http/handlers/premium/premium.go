// Package premium HTTP-обработчики платных разделов. Доступ к ним
// ограничивает middlewarectx.AccessMiddleware.
package premium

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/http/middlewarectx"
	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
)

// MetricsResponse ответ платного раздела метрик.
type MetricsResponse struct {
	Message      string          `json:"message"`
	Subscription access.Decision `json:"subscription"`
}

// MetricsHandler обрабатывает GET /premium/metrics.
type MetricsHandler struct {
	log *slog.Logger
}

// NewMetrics создает MetricsHandler.
func NewMetrics(log *slog.Logger) *MetricsHandler {
	return &MetricsHandler{log: log}
}

// ServeHTTP godoc
// @Summary Платные метрики
// @Description Доступно в пробный период и при активной подписке. Иначе 402 с тарифами.
// @Tags Premium
// @Security BearerAuth
// @Produce  json
// @Success 200 {object} response.Response{data=MetricsResponse}
// @Failure 401 {object} response.ErrorResponse "Нет токена"
// @Failure 402 {object} response.Response{data=middlewarectx.PaymentRequired} "Нужна подписка"
// @Router /premium/metrics [get]
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.premium.metrics"

	d, ok := middlewarectx.DecisionFromContext(r.Context())
	if !ok {
		h.log.Error("access decision missing",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("internal service error"))
		return
	}

	userID, _ := middlewarectx.UserIDFromContext(r.Context())
	h.log.Debug("premium metrics served", slog.String("op", op), sl.UserID(userID), slog.String("mode", string(d.Mode)))

	render.JSON(w, r, response.StatusOKWithData(MetricsResponse{
		Message:      "premium metrics available",
		Subscription: d,
	}))
}

package middlewarectx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/access"
	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/lib/sl"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
	subscription "github.com/magabrotheeeer/drivemetrics/internal/services/subscription"
)

// Decision ключ решения о доступе в контексте.
const Decision Key = "access_decision"

// AccessChecker вычисляет доступ пользователя.
type AccessChecker interface {
	Status(ctx context.Context, userID string) (access.Decision, error)
	Plans() []models.Plan
}

// PaymentRequired тело ответа 402.
type PaymentRequired struct {
	Subscription access.Decision `json:"subscription"`
	Plans        []models.Plan   `json:"plans"`
}

// AccessMiddleware пропускает запрос только при открытом доступе.
// Иначе отвечает 402 с текущим статусом и тарифами для оплаты.
func AccessMiddleware(checker AccessChecker, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.AccessMiddleware"
			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			d, err := checker.Status(r.Context(), userID)
			switch {
			case errors.Is(err, subscription.ErrUserNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("user not found"))
				return
			case err != nil:
				log.Error("failed to check access", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.Error("internal service error"))
				return
			}

			if !d.Allowed() {
				log.Info("access denied", sl.UserID(userID), slog.String("mode", string(d.Mode)))
				render.Status(r, http.StatusPaymentRequired)
				render.JSON(w, r, response.ErrorWithData("subscription required", PaymentRequired{
					Subscription: d,
					Plans:        checker.Plans(),
				}))
				return
			}

			ctx := context.WithValue(r.Context(), Decision, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext возвращает решение, положенное AccessMiddleware.
func DecisionFromContext(ctx context.Context) (access.Decision, bool) {
	d, ok := ctx.Value(Decision).(access.Decision)
	return d, ok
}

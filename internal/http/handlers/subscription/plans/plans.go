// Package plans HTTP-обработчик каталога тарифов.
package plans

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/drivemetrics/internal/http/response"
	"github.com/magabrotheeeer/drivemetrics/internal/models"
)

// Catalog источник тарифов.
type Catalog interface {
	Plans() []models.Plan
}

// Handler обрабатывает GET /plans.
type Handler struct {
	catalog Catalog
}

// New создает Handler.
func New(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// ServeHTTP godoc
// @Summary Тарифы
// @Description Доступные тарифы, цены в сентаво.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response{data=[]models.Plan}
// @Router /plans [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, response.StatusOKWithData(h.catalog.Plans()))
}

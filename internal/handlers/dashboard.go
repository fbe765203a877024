package handlers

import (
	"net/http"
	"time"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/internal/services"
)

type DashboardHandler struct {
	dashboard *services.DashboardService
}

func NewDashboardHandler(dashboard *services.DashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Show renders the summary for the optional from/to (YYYY-MM-DD) range.
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		from, _ = time.Parse(dateLayout, v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, _ = time.Parse(dateLayout, v)
	}
	summary, err := h.dashboard.Summary(r.Context(), from, to)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, summary)
		return
	}
	render(w, r, "dashboard.html", map[string]any{"Dashboard": summary})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/validation"
	"github.com/shopspring/decimal"
)

type ArticleHandler struct {
	catalog *services.CatalogService
}

func NewArticleHandler(catalog *services.CatalogService) *ArticleHandler {
	return &ArticleHandler{catalog: catalog}
}

func (h *ArticleHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	articles, err := h.catalog.ListArticles(r.Context(), query)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"items": articles, "total": len(articles)})
		return
	}
	render(w, r, "articles/index.html", map[string]any{
		"Articles": articles,
		"Query":    query,
	})
}

// Price returns the catalogue price used to prefill an order line.
func (h *ArticleHandler) Price(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	price, err := h.catalog.ArticlePrice(r.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
			return
		}
		serverError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]json.Number{"unit_price": json.Number(price.String())})
}

func (h *ArticleHandler) New(w http.ResponseWriter, r *http.Request) {
	render(w, r, "articles/form.html", map[string]any{"Article": &models.Article{}})
}

func (h *ArticleHandler) Create(w http.ResponseWriter, r *http.Request) {
	a, errs, err := articleFromRequest(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	a.ID = 0
	h.save(w, r, a, errs, http.StatusCreated)
}

func (h *ArticleHandler) View(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, a)
		return
	}
	render(w, r, "articles/view.html", map[string]any{"Article": a})
}

func (h *ArticleHandler) Edit(w http.ResponseWriter, r *http.Request) {
	a, ok := h.load(w, r)
	if !ok {
		return
	}
	render(w, r, "articles/form.html", map[string]any{"Article": a})
}

func (h *ArticleHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	a, errs, err := articleFromRequest(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	a.ID = existing.ID
	h.save(w, r, a, errs, http.StatusOK)
}

func (h *ArticleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return
	}
	if err := h.catalog.DeleteArticle(r.Context(), id); err != nil {
		if services.IsInUse(err) && !httpx.WantsJSON(r) {
			httpx.RedirectWithFlash(w, r, "/articles", flash(r, "in_use"))
			return
		}
		if services.IsNotFound(err) {
			notFound(w, r)
			return
		}
		writeError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpx.RedirectWithFlash(w, r, "/articles", flash(r, "article.deleted"))
}

func (h *ArticleHandler) save(w http.ResponseWriter, r *http.Request, a *models.Article, errs validation.Violations, okStatus int) {
	asJSON := httpx.IsJSONBody(r) || httpx.WantsJSON(r)
	reject := func(status int, v validation.Violations) {
		if asJSON {
			httpx.JSONError(w, status, "validation_failed", v)
			return
		}
		renderWithStatus(w, r, status, "articles/form.html", map[string]any{"Article": a, "Errors": v})
	}
	if !errs.Empty() {
		reject(http.StatusUnprocessableEntity, errs)
		return
	}

	err := h.catalog.SaveArticle(r.Context(), a)
	if err == nil {
		if asJSON {
			httpx.JSON(w, okStatus, a)
			return
		}
		httpx.RedirectWithFlash(w, r, "/articles", flash(r, "article.saved"))
		return
	}
	if ve, ok := services.AsValidation(err); ok {
		reject(http.StatusUnprocessableEntity, ve.Violations)
		return
	}
	if asJSON {
		writeError(w, r, err)
		return
	}
	if services.IsNotFound(err) {
		http.NotFound(w, r)
		return
	}
	serverError(w, r, err)
}

func (h *ArticleHandler) load(w http.ResponseWriter, r *http.Request) (*models.Article, bool) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return nil, false
	}
	a, err := h.catalog.GetArticle(r.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			notFound(w, r)
		} else {
			serverError(w, r, err)
		}
		return nil, false
	}
	return a, true
}

// articleFromRequest reads an article from a JSON body or the HTML form.
// Unparsable form numbers are reported as violations.
func articleFromRequest(r *http.Request) (*models.Article, validation.Violations, error) {
	a := &models.Article{}
	errs := make(validation.Violations)
	if httpx.IsJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(a); err != nil {
			return nil, errs, err
		}
		return a, errs, nil
	}
	a.Name = r.FormValue("name")
	a.Description = r.FormValue("description")
	if raw := strings.ReplaceAll(strings.TrimSpace(r.FormValue("unit_price")), ",", "."); raw != "" {
		if p, err := decimal.NewFromString(raw); err == nil {
			a.UnitPrice = p
		} else {
			errs["unit_price"] = "invalid"
		}
	}
	if raw := strings.TrimSpace(r.FormValue("stock")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			a.Stock = n
		} else {
			errs["stock"] = "invalid"
		}
	}
	return a, errs, nil
}

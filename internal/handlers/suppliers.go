package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/validation"
)

type SupplierHandler struct {
	catalog *services.CatalogService
}

func NewSupplierHandler(catalog *services.CatalogService) *SupplierHandler {
	return &SupplierHandler{catalog: catalog}
}

func (h *SupplierHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	suppliers, err := h.catalog.ListSuppliers(r.Context(), query)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]any{"items": suppliers, "total": len(suppliers)})
		return
	}
	render(w, r, "suppliers/index.html", map[string]any{
		"Suppliers": suppliers,
		"Query":     query,
	})
}

func (h *SupplierHandler) New(w http.ResponseWriter, r *http.Request) {
	render(w, r, "suppliers/form.html", map[string]any{"Supplier": &models.Supplier{}})
}

func (h *SupplierHandler) Create(w http.ResponseWriter, r *http.Request) {
	sup, err := supplierFromRequest(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	sup.ID = 0
	h.save(w, r, sup, http.StatusCreated)
}

func (h *SupplierHandler) View(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.load(w, r)
	if !ok {
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, sup)
		return
	}
	render(w, r, "suppliers/view.html", map[string]any{"Supplier": sup})
}

func (h *SupplierHandler) Edit(w http.ResponseWriter, r *http.Request) {
	sup, ok := h.load(w, r)
	if !ok {
		return
	}
	render(w, r, "suppliers/form.html", map[string]any{"Supplier": sup})
}

func (h *SupplierHandler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	sup, err := supplierFromRequest(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	sup.ID = existing.ID
	h.save(w, r, sup, http.StatusOK)
}

func (h *SupplierHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return
	}
	if err := h.catalog.DeleteSupplier(r.Context(), id); err != nil {
		if services.IsInUse(err) && !httpx.WantsJSON(r) {
			httpx.RedirectWithFlash(w, r, "/suppliers", flash(r, "in_use"))
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
	httpx.RedirectWithFlash(w, r, "/suppliers", flash(r, "supplier.deleted"))
}

func (h *SupplierHandler) save(w http.ResponseWriter, r *http.Request, sup *models.Supplier, okStatus int) {
	asJSON := httpx.IsJSONBody(r) || httpx.WantsJSON(r)
	err := h.catalog.SaveSupplier(r.Context(), sup)
	if err == nil {
		if asJSON {
			httpx.JSON(w, okStatus, sup)
			return
		}
		httpx.RedirectWithFlash(w, r, "/suppliers", flash(r, "supplier.saved"))
		return
	}
	if asJSON {
		writeError(w, r, err)
		return
	}
	switch {
	case services.IsNotFound(err):
		http.NotFound(w, r)
	case services.IsInUse(err):
		renderWithStatus(w, r, http.StatusConflict, "suppliers/form.html", map[string]any{
			"Supplier": sup,
			"Errors":   validation.Violations{"form": "in_use"},
		})
	default:
		if ve, ok := services.AsValidation(err); ok {
			renderWithStatus(w, r, http.StatusUnprocessableEntity, "suppliers/form.html", map[string]any{
				"Supplier": sup,
				"Errors":   ve.Violations,
			})
			return
		}
		serverError(w, r, err)
	}
}

func (h *SupplierHandler) load(w http.ResponseWriter, r *http.Request) (*models.Supplier, bool) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return nil, false
	}
	sup, err := h.catalog.GetSupplier(r.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			notFound(w, r)
		} else {
			serverError(w, r, err)
		}
		return nil, false
	}
	return sup, true
}

func supplierFromRequest(r *http.Request) (*models.Supplier, error) {
	sup := &models.Supplier{}
	if httpx.IsJSONBody(r) {
		if err := json.NewDecoder(r.Body).Decode(sup); err != nil {
			return nil, err
		}
		return sup, nil
	}
	sup.Name = r.FormValue("name")
	sup.Address = r.FormValue("address")
	sup.Phone = r.FormValue("phone")
	sup.Email = r.FormValue("email")
	return sup, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/go-approvisionnements/httpx"
	"github.com/diewo77/go-approvisionnements/internal/export"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/validation"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	orders  *services.OrderService
	listing *services.ListingService
	catalog *services.CatalogService
}

func NewOrderHandler(orders *services.OrderService, listing *services.ListingService, catalog *services.CatalogService) *OrderHandler {
	return &OrderHandler{orders: orders, listing: listing, catalog: catalog}
}

// pageLink is one entry of the listing pager.
type pageLink struct {
	Number  int
	URL     string
	Current bool
}

func pageURL(q url.Values, page int) string {
	next := url.Values{}
	for k, v := range q {
		next[k] = v
	}
	next.Set("page", strconv.Itoa(page))
	return "/orders?" + next.Encode()
}

func pager(q url.Values, res *services.ListingResult) []pageLink {
	links := make([]pageLink, 0, res.TotalPages)
	for p := 1; p <= res.TotalPages; p++ {
		links = append(links, pageLink{Number: p, URL: pageURL(q, p), Current: p == res.Page})
	}
	return links
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.listing.List(r.Context(), decodeListing(q))
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, res)
		return
	}

	exportQuery := url.Values{}
	for k, v := range q {
		if k != "page" {
			exportQuery[k] = v
		}
	}
	render(w, r, "orders/index.html", map[string]any{
		"Result":    res,
		"Pages":     pager(q, res),
		"PrevURL":   pageURL(q, res.Page-1),
		"NextURL":   pageURL(q, res.Page+1),
		"ExportURL": "/orders/export?" + exportQuery.Encode(),
		"SortKeys":  services.SortKeys,
		"Statuses":  models.OrderStatuses,
	})
}

// Export streams the whole filtered listing as an XLSX workbook.
func (h *OrderHandler) Export(w http.ResponseWriter, r *http.Request) {
	orders, stats, err := h.listing.All(r.Context(), decodeListing(r.URL.Query()))
	if err != nil {
		serverError(w, r, err)
		return
	}
	filename := fmt.Sprintf("approvisionnements-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Write(w, lang(r), orders, stats); err != nil {
		serverError(w, r, err)
	}
}

// formData gathers what the create/edit form needs to render.
func (h *OrderHandler) formData(ctx context.Context, in services.OrderInput, errs validation.Violations) (map[string]any, error) {
	suppliers, err := h.catalog.SupplierOptions(ctx)
	if err != nil {
		return nil, err
	}
	articles, err := h.catalog.ArticleOptions(ctx)
	if err != nil {
		return nil, err
	}
	lines := in.Lines
	if len(lines) == 0 {
		lines = []services.LineInput{{}}
	}
	return map[string]any{
		"Input":     in,
		"Lines":     lines,
		"Suppliers": suppliers,
		"Articles":  articles,
		"Errors":    errs,
	}, nil
}

func (h *OrderHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, order *models.Order, in services.OrderInput, errs validation.Violations) {
	data, err := h.formData(r.Context(), in, errs)
	if err != nil {
		serverError(w, r, err)
		return
	}
	data["Order"] = order
	renderWithStatus(w, r, status, "orders/form.html", data)
}

func (h *OrderHandler) New(w http.ResponseWriter, r *http.Request) {
	in := services.OrderInput{OrderDate: time.Now()}
	h.renderForm(w, r, http.StatusOK, nil, in, nil)
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, errs, err := parseOrderInput(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if !errs.Empty() {
		h.rejectInput(w, r, nil, in, errs)
		return
	}

	order, err := h.orders.Create(r.Context(), in)
	if err != nil {
		h.writeFailure(w, r, nil, in, err)
		return
	}
	if httpx.IsJSONBody(r) || httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusCreated, order)
		return
	}
	httpx.RedirectWithFlash(w, r, "/orders", flash(r, "order.created"))
}

func (h *OrderHandler) View(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r)
	if !ok {
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, order)
		return
	}
	render(w, r, "orders/view.html", map[string]any{
		"Order":    order,
		"Statuses": models.OrderStatuses,
	})
}

func (h *OrderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, order, services.InputFromOrder(order), nil)
}

func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	order, ok := h.load(w, r)
	if !ok {
		return
	}
	in, errs, err := parseOrderInput(r)
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if !errs.Empty() {
		h.rejectInput(w, r, order, in, errs)
		return
	}

	updated, err := h.orders.Update(r.Context(), order.ID, in)
	if err != nil {
		h.writeFailure(w, r, order, in, err)
		return
	}
	if httpx.IsJSONBody(r) || httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, updated)
		return
	}
	httpx.RedirectWithFlash(w, r, "/orders", flash(r, "order.updated"))
}

// Delete removes an order. Unknown ids redirect to the listing without a message.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}
	deleted, err := h.orders.Delete(r.Context(), id)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
		return
	}
	msg := ""
	if deleted {
		msg = flash(r, "order.deleted")
	}
	httpx.RedirectWithFlash(w, r, "/orders", msg)
}

// SetStatus changes the status of an order. Unknown ids redirect to the listing without a message.
func (h *OrderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var status string
	if httpx.IsJSONBody(r) {
		var body struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
			return
		}
		status = body.Status
	} else {
		status = r.FormValue("status")
	}

	id, ok := pathID(r)
	if !ok {
		http.Redirect(w, r, "/orders", http.StatusSeeOther)
		return
	}
	updated, err := h.orders.SetStatus(r.Context(), id, models.OrderStatus(strings.TrimSpace(status)))
	if err != nil {
		if ve, ok := services.AsValidation(err); ok && !httpx.IsJSONBody(r) && !httpx.WantsJSON(r) {
			httpx.RedirectWithFlash(w, r, "/orders", flash(r, ve.Violations["status"]))
			return
		}
		writeError(w, r, err)
		return
	}
	if httpx.IsJSONBody(r) || httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, map[string]bool{"updated": updated})
		return
	}
	msg := ""
	if updated {
		msg = flash(r, "order.status_set")
	}
	httpx.RedirectWithFlash(w, r, "/orders", msg)
}

// load fetches the order named by the path and writes a 404 when it does not exist.
func (h *OrderHandler) load(w http.ResponseWriter, r *http.Request) (*models.Order, bool) {
	id, ok := pathID(r)
	if !ok {
		notFound(w, r)
		return nil, false
	}
	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if services.IsNotFound(err) {
			notFound(w, r)
		} else {
			serverError(w, r, err)
		}
		return nil, false
	}
	return order, true
}

func (h *OrderHandler) rejectInput(w http.ResponseWriter, r *http.Request, order *models.Order, in services.OrderInput, errs validation.Violations) {
	if httpx.IsJSONBody(r) || httpx.WantsJSON(r) {
		httpx.JSONError(w, http.StatusUnprocessableEntity, "validation_failed", errs)
		return
	}
	h.renderForm(w, r, http.StatusUnprocessableEntity, order, in, errs)
}

// writeFailure reports a failed create or update, re-rendering the form for browsers.
func (h *OrderHandler) writeFailure(w http.ResponseWriter, r *http.Request, order *models.Order, in services.OrderInput, err error) {
	if httpx.IsJSONBody(r) || httpx.WantsJSON(r) {
		if errors.Is(err, services.ErrReference) {
			httpx.JSONError(w, http.StatusConflict, "constraint_violation", validation.Violations{"form": "unknown_reference"})
			return
		}
		writeError(w, r, err)
		return
	}
	if ve, ok := services.AsValidation(err); ok {
		h.renderForm(w, r, http.StatusUnprocessableEntity, order, in, ve.Violations)
		return
	}
	switch {
	case errors.Is(err, services.ErrReference):
		h.renderForm(w, r, http.StatusConflict, order, in, validation.Violations{"form": "unknown_reference"})
	case errors.Is(err, services.ErrConstraint):
		h.renderForm(w, r, http.StatusConflict, order, in, validation.Violations{"form": "reference_conflict"})
	case errors.Is(err, services.ErrNotFound):
		notFound(w, r)
	default:
		serverError(w, r, err)
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) || httpx.IsJSONBody(r) {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	http.NotFound(w, r)
}

// orderPayload is the JSON body of order create/update requests.
type orderPayload struct {
	OrderDate    string               `json:"order_date"`
	SupplierID   uint                 `json:"supplier_id"`
	Observations string               `json:"observations"`
	Lines        []services.LineInput `json:"lines"`
}

// parseOrderInput reads an order from a JSON body or from the HTML form. The
// form sends lines as parallel line_article_id / line_quantity / line_unit_price
// fields; rows without an article are ignored. err is only set for malformed JSON.
func parseOrderInput(r *http.Request) (services.OrderInput, validation.Violations, error) {
	errs := make(validation.Violations)
	var in services.OrderInput

	if httpx.IsJSONBody(r) {
		var p orderPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return in, errs, err
		}
		in = services.OrderInput{SupplierID: p.SupplierID, Observations: p.Observations, Lines: p.Lines}
		in.OrderDate = parseDate("order_date", p.OrderDate, errs)
		return in, errs, nil
	}

	if err := r.ParseForm(); err != nil {
		errs["form"] = "invalid"
		return in, errs, nil
	}
	in.OrderDate = parseDate("order_date", r.PostFormValue("order_date"), errs)
	if s := strings.TrimSpace(r.PostFormValue("supplier_id")); s != "" {
		if id, err := strconv.ParseUint(s, 10, 64); err == nil {
			in.SupplierID = uint(id)
		} else {
			errs["supplier_id"] = "invalid"
		}
	}
	in.Observations = r.PostFormValue("observations")

	articles := r.PostForm["line_article_id"]
	quantities := r.PostForm["line_quantity"]
	prices := r.PostForm["line_unit_price"]
	for i, a := range articles {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		n := len(in.Lines)
		line := services.LineInput{}
		if id, err := strconv.ParseUint(a, 10, 64); err == nil {
			line.ArticleID = uint(id)
		} else {
			errs[fmt.Sprintf("lines[%d].article_id", n)] = "invalid"
		}
		if i < len(quantities) {
			if q, err := strconv.Atoi(strings.TrimSpace(quantities[i])); err == nil {
				line.Quantity = q
			} else {
				errs[fmt.Sprintf("lines[%d].quantity", n)] = "invalid"
			}
		}
		if i < len(prices) {
			raw := strings.ReplaceAll(strings.TrimSpace(prices[i]), ",", ".")
			if p, err := decimal.NewFromString(raw); err == nil {
				line.UnitPrice = p
			} else {
				errs[fmt.Sprintf("lines[%d].unit_price", n)] = "invalid"
			}
		}
		in.Lines = append(in.Lines, line)
	}
	return in, errs, nil
}

// parseDate parses a YYYY-MM-DD value. An empty value is left to service validation.
func parseDate(field, raw string, errs validation.Violations) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		errs[field] = "invalid_date"
		return time.Time{}
	}
	return t
}

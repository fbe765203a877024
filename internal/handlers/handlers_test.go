package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/go-approvisionnements/internal/cache"
	"github.com/diewo77/go-approvisionnements/internal/models"
	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/diewo77/go-approvisionnements/view"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	orders    *OrderHandler
	suppliers *SupplierHandler
	articles  *ArticleHandler
	dashboard *DashboardHandler
	supplier  models.Supplier
	article   models.Article
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	view.ResetForTests()
	view.SetBaseDir("../../templates")

	catalog := services.NewCatalogService(db, cache.NewMemory(), time.Minute)
	env := &testEnv{
		db:        db,
		orders:    NewOrderHandler(services.NewOrderService(db), services.NewListingService(db, catalog), catalog),
		suppliers: NewSupplierHandler(catalog),
		articles:  NewArticleHandler(catalog),
		dashboard: NewDashboardHandler(services.NewDashboardService(db)),
		supplier:  models.Supplier{Name: "Textiles Dakar SARL", Email: "contact@textilesdakar.sn"},
		article:   models.Article{Name: "Tissu Bazin Riche", UnitPrice: decimal.NewFromInt(15000), Stock: 100},
	}
	if err := db.Create(&env.supplier).Error; err != nil {
		t.Fatalf("supplier: %v", err)
	}
	if err := db.Create(&env.article).Error; err != nil {
		t.Fatalf("article: %v", err)
	}
	return env
}

func today() string {
	return time.Now().Format(dateLayout)
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withID(req *http.Request, id any) *http.Request {
	req.SetPathValue("id", fmt.Sprint(id))
	return req
}

func orderForm(supplierID, articleID uint, qty, price string) url.Values {
	return url.Values{
		"order_date":      {today()},
		"supplier_id":     {fmt.Sprint(supplierID)},
		"observations":    {"Livraison urgente"},
		"line_article_id": {fmt.Sprint(articleID), ""},
		"line_quantity":   {qty, ""},
		"line_unit_price": {price, ""},
	}
}

func flashCookie(w *httptest.ResponseRecorder) string {
	for _, c := range w.Result().Cookies() {
		if c.Name == "flash" {
			v, _ := url.QueryUnescape(c.Value)
			return v
		}
	}
	return ""
}

func TestOrderCreateFormRedirectsWithFlash(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.orders.Create(w, postForm("/orders", orderForm(env.supplier.ID, env.article.ID, "10", "15000")))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("expected 303 got %d: %s", w.Code, w.Body.String())
	}
	assert.Equal(t, "/orders", w.Header().Get("Location"))
	assert.Equal(t, "Approvisionnement créé avec succès.", flashCookie(w))

	var order models.Order
	require.NoError(t, env.db.Preload("Lines").First(&order).Error)
	assert.Equal(t, fmt.Sprintf("APP-%d-001", time.Now().Year()), order.Reference)
	assert.Len(t, order.Lines, 1, "blank rows are skipped")
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(150000)))
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestOrderCreateFormInvalidRerenders(t *testing.T) {
	env := setupTestEnv(t)
	form := orderForm(0, env.article.ID, "0", "15000")
	form.Del("supplier_id")

	w := httptest.NewRecorder()
	env.orders.Create(w, postForm("/orders", form))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Requis")
	assert.Contains(t, body, "Livraison urgente", "input is kept")
	var count int64
	env.db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestOrderCreateFormBadDate(t *testing.T) {
	env := setupTestEnv(t)
	form := orderForm(env.supplier.ID, env.article.ID, "1", "15000")
	form.Set("order_date", "31/12/2024")

	w := httptest.NewRecorder()
	env.orders.Create(w, postForm("/orders", form))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Date invalide")
}

func TestOrderCreateUnknownSupplier(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.orders.Create(w, postForm("/orders", orderForm(9999, env.article.ID, "1", "15000")))

	assert.Equal(t, http.StatusConflict, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Fournisseur ou article introuvable.")
	assert.NotContains(t, body, "Référence déjà utilisée")

	body = fmt.Sprintf(`{"order_date":%q,"supplier_id":9999,"lines":[{"article_id":%d,"quantity":1,"unit_price":15000}]}`,
		today(), env.article.ID)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.orders.Create(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	var payload struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "constraint_violation", payload.Error)
	assert.Equal(t, "unknown_reference", payload.Details["form"])
}

func TestOrderDuplicateReferenceRerenders(t *testing.T) {
	env := setupTestEnv(t)
	err := fmt.Errorf("create order: %w", services.ErrDuplicate)

	w := httptest.NewRecorder()
	env.orders.writeFailure(w, postForm("/orders", nil), nil, services.OrderInput{}, err)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Référence déjà utilisée")
}

func TestOrderCreateJSON(t *testing.T) {
	env := setupTestEnv(t)
	body := fmt.Sprintf(`{"order_date":%q,"supplier_id":%d,"lines":[{"article_id":%d,"quantity":3,"unit_price":14000}]}`,
		today(), env.supplier.ID, env.article.ID)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.orders.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", w.Code, w.Body.String())
	}
	var order models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(42000)))
	assert.Len(t, order.Lines, 1)
}

func TestOrderCreateJSONValidation(t *testing.T) {
	env := setupTestEnv(t)
	body := fmt.Sprintf(`{"order_date":%q,"supplier_id":%d,"lines":[]}`, today(), env.supplier.ID)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.orders.Create(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var payload struct {
		Error   string            `json:"error"`
		Details map[string]string `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "validation_failed", payload.Error)
	assert.Equal(t, "at_least_one_line", payload.Details["lines"])
}

func TestOrderCreateJSONMalformed(t *testing.T) {
	env := setupTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"order_date":`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	env.orders.Create(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func createOrder(t *testing.T, env *testEnv, qty int, price int64) *models.Order {
	t.Helper()
	order, err := services.NewOrderService(env.db).Create(t.Context(), services.OrderInput{
		OrderDate:  time.Now(),
		SupplierID: env.supplier.ID,
		Lines:      []services.LineInput{{ArticleID: env.article.ID, Quantity: qty, UnitPrice: decimal.NewFromInt(price)}},
	})
	require.NoError(t, err)
	return order
}

func TestOrderListHTMLAndJSON(t *testing.T) {
	env := setupTestEnv(t)
	first := createOrder(t, env, 10, 15000)
	createOrder(t, env, 2, 15000)

	w := httptest.NewRecorder()
	env.orders.List(w, httptest.NewRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), first.Reference)
	assert.Contains(t, w.Body.String(), "Textiles Dakar SARL")

	req := httptest.NewRequest(http.MethodGet, "/orders?q="+url.QueryEscape(first.Reference)+"&page=abc", nil)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	env.orders.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var res services.ListingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Orders, 1)
	assert.Equal(t, first.Reference, res.Orders[0].Reference)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, int64(1), res.Stats.OrderCount)
	require.NotNil(t, res.Stats.Leading)
	assert.Equal(t, "100", res.Stats.Leading.Percentage.String())
}

func TestOrderViewAndNotFound(t *testing.T) {
	env := setupTestEnv(t)
	order := createOrder(t, env, 4, 15000)

	w := httptest.NewRecorder()
	env.orders.View(w, withID(httptest.NewRequest(http.MethodGet, "/orders/1", nil), order.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), order.Reference)
	assert.Contains(t, w.Body.String(), "Tissu Bazin Riche")

	w = httptest.NewRecorder()
	env.orders.View(w, withID(httptest.NewRequest(http.MethodGet, "/orders/999", nil), 999))
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := withID(httptest.NewRequest(http.MethodGet, "/orders/999", nil), 999)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	env.orders.View(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, w.Body.String())
}

func TestOrderEditAndUpdate(t *testing.T) {
	env := setupTestEnv(t)
	order := createOrder(t, env, 4, 15000)

	w := httptest.NewRecorder()
	env.orders.Edit(w, withID(httptest.NewRequest(http.MethodGet, "/orders/1/edit", nil), order.ID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `value="4"`)

	w = httptest.NewRecorder()
	env.orders.Update(w, withID(postForm("/orders/1", orderForm(env.supplier.ID, env.article.ID, "2", "12000")), order.ID))
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "Approvisionnement modifié avec succès.", flashCookie(w))

	var stored models.Order
	require.NoError(t, env.db.Preload("Lines").First(&stored, order.ID).Error)
	assert.Equal(t, order.Reference, stored.Reference)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, 2, stored.Lines[0].Quantity)
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(24000)))
}

func TestOrderDelete(t *testing.T) {
	env := setupTestEnv(t)
	order := createOrder(t, env, 1, 15000)

	w := httptest.NewRecorder()
	env.orders.Delete(w, withID(postForm("/orders/1/delete", nil), order.ID))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "Approvisionnement supprimé avec succès.", flashCookie(w))

	var count int64
	env.db.Model(&models.OrderLine{}).Count(&count)
	assert.Zero(t, count)

	// Unknown ids are a silent redirect.
	for _, id := range []string{"999", "abc"} {
		w = httptest.NewRecorder()
		env.orders.Delete(w, withID(postForm("/orders/x/delete", nil), id))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/orders", w.Header().Get("Location"))
		assert.Empty(t, flashCookie(w))
	}
}

func TestOrderSetStatus(t *testing.T) {
	env := setupTestEnv(t)
	order := createOrder(t, env, 1, 15000)

	w := httptest.NewRecorder()
	env.orders.SetStatus(w, withID(postForm("/orders/1/status", url.Values{"status": {"received"}}), order.ID))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "Statut mis à jour avec succès.", flashCookie(w))

	var stored models.Order
	require.NoError(t, env.db.First(&stored, order.ID).Error)
	assert.Equal(t, models.OrderStatusReceived, stored.Status)

	w = httptest.NewRecorder()
	env.orders.SetStatus(w, withID(postForm("/orders/1/status", url.Values{"status": {"received"}}), 999))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Empty(t, flashCookie(w))

	req := withID(httptest.NewRequest(http.MethodPost, "/orders/1/status", strings.NewReader(`{"status":"shipped"}`)), order.ID)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.orders.SetStatus(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOrderExport(t *testing.T) {
	env := setupTestEnv(t)
	createOrder(t, env, 10, 15000)
	createOrder(t, env, 1, 15000)

	w := httptest.NewRecorder()
	env.orders.Export(w, httptest.NewRequest(http.MethodGet, "/orders/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Approvisionnements")
	require.NoError(t, err)
	assert.Len(t, rows, 4, "header, two orders, summary")
}

func TestDecodeListing(t *testing.T) {
	q := url.Values{
		"q":           {"  dakar "},
		"supplier_id": {"3"},
		"article_id":  {"abc"},
		"date_from":   {"2024-03-01"},
		"date_to":     {"not-a-date"},
		"sort":        {"amount_desc"},
		"page":        {"2"},
	}
	req := decodeListing(q)
	assert.Equal(t, "  dakar ", req.Search)
	assert.Equal(t, uint(3), req.SupplierID)
	assert.Zero(t, req.ArticleID)
	require.NotNil(t, req.DateFrom)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *req.DateFrom)
	assert.Nil(t, req.DateTo)
	assert.Equal(t, services.SortAmountDesc, req.Sort)
	assert.Equal(t, 2, req.Page)

	assert.Equal(t, services.ListingRequest{}, decodeListing(url.Values{}))
}

func TestArticlePrice(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.articles.Price(w, withID(httptest.NewRequest(http.MethodGet, "/articles/1/price", nil), env.article.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"unit_price":15000}`, w.Body.String())

	w = httptest.NewRecorder()
	env.articles.Price(w, withID(httptest.NewRequest(http.MethodGet, "/articles/999/price", nil), 999))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found"}`, w.Body.String())
}

func TestArticleCreateValidation(t *testing.T) {
	env := setupTestEnv(t)

	w := httptest.NewRecorder()
	env.articles.Create(w, postForm("/articles", url.Values{"name": {"Perles"}, "unit_price": {"deux mille"}}))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Valeur invalide")

	w = httptest.NewRecorder()
	env.articles.Create(w, postForm("/articles", url.Values{"name": {"Perles décoratives"}, "unit_price": {"2000,50"}, "stock": {"12"}}))
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())

	var a models.Article
	require.NoError(t, env.db.Where("name = ?", "Perles décoratives").First(&a).Error)
	assert.Equal(t, "2000.5", a.UnitPrice.String())
	assert.Equal(t, 12, a.Stock)
}

func TestSupplierCRUD(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/suppliers", strings.NewReader(`{"name":"Mercerie Centrale","email":"nope"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.suppliers.Create(w, req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_email")

	w = httptest.NewRecorder()
	env.suppliers.Create(w, postForm("/suppliers", url.Values{"name": {"Mercerie Centrale"}, "phone": {"+221 33 823 45 67"}}))
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "Fournisseur enregistré avec succès.", flashCookie(w))

	w = httptest.NewRecorder()
	env.suppliers.List(w, httptest.NewRequest(http.MethodGet, "/suppliers?q=merc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Mercerie Centrale")
	assert.NotContains(t, w.Body.String(), "Textiles Dakar SARL")
}

func TestSupplierDeleteInUse(t *testing.T) {
	env := setupTestEnv(t)
	createOrder(t, env, 1, 15000)

	w := httptest.NewRecorder()
	env.suppliers.Delete(w, withID(postForm("/suppliers/1/delete", nil), env.supplier.ID))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "Élément utilisé par un approvisionnement, suppression impossible.", flashCookie(w))

	req := withID(httptest.NewRequest(http.MethodPost, "/suppliers/1/delete", nil), env.supplier.ID)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	env.suppliers.Delete(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"constraint_violation"}`, w.Body.String())

	w = httptest.NewRecorder()
	env.suppliers.Delete(w, withID(postForm("/suppliers/999/delete", nil), 999))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardShow(t *testing.T) {
	env := setupTestEnv(t)
	createOrder(t, env, 2, 15000)

	w := httptest.NewRecorder()
	env.dashboard.Show(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Meilleurs fournisseurs")

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Accept", "application/json")
	w = httptest.NewRecorder()
	env.dashboard.Show(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var d services.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, int64(1), d.Orders)
	require.Len(t, d.TopSuppliers, 1)
	assert.True(t, d.TopSuppliers[0].Total.Equal(decimal.NewFromInt(30000)))
}

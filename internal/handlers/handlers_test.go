package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/address"
	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/orders"
	"storefront/internal/store"
)

const testSecret = "handler-secret"

type stubCart struct {
	synced []cart.SyncItem
}

func (s *stubCart) Sync(_ context.Context, userID primitive.ObjectID, items []cart.SyncItem) (*cart.View, error) {
	s.synced = items
	return &cart.View{UserID: userID, Items: []cart.ItemView{}}, nil
}
func (s *stubCart) Get(_ context.Context, userID primitive.ObjectID) (*cart.View, error) {
	return &cart.View{UserID: userID, Items: []cart.ItemView{}}, nil
}
func (s *stubCart) UpdateItem(context.Context, primitive.ObjectID, string, int) (*cart.View, error) {
	return nil, apperr.BadRequest("only 2 is left in the inventory").WithDetails(map[string]any{"available": 2})
}
func (s *stubCart) RemoveItem(context.Context, primitive.ObjectID, string) (*cart.View, error) {
	return nil, cart.ErrCartNotFound
}
func (s *stubCart) Clear(context.Context, primitive.ObjectID) error { return nil }

type stubCheckout struct {
	payload   []byte
	signature string
	err       error
	confirmed string
}

func (s *stubCheckout) CreateSession(_ context.Context, c checkout.Customer) (*checkout.SessionResult, error) {
	return &checkout.SessionResult{SessionID: "cs_1", URL: "https://pay.example/cs_1"}, nil
}
func (s *stubCheckout) Confirm(_ context.Context, _ primitive.ObjectID, sessionID string) (*models.OrderView, error) {
	s.confirmed = sessionID
	if sessionID == "" {
		return nil, checkout.ErrMissingSessionID
	}
	return &models.OrderView{Order: models.Order{StripeSessionID: sessionID}}, nil
}
func (s *stubCheckout) HandleWebhook(_ context.Context, payload []byte, signature string) (*checkout.WebhookResult, error) {
	s.payload = payload
	s.signature = signature
	if s.err != nil {
		return nil, s.err
	}
	return &checkout.WebhookResult{EventType: "checkout.session.completed", Handled: true}, nil
}

type stubOrders struct {
	page, limit int64
	status      string
	updated     string
}

func (s *stubOrders) ListMine(context.Context, primitive.ObjectID) ([]models.OrderView, error) {
	return []models.OrderView{}, nil
}
func (s *stubOrders) GetMine(context.Context, primitive.ObjectID, string) (*models.OrderView, error) {
	return nil, apperr.NotFound("Order not found")
}
func (s *stubOrders) ListAll(_ context.Context, page, limit int64, status string) (*orders.Page, error) {
	s.page, s.limit, s.status = page, limit, status
	return &orders.Page{Orders: []models.OrderView{}, Page: page, Limit: limit}, nil
}
func (s *stubOrders) Get(context.Context, string) (*models.OrderView, error) {
	return &models.OrderView{}, nil
}
func (s *stubOrders) UpdateStatus(_ context.Context, id, status string) (*models.OrderView, error) {
	s.updated = status
	if status == "lost" {
		return nil, orders.ErrInvalidStatus
	}
	return &models.OrderView{Order: models.Order{OrderStatus: status}}, nil
}
func (s *stubOrders) Delete(context.Context, string) error { return nil }

type stubAddresses struct{}

func (stubAddresses) List(context.Context, primitive.ObjectID) ([]models.Address, error) {
	return []models.Address{}, nil
}
func (stubAddresses) Get(context.Context, primitive.ObjectID, string) (*models.Address, error) {
	return nil, address.ErrAddressNotFound
}
func (stubAddresses) Add(_ context.Context, _ primitive.ObjectID, in address.Input) ([]models.Address, *models.Address, error) {
	a := models.Address{ID: "a1", City: in.City, IsDefault: true}
	return []models.Address{a}, &a, nil
}
func (stubAddresses) Update(context.Context, primitive.ObjectID, string, address.Input) ([]models.Address, error) {
	return []models.Address{}, nil
}
func (stubAddresses) Delete(context.Context, primitive.ObjectID, string) ([]models.Address, error) {
	return nil, address.ErrLastAddress
}

type stubAuth struct{}

func (stubAuth) Register(_ context.Context, in auth.RegisterInput) (*auth.Session, error) {
	return &auth.Session{AccessToken: "a", RefreshToken: "r", ExpiresIn: 60, User: &models.User{Email: in.Email}}, nil
}
func (stubAuth) Login(context.Context, string, string) (*auth.Session, error) {
	return nil, auth.ErrInvalidCredentials
}
func (stubAuth) Refresh(_ context.Context, plain string) (*auth.Session, error) {
	if plain != "from-cookie" {
		return nil, auth.ErrInvalidRefreshToken
	}
	return &auth.Session{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 60}, nil
}
func (stubAuth) Logout(context.Context, string) error { return nil }
func (stubAuth) Me(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (stubAuth) UpdateProfile(_ context.Context, id primitive.ObjectID, in auth.ProfileInput) (*models.User, error) {
	switch {
	case in.OldPassword == "wrong-password":
		return nil, auth.ErrIncorrectPassword
	case in.Email == "taken@example.com":
		return nil, auth.ErrEmailTaken
	}
	return &models.User{ID: id, FullName: in.FullName, Email: in.Email}, nil
}

type stubCatalog struct {
	filter store.ProductFilter
}

func (s *stubCatalog) List(_ context.Context, f store.ProductFilter, _, _ int64) ([]models.Product, int64, error) {
	s.filter = f
	return []models.Product{}, 41, nil
}
func (s *stubCatalog) FindBySlug(context.Context, string) (*models.Product, error) {
	return &models.Product{Slug: "mug"}, nil
}

var kitchenID = primitive.NewObjectID()

type stubCategories struct{}

func (stubCategories) List(context.Context) ([]models.Category, error) {
	return []models.Category{{ID: kitchenID, Name: "Kitchen", Slug: "kitchen"}}, nil
}
func (stubCategories) FindBySlug(_ context.Context, slug string) (*models.Category, error) {
	if slug != "kitchen" {
		return nil, store.ErrNotFound
	}
	return &models.Category{ID: kitchenID, Name: "Kitchen", Slug: "kitchen"}, nil
}

type fixture struct {
	router   *gin.Engine
	cart     *stubCart
	checkout *stubCheckout
	orders   *stubOrders
	catalog  *stubCatalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{cart: &stubCart{}, checkout: &stubCheckout{}, orders: &stubOrders{}, catalog: &stubCatalog{}}
	f.router = gin.New()
	RegisterRoutes(f.router, Services{
		Auth:       stubAuth{},
		Catalog:    f.catalog,
		Categories: stubCategories{},
		Cart:       f.cart,
		Checkout:   f.checkout,
		Orders:     f.orders,
		Addresses:  stubAddresses{},
	}, RouteOptions{JWTSecret: testSecret, Logger: logging.Discard()})
	return f
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	raw, err := auth.IssueAccessToken(testSecret, &models.User{ID: primitive.NewObjectID(), Email: "u@example.com", Role: role}, time.Minute, time.Now())
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	return "Bearer " + raw
}

func (f *fixture) do(method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not a JSON object: %s", w.Body.String())
	}
	return out
}

func TestSyncCartRejectsNonArrayItems(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/cart/sync", bearer(t, models.RoleCustomer), []byte(`{"items":{"productId":"x"}}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if got := decode(t, w)["error"]; got != cart.ErrItemsNotArray.Message {
		t.Fatalf("unexpected error message %v", got)
	}
}

func TestSyncCartPassesItems(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"items":[{"productId":"65f1c2a3b4d5e6f708192a3b","quantity":2}]}`)
	w := f.do(http.MethodPost, "/cart/sync", bearer(t, models.RoleCustomer), body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.cart.synced) != 1 || *f.cart.synced[0].Quantity != 2 {
		t.Fatalf("unexpected synced items %+v", f.cart.synced)
	}
}

func TestErrorResponseCarriesDetails(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPut, "/cart/item", bearer(t, models.RoleCustomer), []byte(`{"productId":"x","quantity":5}`))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "only 2 is left in the inventory" {
		t.Fatalf("unexpected error %v", body["error"])
	}
	if _, ok := body["details"]; !ok {
		t.Fatal("expected details in response")
	}
}

func TestCartRequiresAuth(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/cart", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestWebhookForwardsRawBodyAndSignature(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/checkout/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !bytes.Equal(f.checkout.payload, payload) || f.checkout.signature != "t=1,v1=abc" {
		t.Fatalf("webhook did not receive raw body/signature: %q %q", f.checkout.payload, f.checkout.signature)
	}
	if decode(t, w)["received"] != true {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestWebhookErrorStatuses(t *testing.T) {
	f := newFixture(t)

	f.checkout.err = apperr.BadRequest("Webhook Error: bad signature")
	if w := f.do(http.MethodPost, "/checkout/webhook", "", []byte(`{}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for signature failure, got %d", w.Code)
	}

	f.checkout.err = apperr.Unavailable("database unavailable")
	if w := f.do(http.MethodPost, "/checkout/webhook", "", []byte(`{}`)); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for transient failure, got %d", w.Code)
	}
}

func TestConfirmReadsSessionID(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/checkout/confirm?session_id=cs_42", bearer(t, models.RoleCustomer), nil)
	if w.Code != http.StatusOK || f.checkout.confirmed != "cs_42" {
		t.Fatalf("expected confirm of cs_42, got %d / %q", w.Code, f.checkout.confirmed)
	}

	w = f.do(http.MethodGet, "/checkout/confirm", bearer(t, models.RoleCustomer), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", w.Code)
	}
}

func TestAdminOrdersRequireAdmin(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/admin/orders", bearer(t, models.RoleCustomer), nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, "/orders/abc/status", bearer(t, models.RoleCustomer), []byte(`{"status":"shipping"}`)); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on customer status update, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/admin/orders", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestAdminOrdersPagination(t *testing.T) {
	f := newFixture(t)
	admin := bearer(t, models.RoleAdmin)

	w := f.do(http.MethodGet, "/admin/orders?page=2&limit=5&status=shipping", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if f.orders.page != 2 || f.orders.limit != 5 || f.orders.status != "shipping" {
		t.Fatalf("unexpected paging %d/%d/%q", f.orders.page, f.orders.limit, f.orders.status)
	}

	if w := f.do(http.MethodGet, "/admin/orders?page=-1", admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid page, got %d", w.Code)
	}
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	admin := bearer(t, models.RoleAdmin)

	w := f.do(http.MethodPut, "/admin/orders/abc/status", admin, []byte(`{"status":"delivered"}`))
	if w.Code != http.StatusOK || f.orders.updated != "delivered" {
		t.Fatalf("expected delivered update, got %d / %q", w.Code, f.orders.updated)
	}

	if w := f.do(http.MethodPut, "/admin/orders/abc/status", admin, []byte(`{}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing status, got %d", w.Code)
	}
	if w := f.do(http.MethodPut, "/admin/orders/abc/status", admin, []byte(`{"status":"lost"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid status, got %d", w.Code)
	}
}

func TestMyOrderNotFound(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/orders/abc", bearer(t, models.RoleCustomer), nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAddressRoutes(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, models.RoleCustomer)

	w := f.do(http.MethodPost, "/user/addresses", token, []byte(`{"city":"Oslo"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if _, ok := decode(t, w)["addresses"]; !ok {
		t.Fatal("expected address list in response")
	}

	if w := f.do(http.MethodDelete, "/user/addresses/a1", token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for last address, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/user/addresses/zz", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/auth/register", "", []byte(`{"fullname":"A","email":"a@example.com","password":"longenough"}`))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(w.Result().Cookies()) != 2 {
		t.Fatalf("expected auth cookies, got %v", w.Result().Cookies())
	}

	if w := f.do(http.MethodPost, "/auth/register", "", []byte(`{"email":"not-an-email"}`)); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid body, got %d", w.Code)
	}

	if w := f.do(http.MethodPost, "/auth/login", "", []byte(`{"email":"a@example.com","password":"x"}`)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "from-cookie"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected refresh via cookie to succeed, got %d", rec.Code)
	}
}

func TestUpdateProfileRoute(t *testing.T) {
	f := newFixture(t)
	token := bearer(t, models.RoleCustomer)

	w := f.do(http.MethodPut, "/user/profile", token, []byte(`{"fullname":"New Name"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	updated, ok := decode(t, w)["updatedUser"].(map[string]any)
	if !ok || updated["fullname"] != "New Name" {
		t.Fatalf("expected updated user, got %s", w.Body.String())
	}

	cases := []struct {
		body string
		want int
	}{
		{`{"oldPassword":"wrong-password","newPassword":"long-enough"}`, http.StatusUnauthorized},
		{`{"email":"taken@example.com"}`, http.StatusConflict},
		{`{"email":"not-an-email"}`, http.StatusBadRequest},
		{`{"oldPassword":"x","newPassword":"short"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := f.do(http.MethodPut, "/user/profile", token, []byte(tc.body)); w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.body, tc.want, w.Code)
		}
	}

	if w := f.do(http.MethodPut, "/user/profile", "", []byte(`{"fullname":"X"}`)); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestProductsPagination(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/products?page=1&limit=20", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	pagination := decode(t, w)["pagination"].(map[string]any)
	if pagination["totalPages"] != float64(3) {
		t.Fatalf("expected 3 pages, got %v", pagination["totalPages"])
	}
}

func TestProductFilters(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/products?search=mug&category=Kitchen&minPrice=5&maxPrice=20.5", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got := f.catalog.filter
	if got.Search != "mug" || got.Category == nil || *got.Category != kitchenID {
		t.Fatalf("unexpected filter %+v", got)
	}
	if got.MinPrice == nil || *got.MinPrice != 5 || got.MaxPrice == nil || *got.MaxPrice != 20.5 {
		t.Fatalf("unexpected price range %+v", got)
	}

	cases := []struct {
		query string
		want  int
	}{
		{"minPrice=30&maxPrice=10", http.StatusBadRequest},
		{"minPrice=cheap", http.StatusBadRequest},
		{"maxPrice=-1", http.StatusBadRequest},
		{"category=garden", http.StatusNotFound},
		{"minPrice=10&maxPrice=10", http.StatusOK},
	}
	for _, tc := range cases {
		if w := f.do(http.MethodGet, "/products?"+tc.query, "", nil); w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.query, tc.want, w.Code)
		}
	}
}

func TestProductsByCategory(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/products/category/kitchen?maxPrice=15", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if f.catalog.filter.Category == nil || *f.catalog.filter.Category != kitchenID {
		t.Fatalf("expected kitchen filter, got %+v", f.catalog.filter)
	}
	if f.catalog.filter.MaxPrice == nil || *f.catalog.filter.MaxPrice != 15 {
		t.Fatalf("expected maxPrice 15, got %+v", f.catalog.filter)
	}
	body := decode(t, w)
	if category, _ := body["category"].(map[string]any); category["slug"] != "kitchen" {
		t.Fatalf("expected category in response, got %s", w.Body.String())
	}

	if w := f.do(http.MethodGet, "/products/category/garden", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown category, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/products/mug", "", nil); w.Code != http.StatusOK {
		t.Fatalf("expected product by slug to still resolve, got %d", w.Code)
	}
}

func TestGetCategories(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/categories", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 1 || list[0]["slug"] != "kitchen" {
		t.Fatalf("unexpected categories %s", w.Body.String())
	}
}

func TestBindPage(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int64
		wantLimit int64
		wantErr   bool
	}{
		{query: "", wantPage: 1, wantLimit: defaultPageSize},
		{query: "page=3&limit=5", wantPage: 3, wantLimit: 5},
		{query: "page=1&limit=500", wantPage: 1, wantLimit: maxPageSize},
		{query: "page=x", wantErr: true},
		{query: "limit=-1", wantErr: true},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/admin/orders?"+tc.query, nil)

		q, err := bindPage(c)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q: expected error", tc.query)
			}
			continue
		}
		if err != nil || q.Page != tc.wantPage || q.Limit != tc.wantLimit {
			t.Fatalf("%q: got %+v / %v", tc.query, q, err)
		}
	}
}

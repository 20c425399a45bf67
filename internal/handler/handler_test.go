package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"merch-storefront/internal/cart"
	"merch-storefront/internal/catalog"
	"merch-storefront/internal/identity"
	"merch-storefront/internal/intake"
	"merch-storefront/internal/model"
	"merch-storefront/internal/order"
	"merch-storefront/internal/session"
)

type stubCatalog struct {
	products []catalog.Product
	err      error
}

func (s stubCatalog) Products(ctx context.Context) ([]catalog.Product, error) {
	return s.products, s.err
}

func intPtr(n int) *int { return &n }

var testProducts = []catalog.Product{
	{ID: "tee1", Name: "Tee", Price: decimal.NewFromInt(20), VariantStock: map[string]int{"S": 1, "M": 3, "XL": 0}},
	{ID: "hat", Name: "Cap", Price: decimal.NewFromInt(15), VariantStock: map[string]int{"OSFA": 4}},
	{ID: "mug", Name: "Mug", Price: decimal.RequireFromString("12.50"), FlatStock: intPtr(7)},
}

type testEnv struct {
	h      *Handler
	mux    *http.ServeMux
	intake *intake.Mock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mock := &intake.Mock{}

	sessions, err := session.NewRegistry(session.Options{
		Limit: 100,
		NewSubmitter: func(c *cart.Store, id identity.Provider) *order.Submitter {
			return order.NewSubmitter(c, id, mock, order.Config{Required: []order.Field{order.FieldEmail}}, logger)
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Catalog == nil {
		opts.Catalog = stubCatalog{products: testProducts}
	}
	opts.Sessions = sessions

	h := New(opts, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return &testEnv{h: h, mux: mux, intake: mock}
}

// do sends a JSON request with the given session header value.
func (e *testEnv) do(method, path, sessionHeader string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if sessionHeader != "" {
		req.Header.Set(SessionHeader, sessionHeader)
	}
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) CartView {
	t.Helper()
	var v CartView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode cart: %v\nBody: %s", err, w.Body.String())
	}
	return v
}

func errorCode(body []byte) (code, field string) {
	var resp errorResponse
	json.Unmarshal(body, &resp)
	return resp.Error.Code, resp.Error.Field
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := env.do("GET", "/health", "", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Body = %s", w.Body.String())
	}
}

func TestHandleCatalog(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := env.do("GET", "/catalog", "", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var v CatalogView
	json.Unmarshal(w.Body.Bytes(), &v)
	if len(v.Products) != 3 {
		t.Fatalf("products = %d, want 3", len(v.Products))
	}

	tee := v.Products[0]
	if tee.SizeMode != "choice" || len(tee.Sizes) != 2 || tee.Sizes[0] != "S" || tee.Sizes[1] != "M" {
		t.Errorf("tee mode = %s %v", tee.SizeMode, tee.Sizes)
	}
	if tee.Price != "20.00" || tee.Stock == nil || *tee.Stock != 4 {
		t.Errorf("tee = %+v", tee)
	}
	if hat := v.Products[1]; hat.SizeMode != "forced" || hat.Sizes[0] != "OSFA" {
		t.Errorf("hat mode = %s %v", hat.SizeMode, hat.Sizes)
	}
	if mug := v.Products[2]; mug.SizeMode != "none" || mug.Stock == nil || *mug.Stock != 7 {
		t.Errorf("mug = %+v", mug)
	}
}

func TestHandleCatalogUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{Catalog: stubCatalog{err: model.NewCatalogLoadError(503, nil)}})
	w := env.do("GET", "/catalog", "", nil)

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if code, _ := errorCode(w.Body.Bytes()); code != "CATALOG_UNAVAILABLE" {
		t.Errorf("code = %q", code)
	}
}

func TestSessionIssuedAndReused(t *testing.T) {
	env := newTestEnv(t, Options{})

	w := env.do("POST", "/cart/items", "", map[string]any{"product_id": "mug", "quantity": 2})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	issued := w.Header().Get(SessionHeader)
	params, err := parseSessionHeader(issued)
	if err != nil || params.ID == "" {
		t.Fatalf("issued header %q: %v", issued, err)
	}

	w = env.do("GET", "/cart", issued, nil)
	v := decodeCart(t, w)
	if v.Session != params.ID || len(v.Items) != 1 || v.Items[0].Quantity != 2 {
		t.Errorf("cart = %+v", v)
	}
}

func TestHandleAddItemMerges(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1"`

	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "quantity": "2"})
	w := env.do("POST", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "quantity": 1})
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "hat"})

	v := decodeCart(t, w)
	if len(v.Items) != 1 || v.Items[0].Quantity != 3 || v.Total != "60.00" {
		t.Errorf("cart after merge = %+v", v)
	}

	v = decodeCart(t, env.do("GET", "/cart", sess, nil))
	if len(v.Items) != 2 {
		t.Fatalf("items = %+v", v.Items)
	}
	hat := v.Items[1]
	if hat.Variant == nil || *hat.Variant != "OSFA" {
		t.Errorf("forced size not applied: %+v", hat)
	}
	if v.Count != 4 || v.Total != "75.00" {
		t.Errorf("count/total = %d/%s", v.Count, v.Total)
	}
}

func TestHandleAddItemErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"missing size", map[string]any{"product_id": "tee1"}, 400, "VALIDATION_ERROR", "variant"},
		{"out of stock size", map[string]any{"product_id": "tee1", "variant": "XL"}, 400, "VALIDATION_ERROR", "variant"},
		{"wrong forced size", map[string]any{"product_id": "hat", "variant": "M"}, 400, "VALIDATION_ERROR", "variant"},
		{"unknown product", map[string]any{"product_id": "nope"}, 404, "NOT_FOUND", ""},
		{"missing product", map[string]any{"quantity": 1}, 400, "VALIDATION_ERROR", "product_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			w := env.do("POST", "/cart/items", `id="s1"`, tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			code, field := errorCode(w.Body.Bytes())
			if code != tt.wantCode || field != tt.wantField {
				t.Errorf("error = %s/%s, want %s/%s", code, field, tt.wantCode, tt.wantField)
			}
		})
	}
}

func TestHandleInvalidJSON(t *testing.T) {
	env := newTestEnv(t, Options{})
	req := httptest.NewRequest("POST", "/cart/items", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleMalformedSessionHeader(t *testing.T) {
	env := newTestEnv(t, Options{})
	w := env.do("GET", "/cart", `id=`, nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleAdjustAndRemove(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "quantity": 2})
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	v := decodeCart(t, env.do("PATCH", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "delta": 1}))
	if v.Items[0].Quantity != 3 {
		t.Errorf("after +1 quantity = %d, want 3", v.Items[0].Quantity)
	}

	v = decodeCart(t, env.do("PATCH", "/cart/items", sess, map[string]any{"product_id": "mug", "delta": -1}))
	if len(v.Items) != 1 {
		t.Errorf("mug should be removed at zero: %+v", v.Items)
	}

	// Unknown lines are a no-op
	w := env.do("POST", "/cart/items/remove", sess, map[string]any{"product_id": "tee1", "variant": "S"})
	if w.Code != http.StatusOK || len(decodeCart(t, w).Items) != 1 {
		t.Errorf("remove unknown = %d %s", w.Code, w.Body.String())
	}

	v = decodeCart(t, env.do("POST", "/cart/items/remove", sess, map[string]any{"product_id": "tee1", "variant": "M"}))
	if len(v.Items) != 0 || v.Total != "0.00" {
		t.Errorf("cart after remove = %+v", v)
	}
}

func TestHandleReplaceCart(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "quantity": 2})
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	w := env.do("PUT", "/cart", sess, map[string]any{"items": []map[string]any{
		{"product_id": "mug", "quantity": 3},
		{"product_id": "hat"},
	}})
	v := decodeCart(t, w)
	if len(v.Items) != 2 {
		t.Fatalf("items = %+v", v.Items)
	}
	if v.Items[0].ProductID != "mug" || v.Items[0].Quantity != 3 {
		t.Errorf("items[0] = %+v", v.Items[0])
	}
	if v.Items[1].ProductID != "hat" || v.Items[1].Quantity != 1 {
		t.Errorf("items[1] = %+v", v.Items[1])
	}
	if v.Total != "52.50" {
		t.Errorf("Total = %s, want 52.50", v.Total)
	}
}

func TestHandleReplaceCartRejectsBadLine(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	w := env.do("PUT", "/cart", sess, map[string]any{"items": []map[string]any{
		{"product_id": "hat"},
		{"product_id": "tee1", "variant": "3XL"},
	}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}

	v := decodeCart(t, env.do("GET", "/cart", sess, nil))
	if len(v.Items) != 1 || v.Items[0].ProductID != "mug" {
		t.Errorf("cart changed by rejected replace: %+v", v.Items)
	}
}

func TestHandleSubmitOrder(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1", name="ghost"`

	// Empty cart
	w := env.do("POST", "/orders", sess, map[string]any{"email": "g@example.com"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty cart status = %d, want 422", w.Code)
	}

	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "tee1", "variant": "M", "quantity": 2})

	// Missing required email
	w = env.do("POST", "/orders", sess, map[string]any{})
	if code, field := errorCode(w.Body.Bytes()); w.Code != 400 || code != "VALIDATION_ERROR" || field != "email" {
		t.Errorf("missing email = %d %s/%s", w.Code, code, field)
	}
	if n := len(env.intake.Calls()); n != 0 {
		t.Fatalf("intake called %d times before a valid submit", n)
	}

	w = env.do("POST", "/orders", sess, map[string]any{"email": "g@example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var ov OrderView
	json.Unmarshal(w.Body.Bytes(), &ov)
	if ov.OrderID == "" || ov.Total != "40.00" || ov.Message != order.DefaultSuccessMessage {
		t.Errorf("order = %+v", ov)
	}

	calls := env.intake.Calls()
	if len(calls) != 1 || calls[0].Customer != "ghost" {
		t.Fatalf("intake calls = %+v", calls)
	}
	if v := decodeCart(t, env.do("GET", "/cart", sess, nil)); len(v.Items) != 0 {
		t.Errorf("cart not cleared: %+v", v.Items)
	}
}

func TestHandleSubmitOrderIntakeFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.intake.DeliverFunc = func(ctx context.Context, p *order.Payload) (*order.Ack, error) {
		return nil, model.NewTransportError(500, "intake unavailable (HTTP 500)", nil)
	}
	sess := `id="s1"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	w := env.do("POST", "/orders", sess, map[string]any{"email": "g@example.com"})
	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
	if code, _ := errorCode(w.Body.Bytes()); code != "TRANSPORT_ERROR" {
		t.Errorf("code = %q", code)
	}
	if v := decodeCart(t, env.do("GET", "/cart", sess, nil)); len(v.Items) != 1 {
		t.Errorf("cart changed after failed submit: %+v", v.Items)
	}
}

func TestHandleSubmitOrderTelegramIdentity(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1", name="typed-name"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	body, _ := json.Marshal(map[string]any{"email": "g@example.com"})
	req := httptest.NewRequest("POST", "/orders", bytes.NewReader(body))
	req.Header.Set(SessionHeader, sess)
	req.Header.Set(TelegramHeader, `user=%7B%22id%22%3A1%2C%22username%22%3A%22tg_user%22%7D&auth_date=1772366400&hash=abc`)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	if got := env.intake.Calls()[0].Customer; got != "tg_user" {
		t.Errorf("Customer = %q, want tg_user", got)
	}
}

func TestHandleSubmitOrderRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{SubmitRate: rate.Limit(0.001), SubmitBurst: 1})
	sess := `id="s1"`
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})

	if w := env.do("POST", "/orders", sess, map[string]any{"email": "a@b"}); w.Code != http.StatusCreated {
		t.Fatalf("first submit = %d", w.Code)
	}
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})
	w := env.do("POST", "/orders", sess, map[string]any{"email": "a@b"})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestHandleSubmitOrderLocalRejectionsKeepToken(t *testing.T) {
	env := newTestEnv(t, Options{SubmitRate: rate.Limit(0.001), SubmitBurst: 1})
	sess := `id="s1"`

	for range 3 {
		if w := env.do("POST", "/orders", sess, map[string]any{"email": "a@b"}); w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("empty cart submit = %d, want 422", w.Code)
		}
	}
	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug"})
	for range 3 {
		if w := env.do("POST", "/orders", sess, map[string]any{}); w.Code != http.StatusBadRequest {
			t.Fatalf("missing email submit = %d, want 400", w.Code)
		}
	}
	if w := env.do("POST", "/orders", sess, map[string]any{"email": "a@b"}); w.Code != http.StatusCreated {
		t.Errorf("valid submit = %d, want 201\nBody: %s", w.Code, w.Body.String())
	}
	if n := len(env.intake.Calls()); n != 1 {
		t.Errorf("intake saw %d orders, want 1", n)
	}
}

func TestHandleAddItemHugeQuantity(t *testing.T) {
	env := newTestEnv(t, Options{})
	sess := `id="s1"`

	env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug", "quantity": "9223372036854775807"})
	w := env.do("POST", "/cart/items", sess, map[string]any{"product_id": "mug", "quantity": json.Number("99999999999999999999999")})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	v := decodeCart(t, w)
	if len(v.Items) != 1 || v.Items[0].Quantity != cart.MaxQuantity {
		t.Fatalf("items = %+v, want one line at %d", v.Items, cart.MaxQuantity)
	}
	if v.Total != "124987.50" {
		t.Errorf("total = %s, want 124987.50", v.Total)
	}
}

func TestParseSessionHeader(t *testing.T) {
	tests := []struct {
		header   string
		wantID   string
		wantName string
		wantErr  bool
	}{
		{"", "", "", false},
		{`id="abc"`, "abc", "", false},
		{`id="abc", name="ghost"`, "abc", "ghost", false},
		{`id=abc;v=1`, "abc", "", false},
		{`name="ghost"`, "", "ghost", false},
		{`id=1`, "", "", true},
		{`id=("a" "b")`, "", "", true},
		{`id=`, "", "", true},
	}
	for _, tt := range tests {
		p, err := parseSessionHeader(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSessionHeader(%q) err = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (p.ID != tt.wantID || p.Name != tt.wantName) {
			t.Errorf("parseSessionHeader(%q) = %+v", tt.header, p)
		}
	}
}

func TestFormatSessionHeader(t *testing.T) {
	got := FormatSessionHeader("3f1c-42")
	if got != `id="3f1c-42"` {
		t.Errorf("FormatSessionHeader = %q", got)
	}
	p, err := parseSessionHeader(got)
	if err != nil || p.ID != "3f1c-42" {
		t.Errorf("round trip = %+v, %v", p, err)
	}
}

func TestQuantityUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{`3`, 3},
		{`"4"`, 4},
		{`"abc"`, 1},
		{`0`, 1},
		{`-2`, 1},
	}
	for _, tt := range tests {
		var q Quantity
		if err := json.Unmarshal([]byte(tt.in), &q); err != nil || q != tt.want {
			t.Errorf("Unmarshal(%s) = %d, %v; want %d", tt.in, q, err, tt.want)
		}
	}
}

package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"procurement-backend/internal/dashboard"
	"procurement-backend/internal/document"
	"procurement-backend/internal/models"
	"procurement-backend/internal/payment"
	"procurement-backend/internal/purchase"
	"procurement-backend/internal/server"
	"procurement-backend/internal/storage"
	"procurement-backend/internal/supply"
	"procurement-backend/internal/testutil"
	"procurement-backend/internal/users"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "test-secret"

func newApp(t *testing.T, renderer document.Renderer) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	store := storage.NewMemoryStore()
	docs := document.NewGenerator(db, store, renderer, document.Options{Issuer: "Procurement", Currency: "PKR"})

	app := server.New(server.Deps{
		DB:                db,
		JWTSecret:         secret,
		CORSOrigins:       "*",
		AppName:           "procurement-test",
		PurchaseOrders:    purchase.NewService(db, store),
		Supplies:          supply.NewService(db, docs, store),
		Payments:          payment.NewService(db, store),
		Users:             users.NewService(db),
		Dashboard:         dashboard.NewService(db),
		DisableRequestLog: true,
	})
	return app, db
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	status, body := call(t, app, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "password123",
	})
	require.Equal(t, http.StatusOK, status, body)
	return body["token"].(string)
}

func TestProcurementFlow(t *testing.T) {
	app, db := newApp(t, testutil.StubRenderer{})
	testutil.CreateUser(t, db, "admin", models.RoleAdmin)
	testutil.CreateUser(t, db, "clerk", models.RoleUser)
	adminToken := login(t, app, "admin@example.com")
	clerkToken := login(t, app, "clerk@example.com")

	status, _ := call(t, app, http.MethodGet, "/api/purchase-orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, po := call(t, app, http.MethodPost, "/api/purchase-orders", clerkToken, map[string]any{
		"po_number":        "PO-2024-001",
		"po_date":          "2024-03-01",
		"institution_name": "City Hospital",
		"items": []map[string]any{
			{"name": "Gloves", "price": "12.50", "quantity": 100},
		},
	})
	require.Equal(t, http.StatusCreated, status, po)
	assert.Equal(t, "Pending", po["status"])
	poID := uint(po["id"].(float64))
	itemID := uint(po["items"].([]any)[0].(map[string]any)["id"].(float64))

	status, sup := call(t, app, http.MethodPost, "/api/supplies", clerkToken, map[string]any{
		"purchase_order_id": poID,
		"supply_date":       "2024-03-05",
		"items":             []map[string]any{{"po_item_id": itemID, "quantity": 80}},
	})
	require.Equal(t, http.StatusCreated, status, sup)
	assert.NotEmpty(t, sup["dc_pdf"])
	supplyID := uint(sup["id"].(float64))

	status, body := call(t, app, http.MethodPost, "/api/supplies", clerkToken, map[string]any{
		"purchase_order_id": poID,
		"supply_date":       "2024-03-06",
		"items":             []map[string]any{{"po_item_id": itemID, "quantity": 30}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", body["code"])
	assert.EqualValues(t, 20, body["available"])
	assert.EqualValues(t, itemID, body["item_id"])
	assert.Contains(t, body["fields"], "items.0.quantity")

	status, got := call(t, app, http.MethodGet, fmt.Sprintf("/api/purchase-orders/%d", poID), clerkToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Partially Supplied", got["status"])

	status, pay := call(t, app, http.MethodPost, "/api/payments", clerkToken, map[string]any{
		"supply_id": supplyID,
		"cheque_no": "CHQ-1",
		"amount":    "1000.00",
	})
	require.Equal(t, http.StatusCreated, status, pay)
	payID := uint(pay["id"].(float64))

	status, body = call(t, app, http.MethodPost, fmt.Sprintf("/api/payments/%d/confirm", payID), clerkToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["code"])

	status, body = call(t, app, http.MethodPost, fmt.Sprintf("/api/payments/%d/confirm", payID), adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "Confirmed", body["status"])

	status, body = call(t, app, http.MethodPost, fmt.Sprintf("/api/payments/%d/reject", payID), adminToken, nil)
	assert.Equal(t, http.StatusConflict, status, body)

	status, _ = call(t, app, http.MethodGet, "/api/admin/users", clerkToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, stats := call(t, app, http.MethodGet, "/api/dashboard/stats", clerkToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, stats["total_pos"])
	assert.EqualValues(t, 1, stats["total_supplies"])
	assert.EqualValues(t, 0, stats["pending_payments"])
}

func TestDocumentFailureIsRetryable(t *testing.T) {
	app, db := newApp(t, testutil.FailingRenderer{})
	_, clerk := testutil.CreateUser(t, db, "clerk", models.RoleUser)
	token := login(t, app, "clerk@example.com")
	po := testutil.CreateOrder(t, db, clerk, "PO-1", testutil.ItemSpec{Name: "Gloves", Price: "1.00", Quantity: 5})

	status, body := call(t, app, http.MethodPost, "/api/supplies", token, map[string]any{
		"purchase_order_id": po.ID,
		"supply_date":       "2024-03-05",
		"items":             []map[string]any{{"po_item_id": po.Items[0].ID, "quantity": 5}},
	})
	require.Equal(t, http.StatusServiceUnavailable, status, body)
	assert.Equal(t, "artifact_failed", body["code"])
	assert.Equal(t, true, body["retryable"])
	assert.NotZero(t, body["supply_id"])

	var count int64
	require.NoError(t, db.Model(&models.Supply{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterFirstAdminOnlyOnce(t *testing.T) {
	app, _ := newApp(t, testutil.StubRenderer{})
	req := map[string]string{"name": "Root", "email": "root@example.com", "password": "password123"}

	status, body := call(t, app, http.MethodPost, "/api/auth/register-admin", "", req)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "Admin", body["role"])

	status, _ = call(t, app, http.MethodPost, "/api/auth/register-admin", "", req)
	assert.Equal(t, http.StatusForbidden, status)

	token := login(t, app, "root@example.com")
	status, me := call(t, app, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "root@example.com", me["email"])
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wardstock/m/internal/database"
	"wardstock/m/internal/forecast"
	"wardstock/m/internal/migrations"
	"wardstock/m/internal/notify"
)

func newTestServer(t *testing.T) (*httptest.Server, *sqlx.DB) {
	t.Helper()
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	migrations.Run(db)
	handler := New(db, "test_secret", notify.NewHub(), forecast.NewClient("http://127.0.0.1:1"))
	srv := httptest.NewServer(handler.Router())
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv, db
}

func insertDrug(t *testing.T, db *sqlx.DB, name, department string, stock int64) {
	t.Helper()
	_, err := db.Exec(
		`INSERT INTO drugs (drug_name, department, current_stock, min_stock, max_stock, expiry_date, category)
         VALUES ($1, $2, $3, 10, 100, '2027-06-30', 'Antibiotic')`,
		name, department, stock)
	require.NoError(t, err)
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var payload map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&payload)
	return resp, payload
}

func registerUser(t *testing.T, srv *httptest.Server, name, email, department, role string) string {
	t.Helper()
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]any{
		"name":       name,
		"email":      email,
		"password":   "secret123",
		"department": department,
		"role":       role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token, _ := payload["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestAuthFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	registerUser(t, srv, "Dr Okello", "okello@hospital.test", "Surgery", "")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]any{
		"email":    "okello@hospital.test",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, payload["token"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]any{
		"email":    "okello@hospital.test",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Duplicate email.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/register", "", map[string]any{
		"name":       "Someone Else",
		"email":      "okello@hospital.test",
		"password":   "secret123",
		"department": "Paediatrics",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Protected routes reject missing and garbage tokens.
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/requests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/requests", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBorrowingLifecycleOverHTTP(t *testing.T) {
	srv, db := newTestServer(t)
	insertDrug(t, db, "Amoxicillin", "Surgery", 50)

	surgery := registerUser(t, srv, "Dr Okello", "surgery@hospital.test", "Surgery", "")
	paediatrics := registerUser(t, srv, "Dr Namuli", "paeds@hospital.test", "Paediatrics", "")

	// Paediatrics submits; the borrowing side comes from the token.
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Amoxicillin",
		"quantity":        20,
		"from_department": "Surgery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Pending", payload["status"])
	id := int64(payload["id"].(float64))
	require.Positive(t, id)

	// Requester cannot approve its own request.
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/approve", srv.URL, id), paediatrics, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/approve", srv.URL, id), surgery, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Second approve is a conflict.
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/approve", srv.URL, id), surgery, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var stock int64
	require.NoError(t, db.Get(&stock,
		`SELECT current_stock FROM drugs WHERE drug_name = 'Amoxicillin' AND department = 'Paediatrics'`))
	assert.Equal(t, int64(20), stock)

	// Both sides see the request in their lists.
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/requests", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+surgery)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	var requests []map[string]any
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&requests))
	require.Len(t, requests, 1)
	assert.Equal(t, "Approved", requests[0]["status"])
}

func TestBorrowingErrorMapping(t *testing.T) {
	srv, db := newTestServer(t)
	insertDrug(t, db, "Amoxicillin", "Surgery", 10)

	paediatrics := registerUser(t, srv, "Dr Namuli", "paeds@hospital.test", "Paediatrics", "")
	internal := registerUser(t, srv, "Dr Otim", "internal@hospital.test", "Internal Medicine", "")

	// Insufficient stock at submission.
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Amoxicillin",
		"quantity":        20,
		"from_department": "Surgery",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Same-department transfer.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Amoxicillin",
		"quantity":        5,
		"from_department": "Paediatrics",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown drug.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Ibuprofen",
		"quantity":        5,
		"from_department": "Surgery",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Unknown request id.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/requests/9999/approve", paediatrics, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/requests/abc/approve", paediatrics, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Foreign department cannot cancel someone else's request.
	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Amoxicillin",
		"quantity":        5,
		"from_department": "Surgery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(payload["id"].(float64))
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/cancel", srv.URL, id), internal, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The requester itself may cancel.
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/cancel", srv.URL, id), paediatrics, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminMayRejectButNotApprove(t *testing.T) {
	srv, db := newTestServer(t)
	insertDrug(t, db, "Amoxicillin", "Surgery", 50)

	paediatrics := registerUser(t, srv, "Dr Namuli", "paeds@hospital.test", "Paediatrics", "")
	admin := registerUser(t, srv, "Pharmacy Admin", "admin@hospital.test", "Admin Office", "admin")

	resp, payload := doJSON(t, http.MethodPost, srv.URL+"/requests", paediatrics, map[string]any{
		"drug":            "Amoxicillin",
		"quantity":        20,
		"from_department": "Surgery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := int64(payload["id"].(float64))

	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/approve", srv.URL, id), admin, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "only the lender may approve")

	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/requests/%d/reject", srv.URL, id), admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCheckoutOverHTTP(t *testing.T) {
	srv, db := newTestServer(t)
	insertDrug(t, db, "Amoxicillin", "Surgery", 50)

	surgery := registerUser(t, srv, "Dr Okello", "surgery@hospital.test", "Surgery", "")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkouts", surgery, map[string]any{
		"drug":     "Amoxicillin",
		"quantity": 20,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/checkouts", surgery, map[string]any{
		"drug":     "Amoxicillin",
		"quantity": 40,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var stock int64
	require.NoError(t, db.Get(&stock,
		`SELECT current_stock FROM drugs WHERE drug_name = 'Amoxicillin' AND department = 'Surgery'`))
	assert.Equal(t, int64(30), stock)
}

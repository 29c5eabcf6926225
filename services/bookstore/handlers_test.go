package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

type testServer struct {
	router *gin.Engine
	store  *MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	carts, store := newMemoryCartUseCase(t)
	tracer := tracenoop.NewTracerProvider().Tracer("test")
	catalog := NewCatalogUseCase(store.Catalog(), tracer)
	reports := NewReportUseCase(carts, store.Catalog(), store.Orders(), "admin", tracer)
	handler := NewHandler(carts, catalog, reports, "bookstore-test")
	return &testServer{router: NewRouter(handler), store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestHandler_BookLifecycle(t *testing.T) {
	s := newTestServer(t)

	// Create
	w := s.do(t, http.MethodPost, "/api/books", gin.H{
		"title": "Dune", "authors": "Frank Herbert", "price": "9.99", "physical_copies": 3,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := int64(decode(t, w)["id"].(float64))

	// Invalid create
	w = s.do(t, http.MethodPost, "/api/books", gin.H{"title": "Dune", "authors": "X", "price": "-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodPost, "/api/books", gin.H{"authors": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Update
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/books/%d", id), gin.H{
		"title": "Dune", "authors": "Frank Herbert", "price": "12.50", "physical_copies": 8,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 8, getBook(t, s.store, id).CopiesInStock)

	w = s.do(t, http.MethodPut, "/api/books/999", gin.H{"title": "X", "authors": "Y", "price": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(t, http.MethodPut, "/api/books/abc", gin.H{"title": "X", "authors": "Y", "price": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// List and top
	w = s.do(t, http.MethodGet, "/api/books", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["books"], 1)
	w = s.do(t, http.MethodGet, "/api/books/top", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Delete
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/books/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/books/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CartAndCheckout(t *testing.T) {
	s := newTestServer(t)
	book := seedBook(t, s.store, "Dune", "10.00", 3)
	cartItems := "/api/users/alice/cart/items"

	// Invalid quantity
	for _, qty := range []int{0, -1} {
		w := s.do(t, http.MethodPost, cartItems, gin.H{"book_id": book.ID, "quantity": qty})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w := s.do(t, http.MethodPost, cartItems, gin.H{"book_id": book.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Quantity far above stock
	w = s.do(t, http.MethodPost, cartItems, gin.H{"book_id": book.ID, "quantity": math.MaxInt})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "stock_exceeded", decode(t, w)["code"])

	// Unknown book
	w = s.do(t, http.MethodPost, cartItems, gin.H{"book_id": 999, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Stock exceeded
	w = s.do(t, http.MethodPost, cartItems, gin.H{"book_id": book.ID, "quantity": 4})
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "stock_exceeded", body["code"])
	assert.Equal(t, float64(3), body["available"])

	// Empty cart checkout
	w = s.do(t, http.MethodPost, "/api/users/alice/checkout", validPayment)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(CheckoutRejected), decode(t, w)["state"])

	// Add
	w = s.do(t, http.MethodPost, cartItems, gin.H{"book_id": book.ID, "quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// List
	w = s.do(t, http.MethodGet, "/api/users/alice/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, true, body["checkout_allowed"])
	assert.Len(t, body["cart"].(map[string]any)["lines"], 1)

	// Bad payment
	w = s.do(t, http.MethodPost, "/api/users/alice/checkout", invalidPayment)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body = decode(t, w)
	assert.Equal(t, "invalid_payment", body["code"])
	assert.Equal(t, string(PaymentBadCardNumber), body["reason"])
	assert.Equal(t, string(CheckoutRejected), body["state"])

	// Checkout
	w = s.do(t, http.MethodPost, "/api/users/alice/checkout", validPayment)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(CheckoutCommitted), decode(t, w)["state"])
	assert.Equal(t, 1, getBook(t, s.store, book.ID).CopiesInStock)

	// Completed orders
	w = s.do(t, http.MethodGet, "/api/users/alice/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["orders"], 1)
}

func TestHandler_StockConflictOnCheckout(t *testing.T) {
	s := newTestServer(t)
	book := seedBook(t, s.store, "Dune", "10.00", 3)

	w := s.do(t, http.MethodPost, "/api/users/alice/cart/items", gin.H{"book_id": book.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, w.Code)
	book.CopiesInStock = 0
	require.NoError(t, s.store.Catalog().UpdateBook(t.Context(), book))

	w = s.do(t, http.MethodPost, "/api/users/alice/checkout", validPayment)

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "stock_conflict", body["code"])
	assert.Equal(t, string(CheckoutRejected), body["state"])
	assert.Contains(t, body["error"], "sold out")
}

func TestHandler_RemoveLine(t *testing.T) {
	s := newTestServer(t)
	book := seedBook(t, s.store, "Dune", "10.00", 3)
	w := s.do(t, http.MethodPost, "/api/users/alice/cart/items", gin.H{"book_id": book.ID, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/users/alice/cart/items/%d", book.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodDelete, "/api/users/alice/cart/items/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Exports(t *testing.T) {
	s := newTestServer(t)
	s.store.AddUser(User{Username: "alice"})
	s.store.AddUser(User{Username: "admin"})
	book := seedBook(t, s.store, "Dune", "10.00", 3)
	s.do(t, http.MethodPost, "/api/users/alice/cart/items", gin.H{"book_id": book.ID, "quantity": 1})
	s.do(t, http.MethodPost, "/api/users/alice/checkout", validPayment)

	w := s.do(t, http.MethodGet, "/api/users/alice/orders/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "alice-orders.csv")
	assert.Len(t, readCSV(t, w.Body.Bytes()), 2)

	w = s.do(t, http.MethodGet, "/api/admin/orders/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	records := readCSV(t, w.Body.Bytes())
	require.Len(t, records, 2)
	assert.Equal(t, "Username", records[0][0])

	w = s.do(t, http.MethodGet, "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["users"], 1)
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err    error
		status int
	}{
		{ErrInvalidQuantity, http.StatusBadRequest},
		{&PaymentError{Reason: PaymentExpired}, http.StatusBadRequest},
		{invalidBook("title is required"), http.StatusBadRequest},
		{fmt.Errorf("book 1: %w", ErrNotFound), http.StatusNotFound},
		{&StockExceededError{Available: 1}, http.StatusConflict},
		{&StockConflictError{}, http.StatusConflict},
		{commitFailure(fmt.Errorf("book 1: %w", ErrNotFound)), http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrEmptyCart, http.StatusUnprocessableEntity},
		{storageFailure("list books", errors.New("down")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		writeError(c, tt.err)

		assert.Equal(t, tt.status, w.Code, tt.err.Error())
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// CartService define a interface do carrinho usada pelos handlers
type CartService interface {
	AddToCart(ctx context.Context, username string, bookID int64, quantity int) (*Order, error)
	RemoveLine(ctx context.Context, username string, bookID int64) (*Order, error)
	ListCart(ctx context.Context, username string) (*CartView, error)
	Checkout(ctx context.Context, username string, payment PaymentDetails) (*CheckoutResult, error)
	GetCompletedOrders(ctx context.Context, username string) ([]*Order, error)
}

// CatalogService define a interface de gestão de livros usada pelos handlers
type CatalogService interface {
	ListBooks(ctx context.Context) ([]*Book, error)
	TopSellingBooks(ctx context.Context) ([]*Book, error)
	CreateBook(ctx context.Context, book *Book) error
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, bookID int64) error
}

// ReportService define a interface de relatórios usada pelos handlers
type ReportService interface {
	ListCustomers(ctx context.Context) ([]User, error)
	ExportUserOrders(ctx context.Context, w io.Writer, username string) error
	ExportAllOrders(ctx context.Context, w io.Writer) error
}

// AddToCartRequest representa a requisição de POST /cart/items
type AddToCartRequest struct {
	BookID   int64 `json:"book_id" binding:"required"`
	Quantity int   `json:"quantity" binding:"required,gt=0"`
}

// BookRequest representa a requisição de criação e atualização de livros
type BookRequest struct {
	Title          string          `json:"title" binding:"required"`
	Authors        string          `json:"authors" binding:"required"`
	Price          decimal.Decimal `json:"price"`
	PhysicalCopies int             `json:"physical_copies"`
	SoldCopies     int             `json:"sold_copies"`
}

// Handler contém os handlers HTTP
type Handler struct {
	carts       CartService
	catalog     CatalogService
	reports     ReportService
	serviceName string
}

// NewHandler cria uma nova instância de Handler
func NewHandler(carts CartService, catalog CatalogService, reports ReportService, serviceName string) *Handler {
	return &Handler{
		carts:       carts,
		catalog:     catalog,
		reports:     reports,
		serviceName: serviceName,
	}
}

// NewRouter registra todas as rotas numa nova engine do gin
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(h.serviceName))

	r.GET("/health", h.HealthCheck)

	books := r.Group("/api/books")
	books.GET("", h.ListBooks)
	books.GET("/top", h.TopSellingBooks)
	books.POST("", h.CreateBook)
	books.PUT("/:id", h.UpdateBook)
	books.DELETE("/:id", h.DeleteBook)

	users := r.Group("/api/users/:username")
	users.GET("/cart", h.ListCart)
	users.POST("/cart/items", h.AddToCart)
	users.DELETE("/cart/items/:bookID", h.RemoveLine)
	users.POST("/checkout", h.Checkout)
	users.GET("/orders", h.CompletedOrders)
	users.GET("/orders/export", h.ExportUserOrders)

	admin := r.Group("/api/admin")
	admin.GET("/users", h.ListCustomers)
	admin.GET("/orders/export", h.ExportAllOrders)

	return r
}

// HealthCheck verifica a saúde do serviço
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

func (h *Handler) ListBooks(c *gin.Context) {
	books, err := h.catalog.ListBooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) TopSellingBooks(c *gin.Context) {
	books, err := h.catalog.TopSellingBooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"books": books})
}

func (h *Handler) CreateBook(c *gin.Context) {
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book := NewBook(req.Title, req.Authors, req.Price, req.PhysicalCopies, req.SoldCopies)
	if err := h.catalog.CreateBook(c.Request.Context(), book); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *Handler) UpdateBook(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book := NewBook(req.Title, req.Authors, req.Price, req.PhysicalCopies, req.SoldCopies)
	book.ID = bookID
	if err := h.catalog.UpdateBook(c.Request.Context(), book); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (h *Handler) DeleteBook(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteBook(c.Request.Context(), bookID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListCart(c *gin.Context) {
	view, err := h.carts.ListCart(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cart":             view,
		"checkout_allowed": view.CheckoutAllowed(),
	})
}

func (h *Handler) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.carts.AddToCart(c.Request.Context(), c.Param("username"), req.BookID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) RemoveLine(c *gin.Context) {
	bookID, ok := pathID(c, "bookID")
	if !ok {
		return
	}

	order, err := h.carts.RemoveLine(c.Request.Context(), c.Param("username"), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *Handler) Checkout(c *gin.Context) {
	var req PaymentDetails
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.carts.Checkout(c.Request.Context(), c.Param("username"), req)
	if err != nil {
		status, body := errorResponse(err)
		if result != nil {
			body["state"] = result.State
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CompletedOrders(c *gin.Context) {
	orders, err := h.carts.GetCompletedOrders(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) ListCustomers(c *gin.Context) {
	users, err := h.reports.ListCustomers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *Handler) ExportUserOrders(c *gin.Context) {
	username := c.Param("username")
	var buf bytes.Buffer
	if err := h.reports.ExportUserOrders(c.Request.Context(), &buf, username); err != nil {
		writeError(c, err)
		return
	}
	writeCSV(c, fmt.Sprintf("%s-orders.csv", username), buf.Bytes())
}

func (h *Handler) ExportAllOrders(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reports.ExportAllOrders(c.Request.Context(), &buf); err != nil {
		writeError(c, err)
		return
	}
	writeCSV(c, "orders.csv", buf.Bytes())
}

func writeCSV(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", data)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

// writeError converte erros de domínio em respostas HTTP
func writeError(c *gin.Context, err error) {
	c.JSON(errorResponse(err))
}

func errorResponse(err error) (int, gin.H) {
	var (
		exceeded *StockExceededError
		conflict *StockConflictError
		payment  *PaymentError
	)

	switch {
	case errors.Is(err, ErrCommitFailed):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "commit_failed"}
	case errors.As(err, &exceeded):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "stock_exceeded", "available": exceeded.Available}
	case errors.As(err, &conflict):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "stock_conflict", "lines": conflict.Lines}
	case errors.As(err, &payment):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_payment", "reason": payment.Reason}
	case errors.Is(err, ErrInvalidQuantity):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_quantity"}
	case errors.Is(err, ErrInvalidBook):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "invalid_book"}
	case errors.Is(err, ErrEmptyCart):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "code": "empty_cart"}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"}
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "conflict"}
	default:
		return http.StatusInternalServerError, gin.H{"error": err.Error(), "code": "storage_failure"}
	}
}

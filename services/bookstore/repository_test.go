package main

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockCatalogRepository para testes que não precisam de banco real
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	args := m.Called(ctx, bookID)
	book, _ := args.Get(0).(*Book)
	return book, args.Error(1)
}

func (m *MockCatalogRepository) ListBooks(ctx context.Context) ([]*Book, error) {
	args := m.Called(ctx)
	books, _ := args.Get(0).([]*Book)
	return books, args.Error(1)
}

func (m *MockCatalogRepository) TopSellingBooks(ctx context.Context, limit int) ([]*Book, error) {
	args := m.Called(ctx, limit)
	books, _ := args.Get(0).([]*Book)
	return books, args.Error(1)
}

func (m *MockCatalogRepository) CreateBook(ctx context.Context, book *Book) error {
	return m.Called(ctx, book).Error(0)
}

func (m *MockCatalogRepository) UpdateBook(ctx context.Context, book *Book) error {
	return m.Called(ctx, book).Error(0)
}

func (m *MockCatalogRepository) DeleteBook(ctx context.Context, bookID int64) error {
	return m.Called(ctx, bookID).Error(0)
}

func (m *MockCatalogRepository) UpdateStock(ctx context.Context, tx Tx, bookID int64, deltaStock, deltaSold int) error {
	return m.Called(ctx, tx, bookID, deltaStock, deltaSold).Error(0)
}

// MockOrderRepository para testes que não precisam de banco real
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindPendingOrder(ctx context.Context, username string) (*Order, error) {
	args := m.Called(ctx, username)
	order, _ := args.Get(0).(*Order)
	return order, args.Error(1)
}

func (m *MockOrderRepository) GetCompletedOrders(ctx context.Context, username string) ([]*Order, error) {
	args := m.Called(ctx, username)
	orders, _ := args.Get(0).([]*Order)
	return orders, args.Error(1)
}

func (m *MockOrderRepository) CreateOrder(ctx context.Context, tx Tx, order *Order) error {
	return m.Called(ctx, tx, order).Error(0)
}

func (m *MockOrderRepository) UpsertLine(ctx context.Context, tx Tx, orderID string, line OrderLine) error {
	return m.Called(ctx, tx, orderID, line).Error(0)
}

func (m *MockOrderRepository) DeleteLine(ctx context.Context, tx Tx, orderID string, bookID int64) error {
	return m.Called(ctx, tx, orderID, bookID).Error(0)
}

func (m *MockOrderRepository) UpdateOrderTotals(ctx context.Context, tx Tx, orderID string, finalPrice decimal.Decimal, status string) error {
	return m.Called(ctx, tx, orderID, finalPrice, status).Error(0)
}

func (m *MockOrderRepository) RegisterUser(ctx context.Context, tx Tx, username string) error {
	return m.Called(ctx, tx, username).Error(0)
}

func (m *MockOrderRepository) ListUsersExcept(ctx context.Context, adminUsername string) ([]User, error) {
	args := m.Called(ctx, adminUsername)
	users, _ := args.Get(0).([]User)
	return users, args.Error(1)
}

func TestNewPostgresStore(t *testing.T) {
	// Arrange
	var db *pgxpool.Pool

	// Act
	store := NewPostgresStore(db)

	// Assert
	assert.NotNil(t, store)
	assert.IsType(t, &PostgresCatalogRepository{}, store.Catalog())
	assert.IsType(t, &PostgresOrderRepository{}, store.Orders())
}

func TestPgTxOf_RejectsForeignTransactions(t *testing.T) {
	// Arrange
	memory := NewMemoryStore()
	tx, err := memory.BeginTx(context.Background())
	assert.NoError(t, err)
	defer tx.Rollback()

	// Act
	_, pgErr := pgTxOf(tx)
	_, nilErr := pgTxOf(nil)

	// Assert
	assert.Error(t, pgErr)
	assert.Error(t, nilErr)
}

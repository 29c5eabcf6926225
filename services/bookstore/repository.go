package main

import (
	"context"

	"github.com/shopspring/decimal"
)

// Tx representa uma unidade de trabalho sobre catálogo e pedidos
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor abre transações compartilhadas pelos dois repositórios
type Transactor interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// CatalogRepository define as operações de persistência de livros
type CatalogRepository interface {
	// GetBook retorna ErrNotFound quando o livro não existe
	GetBook(ctx context.Context, bookID int64) (*Book, error)

	ListBooks(ctx context.Context) ([]*Book, error)

	// TopSellingBooks retorna até limit livros ordenados por vendas
	TopSellingBooks(ctx context.Context, limit int) ([]*Book, error)

	CreateBook(ctx context.Context, book *Book) error
	UpdateBook(ctx context.Context, book *Book) error
	DeleteBook(ctx context.Context, bookID int64) error

	// UpdateStock aplica os deltas de forma atômica e revalida contra a linha
	// gravada: retorna ErrConflict em vez de deixar um contador negativo.
	UpdateStock(ctx context.Context, tx Tx, bookID int64, deltaStock, deltaSold int) error
}

// OrderRepository define as operações de persistência de pedidos e linhas
type OrderRepository interface {
	// FindPendingOrder retorna nil, nil quando o usuário não tem carrinho
	FindPendingOrder(ctx context.Context, username string) (*Order, error)

	// GetCompletedOrders retorna os pedidos completados em ordem de inserção
	GetCompletedOrders(ctx context.Context, username string) ([]*Order, error)

	CreateOrder(ctx context.Context, tx Tx, order *Order) error
	UpsertLine(ctx context.Context, tx Tx, orderID string, line OrderLine) error
	DeleteLine(ctx context.Context, tx Tx, orderID string, bookID int64) error

	// UpdateOrderTotals só altera pedidos pending; retorna ErrConflict se o
	// pedido já foi completado.
	UpdateOrderTotals(ctx context.Context, tx Tx, orderID string, finalPrice decimal.Decimal, status string) error

	// RegisterUser cadastra o cliente quando ele abre o primeiro carrinho.
	// Usuários já cadastrados mantêm os nomes gravados.
	RegisterUser(ctx context.Context, tx Tx, username string) error

	ListUsersExcept(ctx context.Context, adminUsername string) ([]User, error)
}

// Store agrupa tudo que o serviço precisa da persistência
type Store interface {
	Transactor
	Catalog() CatalogRepository
	Orders() OrderRepository
	Close()
}

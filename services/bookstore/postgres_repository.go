package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const pgUniqueViolation = "23505"

// pgxPool abstrai a parte do *pgxpool.Pool usada pelos repositórios
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresTx implementa Tx
type PostgresTx struct {
	tx pgx.Tx
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

func pgTxOf(tx Tx) (pgx.Tx, error) {
	pt, ok := tx.(*PostgresTx)
	if !ok || pt == nil {
		return nil, fmt.Errorf("unexpected transaction type %T", tx)
	}
	return pt.tx, nil
}

// PostgresStore implementa Store usando PostgreSQL
type PostgresStore struct {
	db      pgxPool
	catalog *PostgresCatalogRepository
	orders  *PostgresOrderRepository
}

// NewPostgresStore cria uma nova instância de PostgresStore
func NewPostgresStore(db pgxPool) *PostgresStore {
	return &PostgresStore{
		db:      db,
		catalog: &PostgresCatalogRepository{db: db},
		orders:  &PostgresOrderRepository{db: db},
	}
}

// BeginTx inicia uma nova transação
func (s *PostgresStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PostgresTx{tx: tx}, nil
}

func (s *PostgresStore) Catalog() CatalogRepository { return s.catalog }
func (s *PostgresStore) Orders() OrderRepository    { return s.orders }
func (s *PostgresStore) Close()                     { s.db.Close() }

// PostgresCatalogRepository implementa CatalogRepository
type PostgresCatalogRepository struct {
	db pgxPool
}

const bookColumns = `book_id, title, authors, physical_copies, price, sold_copies`

func scanBook(row pgx.Row) (*Book, error) {
	var book Book
	err := row.Scan(&book.ID, &book.Title, &book.Authors, &book.CopiesInStock, &book.Price, &book.CopiesSold)
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// GetBook busca um livro pelo ID
func (r *PostgresCatalogRepository) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	book, err := scanBook(r.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE book_id = $1`, bookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

func (r *PostgresCatalogRepository) ListBooks(ctx context.Context) ([]*Book, error) {
	return r.queryBooks(ctx, `SELECT `+bookColumns+` FROM books ORDER BY book_id`)
}

func (r *PostgresCatalogRepository) TopSellingBooks(ctx context.Context, limit int) ([]*Book, error) {
	return r.queryBooks(ctx, `SELECT `+bookColumns+` FROM books ORDER BY sold_copies DESC, book_id LIMIT $1`, limit)
}

func (r *PostgresCatalogRepository) queryBooks(ctx context.Context, query string, args ...any) ([]*Book, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	books := []*Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// CreateBook insere um livro e preenche o ID gerado
func (r *PostgresCatalogRepository) CreateBook(ctx context.Context, book *Book) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO books (title, authors, physical_copies, price, sold_copies)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING book_id
	`, book.Title, book.Authors, book.CopiesInStock, book.Price, book.CopiesSold).Scan(&book.ID)
	if err != nil {
		return fmt.Errorf("failed to create book: %w", err)
	}
	return nil
}

func (r *PostgresCatalogRepository) UpdateBook(ctx context.Context, book *Book) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE books
		SET title = $2, authors = $3, physical_copies = $4, price = $5, sold_copies = $6
		WHERE book_id = $1
	`, book.ID, book.Title, book.Authors, book.CopiesInStock, book.Price, book.CopiesSold)
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("book %d: %w", book.ID, ErrNotFound)
	}
	return nil
}

func (r *PostgresCatalogRepository) DeleteBook(ctx context.Context, bookID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM books WHERE book_id = $1`, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return nil
}

// UpdateStock aplica os deltas de estoque e vendas num único UPDATE condicional.
// O lock de linha do UPDATE serializa checkouts concorrentes.
func (r *PostgresCatalogRepository) UpdateStock(ctx context.Context, tx Tx, bookID int64, deltaStock, deltaSold int) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	tag, err := pgTx.Exec(ctx, `
		UPDATE books
		SET physical_copies = physical_copies + $2,
		    sold_copies = sold_copies + $3
		WHERE book_id = $1
		  AND physical_copies + $2 >= 0
		  AND sold_copies + $3 >= 0
	`, bookID, deltaStock, deltaSold)
	if err != nil {
		return fmt.Errorf("failed to update stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := pgTx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE book_id = $1)`, bookID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check book: %w", err)
	}
	if !exists {
		return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return fmt.Errorf("book %d has insufficient stock: %w", bookID, ErrConflict)
}

// PostgresOrderRepository implementa OrderRepository
type PostgresOrderRepository struct {
	db pgxPool
}

const orderColumns = `order_id, username, final_price, status, order_datetime`

// FindPendingOrder retorna o carrinho do usuário com as linhas, ou nil
func (r *PostgresOrderRepository) FindPendingOrder(ctx context.Context, username string) (*Order, error) {
	orders, err := r.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE username = $1 AND status = $2
		LIMIT 1
	`, username, OrderStatusPending)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

func (r *PostgresOrderRepository) GetCompletedOrders(ctx context.Context, username string) ([]*Order, error) {
	return r.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE username = $1 AND status = $2
		ORDER BY order_datetime, order_id
	`, username, OrderStatusCompleted)
}

func (r *PostgresOrderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*Order{}
	byID := map[string]*Order{}
	ids := []string{}
	for rows.Next() {
		order := &Order{Lines: []OrderLine{}}
		if err := rows.Scan(&order.ID, &order.Username, &order.FinalPrice, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	lineRows, err := r.db.Query(ctx, `
		SELECT order_id, book_id, qty, total_price
		FROM order_details
		WHERE order_id = ANY($1)
		ORDER BY line_no
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query order details: %w", err)
	}
	defer lineRows.Close()

	for lineRows.Next() {
		var line OrderLine
		if err := lineRows.Scan(&line.OrderID, &line.BookID, &line.Quantity, &line.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order detail: %w", err)
		}
		if order, ok := byID[line.OrderID]; ok {
			order.Lines = append(order.Lines, line)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order details: %w", err)
	}
	return orders, nil
}

// CreateOrder insere o pedido. O índice único parcial sobre pedidos pending
// transforma um segundo carrinho do mesmo usuário em ErrConflict.
func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, tx Tx, order *Order) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO orders (order_id, username, final_price, status, order_datetime)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.Username, order.FinalPrice, order.Status, order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("user %s already has a pending order: %w", order.Username, ErrConflict)
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) UpsertLine(ctx context.Context, tx Tx, orderID string, line OrderLine) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO order_details (order_id, book_id, qty, total_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id, book_id)
		DO UPDATE SET qty = EXCLUDED.qty, total_price = EXCLUDED.total_price
	`, orderID, line.BookID, line.Quantity, line.LineTotal)
	if err != nil {
		return fmt.Errorf("failed to upsert order detail: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) DeleteLine(ctx context.Context, tx Tx, orderID string, bookID int64) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	_, err = pgTx.Exec(ctx, `DELETE FROM order_details WHERE order_id = $1 AND book_id = $2`, orderID, bookID)
	if err != nil {
		return fmt.Errorf("failed to delete order detail: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) UpdateOrderTotals(ctx context.Context, tx Tx, orderID string, finalPrice decimal.Decimal, status string) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	tag, err := pgTx.Exec(ctx, `
		UPDATE orders
		SET final_price = $2, status = $3
		WHERE order_id = $1 AND status = $4
	`, orderID, finalPrice, status, OrderStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s is not pending: %w", orderID, ErrConflict)
	}
	return nil
}

func (r *PostgresOrderRepository) RegisterUser(ctx context.Context, tx Tx, username string) error {
	pgTx, err := pgTxOf(tx)
	if err != nil {
		return err
	}

	_, err = pgTx.Exec(ctx, `
		INSERT INTO users (username, first_name, last_name)
		VALUES ($1, '', '')
		ON CONFLICT (username) DO NOTHING
	`, username)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}
	return nil
}

func (r *PostgresOrderRepository) ListUsersExcept(ctx context.Context, adminUsername string) ([]User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT username, first_name, last_name
		FROM users
		WHERE username <> $1
		ORDER BY username
	`, adminUsername)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.Username, &user.FirstName, &user.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// AddUser cadastra um usuário para os relatórios. Usuários existentes não mudam.
func (s *PostgresStore) AddUser(ctx context.Context, user User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (username, first_name, last_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`, user.Username, user.FirstName, user.LastName)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}
	return nil
}

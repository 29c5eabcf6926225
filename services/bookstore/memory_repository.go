package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

type memoryState struct {
	books      map[int64]*Book
	nextBookID int64
	orders     map[string]*Order
	orderSeq   []string
	users      map[string]User
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		books:      make(map[int64]*Book, len(s.books)),
		nextBookID: s.nextBookID,
		orders:     make(map[string]*Order, len(s.orders)),
		orderSeq:   append([]string(nil), s.orderSeq...),
		users:      make(map[string]User, len(s.users)),
	}
	for id, book := range s.books {
		b := *book
		c.books[id] = &b
	}
	for id, order := range s.orders {
		c.orders[id] = order.Clone()
	}
	for name, user := range s.users {
		c.users[name] = user
	}
	return c
}

// MemoryStore implementa Store em memória. Transações trabalham numa cópia
// privada do estado e são serializadas por writeMu: o commit publica todas as
// escritas da transação de uma vez, ou nenhuma.
type MemoryStore struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *memoryState

	catalog *MemoryCatalogRepository
	orders  *MemoryOrderRepository
}

// NewMemoryStore cria um MemoryStore vazio
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		state: &memoryState{
			books:      map[int64]*Book{},
			nextBookID: 1,
			orders:     map[string]*Order{},
			users:      map[string]User{},
		},
	}
	s.catalog = &MemoryCatalogRepository{store: s}
	s.orders = &MemoryOrderRepository{store: s}
	return s
}

func (s *MemoryStore) Catalog() CatalogRepository { return s.catalog }
func (s *MemoryStore) Orders() OrderRepository    { return s.orders }
func (s *MemoryStore) Close()                     {}

// MemoryTx implementa Tx sobre uma cópia de trabalho do estado
type MemoryTx struct {
	store   *MemoryStore
	working *memoryState
	done    bool
}

// BeginTx bloqueia até não haver outra transação aberta
func (s *MemoryStore) BeginTx(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writeMu.Lock()
	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()
	return &MemoryTx{store: s, working: working}, nil
}

func (t *MemoryTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.working
	t.store.mu.Unlock()
	t.store.writeMu.Unlock()
	return nil
}

func (t *MemoryTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.writeMu.Unlock()
	return nil
}

func (s *MemoryStore) workingState(tx Tx) (*memoryState, error) {
	mt, ok := tx.(*MemoryTx)
	if !ok || mt == nil || mt.store != s {
		return nil, fmt.Errorf("unexpected transaction type %T", tx)
	}
	if mt.done {
		return nil, fmt.Errorf("transaction already closed")
	}
	return mt.working, nil
}

// write executa fn como uma transação de um único comando
func (s *MemoryStore) write(ctx context.Context, fn func(state *memoryState) error) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx.(*MemoryTx).working); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MemoryStore) read(fn func(state *memoryState)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

// AddUser cadastra um usuário para os relatórios
func (s *MemoryStore) AddUser(user User) {
	_ = s.write(context.Background(), func(state *memoryState) error {
		state.users[user.Username] = user
		return nil
	})
}

// MemoryCatalogRepository implementa CatalogRepository
type MemoryCatalogRepository struct {
	store *MemoryStore
}

func (r *MemoryCatalogRepository) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	var book *Book
	r.store.read(func(state *memoryState) {
		if b, ok := state.books[bookID]; ok {
			c := *b
			book = &c
		}
	})
	if book == nil {
		return nil, fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	return book, nil
}

func (r *MemoryCatalogRepository) ListBooks(ctx context.Context) ([]*Book, error) {
	books := r.snapshot()
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (r *MemoryCatalogRepository) TopSellingBooks(ctx context.Context, limit int) ([]*Book, error) {
	books := r.snapshot()
	sort.Slice(books, func(i, j int) bool {
		if books[i].CopiesSold != books[j].CopiesSold {
			return books[i].CopiesSold > books[j].CopiesSold
		}
		return books[i].ID < books[j].ID
	})
	if limit >= 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (r *MemoryCatalogRepository) snapshot() []*Book {
	books := []*Book{}
	r.store.read(func(state *memoryState) {
		for _, b := range state.books {
			c := *b
			books = append(books, &c)
		}
	})
	return books
}

func (r *MemoryCatalogRepository) CreateBook(ctx context.Context, book *Book) error {
	return r.store.write(ctx, func(state *memoryState) error {
		book.ID = state.nextBookID
		state.nextBookID++
		c := *book
		state.books[book.ID] = &c
		return nil
	})
}

func (r *MemoryCatalogRepository) UpdateBook(ctx context.Context, book *Book) error {
	return r.store.write(ctx, func(state *memoryState) error {
		if _, ok := state.books[book.ID]; !ok {
			return fmt.Errorf("book %d: %w", book.ID, ErrNotFound)
		}
		c := *book
		state.books[book.ID] = &c
		return nil
	})
}

func (r *MemoryCatalogRepository) DeleteBook(ctx context.Context, bookID int64) error {
	return r.store.write(ctx, func(state *memoryState) error {
		if _, ok := state.books[bookID]; !ok {
			return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
		}
		delete(state.books, bookID)
		return nil
	})
}

func (r *MemoryCatalogRepository) UpdateStock(ctx context.Context, tx Tx, bookID int64, deltaStock, deltaSold int) error {
	state, err := r.store.workingState(tx)
	if err != nil {
		return err
	}
	book, ok := state.books[bookID]
	if !ok {
		return fmt.Errorf("book %d: %w", bookID, ErrNotFound)
	}
	if book.CopiesInStock+deltaStock < 0 || book.CopiesSold+deltaSold < 0 {
		return fmt.Errorf("book %d has insufficient stock: %w", bookID, ErrConflict)
	}
	book.CopiesInStock += deltaStock
	book.CopiesSold += deltaSold
	return nil
}

// MemoryOrderRepository implementa OrderRepository
type MemoryOrderRepository struct {
	store *MemoryStore
}

func (r *MemoryOrderRepository) FindPendingOrder(ctx context.Context, username string) (*Order, error) {
	var pending *Order
	r.store.read(func(state *memoryState) {
		for _, id := range state.orderSeq {
			order := state.orders[id]
			if order.Username == username && order.IsPending() {
				pending = order.Clone()
				return
			}
		}
	})
	return pending, nil
}

func (r *MemoryOrderRepository) GetCompletedOrders(ctx context.Context, username string) ([]*Order, error) {
	orders := []*Order{}
	r.store.read(func(state *memoryState) {
		for _, id := range state.orderSeq {
			order := state.orders[id]
			if order.Username == username && order.Status == OrderStatusCompleted {
				orders = append(orders, order.Clone())
			}
		}
	})
	return orders, nil
}

func (r *MemoryOrderRepository) CreateOrder(ctx context.Context, tx Tx, order *Order) error {
	state, err := r.store.workingState(tx)
	if err != nil {
		return err
	}
	if _, ok := state.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists: %w", order.ID, ErrConflict)
	}
	if order.IsPending() {
		for _, existing := range state.orders {
			if existing.Username == order.Username && existing.IsPending() {
				return fmt.Errorf("user %s already has a pending order: %w", order.Username, ErrConflict)
			}
		}
	}
	stored := order.Clone()
	stored.Lines = []OrderLine{}
	state.orders[order.ID] = stored
	state.orderSeq = append(state.orderSeq, order.ID)
	return nil
}

func (r *MemoryOrderRepository) pendingOrder(tx Tx, orderID string) (*Order, error) {
	state, err := r.store.workingState(tx)
	if err != nil {
		return nil, err
	}
	order, ok := state.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if !order.IsPending() {
		return nil, fmt.Errorf("order %s is not pending: %w", orderID, ErrConflict)
	}
	return order, nil
}

func (r *MemoryOrderRepository) UpsertLine(ctx context.Context, tx Tx, orderID string, line OrderLine) error {
	order, err := r.pendingOrder(tx, orderID)
	if err != nil {
		return err
	}
	line.OrderID = orderID
	for i := range order.Lines {
		if order.Lines[i].BookID == line.BookID {
			order.Lines[i] = line
			return nil
		}
	}
	order.Lines = append(order.Lines, line)
	return nil
}

func (r *MemoryOrderRepository) DeleteLine(ctx context.Context, tx Tx, orderID string, bookID int64) error {
	order, err := r.pendingOrder(tx, orderID)
	if err != nil {
		return err
	}
	for i := range order.Lines {
		if order.Lines[i].BookID == bookID {
			order.Lines = append(order.Lines[:i], order.Lines[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryOrderRepository) UpdateOrderTotals(ctx context.Context, tx Tx, orderID string, finalPrice decimal.Decimal, status string) error {
	order, err := r.pendingOrder(tx, orderID)
	if err != nil {
		return err
	}
	order.FinalPrice = finalPrice
	order.Status = status
	return nil
}

func (r *MemoryOrderRepository) RegisterUser(ctx context.Context, tx Tx, username string) error {
	state, err := r.store.workingState(tx)
	if err != nil {
		return err
	}
	if _, ok := state.users[username]; !ok {
		state.users[username] = User{Username: username}
	}
	return nil
}

func (r *MemoryOrderRepository) ListUsersExcept(ctx context.Context, adminUsername string) ([]User, error) {
	users := []User{}
	r.store.read(func(state *memoryState) {
		for name, user := range state.users {
			if name != adminUsername {
				users = append(users, user)
			}
		}
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

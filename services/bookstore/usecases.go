package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultLockWait = 5 * time.Second

// CartUseCase encapsula a lógica de negócio do carrinho e dos pedidos. Não
// guarda estado entre chamadas: o pedido pending é lido do store a cada operação.
type CartUseCase struct {
	tx       Transactor
	catalog  CatalogRepository
	orders   OrderRepository
	locker   CartLocker
	tracer   trace.Tracer
	metrics  *cartMetrics
	lockWait time.Duration

	now   func() time.Time
	newID func() string
}

// NewCartUseCase cria uma nova instância do caso de uso
func NewCartUseCase(
	tx Transactor,
	catalog CatalogRepository,
	orders OrderRepository,
	locker CartLocker,
	tracer trace.Tracer,
	meter metric.Meter,
) (*CartUseCase, error) {
	metrics, err := newCartMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart metrics: %w", err)
	}
	return &CartUseCase{
		tx:       tx,
		catalog:  catalog,
		orders:   orders,
		locker:   locker,
		tracer:   tracer,
		metrics:  metrics,
		lockWait: defaultLockWait,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// AddToCart adiciona quantity cópias de um livro ao pedido pending do usuário,
// criando o pedido no primeiro uso. O estoque é verificado antes de qualquer
// escrita, então uma adição rejeitada não deixa pedido vazio para trás.
func (uc *CartUseCase) AddToCart(ctx context.Context, username string, bookID int64, quantity int) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "cart.add",
		userAttr(username),
		trace.WithAttributes(attribute.Int64("book_id", bookID), attribute.Int("quantity", quantity)),
	)
	defer span.End()

	if quantity < 1 {
		uc.metrics.recordAddition(ctx, "invalid_quantity")
		return nil, recordSpanError(span, ErrInvalidQuantity)
	}

	unlock, err := uc.lockCart(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	defer unlock()

	book, err := uc.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, recordSpanError(span, wrapRead("get book", err))
	}

	order, err := uc.orders.FindPendingOrder(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("find pending order", err))
	}

	existingQty := 0
	if order != nil {
		existingQty = order.QuantityOf(bookID)
	}
	if quantity > book.CopiesInStock-existingQty {
		uc.metrics.recordAddition(ctx, "stock_exceeded")
		return nil, recordSpanError(span, &StockExceededError{
			BookID:    book.ID,
			Title:     book.Title,
			Available: book.CopiesInStock,
		})
	}

	tx, err := uc.tx.BeginTx(ctx)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("begin transaction", err))
	}
	defer tx.Rollback()

	if order == nil {
		if err := uc.orders.RegisterUser(ctx, tx, username); err != nil {
			return nil, recordSpanError(span, storageFailure("register user", err))
		}
		order = NewOrder(uc.newID(), username)
		order.CreatedAt = uc.now().UTC()
		if err := uc.orders.CreateOrder(ctx, tx, order); err != nil {
			return nil, recordSpanError(span, storageFailure("create order", err))
		}
	}

	line := order.AddCopies(book, quantity)
	if err := uc.orders.UpsertLine(ctx, tx, order.ID, line); err != nil {
		return nil, recordSpanError(span, storageFailure("upsert order line", err))
	}
	if err := uc.orders.UpdateOrderTotals(ctx, tx, order.ID, order.FinalPrice, OrderStatusPending); err != nil {
		return nil, recordSpanError(span, storageFailure("update order totals", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, recordSpanError(span, storageFailure("commit add to cart", err))
	}

	uc.metrics.recordAddition(ctx, "added")
	span.SetAttributes(attribute.String("order_id", order.ID))
	slog.InfoContext(ctx, "🛒 [ADD TO CART] line saved",
		"username", username, "order_id", order.ID, "book_id", bookID,
		"quantity", line.Quantity, "final_price", order.FinalPrice.StringFixed(2))
	return order, nil
}

// RemoveLine remove a linha de bookID do pedido pending do usuário. Linha
// inexistente não é erro e devolve o pedido sem mudanças; sem carrinho o
// pedido retornado é nil.
func (uc *CartUseCase) RemoveLine(ctx context.Context, username string, bookID int64) (*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "cart.remove",
		userAttr(username),
		trace.WithAttributes(attribute.Int64("book_id", bookID)),
	)
	defer span.End()

	unlock, err := uc.lockCart(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	defer unlock()

	order, err := uc.orders.FindPendingOrder(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("find pending order", err))
	}
	if order == nil {
		return nil, nil
	}

	updated := order.Clone()
	if !updated.RemoveLine(bookID) {
		return order, nil
	}

	tx, err := uc.tx.BeginTx(ctx)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("begin transaction", err))
	}
	defer tx.Rollback()

	if err := uc.orders.DeleteLine(ctx, tx, updated.ID, bookID); err != nil {
		return nil, recordSpanError(span, storageFailure("delete order line", err))
	}
	if err := uc.orders.UpdateOrderTotals(ctx, tx, updated.ID, updated.FinalPrice, OrderStatusPending); err != nil {
		return nil, recordSpanError(span, storageFailure("update order totals", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, recordSpanError(span, storageFailure("commit remove line", err))
	}

	uc.metrics.removals.Add(ctx, 1)
	slog.InfoContext(ctx, "🗑️ [REMOVE LINE] line removed",
		"username", username, "order_id", updated.ID, "book_id", bookID,
		"final_price", updated.FinalPrice.StringFixed(2))
	return updated, nil
}

// ListCart retorna o pedido pending com os dados atuais do catálogo. Nunca escreve.
func (uc *CartUseCase) ListCart(ctx context.Context, username string) (*CartView, error) {
	ctx, span := uc.tracer.Start(ctx, "cart.list", userAttr(username))
	defer span.End()

	order, err := uc.orders.FindPendingOrder(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("find pending order", err))
	}
	if order == nil {
		return &CartView{Username: username, Lines: []CartLine{}}, nil
	}

	view, err := uc.cartView(ctx, order)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	return view, nil
}

// GetCompletedOrders retorna os pedidos completados do usuário na ordem em que foram feitos
func (uc *CartUseCase) GetCompletedOrders(ctx context.Context, username string) ([]*Order, error) {
	ctx, span := uc.tracer.Start(ctx, "orders.completed", userAttr(username))
	defer span.End()

	orders, err := uc.orders.GetCompletedOrders(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("get completed orders", err))
	}
	return orders, nil
}

// cartView junta as linhas do pedido com o estoque atual. Livro removido do
// catálogo aparece sem estoque e bloqueia o checkout.
func (uc *CartUseCase) cartView(ctx context.Context, order *Order) (*CartView, error) {
	view := &CartView{
		OrderID:    order.ID,
		Username:   order.Username,
		Lines:      make([]CartLine, 0, len(order.Lines)),
		FinalPrice: order.FinalPrice,
	}
	for _, line := range order.Lines {
		cartLine := CartLine{
			BookID:    line.BookID,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		}
		book, err := uc.catalog.GetBook(ctx, line.BookID)
		switch {
		case errors.Is(err, ErrNotFound):
			slog.WarnContext(ctx, "book in cart no longer in catalog", "order_id", order.ID, "book_id", line.BookID)
		case err != nil:
			return nil, storageFailure("get book", err)
		default:
			cartLine.Title = book.Title
			cartLine.Authors = book.Authors
			cartLine.CopiesInStock = book.CopiesInStock
		}
		cartLine.InsufficientStock = cartLine.Quantity > cartLine.CopiesInStock
		view.Lines = append(view.Lines, cartLine)
	}
	return view, nil
}

func (uc *CartUseCase) lockCart(ctx context.Context, username string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, uc.lockWait)
	defer cancel()

	unlock, err := uc.locker.Lock(lockCtx, username)
	if err != nil {
		return nil, storageFailure("lock cart", err)
	}
	return unlock, nil
}

func userAttr(username string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String("username", username))
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

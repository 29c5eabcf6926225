package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// CheckoutState representa um passo da máquina de estados do checkout
type CheckoutState string

const (
	CheckoutIdle         CheckoutState = "idle"
	CheckoutValidating   CheckoutState = "validating"
	CheckoutRejected     CheckoutState = "rejected"
	CheckoutCommitting   CheckoutState = "committing"
	CheckoutCommitted    CheckoutState = "committed"
	CheckoutCommitFailed CheckoutState = "commit_failed"
)

var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutIdle:       {CheckoutValidating},
	CheckoutValidating: {CheckoutRejected, CheckoutCommitting},
	CheckoutCommitting: {CheckoutCommitted, CheckoutCommitFailed},
}

func (s CheckoutState) canTransitionTo(next CheckoutState) bool {
	for _, allowed := range checkoutTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal indica se não há mais transições possíveis
func (s CheckoutState) IsTerminal() bool {
	return len(checkoutTransitions[s]) == 0
}

type checkoutRun struct {
	username string
	state    CheckoutState
}

func (r *checkoutRun) advance(ctx context.Context, next CheckoutState) {
	if !r.state.canTransitionTo(next) {
		panic(fmt.Sprintf("invalid checkout transition %s -> %s", r.state, next))
	}
	slog.DebugContext(ctx, "checkout transition", "username", r.username, "from", r.state, "to", next)
	r.state = next
}

// Checkout valida o carrinho e os dados de pagamento e, se ambos passarem,
// efetiva o pedido: o estoque de cada linha vira venda e o pedido fica
// completed numa única transação. Em qualquer falha o pedido continua pending.
func (uc *CartUseCase) Checkout(ctx context.Context, username string, payment PaymentDetails) (*CheckoutResult, error) {
	ctx, span := uc.tracer.Start(ctx, "cart.checkout", userAttr(username))
	defer span.End()

	unlock, err := uc.lockCart(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	defer unlock()

	run := &checkoutRun{username: username, state: CheckoutIdle}
	run.advance(ctx, CheckoutValidating)

	order, err := uc.orders.FindPendingOrder(ctx, username)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("find pending order", err))
	}

	reject := func(err error, reason string) (*CheckoutResult, error) {
		run.advance(ctx, CheckoutRejected)
		uc.metrics.recordCheckout(ctx, run.state, reason)
		slog.InfoContext(ctx, "❌ [CHECKOUT] rejected", "username", username, "reason", reason, "error", err)
		return &CheckoutResult{State: run.state, Order: order}, recordSpanError(span, err)
	}

	if order == nil || order.IsEmpty() {
		return reject(ErrEmptyCart, "empty_cart")
	}

	view, err := uc.cartView(ctx, order)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	var conflicts []CartLine
	for _, line := range view.Lines {
		if line.InsufficientStock {
			conflicts = append(conflicts, line)
		}
	}
	if len(conflicts) > 0 {
		return reject(&StockConflictError{Lines: conflicts}, "stock_conflict")
	}

	if err := ValidatePayment(payment, uc.now()); err != nil {
		var paymentErr *PaymentError
		reason := "invalid_payment"
		if errors.As(err, &paymentErr) {
			reason = string(paymentErr.Reason)
		}
		return reject(err, reason)
	}

	run.advance(ctx, CheckoutCommitting)
	if err := uc.commit(ctx, order); err != nil {
		run.advance(ctx, CheckoutCommitFailed)
		uc.metrics.recordCheckout(ctx, run.state, "commit")
		slog.ErrorContext(ctx, "❌ [CHECKOUT] commit failed", "username", username, "order_id", order.ID, "error", err)
		return &CheckoutResult{State: run.state, Order: order}, recordSpanError(span, commitFailure(err))
	}

	run.advance(ctx, CheckoutCommitted)
	order.Status = OrderStatusCompleted
	uc.metrics.recordCheckout(ctx, run.state, "")
	slog.InfoContext(ctx, "✅ [CHECKOUT] order committed",
		"username", username, "order_id", order.ID, "final_price", order.FinalPrice.StringFixed(2))
	return &CheckoutResult{State: run.state, Order: order}, nil
}

// commit aplica cada linha no catálogo e completa o pedido numa única transação
func (uc *CartUseCase) commit(ctx context.Context, order *Order) error {
	tx, err := uc.tx.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	copies := 0
	for _, line := range order.Lines {
		if err := uc.catalog.UpdateStock(ctx, tx, line.BookID, -line.Quantity, line.Quantity); err != nil {
			return err
		}
		copies += line.Quantity
	}

	if err := uc.orders.UpdateOrderTotals(ctx, tx, order.ID, order.FinalPrice, OrderStatusCompleted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkout: %w", err)
	}

	uc.metrics.copiesCommitted.Add(ctx, int64(copies))
	return nil
}

package main

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cartMetrics struct {
	additions        metric.Int64Counter
	removals         metric.Int64Counter
	checkoutOutcomes metric.Int64Counter
	copiesCommitted  metric.Int64Counter
}

func newCartMetrics(meter metric.Meter) (*cartMetrics, error) {
	additions, err := meter.Int64Counter("bookstore.cart.additions",
		metric.WithDescription("Add-to-cart attempts by outcome"))
	if err != nil {
		return nil, err
	}
	removals, err := meter.Int64Counter("bookstore.cart.removals",
		metric.WithDescription("Cart lines removed"))
	if err != nil {
		return nil, err
	}
	checkoutOutcomes, err := meter.Int64Counter("bookstore.checkout.outcomes",
		metric.WithDescription("Checkout attempts by terminal state and reason"))
	if err != nil {
		return nil, err
	}
	copiesCommitted, err := meter.Int64Counter("bookstore.checkout.copies_committed",
		metric.WithDescription("Book copies moved from stock to sold"),
		metric.WithUnit("{copy}"))
	if err != nil {
		return nil, err
	}
	return &cartMetrics{
		additions:        additions,
		removals:         removals,
		checkoutOutcomes: checkoutOutcomes,
		copiesCommitted:  copiesCommitted,
	}, nil
}

func (m *cartMetrics) recordAddition(ctx context.Context, outcome string) {
	m.additions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *cartMetrics) recordCheckout(ctx context.Context, state CheckoutState, reason string) {
	m.checkoutOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(state)),
		attribute.String("reason", reason),
	))
}

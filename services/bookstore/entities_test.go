package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewOrder(t *testing.T) {
	// Act
	order := NewOrder("order-123", "alice")

	// Assert
	assert.Equal(t, "order-123", order.ID)
	assert.Equal(t, "alice", order.Username)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.True(t, order.FinalPrice.IsZero())
	assert.True(t, order.IsEmpty())
	assert.WithinDuration(t, time.Now(), order.CreatedAt, time.Second)
}

func TestOrderStatus(t *testing.T) {
	assert.Equal(t, "pending", OrderStatusPending)
	assert.Equal(t, "completed", OrderStatusCompleted)
}

func TestOrder_AddCopies(t *testing.T) {
	t.Run("new line", func(t *testing.T) {
		// Arrange
		order := NewOrder("o1", "alice")
		book := &Book{ID: 1, Title: "Dune", Price: price("10.00")}

		// Act
		line := order.AddCopies(book, 2)

		// Assert
		assert.Equal(t, 2, line.Quantity)
		assert.True(t, line.LineTotal.Equal(price("20.00")))
		assert.True(t, order.FinalPrice.Equal(price("20.00")))
		assert.Equal(t, "o1", line.OrderID)
	})

	t.Run("existing line is repriced at the current price", func(t *testing.T) {
		// Arrange
		order := NewOrder("o1", "alice")
		order.AddCopies(&Book{ID: 1, Price: price("10.00")}, 2)
		order.AddCopies(&Book{ID: 2, Price: price("5.50")}, 1)

		// Act
		line := order.AddCopies(&Book{ID: 1, Price: price("12.00")}, 1)

		// Assert
		assert.Equal(t, 3, line.Quantity)
		assert.True(t, line.LineTotal.Equal(price("36.00")))
		assert.True(t, order.FinalPrice.Equal(price("41.50")))
		assert.True(t, order.FinalPrice.Equal(order.LinesTotal()))
		assert.Len(t, order.Lines, 2)
	})
}

func TestOrder_RemoveLine(t *testing.T) {
	// Arrange
	order := NewOrder("o1", "alice")
	order.AddCopies(&Book{ID: 1, Price: price("10.00")}, 2)
	order.AddCopies(&Book{ID: 2, Price: price("4.25")}, 2)

	// Act
	removed := order.RemoveLine(1)
	missing := order.RemoveLine(42)

	// Assert
	assert.True(t, removed)
	assert.False(t, missing)
	assert.Len(t, order.Lines, 1)
	assert.Equal(t, 0, order.QuantityOf(1))
	assert.Equal(t, 2, order.QuantityOf(2))
	assert.True(t, order.FinalPrice.Equal(price("8.50")))
}

func TestOrder_Clone(t *testing.T) {
	// Arrange
	order := NewOrder("o1", "alice")
	order.AddCopies(&Book{ID: 1, Price: price("10.00")}, 1)

	// Act
	clone := order.Clone()
	clone.AddCopies(&Book{ID: 1, Price: price("10.00")}, 1)

	// Assert
	assert.Equal(t, 1, order.QuantityOf(1))
	assert.Equal(t, 2, clone.QuantityOf(1))
	assert.Nil(t, (*Order)(nil).Clone())
}

func TestBook_Validate(t *testing.T) {
	tests := []struct {
		name string
		book Book
		ok   bool
	}{
		{"valid", Book{Title: "Dune", Authors: "Herbert", Price: price("9.99"), CopiesInStock: 3}, true},
		{"free book", Book{Title: "Dune", Authors: "Herbert", Price: decimal.Zero}, true},
		{"missing title", Book{Authors: "Herbert", Price: price("1")}, false},
		{"missing authors", Book{Title: "Dune", Price: price("1")}, false},
		{"negative price", Book{Title: "Dune", Authors: "Herbert", Price: price("-1")}, false},
		{"negative stock", Book{Title: "Dune", Authors: "Herbert", CopiesInStock: -1}, false},
		{"negative sold", Book{Title: "Dune", Authors: "Herbert", CopiesSold: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.book.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidBook)
		})
	}
}

func TestCartView_CheckoutAllowed(t *testing.T) {
	empty := &CartView{}
	assert.False(t, empty.CheckoutAllowed())

	ok := &CartView{Lines: []CartLine{{BookID: 1, Quantity: 1, CopiesInStock: 1}}}
	assert.True(t, ok.CheckoutAllowed())

	short := &CartView{Lines: []CartLine{
		{BookID: 1, Quantity: 1, CopiesInStock: 1},
		{BookID: 2, Quantity: 3, CopiesInStock: 2, InsufficientStock: true},
	}}
	assert.False(t, short.CheckoutAllowed())
}

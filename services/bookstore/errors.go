package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrStockExceeded   = errors.New("quantity exceeds available copies")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrStockConflict   = errors.New("cart exceeds available stock")
	ErrInvalidPayment  = errors.New("invalid payment details")
	ErrCommitFailed    = errors.New("checkout commit failed")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage failure")
	ErrInvalidBook     = errors.New("invalid book")

	// ErrConflict é retornado pelos stores quando uma escrita condicional
	// falha: o estoque ficaria negativo ou o pedido não está mais pending.
	ErrConflict = errors.New("conflict")
)

// StockExceededError informa quantas cópias restam quando uma adição é rejeitada
type StockExceededError struct {
	BookID    int64
	Title     string
	Available int
}

func (e *StockExceededError) Error() string {
	return fmt.Sprintf("you cannot add more than %d copies of %q to the cart", e.Available, e.Title)
}

func (e *StockExceededError) Is(target error) bool {
	return target == ErrStockExceeded
}

// StockConflictError lista as linhas do carrinho que excedem o estoque atual
type StockConflictError struct {
	Lines []CartLine
}

func (e *StockConflictError) Error() string {
	titles := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		if line.CopiesInStock == 0 {
			titles = append(titles, fmt.Sprintf("%q (sold out)", line.Title))
			continue
		}
		titles = append(titles, fmt.Sprintf("%q (only %d copies available)", line.Title, line.CopiesInStock))
	}
	return "some items in your cart exceed available stock: " + strings.Join(titles, ", ")
}

func (e *StockConflictError) Is(target error) bool {
	return target == ErrStockConflict
}

// PaymentFailure identifica o campo que falhou na validação
type PaymentFailure string

const (
	PaymentBadCardNumber  PaymentFailure = "card_number"
	PaymentBadExpiry      PaymentFailure = "expiry_format"
	PaymentBadExpiryMonth PaymentFailure = "expiry_month"
	PaymentExpired        PaymentFailure = "expired"
	PaymentBadCVV         PaymentFailure = "cvv"
)

var paymentMessages = map[PaymentFailure]string{
	PaymentBadCardNumber:  "card number must be 16 digits",
	PaymentBadExpiry:      "expiry date must be in MM/YY format",
	PaymentBadExpiryMonth: "month must be between 01 and 12",
	PaymentExpired:        "the card has expired",
	PaymentBadCVV:         "CVV must be 3 digits",
}

// PaymentError é retornado quando os dados de pagamento são inválidos
type PaymentError struct {
	Reason PaymentFailure
}

func (e *PaymentError) Error() string {
	return paymentMessages[e.Reason]
}

func (e *PaymentError) Is(target error) bool {
	return target == ErrInvalidPayment
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func commitFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrCommitFailed, err)
}

func invalidBook(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidBook, reason)
}

// wrapRead mantém NotFound e marca qualquer outro erro de leitura como falha de storage
func wrapRead(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return storageFailure(op, err)
}

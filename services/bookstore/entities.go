package main

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus representa os possíveis estados de um pedido
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// Book representa um livro do catálogo
type Book struct {
	ID            int64           `json:"id" db:"book_id"`
	Title         string          `json:"title" db:"title"`
	Authors       string          `json:"authors" db:"authors"`
	Price         decimal.Decimal `json:"price" db:"price"`
	CopiesInStock int             `json:"physical_copies" db:"physical_copies"`
	CopiesSold    int             `json:"sold_copies" db:"sold_copies"`
}

// NewBook cria uma nova instância de Book
func NewBook(title, authors string, price decimal.Decimal, copiesInStock, copiesSold int) *Book {
	return &Book{
		Title:         title,
		Authors:       authors,
		Price:         price,
		CopiesInStock: copiesInStock,
		CopiesSold:    copiesSold,
	}
}

// Validate verifica que preço e contadores não são negativos
func (b *Book) Validate() error {
	switch {
	case b.Title == "":
		return invalidBook("title is required")
	case b.Authors == "":
		return invalidBook("authors are required")
	case b.Price.IsNegative():
		return invalidBook("price must not be negative")
	case b.CopiesInStock < 0:
		return invalidBook("physical copies must not be negative")
	case b.CopiesSold < 0:
		return invalidBook("sold copies must not be negative")
	}
	return nil
}

// OrderLine representa um livro e sua quantidade dentro de um pedido
type OrderLine struct {
	OrderID   string          `json:"order_id" db:"order_id"`
	BookID    int64           `json:"book_id" db:"book_id"`
	Quantity  int             `json:"qty" db:"qty"`
	LineTotal decimal.Decimal `json:"total_price" db:"total_price"`
}

// Order representa um carrinho (pending) ou um pedido finalizado (completed)
type Order struct {
	ID         string          `json:"order_id" db:"order_id"`
	Username   string          `json:"username" db:"username"`
	FinalPrice decimal.Decimal `json:"final_price" db:"final_price"`
	Status     string          `json:"status" db:"status"`
	CreatedAt  time.Time       `json:"order_datetime" db:"order_datetime"`
	Lines      []OrderLine     `json:"lines"`
}

// NewOrder cria um pedido pending vazio
func NewOrder(id, username string) *Order {
	return &Order{
		ID:         id,
		Username:   username,
		FinalPrice: decimal.Zero,
		Status:     OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
		Lines:      []OrderLine{},
	}
}

func (o *Order) IsPending() bool {
	return o.Status == OrderStatusPending
}

func (o *Order) IsEmpty() bool {
	return len(o.Lines) == 0
}

// Line retorna a linha de bookID e se ela existe
func (o *Order) Line(bookID int64) (OrderLine, bool) {
	for _, line := range o.Lines {
		if line.BookID == bookID {
			return line, true
		}
	}
	return OrderLine{}, false
}

// QuantityOf retorna quantas cópias de bookID o pedido já tem
func (o *Order) QuantityOf(bookID int64) int {
	line, _ := o.Line(bookID)
	return line.Quantity
}

// AddCopies soma quantity cópias do livro ao pedido e retorna a linha
// resultante. Uma linha existente é reprecificada pelo preço atual do livro e
// FinalPrice muda apenas pela diferença da linha.
func (o *Order) AddCopies(book *Book, quantity int) OrderLine {
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.BookID != book.ID {
			continue
		}
		newQuantity := line.Quantity + quantity
		newTotal := book.Price.Mul(decimal.NewFromInt(int64(newQuantity)))
		o.FinalPrice = o.FinalPrice.Add(newTotal.Sub(line.LineTotal))
		line.Quantity = newQuantity
		line.LineTotal = newTotal
		return *line
	}

	line := OrderLine{
		OrderID:   o.ID,
		BookID:    book.ID,
		Quantity:  quantity,
		LineTotal: book.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
	o.Lines = append(o.Lines, line)
	o.FinalPrice = o.FinalPrice.Add(line.LineTotal)
	return line
}

// RemoveLine remove a linha de bookID e indica se havia alguma
func (o *Order) RemoveLine(bookID int64) bool {
	for i, line := range o.Lines {
		if line.BookID != bookID {
			continue
		}
		o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
		o.FinalPrice = o.FinalPrice.Sub(line.LineTotal)
		return true
	}
	return false
}

// LinesTotal soma os totais das linhas. FinalPrice deve ser sempre igual a ele.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal)
	}
	return total
}

// Clone retorna uma cópia profunda, sem compartilhar o slice de linhas com o store
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]OrderLine(nil), o.Lines...)
	return &clone
}

// User representa um cliente, usado apenas nos relatórios
type User struct {
	Username  string `json:"username" db:"username" yaml:"username"`
	FirstName string `json:"first_name" db:"first_name" yaml:"firstName"`
	LastName  string `json:"last_name" db:"last_name" yaml:"lastName"`
}

// CartLine representa uma linha do pedido com os dados atuais do catálogo
type CartLine struct {
	BookID            int64           `json:"book_id"`
	Title             string          `json:"title"`
	Authors           string          `json:"authors"`
	Quantity          int             `json:"quantity"`
	LineTotal         decimal.Decimal `json:"line_total"`
	CopiesInStock     int             `json:"copies_in_stock"`
	InsufficientStock bool            `json:"insufficient_stock"`
}

// CartView representa a visão de leitura do carrinho
type CartView struct {
	OrderID    string          `json:"order_id,omitempty"`
	Username   string          `json:"username"`
	Lines      []CartLine      `json:"lines"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

func (v *CartView) IsEmpty() bool {
	return len(v.Lines) == 0
}

// CheckoutAllowed é falso quando o carrinho está vazio ou alguma linha excede o estoque
func (v *CartView) CheckoutAllowed() bool {
	if v.IsEmpty() {
		return false
	}
	for _, line := range v.Lines {
		if line.InsufficientStock {
			return false
		}
	}
	return true
}

// PaymentDetails representa os dados do cartão informados no checkout
type PaymentDetails struct {
	CardNumber string `json:"card_number"`
	Expiry     string `json:"expiry"`
	CVV        string `json:"cvv"`
}

// CheckoutResult representa o resultado de uma tentativa de checkout
type CheckoutResult struct {
	State CheckoutState `json:"state"`
	Order *Order        `json:"order"`
}

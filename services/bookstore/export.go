package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.opentelemetry.io/otel/trace"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var (
	userExportHeader  = []string{"Order ID", "Date and Time", "Final Price", "Status", "Book Title", "Author", "Quantity", "Subtotal"}
	adminExportHeader = append([]string{"Username"}, userExportHeader...)
)

// ReportUseCase exporta pedidos completados. Apenas leitura.
type ReportUseCase struct {
	carts         *CartUseCase
	catalog       CatalogRepository
	orders        OrderRepository
	adminUsername string
	tracer        trace.Tracer
}

// NewReportUseCase cria uma nova instância do caso de uso
func NewReportUseCase(carts *CartUseCase, catalog CatalogRepository, orders OrderRepository, adminUsername string, tracer trace.Tracer) *ReportUseCase {
	return &ReportUseCase{
		carts:         carts,
		catalog:       catalog,
		orders:        orders,
		adminUsername: adminUsername,
		tracer:        tracer,
	}
}

// ListCustomers retorna todos os usuários exceto o administrador
func (uc *ReportUseCase) ListCustomers(ctx context.Context) ([]User, error) {
	users, err := uc.orders.ListUsersExcept(ctx, uc.adminUsername)
	if err != nil {
		return nil, storageFailure("list users", err)
	}
	return users, nil
}

// ExportUserOrders escreve uma linha CSV por linha dos pedidos completados do usuário
func (uc *ReportUseCase) ExportUserOrders(ctx context.Context, w io.Writer, username string) error {
	ctx, span := uc.tracer.Start(ctx, "report.export_user", userAttr(username))
	defer span.End()

	cw := csv.NewWriter(w)
	if err := cw.Write(userExportHeader); err != nil {
		return recordSpanError(span, err)
	}
	books := bookCache{}
	if err := uc.writeOrders(ctx, cw, books, username, false); err != nil {
		return recordSpanError(span, err)
	}
	cw.Flush()
	return cw.Error()
}

// ExportAllOrders escreve os pedidos completados de todos os clientes
func (uc *ReportUseCase) ExportAllOrders(ctx context.Context, w io.Writer) error {
	ctx, span := uc.tracer.Start(ctx, "report.export_all")
	defer span.End()

	users, err := uc.ListCustomers(ctx)
	if err != nil {
		return recordSpanError(span, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(adminExportHeader); err != nil {
		return recordSpanError(span, err)
	}
	books := bookCache{}
	for _, user := range users {
		if err := uc.writeOrders(ctx, cw, books, user.Username, true); err != nil {
			return recordSpanError(span, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (uc *ReportUseCase) writeOrders(ctx context.Context, cw *csv.Writer, books bookCache, username string, withUsername bool) error {
	orders, err := uc.carts.GetCompletedOrders(ctx, username)
	if err != nil {
		return err
	}
	for _, order := range orders {
		for _, line := range order.Lines {
			book, err := books.get(ctx, uc.catalog, line.BookID)
			if err != nil {
				return err
			}
			record := []string{
				order.ID,
				order.CreatedAt.Format(exportTimeLayout),
				order.FinalPrice.StringFixed(2),
				order.Status,
				book.Title,
				book.Authors,
				strconv.Itoa(line.Quantity),
				line.LineTotal.StringFixed(2),
			}
			if withUsername {
				record = append([]string{username}, record...)
			}
			if err := cw.Write(record); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}
	return nil
}

// bookCache guarda as consultas ao catálogo durante uma exportação. Livros
// removidos depois do pedido saem com título e autor vazios.
type bookCache map[int64]*Book

func (c bookCache) get(ctx context.Context, catalog CatalogRepository, bookID int64) (*Book, error) {
	if book, ok := c[bookID]; ok {
		return book, nil
	}
	book, err := catalog.GetBook(ctx, bookID)
	if errors.Is(err, ErrNotFound) {
		book = &Book{ID: bookID}
	} else if err != nil {
		return nil, storageFailure("get book", err)
	}
	c[bookID] = book
	return book, nil
}

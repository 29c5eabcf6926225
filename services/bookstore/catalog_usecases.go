package main

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const topSellingLimit = 5

// CatalogUseCase encapsula a gestão de livros. Alterações de estoque feitas
// aqui passam pelo mesmo store que o carrinho lê, então o carrinho sempre vê o
// estoque atual.
type CatalogUseCase struct {
	catalog CatalogRepository
	tracer  trace.Tracer
}

// NewCatalogUseCase cria uma nova instância do caso de uso
func NewCatalogUseCase(catalog CatalogRepository, tracer trace.Tracer) *CatalogUseCase {
	return &CatalogUseCase{
		catalog: catalog,
		tracer:  tracer,
	}
}

func (uc *CatalogUseCase) ListBooks(ctx context.Context) ([]*Book, error) {
	ctx, span := uc.tracer.Start(ctx, "catalog.list")
	defer span.End()

	books, err := uc.catalog.ListBooks(ctx)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("list books", err))
	}
	return books, nil
}

// TopSellingBooks retorna os cinco livros mais vendidos
func (uc *CatalogUseCase) TopSellingBooks(ctx context.Context) ([]*Book, error) {
	ctx, span := uc.tracer.Start(ctx, "catalog.top")
	defer span.End()

	books, err := uc.catalog.TopSellingBooks(ctx, topSellingLimit)
	if err != nil {
		return nil, recordSpanError(span, storageFailure("top selling books", err))
	}
	return books, nil
}

func (uc *CatalogUseCase) GetBook(ctx context.Context, bookID int64) (*Book, error) {
	book, err := uc.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, wrapRead("get book", err)
	}
	return book, nil
}

func (uc *CatalogUseCase) CreateBook(ctx context.Context, book *Book) error {
	ctx, span := uc.tracer.Start(ctx, "catalog.create")
	defer span.End()

	if err := book.Validate(); err != nil {
		return recordSpanError(span, err)
	}
	if err := uc.catalog.CreateBook(ctx, book); err != nil {
		return recordSpanError(span, wrapWrite("create book", err))
	}
	slog.InfoContext(ctx, "📚 book created", "book_id", book.ID, "title", book.Title)
	return nil
}

func (uc *CatalogUseCase) UpdateBook(ctx context.Context, book *Book) error {
	ctx, span := uc.tracer.Start(ctx, "catalog.update", trace.WithAttributes(attribute.Int64("book_id", book.ID)))
	defer span.End()

	if err := book.Validate(); err != nil {
		return recordSpanError(span, err)
	}
	if err := uc.catalog.UpdateBook(ctx, book); err != nil {
		return recordSpanError(span, wrapWrite("update book", err))
	}
	slog.InfoContext(ctx, "📚 book updated", "book_id", book.ID, "physical_copies", book.CopiesInStock)
	return nil
}

func (uc *CatalogUseCase) DeleteBook(ctx context.Context, bookID int64) error {
	ctx, span := uc.tracer.Start(ctx, "catalog.delete", trace.WithAttributes(attribute.Int64("book_id", bookID)))
	defer span.End()

	if err := uc.catalog.DeleteBook(ctx, bookID); err != nil {
		return recordSpanError(span, wrapWrite("delete book", err))
	}
	slog.InfoContext(ctx, "📚 book deleted", "book_id", bookID)
	return nil
}

func wrapWrite(op string, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	return storageFailure(op, err)
}

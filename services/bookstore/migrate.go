package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// schema é aplicado a cada inicialização; todos os comandos são idempotentes
var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		book_id         BIGSERIAL PRIMARY KEY,
		title           VARCHAR(255) NOT NULL,
		authors         VARCHAR(255) NOT NULL,
		physical_copies INT NOT NULL CHECK (physical_copies >= 0),
		price           NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
		sold_copies     INT NOT NULL DEFAULT 0 CHECK (sold_copies >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		username   VARCHAR(255) PRIMARY KEY,
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name  VARCHAR(255) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		order_id       UUID PRIMARY KEY,
		username       VARCHAR(255) NOT NULL,
		final_price    NUMERIC(10, 2) NOT NULL,
		status         VARCHAR(50) NOT NULL,
		order_datetime TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Um carrinho por usuário.
	`CREATE UNIQUE INDEX IF NOT EXISTS orders_one_pending_per_user
		ON orders (username) WHERE status = 'pending'`,
	// book_id sem foreign key: pedidos completados sobrevivem ao livro.
	`CREATE TABLE IF NOT EXISTS order_details (
		line_no     BIGSERIAL,
		order_id    UUID NOT NULL REFERENCES orders (order_id),
		book_id     BIGINT NOT NULL,
		qty         INT NOT NULL CHECK (qty > 0),
		total_price NUMERIC(10, 2) NOT NULL,
		PRIMARY KEY (order_id, book_id)
	)`,
	// Clientes com pedidos anteriores ao cadastro automático.
	`INSERT INTO users (username)
		SELECT DISTINCT username FROM orders
		ON CONFLICT (username) DO NOTHING`,
}

// migrate espera o banco e aplica o schema via database/sql
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer db.Close()

	if err := waitForDB(ctx, db.PingContext); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	slog.InfoContext(ctx, "✅ schema applied", "statements", len(schema))
	return nil
}

func waitForDB(ctx context.Context, ping func(context.Context) error) error {
	for i := 0; i < 30; i++ {
		if err := ping(ctx); err == nil {
			return nil
		}
		slog.InfoContext(ctx, "⏳ waiting for database", "attempt", i+1, "max", 30)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("failed to connect to database after 30 attempts")
}

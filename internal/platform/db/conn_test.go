package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Fatalf("expected nil transaction, got %v", tx)
	}
}

func TestConn_FallsBackToPool(t *testing.T) {
	q := Conn(context.Background(), nil)
	if _, ok := q.(*pgxpool.Pool); !ok {
		t.Fatalf("expected the pool without a transaction, got %T", q)
	}
}

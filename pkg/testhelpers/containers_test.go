//go:build integration

package testhelpers

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestTestDB_Connection(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, testDB.ConnStr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	var currentDB string
	if err := pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		t.Fatalf("failed to query current database: %v", err)
	}
	if currentDB != testDB.BaseName {
		t.Errorf("expected database %q, got %q", testDB.BaseName, currentDB)
	}
}

func TestTestDB_OptionsTargetIsValid(t *testing.T) {
	testDB := GetTestDB(t)

	opts := testDB.Options(2)
	if opts.Pool.Size != 2 {
		t.Errorf("expected pool size 2, got %d", opts.Pool.Size)
	}
	if opts.Host == "localhost" {
		t.Errorf("expected an IPv4 host, got %q", opts.Host)
	}
}

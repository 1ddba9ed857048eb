package database

import (
	"testing"

	"budgetledger/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db", DBPort: "5433", DBUser: "ledger", DBPassword: "secret",
		DBName: "budget_ledger", DBSSLMode: "require",
	}
	want := "host=db port=5433 user=ledger password=secret dbname=budget_ledger sslmode=require"
	if got := DSN(cfg); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

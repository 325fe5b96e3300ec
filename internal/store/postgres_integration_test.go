//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"apsplan/internal/model"
	"apsplan/internal/opt"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// second run is a no-op
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	run := model.Run{RunSummary: model.RunSummary{TenantID: "t_it", Status: opt.StatusOptimal, Makespan: 10, Orders: 1, Entries: 1}}
	if err := p.SaveRun(t.Context(), run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if _, _, err := p.ListRuns(t.Context(), "t_it", "", "", 1); err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
}

package store

import (
	"strings"
	"testing"
)

func TestLoadMigrationsSortedAndNonEmpty(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations returned error: %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if strings.TrimSpace(m.SQL) == "" {
			t.Fatalf("migration %s is empty", m.Version)
		}
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Version, m.Version)
		}
	}
	if migrations[0].Version != "0001_create_contracts" {
		t.Fatalf("unexpected first migration %q", migrations[0].Version)
	}
}

func TestContractsMigrationCarriesBothPaymentLegs(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations returned error: %v", err)
	}
	sql := migrations[0].SQL
	for _, column := range []string{
		"tenant_payment_intent_id", "lister_payment_intent_id",
		"tenant_payment_status", "lister_payment_status",
		"payment_snapshot", "property_leased_at",
	} {
		if !strings.Contains(sql, column) {
			t.Fatalf("expected column %s in contracts migration", column)
		}
	}
}

func TestPaymentVersionMigration(t *testing.T) {
	migrations, err := LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations returned error: %v", err)
	}
	for _, m := range migrations {
		if m.Version == "0003_add_payment_version" {
			if !strings.Contains(m.SQL, "payment_version BIGINT NOT NULL DEFAULT 0") {
				t.Fatalf("unexpected payment version migration: %s", m.SQL)
			}
			return
		}
	}
	t.Fatalf("payment version migration not embedded")
}

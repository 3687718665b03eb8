package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintMigrationStatus(t *testing.T) {
	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var out bytes.Buffer
	printMigrationStatus(&out, []store.Migration{
		{Version: "0001_create_contracts", AppliedAt: &applied},
		{Version: "0002_create_in_app_notifications"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "applied")
	assert.Contains(t, lines[1], "2026-01-02T03:04:05Z")
	assert.Contains(t, lines[2], "pending")
}

func TestPrintPaymentState(t *testing.T) {
	intent := "pi_123"
	contract := &domain.Contract{
		ID:     uuid.New(),
		Status: domain.ContractStatusCompleted,
		Payment: domain.Payment{
			Tenant: domain.PaymentLeg{IntentID: &intent, GatewayStatus: "processing", Status: domain.PaymentStatusProcessing},
			Lister: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
		},
	}
	var out bytes.Buffer
	printPaymentState(&out, contract)

	text := out.String()
	assert.Contains(t, text, "PROCESSING (gateway=processing intent=pi_123)")
	assert.Contains(t, text, "NOT_STARTED (gateway=- intent=-)")
	assert.Contains(t, text, "property leased  no")
}

func TestReconcileCmdRejectsBadID(t *testing.T) {
	cmd := reconcileCmd()
	cmd.SetArgs([]string{"not-a-uuid"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid contract id")
}

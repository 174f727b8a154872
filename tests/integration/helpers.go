package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warden/internal/logger"
	"warden/internal/rules"
	"warden/pkg/models"
)

const (
	containerStartupTimeout = 60
	timestampDelay          = 10 * time.Millisecond
)

func createTestLogger() logger.Logger {
	return logger.NopLogger()
}

func createTestRuleRequest(ownerID, name string) rules.CreateRuleRequest {
	return rules.CreateRuleRequest{
		OwnerID:   ownerID,
		Name:      name,
		Condition: "amount > 1000 AND currency = 'USD'",
		Severity:  string(models.SeverityMedium),
		Status:    string(models.StatusActive),
	}
}

func mustCreateRule(t *testing.T, store rules.Store, ownerID, name string) *models.Rule {
	t.Helper()
	rule, err := store.Create(context.Background(), createTestRuleRequest(ownerID, name))
	require.NoError(t, err)
	return rule
}

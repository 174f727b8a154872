package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/errors"
)

func strPtr(s string) *string { return &s }

func TestValidateCreate(t *testing.T) {
	valid := CreateRuleRequest{
		OwnerID:   "owner-1",
		Name:      "High value transfer",
		Condition: "amount > 1000 AND currency = 'USD'",
		Severity:  "high",
		Status:    "active",
		Source:    "User",
	}

	t.Run("valid request", func(t *testing.T) {
		assert.NoError(t, ValidateCreate(valid))
	})

	t.Run("defaults may be omitted", func(t *testing.T) {
		req := valid
		req.Severity = ""
		req.Status = ""
		req.Source = ""
		assert.NoError(t, ValidateCreate(req))
	})

	tests := []struct {
		name   string
		mutate func(*CreateRuleRequest)
	}{
		{name: "missing name", mutate: func(r *CreateRuleRequest) { r.Name = " " }},
		{name: "name too long", mutate: func(r *CreateRuleRequest) { r.Name = strings.Repeat("x", 256) }},
		{name: "empty condition", mutate: func(r *CreateRuleRequest) { r.Condition = "" }},
		{name: "invalid condition", mutate: func(r *CreateRuleRequest) { r.Condition = "DROP TABLE rules" }},
		{name: "bad severity", mutate: func(r *CreateRuleRequest) { r.Severity = "critical" }},
		{name: "bad status", mutate: func(r *CreateRuleRequest) { r.Status = "paused" }},
		{name: "bad source", mutate: func(r *CreateRuleRequest) { r.Source = "import" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := ValidateCreate(req)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestValidateCreateCollectsAllProblems(t *testing.T) {
	err := ValidateCreate(CreateRuleRequest{Name: "", Condition: "", Severity: "nope"})
	require.Error(t, err)

	var appErr *errors.Error
	require.ErrorAs(t, err, &appErr)

	problems, ok := appErr.Details["errors"].([]string)
	require.True(t, ok)
	assert.Len(t, problems, 3)
}

func TestValidateUpdate(t *testing.T) {
	t.Run("nil fields are fine", func(t *testing.T) {
		assert.NoError(t, ValidateUpdate(UpdateRuleRequest{}))
	})

	t.Run("valid patch", func(t *testing.T) {
		assert.NoError(t, ValidateUpdate(UpdateRuleRequest{
			Name:      strPtr("Renamed"),
			Condition: strPtr("amount <= 10"),
			Severity:  strPtr("low"),
		}))
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateUpdate(UpdateRuleRequest{Name: strPtr("  ")})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("invalid condition rejected", func(t *testing.T) {
		err := ValidateUpdate(UpdateRuleRequest{Condition: strPtr("amount >")})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		err := ValidateUpdate(UpdateRuleRequest{Status: strPtr("archived")})
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

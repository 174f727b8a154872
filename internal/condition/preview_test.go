package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/pkg/errors"
)

func TestTranspile(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantExpr   string
		wantIdents []string
	}{
		{
			name:       "equality becomes double equals",
			input:      "currency = 'USD'",
			wantExpr:   `currency == "USD"`,
			wantIdents: []string{"currency"},
		},
		{
			name:       "conjunction",
			input:      "amount > 1000 AND currency = 'USD'",
			wantExpr:   `amount > 1000 && currency == "USD"`,
			wantIdents: []string{"amount", "currency"},
		},
		{
			name:       "disjunction with parens",
			input:      "(amount >= 500) OR (risk_score > 80)",
			wantExpr:   "(amount >= 500) || (risk_score > 80)",
			wantIdents: []string{"amount", "risk_score"},
		},
		{
			name:       "not equal passes through",
			input:      "status != 'disabled'",
			wantExpr:   `status != "disabled"`,
			wantIdents: []string{"status"},
		},
		{
			name:       "repeated identifier listed once",
			input:      "amount > 10 AND amount < 100",
			wantExpr:   "amount > 10 && amount < 100",
			wantIdents: []string{"amount"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, idents := Transpile(tt.input)

			assert.Equal(t, tt.wantExpr, expr)
			assert.Equal(t, tt.wantIdents, idents)
		})
	}
}

func TestPreview(t *testing.T) {
	previewer := NewPreviewer()
	ctx := context.Background()

	t.Run("matching sample", func(t *testing.T) {
		result, err := previewer.Preview(ctx, "amount > 1000 AND currency = 'USD'", map[string]interface{}{
			"amount":   1500,
			"currency": "USD",
		})

		require.NoError(t, err)
		assert.True(t, result.Matched)
		assert.Equal(t, `amount > 1000 && currency == "USD"`, result.Expression)
	})

	t.Run("non-matching sample", func(t *testing.T) {
		result, err := previewer.Preview(ctx, "amount > 1000 AND currency = 'USD'", map[string]interface{}{
			"amount":   500,
			"currency": "USD",
		})

		require.NoError(t, err)
		assert.False(t, result.Matched)
	})

	t.Run("invalid condition rejected before evaluation", func(t *testing.T) {
		_, err := previewer.Preview(ctx, "DROP TABLE rules", nil)

		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("missing sample field", func(t *testing.T) {
		_, err := previewer.Preview(ctx, "amount > 1000", map[string]interface{}{})

		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

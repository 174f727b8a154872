package condition

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"

	"warden/pkg/errors"
)

// PreviewResult reports how a condition behaves against a sample payload.
type PreviewResult struct {
	Expression string `json:"expression"`
	Matched    bool   `json:"matched"`
}

// Previewer transpiles a validated condition into a CEL expression and
// evaluates it against a caller-supplied sample payload, so a rule author can
// see whether a condition would fire before saving it.
type Previewer struct{}

func NewPreviewer() *Previewer {
	return &Previewer{}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*`)

// Preview validates, transpiles, and evaluates the condition. The sample
// payload must supply a value for every identifier the condition references.
func (p *Previewer) Preview(ctx context.Context, text string, sample map[string]interface{}) (*PreviewResult, error) {
	result := Validate(text)
	if !result.Valid {
		return nil, errors.ErrValidation.WithDetail("errors", result.Errors)
	}

	expression, idents := Transpile(text)

	opts := make([]cel.EnvOption, 0, len(idents))
	activation := make(map[string]interface{}, len(idents))
	for _, ident := range idents {
		value, ok := sample[ident]
		if !ok {
			return nil, errors.ErrValidation.
				WithDetail("message", fmt.Sprintf("sample payload is missing field %q", ident))
		}
		opts = append(opts, cel.Variable(ident, cel.DynType))
		activation[ident] = value
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrap(issues.Err(), errors.ErrValidation).
			WithDetail("expression", expression)
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}

	out, _, err := program.ContextEval(ctx, activation)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrValidation).
			WithDetail("expression", expression)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return nil, errors.ErrValidation.
			WithDetail("message", fmt.Sprintf("condition did not evaluate to bool, got %T", out.Value()))
	}

	return &PreviewResult{Expression: expression, Matched: matched}, nil
}

// Transpile rewrites a condition in the restricted grammar as a CEL
// expression and returns the identifiers it references. The input is assumed
// to have passed Validate.
func Transpile(text string) (string, []string) {
	terms, operators := tokenize(strings.TrimSpace(text))

	seen := make(map[string]bool)
	var idents []string

	var sb strings.Builder
	for i, term := range terms {
		if i > 0 && i-1 < len(operators) {
			switch strings.ToUpper(strings.TrimSpace(operators[i-1])) {
			case "AND":
				sb.WriteString(" && ")
			case "OR":
				sb.WriteString(" || ")
			}
		}

		celTerm, ident := transpileTerm(term)
		sb.WriteString(celTerm)

		if ident != "" && !seen[ident] {
			seen[ident] = true
			idents = append(idents, ident)
		}
	}

	return sb.String(), idents
}

func transpileTerm(term string) (string, string) {
	open := strings.HasPrefix(term, "(")
	closed := strings.HasSuffix(term, ")")
	inner := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(term, "("), ")"))

	ident := identPattern.FindString(inner)
	rest := strings.TrimSpace(inner[len(ident):])

	// Single = becomes CEL equality; != and the relational operators carry over.
	if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
		rest = "=" + rest
	}

	// CEL strings are double-quoted.
	if idx := strings.IndexByte(rest, '\''); idx >= 0 && strings.HasSuffix(rest, "'") {
		literal := rest[idx+1 : len(rest)-1]
		rest = rest[:idx] + `"` + strings.ReplaceAll(literal, `"`, `\"`) + `"`
	}

	celTerm := ident + " " + rest
	if open && closed {
		celTerm = "(" + celTerm + ")"
	}
	return celTerm, ident
}

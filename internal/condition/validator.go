package condition

import (
	"fmt"
	"regexp"
	"strings"
)

// Result carries the outcome of a condition validation. Errors are collected
// rather than fail-fast so a caller can report every problem at once.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

var (
	// Whole SQL statements have no business inside a trigger condition.
	sqlKeywords = []string{
		"SELECT", "INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
		"CREATE", "TRUNCATE", "GRANT", "REVOKE", "UNION", "EXEC",
	}

	allowedKeywords = map[string]bool{
		"AND": true,
		"OR":  true,
	}

	// term := IDENT OP LITERAL, optionally wrapped in a matching pair of
	// parentheses. A lone paren is not part of any term.
	termBody    = `[A-Za-z_][A-Za-z0-9_.]*\s*(=|!=|>=|<=|>|<)\s*('[^']*'|"[^"]*"|-?[0-9]+(\.[0-9]+)?)`
	termPattern = regexp.MustCompile(`^(` + termBody + `|\(\s*` + termBody + `\s*\))$`)

	operatorSplit = regexp.MustCompile(`(?i)\b(AND|OR)\b`)
	uppercaseWord = regexp.MustCompile(`\b[A-Z][A-Z_]+\b`)
	quotedString  = regexp.MustCompile(`'[^']*'|"[^"]*"`)
)

// Validate checks a condition expression against the restricted boolean
// grammar: comparison terms joined by AND/OR, optional parentheses around a
// single term.
func Validate(text string) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Result{Valid: false, Errors: []string{"condition cannot be empty"}}
	}

	var errs []string
	reported := make(map[string]bool)

	for _, kw := range sqlKeywords {
		wordRe := regexp.MustCompile(`(?i)\b` + kw + `\b`)
		if wordRe.MatchString(trimmed) {
			errs = append(errs, fmt.Sprintf("SQL keywords are not allowed: %s", kw))
			reported[kw] = true
		}
	}

	terms, operators := tokenize(trimmed)

	for _, term := range terms {
		if !termPattern.MatchString(term) {
			errs = append(errs, fmt.Sprintf("invalid expression: %q", term))
		}
	}

	for _, op := range operators {
		if upper := strings.ToUpper(op); upper != "AND" && upper != "OR" {
			errs = append(errs, fmt.Sprintf("unknown operator: %q", op))
		}
	}

	if !balancedParens(trimmed) {
		errs = append(errs, "unbalanced parentheses")
	}

	// Quoted literals may legitimately contain uppercase text, so strip them
	// before scanning for stray keywords.
	stripped := quotedString.ReplaceAllString(trimmed, "")
	for _, word := range uppercaseWord.FindAllString(stripped, -1) {
		if allowedKeywords[word] || reported[word] {
			continue
		}
		if !reported[word] {
			errs = append(errs, fmt.Sprintf("unsupported keyword: %s", word))
			reported[word] = true
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// tokenize splits on whole-word AND/OR, returning comparison terms and the
// operator tokens between them.
func tokenize(text string) (terms []string, operators []string) {
	locs := operatorSplit.FindAllStringIndex(text, -1)

	prev := 0
	for _, loc := range locs {
		if term := strings.TrimSpace(text[prev:loc[0]]); term != "" {
			terms = append(terms, term)
		}
		operators = append(operators, text[loc[0]:loc[1]])
		prev = loc[1]
	}
	if term := strings.TrimSpace(text[prev:]); term != "" {
		terms = append(terms, term)
	}

	return terms, operators
}

func balancedParens(text string) bool {
	depth := 0
	for _, r := range text {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

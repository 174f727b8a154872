package rules

import (
	"strings"

	"warden/internal/condition"
	"warden/pkg/errors"
	"warden/pkg/models"
)

const maxNameLength = 255

// ValidateCreate checks a create request before it reaches the store. All
// problems are reported together.
func ValidateCreate(req CreateRuleRequest) error {
	var problems []string

	if strings.TrimSpace(req.Name) == "" {
		problems = append(problems, "name is required")
	} else if len(req.Name) > maxNameLength {
		problems = append(problems, "name must be 255 characters or fewer")
	}

	result := condition.Validate(req.Condition)
	problems = append(problems, result.Errors...)

	if req.Severity != "" && !models.ValidSeverity(models.Severity(req.Severity)) {
		problems = append(problems, "severity must be one of: low, medium, high")
	}

	if req.Status != "" && !models.ValidStatus(models.Status(req.Status)) {
		problems = append(problems, "status must be one of: active, inactive, warning, in_progress")
	}

	if req.Source != "" && req.Source != string(models.SourceAI) && req.Source != string(models.SourceUser) {
		problems = append(problems, "source must be AI or User")
	}

	if len(problems) > 0 {
		return errors.ErrValidation.WithDetail("errors", problems)
	}
	return nil
}

// ValidateUpdate checks the non-nil fields of a patch.
func ValidateUpdate(req UpdateRuleRequest) error {
	var problems []string

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			problems = append(problems, "name cannot be empty")
		} else if len(*req.Name) > maxNameLength {
			problems = append(problems, "name must be 255 characters or fewer")
		}
	}

	if req.Condition != nil {
		result := condition.Validate(*req.Condition)
		problems = append(problems, result.Errors...)
	}

	if req.Severity != nil && !models.ValidSeverity(models.Severity(*req.Severity)) {
		problems = append(problems, "severity must be one of: low, medium, high")
	}

	if req.Status != nil && !models.ValidStatus(models.Status(*req.Status)) {
		problems = append(problems, "status must be one of: active, inactive, warning, in_progress")
	}

	if len(problems) > 0 {
		return errors.ErrValidation.WithDetail("errors", problems)
	}
	return nil
}

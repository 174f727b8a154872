package rules

import "warden/pkg/models"

// CreateRuleRequest carries the caller-supplied fields of a new rule. Counters
// and lifecycle flags are owned by the store and cannot be set on create.
type CreateRuleRequest struct {
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Condition   string `json:"condition" binding:"required"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
	LogOnly     bool   `json:"log_only"`
	Source      string `json:"source"`
}

// UpdateRuleRequest is a partial patch; nil fields are left unchanged.
type UpdateRuleRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Condition   *string `json:"condition,omitempty"`
	Severity    *string `json:"severity,omitempty"`
	Status      *string `json:"status,omitempty"`
	LogOnly     *bool   `json:"log_only,omitempty"`
}

// ApplyTo copies the non-nil patch fields onto the rule.
func (r UpdateRuleRequest) ApplyTo(rule *models.Rule) {
	if r.Name != nil {
		rule.Name = *r.Name
	}
	if r.Description != nil {
		rule.Description = *r.Description
	}
	if r.Category != nil {
		rule.Category = *r.Category
	}
	if r.Condition != nil {
		rule.Condition = *r.Condition
	}
	if r.Severity != nil {
		rule.Severity = models.Severity(*r.Severity)
	}
	if r.Status != nil {
		rule.Status = models.Status(*r.Status)
	}
	if r.LogOnly != nil {
		rule.LogOnly = *r.LogOnly
	}
}

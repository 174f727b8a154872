package models

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusWarning    Status = "warning"
	StatusInProgress Status = "in_progress"
)

type Source string

const (
	SourceAI   Source = "AI"
	SourceUser Source = "User"
)

// Rule is the mirrored detection-rule entity. The remote store owns the
// durable copy; the mirror keeps a reconciled in-memory view keyed by ID.
// UpdatedAt is the sole basis for conflict resolution between copies.
type Rule struct {
	ID             string    `json:"id" db:"id"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	Category       string    `json:"category" db:"category"`
	Condition      string    `json:"condition" db:"condition"`
	Severity       Severity  `json:"severity" db:"severity"`
	Status         Status    `json:"status" db:"status"`
	LogOnly        bool      `json:"log_only" db:"log_only"`
	Catches        int       `json:"catches" db:"catches"`
	FalsePositives int       `json:"false_positives" db:"false_positives"`
	Effectiveness  int       `json:"effectiveness" db:"effectiveness"`
	Source         Source    `json:"source" db:"source"`
	IsDeleted      bool      `json:"is_deleted" db:"is_deleted"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// InProgress reports whether the rule belongs to the in-progress partition.
func (r Rule) InProgress() bool {
	return r.Status == StatusInProgress
}

func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusWarning, StatusInProgress:
		return true
	}
	return false
}

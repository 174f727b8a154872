package mirror

import (
	"strings"

	"warden/internal/constants"
	"warden/pkg/errors"
	"warden/pkg/models"
)

// Tabs are predicates over the main partition; in-progress rules never appear
// in any tab.
const (
	TabActive    = "active"
	TabAll       = "all"
	TabAttention = "attention"
	TabDeleted   = "deleted"
)

// Searchable columns. An empty column searches the union of all four.
const (
	ColumnName        = "name"
	ColumnCategory    = "category"
	ColumnDescription = "description"
	ColumnCondition   = "condition"
)

// TabCounts reflects tab membership over the full partition, independent of
// any search the caller currently has applied.
type TabCounts struct {
	Active    int `json:"active"`
	All       int `json:"all"`
	Attention int `json:"attention"`
	Deleted   int `json:"deleted"`
}

func (s *Service) TabCounts() TabCounts {
	var counts TabCounts
	for _, rule := range s.cache.Snapshot().Main {
		if tabActive(rule) {
			counts.Active++
		}
		if tabAll(rule) {
			counts.All++
		}
		if tabAttention(rule) {
			counts.Attention++
		}
		if tabDeleted(rule) {
			counts.Deleted++
		}
	}
	return counts
}

// FilterRules returns the rules of one tab, optionally narrowed by a
// case-insensitive substring search.
func (s *Service) FilterRules(tab, query, column string) ([]models.Rule, error) {
	predicate, err := tabPredicate(tab)
	if err != nil {
		return nil, err
	}
	matcher, err := searchMatcher(query, column)
	if err != nil {
		return nil, err
	}

	snapshot := s.cache.Snapshot()
	result := make([]models.Rule, 0, len(snapshot.Main))
	for _, rule := range snapshot.Main {
		if predicate(rule) && matcher(rule) {
			result = append(result, rule)
		}
	}
	return result, nil
}

// InProgressRules exposes the secondary partition directly; these rules are
// excluded from every tab.
func (s *Service) InProgressRules() []models.Rule {
	return s.cache.Snapshot().InProgress
}

// IsRowExpanded reports per-id UI expansion state. Expansion is orthogonal to
// filtering and not derived from rule data.
func (s *Service) IsRowExpanded(id string) bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	return s.expanded[id]
}

func (s *Service) ToggleRowExpansion(id string) bool {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	if s.expanded[id] {
		delete(s.expanded, id)
		return false
	}
	s.expanded[id] = true
	return true
}

func tabPredicate(tab string) (func(models.Rule) bool, error) {
	switch tab {
	case TabActive:
		return tabActive, nil
	case TabAll:
		return tabAll, nil
	case TabAttention:
		return tabAttention, nil
	case TabDeleted:
		return tabDeleted, nil
	default:
		return nil, errors.ErrValidation.
			WithDetail("message", "unknown tab").
			WithDetail("tab", tab)
	}
}

func tabActive(r models.Rule) bool {
	return !r.IsDeleted && r.Status == models.StatusActive
}

func tabAll(r models.Rule) bool {
	return !r.IsDeleted && visibleStatus(r.Status)
}

func tabAttention(r models.Rule) bool {
	if !tabAll(r) {
		return false
	}
	return r.Status == models.StatusWarning ||
		r.Effectiveness < constants.AttentionEffectivenessFloor ||
		r.FalsePositives > constants.AttentionFalsePositiveCeiling
}

func tabDeleted(r models.Rule) bool {
	return r.IsDeleted && visibleStatus(r.Status)
}

func visibleStatus(s models.Status) bool {
	return s == models.StatusActive || s == models.StatusInactive || s == models.StatusWarning
}

func searchMatcher(query, column string) (func(models.Rule) bool, error) {
	if strings.TrimSpace(query) == "" {
		return func(models.Rule) bool { return true }, nil
	}

	needle := strings.ToLower(query)
	contains := func(field string) bool {
		return strings.Contains(strings.ToLower(field), needle)
	}

	switch column {
	case ColumnName:
		return func(r models.Rule) bool { return contains(r.Name) }, nil
	case ColumnCategory:
		return func(r models.Rule) bool { return contains(r.Category) }, nil
	case ColumnDescription:
		return func(r models.Rule) bool { return contains(r.Description) }, nil
	case ColumnCondition:
		return func(r models.Rule) bool { return contains(r.Condition) }, nil
	case "":
		return func(r models.Rule) bool {
			return contains(r.Name) || contains(r.Category) ||
				contains(r.Description) || contains(r.Condition)
		}, nil
	default:
		return nil, errors.ErrValidation.
			WithDetail("message", "unknown search column").
			WithDetail("column", column)
	}
}

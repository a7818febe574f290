package diagnostics

import (
	"regexp"
	"strings"
)

// Category of a submitted service entry.
type Category int

const (
	// CategoryRepair is the catch-all: anything not recognized as
	// diagnostics or verification is billable repair work and must not
	// be dropped.
	CategoryRepair Category = iota
	CategoryDiagnostic
	CategoryVerification
)

// Label is the canonical display name an aggregate row carries.
func (c Category) Label() string {
	switch c {
	case CategoryDiagnostic:
		return "Диагностика"
	case CategoryVerification:
		return "Поверка"
	default:
		return "Ремонт"
	}
}

// Classifier assigns exactly one category to a free-text service name.
// Rules are evaluated in a fixed priority order (diagnostic, then
// verification); everything else is repair.
type Classifier struct {
	rules []classRule
}

type classRule struct {
	category Category
	keywords []string
	prefix   *regexp.Regexp
}

// NewClassifier builds the curated keyword table the catalog naming uses.
func NewClassifier() *Classifier {
	return &Classifier{
		rules: []classRule{
			{
				category: CategoryDiagnostic,
				keywords: []string{"диагност"},
				prefix:   regexp.MustCompile(`(?i)^\s*диагност`),
			},
			{
				category: CategoryVerification,
				keywords: []string{"поверк"},
				prefix:   regexp.MustCompile(`(?i)^\s*поверк`),
			},
		},
	}
}

// Classify matches case-insensitively anywhere in the name.
func (c *Classifier) Classify(name string) Category {
	lower := strings.ToLower(name)
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryRepair
}

// MatchesAggregate reports whether an existing deal row belongs to the
// category's aggregate: the keyword anchored at the start of the name
// after optional whitespace.
func (c *Classifier) MatchesAggregate(category Category, rowName string) bool {
	for _, rule := range c.rules {
		if rule.category == category {
			return rule.prefix.MatchString(rowName)
		}
	}
	return false
}

// AggregateCategories lists the categories that collapse into a single
// replacement row, in output order.
func (c *Classifier) AggregateCategories() []Category {
	out := make([]Category, 0, len(c.rules))
	for _, rule := range c.rules {
		out = append(out, rule.category)
	}
	return out
}

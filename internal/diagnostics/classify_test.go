package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		want Category
	}{
		{"Диагностика", CategoryDiagnostic},
		{"диагностика тахеометра", CategoryDiagnostic},
		{"Полная ДИАГНОСТИКА", CategoryDiagnostic},
		{"Поверка", CategoryVerification},
		{"поверка нивелира", CategoryVerification},
		{"Ремонт платы", CategoryRepair},
		{"Юстировка", CategoryRepair},
		{"", CategoryRepair},
		// Diagnostic wins over verification by rule order.
		{"Диагностика и поверка", CategoryDiagnostic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name))
		})
	}
}

func TestMatchesAggregateIsAnchored(t *testing.T) {
	c := NewClassifier()

	assert.True(t, c.MatchesAggregate(CategoryDiagnostic, "Диагностика"))
	assert.True(t, c.MatchesAggregate(CategoryDiagnostic, "   диагностика прибора"))
	assert.False(t, c.MatchesAggregate(CategoryDiagnostic, "Полная диагностика"))
	assert.True(t, c.MatchesAggregate(CategoryVerification, "Поверка"))
	assert.False(t, c.MatchesAggregate(CategoryVerification, "Диагностика"))
	assert.False(t, c.MatchesAggregate(CategoryRepair, "Ремонт"))
}

func TestCategoryLabels(t *testing.T) {
	assert.Equal(t, "Диагностика", CategoryDiagnostic.Label())
	assert.Equal(t, "Поверка", CategoryVerification.Label())
	assert.Equal(t, "Ремонт", CategoryRepair.Label())
}

package diagnostics

import (
	"testing"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(NewClassifier())
}

func findRow(t *testing.T, rows []bitrix.ProductRow, name string) bitrix.ProductRow {
	t.Helper()
	for _, r := range rows {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no row named %q in %+v", name, rows)
	return bitrix.ProductRow{}
}

func TestReconcileAggregatesDiagnosticsWithExistingRow(t *testing.T) {
	existing := []bitrix.ProductRow{
		{Name: "Диагностика", Price: 100, Quantity: 1},
	}
	services := []ServiceEntry{
		{Name: "Диагностика оборудования", Price: 50, Qty: 1},
	}

	outcome := newTestReconciler().Reconcile(existing, services, nil, "Тахеометр")

	require.Len(t, outcome.Rows, 1)
	row := outcome.Rows[0]
	assert.Equal(t, "Диагностика", row.Name)
	assert.Equal(t, 75.0, row.Price)
	assert.Equal(t, 2.0, row.Quantity)
	assert.Equal(t, 1.0, outcome.DiagnosticQty)
}

func TestReconcileAdditiveIdempotence(t *testing.T) {
	// Feeding the first run's output back as existing state must equal
	// one run with doubled entries, not produce duplicate aggregate rows.
	services := []ServiceEntry{
		{ID: "41", Name: "Диагностика", Price: 120, Qty: 1},
		{Name: "Поверка нивелира", Price: 80, Qty: 2},
	}
	r := newTestReconciler()

	first := r.Reconcile(nil, services, nil, "Нивелир")
	second := r.Reconcile(first.Rows, services, nil, "Нивелир")

	doubled := append(append([]ServiceEntry{}, services...), services...)
	once := r.Reconcile(nil, doubled, nil, "Нивелир")

	require.Len(t, second.Rows, 2)
	for _, name := range []string{"Диагностика", "Поверка"} {
		got := findRow(t, second.Rows, name)
		want := findRow(t, once.Rows, name)
		assert.Equal(t, want.Quantity, got.Quantity, name)
		assert.Equal(t, want.Price, got.Price, name)
	}
}

func TestReconcileAggregateAmountEqualsContributions(t *testing.T) {
	existing := []bitrix.ProductRow{
		{Name: "  диагностика платы", Price: 33.33, Quantity: 3},
		{Name: "Диагностика", Price: 10, Quantity: 1},
	}
	services := []ServiceEntry{
		{Name: "диагностика", Price: 7.77, Qty: 2},
	}

	outcome := newTestReconciler().Reconcile(existing, services, nil, "GPS")

	row := findRow(t, outcome.Rows, "Диагностика")
	contributed := 33.33*3 + 10*1 + 7.77*2
	assert.InDelta(t, contributed, row.Price*row.Quantity, 0.01*row.Quantity)
	assert.Equal(t, 6.0, row.Quantity)
}

func TestReconcileCategoryVanishesOnNonPositiveQuantity(t *testing.T) {
	existing := []bitrix.ProductRow{
		{Name: "Поверка", Price: 100, Quantity: 1},
	}
	services := []ServiceEntry{
		{Name: "Поверка", Price: 100, Qty: -1},
	}

	outcome := newTestReconciler().Reconcile(existing, services, nil, "Нивелир")

	assert.Empty(t, outcome.Rows)
}

func TestReconcileKeepsUnrelatedRowsUntouched(t *testing.T) {
	existing := []bitrix.ProductRow{
		{ProductID: "7", Name: "Доставка", Price: 500, Quantity: 1},
		{Name: "Диагностика", Price: 100, Quantity: 1},
	}

	outcome := newTestReconciler().Reconcile(existing, nil, nil, "Прибор")

	require.Len(t, outcome.Rows, 2)
	assert.Equal(t, "Доставка", outcome.Rows[0].Name)
	assert.Equal(t, 500.0, outcome.Rows[0].Price)
	agg := findRow(t, outcome.Rows, "Диагностика")
	assert.Equal(t, 100.0, agg.Price)
	assert.Equal(t, 1.0, agg.Quantity)
}

func TestReconcilePartsSurchargeDistribution(t *testing.T) {
	// One part at 300, two repairs of qty 1 each: 150 surcharge per unit.
	parts := []PartEntry{{ID: 10, Price: 300, Qty: 1}}
	services := []ServiceEntry{
		{ID: "1", Name: "Ремонт платы", Price: 1000, Qty: 1},
		{ID: "2", Name: "Ремонт корпуса", Price: 2000, Qty: 1},
	}

	outcome := newTestReconciler().Reconcile(nil, services, parts, "Тахеометр")

	require.Len(t, outcome.Rows, 2)
	assert.Equal(t, 1150.0, outcome.Rows[0].Price)
	assert.Equal(t, 2150.0, outcome.Rows[1].Price)
	assert.Equal(t, 300.0, outcome.PartsSum)

	// Sum of surcharge contributions recovers the parts cost within
	// rounding bounded by the number of repair groups.
	recovered := (outcome.Rows[0].Price-1000)*outcome.Rows[0].Quantity +
		(outcome.Rows[1].Price-2000)*outcome.Rows[1].Quantity
	assert.InDelta(t, 300.0, recovered, 0.01*2)
}

func TestReconcileRepairGroupingWithinSubmissionOnly(t *testing.T) {
	existing := []bitrix.ProductRow{
		{ProductID: "5", Name: "Ремонт платы — Тахеометр", Price: 900, Quantity: 1},
	}
	services := []ServiceEntry{
		{ID: "5", Name: "Ремонт платы", Price: 1000, Qty: 1},
		{ID: "5", Name: "Ремонт платы", Price: 1000, Qty: 2},
	}

	outcome := newTestReconciler().Reconcile(existing, services, nil, "Тахеометр")

	// The pre-existing repair row passes through; the two submitted
	// entries merge into one new row with summed quantity.
	require.Len(t, outcome.Rows, 2)
	assert.Equal(t, 900.0, outcome.Rows[0].Price)
	assert.Equal(t, 1.0, outcome.Rows[0].Quantity)
	assert.Equal(t, 1000.0, outcome.Rows[1].Price)
	assert.Equal(t, 3.0, outcome.Rows[1].Quantity)
	assert.Equal(t, "Ремонт платы — Тахеометр", outcome.Rows[1].Name)
}

func TestReconcileUnrecognizedServiceBecomesRepair(t *testing.T) {
	services := []ServiceEntry{
		{Name: "Юстировка", Price: 400, Qty: 1},
	}

	outcome := newTestReconciler().Reconcile(nil, services, nil, "Теодолит")

	require.Len(t, outcome.Rows, 1)
	assert.Equal(t, "Юстировка — Теодолит", outcome.Rows[0].Name)
	assert.Equal(t, 400.0, outcome.Rows[0].Price)
	assert.Equal(t, 1.0, outcome.RepairsQty)
}

func TestReconcileAggregateCatalogIDPreference(t *testing.T) {
	t.Run("existing row id wins", func(t *testing.T) {
		existing := []bitrix.ProductRow{
			{ProductID: "40", Name: "Диагностика", Price: 100, Quantity: 1},
		}
		services := []ServiceEntry{{ID: "41", Name: "Диагностика", Price: 50, Qty: 1}}

		outcome := newTestReconciler().Reconcile(existing, services, nil, "GPS")
		assert.Equal(t, bitrix.FlexID("40"), outcome.Rows[0].ProductID)
	})

	t.Run("falls back to first entry id", func(t *testing.T) {
		services := []ServiceEntry{{ID: "41", Name: "Диагностика", Price: 50, Qty: 1}}

		outcome := newTestReconciler().Reconcile(nil, services, nil, "GPS")
		assert.Equal(t, bitrix.FlexID("41"), outcome.Rows[0].ProductID)
	})

	t.Run("omitted when nothing carries one", func(t *testing.T) {
		services := []ServiceEntry{{Name: "Диагностика", Price: 50, Qty: 1}}

		outcome := newTestReconciler().Reconcile(nil, services, nil, "GPS")
		assert.Equal(t, bitrix.FlexID(""), outcome.Rows[0].ProductID)
	})
}

func TestReconcileTotals(t *testing.T) {
	parts := []PartEntry{{ID: 3, Price: 100.5, Qty: 2}}
	services := []ServiceEntry{
		{Name: "Диагностика", Price: 50, Qty: 1},
		{Name: "Поверка", Price: 70, Qty: 1},
		{Name: "Ремонт", Price: 200, Qty: 2},
	}

	outcome := newTestReconciler().Reconcile(nil, services, parts, "Прибор")

	assert.Equal(t, 201.0, outcome.PartsSum)
	// Services sum uses submitted unit prices; the parts cost reaches the
	// deal only through the repair surcharge.
	assert.InDelta(t, 50+70+400, outcome.ServicesSum, 1e-9)
	assert.Equal(t, 520.0, outcome.TotalSum)
	assert.Equal(t, 1.0, outcome.DiagnosticQty)
	assert.Equal(t, 1.0, outcome.VerificationQty)
	assert.Equal(t, 2.0, outcome.RepairsQty)
}

func TestReconcileDefaultsZeroQuantityToOne(t *testing.T) {
	services := []ServiceEntry{{Name: "Диагностика", Price: 50}}

	outcome := newTestReconciler().Reconcile(nil, services, nil, "Прибор")

	require.Len(t, outcome.Rows, 1)
	assert.Equal(t, 1.0, outcome.Rows[0].Quantity)
	assert.Equal(t, 50.0, outcome.Rows[0].Price)
}

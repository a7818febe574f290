package diagnostics

import (
	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"

	"github.com/shopspring/decimal"
)

// ServiceEntry is one submitted service line.
type ServiceEntry struct {
	ID    string
	Name  string
	Price float64
	Qty   float64
}

// PartEntry is one submitted replacement part. Parts are billed on the
// device's own line items; their cost is folded into repair pricing.
type PartEntry struct {
	ID    int
	Price float64
	Qty   float64
}

// Outcome is the replacement line-item list plus the submission totals
// the device summary fields are patched with.
type Outcome struct {
	Rows            []bitrix.ProductRow
	DiagnosticQty   float64
	VerificationQty float64
	RepairsQty      float64
	PartsSum        float64
	ServicesSum     float64
	TotalSum        float64
}

// Reconciler merges a submission into a deal's existing line items,
// producing the full replacement list.
type Reconciler struct {
	classifier *Classifier
}

func NewReconciler(classifier *Classifier) *Reconciler {
	return &Reconciler{classifier: classifier}
}

// Reconcile applies the aggregation rules:
//
//   - existing rows whose name starts with an aggregate keyword are
//     collapsed, together with the matching new entries, into one
//     replacement row per category (quantities and amounts re-summed, so
//     repeat submissions add instead of duplicating);
//   - every other existing row passes through untouched;
//   - repair entries are grouped within the submission only, each carrying
//     its share of the total parts cost per repair unit.
func (r *Reconciler) Reconcile(existing []bitrix.ProductRow, services []ServiceEntry, parts []PartEntry, deviceName string) Outcome {
	adds := map[Category]*aggregateAdd{}
	var repairs []ServiceEntry

	for _, svc := range services {
		qty := dec(svc.Qty)
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		category := r.classifier.Classify(svc.Name)
		if category == CategoryRepair {
			repairs = append(repairs, ServiceEntry{ID: svc.ID, Name: svc.Name, Price: svc.Price, Qty: qty.InexactFloat64()})
			continue
		}
		add := adds[category]
		if add == nil {
			add = &aggregateAdd{first: svc}
			adds[category] = add
		}
		add.qty = add.qty.Add(qty)
		add.sum = add.sum.Add(dec(svc.Price).Mul(qty))
	}

	matched := map[Category][]bitrix.ProductRow{}
	var rest []bitrix.ProductRow
rows:
	for _, row := range existing {
		for _, category := range r.classifier.AggregateCategories() {
			if r.classifier.MatchesAggregate(category, row.Name) {
				matched[category] = append(matched[category], row)
				continue rows
			}
		}
		rest = append(rest, row)
	}

	totalParts := decimal.Zero
	for _, p := range parts {
		qty := dec(p.Qty)
		if qty.IsZero() {
			qty = decimal.NewFromInt(1)
		}
		totalParts = totalParts.Add(dec(p.Price).Mul(qty))
	}

	totalRepairQty := decimal.Zero
	repairsSum := decimal.Zero
	for _, rep := range repairs {
		totalRepairQty = totalRepairQty.Add(dec(rep.Qty))
		repairsSum = repairsSum.Add(dec(rep.Price).Mul(dec(rep.Qty)))
	}

	surcharge := decimal.Zero
	if totalRepairQty.IsPositive() {
		surcharge = totalParts.Div(totalRepairQty)
	}

	out := rest
	out = append(out, r.groupRepairs(repairs, surcharge, deviceName)...)

	outcome := Outcome{}
	for _, category := range r.classifier.AggregateCategories() {
		add := adds[category]
		if row := buildAggregateRow(category, matched[category], add); row != nil {
			out = append(out, *row)
		}
		if add == nil {
			continue
		}
		switch category {
		case CategoryDiagnostic:
			outcome.DiagnosticQty = add.qty.InexactFloat64()
		case CategoryVerification:
			outcome.VerificationQty = add.qty.InexactFloat64()
		}
	}

	servicesSum := repairsSum
	for _, add := range adds {
		servicesSum = servicesSum.Add(add.sum)
	}

	outcome.Rows = out
	outcome.RepairsQty = totalRepairQty.InexactFloat64()
	outcome.PartsSum = round2(totalParts)
	outcome.ServicesSum = servicesSum.InexactFloat64()
	outcome.TotalSum = round2(servicesSum)
	return outcome
}

type aggregateAdd struct {
	qty   decimal.Decimal
	sum   decimal.Decimal
	first ServiceEntry
}

// buildAggregateRow re-sums the matched existing rows plus the additive
// totals into one replacement row. A non-positive total quantity makes
// the category vanish. Unit price is total amount over total quantity,
// rounded to 2 decimals.
func buildAggregateRow(category Category, matches []bitrix.ProductRow, add *aggregateAdd) *bitrix.ProductRow {
	curQty := decimal.Zero
	curTotal := decimal.Zero
	productID := bitrix.FlexID("")

	for _, row := range matches {
		qty := dec(row.Quantity)
		curQty = curQty.Add(qty)
		curTotal = curTotal.Add(dec(row.Price).Mul(qty))
		if productID == "" && row.ProductID != "" {
			productID = row.ProductID
		}
	}

	newQty := curQty
	newTotal := curTotal
	if add != nil {
		newQty = newQty.Add(add.qty)
		newTotal = newTotal.Add(add.sum)
		if productID == "" && add.first.ID != "" {
			productID = bitrix.FlexID(add.first.ID)
		}
	}

	if !newQty.IsPositive() {
		return nil
	}

	return &bitrix.ProductRow{
		ProductID: productID,
		Name:      category.Label(),
		Price:     round2(newTotal.Div(newQty)),
		Quantity:  newQty.InexactFloat64(),
	}
}

// groupRepairs merges same-submission repair entries sharing a group key
// (catalog id plus full display name, or the name alone). The first
// occurrence fixes price, name and id; later ones only add quantity.
// Repairs never merge with rows already on the deal.
func (r *Reconciler) groupRepairs(repairs []ServiceEntry, surcharge decimal.Decimal, deviceName string) []bitrix.ProductRow {
	groups := map[string]int{}
	var rows []bitrix.ProductRow

	for _, rep := range repairs {
		name := rep.Name
		if name == "" {
			name = CategoryRepair.Label()
		}
		fullName := name + " — " + deviceName

		key := fullName
		if rep.ID != "" {
			key = rep.ID + "_" + fullName
		}

		if idx, ok := groups[key]; ok {
			rows[idx].Quantity = dec(rows[idx].Quantity).Add(dec(rep.Qty)).InexactFloat64()
			continue
		}

		row := bitrix.ProductRow{
			ProductID: bitrix.FlexID(rep.ID),
			Name:      fullName,
			Price:     round2(dec(rep.Price).Add(surcharge)),
			Quantity:  rep.Qty,
		}
		groups[key] = len(rows)
		rows = append(rows, row)
	}

	return rows
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

package bitrix

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

var productSelect = []string{"ID", "NAME", "PRICE", "CURRENCY_ID", "SECTION_ID"}

// SearchProductsByName searches the active classic catalog by name
// substring, ordered by name.
func (c *Client) SearchProductsByName(ctx context.Context, query string) ([]Product, error) {
	raw, err := c.Call(ctx, "crm.product.list", map[string]any{
		"order":  map[string]string{"NAME": "asc"},
		"filter": map[string]any{"%NAME": query, "ACTIVE": "Y"},
		"select": productSelect,
	})
	if err != nil {
		return nil, err
	}
	return decodeProducts("crm.product.list", raw)
}

// GetProductPrice reads one catalog product's price and currency.
func (c *Client) GetProductPrice(ctx context.Context, productID int) (float64, string, error) {
	raw, err := c.Call(ctx, "crm.product.get", map[string]any{"id": productID})
	if err != nil {
		return 0, "", err
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return 0, "", &CallError{Method: "crm.product.get", Message: fmt.Sprintf("decoding product: %v", err)}
	}

	currency := asString(record["CURRENCY_ID"])
	if currency == "" {
		currency = c.cfg.BaseCurrency
	}
	return asFloat(record["PRICE"]), currency, nil
}

// ProductsFromSections returns the deduplicated union of all active
// products across the given catalog sections. Sections page independently
// through one batched call per round; the first occurrence of an id wins.
func (c *Client) ProductsFromSections(ctx context.Context, sectionIDs []int) ([]Product, error) {
	if len(sectionIDs) == 0 {
		sectionIDs = c.cfg.CatalogSections
	}

	seen := make(map[string]bool)
	var out []Product

	buildCommand := func(section, start int) string {
		return EncodeCommand("crm.product.list", CommandParams{
			Filter: map[string]any{"SECTION_ID": section, "ACTIVE": "Y"},
			Order:  map[string]string{"ID": "asc"},
			Select: productSelect,
			Start:  &start,
		})
	}

	collect := func(section int, page json.RawMessage) error {
		products, err := decodeProducts("crm.product.list", page)
		if err != nil {
			return err
		}
		for _, p := range products {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
		return nil
	}

	if err := paginatePartitions(ctx, c, sectionIDs, buildCommand, collect); err != nil {
		return nil, err
	}

	c.logger.Debug("section catalog fetched",
		zap.Ints("sections", sectionIDs),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func decodeProducts(method string, raw json.RawMessage) ([]Product, error) {
	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &CallError{Method: method, Message: fmt.Sprintf("decoding products: %v", err)}
	}

	products := make([]Product, 0, len(records))
	for _, r := range records {
		id := asString(r["ID"])
		if id == "" {
			id = asString(r["id"])
		}
		name := asString(r["NAME"])
		if name == "" {
			name = asString(r["name"])
		}
		if name == "" {
			name = namePlaceholder
		}
		products = append(products, Product{
			ID:        id,
			Name:      name,
			Price:     asFloat(r["PRICE"]),
			Currency:  asString(r["CURRENCY_ID"]),
			SectionID: asInt(r["SECTION_ID"]),
		})
	}
	return products, nil
}

package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
)

// AddDeal creates a deal and returns its new id.
func (c *Client) AddDeal(ctx context.Context, fields map[string]any) (int, error) {
	raw, err := c.Call(ctx, "crm.deal.add", map[string]any{"fields": fields})
	if err != nil {
		return 0, err
	}

	var id int
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, &CallError{Method: "crm.deal.add", Message: fmt.Sprintf("decoding deal id: %v", err)}
	}
	return id, nil
}

func (c *Client) UpdateDeal(ctx context.Context, dealID int, fields map[string]any) error {
	_, err := c.Call(ctx, "crm.deal.update", map[string]any{
		"id":     dealID,
		"fields": fields,
	})
	return err
}

// GetDealProductRows reads the deal's current line items.
func (c *Client) GetDealProductRows(ctx context.Context, dealID int) ([]ProductRow, error) {
	raw, err := c.Call(ctx, "crm.deal.productrows.get", map[string]any{"id": dealID})
	if err != nil {
		return nil, err
	}

	var rows []ProductRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &CallError{Method: "crm.deal.productrows.get", Message: fmt.Sprintf("decoding rows: %v", err)}
	}
	return rows, nil
}

// SetDealProductRows replaces the deal's line items wholesale.
func (c *Client) SetDealProductRows(ctx context.Context, dealID int, rows []ProductRow) error {
	if rows == nil {
		rows = []ProductRow{}
	}
	_, err := c.Call(ctx, "crm.deal.productrows.set", map[string]any{
		"id":   dealID,
		"rows": rows,
	})
	return err
}

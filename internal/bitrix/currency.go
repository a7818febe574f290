package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ListCurrencyCodes returns the uppercase codes of the currencies the
// portal has enabled.
func (c *Client) ListCurrencyCodes(ctx context.Context) ([]string, error) {
	raw, err := c.Call(ctx, "crm.currency.list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &CallError{Method: "crm.currency.list", Message: fmt.Sprintf("decoding currencies: %v", err)}
	}

	codes := make([]string, 0, len(records))
	for _, r := range records {
		code := strings.ToUpper(strings.TrimSpace(asString(r["CURRENCY"])))
		if code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

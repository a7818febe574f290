package bitrix

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexID is a catalog/product identifier that the portal (and the form
// payloads) serialize either as a JSON number or as a string.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == `""` {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

func (f FlexID) Int() (int, error) {
	return strconv.Atoi(string(f))
}

// Device is one smart-process item mapped to its effective fields.
// Serial, Name and DealID are resolved through PickField so the caller
// never touches the raw multi-shape record.
type Device struct {
	ID      int
	Title   string
	StageID string
	Serial  string
	Name    string
	DealID  int
}

// ProductRow is one line item on a deal, portal wire format.
type ProductRow struct {
	ProductID FlexID  `json:"PRODUCT_ID,omitempty"`
	Name      string  `json:"PRODUCT_NAME"`
	Price     float64 `json:"PRICE"`
	Quantity  float64 `json:"QUANTITY"`
	Currency  string  `json:"CURRENCY_ID,omitempty"`
}

// DeviceRow is one line item on the device's own product list
// (crm.item.productrow.set wire format).
type DeviceRow struct {
	ProductID int     `json:"productId"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

// Product is one classic-catalog entry.
type Product struct {
	ID        string
	Name      string
	Price     float64
	Currency  string
	SectionID int
}

// BatchResult is the envelope of one batched call: per-key results and
// per-key next cursors. A cursor that is absent, null or false means the
// corresponding query is exhausted.
type BatchResult struct {
	Result     map[string]json.RawMessage `json:"result"`
	ResultNext map[string]json.RawMessage `json:"result_next"`
}

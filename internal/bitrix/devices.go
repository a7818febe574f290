package bitrix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const namePlaceholder = "(без названия)"

// FindDevicesBySerial looks up smart-process items by serial-number
// substring inside the diagnostics workflow category, most recent first.
// A blank serial yields no results, not an error.
func (c *Client) FindDevicesBySerial(ctx context.Context, serial string) ([]Device, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, nil
	}

	filter := map[string]any{
		c.cfg.FieldSerial: "%" + serial + "%",
		"categoryId":      c.cfg.CategoryID,
	}

	sel := []string{"id", "title", "stageId", "ufCrm*", "updatedTime"}
	for _, field := range []string{c.cfg.FieldSerial, c.cfg.FieldName, c.cfg.FieldDealID} {
		if field != "" {
			sel = append(sel, field)
		}
	}

	raw, err := c.Call(ctx, "crm.item.list", map[string]any{
		"entityTypeId": c.cfg.EntityTypeID,
		"filter":       filter,
		"order":        map[string]string{"id": "desc"},
		"select":       sel,
	})
	if err != nil {
		return nil, err
	}

	var list struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, &CallError{Method: "crm.item.list", Message: fmt.Sprintf("decoding items: %v", err)}
	}

	devices := make([]Device, 0, len(list.Items))
	for _, item := range list.Items {
		devices = append(devices, c.mapDevice(item))
	}

	c.logger.Debug("devices resolved",
		zap.String("serial", serial),
		zap.Int("count", len(devices)),
	)
	return devices, nil
}

func (c *Client) mapDevice(item map[string]any) Device {
	dev := Device{
		ID:    asInt(item["id"]),
		Title: asString(item["title"]),
	}
	dev.StageID = asString(item["stageId"])

	if v, ok := PickField(item, c.cfg.FieldSerial); ok {
		dev.Serial = asString(v)
	}

	dev.Name = dev.Title
	if v, ok := PickField(item, c.cfg.FieldName); ok {
		if name := asString(v); name != "" {
			dev.Name = name
		}
	}
	if dev.Name == "" {
		dev.Name = namePlaceholder
	}

	if v, ok := PickField(item, c.cfg.FieldDealID); ok {
		dev.DealID = asInt(v)
	}

	return dev
}

func (c *Client) UpdateDeviceFields(ctx context.Context, deviceID int, fields map[string]any) error {
	_, err := c.Call(ctx, "crm.item.update", map[string]any{
		"entityTypeId": c.cfg.EntityTypeID,
		"id":           deviceID,
		"fields":       fields,
	})
	return err
}

// SetDeviceProductRows replaces the device's own line items wholesale.
// Rows without a valid catalog id or positive quantity are dropped.
func (c *Client) SetDeviceProductRows(ctx context.Context, deviceID int, rows []DeviceRow) error {
	productRows := make([]DeviceRow, 0, len(rows))
	for _, r := range rows {
		if r.ProductID <= 0 || r.Quantity <= 0 {
			continue
		}
		productRows = append(productRows, r)
	}

	_, err := c.Call(ctx, "crm.item.productrow.set", map[string]any{
		"ownerType":   c.cfg.OwnerTypeSymbol,
		"ownerId":     deviceID,
		"productRows": productRows,
	})
	return err
}

func (c *Client) MoveDeviceToStage(ctx context.Context, deviceID int, stageID string) error {
	return c.UpdateDeviceFields(ctx, deviceID, map[string]any{"stageId": stageID})
}

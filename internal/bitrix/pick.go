package bitrix

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PickField reads a field that may live at the top level of a record,
// under its user-field map or under a generic fields map, in that fixed
// priority order.
func PickField(record map[string]any, key string) (any, bool) {
	if record == nil || key == "" {
		return nil, false
	}
	if v, ok := record[key]; ok && v != nil {
		return v, true
	}
	for _, nested := range []string{"ufCrm", "fields"} {
		sub, ok := record[nested].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := sub[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if ferr != nil {
				return 0
			}
			return int(f)
		}
		return n
	default:
		return 0
	}
}

package domain

import "encoding/json"

// Truthy converts a boolean-like value of unknown wire type into a bool.
// Gateways in the wild deliver flags as true, "true", 1 or "1" depending on
// the backend version, every flag field goes through this single rule.
// Anything outside that set, including nil, 0, "false" and objects, is false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "true" || x == "1"
	case float64:
		return x == 1
	case float32:
		return x == 1
	case int:
		return x == 1
	case int8:
		return x == 1
	case int16:
		return x == 1
	case int32:
		return x == 1
	case int64:
		return x == 1
	case uint:
		return x == 1
	case uint8:
		return x == 1
	case uint16:
		return x == 1
	case uint32:
		return x == 1
	case uint64:
		return x == 1
	case json.Number:
		return x.String() == "1"
	default:
		return false
	}
}

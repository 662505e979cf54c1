// Package cast provides type conversion helpers for map[string]any config trees
// decoded from JSON, YAML, TOML or environment strings.
package cast

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ToInt64 converts v to int64. Supports int/uint/float types and base-10 strings.
// Floats must be integral; uint64 values above math.MaxInt64 are rejected.
func ToInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint:
		if uint64(x) > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case float64:
		return floatToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToBool converts v to bool. Accepts bool and the strings understood by
// strconv.ParseBool.
func ToBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// ToString converts scalars to their natural string form. Floats use the
// shortest representation ("2" for 2.0, "1.5" for 1.5). Nil, maps and
// slices are rejected.
func ToString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case int, int64, int32, int16, int8, uint, uint64, uint32, uint16, uint8:
		return fmt.Sprint(x), true
	default:
		return "", false
	}
}

// ToStringMap converts v to map[string]any. Accepts map[string]any,
// map[string]string and map[any]any with string-convertible keys.
func ToStringMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			ks, ok := ToString(k)
			if !ok {
				return nil, false
			}
			out[ks] = e
		}
		return out, true
	default:
		return nil, false
	}
}

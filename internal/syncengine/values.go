package syncengine

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// asBool accepts the truthy spellings devices send: true, 1 and "yes".
func asBool(v interface{}) bool {
	switch x := v.(type) {
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 1
	case float64:
		return x == 1
	case int:
		return x == 1
	case int64:
		return x == 1
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

// coerce converts a decoded JSON value to the Go type bound for a column kind.
func coerce(v interface{}, k Kind) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case Bool:
		return asBool(v), nil
	case Int:
		return coerceInt(v)
	case Num:
		f, ok, err := number(v)
		if err != nil || !ok {
			return nil, err
		}
		return f, nil
	default:
		return asText(v)
	}
}

// coerceInt parses exact int64 values first so ids above 2^53 keep every digit.
// Integral floats such as "12.0" are still accepted.
func coerceInt(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
	}

	f, ok, err := number(v)
	if err != nil || !ok {
		return nil, err
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fmt.Errorf("expected an integer, got %v", v)
	}
	return int64(f), nil
}

// number returns ok=false for an empty string, which is stored as NULL.
func number(v interface{}) (float64, bool, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("expected a number, got %q", x.String())
		}
		return f, true, nil
	case float64:
		return x, true, nil
	case int:
		return float64(x), true, nil
	case int64:
		return float64(x), true, nil
	case bool:
		if x {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, fmt.Errorf("expected a number, got %q", x)
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("expected a number, got %T", v)
}

func asText(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	return string(raw), nil
}

// recordID extracts the id of a pushed record; numeric ids are accepted as text.
func recordID(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

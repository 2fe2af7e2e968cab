package router

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/spachava753/smsbridge/permission"
	"github.com/spachava753/smsbridge/sms"
)

// Args is a command's argument bundle. Values typically come from JSON
// decoding (string, float64, json.Number, []any) or from Go callers (int,
// int64, []string).
type Args map[string]any

func (a Args) lookup(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// requiredString returns a string argument that must be present. When
// nonEmpty is set, whitespace-only values are rejected too.
func (a Args) requiredString(key string, nonEmpty bool) (string, *Error) {
	v, ok := a.lookup(key)
	if !ok {
		return "", errorf(KindInvalidArgument, "%s is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errorf(KindInvalidArgument, "%s must be a string", key)
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		return "", errorf(KindInvalidArgument, "%s must not be empty", key)
	}
	return s, nil
}

func (a Args) requiredInt64(key string) (int64, *Error) {
	v, ok := a.lookup(key)
	if !ok {
		return 0, errorf(KindInvalidArgument, "%s is required", key)
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, errorf(KindInvalidArgument, "%s must be an integer", key)
	}
	return n, nil
}

func (a Args) direction(key string) (sms.Direction, *Error) {
	v, ok := a.lookup(key)
	if !ok {
		return "", errorf(KindInvalidArgument, "%s is required", key)
	}
	var raw string
	switch typed := v.(type) {
	case string:
		raw = typed
	case sms.Direction:
		raw = string(typed)
	default:
		n, ok := toInt64(v)
		if !ok {
			return "", errorf(KindInvalidArgument, "%s must be INBOUND or OUTBOUND", key)
		}
		raw = strconv.FormatInt(n, 10)
	}
	d, err := sms.ParseDirection(raw)
	if err != nil {
		return "", errorf(KindInvalidArgument, "%s must be INBOUND or OUTBOUND, got %q", key, raw)
	}
	return d, nil
}

// capabilities returns the requested capabilities, or every known capability
// when the argument is absent or empty.
func (a Args) capabilities(key string) ([]permission.Capability, *Error) {
	v, ok := a.lookup(key)
	if !ok {
		return permission.Capabilities(), nil
	}

	var raw []string
	switch typed := v.(type) {
	case string:
		for _, part := range strings.Split(typed, ",") {
			if strings.TrimSpace(part) != "" {
				raw = append(raw, part)
			}
		}
	case []string:
		raw = typed
	case []permission.Capability:
		for _, c := range typed {
			raw = append(raw, string(c))
		}
	case []any:
		for _, item := range typed {
			s, ok := item.(string)
			if !ok {
				return nil, errorf(KindInvalidArgument, "%s must be a list of strings", key)
			}
			raw = append(raw, s)
		}
	default:
		return nil, errorf(KindInvalidArgument, "%s must be a list of strings", key)
	}
	if len(raw) == 0 {
		return permission.Capabilities(), nil
	}

	out := make([]permission.Capability, 0, len(raw))
	for _, s := range raw {
		c, err := permission.ParseCapability(s)
		if err != nil {
			return nil, errorf(KindInvalidArgument, "unknown capability %q", strings.TrimSpace(s))
		}
		out = append(out, c)
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		return integralFloat(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return integralFloat(f)
	default:
		return 0, false
	}
}

// integralFloat converts f when it is a whole number inside the int64 range.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

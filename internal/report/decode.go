package report

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	floatPtrType = reflect.TypeOf((*float64)(nil))
	timePtrType  = reflect.TypeOf((*time.Time)(nil))

	// ErrInvalidKind is returned for reports that are neither lost nor found.
	ErrInvalidKind = errors.New("report kind must be lost or found")
)

// Decode builds a Report from a loosely typed record such as a JSON object or a
// document exported from the hosted backend. Timestamps are normalized here so
// the rest of the engine only sees time.Time values. Malformed optional fields
// are treated as absent.
func Decode(raw map[string]any) (*Report, error) {
	if raw == nil {
		return nil, errors.New("report record is nil")
	}

	if _, ok := raw["kind"]; !ok {
		if alias, ok := raw["type"]; ok {
			raw = withKey(raw, "kind", alias)
		}
	}

	var r Report
	cfg := &mapstructure.DecoderConfig{
		Result:           &r,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncType(normalizeHook),
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating report decoder: %w", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}

	r.ID = strings.TrimSpace(r.ID)
	r.Kind = ParseKind(string(r.Kind))
	if !r.Kind.Valid() {
		return &r, fmt.Errorf("%w: got %q", ErrInvalidKind, r.Kind)
	}

	return &r, nil
}

// normalizeHook is a single hook rather than a composition: a composed chain
// would hand the nil produced for an absent field to the next hook.
func normalizeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to == timeType {
		return timestampHook(from, to, data)
	}
	return optionalHook(from, to, data)
}

// optionalHook maps blank or unparsable values of optional fields to nil.
func optionalHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to {
	case floatPtrType:
		switch v := data.(type) {
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, nil
			}
			return f, nil
		case bool, map[string]any, []any:
			return nil, nil
		}
	case timePtrType:
		if s, ok := data.(string); ok && strings.TrimSpace(s) == "" {
			return nil, nil
		}
	}
	return data, nil
}

// timestampHook accepts epoch milliseconds, Firestore-style timestamp objects
// and date strings. Unrecognized shapes decode to the zero time.
func timestampHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	case float64:
		return fromMillis(v), nil
	case float32:
		return fromMillis(float64(v)), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case string:
		s := strings.TrimSpace(v)
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return fromMillis(ms), nil
		}
		if t, ok := ParseDate(s); ok {
			return t, nil
		}
		return time.Time{}, nil
	case map[string]any:
		return fromTimestampObject(v), nil
	default:
		return time.Time{}, nil
	}
}

func fromMillis(ms float64) time.Time {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

func fromTimestampObject(m map[string]any) time.Time {
	seconds, ok := number(m, "seconds", "_seconds")
	if !ok {
		return time.Time{}
	}
	nanos, _ := number(m, "nanoseconds", "_nanoseconds")
	return time.Unix(int64(seconds), int64(nanos)).UTC()
}

func number(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := m[key].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func withKey(raw map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(raw)+1)
	for k, v := range raw {
		out[k] = v
	}
	out[key] = value
	return out
}

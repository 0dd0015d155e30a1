package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// TimestampKind classifies the shape a stored date value arrived in.
type TimestampKind int

const (
	TimestampAbsent   TimestampKind = iota
	TimestampNative                 // time.Time
	TimestampProvider               // provider timestamp object or {seconds, nanoseconds} map
	TimestampString                 // ISO-8601 / RFC 3339 text
	TimestampUnixMillis
	TimestampInvalid
)

func (k TimestampKind) String() string {
	switch k {
	case TimestampAbsent:
		return "absent"
	case TimestampNative:
		return "native"
	case TimestampProvider:
		return "provider"
	case TimestampString:
		return "string"
	case TimestampUnixMillis:
		return "unixMillis"
	default:
		return "invalid"
	}
}

// Provider SDK timestamps expose one of these accessors.
type asTimer interface{ AsTime() time.Time }
type toDater interface{ ToDate() time.Time }

// DecodeTimestamp converts a stored date value into a UTC time and reports
// which variant it was. The time is only meaningful for kinds other than
// TimestampAbsent and TimestampInvalid.
func DecodeTimestamp(v any) (time.Time, TimestampKind) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, TimestampAbsent
	case time.Time:
		if x.IsZero() {
			return time.Time{}, TimestampAbsent
		}
		return x.UTC(), TimestampNative
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, TimestampAbsent
		}
		return x.UTC(), TimestampNative
	case asTimer:
		return x.AsTime().UTC(), TimestampProvider
	case toDater:
		return x.ToDate().UTC(), TimestampProvider
	case map[string]any:
		return decodeProviderMap(x)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, TimestampAbsent
		}
		t, err := cast.ToTimeE(s)
		if err != nil {
			return time.Time{}, TimestampInvalid
		}
		return t.UTC(), TimestampString
	case int, int32, int64, float32, float64, json.Number:
		ms, err := cast.ToInt64E(x)
		if err != nil {
			return time.Time{}, TimestampInvalid
		}
		return time.UnixMilli(ms).UTC(), TimestampUnixMillis
	default:
		return time.Time{}, TimestampInvalid
	}
}

// decodeProviderMap handles the serialized form of provider timestamps,
// both {seconds, nanoseconds} and the admin-export {_seconds, _nanoseconds}.
func decodeProviderMap(m map[string]any) (time.Time, TimestampKind) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, TimestampInvalid
	}
	sec, err := cast.ToInt64E(secRaw)
	if err != nil {
		return time.Time{}, TimestampInvalid
	}
	var nsec int64
	for _, key := range []string{"nanoseconds", "_nanoseconds", "nanos"} {
		if raw, ok := m[key]; ok {
			nsec, _ = cast.ToInt64E(raw)
			break
		}
	}
	return time.Unix(sec, nsec).UTC(), TimestampProvider
}

// timeOr decodes v, falling back when it is absent or unreadable.
func timeOr(v any, fallback time.Time) time.Time {
	t, kind := DecodeTimestamp(v)
	if kind == TimestampAbsent || kind == TimestampInvalid {
		return fallback.UTC()
	}
	return t
}

// optionalTime decodes v, returning nil when it is absent or unreadable.
func optionalTime(v any) *time.Time {
	t, kind := DecodeTimestamp(v)
	if kind == TimestampAbsent || kind == TimestampInvalid {
		return nil
	}
	return &t
}

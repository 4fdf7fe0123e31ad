package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns nil for NULL or missing columns.
func (r Record) StringPtr(key string) *string {
	if r[key] == nil {
		return nil
	}
	if p, ok := r[key].(*string); ok {
		return p
	}
	s := r.String(key)
	return &s
}

func (r Record) Int64(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}

// IntPtr returns nil for NULL or missing columns.
func (r Record) IntPtr(key string) *int {
	n, ok := toInt64(r[key])
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}

func (r Record) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case *bool:
		return v != nil && *v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

func (r Record) Time(key string) time.Time {
	t := r.TimePtr(key)
	if t == nil {
		return time.Time{}
	}
	return *t
}

// TimePtr returns nil for NULL, missing or unparseable columns.
func (r Record) TimePtr(key string) *time.Time {
	switch v := r[key].(type) {
	case time.Time:
		return &v
	case *time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		return &t
	default:
		return nil
	}
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case *int:
		if n == nil {
			return 0, false
		}
		return int64(*n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

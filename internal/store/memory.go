package store

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process RecordStore. It backs tests and STORE_DRIVER=memory.
type Memory struct {
	mu   sync.Mutex
	data map[string][]Record
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]Record)}
}

func (m *Memory) Select(ctx context.Context, collection string, f Filter, opts QueryOptions) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(ctx, collection, f, opts)
}

func (m *Memory) SelectOne(ctx context.Context, collection string, f Filter) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectOneLocked(ctx, collection, f)
}

func (m *Memory) Insert(ctx context.Context, collection string, payload Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(ctx, collection, payload)
}

func (m *Memory) Update(ctx context.Context, collection string, f Filter, patch Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(ctx, collection, f, patch)
}

// WithTx holds the store lock for the duration of fn and restores the
// previous contents when fn fails.
func (m *Memory) WithTx(ctx context.Context, fn func(tx RecordStore) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make(map[string][]Record, len(m.data))
	for coll, rows := range m.data {
		cp := make([]Record, len(rows))
		for i, r := range rows {
			cp[i] = r.clone()
		}
		snapshot[coll] = cp
	}

	if err := fn(&memoryTx{m: m}); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) selectLocked(ctx context.Context, collection string, f Filter, opts QueryOptions) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []Record
	for _, r := range m.data[collection] {
		if matches(r, f) {
			out = append(out, r.clone())
		}
	}

	if len(opts.OrderBy) > 0 {
		sortRecords(out, opts.OrderBy)
	}

	if opts.Offset > 0 {
		if opts.Offset >= uint64(len(out)) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && uint64(len(out)) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *Memory) selectOneLocked(ctx context.Context, collection string, f Filter) (Record, error) {
	rows, err := m.selectLocked(ctx, collection, f, QueryOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (m *Memory) insertLocked(ctx context.Context, collection string, payload Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := payload.clone()
	if row["id"] == nil {
		row["id"] = uuid.NewString()
	}
	if row["created_at"] == nil {
		row["created_at"] = time.Now().UTC()
	}
	m.data[collection] = append(m.data[collection], row)
	return row.clone(), nil
}

func (m *Memory) updateLocked(ctx context.Context, collection string, f Filter, patch Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var n int64
	for _, r := range m.data[collection] {
		if !matches(r, f) {
			continue
		}
		n++
		for k, v := range patch {
			if inc, ok := v.(Increment); ok {
				cur, _ := toInt64(r[k])
				r[k] = cur + int64(inc)
				continue
			}
			r[k] = v
		}
	}
	return n, nil
}

type memoryTx struct {
	m *Memory
}

func (t *memoryTx) Select(ctx context.Context, collection string, f Filter, opts QueryOptions) ([]Record, error) {
	return t.m.selectLocked(ctx, collection, f, opts)
}

func (t *memoryTx) SelectOne(ctx context.Context, collection string, f Filter) (Record, error) {
	return t.m.selectOneLocked(ctx, collection, f)
}

func (t *memoryTx) Insert(ctx context.Context, collection string, payload Record) (Record, error) {
	return t.m.insertLocked(ctx, collection, payload)
}

func (t *memoryTx) Update(ctx context.Context, collection string, f Filter, patch Record) (int64, error) {
	return t.m.updateLocked(ctx, collection, f, patch)
}

func matches(r Record, f Filter) bool {
	for _, c := range f {
		v, present := r[c.Field]
		switch c.Op {
		case OpNotNull:
			if !present || v == nil {
				return false
			}
		case OpEq:
			if !equal(v, c.Value) {
				return false
			}
		case OpLte:
			n, ok := compare(v, c.Value)
			if !ok || n > 0 {
				return false
			}
		case OpGte:
			n, ok := compare(v, c.Value)
			if !ok || n < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if n, ok := compare(a, b); ok {
		return n == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers, times and strings; ok is false for mixed kinds.
func compare(a, b any) (int, bool) {
	if x, ok := toInt64Strict(a); ok {
		if y, ok := toInt64Strict(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}

	if x, ok := a.(time.Time); ok {
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
		return 0, false
	}

	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	}
	return 0, false
}

// toInt64Strict is toInt64 without the string fallback.
func toInt64Strict(v any) (int64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return toInt64(v)
}

func sortRecords(rows []Record, orderBy []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, clause := range orderBy {
			field, desc := parseOrder(clause)
			n, ok := compare(rows[i][field], rows[j][field])
			if !ok || n == 0 {
				continue
			}
			if desc {
				return n > 0
			}
			return n < 0
		}
		return false
	})
}

func parseOrder(clause string) (field string, desc bool) {
	parts := strings.Fields(clause)
	if len(parts) == 0 {
		return "", false
	}
	return parts[0], len(parts) > 1 && strings.EqualFold(parts[1], "DESC")
}

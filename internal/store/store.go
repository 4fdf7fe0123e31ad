package store

import (
	"context"
)

// Collection names used by the kiosk.
const (
	ScheduledSMS = "scheduled_sms"
	Stores       = "store"
	CheckIns     = "check_ins"
	CheckinList  = "checkin_list"
)

// Record is a single row keyed by column name.
type Record map[string]any

type Op string

const (
	OpEq      Op = "eq"
	OpLte     Op = "lte"
	OpGte     Op = "gte"
	OpNotNull Op = "not_null"
)

type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of conditions. An empty filter matches every row.
type Filter []Cond

func Where(conds ...Cond) Filter { return Filter(conds) }

func Eq(field string, v any) Cond  { return Cond{Field: field, Op: OpEq, Value: v} }
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: v} }
func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGte, Value: v} }
func NotNull(field string) Cond    { return Cond{Field: field, Op: OpNotNull} }

// Increment is a patch value applied as column = column + N.
type Increment int64

type QueryOptions struct {
	Limit   uint64
	Offset  uint64
	OrderBy []string
}

type RecordStore interface {
	Select(ctx context.Context, collection string, f Filter, opts QueryOptions) ([]Record, error)
	// SelectOne returns nil, nil when nothing matches.
	SelectOne(ctx context.Context, collection string, f Filter) (Record, error)
	Insert(ctx context.Context, collection string, payload Record) (Record, error)
	// Update returns the number of rows the filter matched.
	Update(ctx context.Context, collection string, f Filter, patch Record) (int64, error)
}

type Transactor interface {
	WithTx(ctx context.Context, fn func(tx RecordStore) error) error
}

// RunInTx runs fn in a transaction when s supports one, and directly otherwise.
func RunInTx(ctx context.Context, s RecordStore, fn func(tx RecordStore) error) error {
	if t, ok := s.(Transactor); ok {
		return t.WithTx(ctx, fn)
	}
	return fn(s)
}

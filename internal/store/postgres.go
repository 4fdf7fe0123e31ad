package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres implements RecordStore on a pgx pool, building statements with squirrel.
type Postgres struct {
	pool *pgxpool.Pool
	q    querier
	sb   sq.StatementBuilderType
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		pool: pool,
		q:    pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

func (p *Postgres) Select(ctx context.Context, collection string, f Filter, opts QueryOptions) ([]Record, error) {
	sqlStr, args, err := p.buildSelect(collection, f, opts)
	if err != nil {
		return nil, fmt.Errorf("build select %s: %w", collection, err)
	}

	rows, err := p.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	defer rows.Close()

	out, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return out, nil
}

func (p *Postgres) SelectOne(ctx context.Context, collection string, f Filter) (Record, error) {
	rows, err := p.Select(ctx, collection, f, QueryOptions{Limit: 1})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (p *Postgres) Insert(ctx context.Context, collection string, payload Record) (Record, error) {
	sqlStr, args, err := p.buildInsert(collection, payload)
	if err != nil {
		return nil, fmt.Errorf("build insert %s: %w", collection, err)
	}

	rows, err := p.q.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	defer rows.Close()

	out, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert %s: no row returned", collection)
	}
	return out[0], nil
}

func (p *Postgres) Update(ctx context.Context, collection string, f Filter, patch Record) (int64, error) {
	sqlStr, args, err := p.buildUpdate(collection, f, patch)
	if err != nil {
		return 0, fmt.Errorf("build update %s: %w", collection, err)
	}

	tag, err := p.q.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx RecordStore) error) error {
	if p.pool == nil {
		return fn(p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Postgres{q: tx, sb: p.sb}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) buildSelect(collection string, f Filter, opts QueryOptions) (string, []any, error) {
	q := p.sb.Select("*").From(collection)
	if len(f) > 0 {
		q = q.Where(toSqlizer(f))
	}
	if len(opts.OrderBy) > 0 {
		q = q.OrderBy(opts.OrderBy...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q.ToSql()
}

func (p *Postgres) buildInsert(collection string, payload Record) (string, []any, error) {
	if len(payload) == 0 {
		return "", nil, errors.New("empty payload")
	}

	cols := sortedKeys(payload)
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = payload[c]
	}

	return p.sb.
		Insert(collection).
		Columns(cols...).
		Values(vals...).
		Suffix("RETURNING *").
		ToSql()
}

func (p *Postgres) buildUpdate(collection string, f Filter, patch Record) (string, []any, error) {
	if len(patch) == 0 {
		return "", nil, errors.New("empty patch")
	}

	q := p.sb.Update(collection)
	for _, col := range sortedKeys(patch) {
		if inc, ok := patch[col].(Increment); ok {
			q = q.Set(col, sq.Expr("COALESCE("+col+", 0) + ?", int64(inc)))
			continue
		}
		q = q.Set(col, patch[col])
	}
	if len(f) > 0 {
		q = q.Where(toSqlizer(f))
	}
	return q.ToSql()
}

func toSqlizer(f Filter) sq.And {
	out := make(sq.And, 0, len(f))
	for _, c := range f {
		switch c.Op {
		case OpEq:
			out = append(out, sq.Eq{c.Field: c.Value})
		case OpLte:
			out = append(out, sq.LtOrEq{c.Field: c.Value})
		case OpGte:
			out = append(out, sq.GtOrEq{c.Field: c.Value})
		case OpNotNull:
			out = append(out, sq.NotEq{c.Field: nil})
		}
	}
	return out
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	fields := rows.FieldDescriptions()

	var out []Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		rec := make(Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

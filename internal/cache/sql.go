package cache

import (
	"context"
	stdsql "database/sql"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// TableName is created by the repository migrations.
const TableName = "extract_cache"

// SQL stores entries in the extract_cache table through the ent SQL driver.
type SQL struct {
	drv *entsql.Driver
}

func NewSQL(drv *entsql.Driver) *SQL {
	return &SQL{drv: drv}
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	query, args := entsql.Dialect(s.drv.Dialect()).
		Select("value").
		From(entsql.Table(TableName)).
		Where(entsql.EQ("fingerprint", key)).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return "", false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var v string
	if err := rows.Scan(&v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	query, args := entsql.Dialect(s.drv.Dialect()).
		Insert(TableName).
		Columns("fingerprint", "value", "created_at").
		Values(key, value, time.Now().UTC().UnixMilli()).
		OnConflict(entsql.ConflictColumns("fingerprint"), entsql.DoNothing()).
		Query()

	var res stdsql.Result
	return s.drv.Exec(ctx, query, args, &res)
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.drv.DB().PingContext(ctx)
}

// Close is a no-op; the driver belongs to the repository layer.
func (s *SQL) Close() error { return nil }

// Package datasource loads OHLCV bar series from tabular files through an
// embedded DuckDB instance, so CSV and Parquet inputs share one code path.
package datasource

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/openquant-lab/trendtest/internal/logger"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
	"go.uber.org/zap"
)

// requiredColumns are the columns every bar file must provide.
var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// DuckDB is a bar loader backed by an in-memory DuckDB database.
type DuckDB struct {
	db  *sql.DB
	log *logger.Logger
}

// NewDuckDB opens an in-memory DuckDB instance.
func NewDuckDB(log *logger.Logger) (*DuckDB, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "cannot open duckdb", err)
	}

	return &DuckDB{db: db, log: log}, nil
}

// Close releases the underlying database.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Load reads the bar series at path, ordered by timestamp ascending. The file
// format is chosen by extension: .csv or .parquet. When limit is positive,
// only the most recent limit bars are returned.
func (d *DuckDB) Load(path string, limit int) ([]types.Bar, error) {
	d.log.Debug("loading bars", zap.String("path", path), zap.Int("limit", limit))

	reader, err := readerFor(path)
	if err != nil {
		return nil, err
	}

	// View creation is also where a missing or malformed file surfaces.
	createView := fmt.Sprintf("CREATE OR REPLACE VIEW bars AS SELECT * FROM %s", reader)
	if _, err := d.db.Exec(createView); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "cannot read %s", path)
	}

	if err := d.checkColumns(path); err != nil {
		return nil, err
	}

	bars, err := d.queryBars(limit)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no bars in %s", path)
	}

	d.log.Debug("loaded bars", zap.String("path", path), zap.Int("count", len(bars)))

	return bars, nil
}

func readerFor(path string) (string, error) {
	quoted := strings.ReplaceAll(path, "'", "''")

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return fmt.Sprintf("read_csv_auto('%s')", quoted), nil
	case ".parquet":
		return fmt.Sprintf("read_parquet('%s')", quoted), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter,
			"unsupported data file %s: want .csv or .parquet", path)
	}
}

func (d *DuckDB) checkColumns(path string) error {
	query, args, err := sq.Select("column_name").
		From("information_schema.columns").
		Where(sq.Eq{"table_name": "bars"}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "cannot build column query", err)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "cannot list columns", err)
	}
	defer rows.Close()

	present := make(map[string]bool)

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "cannot scan column name", err)
		}

		present[strings.ToLower(name)] = true
	}

	if err := rows.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "cannot list columns", err)
	}

	for _, column := range requiredColumns {
		if !present[column] {
			return errors.Newf(errors.ErrCodeMissingColumn, "column %q missing in %s", column, path)
		}
	}

	return nil
}

func (d *DuckDB) queryBars(limit int) ([]types.Bar, error) {
	builder := sq.Select("timestamp", "open", "high", "low", "close", "volume").
		From("bars").
		OrderBy("timestamp DESC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	inner, args, err := builder.ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "cannot build bar query", err)
	}

	// The tail is selected newest-first, then flipped back to replay order.
	query := fmt.Sprintf("SELECT * FROM (%s) ORDER BY timestamp ASC", inner)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "cannot query bars", err)
	}
	defer rows.Close()

	var bars []types.Bar

	for rows.Next() {
		var (
			timestamp                      time.Time
			open, high, low, close, volume float64
		)

		if err := rows.Scan(&timestamp, &open, &high, &low, &close, &volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "cannot scan bar", err)
		}

		bars = append(bars, types.Bar{
			Time:   timestamp.UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "cannot iterate bars", err)
	}

	return bars, nil
}

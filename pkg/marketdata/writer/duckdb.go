package writer

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/openquant-lab/trendtest/internal/types"
	"github.com/openquant-lab/trendtest/pkg/errors"
)

// Format selects the output file format.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
)

// FormatForPath picks the output format from the file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return FormatParquet, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter,
			"unsupported output file %s: want .csv or .parquet", path)
	}
}

// DuckDBWriter buffers bars in an in-memory DuckDB table and exports them on
// Finalize, so CSV and Parquet output share one insert path.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
	format     Format
}

// NewDuckDBWriter creates a writer targeting the given output file.
func NewDuckDBWriter(outputPath string, format Format) *DuckDBWriter {
	return &DuckDBWriter{
		outputPath: outputPath,
		format:     format,
	}
}

// Initialize opens the buffer database and prepares the insert path.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", "")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot open buffer database", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			timestamp TIMESTAMP NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL
		)
	`)
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot create buffer table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot begin transaction", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = w.tx.Rollback()
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot prepare insert", err)
	}

	return nil
}

// Write buffers one bar.
func (w *DuckDBWriter) Write(bar types.Bar) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	_, err := w.stmt.Exec(bar.Time, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot buffer bar", err)
	}

	return nil
}

// Finalize commits the buffer and exports it to the output file, sorted by
// timestamp.
func (w *DuckDBWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	if err := w.tx.Commit(); err != nil {
		_ = w.tx.Rollback()

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot commit buffer", err)
	}

	w.tx = nil

	quoted := strings.ReplaceAll(w.outputPath, "'", "''")

	var export string

	switch w.format {
	case FormatParquet:
		export = fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY timestamp) TO '%s' (FORMAT PARQUET)`, quoted)
	case FormatCSV:
		export = fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY timestamp) TO '%s' (HEADER, DELIMITER ',')`, quoted)
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported output format %q", w.format)
	}

	if _, err := w.db.Exec(export); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "cannot export to %s", w.outputPath)
	}

	return w.outputPath, nil
}

// Close releases the buffer database, rolling back any uncommitted writes.
func (w *DuckDBWriter) Close() error {
	if w.stmt != nil {
		_ = w.stmt.Close()
		w.stmt = nil
	}

	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		err := w.db.Close()
		w.db = nil

		if err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "cannot close buffer database", err)
		}
	}

	return nil
}

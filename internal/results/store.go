// Package results persists backtest and optimization outputs: model result
// JSON files in the original order-bin layout, and a DuckDB-backed trial
// ledger exportable as CSV.
package results

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
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

// ModelResult is the JSON record written for a completed backtest.
type ModelResult struct {
	ModelParams  any           `json:"model_params"`
	FinalCapital float64       `json:"final_capital"`
	Orders       []types.Order `json:"orders"`
}

// TrialRecord is one optimization trial in the ledger.
type TrialRecord struct {
	RunID       string
	Symbol      string
	TrialNumber int
	// Params is the trial's parameter set encoded as JSON.
	Params      string
	SharpeRatio float64
	FinalValue  float64
}

// Store writes model results and trial records under a base directory.
type Store struct {
	dir string
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// NewStore creates the base directory if needed and opens the trial ledger.
func NewStore(dir string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeResultsStoreFailure, err, "cannot create results dir %s", dir)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot open trial ledger", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS trials (
			run_id VARCHAR NOT NULL,
			symbol VARCHAR NOT NULL,
			trial_number INTEGER NOT NULL,
			params VARCHAR NOT NULL,
			sharpe_ratio DOUBLE NOT NULL,
			final_value DOUBLE NOT NULL,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot create trials table", err)
	}

	return &Store{dir: dir, db: db, log: log, now: time.Now}, nil
}

// Close releases the trial ledger.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveModelResult writes the result JSON, prefixed POS_ when the run beat its
// initial capital and NEG_ otherwise. Returns the written path.
func (s *Store) SaveModelResult(params any, finalCapital float64, orders []types.Order, symbol string, initialCapital float64) (string, error) {
	prefix := "NEG_"
	if finalCapital > initialCapital {
		prefix = "POS_"
	}

	name := fmt.Sprintf("%s%s_%s.json", prefix, sanitizeSymbol(symbol), s.now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	payload, err := json.MarshalIndent(ModelResult{
		ModelParams:  params,
		FinalCapital: finalCapital,
		Orders:       orders,
	}, "", "    ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot encode model result", err)
	}

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", errors.Wrapf(errors.ErrCodeResultsStoreFailure, err, "cannot write %s", path)
	}

	s.log.Info("saved model result",
		zap.String("path", path),
		zap.Float64("final_capital", finalCapital),
	)

	return path, nil
}

// RecordTrial appends one trial to the ledger.
func (s *Store) RecordTrial(record TrialRecord) error {
	query, args, err := sq.Insert("trials").
		Columns("run_id", "symbol", "trial_number", "params", "sharpe_ratio", "final_value", "created_at").
		Values(record.RunID, record.Symbol, record.TrialNumber, record.Params,
			record.SharpeRatio, record.FinalValue, s.now()).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot build trial insert", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeResultsStoreFailure, err, "cannot record trial %d", record.TrialNumber)
	}

	return nil
}

// Trials returns the ledger rows for a run, ordered by trial number.
func (s *Store) Trials(runID string) ([]TrialRecord, error) {
	query, args, err := sq.Select("run_id", "symbol", "trial_number", "params", "sharpe_ratio", "final_value").
		From("trials").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("trial_number ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot build trial query", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot query trials", err)
	}
	defer rows.Close()

	var records []TrialRecord

	for rows.Next() {
		var record TrialRecord
		if err := rows.Scan(&record.RunID, &record.Symbol, &record.TrialNumber,
			&record.Params, &record.SharpeRatio, &record.FinalValue); err != nil {
			return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot scan trial", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsStoreFailure, "cannot iterate trials", err)
	}

	return records, nil
}

// ExportTrialsCSV writes every trial for the symbol to a CSV next to the
// model results and returns the written path.
func (s *Store) ExportTrialsCSV(symbol string) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("trials_%s.csv", sanitizeSymbol(symbol)))

	quotedPath := strings.ReplaceAll(path, "'", "''")
	quotedSymbol := strings.ReplaceAll(symbol, "'", "''")

	query := fmt.Sprintf(`
		COPY (
			SELECT run_id, symbol, trial_number, params, sharpe_ratio, final_value
			FROM trials
			WHERE symbol = '%s'
			ORDER BY trial_number ASC
		) TO '%s' (HEADER, DELIMITER ',')
	`, quotedSymbol, quotedPath)

	if _, err := s.db.Exec(query); err != nil {
		return "", errors.Wrapf(errors.ErrCodeResultsStoreFailure, err, "cannot export trials for %s", symbol)
	}

	s.log.Info("exported trials", zap.String("path", path), zap.String("symbol", symbol))

	return path, nil
}

func sanitizeSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

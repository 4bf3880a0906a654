// Copyright 2025 reclab Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package results

import (
	"database/sql"
	"math"

	"github.com/juju/errors"
	_ "modernc.org/sqlite"
)

type SQLite struct {
	db *sql.DB
}

// SQLite binds NaN as NULL, so metrics scan through NullFloat64.
func nanOrFloat(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Init() error {
	// Create tables
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at DATETIME,
	dataset TEXT,
	config TEXT,
	best_params TEXT,
	validation_mae REAL,
	test_mae REAL,
	test_rmse REAL
);`); err != nil {
		return errors.Trace(err)
	}
	if _, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS trials (
	run_id TEXT,
	trial_index INTEGER,
	params TEXT,
	mae REAL,
	rmse REAL,
	converged INTEGER,
	PRIMARY KEY (run_id, trial_index)
);`); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func (s *SQLite) InsertRun(run *Run) error {
	_, err := s.db.Exec(`
INSERT INTO runs (id, created_at, dataset, config, best_params, validation_mae, test_mae, test_rmse)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.CreatedAt.UTC(), run.Dataset, run.Config, run.BestParams,
		run.ValidationMAE, run.TestMAE, run.TestRMSE)
	return errors.Trace(err)
}

func (s *SQLite) InsertTrials(trials []*Trial) error {
	txn, err := s.db.Begin()
	if err != nil {
		return errors.Trace(err)
	}
	for _, trial := range trials {
		if _, err = txn.Exec(`
INSERT INTO trials (run_id, trial_index, params, mae, rmse, converged)
VALUES (?, ?, ?, ?, ?, ?)
`, trial.RunID, trial.Index, trial.Params, trial.MAE, trial.RMSE, trial.Converged); err != nil {
			_ = txn.Rollback()
			return errors.Trace(err)
		}
	}
	return errors.Trace(txn.Commit())
}

func (s *SQLite) GetRun(id string) (*Run, error) {
	var (
		run        Run
		validation sql.NullFloat64
		mae        sql.NullFloat64
		rmse       sql.NullFloat64
	)
	err := s.db.QueryRow(`
SELECT id, created_at, dataset, config, best_params, validation_mae, test_mae, test_rmse
FROM runs WHERE id = ?
`, id).Scan(&run.ID, &run.CreatedAt, &run.Dataset, &run.Config, &run.BestParams,
		&validation, &mae, &rmse)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFoundf("run %s", id)
		}
		return nil, errors.Trace(err)
	}
	run.ValidationMAE = nanOrFloat(validation)
	run.TestMAE = nanOrFloat(mae)
	run.TestRMSE = nanOrFloat(rmse)
	return &run, nil
}

func (s *SQLite) ListRuns() ([]*Run, error) {
	rs, err := s.db.Query(`
SELECT id, created_at, dataset, config, best_params, validation_mae, test_mae, test_rmse
FROM runs ORDER BY created_at DESC
`)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rs.Close()
	var runs []*Run
	for rs.Next() {
		var (
			run        Run
			validation sql.NullFloat64
			mae        sql.NullFloat64
			rmse       sql.NullFloat64
		)
		if err = rs.Scan(&run.ID, &run.CreatedAt, &run.Dataset, &run.Config, &run.BestParams,
			&validation, &mae, &rmse); err != nil {
			return nil, errors.Trace(err)
		}
		run.ValidationMAE = nanOrFloat(validation)
		run.TestMAE = nanOrFloat(mae)
		run.TestRMSE = nanOrFloat(rmse)
		runs = append(runs, &run)
	}
	return runs, errors.Trace(rs.Err())
}

func (s *SQLite) ListTrials(runID string) ([]*Trial, error) {
	rs, err := s.db.Query(`
SELECT run_id, trial_index, params, mae, rmse, converged
FROM trials WHERE run_id = ? ORDER BY trial_index
`, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rs.Close()
	var trials []*Trial
	for rs.Next() {
		var (
			trial Trial
			mae   sql.NullFloat64
			rmse  sql.NullFloat64
		)
		if err = rs.Scan(&trial.RunID, &trial.Index, &trial.Params,
			&mae, &rmse, &trial.Converged); err != nil {
			return nil, errors.Trace(err)
		}
		trial.MAE = nanOrFloat(mae)
		trial.RMSE = nanOrFloat(rmse)
		trials = append(trials, &trial)
	}
	return trials, errors.Trace(rs.Err())
}

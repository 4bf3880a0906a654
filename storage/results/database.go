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

// Package results persists experiment runs for external dashboards.
package results

import (
	"database/sql"
	"net/url"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
)

const SQLitePrefix = "sqlite://"

// Run is one experiment: the dataset, the configuration snapshot, the
// winning hyper-parameters and the final metrics.
type Run struct {
	ID            string
	CreatedAt     time.Time
	Dataset       string
	Config        string
	BestParams    string
	ValidationMAE float64
	TestMAE       float64
	TestRMSE      float64
}

// Trial is one hyper-parameter combination evaluated during the search.
type Trial struct {
	RunID     string
	Index     int
	Params    string
	MAE       float64
	RMSE      float64
	Converged bool
}

type Database interface {
	Close() error
	Init() error
	InsertRun(run *Run) error
	InsertTrials(trials []*Trial) error
	GetRun(id string) (*Run, error)
	ListRuns() ([]*Run, error)
	ListTrials(runID string) ([]*Trial, error)
}

func appendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// Open a connection to a results store.
func Open(path string) (Database, error) {
	var err error
	if strings.HasPrefix(path, SQLitePrefix) {
		dataSourceName := path[len(SQLitePrefix):]
		// append parameters
		if dataSourceName, err = appendURLParams(dataSourceName, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		// connect to database
		database := new(SQLite)
		if database.db, err = sql.Open("sqlite", dataSourceName); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("unknown database: %s", path)
}

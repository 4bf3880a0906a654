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
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/suite"
)

type baseTestSuite struct {
	suite.Suite
	Database
}

func (suite *baseTestSuite) TestRuns() {
	// Insert runs
	first := &Run{
		ID:            "run-1",
		CreatedAt:     time.Now().Add(-time.Hour),
		Dataset:       "ml-100k",
		Config:        "[data]\nname = \"ml-100k\"",
		BestParams:    `{"NFactors":16,"Reg":0.1}`,
		ValidationMAE: 0.74,
		TestMAE:       0.75,
		TestRMSE:      0.95,
	}
	err := suite.Database.InsertRun(first)
	suite.NoError(err)
	second := &Run{
		ID:        "run-2",
		CreatedAt: time.Now(),
		Dataset:   "ratings.csv",
		TestMAE:   0.6,
		TestRMSE:  0.8,
	}
	err = suite.Database.InsertRun(second)
	suite.NoError(err)

	// Get run
	run, err := suite.Database.GetRun("run-1")
	suite.NoError(err)
	suite.Equal("run-1", run.ID)
	suite.Equal("ml-100k", run.Dataset)
	suite.Equal(first.Config, run.Config)
	suite.Equal(first.BestParams, run.BestParams)
	suite.Equal(0.74, run.ValidationMAE)
	suite.Equal(0.75, run.TestMAE)
	suite.Equal(0.95, run.TestRMSE)
	suite.WithinDuration(first.CreatedAt, run.CreatedAt, time.Second)

	// Get missing run
	_, err = suite.Database.GetRun("run-404")
	suite.True(errors.IsNotFound(err))

	// List runs, newest first
	runs, err := suite.Database.ListRuns()
	suite.NoError(err)
	if suite.Equal(2, len(runs)) {
		suite.Equal("run-2", runs[0].ID)
		suite.Equal("run-1", runs[1].ID)
	}
}

func (suite *baseTestSuite) TestTrials() {
	err := suite.Database.InsertRun(&Run{ID: "run-3", CreatedAt: time.Now()})
	suite.NoError(err)
	trials := []*Trial{
		{RunID: "run-3", Index: 0, Params: `{"NFactors":8}`, MAE: 0.8, RMSE: 1.0, Converged: true},
		{RunID: "run-3", Index: 1, Params: `{"NFactors":16}`, MAE: 0.7, RMSE: 0.9, Converged: true},
		{RunID: "run-3", Index: 2, Params: `{"NFactors":32}`, MAE: 0.75, RMSE: 0.93, Converged: false},
	}
	err = suite.Database.InsertTrials(trials)
	suite.NoError(err)

	listed, err := suite.Database.ListTrials("run-3")
	suite.NoError(err)
	if suite.Equal(3, len(listed)) {
		for i, trial := range listed {
			suite.Equal(trials[i].Index, trial.Index)
			suite.Equal(trials[i].Params, trial.Params)
			suite.Equal(trials[i].MAE, trial.MAE)
			suite.Equal(trials[i].RMSE, trial.RMSE)
			suite.Equal(trials[i].Converged, trial.Converged)
		}
	}

	// Trials of an unknown run
	listed, err = suite.Database.ListTrials("run-404")
	suite.NoError(err)
	suite.Empty(listed)
}

func (suite *baseTestSuite) TestUndefinedMetrics() {
	// Undefined metrics are NaN and must survive a round trip.
	err := suite.Database.InsertRun(&Run{
		ID:            "run-nan",
		CreatedAt:     time.Now(),
		Dataset:       "ratings.csv",
		ValidationMAE: 0.7,
		TestMAE:       math.NaN(),
		TestRMSE:      math.NaN(),
	})
	suite.NoError(err)
	err = suite.Database.InsertTrials([]*Trial{
		{RunID: "run-nan", Index: 0, Params: `{"NFactors":8}`, MAE: math.NaN(), RMSE: math.NaN()},
	})
	suite.NoError(err)

	run, err := suite.Database.GetRun("run-nan")
	suite.NoError(err)
	suite.Equal(0.7, run.ValidationMAE)
	suite.True(math.IsNaN(run.TestMAE))
	suite.True(math.IsNaN(run.TestRMSE))

	trials, err := suite.Database.ListTrials("run-nan")
	suite.NoError(err)
	if suite.Equal(1, len(trials)) {
		suite.True(math.IsNaN(trials[0].MAE))
		suite.True(math.IsNaN(trials[0].RMSE))
	}

	runs, err := suite.Database.ListRuns()
	suite.NoError(err)
	found := false
	for _, r := range runs {
		if r.ID == "run-nan" {
			found = true
			suite.True(math.IsNaN(r.TestMAE))
		}
	}
	suite.True(found)
}

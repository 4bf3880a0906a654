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

package experiment

import (
	"bytes"
	"testing"
	"time"

	"github.com/reclab-io/reclab/model"
	"github.com/reclab-io/reclab/model/rating"
	"github.com/stretchr/testify/assert"
)

func newTestReport() *Report {
	return &Report{
		ID:        "run-1",
		Dataset:   "ml-100k",
		StartTime: time.Now(),
		Trials: []TrialResult{
			{Index: 0, Params: model.Params{model.NFactors: 8, model.Reg: 0.1},
				Score: rating.Score{MAE: 0.81, RMSE: 1.02, Epochs: 20, Converged: true, Covered: 100}},
			{Index: 1, Params: model.Params{model.NFactors: 16, model.Reg: 0.1},
				Score: rating.Score{MAE: 0.76, RMSE: 0.97, Epochs: 30, Converged: false, Covered: 100}},
		},
		BestIndex:       1,
		BestParams:      model.Params{model.NFactors: 16, model.Reg: 0.1},
		ValidationScore: rating.Score{MAE: 0.76, RMSE: 0.97, Covered: 100},
		TestScore:       rating.Score{MAE: 0.78, RMSE: 0.99, Covered: 95, ColdStart: 5},
	}
}

func TestReport_Format(t *testing.T) {
	var buf bytes.Buffer
	report := newTestReport()
	assert.NoError(t, report.Format(&buf))
	output := buf.String()
	assert.Contains(t, output, "NFactors")
	assert.Contains(t, output, "1 of 2 trials hit the iteration cap before converging")
	assert.Contains(t, output, `best params = {"NFactors":16,"Reg":0.1} (validation MAE = 0.76)`)
	assert.Contains(t, output, "MAE on test = 0.78 (RMSE = 0.99, covered = 95, cold start = 5)")
}

func TestReport_FormatConverged(t *testing.T) {
	var buf bytes.Buffer
	report := newTestReport()
	report.Trials[1].Score.Converged = true
	assert.NoError(t, report.Format(&buf))
	assert.NotContains(t, buf.String(), "iteration cap")
}

func TestReport_Unconverged(t *testing.T) {
	report := newTestReport()
	assert.Equal(t, 1, report.Unconverged())
	report.Trials[0].Score.Converged = false
	assert.Equal(t, 2, report.Unconverged())
}

func TestReport_ToRun(t *testing.T) {
	report := newTestReport()
	run := report.toRun(`{"Data":{}}`)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "ml-100k", run.Dataset)
	assert.Equal(t, `{"Data":{}}`, run.Config)
	assert.Equal(t, report.BestParams.ToString(), run.BestParams)
	assert.InDelta(t, 0.76, run.ValidationMAE, 1e-6)
	assert.InDelta(t, 0.78, run.TestMAE, 1e-6)
	assert.InDelta(t, 0.99, run.TestRMSE, 1e-6)

	trials := report.toTrials()
	assert.Len(t, trials, 2)
	assert.Equal(t, "run-1", trials[0].RunID)
	assert.Equal(t, 0, trials[0].Index)
	assert.True(t, trials[0].Converged)
	assert.Equal(t, 1, trials[1].Index)
	assert.False(t, trials[1].Converged)
	assert.InDelta(t, 0.76, trials[1].MAE, 1e-6)
}

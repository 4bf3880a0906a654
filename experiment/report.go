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
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/reclab-io/reclab/common/util"
	"github.com/reclab-io/reclab/model"
	"github.com/reclab-io/reclab/model/rating"
	"github.com/reclab-io/reclab/storage/results"
)

// TrialResult is the validation outcome of a single hyper-parameter
// combination.
type TrialResult struct {
	Index  int
	Params model.Params
	Score  rating.Score
}

// Report is the outcome of an experiment run.
type Report struct {
	ID              string
	Dataset         string
	StartTime       time.Time
	LoadDuration    time.Duration
	SearchDuration  time.Duration
	Trials          []TrialResult
	BestIndex       int
	BestParams      model.Params
	ValidationScore rating.Score
	TestScore       rating.Score
}

// Unconverged returns the number of trials stopped by the iteration cap.
func (r *Report) Unconverged() int {
	count := 0
	for _, trial := range r.Trials {
		if !trial.Score.Converged {
			count++
		}
	}
	return count
}

// Format renders the trial table followed by the winning combination and the
// final metric on the test set.
func (r *Report) Format(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"trial", "params", "MAE", "RMSE", "epochs", "converged", "best"})
	for _, trial := range r.Trials {
		best := ""
		if trial.Index == r.BestIndex {
			best = "*"
		}
		table.Append([]string{
			strconv.Itoa(trial.Index),
			trial.Params.ToString(),
			util.FormatFloat32(trial.Score.MAE),
			util.FormatFloat32(trial.Score.RMSE),
			strconv.Itoa(trial.Score.Epochs),
			strconv.FormatBool(trial.Score.Converged),
			best,
		})
	}
	table.Render()
	if unconverged := r.Unconverged(); unconverged > 0 {
		if _, err := fmt.Fprintf(w, "%d of %d trials hit the iteration cap before converging\n",
			unconverged, len(r.Trials)); err != nil {
			return errors.Trace(err)
		}
	}
	if _, err := fmt.Fprintf(w, "best params = %s (validation MAE = %s)\n",
		r.BestParams.ToString(), util.FormatFloat32(r.ValidationScore.MAE)); err != nil {
		return errors.Trace(err)
	}
	_, err := fmt.Fprintf(w, "MAE on test = %s (RMSE = %s, covered = %d, cold start = %d)\n",
		util.FormatFloat32(r.TestScore.MAE), util.FormatFloat32(r.TestScore.RMSE),
		r.TestScore.Covered, r.TestScore.ColdStart)
	return errors.Trace(err)
}

// toRun converts the report to a row of the results store.
func (r *Report) toRun(configSnapshot string) *results.Run {
	return &results.Run{
		ID:            r.ID,
		CreatedAt:     r.StartTime,
		Dataset:       r.Dataset,
		Config:        configSnapshot,
		BestParams:    r.BestParams.ToString(),
		ValidationMAE: float64(r.ValidationScore.MAE),
		TestMAE:       float64(r.TestScore.MAE),
		TestRMSE:      float64(r.TestScore.RMSE),
	}
}

func (r *Report) toTrials() []*results.Trial {
	trials := make([]*results.Trial, 0, len(r.Trials))
	for _, trial := range r.Trials {
		trials = append(trials, &results.Trial{
			RunID:     r.ID,
			Index:     trial.Index,
			Params:    trial.Params.ToString(),
			MAE:       float64(trial.Score.MAE),
			RMSE:      float64(trial.Score.RMSE),
			Converged: trial.Score.Converged,
		})
	}
	return trials
}

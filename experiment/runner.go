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

// Package experiment runs a model selection experiment end to end: load a
// rating table, split it, search hyper-parameters on the validation split,
// refit the winner and report its metric on the test split.
package experiment

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/reclab-io/reclab/base/log"
	"github.com/reclab-io/reclab/base/progress"
	"github.com/reclab-io/reclab/common/util"
	"github.com/reclab-io/reclab/config"
	"github.com/reclab-io/reclab/dataset"
	"github.com/reclab-io/reclab/model"
	"github.com/reclab-io/reclab/model/rating"
	"github.com/reclab-io/reclab/storage/results"
	"go.uber.org/zap"
)

// NewModel creates a rating model by type name.
func NewModel(name string, params model.Params) (rating.MatrixFactorization, error) {
	switch name {
	case "als":
		return rating.NewALS(params), nil
	case "svd":
		return rating.NewSVD(params), nil
	}
	return nil, errors.NotValidf("model type %s", name)
}

// Runner executes the experiment described by a validated config.
type Runner struct {
	config *config.Config
}

func NewRunner(cfg *config.Config) *Runner {
	return &Runner{config: cfg}
}

// Run executes the experiment and returns its report. The report is also
// persisted to the configured outputs.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.config
	report := &Report{ID: uuid.New().String(), StartTime: time.Now()}

	// Load the rating table
	loadStart := time.Now()
	newCtx, span := progress.Start(ctx, "load dataset", 1)
	table, datasetName, err := r.load()
	if err != nil {
		span.Fail(err)
		return nil, errors.Trace(err)
	}
	span.Add(1)
	span.End()
	report.Dataset = datasetName
	report.LoadDuration = time.Since(loadStart)
	log.Logger().Info("load dataset",
		zap.String("dataset", datasetName),
		zap.Int("count", table.Count()),
		zap.Int("users", table.CountUsers()),
		zap.Int("items", table.CountItems()),
		zap.Duration("time_used", report.LoadDuration))

	// Split into train, validation and test sets
	splits, err := dataset.Split(table, cfg.Split.Proportions, cfg.Split.Seed)
	if err != nil {
		return nil, errors.Trace(err)
	}
	trainSet, validSet, testSet := splits[0], splits[1], splits[2]
	log.Logger().Info("split dataset",
		zap.Int("train", trainSet.Count()),
		zap.Int("validation", validSet.Count()),
		zap.Int("test", testSet.Count()),
		zap.Int64("seed", cfg.Split.Seed))

	// Search hyper-parameters on the validation set
	searchStart := time.Now()
	report.Trials, report.BestIndex, err = r.search(newCtx, trainSet, validSet)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err = newCtx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	report.SearchDuration = time.Since(searchStart)
	report.BestParams = report.Trials[report.BestIndex].Params
	log.Logger().Info("search complete",
		zap.String("strategy", cfg.Search.Strategy),
		zap.Int("trials", len(report.Trials)),
		zap.String("best_params", report.BestParams.ToString()),
		zap.Duration("time_used", report.SearchDuration))

	// Refit the winner and evaluate it on the test set
	best, err := NewModel(cfg.Model.Type, cfg.GetParams().Overwrite(report.BestParams))
	if err != nil {
		return nil, errors.Trace(err)
	}
	fitConfig := cfg.Fit.GetFitConfig()
	report.ValidationScore = best.Fit(newCtx, trainSet, validSet, fitConfig)
	testScore, predictions := rating.Evaluate(best, testSet, fitConfig.ColdStart, fitConfig.Jobs)
	report.TestScore = testScore
	log.Logger().Info("evaluate on test set", testScore.ZapFields()...)

	if err = r.persist(report, best, predictions); err != nil {
		return nil, errors.Trace(err)
	}
	return report, nil
}

// load reads the rating table from the configured source.
func (r *Runner) load() (*dataset.Table, string, error) {
	data := r.config.Data
	switch {
	case data.Path != "":
		opts := []dataset.Option{dataset.WithHeader(data.Header)}
		if data.Separator != "" {
			opts = append(opts, dataset.WithSeparator(data.Separator))
		}
		if data.Filter != "" {
			opts = append(opts, dataset.WithFilter(data.Filter))
		}
		table, err := dataset.LoadFromCSV(data.Path, opts...)
		return table, data.Path, errors.Trace(err)
	case data.Name != "":
		table, err := dataset.LoadBuiltIn(data.Name)
		return table, data.Name, errors.Trace(err)
	default:
		synthetic := data.Synthetic
		table := dataset.NewSyntheticTable(synthetic.Users, synthetic.Items, synthetic.Count, synthetic.Seed)
		return table, "synthetic", nil
	}
}

// search dispatches on the configured strategy and returns one result per
// trial plus the index of the first trial reaching the best validation score.
func (r *Runner) search(ctx context.Context, trainSet, validSet *dataset.Table) ([]TrialResult, int, error) {
	cfg := r.config
	fitConfig := cfg.Fit.GetFitConfig()
	estimator, err := NewModel(cfg.Model.Type, cfg.GetParams())
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	switch cfg.Search.Strategy {
	case "grid":
		result := rating.GridSearchCV(ctx, estimator, trainSet, validSet,
			cfg.Grid.GetParamsGrid(), cfg.Search.Seed, fitConfig, cfg.Search.Jobs)
		return collectTrials(result), result.BestIndex, nil
	case "random":
		result := rating.RandomSearchCV(ctx, estimator, trainSet, validSet,
			cfg.Grid.GetParamsGrid(), cfg.Search.NumTrials, cfg.Search.Seed, fitConfig, cfg.Search.Jobs)
		return collectTrials(result), result.BestIndex, nil
	case "tpe":
		search := rating.NewModelSearch(map[string]rating.ModelCreator{
			cfg.Model.Type: func() rating.MatrixFactorization { return rating.Clone(estimator) },
		}, trainSet, validSet, fitConfig)
		study, err := goptuna.CreateStudy("reclab",
			goptuna.StudyOptionDirection(goptuna.StudyDirectionMinimize),
			goptuna.StudyOptionSampler(tpe.NewSampler()))
		if err != nil {
			return nil, 0, errors.Trace(err)
		}
		if err = study.Optimize(search.Objective, cfg.Search.NumTrials); err != nil {
			return nil, 0, errors.Trace(err)
		}
		searched := search.Trials()
		trials := make([]TrialResult, len(searched))
		bestIndex := 0
		for i, s := range searched {
			trials[i] = TrialResult{Index: i, Params: s.Params, Score: s.Score}
			if s.Score.BetterThan(trials[bestIndex].Score) {
				bestIndex = i
			}
		}
		return trials, bestIndex, nil
	}
	return nil, 0, errors.NotValidf("search strategy %s", cfg.Search.Strategy)
}

func collectTrials(result rating.ParamsSearchResult) []TrialResult {
	trials := make([]TrialResult, len(result.Scores))
	for i := range result.Scores {
		trials[i] = TrialResult{Index: i, Params: result.Params[i], Score: result.Scores[i]}
	}
	return trials
}

// persist writes the report to the configured outputs. Empty paths disable
// the corresponding output.
func (r *Runner) persist(report *Report, best rating.MatrixFactorization, predictions []rating.Prediction) error {
	output := r.config.Output
	if output.ResultsStore != "" {
		if err := r.saveResults(report); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("save run",
			zap.String("run_id", report.ID),
			zap.String("results_store", output.ResultsStore))
	}
	if output.Predictions != "" {
		if err := savePredictions(output.Predictions, predictions); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("save predictions",
			zap.String("path", output.Predictions),
			zap.Int("count", len(predictions)))
	}
	if output.ModelDump != "" {
		if err := saveModel(output.ModelDump, best); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("save model", zap.String("path", output.ModelDump))
	}
	return nil
}

func (r *Runner) saveResults(report *Report) error {
	database, err := results.Open(r.config.Output.ResultsStore)
	if err != nil {
		return errors.Trace(err)
	}
	defer database.Close()
	if err = database.Init(); err != nil {
		return errors.Trace(err)
	}
	snapshot, err := json.Marshal(r.config)
	if err != nil {
		return errors.Trace(err)
	}
	if err = database.InsertRun(report.toRun(string(snapshot))); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(database.InsertTrials(report.toTrials()))
}

// savePredictions writes per-record estimates as tab separated values. A cold
// start record keeps its NaN estimate.
func savePredictions(path string, predictions []rating.Prediction) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)
	if _, err = fmt.Fprintln(writer, "user\titem\trating\testimate"); err != nil {
		return errors.Trace(err)
	}
	for _, prediction := range predictions {
		if _, err = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			prediction.UserId, prediction.ItemId,
			util.FormatFloat32(prediction.Rating), util.FormatFloat32(prediction.Estimate)); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(writer.Flush())
}

func saveModel(path string, m rating.MatrixFactorization) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	return errors.Trace(rating.MarshalModel(file, m))
}

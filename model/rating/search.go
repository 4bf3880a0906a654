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

package rating

import (
	"context"
	"fmt"

	"github.com/reclab-io/reclab/base"
	"github.com/reclab-io/reclab/base/log"
	"github.com/reclab-io/reclab/base/progress"
	"github.com/reclab-io/reclab/common/parallel"
	"github.com/reclab-io/reclab/dataset"
	"github.com/reclab-io/reclab/model"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"modernc.org/mathutil"
)

// ParamsSearchResult contains the return of grid search.
type ParamsSearchResult struct {
	BestModel  MatrixFactorization
	BestScore  Score
	BestParams model.Params
	BestIndex  int
	Scores     []Score
	Params     []model.Params
}

// GridSearchCV finds the best parameters for a model. Combinations are
// enumerated in a fixed order and ties are won by the earliest combination, so
// the winner is reproducible between runs. Up to `jobs` trials run
// concurrently while each trial fits with fitConfig.Jobs.
func GridSearchCV(ctx context.Context, estimator MatrixFactorization, trainSet, validateSet *dataset.Table, paramGrid model.ParamsGrid,
	_ int64, fitConfig *FitConfig, jobs int) ParamsSearchResult {
	// Enumerate combinations
	paramNames := maps.Keys(paramGrid)
	slices.Sort(paramNames)
	combinations := make([]model.Params, 0, paramGrid.NumCombinations())
	var dfs func(deep int, params model.Params)
	dfs = func(deep int, params model.Params) {
		if deep == len(paramNames) {
			combinations = append(combinations, params.Copy())
		} else {
			paramName := paramNames[deep]
			for _, val := range paramGrid[paramName] {
				params[paramName] = val
				dfs(deep+1, params)
			}
		}
	}
	dfs(0, model.Params{})
	return runTrials(ctx, estimator, trainSet, validateSet, combinations, "GridSearchCV", "grid search", fitConfig, jobs)
}

// RandomSearchCV searches hyper-parameters by random.
func RandomSearchCV(ctx context.Context, estimator MatrixFactorization, trainSet, validateSet *dataset.Table, paramGrid model.ParamsGrid,
	numTrials int, seed int64, fitConfig *FitConfig, jobs int) ParamsSearchResult {
	// if the number of combinations is less than the number of trials, use grid search
	if paramGrid.NumCombinations() < numTrials {
		return GridSearchCV(ctx, estimator, trainSet, validateSet, paramGrid, seed, fitConfig, jobs)
	}
	rng := base.NewRandomGenerator(seed)
	paramNames := maps.Keys(paramGrid)
	slices.Sort(paramNames)
	combinations := make([]model.Params, 0, numTrials)
	for i := 0; i < numTrials; i++ {
		// Make parameters
		params := model.Params{}
		for _, paramName := range paramNames {
			values := paramGrid[paramName]
			params[paramName] = values[rng.Intn(len(values))]
		}
		combinations = append(combinations, params)
	}
	return runTrials(ctx, estimator, trainSet, validateSet, combinations, "RandomSearchCV", "random search", fitConfig, jobs)
}

// runTrials fits a clone of the estimator for every combination and keeps the
// first combination reaching the best score.
func runTrials(ctx context.Context, estimator MatrixFactorization, trainSet, validateSet *dataset.Table, combinations []model.Params,
	spanName, logName string, fitConfig *FitConfig, jobs int) ParamsSearchResult {
	fitConfig = fitConfig.LoadDefaultIfNil()
	jobs = mathutil.Max(jobs, 1)
	results := ParamsSearchResult{
		Scores: make([]Score, len(combinations)),
		Params: combinations,
	}
	models := make([]MatrixFactorization, len(combinations))
	counter := atomic.NewInt32(0)
	newCtx, span := progress.Start(ctx, spanName, len(combinations))
	_ = parallel.Parallel(newCtx, len(combinations), jobs, func(workerId, jobId int) error {
		params := combinations[jobId]
		trialEstimator := Clone(estimator)
		trialEstimator.Clear()
		trialEstimator.SetParams(trialEstimator.GetParams().Overwrite(params))
		score := trialEstimator.Fit(newCtx, trainSet, validateSet, fitConfig)
		results.Scores[jobId] = score
		models[jobId] = trialEstimator
		log.Logger().Info(fmt.Sprintf("%s (%v/%v)", logName, counter.Inc(), len(combinations)),
			zap.Any("params", params),
			zap.Float32("MAE", score.MAE))
		span.Add(1)
		return nil
	})
	span.End()
	for i := range results.Scores {
		if i == 0 || results.Scores[i].BetterThan(results.BestScore) {
			results.BestModel = models[i]
			results.BestScore = results.Scores[i]
			results.BestParams = results.Params[i].Copy()
			results.BestIndex = i
		}
	}
	log.Logger().Info(fmt.Sprintf("%s complete", logName),
		zap.Any("best_params", results.BestParams),
		zap.Float32("best_MAE", results.BestScore.MAE))
	return results
}

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
	"math"

	"github.com/c-bata/goptuna"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/reclab-io/reclab/dataset"
	"github.com/reclab-io/reclab/model"
	"golang.org/x/exp/maps"
)

type ModelCreator func() MatrixFactorization

// SearchedModel is the winner of a model search.
type SearchedModel struct {
	Type   string
	Params model.Params
	Score  Score
}

// ModelSearch searches the best model type and hyper-parameters via bayesian
// optimization.
type ModelSearch struct {
	modelCreators map[string]ModelCreator
	modelTypes    []string
	trainSet      *dataset.Table
	testSet       *dataset.Table
	config        *FitConfig
	trials        []SearchedModel
	result        *SearchedModel
}

func NewModelSearch(models map[string]ModelCreator, trainSet, testSet *dataset.Table, config *FitConfig) *ModelSearch {
	return &ModelSearch{
		modelCreators: models,
		modelTypes:    maps.Keys(models),
		trainSet:      trainSet,
		testSet:       testSet,
		config:        config,
	}
}

// Objective is the goptuna objective. Studies minimize it.
func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	if len(ms.modelCreators) == 0 {
		return 0, errors.New("no model to search")
	}
	modelType, err := trial.SuggestCategorical("Model", ms.modelTypes)
	if err != nil {
		return 0, errors.Trace(err)
	}
	m := ms.modelCreators[modelType]()
	m.SetParams(m.GetParams().Overwrite(m.SuggestParams(trial)))
	score := m.Fit(context.Background(), ms.trainSet, ms.testSet, ms.config)
	searched := SearchedModel{
		Type:   modelType,
		Params: m.GetParams(),
		Score:  score,
	}
	ms.trials = append(ms.trials, searched)
	if ms.result == nil || score.BetterThan(ms.result.Score) {
		ms.result = &searched
	}
	if math32.IsNaN(score.MAE) {
		return math.MaxFloat64, nil
	}
	return float64(score.MAE), nil
}

func (ms *ModelSearch) Result() *SearchedModel {
	return ms.result
}

// Trials returns every evaluated model in trial order.
func (ms *ModelSearch) Trials() []SearchedModel {
	return ms.trials
}

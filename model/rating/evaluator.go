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
	"github.com/chewxy/math32"
	"github.com/reclab-io/reclab/base/log"
	"github.com/reclab-io/reclab/common/parallel"
	"github.com/reclab-io/reclab/dataset"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ColdStartPolicy decides how rating records referencing a user or item unseen
// during training are reported.
type ColdStartPolicy string

const (
	// DropColdStart removes cold start records from the report.
	DropColdStart ColdStartPolicy = "drop"
	// ReportUndefined keeps cold start records in the report with an
	// undefined estimate.
	ReportUndefined ColdStartPolicy = "report-as-undefined"
)

// Prediction is the estimate for a single rating record. The estimate of a
// cold start record is NaN.
type Prediction struct {
	UserId   string
	ItemId   string
	Rating   float32
	Estimate float32
}

// ColdStart returns true if the user or the item was unseen during training.
func (p Prediction) ColdStart() bool {
	return math32.IsNaN(p.Estimate)
}

// Evaluate a rating model on a test set. Metrics are always computed over
// covered records only, the policy decides whether cold start records appear
// in the returned report.
func Evaluate(estimator MatrixFactorization, testSet *dataset.Table, policy ColdStartPolicy, nJobs int) (Score, []Prediction) {
	if testSet == nil || testSet.Count() == 0 {
		log.Logger().Warn("empty test set")
		return Score{MAE: math32.NaN(), RMSE: math32.NaN()}, nil
	}
	// For all rating records
	predictions := make([]Prediction, testSet.Count())
	_ = parallel.BatchParallel(testSet.Count(), nJobs, 128, func(workerId, beginJobId, endJobId int) error {
		for jobId := beginJobId; jobId < endJobId; jobId++ {
			userId, itemId, rating := testSet.Row(jobId)
			predictions[jobId] = Prediction{UserId: userId, ItemId: itemId, Rating: rating}
			userIndex := estimator.GetUserIndex().Id(userId)
			itemIndex := estimator.GetItemIndex().Id(itemId)
			if estimator.IsUserPredictable(userIndex) && estimator.IsItemPredictable(itemIndex) {
				predictions[jobId].Estimate = estimator.internalPredict(userIndex, itemIndex)
			} else {
				predictions[jobId].Estimate = math32.NaN()
			}
		}
		return nil
	})
	// Collect covered records
	truth := make([]float32, 0, len(predictions))
	estimates := make([]float32, 0, len(predictions))
	for _, prediction := range predictions {
		if !prediction.ColdStart() {
			truth = append(truth, prediction.Rating)
			estimates = append(estimates, prediction.Estimate)
		}
	}
	score := Score{
		Covered:   len(truth),
		ColdStart: len(predictions) - len(truth),
	}
	if score.Covered == 0 {
		log.Logger().Warn("no record covered by the model",
			zap.Int("cold_start", score.ColdStart))
		score.MAE = math32.NaN()
		score.RMSE = math32.NaN()
	} else {
		score.MAE = MAE(truth, estimates)
		score.RMSE = RMSE(truth, estimates)
	}
	if policy == DropColdStart {
		predictions = lo.Filter(predictions, func(prediction Prediction, _ int) bool {
			return !prediction.ColdStart()
		})
	}
	return score, predictions
}

// MAE is the mean of absolute differences between truth and estimates.
func MAE(truth, estimates []float32) float32 {
	if len(truth) != len(estimates) {
		panic("rating: slice lengths do not match")
	}
	sum := float32(0)
	for i := range truth {
		sum += math32.Abs(truth[i] - estimates[i])
	}
	return sum / float32(len(truth))
}

// RMSE is the root of the mean of squared differences between truth and
// estimates.
func RMSE(truth, estimates []float32) float32 {
	if len(truth) != len(estimates) {
		panic("rating: slice lengths do not match")
	}
	sum := float32(0)
	for i := range truth {
		diff := truth[i] - estimates[i]
		sum += diff * diff
	}
	return math32.Sqrt(sum / float32(len(truth)))
}

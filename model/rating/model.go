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
	"encoding/binary"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/c-bata/goptuna"
	"github.com/chewxy/math32"
	"github.com/juju/errors"
	"github.com/reclab-io/reclab/base"
	"github.com/reclab-io/reclab/base/copier"
	"github.com/reclab-io/reclab/base/encoding"
	"github.com/reclab-io/reclab/base/log"
	"github.com/reclab-io/reclab/base/progress"
	"github.com/reclab-io/reclab/common/floats"
	"github.com/reclab-io/reclab/common/parallel"
	"github.com/reclab-io/reclab/dataset"
	"github.com/reclab-io/reclab/model"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Score is the result of evaluating a rating model on a test set.
type Score struct {
	MAE       float32
	RMSE      float32
	Covered   int
	ColdStart int
	Epochs    int
	Converged bool
}

// GetValue returns the primary metric.
func (score Score) GetValue() float32 {
	return score.MAE
}

func (score Score) ZapFields() []zap.Field {
	return []zap.Field{
		zap.Float32("MAE", score.MAE),
		zap.Float32("RMSE", score.RMSE),
		zap.Int("covered", score.Covered),
		zap.Int("cold_start", score.ColdStart),
		zap.Int("epochs", score.Epochs),
		zap.Bool("converged", score.Converged),
	}
}

// BetterThan checks if the score is better than another. Lower MAE wins and a
// score with undefined MAE never wins.
func (score Score) BetterThan(s Score) bool {
	if math32.IsNaN(score.MAE) {
		return false
	} else if math32.IsNaN(s.MAE) {
		return true
	}
	return score.MAE < s.MAE
}

type FitConfig struct {
	Jobs      int
	Verbose   int
	ColdStart ColdStartPolicy
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:      1,
		Verbose:   10,
		ColdStart: DropColdStart,
	}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

func (config *FitConfig) SetColdStart(policy ColdStartPolicy) *FitConfig {
	config.ColdStart = policy
	return config
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

type Model interface {
	model.Model
	// Fit a model with a train set and parameters.
	Fit(ctx context.Context, trainSet, valSet *dataset.Table, config *FitConfig) Score
	// GetItemIndex returns item index.
	GetItemIndex() *dataset.FreqDict
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
	// GetUserFactor returns latent factor of a user.
	GetUserFactor(userIndex int32) []float32
	// GetItemFactor returns latent factor of an item.
	GetItemFactor(itemIndex int32) []float32
}

type MatrixFactorization interface {
	Model
	// Predict the rating given by a user (userId) to a item (itemId).
	Predict(userId, itemId string) float32
	// internalPredict predicts rating given by a user index and a item index.
	internalPredict(userIndex, itemIndex int32) float32
	// GetUserIndex returns user index.
	GetUserIndex() *dataset.FreqDict
	// GetItemIndex returns item index.
	GetItemIndex() *dataset.FreqDict
	// IsUserPredictable returns false if user has no rating and its embedding vector never be trained.
	IsUserPredictable(userIndex int32) bool
	// IsItemPredictable returns false if item has no rating and its embedding vector never be trained.
	IsItemPredictable(itemIndex int32) bool
	// SuggestParams suggests hyper-parameters for hyper-parameter optimization.
	SuggestParams(trial goptuna.Trial) model.Params
	// Marshal model into byte stream.
	Marshal(w io.Writer) error
	// Unmarshal model from byte stream.
	Unmarshal(r io.Reader) error
}

type BaseMatrixFactorization struct {
	model.BaseModel
	UserIndex       *dataset.FreqDict
	ItemIndex       *dataset.FreqDict
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	UserFactor [][]float32 // p_u
	ItemFactor [][]float32 // q_i
}

func (baseModel *BaseMatrixFactorization) Init(trainSet *dataset.Table) {
	baseModel.UserIndex = trainSet.GetUserDict()
	baseModel.ItemIndex = trainSet.GetItemDict()
	// set user trained flags
	baseModel.UserPredictable = bitset.New(uint(baseModel.UserIndex.Count()))
	for userIndex := int32(0); userIndex < baseModel.UserIndex.Count(); userIndex++ {
		if items, _ := trainSet.UserRatings(userIndex); len(items) > 0 {
			baseModel.UserPredictable.Set(uint(userIndex))
		}
	}
	// set item trained flags
	baseModel.ItemPredictable = bitset.New(uint(baseModel.ItemIndex.Count()))
	for itemIndex := int32(0); itemIndex < baseModel.ItemIndex.Count(); itemIndex++ {
		if users, _ := trainSet.ItemRatings(itemIndex); len(users) > 0 {
			baseModel.ItemPredictable.Set(uint(itemIndex))
		}
	}
}

func (baseModel *BaseMatrixFactorization) GetUserIndex() *dataset.FreqDict {
	return baseModel.UserIndex
}

func (baseModel *BaseMatrixFactorization) GetItemIndex() *dataset.FreqDict {
	return baseModel.ItemIndex
}

// IsUserPredictable returns false if user has no rating and its embedding vector never be trained.
func (baseModel *BaseMatrixFactorization) IsUserPredictable(userIndex int32) bool {
	if userIndex >= baseModel.UserIndex.Count() || userIndex < 0 {
		return false
	}
	return baseModel.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if item has no rating and its embedding vector never be trained.
func (baseModel *BaseMatrixFactorization) IsItemPredictable(itemIndex int32) bool {
	if itemIndex >= baseModel.ItemIndex.Count() || itemIndex < 0 {
		return false
	}
	return baseModel.ItemPredictable.Test(uint(itemIndex))
}

// GetUserFactor returns the latent factor of a user.
func (baseModel *BaseMatrixFactorization) GetUserFactor(userIndex int32) []float32 {
	return baseModel.UserFactor[userIndex]
}

// GetItemFactor returns the latent factor of an item.
func (baseModel *BaseMatrixFactorization) GetItemFactor(itemIndex int32) []float32 {
	return baseModel.ItemFactor[itemIndex]
}

func (baseModel *BaseMatrixFactorization) Predict(userId, itemId string) float32 {
	// Convert sparse Names to dense Names
	userIndex := baseModel.UserIndex.Id(userId)
	itemIndex := baseModel.ItemIndex.Id(itemId)
	if userIndex < 0 {
		log.Logger().Warn("unknown user", zap.String("user_id", userId))
	}
	if itemIndex < 0 {
		log.Logger().Warn("unknown item", zap.String("item_id", itemId))
	}
	return baseModel.internalPredict(userIndex, itemIndex)
}

func (baseModel *BaseMatrixFactorization) internalPredict(userIndex, itemIndex int32) float32 {
	ret := float32(0.0)
	if itemIndex >= 0 && userIndex >= 0 {
		ret = floats.Dot(baseModel.UserFactor[userIndex], baseModel.ItemFactor[itemIndex])
	} else {
		log.Logger().Warn("unknown user or item")
	}
	return ret
}

// Marshal model into byte stream.
func (baseModel *BaseMatrixFactorization) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, baseModel.Params); err != nil {
		return errors.Trace(err)
	}
	// write indices
	for _, index := range []*dataset.FreqDict{baseModel.UserIndex, baseModel.ItemIndex} {
		buf, err := index.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, buf); err != nil {
			return errors.Trace(err)
		}
	}
	// write predictable flags
	for _, flags := range []*bitset.BitSet{baseModel.UserPredictable, baseModel.ItemPredictable} {
		buf, err := flags.MarshalBinary()
		if err != nil {
			return errors.Trace(err)
		}
		if err = encoding.WriteBytes(w, buf); err != nil {
			return errors.Trace(err)
		}
	}
	// write latent factors
	for _, factor := range [][][]float32{baseModel.UserFactor, baseModel.ItemFactor} {
		var cols int64
		if len(factor) > 0 {
			cols = int64(len(factor[0]))
		}
		if err := binary.Write(w, binary.LittleEndian, int64(len(factor))); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, cols); err != nil {
			return errors.Trace(err)
		}
		if err := encoding.WriteMatrix(w, factor); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal model from byte stream.
func (baseModel *BaseMatrixFactorization) Unmarshal(r io.Reader) error {
	// read params
	if err := encoding.ReadGob(r, &baseModel.Params); err != nil {
		return errors.Trace(err)
	}
	// read indices
	baseModel.UserIndex = dataset.NewFreqDict()
	baseModel.ItemIndex = dataset.NewFreqDict()
	for _, index := range []*dataset.FreqDict{baseModel.UserIndex, baseModel.ItemIndex} {
		buf, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		if err = index.UnmarshalBinary(buf); err != nil {
			return errors.Trace(err)
		}
	}
	// read predictable flags
	baseModel.UserPredictable = new(bitset.BitSet)
	baseModel.ItemPredictable = new(bitset.BitSet)
	for _, flags := range []*bitset.BitSet{baseModel.UserPredictable, baseModel.ItemPredictable} {
		buf, err := encoding.ReadBytes(r)
		if err != nil {
			return errors.Trace(err)
		}
		if err = flags.UnmarshalBinary(buf); err != nil {
			return errors.Trace(err)
		}
	}
	// read latent factors
	for _, factor := range []*[][]float32{&baseModel.UserFactor, &baseModel.ItemFactor} {
		var rows, cols int64
		if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
			return errors.Trace(err)
		}
		*factor = base.NewMatrix32(int(rows), int(cols))
		if err := encoding.ReadMatrix(r, *factor); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (baseModel *BaseMatrixFactorization) Clear() {
	baseModel.UserIndex = nil
	baseModel.ItemIndex = nil
	baseModel.ItemFactor = nil
	baseModel.UserFactor = nil
}

func (baseModel *BaseMatrixFactorization) Invalid() bool {
	return baseModel == nil ||
		baseModel.UserIndex == nil ||
		baseModel.ItemIndex == nil ||
		baseModel.ItemFactor == nil ||
		baseModel.UserFactor == nil
}

// Clone a model with deep copy.
func Clone(m MatrixFactorization) MatrixFactorization {
	var copied MatrixFactorization
	if err := copier.Copy(&copied, m); err != nil {
		panic(err)
	} else {
		copied.SetParams(copied.GetParams())
		return copied
	}
}

func GetModelName(m Model) string {
	switch m.(type) {
	case *ALS:
		return "als"
	case *SVD:
		return "svd"
	default:
		return reflect.TypeOf(m).String()
	}
}

func MarshalModel(w io.Writer, m Model) error {
	if err := encoding.WriteString(w, GetModelName(m)); err != nil {
		return errors.Trace(err)
	}
	if err := m.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

func UnmarshalModel(r io.Reader) (MatrixFactorization, error) {
	name, err := encoding.ReadString(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch name {
	case "als":
		var als ALS
		if err := als.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &als, nil
	case "svd":
		var svd SVD
		if err := svd.Unmarshal(r); err != nil {
			return nil, errors.Trace(err)
		}
		return &svd, nil
	}
	return nil, fmt.Errorf("unknown model %v", name)
}

// ALS is the alternating least squares algorithm for explicit feedback. Latent
// factors are fitted by minimizing the regularized squared error
//
//	\sum_{(u,i)} (r_{ui} - p_u^T q_i)^2 + \lambda (\sum_u ||p_u||^2 + \sum_i ||q_i||^2)
//
// where each alternation step solves the normal equations of one side while
// the other side stays fixed:
//
//	p_u = (\sum_{i \in R_u} q_i q_i^T + \lambda I)^{-1} \sum_{i \in R_u} r_{ui} q_i
//
// Hyper-parameters:
//
//	Reg        - The regularization parameter. Default is 0.1.
//	NFactors   - The number of latent factors. Default is 16.
//	NEpochs    - The maximum number of alternation steps. Default is 20.
//	InitMean   - The mean of initial latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial latent factors. Default is 0.1.
//	Tol        - The tolerance on the relative cost improvement. Default is 1e-4.
type ALS struct {
	BaseMatrixFactorization
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float32
	initMean   float32
	initStdDev float32
	tol        float32
}

// NewALS creates an ALS model.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params model.Params) {
	als.BaseMatrixFactorization.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 16)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 20)
	als.reg = als.Params.GetFloat32(model.Reg, 0.1)
	als.initMean = als.Params.GetFloat32(model.InitMean, 0)
	als.initStdDev = als.Params.GetFloat32(model.InitStdDev, 0.1)
	als.tol = als.Params.GetFloat32(model.Tol, 1e-4)
}

func (als *ALS) GetParamsGrid(withSize bool) model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors:   lo.If(withSize, []interface{}{8, 16, 32, 64}).Else([]interface{}{16}),
		model.InitMean:   []interface{}{0},
		model.InitStdDev: []interface{}{0.001, 0.005, 0.01, 0.05, 0.1},
		model.Reg:        []interface{}{0.01, 0.05, 0.1, 0.5, 1},
	}
}

func (als *ALS) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors:   lo.Must(trial.SuggestInt(string(model.NFactors), 8, 64)),
		model.Reg:        lo.Must(trial.SuggestLogFloat(string(model.Reg), 0.001, 1)),
		model.InitMean:   0,
		model.InitStdDev: lo.Must(trial.SuggestLogFloat(string(model.InitStdDev), 0.001, 0.1)),
	}
}

func (als *ALS) Init(trainSet *dataset.Table) {
	// Initialize
	newUserFactor := als.GetRandomGenerator().NormalMatrix(trainSet.CountUsers(), als.nFactors, als.initMean, als.initStdDev)
	newItemFactor := als.GetRandomGenerator().NormalMatrix(trainSet.CountItems(), als.nFactors, als.initMean, als.initStdDev)
	// Initialize base
	als.UserFactor = newUserFactor
	als.ItemFactor = newItemFactor
	als.BaseMatrixFactorization.Init(trainSet)
}

// Fit the ALS model. Rows without ratings keep their random initialization and
// stay unpredictable.
func (als *ALS) Fit(ctx context.Context, trainSet, valSet *dataset.Table, config *FitConfig) Score {
	config = config.LoadDefaultIfNil()
	log.Logger().Info("fit als",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("validate_set_size", valSet.Count()),
		zap.Any("params", als.GetParams()),
		zap.Any("config", config))
	als.Init(trainSet)
	if trainSet.CountUsers() == 0 || trainSet.CountItems() == 0 {
		log.Logger().Warn("train set is empty")
		return Score{MAE: math32.NaN(), RMSE: math32.NaN()}
	}
	// Create temporary matrices
	temp1 := make([]*mat.Dense, config.Jobs)
	temp2 := make([]*mat.VecDense, config.Jobs)
	a := make([]*mat.Dense, config.Jobs)
	for i := 0; i < config.Jobs; i++ {
		temp1[i] = mat.NewDense(als.nFactors, als.nFactors, nil)
		temp2[i] = mat.NewVecDense(als.nFactors, nil)
		a[i] = mat.NewDense(als.nFactors, als.nFactors, nil)
	}
	regs := make([]float64, als.nFactors)
	for i := range regs {
		regs[i] = float64(als.reg)
	}
	regI := mat.NewDiagDense(als.nFactors, regs)
	// evaluate initial model
	evalStart := time.Now()
	score, _ := Evaluate(als, valSet, config.ColdStart, config.Jobs)
	evalTime := time.Since(evalStart)
	log.Logger().Debug(fmt.Sprintf("fit als %v/%v", 0, als.nEpochs),
		zap.String("eval_time", evalTime.String()),
		zap.Float32("MAE", score.MAE),
		zap.Float32("RMSE", score.RMSE))

	converged := false
	lastCost := float64(0)
	epoch := 0
	ctx, span := progress.Start(ctx, "ALS.Fit", als.nEpochs)
	for epoch = 1; epoch <= als.nEpochs; epoch++ {
		if ctx.Err() != nil {
			break
		}
		fitStart := time.Now()
		// Update user factors
		itemFactor64 := factor64(als.ItemFactor, als.nFactors)
		_ = parallel.Parallel(ctx, trainSet.CountUsers(), config.Jobs, func(workerId, userIndex int) error {
			items, ratings := trainSet.UserRatings(int32(userIndex))
			if len(items) == 0 {
				return nil
			}
			// a_u = \sum_{i \in R_u} q_i q_i^T + \lambda I
			// b_u = \sum_{i \in R_u} r_{ui} q_i
			a[workerId].Zero()
			b := mat.NewVecDense(als.nFactors, nil)
			for position, itemIndex := range items {
				row := itemFactor64.RowView(int(itemIndex))
				temp1[workerId].Outer(1, row, row)
				a[workerId].Add(a[workerId], temp1[workerId])
				b.AddScaledVec(b, float64(ratings[position]), row)
			}
			a[workerId].Add(a[workerId], regI)
			if err := solve(a[workerId], b, temp1[workerId], temp2[workerId]); err != nil {
				log.Logger().Error("failed to solve linear system", zap.Error(err))
				return nil
			}
			for f := 0; f < als.nFactors; f++ {
				als.UserFactor[userIndex][f] = float32(temp2[workerId].AtVec(f))
			}
			return nil
		})
		// Update item factors
		userFactor64 := factor64(als.UserFactor, als.nFactors)
		_ = parallel.Parallel(ctx, trainSet.CountItems(), config.Jobs, func(workerId, itemIndex int) error {
			users, ratings := trainSet.ItemRatings(int32(itemIndex))
			if len(users) == 0 {
				return nil
			}
			// a_i = \sum_{u \in R_i} p_u p_u^T + \lambda I
			// b_i = \sum_{u \in R_i} r_{ui} p_u
			a[workerId].Zero()
			b := mat.NewVecDense(als.nFactors, nil)
			for position, userIndex := range users {
				row := userFactor64.RowView(int(userIndex))
				temp1[workerId].Outer(1, row, row)
				a[workerId].Add(a[workerId], temp1[workerId])
				b.AddScaledVec(b, float64(ratings[position]), row)
			}
			a[workerId].Add(a[workerId], regI)
			if err := solve(a[workerId], b, temp1[workerId], temp2[workerId]); err != nil {
				log.Logger().Error("failed to solve linear system", zap.Error(err))
				return nil
			}
			for f := 0; f < als.nFactors; f++ {
				als.ItemFactor[itemIndex][f] = float32(temp2[workerId].AtVec(f))
			}
			return nil
		})
		fitTime := time.Since(fitStart)
		// Compute the regularized squared error
		cost := make([]float64, config.Jobs)
		_ = parallel.Parallel(ctx, trainSet.CountUsers(), config.Jobs, func(workerId, userIndex int) error {
			items, ratings := trainSet.UserRatings(int32(userIndex))
			for position, itemIndex := range items {
				residual := float64(ratings[position] - als.internalPredict(int32(userIndex), itemIndex))
				cost[workerId] += residual * residual
			}
			if len(items) > 0 {
				cost[workerId] += float64(als.reg) * float64(floats.Dot(als.UserFactor[userIndex], als.UserFactor[userIndex]))
			}
			return nil
		})
		for itemIndex := 0; itemIndex < trainSet.CountItems(); itemIndex++ {
			if users, _ := trainSet.ItemRatings(int32(itemIndex)); len(users) > 0 {
				cost[0] += float64(als.reg) * float64(floats.Dot(als.ItemFactor[itemIndex], als.ItemFactor[itemIndex]))
			}
		}
		currentCost := lo.Sum(cost)
		if epoch > 1 && lastCost-currentCost <= float64(als.tol)*lastCost {
			converged = true
		}
		lastCost = currentCost
		if epoch%config.Verbose == 0 || epoch == als.nEpochs || converged {
			evalStart = time.Now()
			score, _ = Evaluate(als, valSet, config.ColdStart, config.Jobs)
			evalTime = time.Since(evalStart)
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", epoch, als.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float64("cost", currentCost),
				zap.Float32("MAE", score.MAE),
				zap.Float32("RMSE", score.RMSE))
		}
		span.Add(1)
		if converged {
			log.Logger().Info("als converged",
				zap.Int("epoch", epoch),
				zap.Float64("cost", currentCost))
			break
		}
	}
	span.End()
	if converged {
		score.Epochs = epoch
	} else {
		score.Epochs = als.nEpochs
		log.Logger().Warn("als stopped before convergence",
			zap.Int("n_epochs", als.nEpochs),
			zap.Float32("tol", als.tol),
			zap.Float64("cost", lastCost))
	}
	score.Converged = converged
	log.Logger().Info("fit als complete", score.ZapFields()...)
	return score
}

// Marshal model into byte stream.
func (als *ALS) Marshal(w io.Writer) error {
	if err := als.BaseMatrixFactorization.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (als *ALS) Unmarshal(r io.Reader) error {
	if err := als.BaseMatrixFactorization.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	als.SetParams(als.Params)
	return nil
}

// SVD is the biased matrix factorization algorithm popularized during the
// Netflix prize. The rating given by a user (u) to an item (i) is estimated by
//
//	\hat r_{ui} = \mu + b_u + b_i + p_u^T q_i
//
// and parameters are fitted by stochastic gradient descent on the regularized
// squared error. Hyper-parameters:
//
//	Lr         - The learning rate of SGD. Default is 0.005.
//	Reg        - The regularization parameter. Default is 0.02.
//	NFactors   - The number of latent factors. Default is 16.
//	NEpochs    - The maximum number of epochs. Default is 100.
//	InitMean   - The mean of initial latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial latent factors. Default is 0.1.
//	Tol        - The tolerance on the relative cost improvement. Default is 1e-5.
type SVD struct {
	BaseMatrixFactorization
	// Model parameters
	UserBias   []float32 // b_u
	ItemBias   []float32 // b_i
	GlobalMean float32   // mu
	// Hyper parameters
	nFactors   int
	nEpochs    int
	lr         float32
	reg        float32
	initMean   float32
	initStdDev float32
	tol        float32
}

// NewSVD creates a SVD model.
func NewSVD(params model.Params) *SVD {
	svd := new(SVD)
	svd.SetParams(params)
	return svd
}

// SetParams sets hyper-parameters for the SVD model.
func (svd *SVD) SetParams(params model.Params) {
	svd.BaseMatrixFactorization.SetParams(params)
	svd.nFactors = svd.Params.GetInt(model.NFactors, 16)
	svd.nEpochs = svd.Params.GetInt(model.NEpochs, 100)
	svd.lr = svd.Params.GetFloat32(model.Lr, 0.005)
	svd.reg = svd.Params.GetFloat32(model.Reg, 0.02)
	svd.initMean = svd.Params.GetFloat32(model.InitMean, 0)
	svd.initStdDev = svd.Params.GetFloat32(model.InitStdDev, 0.1)
	svd.tol = svd.Params.GetFloat32(model.Tol, 1e-5)
}

func (svd *SVD) GetParamsGrid(withSize bool) model.ParamsGrid {
	return model.ParamsGrid{
		model.NFactors:   lo.If(withSize, []interface{}{8, 16, 32, 64}).Else([]interface{}{16}),
		model.Lr:         []interface{}{0.001, 0.005, 0.01},
		model.Reg:        []interface{}{0.01, 0.02, 0.05, 0.1},
		model.InitMean:   []interface{}{0},
		model.InitStdDev: []interface{}{0.001, 0.005, 0.01, 0.05, 0.1},
	}
}

func (svd *SVD) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.NFactors:   16,
		model.Lr:         lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.001, 0.1)),
		model.Reg:        lo.Must(trial.SuggestLogFloat(string(model.Reg), 0.001, 0.1)),
		model.InitMean:   0,
		model.InitStdDev: lo.Must(trial.SuggestLogFloat(string(model.InitStdDev), 0.001, 0.1)),
	}
}

func (svd *SVD) Init(trainSet *dataset.Table) {
	// Initialize
	svd.GlobalMean = trainSet.Mean()
	svd.UserBias = make([]float32, trainSet.CountUsers())
	svd.ItemBias = make([]float32, trainSet.CountItems())
	svd.UserFactor = svd.GetRandomGenerator().NormalMatrix(trainSet.CountUsers(), svd.nFactors, svd.initMean, svd.initStdDev)
	svd.ItemFactor = svd.GetRandomGenerator().NormalMatrix(trainSet.CountItems(), svd.nFactors, svd.initMean, svd.initStdDev)
	// Initialize base
	svd.BaseMatrixFactorization.Init(trainSet)
}

func (svd *SVD) Predict(userId, itemId string) float32 {
	// Convert sparse Names to dense Names
	userIndex := svd.UserIndex.Id(userId)
	itemIndex := svd.ItemIndex.Id(itemId)
	if userIndex < 0 {
		log.Logger().Warn("unknown user", zap.String("user_id", userId))
	}
	if itemIndex < 0 {
		log.Logger().Warn("unknown item", zap.String("item_id", itemId))
	}
	return svd.internalPredict(userIndex, itemIndex)
}

func (svd *SVD) internalPredict(userIndex, itemIndex int32) float32 {
	ret := svd.GlobalMean
	// + b_u
	if userIndex >= 0 {
		ret += svd.UserBias[userIndex]
	}
	// + b_i
	if itemIndex >= 0 {
		ret += svd.ItemBias[itemIndex]
	}
	// + p_u^T q_i
	if userIndex >= 0 && itemIndex >= 0 {
		ret += floats.Dot(svd.UserFactor[userIndex], svd.ItemFactor[itemIndex])
	}
	return ret
}

// Fit the SVD model. Biases and factors are updated hogwild style so epochs
// are not bit-reproducible across different job counts.
func (svd *SVD) Fit(ctx context.Context, trainSet, valSet *dataset.Table, config *FitConfig) Score {
	config = config.LoadDefaultIfNil()
	log.Logger().Info("fit svd",
		zap.Int("train_set_size", trainSet.Count()),
		zap.Int("validate_set_size", valSet.Count()),
		zap.Any("params", svd.GetParams()),
		zap.Any("config", config))
	svd.Init(trainSet)
	if trainSet.CountUsers() == 0 || trainSet.CountItems() == 0 {
		log.Logger().Warn("train set is empty")
		return Score{MAE: math32.NaN(), RMSE: math32.NaN()}
	}
	// Create buffers
	temp := base.NewMatrix32(config.Jobs, svd.nFactors)
	userFactor := base.NewMatrix32(config.Jobs, svd.nFactors)
	itemFactor := base.NewMatrix32(config.Jobs, svd.nFactors)
	users, items, ratings := trainSet.GetUsers(), trainSet.GetItems(), trainSet.GetRatings()
	// evaluate initial model
	evalStart := time.Now()
	score, _ := Evaluate(svd, valSet, config.ColdStart, config.Jobs)
	evalTime := time.Since(evalStart)
	log.Logger().Debug(fmt.Sprintf("fit svd %v/%v", 0, svd.nEpochs),
		zap.String("eval_time", evalTime.String()),
		zap.Float32("MAE", score.MAE),
		zap.Float32("RMSE", score.RMSE))

	converged := false
	lastCost := float32(0)
	epoch := 0
	ctx, span := progress.Start(ctx, "SVD.Fit", svd.nEpochs)
	for epoch = 1; epoch <= svd.nEpochs; epoch++ {
		if ctx.Err() != nil {
			break
		}
		fitStart := time.Now()
		cost := make([]float32, config.Jobs)
		_ = parallel.Parallel(ctx, trainSet.Count(), config.Jobs, func(workerId, jobId int) error {
			userIndex, itemIndex := users[jobId], items[jobId]
			// Compute error: e_{ui} = r_{ui} - \hat r_{ui}
			upGrad := ratings[jobId] - svd.internalPredict(userIndex, itemIndex)
			cost[workerId] += upGrad * upGrad
			// Update user bias: b_u <- b_u + \gamma (e_{ui} - \lambda b_u)
			svd.UserBias[userIndex] += svd.lr * (upGrad - svd.reg*svd.UserBias[userIndex])
			// Update item bias: b_i <- b_i + \gamma (e_{ui} - \lambda b_i)
			svd.ItemBias[itemIndex] += svd.lr * (upGrad - svd.reg*svd.ItemBias[itemIndex])
			copy(userFactor[workerId], svd.UserFactor[userIndex])
			copy(itemFactor[workerId], svd.ItemFactor[itemIndex])
			// Update user latent factor: p_u <- p_u + \gamma (e_{ui} q_i - \lambda p_u)
			floats.MulConstTo(itemFactor[workerId], upGrad, temp[workerId])
			floats.MulConstAdd(userFactor[workerId], -svd.reg, temp[workerId])
			floats.MulConstAdd(temp[workerId], svd.lr, svd.UserFactor[userIndex])
			// Update item latent factor: q_i <- q_i + \gamma (e_{ui} p_u - \lambda q_i)
			floats.MulConstTo(userFactor[workerId], upGrad, temp[workerId])
			floats.MulConstAdd(itemFactor[workerId], -svd.reg, temp[workerId])
			floats.MulConstAdd(temp[workerId], svd.lr, svd.ItemFactor[itemIndex])
			return nil
		})
		fitTime := time.Since(fitStart)
		currentCost := lo.Sum(cost)
		if epoch > 1 && lastCost-currentCost <= svd.tol*lastCost {
			converged = true
		}
		lastCost = currentCost
		if epoch%config.Verbose == 0 || epoch == svd.nEpochs || converged {
			evalStart = time.Now()
			score, _ = Evaluate(svd, valSet, config.ColdStart, config.Jobs)
			evalTime = time.Since(evalStart)
			log.Logger().Debug(fmt.Sprintf("fit svd %v/%v", epoch, svd.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.String("eval_time", evalTime.String()),
				zap.Float32("cost", currentCost),
				zap.Float32("MAE", score.MAE),
				zap.Float32("RMSE", score.RMSE))
		}
		span.Add(1)
		if converged {
			log.Logger().Info("svd converged",
				zap.Int("epoch", epoch),
				zap.Float32("cost", currentCost))
			break
		}
	}
	span.End()
	if converged {
		score.Epochs = epoch
	} else {
		score.Epochs = svd.nEpochs
		log.Logger().Warn("svd stopped before convergence",
			zap.Int("n_epochs", svd.nEpochs),
			zap.Float32("tol", svd.tol),
			zap.Float32("cost", lastCost))
	}
	score.Converged = converged
	log.Logger().Info("fit svd complete", score.ZapFields()...)
	return score
}

func (svd *SVD) Clear() {
	svd.BaseMatrixFactorization.Clear()
	svd.UserBias = nil
	svd.ItemBias = nil
	svd.GlobalMean = 0
}

func (svd *SVD) Invalid() bool {
	return svd == nil ||
		svd.BaseMatrixFactorization.Invalid() ||
		svd.UserBias == nil ||
		svd.ItemBias == nil
}

// Marshal model into byte stream.
func (svd *SVD) Marshal(w io.Writer) error {
	if err := svd.BaseMatrixFactorization.Marshal(w); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, svd.GlobalMean); err != nil {
		return errors.Trace(err)
	}
	for _, bias := range [][]float32{svd.UserBias, svd.ItemBias} {
		if err := binary.Write(w, binary.LittleEndian, int64(len(bias))); err != nil {
			return errors.Trace(err)
		}
		if err := binary.Write(w, binary.LittleEndian, bias); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Unmarshal model from byte stream.
func (svd *SVD) Unmarshal(r io.Reader) error {
	if err := svd.BaseMatrixFactorization.Unmarshal(r); err != nil {
		return errors.Trace(err)
	}
	svd.SetParams(svd.Params)
	if err := binary.Read(r, binary.LittleEndian, &svd.GlobalMean); err != nil {
		return errors.Trace(err)
	}
	for _, bias := range []*[]float32{&svd.UserBias, &svd.ItemBias} {
		var size int64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return errors.Trace(err)
		}
		*bias = make([]float32, size)
		if err := binary.Read(r, binary.LittleEndian, *bias); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// factor64 converts latent factors to a 64-bit matrix for gonum.
func factor64(factor [][]float32, nFactors int) *mat.Dense {
	data := make([]float64, len(factor)*nFactors)
	for i, row := range factor {
		for j, v := range row {
			data[i*nFactors+j] = float64(v)
		}
	}
	return mat.NewDense(len(factor), nFactors, data)
}

// solve finds x in a x = b via inversion. Singular systems fall back to the
// minimum-norm least squares solution.
func solve(a *mat.Dense, b *mat.VecDense, inverse *mat.Dense, x *mat.VecDense) error {
	if err := inverse.Inverse(a); err == nil {
		x.MulVec(inverse, b)
		return nil
	}
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return errors.New("failed to factorize matrix")
	}
	rank := svd.Rank(1e-10)
	if rank == 0 {
		x.Zero()
		return nil
	}
	svd.SolveVecTo(x, b, rank)
	return nil
}

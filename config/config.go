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

package config

import (
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/juju/errors"
	"github.com/reclab-io/reclab/model"
	"github.com/reclab-io/reclab/model/rating"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration for an experiment run.
type Config struct {
	Data   DataConfig   `mapstructure:"data"`
	Split  SplitConfig  `mapstructure:"split"`
	Model  ModelConfig  `mapstructure:"model"`
	Grid   GridConfig   `mapstructure:"grid"`
	Search SearchConfig `mapstructure:"search"`
	Fit    FitConfig    `mapstructure:"fit"`
	Output OutputConfig `mapstructure:"output"`
}

// DataConfig describes the rating source. Exactly one of Path, Name and
// Synthetic must be set.
type DataConfig struct {
	Path      string          `mapstructure:"path"`
	Name      string          `mapstructure:"name"`
	Separator string          `mapstructure:"separator"`
	Header    bool            `mapstructure:"header"`
	Filter    string          `mapstructure:"filter"`
	Synthetic SyntheticConfig `mapstructure:"synthetic"`
}

// SyntheticConfig generates a random rating table instead of reading one.
type SyntheticConfig struct {
	Users int   `mapstructure:"users" validate:"gte=0"`
	Items int   `mapstructure:"items" validate:"gte=0"`
	Count int   `mapstructure:"count" validate:"gte=0"`
	Seed  int64 `mapstructure:"seed"`
}

// SplitConfig describes the train/validation/test partition.
type SplitConfig struct {
	Proportions []float64 `mapstructure:"proportions" validate:"dive,gt=0,lt=1"`
	Seed        int64     `mapstructure:"seed"`
}

// ModelConfig selects the model type.
type ModelConfig struct {
	Type        string `mapstructure:"type" validate:"oneof=als svd"`
	RandomState int    `mapstructure:"random_state"`
}

// GridConfig lists the candidate values of searched hyper-parameters.
type GridConfig struct {
	NFactors   []int     `mapstructure:"n_factors" validate:"omitempty,dive,gt=0"`
	Reg        []float64 `mapstructure:"reg" validate:"omitempty,dive,gte=0"`
	Lr         []float64 `mapstructure:"lr" validate:"omitempty,dive,gt=0"`
	NEpochs    []int     `mapstructure:"n_epochs" validate:"omitempty,dive,gt=0"`
	InitMean   []float64 `mapstructure:"init_mean"`
	InitStdDev []float64 `mapstructure:"init_std" validate:"omitempty,dive,gte=0"`
}

// GetParamsGrid converts the candidate lists to a search grid.
func (config *GridConfig) GetParamsGrid() model.ParamsGrid {
	grid := model.ParamsGrid{}
	if len(config.NFactors) > 0 {
		grid[model.NFactors] = lo.ToAnySlice(config.NFactors)
	}
	if len(config.Reg) > 0 {
		grid[model.Reg] = lo.ToAnySlice(config.Reg)
	}
	if len(config.Lr) > 0 {
		grid[model.Lr] = lo.ToAnySlice(config.Lr)
	}
	if len(config.NEpochs) > 0 {
		grid[model.NEpochs] = lo.ToAnySlice(config.NEpochs)
	}
	if len(config.InitMean) > 0 {
		grid[model.InitMean] = lo.ToAnySlice(config.InitMean)
	}
	if len(config.InitStdDev) > 0 {
		grid[model.InitStdDev] = lo.ToAnySlice(config.InitStdDev)
	}
	return grid
}

// SearchConfig bounds the hyper-parameter search.
type SearchConfig struct {
	Strategy  string `mapstructure:"strategy" validate:"oneof=grid random tpe"`
	NumTrials int    `mapstructure:"n_trials" validate:"gt=0"`
	Jobs      int    `mapstructure:"jobs" validate:"gt=0"`
	Seed      int64  `mapstructure:"seed"`
}

// FitConfig bounds a single fit.
type FitConfig struct {
	NEpochs   int     `mapstructure:"n_epochs" validate:"gte=0"`
	Tol       float64 `mapstructure:"tol" validate:"gte=0"`
	Jobs      int     `mapstructure:"jobs" validate:"gt=0"`
	Verbose   int     `mapstructure:"verbose" validate:"gt=0"`
	ColdStart string  `mapstructure:"cold_start" validate:"oneof=drop report-as-undefined"`
}

// GetFitConfig extracts the fit configuration for the rating models.
func (config *FitConfig) GetFitConfig() *rating.FitConfig {
	return rating.NewFitConfig().
		SetJobs(config.Jobs).
		SetVerbose(config.Verbose).
		SetColdStart(rating.ColdStartPolicy(config.ColdStart))
}

// OutputConfig describes where results are written. Empty paths disable the
// corresponding output.
type OutputConfig struct {
	ResultsStore string `mapstructure:"results_store"`
	Predictions  string `mapstructure:"predictions"`
	ModelDump    string `mapstructure:"model_dump"`
}

// GetParams returns the hyper-parameters fixed outside the search grid. Zero
// values of n_epochs and tol keep the model defaults.
func (config *Config) GetParams() model.Params {
	params := model.Params{model.RandomState: config.Model.RandomState}
	if config.Fit.NEpochs > 0 {
		params[model.NEpochs] = config.Fit.NEpochs
	}
	if config.Fit.Tol > 0 {
		params[model.Tol] = config.Fit.Tol
	}
	return params
}

// GetDefaultConfig returns a default config.
func GetDefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Separator: "\t",
			Header:    true,
		},
		Split: SplitConfig{
			Proportions: []float64{0.8, 0.1, 0.1},
		},
		Model: ModelConfig{
			Type: "als",
		},
		Search: SearchConfig{
			Strategy:  "grid",
			NumTrials: 10,
			Jobs:      1,
		},
		Fit: FitConfig{
			Jobs:      1,
			Verbose:   10,
			ColdStart: string(rating.DropColdStart),
		},
	}
}

func setDefault() {
	defaultConfig := GetDefaultConfig()
	// [data]
	viper.SetDefault("data.separator", defaultConfig.Data.Separator)
	viper.SetDefault("data.header", defaultConfig.Data.Header)
	// [split]
	viper.SetDefault("split.proportions", defaultConfig.Split.Proportions)
	viper.SetDefault("split.seed", defaultConfig.Split.Seed)
	// [model]
	viper.SetDefault("model.type", defaultConfig.Model.Type)
	viper.SetDefault("model.random_state", defaultConfig.Model.RandomState)
	// [search]
	viper.SetDefault("search.strategy", defaultConfig.Search.Strategy)
	viper.SetDefault("search.n_trials", defaultConfig.Search.NumTrials)
	viper.SetDefault("search.jobs", defaultConfig.Search.Jobs)
	viper.SetDefault("search.seed", defaultConfig.Search.Seed)
	// [fit]
	viper.SetDefault("fit.n_epochs", defaultConfig.Fit.NEpochs)
	viper.SetDefault("fit.tol", defaultConfig.Fit.Tol)
	viper.SetDefault("fit.jobs", defaultConfig.Fit.Jobs)
	viper.SetDefault("fit.verbose", defaultConfig.Fit.Verbose)
	viper.SetDefault("fit.cold_start", defaultConfig.Fit.ColdStart)
}

type configBinding struct {
	key string
	env string
}

// LoadConfig loads and validates the configuration from a TOML file.
// Environment variables overwrite values from the file.
func LoadConfig(path string) (*Config, error) {
	// set default config
	setDefault()

	// bind environment variables
	bindings := []configBinding{
		{"data.path", "RECLAB_DATA_PATH"},
		{"data.name", "RECLAB_DATA_NAME"},
		{"search.jobs", "RECLAB_SEARCH_JOBS"},
		{"fit.jobs", "RECLAB_FIT_JOBS"},
		{"output.results_store", "RECLAB_RESULTS_STORE"},
	}
	for _, binding := range bindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}

	// load config file
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return nil, errors.Trace(err)
	}
	var conf Config
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, errors.Trace(err)
	}
	if err := conf.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &conf, nil
}

// Validate checks the configuration and returns a NotValid error on the
// first violation.
func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return errors.NewNotValid(err, "invalid config")
	}
	// exactly one rating source
	sources := 0
	if config.Data.Path != "" {
		sources++
	}
	if config.Data.Name != "" {
		sources++
	}
	if config.Data.Synthetic.Count > 0 {
		sources++
	}
	if sources != 1 {
		return errors.NotValidf("data: exactly one of path, name and synthetic required")
	}
	// the split must cover train, validation and test and sum to one
	if len(config.Split.Proportions) != 3 {
		return errors.NotValidf("split.proportions: expected 3 values, got %d", len(config.Split.Proportions))
	}
	if sum := lo.Sum(config.Split.Proportions); math.Abs(sum-1) > 1e-3 {
		return errors.NotValidf("split.proportions %v: sum %v", config.Split.Proportions, sum)
	}
	// grid and random search need a non-empty grid
	if config.Search.Strategy != "tpe" && len(config.Grid.GetParamsGrid()) == 0 {
		return errors.NotValidf("grid: empty hyper-parameter grid")
	}
	return nil
}

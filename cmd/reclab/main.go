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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/reclab-io/reclab/base/log"
	"github.com/reclab-io/reclab/cmd/version"
	"github.com/reclab-io/reclab/config"
	"github.com/reclab-io/reclab/experiment"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "reclab",
	Short: "Model selection laboratory for rating prediction.",
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the experiment described by a configuration file.",
	Run: func(cmd *cobra.Command, args []string) {
		// setup logger
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)

		// load config
		configPath, _ := cmd.Flags().GetString("config")
		log.Logger().Info("load config", zap.String("config", configPath))
		conf, err := config.LoadConfig(configPath)
		if err != nil {
			log.Logger().Fatal("failed to load config", zap.Error(err))
		}
		if jobs, _ := cmd.Flags().GetInt("jobs"); jobs > 0 {
			conf.Search.Jobs = jobs
			conf.Fit.Jobs = jobs
		}
		if verbose, _ := cmd.Flags().GetInt("verbose"); verbose > 0 {
			conf.Fit.Verbose = verbose
		}

		// run experiment
		report, err := experiment.NewRunner(conf).Run(context.Background())
		if err != nil {
			log.Logger().Fatal("failed to run experiment", zap.Error(err))
		}
		if err = report.Format(os.Stdout); err != nil {
			log.Logger().Fatal("failed to render report", zap.Error(err))
		}
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Check the version of reclab",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.BuildInfo())
	},
}

func init() {
	rootCommand.AddCommand(runCommand)
	rootCommand.AddCommand(versionCommand)
	log.AddFlags(runCommand.Flags())
	runCommand.Flags().Bool("debug", false, "use debug log mode")
	runCommand.Flags().StringP("config", "c", "reclab.toml", "configuration file path")
	runCommand.Flags().IntP("jobs", "j", 0, "override the number of working jobs")
	runCommand.Flags().Int("verbose", 0, "override the epoch interval of progress logs")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}

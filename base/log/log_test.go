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

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLogger(t *testing.T) {
	assert.NotNil(t, Logger())
}

func TestSetLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reclab.log")
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(flagSet)
	assert.NoError(t, flagSet.Set("log-path", path))
	SetLogger(flagSet, false)
	Logger().Info("message in production mode", zap.Int("value", 1))
	content, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "message in production mode")

	// console encoder in debug mode
	SetLogger(flagSet, true)
	Logger().Debug("message in debug mode")
	content, err = os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(content), "message in debug mode")
}

func TestCloseLogger(t *testing.T) {
	CloseLogger()
	assert.False(t, Logger().Core().Enabled(zap.ErrorLevel))
	// restore the default logger for other tests
	logger, _ = zap.NewDevelopment()
}

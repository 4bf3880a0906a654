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

package dataset

import (
	"path/filepath"

	"github.com/juju/errors"
	"github.com/reclab-io/reclab/common/datautil"
)

type builtInDataset struct {
	path string
	opts []Option
}

var builtInDatasets = map[string]builtInDataset{
	// MovieLens: https://grouplens.org/datasets/movielens/
	"ml-100k": {
		path: "ml-100k/u.data",
		opts: []Option{WithSeparator("\t"), WithHeader(false)},
	},
	"ml-1m": {
		path: "ml-1m/ratings.dat",
		opts: []Option{WithSeparator("::"), WithHeader(false)},
	},
}

// LoadBuiltIn loads a built-in dataset by name, downloading it into the
// local cache on first use. Extra options are applied after the ones the
// registry supplies.
func LoadBuiltIn(name string, opts ...Option) (*Table, error) {
	entry, exist := builtInDatasets[name]
	if !exist {
		return nil, errors.NotFoundf("built-in dataset %s", name)
	}
	if _, err := datautil.DownloadAndUnzip(name); err != nil {
		return nil, errors.Trace(err)
	}
	return LoadFromCSV(filepath.Join(datautil.DatasetDir(), entry.path), append(entry.opts, opts...)...)
}

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
	"strconv"

	"github.com/reclab-io/reclab/base"
)

// NewSyntheticTable generates count rating records over a users by items
// grid. User-item pairs are sampled without replacement and ratings are
// uniform in [1, 5). The same seed always generates the same table.
func NewSyntheticTable(users, items, count int, seed int64) *Table {
	rng := base.NewRandomGenerator(seed)
	pairs := rng.Sample(0, users*items, count)
	ratings := rng.UniformVector(len(pairs), 1, 5)
	table := NewTable()
	for i, pair := range pairs {
		table.Add(strconv.Itoa(pair/items), strconv.Itoa(pair%items), ratings[i])
	}
	return table
}

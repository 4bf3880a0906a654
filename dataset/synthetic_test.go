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
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
)

func TestNewSyntheticTable(t *testing.T) {
	table := NewSyntheticTable(10, 10, 100, 0)
	assert.Equal(t, 100, table.Count())
	assert.LessOrEqual(t, table.CountUsers(), 10)
	assert.LessOrEqual(t, table.CountItems(), 10)
	pairs := mapset.NewSet[[2]int32]()
	for i := 0; i < table.Count(); i++ {
		pairs.Add([2]int32{table.GetUsers()[i], table.GetItems()[i]})
	}
	assert.Equal(t, 100, pairs.Cardinality())
	for _, rating := range table.GetRatings() {
		assert.GreaterOrEqual(t, rating, float32(1))
		assert.Less(t, rating, float32(5))
	}
}

func TestNewSyntheticTable_Deterministic(t *testing.T) {
	first := NewSyntheticTable(10, 10, 50, 42)
	second := NewSyntheticTable(10, 10, 50, 42)
	assert.Equal(t, first.GetUsers(), second.GetUsers())
	assert.Equal(t, first.GetItems(), second.GetItems())
	assert.Equal(t, first.GetRatings(), second.GetRatings())
}

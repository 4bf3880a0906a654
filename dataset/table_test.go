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
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	table := NewTable()
	table.Add("1", "a", 5)
	table.Add("1", "b", 3)
	table.Add("2", "a", 1)
	assert.Equal(t, 3, table.Count())
	assert.Equal(t, 2, table.CountUsers())
	assert.Equal(t, 2, table.CountItems())
	assert.Equal(t, float32(3), table.Mean())

	userId, itemId, rating := table.Row(1)
	assert.Equal(t, "1", userId)
	assert.Equal(t, "b", itemId)
	assert.Equal(t, float32(3), rating)

	items, ratings := table.UserRatings(table.GetUserDict().Id("1"))
	assert.Equal(t, []int32{0, 1}, items)
	assert.Equal(t, []float32{5, 3}, ratings)
	users, ratings := table.ItemRatings(table.GetItemDict().Id("a"))
	assert.Equal(t, []int32{0, 1}, users)
	assert.Equal(t, []float32{5, 1}, ratings)

	assert.Equal(t, []int32{0, 0, 1}, table.GetUsers())
	assert.Equal(t, []int32{0, 1, 0}, table.GetItems())
	assert.Equal(t, []float32{5, 3, 1}, table.GetRatings())
}

func TestTable_SubSet(t *testing.T) {
	table := NewTable()
	table.Add("1", "a", 5)
	table.Add("2", "b", 3)
	table.Add("3", "c", 1)
	subset := table.SubSet([]int{2, 0})
	assert.Equal(t, 2, subset.Count())
	userId, itemId, rating := subset.Row(0)
	assert.Equal(t, "3", userId)
	assert.Equal(t, "c", itemId)
	assert.Equal(t, float32(1), rating)
	userId, itemId, rating = subset.Row(1)
	assert.Equal(t, "1", userId)
	assert.Equal(t, "a", itemId)
	assert.Equal(t, float32(5), rating)
	// Indexes are rebuilt from the subset rows only.
	assert.Equal(t, 2, subset.CountUsers())
	assert.Equal(t, int32(-1), subset.GetUserDict().Id("2"))
}

func TestTable_Stats(t *testing.T) {
	table := NewTable()
	table.AddWithTimestamp("1", "a", 5, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	table.AddWithTimestamp("1", "b", 3, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	table.Add("2", "a", 1)
	stats := table.Stats()
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 2, stats.UserCount)
	assert.Equal(t, 2, stats.ItemCount)
	assert.Equal(t, float32(1), stats.MinRating)
	assert.Equal(t, float32(5), stats.MaxRating)
	assert.Equal(t, float32(3), stats.MeanRating)
	assert.InDelta(t, 0.25, stats.Sparsity, 1e-6)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), stats.OldestTimestamp)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), stats.NewestTimestamp)
}

func TestTable_Empty(t *testing.T) {
	table := NewTable()
	assert.Zero(t, table.Count())
	assert.Zero(t, table.Mean())
	stats := table.Stats()
	assert.Zero(t, stats.Sparsity)
	assert.True(t, stats.OldestTimestamp.IsZero())
}

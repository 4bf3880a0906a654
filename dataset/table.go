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
	"time"

	"modernc.org/strutil"
)

// Table is an immutable in-memory store of rating records. Rows are kept in
// insertion order so that identical inputs always produce identical tables.
type Table struct {
	userDict     *FreqDict
	itemDict     *FreqDict
	users        []int32
	items        []int32
	ratings      []float32
	timestamps   []time.Time
	userFeedback [][]int32
	userValues   [][]float32
	itemFeedback [][]int32
	itemValues   [][]float32
	ids          *strutil.Pool
}

func NewTable() *Table {
	return &Table{
		userDict: NewFreqDict(),
		itemDict: NewFreqDict(),
		ids:      strutil.NewPool(),
	}
}

func (t *Table) Add(userId, itemId string, rating float32) {
	t.AddWithTimestamp(userId, itemId, rating, time.Time{})
}

func (t *Table) AddWithTimestamp(userId, itemId string, rating float32, timestamp time.Time) {
	userId = t.ids.Align(userId)
	itemId = t.ids.Align(itemId)
	userIndex := t.userDict.Add(userId)
	itemIndex := t.itemDict.Add(itemId)
	t.users = append(t.users, userIndex)
	t.items = append(t.items, itemIndex)
	t.ratings = append(t.ratings, rating)
	t.timestamps = append(t.timestamps, timestamp)
	if int(userIndex) == len(t.userFeedback) {
		t.userFeedback = append(t.userFeedback, nil)
		t.userValues = append(t.userValues, nil)
	}
	if int(itemIndex) == len(t.itemFeedback) {
		t.itemFeedback = append(t.itemFeedback, nil)
		t.itemValues = append(t.itemValues, nil)
	}
	t.userFeedback[userIndex] = append(t.userFeedback[userIndex], itemIndex)
	t.userValues[userIndex] = append(t.userValues[userIndex], rating)
	t.itemFeedback[itemIndex] = append(t.itemFeedback[itemIndex], userIndex)
	t.itemValues[itemIndex] = append(t.itemValues[itemIndex], rating)
}

func (t *Table) Count() int {
	return len(t.ratings)
}

func (t *Table) CountUsers() int {
	return int(t.userDict.Count())
}

func (t *Table) CountItems() int {
	return int(t.itemDict.Count())
}

func (t *Table) GetUserDict() *FreqDict {
	return t.userDict
}

func (t *Table) GetItemDict() *FreqDict {
	return t.itemDict
}

func (t *Table) GetUsers() []int32 {
	return t.users
}

func (t *Table) GetItems() []int32 {
	return t.items
}

func (t *Table) GetRatings() []float32 {
	return t.ratings
}

// UserRatings returns the item indices rated by a user and the ratings given,
// aligned by position.
func (t *Table) UserRatings(userIndex int32) ([]int32, []float32) {
	return t.userFeedback[userIndex], t.userValues[userIndex]
}

// ItemRatings returns the user indices who rated an item and the ratings
// given, aligned by position.
func (t *Table) ItemRatings(itemIndex int32) ([]int32, []float32) {
	return t.itemFeedback[itemIndex], t.itemValues[itemIndex]
}

// Row returns the i-th rating record with its original string ids.
func (t *Table) Row(i int) (userId, itemId string, rating float32) {
	userId, _ = t.userDict.String(t.users[i])
	itemId, _ = t.itemDict.String(t.items[i])
	return userId, itemId, t.ratings[i]
}

// SubSet creates a new table from the rows selected by indices, in the order
// given. Indexes are rebuilt from scratch so unused ids do not leak into the
// subset.
func (t *Table) SubSet(indices []int) *Table {
	subset := NewTable()
	for _, i := range indices {
		userId, itemId, rating := t.Row(i)
		subset.AddWithTimestamp(userId, itemId, rating, t.timestamps[i])
	}
	return subset
}

func (t *Table) Mean() float32 {
	if len(t.ratings) == 0 {
		return 0
	}
	var sum float32
	for _, rating := range t.ratings {
		sum += rating
	}
	return sum / float32(len(t.ratings))
}

type Stats struct {
	Count           int
	UserCount       int
	ItemCount       int
	MinRating       float32
	MaxRating       float32
	MeanRating      float32
	Sparsity        float64
	OldestTimestamp time.Time
	NewestTimestamp time.Time
}

func (t *Table) Stats() Stats {
	stats := Stats{
		Count:      t.Count(),
		UserCount:  t.CountUsers(),
		ItemCount:  t.CountItems(),
		MeanRating: t.Mean(),
	}
	for i, rating := range t.ratings {
		if i == 0 || rating < stats.MinRating {
			stats.MinRating = rating
		}
		if i == 0 || rating > stats.MaxRating {
			stats.MaxRating = rating
		}
	}
	if stats.UserCount > 0 && stats.ItemCount > 0 {
		stats.Sparsity = 1 - float64(stats.Count)/(float64(stats.UserCount)*float64(stats.ItemCount))
	}
	for _, timestamp := range t.timestamps {
		if timestamp.IsZero() {
			continue
		}
		if stats.OldestTimestamp.IsZero() || timestamp.Before(stats.OldestTimestamp) {
			stats.OldestTimestamp = timestamp
		}
		if stats.NewestTimestamp.IsZero() || timestamp.After(stats.NewestTimestamp) {
			stats.NewestTimestamp = timestamp
		}
	}
	return stats
}

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

package parallel

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"

	"github.com/reclab-io/reclab/base"
)

func TestParallel(t *testing.T) {
	a := base.RangeInt(10000)
	b := make([]int, len(a))
	// multiple threads
	workers := mapset.NewSet[int]()
	err := Parallel(context.Background(), len(a), 4, func(workerId, jobId int) error {
		b[jobId] = a[jobId]
		workers.Add(workerId)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, workers.Cardinality(), 1)
	assert.LessOrEqual(t, workers.Cardinality(), 4)
	// single thread
	workers = mapset.NewSet[int]()
	err = Parallel(context.Background(), len(a), 1, func(workerId, jobId int) error {
		b[jobId] = a[jobId]
		workers.Add(workerId)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, workers.Cardinality())
}

func TestParallelFail(t *testing.T) {
	err := Parallel(context.Background(), 10000, 4, func(workerId, jobId int) error {
		if jobId%2 == 1 {
			return fmt.Errorf("job %v failed", jobId)
		}
		return nil
	})
	assert.Error(t, err)
	err = Parallel(context.Background(), 10000, 1, func(workerId, jobId int) error {
		if jobId%2 == 1 {
			return fmt.Errorf("job %v failed", jobId)
		}
		return nil
	})
	assert.Error(t, err)
}

func TestParallelCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var count atomic.Int64
	err := Parallel(ctx, 10000, 4, func(workerId, jobId int) error {
		count.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count.Load())
	err = Parallel(ctx, 10000, 1, func(workerId, jobId int) error {
		count.Add(1)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, count.Load())
}

func TestBatchParallel(t *testing.T) {
	a := base.RangeInt(10000)
	b := make([]int, len(a))
	// multiple threads
	workers := mapset.NewSet[int]()
	err := BatchParallel(len(a), 4, 128, func(workerId, beginJobId, endJobId int) error {
		for jobId := beginJobId; jobId < endJobId; jobId++ {
			b[jobId] = a[jobId]
		}
		workers.Add(workerId)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, workers.Cardinality(), 1)
	assert.LessOrEqual(t, workers.Cardinality(), 4)
	// single thread
	err = BatchParallel(len(a), 1, 128, func(workerId, beginJobId, endJobId int) error {
		assert.Zero(t, beginJobId)
		assert.Equal(t, len(a), endJobId)
		for jobId := beginJobId; jobId < endJobId; jobId++ {
			b[jobId] = a[jobId]
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBatchParallelFail(t *testing.T) {
	err := BatchParallel(10000, 4, 128, func(workerId, beginJobId, endJobId int) error {
		if beginJobId >= 5000 {
			return fmt.Errorf("batch %v failed", beginJobId)
		}
		return nil
	})
	assert.Error(t, err)
}

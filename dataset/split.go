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
	"math"

	"github.com/juju/errors"
	"github.com/reclab-io/reclab/base"
	"modernc.org/mathutil"
)

// proportionTolerance bounds the allowed deviation of the proportion sum
// from one.
const proportionTolerance = 1e-3

// Split partitions a table into len(proportions) disjoint subsets whose row
// counts are approximately proportional to the requested proportions. Rows
// are assigned by a seeded permutation, so the same seed and the same table
// always reproduce the same partition. The union of the subsets recovers the
// table exactly.
func Split(table *Table, proportions []float64, seed int64) ([]*Table, error) {
	if len(proportions) == 0 {
		return nil, errors.NotValidf("empty proportions")
	}
	sum := 0.0
	for _, proportion := range proportions {
		if proportion <= 0 {
			return nil, errors.NotValidf("proportion %v", proportion)
		}
		sum += proportion
	}
	if math.Abs(sum-1) > proportionTolerance {
		return nil, errors.NotValidf("proportions %v: sum %v", proportions, sum)
	}
	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(table.Count())
	subsets := make([]*Table, len(proportions))
	begin := 0
	for i, proportion := range proportions {
		end := begin + int(float64(table.Count())*proportion)
		end = mathutil.Min(end, table.Count())
		// The last subset takes the rounding remainder so no row is lost.
		if i == len(proportions)-1 {
			end = table.Count()
		}
		subsets[i] = table.SubSet(perm[begin:end])
		begin = end
	}
	return subsets, nil
}

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

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParams_Copy(t *testing.T) {
	// Create parameters
	a := Params{
		NFactors:    1,
		Lr:          float32(0.1),
		RandomState: 0,
	}
	// Create copy
	b := a.Copy()
	b[NFactors] = 2
	b[Lr] = float32(0.2)
	b[RandomState] = 1
	// Check original parameters
	assert.Equal(t, 1, a.GetInt(NFactors, -1))
	assert.Equal(t, float32(0.1), a.GetFloat32(Lr, -0.1))
	assert.Equal(t, int64(0), a.GetInt64(RandomState, -1))
	// Check copy parameters
	assert.Equal(t, 2, b.GetInt(NFactors, -1))
	assert.Equal(t, float32(0.2), b.GetFloat32(Lr, -0.1))
	assert.Equal(t, int64(1), b.GetInt64(RandomState, -1))
}

func TestParams_GetInt(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, -1, p.GetInt(NFactors, -1))
	// Normal case
	p[NFactors] = 0
	assert.Equal(t, 0, p.GetInt(NFactors, -1))
	// Wrong type case
	p[NFactors] = "hello"
	assert.Equal(t, -1, p.GetInt(NFactors, -1))
}

func TestParams_GetInt64(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, int64(-1), p.GetInt64(RandomState, -1))
	// Normal case
	p[RandomState] = int64(0)
	assert.Equal(t, int64(0), p.GetInt64(RandomState, -1))
	// Convert int case
	p[RandomState] = 0
	assert.Equal(t, int64(0), p.GetInt64(RandomState, -1))
	// Wrong type case
	p[RandomState] = "hello"
	assert.Equal(t, int64(-1), p.GetInt64(RandomState, -1))
}

func TestParams_GetFloat32(t *testing.T) {
	p := Params{}
	// Empty case
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
	// Normal case
	p[Lr] = float32(1)
	assert.Equal(t, float32(1), p.GetFloat32(Lr, 0.1))
	// Convert float64 case
	p[Lr] = 1.0
	assert.Equal(t, float32(1), p.GetFloat32(Lr, 0.1))
	// Convert int case
	p[Lr] = 1
	assert.Equal(t, float32(1), p.GetFloat32(Lr, 0.1))
	// Wrong type case
	p[Lr] = "hello"
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
}

func TestParams_Overwrite(t *testing.T) {
	a := Params{
		NFactors: 10,
		Reg:      float32(0.1),
	}
	b := a.Overwrite(Params{
		Reg:     float32(0.2),
		NEpochs: 20,
	})
	assert.Equal(t, 10, b.GetInt(NFactors, -1))
	assert.Equal(t, float32(0.2), b.GetFloat32(Reg, -1))
	assert.Equal(t, 20, b.GetInt(NEpochs, -1))
	// The receiver is unchanged.
	assert.Equal(t, float32(0.1), a.GetFloat32(Reg, -1))
	assert.Equal(t, -1, a.GetInt(NEpochs, -1))
}

func TestParams_ToString(t *testing.T) {
	p := Params{NFactors: 10}
	assert.Equal(t, `{"NFactors":10}`, p.ToString())
}

func TestParamsGrid(t *testing.T) {
	grid := ParamsGrid{
		NFactors: []interface{}{8, 16},
		Reg:      []interface{}{0.01, 0.1, 1.0},
	}
	assert.Equal(t, 6, grid.NumCombinations())
	grid.Fill(ParamsGrid{
		Reg:     []interface{}{0.05},
		NEpochs: []interface{}{10, 20},
	})
	// Existing entries are kept, missing ones are added.
	assert.Equal(t, []interface{}{0.01, 0.1, 1.0}, grid[Reg])
	assert.Equal(t, []interface{}{10, 20}, grid[NEpochs])
	assert.Equal(t, 12, grid.NumCombinations())
	assert.Equal(t, 1, ParamsGrid{}.NumCombinations())
}

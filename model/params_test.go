// Copyright 2020 gorse Project Authors
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

func TestParamsGetters(t *testing.T) {
	p := Params{
		NEpochs:     10,
		Lr:          0.5,
		Persistent:  false,
		RandomState: 42,
	}
	assert.Equal(t, 10, p.GetInt(NEpochs, 5))
	assert.Equal(t, 5, p.GetInt(NHidden, 5))
	assert.Equal(t, float32(0.5), p.GetFloat32(Lr, 0.1))
	assert.Equal(t, false, p.GetBool(Persistent, true))
	assert.Equal(t, int64(42), p.GetInt64(RandomState, 0))
}

func TestParamsTypeConversion(t *testing.T) {
	p := Params{Lr: 1, NEpochs: int64(3), RandomState: int64(7)}
	// int promotes to float32
	assert.Equal(t, float32(1), p.GetFloat32(Lr, 0.1))
	// int64 does not narrow to int
	assert.Equal(t, 5, p.GetInt(NEpochs, 5))
	assert.Equal(t, int64(7), p.GetInt64(RandomState, 0))
}

func TestParamsTypeMismatch(t *testing.T) {
	p := Params{NEpochs: "ten", Persistent: 1, Lr: true}
	assert.Equal(t, 5, p.GetInt(NEpochs, 5))
	assert.Equal(t, true, p.GetBool(Persistent, true))
	assert.Equal(t, float32(0.1), p.GetFloat32(Lr, 0.1))
	assert.Equal(t, int64(0), p.GetInt64(Lr, 0))
}

func TestParamsCopyOverwrite(t *testing.T) {
	a := Params{NEpochs: 10, Lr: 0.1}
	b := a.Copy()
	b[NEpochs] = 20
	assert.Equal(t, 10, a.GetInt(NEpochs, 0))

	merged := a.Overwrite(Params{Lr: 0.5, NHidden: 100})
	assert.Equal(t, 10, merged.GetInt(NEpochs, 0))
	assert.Equal(t, float32(0.5), merged.GetFloat32(Lr, 0))
	assert.Equal(t, 100, merged.GetInt(NHidden, 0))
	// the receiver is left untouched
	assert.Equal(t, float32(0.1), a.GetFloat32(Lr, 0))
	assert.Equal(t, 0, a.GetInt(NHidden, 0))
}

func TestParamsGrid(t *testing.T) {
	grid := ParamsGrid{NHidden: []interface{}{50, 100}}
	grid.Fill(ParamsGrid{
		NHidden: []interface{}{100},
		Lr:      []interface{}{0.01, 0.1},
	})
	assert.Equal(t, 2, grid.Len())
	assert.Equal(t, []interface{}{50, 100}, grid[NHidden])
	assert.Equal(t, []interface{}{0.01, 0.1}, grid[Lr])
}

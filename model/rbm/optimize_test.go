// Copyright 2021 gorse Project Authors
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

package rbm

import (
	"testing"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/boltzmann/model"
	"github.com/stretchr/testify/assert"
)

func TestModelSearch(t *testing.T) {
	d := newSyntheticDataset(t)
	creators := map[string]ModelCreator{
		"rbm": func() *RBM {
			// the suggested ranges leave the batch size alone, so pin it
			// below the user count of the toy set
			return NewRBM(model.Params{
				model.BatchSize:   2,
				model.NEpochs:     2,
				model.Persistent:  false,
				model.RandomState: 42,
			})
		},
	}
	ms := NewModelSearch(creators, d, NewFitConfig().SetVerbose(0))
	study, err := goptuna.CreateStudy("rbm-search",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize))
	assert.NoError(t, err)
	assert.NoError(t, study.Optimize(ms.Objective, 3))

	result := ms.Result()
	assert.Equal(t, "rbm", result.Type)
	assert.NotNil(t, result.Params)
	assert.Less(t, result.Score.Cost, float32(0))

	best, err := study.GetBestValue()
	assert.NoError(t, err)
	assert.Equal(t, float64(result.Score.Cost), best)
}

func TestModelSearchEmpty(t *testing.T) {
	ms := NewModelSearch(nil, newSyntheticDataset(t), NewFitConfig().SetVerbose(0))
	study, err := goptuna.CreateStudy("rbm-search-empty",
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize))
	assert.NoError(t, err)
	assert.Error(t, study.Optimize(ms.Objective, 1))
}

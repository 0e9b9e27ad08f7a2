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
	"context"

	"github.com/c-bata/goptuna"
	"github.com/gorse-io/boltzmann/dataset"
	"github.com/gorse-io/boltzmann/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// SuggestParams samples hyper-parameters from the tuning ranges of
// ParamDetails for one optimization trial.
func (r *RBM) SuggestParams(trial goptuna.Trial) model.Params {
	return model.Params{
		model.Lr:      lo.Must(trial.SuggestLogFloat(string(model.Lr), 0.01, 0.5)),
		model.NEpochs: lo.Must(trial.SuggestStepInt(string(model.NEpochs), 5, 50, 5)),
		model.NHidden: lo.Must(trial.SuggestStepInt(string(model.NHidden), 10, 1000, 10)),
		model.NGibbs:  lo.Must(trial.SuggestInt(string(model.NGibbs), 1, 5)),
	}
}

type ModelCreator func() *RBM

// SearchResult is the best model found by a hyper-parameter search.
type SearchResult struct {
	Type   string
	Params model.Params
	Score  Score
}

// ModelSearch is a goptuna objective over a set of model creators.
type ModelSearch struct {
	modelCreators map[string]ModelCreator
	modelTypes    []string
	trainSet      *dataset.Dataset
	config        *FitConfig
	result        SearchResult
}

func NewModelSearch(models map[string]ModelCreator, trainSet *dataset.Dataset, config *FitConfig) *ModelSearch {
	return &ModelSearch{
		modelCreators: models,
		modelTypes:    lo.Keys(models),
		trainSet:      trainSet,
		config:        config,
	}
}

// Objective fits one trial model and returns its monitoring cost. The cost is
// a negative likelihood proxy, so the study direction is maximize.
func (ms *ModelSearch) Objective(trial goptuna.Trial) (float64, error) {
	if len(ms.modelCreators) == 0 {
		return 0, errors.New("no model to search")
	}
	modelType, err := trial.SuggestCategorical("Model", ms.modelTypes)
	if err != nil {
		return 0, errors.Trace(err)
	}
	m := ms.modelCreators[modelType]()
	m.SetParams(m.GetParams().Overwrite(m.SuggestParams(trial)))
	score, err := m.Fit(context.Background(), ms.trainSet, ms.config)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if ms.result.Params == nil || score.Cost > ms.result.Score.Cost {
		ms.result = SearchResult{
			Type:   modelType,
			Params: m.GetParams(),
			Score:  score,
		}
	}
	return float64(score.Cost), nil
}

func (ms *ModelSearch) Result() SearchResult {
	return ms.result
}

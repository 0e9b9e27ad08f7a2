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
	"github.com/chewxy/math32"
	"github.com/gorse-io/boltzmann/common/floats"
)

func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// softplus computes log(1+exp(x)) without overflowing for large x.
func softplus(x float32) float32 {
	if x > 30 {
		return x
	}
	return math32.Log1p(math32.Exp(x))
}

// logSigmoid computes log(sigmoid(x)) through softplus. The naive
// sigmoid-then-log saturates to log(0) around |x|=30.
func logSigmoid(x float32) float32 {
	return -softplus(-x)
}

// freeEnergy computes the free energy of a visible configuration:
//
//	F(v) = -b_v^T v - \sum_j log(1+exp(W^T v + b_h)_j)
//
// Lower free energy means higher probability under the model.
func (r *RBM) freeEnergy(v []float32) float32 {
	wxb := make([]float32, r.nHidden)
	copy(wxb, r.HiddenBias)
	for i, vi := range v {
		if vi != 0 {
			floats.MulConstAdd(r.Weights[i], vi, wxb)
		}
	}
	var hiddenTerm float32
	for _, x := range wxb {
		hiddenTerm += softplus(x)
	}
	return -hiddenTerm - floats.Dot(v, r.VisibleBias)
}

// propUp propagates a visible configuration to the hidden layer. The
// pre-sigmoid activation is returned next to the probability because the
// probability alone loses the precision needed for a stable cross-entropy.
func (r *RBM) propUp(v []float32) (preActivation, prob []float32) {
	preActivation = make([]float32, r.nHidden)
	copy(preActivation, r.HiddenBias)
	for i, vi := range v {
		if vi != 0 {
			floats.MulConstAdd(r.Weights[i], vi, preActivation)
		}
	}
	prob = make([]float32, r.nHidden)
	for j, x := range preActivation {
		prob[j] = sigmoid(x)
	}
	return
}

// propDown propagates a hidden configuration to the visible layer.
func (r *RBM) propDown(h []float32) (preActivation, prob []float32) {
	preActivation = make([]float32, r.nVisible)
	prob = make([]float32, r.nVisible)
	for i := range preActivation {
		preActivation[i] = r.VisibleBias[i] + floats.Dot(r.Weights[i], h)
		prob[i] = sigmoid(preActivation[i])
	}
	return
}

// sampleHiddenGivenVisible infers the state of hidden units given visible
// units. Every unit is drawn i.i.d. from Bernoulli(prob).
func (r *RBM) sampleHiddenGivenVisible(v []float32) (preActivation, prob, sample []float32) {
	preActivation, prob = r.propUp(v)
	sample = make([]float32, r.nHidden)
	r.GetRandomGenerator().Binomial(prob, sample)
	return
}

// sampleVisibleGivenHidden infers the state of visible units given hidden units.
func (r *RBM) sampleVisibleGivenHidden(h []float32) (preActivation, prob, sample []float32) {
	preActivation, prob = r.propDown(h)
	sample = make([]float32, r.nVisible)
	r.GetRandomGenerator().Binomial(prob, sample)
	return
}

// gibbsStepFromHidden runs one full down-up Gibbs transition starting from a
// hidden sample. All intermediate pre-activations, probabilities and samples
// are returned since both the chain end and the stable reconstruction cost
// need them.
func (r *RBM) gibbsStepFromHidden(h []float32) (visPre, visProb, visSample, hidPre, hidProb, hidSample []float32) {
	visPre, visProb, visSample = r.sampleVisibleGivenHidden(h)
	hidPre, hidProb, hidSample = r.sampleHiddenGivenVisible(visSample)
	return
}

// gibbsStepFromVisible runs one full up-down Gibbs transition starting from a
// visible configuration.
func (r *RBM) gibbsStepFromVisible(v []float32) (hidPre, hidProb, hidSample, visPre, visProb, visSample []float32) {
	hidPre, hidProb, hidSample = r.sampleHiddenGivenVisible(v)
	visPre, visProb, visSample = r.sampleVisibleGivenHidden(hidSample)
	return
}

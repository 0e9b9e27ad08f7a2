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

// cdUpdate runs one step of CD-k or PCD-k on a minibatch and applies the
// parameter updates in place.
//
// The gradient is taken on the free-energy surrogate
//
//	mean(F(batch)) - mean(F(chain end))
//
// holding the chain end constant: the sampling step is not differentiated
// through, which is what makes the estimator contrastive divergence instead
// of an exact log-likelihood gradient.
//
// persistent carries the state of the PCD Gibbs chain, one hidden sample per
// batch row; nil selects plain CD, where the chain restarts from the positive
// phase sample. The updated chain state is returned to the caller instead of
// being stored on the model.
//
// The monitoring cost is a reconstruction cross-entropy for CD and a
// pseudo-likelihood approximation for PCD. Both are proxies: neither is the
// quantity being optimized.
func (r *RBM) cdUpdate(batch [][]float32, lr float32, persistent [][]float32, k int) (cost float32, newPersistent [][]float32) {
	batchSize := len(batch)
	// positive phase
	positiveHiddenProb := make([][]float32, batchSize)
	positiveHiddenSample := make([][]float32, batchSize)
	for b, v := range batch {
		_, positiveHiddenProb[b], positiveHiddenSample[b] = r.sampleHiddenGivenVisible(v)
	}
	// decide how to initialize the chain: for CD, the newly generated hidden
	// sample; for PCD, the old state of the chain
	chainStart := persistent
	if chainStart == nil {
		chainStart = positiveHiddenSample
	}
	// negative phase: k Gibbs steps, only the final states are retained
	negativeVisiblePre := make([][]float32, batchSize)
	negativeVisibleSample := make([][]float32, batchSize)
	negativeHiddenProb := make([][]float32, batchSize)
	negativeHiddenSample := make([][]float32, batchSize)
	for b := range batch {
		h := chainStart[b]
		for step := 0; step < k; step++ {
			negativeVisiblePre[b], _, negativeVisibleSample[b],
				_, negativeHiddenProb[b], negativeHiddenSample[b] = r.gibbsStepFromHidden(h)
			h = negativeHiddenSample[b]
		}
	}
	// monitoring cost is evaluated before the parameters move
	if persistent != nil {
		cost = r.pseudoLikelihoodCost(batch)
		newPersistent = negativeHiddenSample
	} else {
		cost = reconstructionCost(batch, negativeVisiblePre)
	}
	// gradient step: param <- param - lr * grad
	scale := lr / float32(batchSize)
	for b := range batch {
		v0 := batch[b]
		vk := negativeVisibleSample[b]
		for i := 0; i < r.nVisible; i++ {
			if v0[i] != 0 {
				floats.MulConstAdd(positiveHiddenProb[b], scale*v0[i], r.Weights[i])
			}
			if vk[i] != 0 {
				floats.MulConstAdd(negativeHiddenProb[b], -scale*vk[i], r.Weights[i])
			}
		}
		floats.MulConstAdd(v0, scale, r.VisibleBias)
		floats.MulConstAdd(vk, -scale, r.VisibleBias)
		floats.MulConstAdd(positiveHiddenProb[b], scale, r.HiddenBias)
		floats.MulConstAdd(negativeHiddenProb[b], -scale, r.HiddenBias)
	}
	return
}

// pseudoLikelihoodCost is a stochastic approximation to the pseudo-likelihood.
// One bit per call is flipped, indexed by a counter rotating over the visible
// units, and the conditional likelihood of that bit is estimated from the
// free-energy difference. This avoids evaluating the partition function.
func (r *RBM) pseudoLikelihoodCost(batch [][]float32) float32 {
	bit := r.bitIndex
	r.bitIndex = (r.bitIndex + 1) % r.nVisible
	var cost float32
	xi := make([]float32, r.nVisible)
	for _, v := range batch {
		// binarize the input by rounding
		for i := range v {
			xi[i] = math32.Round(v[i])
		}
		fe := r.freeEnergy(xi)
		xi[bit] = 1 - xi[bit]
		feFlip := r.freeEnergy(xi)
		cost += float32(r.nVisible) * logSigmoid(feFlip-fe)
	}
	return cost / float32(len(batch))
}

// reconstructionCost is the cross-entropy between the input and the
// reconstruction, computed from the pre-sigmoid activation of the final
// visible layer so that log(sigmoid(x)) can be expressed through softplus.
func reconstructionCost(batch, visiblePre [][]float32) float32 {
	var cost float32
	for b, v := range batch {
		for i, x := range visiblePre[b] {
			cost += v[i]*logSigmoid(x) + (1-v[i])*logSigmoid(-x)
		}
	}
	return cost / float32(len(batch))
}

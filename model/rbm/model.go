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
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/boltzmann/base/encoding"
	"github.com/gorse-io/boltzmann/base/log"
	"github.com/gorse-io/boltzmann/base/progress"
	"github.com/gorse-io/boltzmann/common/floats"
	"github.com/gorse-io/boltzmann/dataset"
	"github.com/gorse-io/boltzmann/model"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// predictionCacheSize bounds the per-user prediction memo. Eviction is least
// recently used.
const predictionCacheSize = 1000

// Score is the training result of a fit. Cost is the mean monitoring cost of
// the last epoch: a reconstruction cross-entropy for CD, a pseudo-likelihood
// approximation for PCD. Both are negative and higher is better.
type Score struct {
	Cost float32
}

type FitConfig struct {
	Verbose int
}

func NewFitConfig() *FitConfig {
	return &FitConfig{Verbose: 1}
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// RBM is a restricted Boltzmann machine for collaborative filtering:
//
//	Ruslan Salakhutdinov, Andriy Mnih, Geoffrey E. Hinton:
//	Restricted Boltzmann machines for collaborative filtering. ICML 2007: 791-798
//
// Every user is one training example: a binary vector over the item catalog
// with 1 for interacted items. The model is trained by contrastive divergence
// and predictions are the mean-field visible activations after one Gibbs
// round trip from the user's vector.
//
// Hyper-parameters:
//
//	Lr         - The learning rate of contrastive divergence. Default is 0.1.
//	NEpochs    - The number of training epochs. Default is 5.
//	NHidden    - The number of hidden units. Default is 100.
//	NGibbs     - The depth k of the Gibbs chain in CD-k/PCD-k. Default is 1.
//	BatchSize  - The size of a minibatch. Default is 20.
//	Persistent - Carry the Gibbs chain across minibatches (PCD). Default is true.
type RBM struct {
	model.BaseModel
	UserIndex       *dataset.FreqDict
	ItemIndex       *dataset.FreqDict
	UserPredictable *bitset.BitSet
	ItemPredictable *bitset.BitSet
	// Model parameters
	Weights     [][]float32 // W, n_visible * n_hidden
	VisibleBias []float32   // b_v
	HiddenBias  []float32   // b_h
	nVisible    int
	nHidden     int
	// Hyper parameters
	lr         float32
	nEpochs    int
	nGibbs     int
	batchSize  int
	persistent bool
	// Training state
	userFeedback []mapset.Set[int]
	bitIndex     int // rotating bit of the pseudo-likelihood estimate
	// Prediction cache, tied to one trained instance
	cacheMutex sync.Mutex
	cache      *ttlcache.Cache[string, []float32]
}

// NewRBM creates an RBM model.
func NewRBM(params model.Params) *RBM {
	r := new(RBM)
	r.SetParams(params)
	return r
}

// SetParams sets hyper-parameters of the RBM model.
func (r *RBM) SetParams(params model.Params) {
	r.BaseModel.SetParams(params)
	r.lr = r.Params.GetFloat32(model.Lr, 0.1)
	r.nEpochs = r.Params.GetInt(model.NEpochs, 5)
	r.nHidden = r.Params.GetInt(model.NHidden, 100)
	r.nGibbs = r.Params.GetInt(model.NGibbs, 1)
	r.batchSize = r.Params.GetInt(model.BatchSize, 20)
	r.persistent = r.Params.GetBool(model.Persistent, true)
}

func (r *RBM) GetParamsGrid(withSize bool) model.ParamsGrid {
	return model.ParamsGrid{
		model.NHidden:    lo.If(withSize, []interface{}{50, 100, 200, 500}).Else([]interface{}{100}),
		model.Lr:         []interface{}{0.01, 0.05, 0.1, 0.5},
		model.NEpochs:    []interface{}{5, 10, 20},
		model.NGibbs:     []interface{}{1, 3, 5},
		model.Persistent: []interface{}{true, false},
	}
}

// ParamDetails returns the tuning range of every hyper-parameter as
// (min, max, step, default).
func (r *RBM) ParamDetails() map[model.ParamName]model.ParamRange {
	return map[model.ParamName]model.ParamRange{
		model.Lr:      {Min: 0.01, Max: 0.5, Step: 0.05, Default: 0.1},
		model.NEpochs: {Min: 1, Max: 50, Step: 5, Default: 5},
		model.NHidden: {Min: 10, Max: 1000, Step: 10, Default: 100},
	}
}

// GetName returns a human readable identifier of the model.
func (r *RBM) GetName() string {
	return fmt.Sprintf("RBM (n_hidden=%d)", r.nHidden)
}

// Init sizes the parameters to the item catalog of the train set. Weights are
// drawn uniformly from +-4*sqrt(6/(n_visible+n_hidden)), biases start at zero.
func (r *RBM) Init(trainSet *dataset.Dataset) {
	r.UserIndex = trainSet.GetUserDict()
	r.ItemIndex = trainSet.GetItemDict()
	r.userFeedback = trainSet.GetUserFeedback()
	r.nVisible = trainSet.CountItems()
	bound := 4 * math32.Sqrt(6/float32(r.nVisible+r.nHidden))
	r.Weights = r.GetRandomGenerator().UniformMatrix(r.nVisible, r.nHidden, -bound, bound)
	r.VisibleBias = make([]float32, r.nVisible)
	r.HiddenBias = make([]float32, r.nHidden)
	r.bitIndex = 0
	r.cache = nil // predictions of a previous fit are stale
	// set trained flags
	r.UserPredictable = bitset.New(uint(r.UserIndex.Count()))
	for userIndex := 0; userIndex < r.UserIndex.Count(); userIndex++ {
		if r.userFeedback[userIndex].Cardinality() > 0 {
			r.UserPredictable.Set(uint(userIndex))
		}
	}
	r.ItemPredictable = bitset.New(uint(r.ItemIndex.Count()))
	r.ItemPredictable.FlipRange(0, uint(r.ItemIndex.Count()))
}

// IsUserPredictable returns false if the user was never seen during fit.
func (r *RBM) IsUserPredictable(userIndex int) bool {
	if r.UserPredictable == nil || userIndex < 0 || userIndex >= r.UserIndex.Count() {
		return false
	}
	return r.UserPredictable.Test(uint(userIndex))
}

// IsItemPredictable returns false if the item was never seen during fit.
func (r *RBM) IsItemPredictable(itemIndex int) bool {
	if r.ItemPredictable == nil || itemIndex < 0 || itemIndex >= r.ItemIndex.Count() {
		return false
	}
	return r.ItemPredictable.Test(uint(itemIndex))
}

// Fit trains the RBM by CD-k/PCD-k. Training is strictly sequential: one
// minibatch at a time, each parameter update applied in full before the next
// minibatch starts. Minibatches are drawn in index order without shuffling
// and a trailing batch smaller than BatchSize is dropped.
//
// Fit fails fast on degenerate configuration and surfaces a non-finite
// monitoring cost as an error; in the latter case the parameters are left in
// the partially trained state of the failing epoch.
func (r *RBM) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) (Score, error) {
	if config == nil {
		config = NewFitConfig()
	}
	if trainSet == nil || trainSet.CountUsers() == 0 || trainSet.CountItems() == 0 {
		return Score{}, errors.BadRequestf("empty training data")
	}
	if r.nHidden <= 0 {
		return Score{}, errors.BadRequestf("n_hidden must be positive, got %d", r.nHidden)
	}
	if r.nEpochs <= 0 {
		return Score{}, errors.BadRequestf("n_epochs must be positive, got %d", r.nEpochs)
	}
	if r.nGibbs <= 0 {
		return Score{}, errors.BadRequestf("n_gibbs must be positive, got %d", r.nGibbs)
	}
	if r.batchSize <= 0 {
		return Score{}, errors.BadRequestf("batch_size must be positive, got %d", r.batchSize)
	}
	if r.batchSize > trainSet.CountUsers() {
		return Score{}, errors.BadRequestf("batch_size %d exceeds the number of users %d",
			r.batchSize, trainSet.CountUsers())
	}
	log.Logger().Info("fit rbm",
		zap.Int("n_users", trainSet.CountUsers()),
		zap.Int("n_items", trainSet.CountItems()),
		zap.Int("n_feedback", trainSet.CountFeedback()),
		zap.Any("params", r.GetParams()),
		zap.Any("config", config))
	r.Init(trainSet)
	matrix := trainSet.Matrix()
	numBatches := trainSet.CountUsers() / r.batchSize
	if dropped := trainSet.CountUsers() % r.batchSize; dropped > 0 {
		log.Logger().Warn("trailing partial batch is dropped",
			zap.Int("dropped_users", dropped),
			zap.Int("batch_size", r.batchSize))
	}
	// The persistent chain is threaded through cdUpdate explicitly instead of
	// living on the model.
	var persistentChain [][]float32
	if r.persistent {
		persistentChain = make([][]float32, r.batchSize)
		for i := range persistentChain {
			persistentChain[i] = make([]float32, r.nHidden)
		}
	}
	var meanCost float32
	costs := make([]float32, 0, numBatches)
	_, span := progress.Start(ctx, "RBM.Fit", r.nEpochs)
	for epoch := 1; epoch <= r.nEpochs; epoch++ {
		fitStart := time.Now()
		costs = costs[:0]
		for b := 0; b < numBatches; b++ {
			batch := matrix[b*r.batchSize : (b+1)*r.batchSize]
			var cost float32
			cost, persistentChain = r.cdUpdate(batch, r.lr, persistentChain, r.nGibbs)
			costs = append(costs, cost)
		}
		meanCost = floats.Mean(costs)
		if math32.IsNaN(meanCost) || math32.IsInf(meanCost, 0) {
			err := errors.Errorf("non-finite monitoring cost %v in epoch %d", meanCost, epoch)
			span.Fail(err)
			return Score{}, err
		}
		if config.Verbose > 0 && (epoch%config.Verbose == 0 || epoch == r.nEpochs) {
			log.Logger().Info(fmt.Sprintf("fit rbm %v/%v", epoch, r.nEpochs),
				zap.String("fit_time", time.Since(fitStart).String()),
				zap.Float32("cost", meanCost))
		}
		span.Add(1)
	}
	span.End()
	// a fresh cache drops predictions of the previous fit
	r.cache = ttlcache.New[string, []float32](
		ttlcache.WithCapacity[string, []float32](predictionCacheSize))
	log.Logger().Info("fit rbm complete", zap.Float32("cost", meanCost))
	return Score{Cost: meanCost}, nil
}

// UserPredictions returns the mean-field visible activations for a user:
// the user's binary item vector is pushed through exactly one Gibbs round
// trip and the visible probabilities are returned, not the binary sample,
// since probabilities give a continuous rankable score. Results are memoized
// per user in an LRU cache of fixed capacity.
//
// The user must have been seen during fit.
func (r *RBM) UserPredictions(userId string) ([]float32, error) {
	if r.Invalid() {
		return nil, errors.Errorf("model is not fitted")
	}
	r.cacheMutex.Lock()
	defer r.cacheMutex.Unlock()
	if r.cache == nil {
		r.cache = ttlcache.New[string, []float32](
			ttlcache.WithCapacity[string, []float32](predictionCacheSize))
	}
	if item := r.cache.Get(userId); item != nil {
		return item.Value(), nil
	}
	userIndex, ok := r.UserIndex.Lookup(userId)
	if !ok {
		return nil, errors.NotFoundf("user %v", userId)
	}
	// a user without observed items yields a valid all-zero input
	v := make([]float32, r.nVisible)
	r.userFeedback[userIndex].Each(func(i int) bool {
		v[i] = 1
		return false
	})
	_, _, _, _, visProb, _ := r.gibbsStepFromVisible(v)
	r.cache.Set(userId, visProb, ttlcache.NoTTL)
	return visProb, nil
}

// Predict returns the score of an item for a user. Unknown items and unknown
// users are errors, not defaults.
func (r *RBM) Predict(userId, itemId string) (float32, error) {
	if r.Invalid() {
		return 0, errors.Errorf("model is not fitted")
	}
	itemIndex, ok := r.ItemIndex.Lookup(itemId)
	if !ok {
		return 0, errors.NotFoundf("item %v", itemId)
	}
	predictions, err := r.UserPredictions(userId)
	if err != nil {
		return 0, errors.Trace(err)
	}
	return predictions[itemIndex], nil
}

// Clear model weights.
func (r *RBM) Clear() {
	r.UserIndex = nil
	r.ItemIndex = nil
	r.Weights = nil
	r.VisibleBias = nil
	r.HiddenBias = nil
	r.userFeedback = nil
	r.cache = nil
}

// Invalid reports whether the model has no trained weights.
func (r *RBM) Invalid() bool {
	return r == nil ||
		r.UserIndex == nil ||
		r.ItemIndex == nil ||
		r.Weights == nil
}

// Marshal model into byte stream.
func (r *RBM) Marshal(w io.Writer) error {
	// write params
	if err := encoding.WriteGob(w, r.Params); err != nil {
		return errors.Trace(err)
	}
	// write dimensions
	if err := binary.Write(w, binary.LittleEndian, int64(r.nVisible)); err != nil {
		return errors.Trace(err)
	}
	// write indices and feedback
	if err := encoding.WriteGob(w, r.UserIndex.Strings()); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.WriteGob(w, r.ItemIndex.Strings()); err != nil {
		return errors.Trace(err)
	}
	feedback := make([][]int, len(r.userFeedback))
	for u, items := range r.userFeedback {
		feedback[u] = items.ToSlice()
	}
	if err := encoding.WriteGob(w, feedback); err != nil {
		return errors.Trace(err)
	}
	// write parameters
	if err := encoding.WriteMatrix(w, r.Weights); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.VisibleBias); err != nil {
		return errors.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, r.HiddenBias); err != nil {
		return errors.Trace(err)
	}
	return nil
}

// Unmarshal model from byte stream.
func (r *RBM) Unmarshal(reader io.Reader) error {
	// read params
	if err := encoding.ReadGob(reader, &r.Params); err != nil {
		return errors.Trace(err)
	}
	r.SetParams(r.Params)
	// read dimensions
	var nVisible int64
	if err := binary.Read(reader, binary.LittleEndian, &nVisible); err != nil {
		return errors.Trace(err)
	}
	r.nVisible = int(nVisible)
	// read indices and feedback
	var users, items []string
	if err := encoding.ReadGob(reader, &users); err != nil {
		return errors.Trace(err)
	}
	if err := encoding.ReadGob(reader, &items); err != nil {
		return errors.Trace(err)
	}
	r.UserIndex = dataset.NewFreqDict()
	for _, user := range users {
		r.UserIndex.Id(user)
	}
	r.ItemIndex = dataset.NewFreqDict()
	for _, item := range items {
		r.ItemIndex.Id(item)
	}
	var feedback [][]int
	if err := encoding.ReadGob(reader, &feedback); err != nil {
		return errors.Trace(err)
	}
	r.userFeedback = make([]mapset.Set[int], len(feedback))
	for u, itemIndices := range feedback {
		r.userFeedback[u] = mapset.NewSet[int](itemIndices...)
	}
	// read parameters
	r.Weights = make([][]float32, r.nVisible)
	for i := range r.Weights {
		r.Weights[i] = make([]float32, r.nHidden)
	}
	if err := encoding.ReadMatrix(reader, r.Weights); err != nil {
		return errors.Trace(err)
	}
	r.VisibleBias = make([]float32, r.nVisible)
	if err := binary.Read(reader, binary.LittleEndian, r.VisibleBias); err != nil {
		return errors.Trace(err)
	}
	r.HiddenBias = make([]float32, r.nHidden)
	if err := binary.Read(reader, binary.LittleEndian, r.HiddenBias); err != nil {
		return errors.Trace(err)
	}
	// restore trained flags
	r.UserPredictable = bitset.New(uint(r.UserIndex.Count()))
	for userIndex := 0; userIndex < r.UserIndex.Count(); userIndex++ {
		if r.userFeedback[userIndex].Cardinality() > 0 {
			r.UserPredictable.Set(uint(userIndex))
		}
	}
	r.ItemPredictable = bitset.New(uint(r.ItemIndex.Count()))
	r.ItemPredictable.FlipRange(0, uint(r.ItemIndex.Count()))
	r.cache = ttlcache.New[string, []float32](
		ttlcache.WithCapacity[string, []float32](predictionCacheSize))
	return nil
}

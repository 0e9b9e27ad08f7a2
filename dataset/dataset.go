// Copyright 2025 gorse Project Authors
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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
)

// Feedback is one observed user-item interaction.
type Feedback struct {
	UserId string
	ItemId string
}

// Dataset indexes user-item interactions for training. Users and items are
// enumerated in first-seen order and duplicate interactions are idempotent.
type Dataset struct {
	userDict     *FreqDict
	itemDict     *FreqDict
	userFeedback []mapset.Set[int]
	numFeedback  int
}

// NewDataset builds a dataset from raw feedback records. Empty input is an
// error since it produces degenerate matrix dimensions.
func NewDataset(feedback []Feedback) (*Dataset, error) {
	if len(feedback) == 0 {
		return nil, errors.BadRequestf("empty training data")
	}
	d := &Dataset{
		userDict: NewFreqDict(),
		itemDict: NewFreqDict(),
	}
	for _, f := range feedback {
		d.addFeedback(f.UserId, f.ItemId)
	}
	return d, nil
}

func (d *Dataset) addFeedback(userId, itemId string) {
	userIndex := d.userDict.Id(userId)
	itemIndex := d.itemDict.Id(itemId)
	for len(d.userFeedback) <= userIndex {
		d.userFeedback = append(d.userFeedback, mapset.NewSet[int]())
	}
	if d.userFeedback[userIndex].Add(itemIndex) {
		d.numFeedback++
	}
}

func (d *Dataset) CountUsers() int {
	return d.userDict.Count()
}

func (d *Dataset) CountItems() int {
	return d.itemDict.Count()
}

// CountFeedback returns the number of distinct user-item interactions.
func (d *Dataset) CountFeedback() int {
	return d.numFeedback
}

func (d *Dataset) GetUserDict() *FreqDict {
	return d.userDict
}

func (d *Dataset) GetItemDict() *FreqDict {
	return d.itemDict
}

// GetUserFeedback returns the interacted item indices of every user.
func (d *Dataset) GetUserFeedback() []mapset.Set[int] {
	return d.userFeedback
}

// Matrix builds the dense binary interaction matrix. Row u column i is 1 iff
// user u interacted with item i.
func (d *Dataset) Matrix() [][]float32 {
	matrix := make([][]float32, d.CountUsers())
	for u := range matrix {
		matrix[u] = make([]float32, d.CountItems())
		d.userFeedback[u].Each(func(i int) bool {
			matrix[u][i] = 1
			return false
		})
	}
	return matrix
}

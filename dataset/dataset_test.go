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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

var toyFeedback = []Feedback{
	{"alice", "tv"},
	{"alice", "radio"},
	{"bob", "tv"},
	{"carol", "book"},
	{"carol", "radio"},
}

func TestNewDataset(t *testing.T) {
	d, err := NewDataset(toyFeedback)
	assert.NoError(t, err)
	assert.Equal(t, 3, d.CountUsers())
	assert.Equal(t, 3, d.CountItems())
	assert.Equal(t, 5, d.CountFeedback())
	// first-seen order enumeration
	assert.Equal(t, []string{"alice", "bob", "carol"}, d.GetUserDict().Strings())
	assert.Equal(t, []string{"tv", "radio", "book"}, d.GetItemDict().Strings())
}

func TestNewDataset_Empty(t *testing.T) {
	_, err := NewDataset(nil)
	assert.True(t, errors.Is(err, errors.BadRequest))
}

func TestDataset_Matrix(t *testing.T) {
	d, err := NewDataset(toyFeedback)
	assert.NoError(t, err)
	assert.Equal(t, [][]float32{
		{1, 1, 0},
		{1, 0, 0},
		{0, 1, 1},
	}, d.Matrix())
}

func TestDataset_Idempotent(t *testing.T) {
	a, err := NewDataset(toyFeedback)
	assert.NoError(t, err)
	b, err := NewDataset(toyFeedback)
	assert.NoError(t, err)
	assert.Equal(t, a.Matrix(), b.Matrix())
	assert.Equal(t, a.GetUserDict().Strings(), b.GetUserDict().Strings())
	assert.Equal(t, a.GetItemDict().Strings(), b.GetItemDict().Strings())
}

func TestDataset_DuplicateFeedback(t *testing.T) {
	duplicated := append([]Feedback{}, toyFeedback...)
	duplicated = append(duplicated, Feedback{"alice", "tv"}, Feedback{"alice", "tv"})
	a, err := NewDataset(duplicated)
	assert.NoError(t, err)
	b, err := NewDataset(toyFeedback)
	assert.NoError(t, err)
	assert.Equal(t, b.Matrix(), a.Matrix())
	assert.Equal(t, b.CountFeedback(), a.CountFeedback())
}

// Copyright 2023 gorse Project Authors
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

package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ProgressTestSuite struct {
	suite.Suite
	tracer *Tracer
}

func (suite *ProgressTestSuite) SetupTest() {
	suite.tracer = NewTracer("test")
}

func (suite *ProgressTestSuite) TestRootSpan() {
	_, span := suite.tracer.Start(context.Background(), "root", 100)
	progressList := suite.tracer.List()
	suite.Equal(1, len(progressList))
	suite.Equal("test", progressList[0].Tracer)
	suite.Equal("root", progressList[0].Name)
	suite.Equal(StatusRunning, progressList[0].Status)
	suite.Empty(progressList[0].Error)
	suite.Equal(100, progressList[0].Total)
	suite.Empty(progressList[0].Count)
	suite.LessOrEqual(progressList[0].StartTime, time.Now())

	span.Add(10)
	progressList = suite.tracer.List()
	suite.Equal(10, progressList[0].Count)

	span.End()
	progressList = suite.tracer.List()
	suite.Equal(StatusComplete, progressList[0].Status)
	suite.Equal(100, progressList[0].Count)
}

func (suite *ProgressTestSuite) TestChildSpan() {
	ctx, root := suite.tracer.Start(context.Background(), "root", 1)
	childCtx, child := Start(ctx, "child", 10)
	suite.NotNil(childCtx)
	child.Add(5)
	suite.Equal(5, child.Count())
	child.End()
	root.End()
}

func (suite *ProgressTestSuite) TestDetachedSpan() {
	ctx, span := Start(context.Background(), "detached", 10)
	suite.Nil(ctx)
	span.Add(3)
	suite.Equal(3, span.Count())
}

func TestProgressTestSuite(t *testing.T) {
	suite.Run(t, new(ProgressTestSuite))
}

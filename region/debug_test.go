/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

//go:build linux

package region

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type DebugTestSuite struct {
	suite.Suite
}

func (s *DebugTestSuite) TestLogColor() {
	SetLogLevel(levelTrace)
	defer SetLogLevel(levelWarn)

	internalLogger.tracef("this is tracef %s", "hello world")
	internalLogger.debugf("this is debugf %s", "hello world")
	internalLogger.infof("this is infof %s", "hello world")
	internalLogger.warnf("this is warnf %s", "hello world")
	internalLogger.errorf("this is errorf %s", "hello world")

	discoveryLogger.tracef("this is discovery tracef %s", "hello world")
	discoveryLogger.debugf("this is discovery debugf %s", "hello world")
}

func (s *DebugTestSuite) TestDescribe() {
	h, err := NewHost(Config{Name: "t-describe", Size: 4096, Version: 11})
	s.Require().NoError(err)
	defer h.Close()

	s.Contains(h.Describe(), "t-describe")
	s.Contains(h.Describe(), "initializing")
	s.Contains(h.Describe(), "version:11")

	s.Require().NoError(h.MarkReady())
	s.Contains(h.Describe(), "ready")
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}

// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectToBuffer(buf *bytes.Buffer, format string, level Severity) {
	defaultFactory = &factory{level: levelVar(level), format: format, writer: buf}
	defaultLogger = slog.New(defaultFactory.handler())
}

func fetchOutputs(format string, level Severity) []string {
	var buf bytes.Buffer
	redirectToBuffer(&buf, format, level)

	var output []string
	for _, f := range []func(){
		func() { Tracef("trace") },
		func() { Debugf("debug") },
		func() { Infof("info") },
		func() { Warnf("warn") },
		func() { Errorf("error") },
	} {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func assertMatches(t *testing.T, expected, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, "", output[i])
			continue
		}
		assert.Regexp(t, regexp.MustCompile(expected[i]), output[i])
	}
}

func (s *LoggerTest) TestTextFormatRespectsSeverityThreshold() {
	expected := []string{"", "", "severity=INFO", "severity=WARNING", "severity=ERROR"}
	assertMatches(s.T(), expected, fetchOutputs("text", Info))
}

func (s *LoggerTest) TestJSONFormatRespectsSeverityThreshold() {
	expected := []string{"", "", "", "\"severity\":\"WARNING\"", "\"severity\":\"ERROR\""}
	assertMatches(s.T(), expected, fetchOutputs("json", Warning))
}

func (s *LoggerTest) TestTraceLevelEnablesEverything() {
	expected := []string{"severity=TRACE", "severity=DEBUG", "severity=INFO", "severity=WARNING", "severity=ERROR"}
	assertMatches(s.T(), expected, fetchOutputs("text", Trace))
}

func (s *LoggerTest) TestOffLevelSuppressesEverything() {
	expected := []string{"", "", "", "", ""}
	assertMatches(s.T(), expected, fetchOutputs("text", Off))
}

func TestSetLevelIsObservedByEnabled(t *testing.T) {
	SetLevel(Error)
	assert.False(t, defaultLogger.Enabled(context.Background(), LevelWarn))
	assert.True(t, defaultLogger.Enabled(context.Background(), LevelError))
	SetLevel(Info)
}

func TestSetFormatSwitchesHandler(t *testing.T) {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", Info)
	SetFormat("json")
	Infof("hi")
	assert.Contains(t, buf.String(), "\"severity\":\"INFO\"")
}

func TestInitLogFileWithEmptyPathRevertsToStderr(t *testing.T) {
	require := assert.New(t)
	require.NoError(InitLogFile("", DefaultRotateConfig()))
	require.Nil(defaultFactory.file)
}

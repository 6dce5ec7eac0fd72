// Copyright 2024 Francis Michael Stephens. All rights reserved.  Use of this
// source code is governed by an MIT license that can be found in the LICENSE
// file.
package fuzzutil

import "math/rand"

type Step interface {
	DoStep()
}

// TestRun decodes a byte string into steps and runs them in order, with a
// cleanup function run at the end however the steps go.
type TestRun struct {
	steps   []Step
	cleanup func()
}

func NewTestRun(bytes []byte, stepMaker func(*ByteConsumer) Step, cleanup func()) *TestRun {
	tr := &TestRun{
		steps:   make([]Step, 0),
		cleanup: cleanup,
	}

	consumer := NewByteConsumer(bytes)
	for consumer.Len() > 0 {
		tr.steps = append(tr.steps, stepMaker(consumer))
	}
	return tr
}

func (t *TestRun) Run() {
	defer t.cleanup()
	for _, step := range t.steps {
		step.DoStep()
	}
}

// MakeRandomTestCases builds a deterministic seed corpus of byte strings at
// a spread of sizes.
func MakeRandomTestCases() [][]byte {
	r := rand.New(rand.NewSource(1))
	return [][]byte{
		{},
		randomBytes(r, 1),
		randomBytes(r, 10),
		randomBytes(r, 50),
		randomBytes(r, 100),
		randomBytes(r, 500),
		randomBytes(r, 1000),
		randomBytes(r, 5000),
		randomBytes(r, 10000),
		randomBytes(r, 50000),
	}
}

func randomBytes(r *rand.Rand, size int) []byte {
	bytes := make([]byte, size)
	r.Read(bytes)
	return bytes
}

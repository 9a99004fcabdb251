// Copyright 2025 James Ross
package embedding

import (
	"context"
	"errors"
)

// FakeProvider is a deterministic Provider used by engine tests: it derives
// a vector from the first Dimension content bytes (cycling when content is
// shorter), so identical content yields identical embeddings.
type FakeProvider struct {
	Dimension int
	FailNext  int // number of subsequent calls to fail before succeeding
	calls     int
}

func NewFakeProvider(dimension int) *FakeProvider {
	return &FakeProvider{Dimension: dimension}
}

func (f *FakeProvider) Embed(ctx context.Context, kind Kind, content []byte) ([]float32, error) {
	f.calls++
	if f.FailNext > 0 {
		f.FailNext--
		return nil, errors.New("embedding: simulated transient failure")
	}
	vec := make([]float32, f.Dimension)
	for i := range vec {
		if len(content) == 0 {
			continue
		}
		vec[i] = float32(content[i%len(content)]) / 255.0
	}
	return vec, nil
}

func (f *FakeProvider) Calls() int { return f.calls }

// Copyright 2025 James Ross
package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeProviderDeterministic(t *testing.T) {
	p := NewFakeProvider(8)
	ctx := context.Background()

	a, err := p.Embed(ctx, KindText, []byte("hello"))
	require.NoError(t, err)
	b, err := p.Embed(ctx, KindText, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFakeProviderFailNext(t *testing.T) {
	p := NewFakeProvider(4)
	p.FailNext = 1
	ctx := context.Background()

	_, err := p.Embed(ctx, KindText, []byte("x"))
	assert.Error(t, err)

	_, err = p.Embed(ctx, KindText, []byte("x"))
	assert.NoError(t, err)
}

// Copyright 2025 James Ross
package vectorindex

import (
	"context"
	"testing"

	"github.com/filevault/dedup-backend/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchExcludesScoreExactlyAtThreshold(t *testing.T) {
	ctx := context.Background()
	c := NewFakeClient()

	require.NoError(t, c.Upsert(ctx, embedding.KindText, 1, "a.txt", "digest-a", []float32{1, 0}))
	require.NoError(t, c.Upsert(ctx, embedding.KindText, 2, "b.txt", "digest-b", []float32{0, 1}))

	matches, err := c.Search(ctx, embedding.KindText, []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].FileID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	matches, err = c.Search(ctx, embedding.KindText, []float32{1, 0}, 10, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

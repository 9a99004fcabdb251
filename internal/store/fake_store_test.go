// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeStoreFindFileByDigestExcludesSelf(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()

	id1, err := s.CreateFile(ctx, "a.txt", "obj/a")
	require.NoError(t, err)
	require.NoError(t, s.SetFileDigest(ctx, id1, "digest-1"))

	_, err = s.FindFileByDigest(ctx, "digest-1", id1)
	assert.ErrorIs(t, err, ErrNotFound)

	id2, err := s.CreateFile(ctx, "b.txt", "obj/b")
	require.NoError(t, err)
	require.NoError(t, s.SetFileDigest(ctx, id2, "digest-1"))

	found, err := s.FindFileByDigest(ctx, "digest-1", id2)
	require.NoError(t, err)
	assert.Equal(t, id1, found.FileID)
}

func TestFakeStoreListJobsClampsLimit(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()
	for i := 0; i < 5; i++ {
		fid, err := s.CreateFile(ctx, "f", "k")
		require.NoError(t, err)
		require.NoError(t, s.CreateJob(ctx, string(rune('a'+i)), fid, "f", "k"))
	}

	jobs, err := s.ListJobs(ctx, ListJobsQuery{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, jobs, 5)

	jobs, err = s.ListJobs(ctx, ListJobsQuery{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestFakeStoreListStuckProcessing(t *testing.T) {
	ctx := context.Background()
	s := NewFakeStore()
	fid, err := s.CreateFile(ctx, "f", "k")
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, "job-1", fid, "f", "k"))
	require.NoError(t, s.SetJobStatus(ctx, "job-1", JobProcessing, nil))

	stuck, err := s.ListStuckProcessing(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, stuck, 1)

	stuck, err = s.ListStuckProcessing(ctx, 3600)
	require.NoError(t, err)
	assert.Len(t, stuck, 0)
}

// Copyright 2025 James Ross
package vectorindex

import (
	"context"
	"math"
	"sort"

	"github.com/filevault/dedup-backend/internal/embedding"
)

type fakeEntry struct {
	fileID        int64
	fileName      string
	contentDigest string
	vector        []float32
	clusterID     *int64
}

// FakeClient is an in-memory Client used by engine tests; it computes cosine
// similarity directly rather than relying on a running Postgres/pgvector.
type FakeClient struct {
	byKind map[embedding.Kind][]fakeEntry
	// ClusterLookup lets tests report a file's current cluster assignment
	// without wiring a full store, mirroring the LEFT JOIN in the real
	// client's Search query.
	ClusterLookup func(fileID int64) *int64
}

func NewFakeClient() *FakeClient {
	return &FakeClient{byKind: make(map[embedding.Kind][]fakeEntry)}
}

func (c *FakeClient) Upsert(ctx context.Context, kind embedding.Kind, fileID int64, fileName, contentDigest string, vector []float32) error {
	entries := c.byKind[kind]
	for i, e := range entries {
		if e.fileID == fileID {
			entries[i] = fakeEntry{fileID, fileName, contentDigest, vector, nil}
			c.byKind[kind] = entries
			return nil
		}
	}
	c.byKind[kind] = append(entries, fakeEntry{fileID, fileName, contentDigest, vector, nil})
	return nil
}

func (c *FakeClient) Search(ctx context.Context, kind embedding.Kind, vector []float32, k int, threshold float64) ([]Match, error) {
	var matches []Match
	for _, e := range c.byKind[kind] {
		score := cosineSimilarity(vector, e.vector)
		if score <= threshold {
			continue
		}
		var clusterID *int64
		if c.ClusterLookup != nil {
			clusterID = c.ClusterLookup(e.fileID)
		}
		matches = append(matches, Match{
			FileID: e.fileID, FileName: e.fileName, ContentDigest: e.contentDigest,
			Score: score, ClusterID: clusterID,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

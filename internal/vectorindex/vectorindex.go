// Copyright 2025 James Ross
package vectorindex

import (
	"context"

	"github.com/filevault/dedup-backend/internal/embedding"
)

// Match is one k-NN search result: a candidate file and its cosine
// similarity score in [-1,1], where 1 means the vectors point the same way.
type Match struct {
	FileID        int64
	FileName      string
	ContentDigest string
	Score         float64
	ClusterID     *int64
}

// Client is the Vector Index Client interface (C4). Each Kind has its own
// index; matches are never compared across kinds.
type Client interface {
	// Upsert stores or replaces the embedding for fileID under kind.
	Upsert(ctx context.Context, kind embedding.Kind, fileID int64, fileName, contentDigest string, vector []float32) error
	// Search returns up to k nearest neighbors of vector within kind's
	// index, ordered by descending score, filtered to score > threshold.
	Search(ctx context.Context, kind embedding.Kind, vector []float32, k int, threshold float64) ([]Match, error)
}

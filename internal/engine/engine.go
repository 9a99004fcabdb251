// Copyright 2025 James Ross
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/filevault/dedup-backend/internal/breaker"
	"github.com/filevault/dedup-backend/internal/embedding"
	"github.com/filevault/dedup-backend/internal/hasher"
	"github.com/filevault/dedup-backend/internal/objectstore"
	"github.com/filevault/dedup-backend/internal/store"
	"github.com/filevault/dedup-backend/internal/vectorindex"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".webp": true, ".tiff": true,
}

// classify returns the media Kind for fileName by extension, defaulting to
// text when the extension is absent or unrecognized.
func classify(fileName string) embedding.Kind {
	ext := strings.ToLower(filepath.Ext(fileName))
	if imageExtensions[ext] {
		return embedding.KindImage
	}
	return embedding.KindText
}

// newClusterSimilarityScore is the score recorded for a cluster created from
// a fresh similar-files match, carried over from the original service rather
// than derived from the match score itself.
const newClusterSimilarityScore = 0.9

// Result summarizes one run of the pipeline, returned to the worker for
// logging and to the live status channel for broadcast.
type Result struct {
	FileID          int64
	ContentDigest   string
	ExactDuplicates []store.File
	SimilarFiles    []vectorindex.Match
	ClusterID       *int64
}

// Engine is the Deduplication Engine (C6): the orchestrator that runs every
// ingested file through hash, exact-match, embed, index, and cluster steps.
type Engine struct {
	Store       store.Store
	Objects     objectstore.Store
	Embeddings  embedding.Provider
	VectorIndex vectorindex.Client
	Breaker     *breaker.CircuitBreaker

	TextSource          string // "content" or "filename"
	SearchK             int
	SimilarityThreshold float64
}

// Process runs the full pipeline for one file. It is fail-fast: the first
// step that errors aborts the run and returns the error, wrapped with the
// name of the failing step, for the caller to classify and record.
func (e *Engine) Process(ctx context.Context, fileID int64, fileName, objectKey string) (Result, error) {
	if _, err := e.Store.GetFile(ctx, fileID); err != nil {
		return Result{}, fmt.Errorf("get file: %w", err)
	}

	content, err := e.Objects.GetObject(ctx, objectKey)
	if err != nil {
		return Result{}, fmt.Errorf("get object: %w", err)
	}

	digest := hasher.HashBytes(content)

	var exactDuplicates []store.File
	if dup, err := e.Store.FindFileByDigest(ctx, digest, fileID); err == nil {
		exactDuplicates = append(exactDuplicates, dup)
	} else if err != store.ErrNotFound {
		return Result{}, fmt.Errorf("find exact duplicates: %w", err)
	}

	kind := classify(fileName)
	embedInput := content
	if kind == embedding.KindText && e.TextSource == "filename" {
		embedInput = []byte(fileName)
	}

	vector, err := e.callEmbed(ctx, kind, embedInput)
	if err != nil {
		return Result{}, fmt.Errorf("generate embedding: %w", err)
	}

	if err := e.callUpsert(ctx, kind, fileID, fileName, digest, vector); err != nil {
		return Result{}, fmt.Errorf("store embedding: %w", err)
	}

	matches, err := e.callSearch(ctx, kind, vector)
	if err != nil {
		return Result{}, fmt.Errorf("find similar files: %w", err)
	}
	var similar []vectorindex.Match
	for _, m := range matches {
		if m.FileID == fileID {
			continue
		}
		similar = append(similar, m)
	}

	// Exact duplicates alone never trigger clustering; only a similar-vector
	// hit does. This is a documented behavior, not a bug: two byte-identical
	// files may legitimately be independent copies that were never deemed
	// semantically similar.
	var clusterID *int64
	if len(similar) > 0 {
		clusterID, err = e.assignCluster(ctx, fileID, similar)
		if err != nil {
			return Result{}, fmt.Errorf("update file clusters: %w", err)
		}
	}

	if err := e.Store.SetFileDigest(ctx, fileID, digest); err != nil {
		return Result{}, fmt.Errorf("update file hash: %w", err)
	}

	return Result{
		FileID:          fileID,
		ContentDigest:   digest,
		ExactDuplicates: exactDuplicates,
		SimilarFiles:    similar,
		ClusterID:       clusterID,
	}, nil
}

// assignCluster walks similar in order and adopts the first existing
// cluster_id it finds. If none of the matches already belong to a cluster, a
// new one is created. Two distinct clusters found among the matches are
// never merged.
// TODO(engine): revisit first-cluster-wins once cluster merge semantics are
// decided; today a file bridging two existing clusters silently joins
// whichever appears first in the k-NN ordering.
func (e *Engine) assignCluster(ctx context.Context, fileID int64, similar []vectorindex.Match) (*int64, error) {
	for _, m := range similar {
		if m.ClusterID != nil {
			if err := e.Store.AssignCluster(ctx, fileID, *m.ClusterID); err != nil {
				return nil, err
			}
			return m.ClusterID, nil
		}
	}

	clusterID, err := e.Store.CreateCluster(ctx, newClusterSimilarityScore)
	if err != nil {
		return nil, err
	}
	if err := e.Store.AssignCluster(ctx, fileID, clusterID); err != nil {
		return nil, err
	}
	return &clusterID, nil
}

func (e *Engine) callEmbed(ctx context.Context, kind embedding.Kind, content []byte) ([]float32, error) {
	if e.Breaker != nil && !e.Breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open")
	}
	// A failed embedding call is retried once before the step fails.
	vec, err := e.Embeddings.Embed(ctx, kind, content)
	if err != nil {
		vec, err = e.Embeddings.Embed(ctx, kind, content)
	}
	if e.Breaker != nil {
		e.Breaker.Record(err == nil)
	}
	return vec, err
}

func (e *Engine) callUpsert(ctx context.Context, kind embedding.Kind, fileID int64, fileName, digest string, vector []float32) error {
	if e.Breaker != nil && !e.Breaker.Allow() {
		return fmt.Errorf("circuit breaker open")
	}
	err := e.VectorIndex.Upsert(ctx, kind, fileID, fileName, digest, vector)
	if e.Breaker != nil {
		e.Breaker.Record(err == nil)
	}
	return err
}

func (e *Engine) callSearch(ctx context.Context, kind embedding.Kind, vector []float32) ([]vectorindex.Match, error) {
	if e.Breaker != nil && !e.Breaker.Allow() {
		return nil, fmt.Errorf("circuit breaker open")
	}
	matches, err := e.VectorIndex.Search(ctx, kind, vector, e.SearchK, e.SimilarityThreshold)
	if e.Breaker != nil {
		e.Breaker.Record(err == nil)
	}
	return matches, err
}

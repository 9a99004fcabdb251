// Copyright 2025 James Ross
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filevault/dedup-backend/internal/config"
	"google.golang.org/genai"
)

// Kind selects which media class a file belongs to, determining both the
// embedding request shape and which vector index table results land in.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

var ErrUnsupportedKind = errors.New("embedding: unsupported kind")

// Provider is the Embedding Provider interface (C3).
type Provider interface {
	Embed(ctx context.Context, kind Kind, content []byte) ([]float32, error)
}

// GenAIProvider is the Provider implementation backed by
// google.golang.org/genai, bounded by a per-call timeout. It makes a single
// attempt per call; the engine retries a failed call once.
type GenAIProvider struct {
	client     *genai.Client
	model      string
	timeout    time.Duration
	textSource string
}

func NewGenAIProvider(ctx context.Context, cfg *config.Embedding) (*GenAIProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAIProvider{
		client:     client,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		textSource: cfg.TextSource,
	}, nil
}

func (p *GenAIProvider) Embed(ctx context.Context, kind Kind, content []byte) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var contents []*genai.Content
	switch kind {
	case KindText:
		contents = []*genai.Content{genai.NewContentFromText(string(content), genai.RoleUser)}
	case KindImage:
		contents = []*genai.Content{genai.NewContentFromBytes(content, "image/jpeg", genai.RoleUser)}
	default:
		return nil, ErrUnsupportedKind
	}

	return p.embedOnce(ctx, contents)
}

func (p *GenAIProvider) embedOnce(ctx context.Context, contents []*genai.Content) ([]float32, error) {
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embed content: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

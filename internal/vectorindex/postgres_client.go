// Copyright 2025 James Ross
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/filevault/dedup-backend/internal/embedding"
)

// PostgresClient is the Client implementation backed by pgvector, using the
// `<=>` cosine-distance operator and translating it to the package's
// "higher is more similar" score via score = 1 - distance.
type PostgresClient struct {
	db         *sql.DB
	fileTable  string
	imageTable string
}

func NewPostgresClient(db *sql.DB, fileTable, imageTable string) *PostgresClient {
	return &PostgresClient{db: db, fileTable: fileTable, imageTable: imageTable}
}

func (c *PostgresClient) tableFor(kind embedding.Kind) (string, error) {
	switch kind {
	case embedding.KindText:
		return c.fileTable, nil
	case embedding.KindImage:
		return c.imageTable, nil
	default:
		return "", embedding.ErrUnsupportedKind
	}
}

func vectorLiteral(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (c *PostgresClient) Upsert(ctx context.Context, kind embedding.Kind, fileID int64, fileName, contentDigest string, vector []float32) error {
	table, err := c.tableFor(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, file_name, content_digest, embedding)
		VALUES ($1, $2, $3, $4::vector)
		ON CONFLICT (file_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			content_digest = EXCLUDED.content_digest,
			embedding = EXCLUDED.embedding`, table)
	_, err = c.db.ExecContext(ctx, query, fileID, fileName, contentDigest, vectorLiteral(vector))
	return err
}

func (c *PostgresClient) Search(ctx context.Context, kind embedding.Kind, vector []float32, k int, threshold float64) ([]Match, error) {
	table, err := c.tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT e.file_id, e.file_name, e.content_digest, 1 - (e.embedding <=> $1::vector) AS score, f.cluster_id
		FROM %s e
		LEFT JOIN files f ON f.file_id = e.file_id
		ORDER BY e.embedding <=> $1::vector ASC
		LIMIT $2`, table)
	rows, err := c.db.QueryContext(ctx, query, vectorLiteral(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.FileID, &m.FileName, &m.ContentDigest, &m.Score, &m.ClusterID); err != nil {
			return nil, err
		}
		if m.Score <= threshold {
			continue
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

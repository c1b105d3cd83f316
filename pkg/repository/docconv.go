package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/meshgate/pkg/model"
)

// DocConversionCacheRepository persists converted Office→PDF artifacts
// keyed by content hash (SPEC_FULL.md §4.12).
type DocConversionCacheRepository struct {
	pool *pgxpool.Pool
}

func NewDocConversionCacheRepository(pool *pgxpool.Pool) *DocConversionCacheRepository {
	return &DocConversionCacheRepository{pool: pool}
}

// Get returns a cached conversion for the (contentHash, fileExtension) pair,
// or nil, nil on a cache miss. Different extensions of identical bytes are
// distinct cache entries (spec §3 "DocConversionCacheEntry... (contentHash,
// fileExtension) unique").
func (r *DocConversionCacheRepository) Get(ctx context.Context, contentHash, fileExtension string) (*model.DocConversionCacheEntry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT content_hash, file_extension, original_size_bytes, pdf_data, pdf_size_bytes, created_at, last_accessed_at, access_count
		FROM doc_conversion_cache WHERE content_hash = $1 AND file_extension = $2`, contentHash, fileExtension)
	var e model.DocConversionCacheEntry
	if err := row.Scan(&e.ContentHash, &e.FileExtension, &e.OriginalSizeBytes, &e.PDFData, &e.PDFSizeBytes, &e.CreatedAt, &e.LastAccessedAt, &e.AccessCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan doc conversion cache entry: %w", err)
	}
	return &e, nil
}

// Put inserts a freshly-converted entry. ON CONFLICT DO NOTHING handles two
// concurrent conversions of the same (contentHash, fileExtension) pair
// racing to cache their result.
func (r *DocConversionCacheRepository) Put(ctx context.Context, e *model.DocConversionCacheEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doc_conversion_cache (content_hash, file_extension, original_size_bytes, pdf_data, pdf_size_bytes, created_at, last_accessed_at, access_count)
		VALUES ($1,$2,$3,$4,$5,$6,$6,1)
		ON CONFLICT (content_hash, file_extension) DO NOTHING`,
		e.ContentHash, e.FileExtension, e.OriginalSizeBytes, e.PDFData, e.PDFSizeBytes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert doc conversion cache entry: %w", err)
	}
	return nil
}

// Touch records a cache hit.
func (r *DocConversionCacheRepository) Touch(ctx context.Context, contentHash, fileExtension string, at int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE doc_conversion_cache SET last_accessed_at = $3, access_count = access_count + 1 WHERE content_hash = $1 AND file_extension = $2`, contentHash, fileExtension, at)
	return err
}

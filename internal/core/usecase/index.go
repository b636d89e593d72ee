package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/core/ports"
)

// Indexer chunks, embeds and stores documents. A stored content hash makes
// indexing idempotent: an unchanged document is skipped without touching the
// chunk store or the embedding collaborator.
type Indexer struct {
	docs     ports.DocumentSource
	chunker  ports.Chunker
	embedder ports.Embedder
	store    ports.ChunkStore
	cache    ports.AnswerCache
}

func NewIndexer(
	docs ports.DocumentSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.ChunkStore,
	cache ports.AnswerCache,
) *Indexer {
	return &Indexer{
		docs:     docs,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cache:    cache,
	}
}

func (i *Indexer) IndexByID(ctx context.Context, documentID string) (*domain.IndexReport, error) {
	doc, err := i.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return i.IndexDocument(ctx, doc)
}

func (i *Indexer) IndexDocument(ctx context.Context, doc *domain.Document) (*domain.IndexReport, error) {
	if doc == nil || doc.ID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "index document", errors.New("document is nil or has no id"))
	}

	hash := contentHash(doc)
	stored, err := i.store.ContentHash(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if stored == hash {
		count, err := i.store.ChunkCount(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		slog.Debug("index_skipped_unchanged", "document_id", doc.ID, "chunks", count)
		return &domain.IndexReport{DocumentID: doc.ID, ChunksSkipped: count}, nil
	}

	chunks := i.chunker.Chunk(doc.Content, doc.Title)
	kept := chunks[:0]
	for _, chunk := range chunks {
		if err := i.chunker.Validate(chunk); err != nil {
			slog.Debug("chunk_rejected", "document_id", doc.ID, "chunk_index", chunk.ChunkIndex, "error", err)
			continue
		}
		kept = append(kept, chunk)
	}

	texts := make([]string, len(kept))
	for idx := range kept {
		kept[idx].ID = fmt.Sprintf("%s:%d", doc.ID, kept[idx].ChunkIndex)
		kept[idx].DocumentID = doc.ID
		texts[idx] = kept[idx].Content
	}

	if len(kept) > 0 {
		vectors, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(kept) {
			return nil, domain.WrapError(domain.ErrCollaborator, "index document",
				fmt.Errorf("expected %d embeddings, got %d", len(kept), len(vectors)))
		}
		for idx := range kept {
			kept[idx].Embedding = vectors[idx]
		}
	}

	if err := i.store.ReplaceChunks(ctx, doc.ID, hash, kept); err != nil {
		return nil, err
	}
	i.invalidateCache(ctx, doc.ID)

	slog.Info("document_indexed", "document_id", doc.ID, "chunks", len(kept))
	return &domain.IndexReport{DocumentID: doc.ID, ChunksCreated: len(kept)}, nil
}

func (i *Indexer) RemoveDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "remove document", errors.New("document id is empty"))
	}
	if err := i.store.DeleteChunks(ctx, documentID); err != nil {
		return err
	}
	i.invalidateCache(ctx, documentID)
	return nil
}

// ReindexAll walks the whole corpus. A failed document is recorded and the
// run continues; unchanged documents still count as succeeded.
func (i *Indexer) ReindexAll(ctx context.Context) (*domain.ReindexReport, error) {
	docs, err := i.docs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.ReindexReport{Errors: map[string]string{}}
	for idx := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		if _, err := i.IndexDocument(ctx, &docs[idx]); err != nil {
			report.Errors[docs[idx].ID] = err.Error()
			slog.Error("reindex_document_failed", "document_id", docs[idx].ID, "error", err)
			continue
		}
		report.Succeeded++
	}
	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	return report, nil
}

// invalidateCache drops all cached answers; any of them may cite the changed
// document. Failure is logged, not surfaced: the cache only serves entries
// until their TTL anyway.
func (i *Indexer) invalidateCache(ctx context.Context, documentID string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.InvalidateAll(ctx); err != nil {
		slog.Warn("cache_invalidation_failed", "document_id", documentID, "error", err)
	}
}

func contentHash(doc *domain.Document) string {
	sum := sha256.Sum256([]byte(doc.Title + "\n" + doc.Content))
	return hex.EncodeToString(sum[:])
}

package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

func TestContentHashReturnsEmptyForUnindexedDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT content_hash FROM document_index_state`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"content_hash"}))

	repo := NewChunkRepository(db)
	hash, err := repo.ContentHash(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash != "" {
		t.Fatalf("expected empty hash, got %q", hash)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestReplaceChunksRunsInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM chunks WHERE document_id`).
		WithArgs("doc-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO chunks`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO document_index_state`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewChunkRepository(db)
	chunks := []domain.Chunk{
		{
			ID:         "doc-1:0",
			DocumentID: "doc-1",
			Content:    "release process starts with a branch cut",
			TokenCount: 10,
			Embedding:  []float32{0.1, 0.2},
		},
	}
	if err := repo.ReplaceChunks(context.Background(), "doc-1", "hash-a", chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchKeywordSkipsQueryWithoutUsableTerms(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewChunkRepository(db)
	refs, err := repo.SearchKeyword(context.Background(), "??? !!! ---", 10, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refs != nil {
		t.Fatalf("expected no refs, got %v", refs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSearchKeywordReturnsRankedRefs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "document_id", "chunk_index"}).
		AddRow("doc-1:2", "doc-1", 2).
		AddRow("doc-2:0", "doc-2", 0)
	mock.ExpectQuery(`SELECT id, document_id, chunk_index FROM chunks`).
		WithArgs("release | process").
		WillReturnRows(rows)

	repo := NewChunkRepository(db)
	refs, err := repo.SearchKeyword(context.Background(), "Release, process!", 10, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}
	if refs[0].ChunkID != "doc-1:2" || refs[0].ChunkIndex != 2 {
		t.Fatalf("unexpected first ref: %+v", refs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestHydrateChunksBuildsPlaceholderPerID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "content", "section_title", "title"}).
		AddRow("doc-1:0", "content a", "Setup", "Guide").
		AddRow("doc-2:1", "content b", "", "Manual")
	mock.ExpectQuery(`WHERE c.id IN \(\$1, \$2\)`).
		WithArgs("doc-1:0", "doc-2:1").
		WillReturnRows(rows)

	repo := NewChunkRepository(db)
	details, err := repo.HydrateChunks(context.Background(), []string{"doc-1:0", "doc-2:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(details))
	}
	if details["doc-1:0"].DocumentTitle != "Guide" || details["doc-1:0"].SectionTitle != "Setup" {
		t.Fatalf("unexpected detail: %+v", details["doc-1:0"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestBuildTSQuery(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"release process", "release | process"},
		{"How-To: Deploy!", "howto | deploy"},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := buildTSQuery(tc.input); got != tc.want {
			t.Fatalf("buildTSQuery(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

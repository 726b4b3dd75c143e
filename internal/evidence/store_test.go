package evidence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"github.com/slidecraft/orchestrator/internal/domain"
)

func newTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })

	db := bun.NewDB(sqldb, sqlitedialect.New())
	store := NewStoreWithDB(db, embedder)
	require.NoError(t, store.InitSchema(context.Background()))
	return store
}

func TestIngestCreatesDocumentsAndChunks(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	files := []IngestFile{
		{Name: "brief.md", Kind: domain.DocumentDocument, ContentType: "text/markdown",
			Data: []byte("# Launch Brief\n\nThis paragraph is long enough to survive the minimum chunk length filter easily.")},
	}

	docs, chunks, err := store.Ingest(ctx, "pres-1", files)
	require.NoError(t, err)
	require.Equal(t, 1, docs)
	require.Equal(t, 1, chunks)
}

func TestIngestIsIdempotentOnContentHash(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	files := []IngestFile{
		{Name: "brief.md", Kind: domain.DocumentDocument, ContentType: "text/markdown",
			Data: []byte("A paragraph long enough to clear the minimum chunk size used throughout these tests.")},
	}

	docs1, chunks1, err := store.Ingest(ctx, "pres-1", files)
	require.NoError(t, err)
	require.Equal(t, 1, docs1)
	require.Equal(t, 1, chunks1)

	docs2, chunks2, err := store.Ingest(ctx, "pres-1", files)
	require.NoError(t, err)
	require.Zero(t, docs2)
	require.Zero(t, chunks2)
}

func TestRetrieveFallsBackToFullText(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()

	files := []IngestFile{
		{Name: "market.md", Kind: domain.DocumentDocument, ContentType: "text/markdown",
			Data: []byte("Quarterly revenue grew significantly across every region we tracked this year.")},
		{Name: "unrelated.md", Kind: domain.DocumentDocument, ContentType: "text/markdown",
			Data: []byte("The office plant needs watering twice a week during the summer months.")},
	}
	_, _, err := store.Ingest(ctx, "pres-1", files)
	require.NoError(t, err)

	results, err := store.Retrieve(ctx, "pres-1", "quarterly revenue", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Text, "revenue")
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestRetrieveUsesEmbedderWhenConfigured(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"matching chunk text that is long enough to pass the minimum length filter here.": {1, 0, 0},
		"query": {1, 0, 0},
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	files := []IngestFile{
		{Name: "a.md", Data: []byte("matching chunk text that is long enough to pass the minimum length filter here.")},
	}
	_, _, err := store.Ingest(ctx, "pres-1", files)
	require.NoError(t, err)

	results, err := store.Retrieve(ctx, "pres-1", "query", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.InDelta(t, 1.0, results[0].Score, 0.3)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	require.Zero(t, cosineSimilarity(nil, []float32{1}))
}

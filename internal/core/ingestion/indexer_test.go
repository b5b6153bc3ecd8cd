package ingestion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/codeindex"
)

func sampleCorpus() *Corpus {
	return &Corpus{
		Methods: []codeindex.MethodRecord{
			{Code: "def add(a, b)", SourceCode: "def add(a, b)", FilePath: "m.py", ClassName: "Calculator", Name: "add"},
			{Code: "def sub(a, b)", SourceCode: "def sub(a, b)", FilePath: "m.py", ClassName: "Calculator", Name: "sub"},
			{Code: "def mul(a, b)", SourceCode: "def mul(a, b)", FilePath: "m.py", ClassName: "Calculator", Name: "mul"},
		},
		Classes: []codeindex.ClassRecord{
			{SourceCode: "File: m.py\n\nClass: Calculator", FilePath: "m.py", ClassName: "Calculator"},
		},
	}
}

func TestVectorIndexer_CreatesBothTables(t *testing.T) {
	store := newMemStore()
	ix := NewVectorIndexer(&stubEmbedder{}, discardLogger())

	stats, err := ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MethodRows)
	assert.Equal(t, 1, stats.ClassRows)
	assert.Zero(t, stats.DroppedRows)

	names, err := store.TableNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"toy_class", "toy_method"}, names)

	for _, row := range store.tables["toy_method"] {
		for _, col := range codeindex.MethodSchema.Columns {
			assert.NotEmpty(t, row.Fields[col], col)
		}
	}
}

func TestVectorIndexer_DropsBadVectors(t *testing.T) {
	store := newMemStore()
	ix := NewVectorIndexer(&stubEmbedder{badText: "sub"}, discardLogger())

	stats, err := ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MethodRows)
	assert.Equal(t, 1, stats.DroppedRows)
	assert.Len(t, store.tables["toy_method"], 2)
}

func TestVectorIndexer_DropsBothTablesWhenClassStepFails(t *testing.T) {
	store := newMemStore()
	store.failAddTo = "toy_class"
	ix := NewVectorIndexer(&stubEmbedder{}, discardLogger())

	_, err := ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.Error(t, err)

	names, err := store.TableNames(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "toy_method")
	assert.NotContains(t, names, "toy_class")
}

func TestVectorIndexer_EmbeddingErrorFails(t *testing.T) {
	store := newMemStore()
	ix := NewVectorIndexer(&stubEmbedder{err: errors.New("boom")}, discardLogger())

	_, err := ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.Error(t, err)
	assert.Empty(t, store.tables)
}

func TestVectorIndexer_OverwritesOnRerun(t *testing.T) {
	store := newMemStore()
	ix := NewVectorIndexer(&stubEmbedder{}, discardLogger())

	_, err := ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.NoError(t, err)
	_, err = ix.Index(context.Background(), store, "toy", sampleCorpus())
	require.NoError(t, err)

	assert.Len(t, store.tables["toy_method"], 3)
	assert.Len(t, store.tables["toy_class"], 1)
}

func TestValidVector(t *testing.T) {
	assert.False(t, validVector(nil, 0))
	assert.True(t, validVector([]float32{1, 2}, 0))
	assert.False(t, validVector([]float32{1, 2}, 3))
	assert.False(t, validVector([]float32{float32(math.NaN())}, 0))
	assert.False(t, validVector([]float32{float32(math.Inf(1))}, 0))
}

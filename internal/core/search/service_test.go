package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/codeqa/internal/core/codeindex"
	"github.com/jinford/codeqa/internal/core/project"
)

func newService(t *testing.T, layout *project.Layout, opener codeindex.Opener, opts ...RetrieverOption) *Service {
	t.Helper()
	opts = append([]RetrieverOption{WithRetrieverLogger(discardLogger())}, opts...)
	r, err := NewRetriever(layout, opener, &stubEmbedder{}, opts...)
	require.NoError(t, err)
	return NewService(r, layout, WithSearchLogger(discardLogger()))
}

func TestService_QueryReturnsMethodCode(t *testing.T) {
	layout, store := toyProject(t)
	svc := newService(t, layout, &countingOpener{store: store})

	text := svc.Query(context.Background(), "toy", "add two numbers", false)

	assert.Contains(t, text, "Code:\ndef add(self, a, b):\n    return a + b")
	assert.Contains(t, text, ClassSectionSeparator)
	assert.Contains(t, text, "END OF ROW 0")
}

func TestService_QueryUnknownCodebase(t *testing.T) {
	layout, store := toyProject(t)
	svc := newService(t, layout, &countingOpener{store: store})

	text := svc.Query(context.Background(), "/somewhere/else/ghost", "anything", true)
	assert.Equal(t,
		"Codebase 'ghost' not found. Please ingest it first using ingest_codebase.\nAvailable codebases:\ntoy",
		text,
	)
}

func TestService_QueryWithNothingIngested(t *testing.T) {
	layout := project.NewLayout(t.TempDir())
	svc := newService(t, layout, &countingOpener{store: &keywordStore{}})

	text := svc.Query(context.Background(), "ghost", "anything", false)
	assert.Contains(t, text, "Please ingest it first")
	assert.Contains(t, text, "No codebases are currently ingested.")
}

func TestService_GenerateContextNeverFails(t *testing.T) {
	layout := project.NewLayout(t.TempDir())
	svc := newService(t, layout, &countingOpener{store: &keywordStore{}})

	text := svc.GenerateContext(context.Background(), "ghost", "anything", false)
	assert.Contains(t, text, "Error generating context:")
	assert.Contains(t, text, "Please ingest it first")
}

func TestService_GenerateContextOnSearchError(t *testing.T) {
	layout, store := toyProject(t)
	store.err = errors.New("disk on fire")
	svc := newService(t, layout, &countingOpener{store: store})

	text := svc.GenerateContext(context.Background(), "toy", "add", false)
	assert.Equal(t, "Error generating context: method search failed: disk on fire", text)
}

func TestService_QueryAcceptsURLAndPath(t *testing.T) {
	layout, store := toyProject(t)
	svc := newService(t, layout, &countingOpener{store: store})

	for _, codebase := range []string{"https://github.com/example/toy", "/home/dev/src/toy", "toy"} {
		text := svc.Query(context.Background(), codebase, "add", false)
		assert.Contains(t, text, "Code:\n", codebase)
	}
}

func TestAssembleContext_Format(t *testing.T) {
	methods := []codeindex.MethodRecord{
		{FilePath: "a.py", Code: "def a(): pass"},
		{FilePath: "b.py", Code: "def b(): pass"},
	}
	classes := []codeindex.ClassRecord{
		{FilePath: "a.py", SourceCode: "SRC", References: "REFS"},
	}

	got := AssembleContext(methods, classes)
	want := "File: a.py\nCode:\ndef a(): pass\n\nFile: b.py\nCode:\ndef b(): pass" +
		"\n below is class or constructor related code \n" +
		"File: a.py\nClass Info:\nSRC References: \nREFS  \n END OF ROW 0"
	assert.Equal(t, want, got)
}

func TestNotIngestedError(t *testing.T) {
	err := error(&NotIngestedError{Slug: "x", Tables: []string{"x_method"}})
	assert.ErrorIs(t, err, ErrNotIngested)
	var nie *NotIngestedError
	require.ErrorAs(t, err, &nie)
	assert.Equal(t, "x", nie.Slug)
	assert.Contains(t, err.Error(), "Please ingest it first")
}

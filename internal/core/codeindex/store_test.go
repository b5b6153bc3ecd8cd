package codeindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuseRRF_PrefersItemsFoundByBothSearches(t *testing.T) {
	fused := FuseRRF([]int64{1, 2, 3}, []int64{3, 4})
	assert.Equal(t, int64(3), fused[0])
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, fused)
}

func TestFuseRRF_TieKeepsVectorOrder(t *testing.T) {
	fused := FuseRRF([]int64{7, 8}, nil)
	assert.Equal(t, []int64{7, 8}, fused)

	fused = FuseRRF([]int64{5}, []int64{9})
	assert.Equal(t, []int64{5, 9}, fused)
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"add", "two", "numbers"}, QueryTerms("Add two numbers, add!"))
	assert.Equal(t, []string{"calculator", "add"}, QueryTerms(`"Calculator".add(*)`))
	assert.Empty(t, QueryTerms("  ?! "))
}

func TestCandidateLimit(t *testing.T) {
	assert.Equal(t, 20, CandidateLimit(5))
	assert.Equal(t, 40, CandidateLimit(10))
	assert.Equal(t, 200, CandidateLimit(1000))
	assert.Equal(t, 20, CandidateLimit(0))
}

func TestRecordFieldsFillSentinel(t *testing.T) {
	fields := MethodRecord{Code: "def add(): pass", SourceCode: "def add(): pass", Name: "add"}.Fields()
	for _, col := range MethodSchema.Columns {
		assert.NotEmpty(t, fields[col], col)
	}
	assert.Equal(t, Sentinel, fields["doc_comment"])
	assert.Equal(t, Sentinel, fields["references"])

	restored := MethodRecordFromFields(fields)
	assert.Equal(t, "add", restored.Name)

	placeholder := PlaceholderClassRecord().Fields()
	for _, col := range ClassSchema.Columns {
		assert.Equal(t, Sentinel, placeholder[col], col)
	}
}

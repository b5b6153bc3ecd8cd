package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toyFiles() []SourceFile {
	return []SourceFile{
		{
			Path:     "math_utils.py",
			Language: LanguagePython,
			Content:  "class Calculator:\n    def add(self, a, b):\n        return a + b\n",
		},
		{
			Path:     "main.py",
			Language: LanguagePython,
			Content:  "from math_utils import Calculator\n\nprint(Calculator().add(1, 2))\n",
		},
	}
}

func TestReferenceResolver_ToyCodebase(t *testing.T) {
	files := toyFiles()
	ps := NewParserSet(WithParserLogger(discardLogger()))
	ps.Register(lineParser{}, LanguagePython)

	parsed, err := ps.ParseAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, parsed.Classes, 1)
	require.Len(t, parsed.Methods, 1)
	assert.Equal(t, "Calculator", parsed.Classes[0].ClassName)
	assert.Equal(t, "add", parsed.Methods[0].Name)

	refs := NewReferenceResolver().Resolve(files, parsed)

	classSites := refs.Class["Calculator"]
	require.Len(t, classSites, 2)
	for _, s := range classSites {
		assert.Equal(t, "main.py", s.FilePath)
	}
	assert.Equal(t, 1, classSites[0].Line)
	assert.Equal(t, 3, classSites[1].Line)

	methodSites := refs.Method["add"]
	require.Len(t, methodSites, 1)
	assert.Equal(t, "main.py:3: print(Calculator().add(1, 2))", methodSites[0].String())
}

func TestReferenceResolver_DedupesSitesPerLine(t *testing.T) {
	files := []SourceFile{
		{Path: "a.py", Content: "class A:\n    pass\n"},
		{Path: "b.py", Content: "x = A(); y = A()\n"},
	}
	parsed := &ParseResult{
		Classes:    []ClassEntity{{FilePath: "a.py", ClassName: "A", Line: 1}},
		ClassNames: []string{"A"},
	}

	refs := NewReferenceResolver().Resolve(files, parsed)
	require.Len(t, refs.Class["A"], 1)
	assert.Equal(t, "b.py", refs.Class["A"][0].FilePath)
}

func TestReferenceResolver_MethodNameSharedAcrossClasses(t *testing.T) {
	files := []SourceFile{
		{Path: "shapes.py", Content: "class Circle:\n    def area(self): pass\nclass Square:\n    def area(self): pass\n"},
		{Path: "use.py", Content: "total = c.area() + s.area()\n"},
	}
	ps := NewParserSet(WithParserLogger(discardLogger()))
	ps.Register(lineParser{}, LanguageUnknown)
	for i := range files {
		files[i].Language = LanguageUnknown
	}
	parsed, err := ps.ParseAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, parsed.Methods, 2)

	refs := NewReferenceResolver().Resolve(files, parsed)
	classes, methods := NewCorpusBuilder(NewTokenClipper(byteEncoder{}, 100)).Merge(parsed, refs)
	require.Len(t, classes, 2)
	require.Len(t, methods, 2)
	assert.Equal(t, methods[0].References, methods[1].References)
	assert.Equal(t, "use.py:1: total = c.area() + s.area()", methods[0].References)
}

func TestReferenceResolver_TruncatesLongLines(t *testing.T) {
	long := "call("
	for len(long) < 300 {
		long += "ñ"
	}
	files := []SourceFile{{Path: "x.py", Content: "target " + long}}
	parsed := &ParseResult{MethodNames: []string{"target"}, Methods: []MethodEntity{{FilePath: "y.py", Name: "target", Line: 1}}}

	refs := NewReferenceResolver().Resolve(files, parsed)
	require.Len(t, refs.Method["target"], 1)
	assert.LessOrEqual(t, len(refs.Method["target"][0].Text), maxSiteText)
}

func TestParserSet_SkipsFailedFiles(t *testing.T) {
	ps := NewParserSet(WithParserLogger(discardLogger()), WithParserWorkers(2))
	ps.Register(lineParser{}, LanguagePython)

	files := []SourceFile{
		{Path: "bad.py", Language: LanguagePython, Content: "SYNTAX ERROR"},
		{Path: "good.py", Language: LanguagePython, Content: "def ok():\n    pass\n"},
		{Path: "main.go", Language: LanguageGo, Content: "package main"},
	}
	parsed, err := ps.ParseAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, parsed.Methods, 1)
	assert.Equal(t, "ok", parsed.Methods[0].Name)
	assert.Equal(t, NoClass, parsed.Methods[0].ClassName)
}
